package main

import (
	"bytes"
	"encoding/json"
	"net/http"

	"furitingoasis/fogger/chart"
	"furitingoasis/fogger/control"
	"furitingoasis/fogger/history"
)

func ping(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("OK"))
}

// home is one evaluation cycle: every load or refresh of the page reads the
// sensor, asks the model and actuates the fogger for the session's mode.
func (app *application) home(w http.ResponseWriter, r *http.Request) {
	mode := app.sessionMode(r)
	summary := app.controller.RunCycle(r.Context(), mode)

	data := app.newTemplateData(r)
	data.Summary = &summary

	stats, err := app.history.Stats(r.Context())
	if err != nil {
		app.logger.Error("loading history stats", "error", err)
	} else {
		data.Stats = &stats
		if stats.Count >= 2 {
			data.ChartSource = "history"
		}
	}
	app.render(w, r, http.StatusOK, "home.tmpl", data)
}

type modeForm struct {
	Mode string `form:"mode"`
}

func (app *application) selectMode(w http.ResponseWriter, r *http.Request) {
	var f modeForm
	if err := app.decodePostForm(r, &f); err != nil {
		app.clientError(w, http.StatusBadRequest)
		return
	}
	mode, err := control.ParseMode(f.Mode)
	if err != nil {
		app.clientError(w, http.StatusBadRequest)
		return
	}

	app.sessionManager.Put(r.Context(), "mode", mode.String())
	app.sessionManager.Put(r.Context(), "flash", "Mode set to "+mode.Label())
	app.logger.Info("mode selected", "mode", mode)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (app *application) chartPage(w http.ResponseWriter, r *http.Request) {
	buf := new(bytes.Buffer)
	switch r.URL.Query().Get("source") {
	case "history":
		points, err := app.history.Series(r.Context(), app.chartPoints)
		if err != nil {
			app.serverError(w, r, err)
			return
		}
		err = chart.RenderHistory(buf, points)
		if err != nil {
			app.serverError(w, r, err)
			return
		}
	case "", "simulated":
		if err := chart.RenderSimulated(buf); err != nil {
			app.serverError(w, r, err)
			return
		}
	default:
		app.clientError(w, http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

type historyResponse struct {
	Points     []history.Point     `json:"points"`
	Stats      history.Stats       `json:"stats"`
	Actuations []history.Actuation `json:"actuations"`
}

func (app *application) apiHistory(w http.ResponseWriter, r *http.Request) {
	var resp historyResponse
	var err error
	if resp.Points, err = app.history.Series(r.Context(), app.chartPoints); err != nil {
		app.serverError(w, r, err)
		return
	}
	if resp.Stats, err = app.history.Stats(r.Context()); err != nil {
		app.serverError(w, r, err)
		return
	}
	if resp.Actuations, err = app.history.Actuations(r.Context(), 50); err != nil {
		app.serverError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
