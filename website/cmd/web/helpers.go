package main

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-playground/form/v4"
	"github.com/justinas/nosurf"

	"furitingoasis/fogger/control"
)

func (app *application) serverError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		method = r.Method
		uri    = r.URL.RequestURI()
		trace  = string(debug.Stack())
	)
	app.logger.Error(err.Error(), "method", method, "uri", uri, "trace", trace)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (app *application) clientError(w http.ResponseWriter, status int) {
	http.Error(w, http.StatusText(status), status)
}

func (app *application) render(w http.ResponseWriter, r *http.Request, status int, page string, data templateData) {
	ts, ok := app.templateCache[page]
	if !ok {
		app.serverError(w, r, fmt.Errorf("the template %s does not exist", page))
		return
	}

	buf := new(bytes.Buffer)
	if err := ts.ExecuteTemplate(buf, "base", data); err != nil {
		app.serverError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func (app *application) newTemplateData(r *http.Request) templateData {
	return templateData{
		CurrentTime:    clockTime(time.Now()),
		RefreshSeconds: int(app.refresh.Seconds()),
		Flash:          app.sessionManager.PopString(r.Context(), "flash"),
		CSRFToken:      nosurf.Token(r),
		CurrentMode:    app.sessionMode(r),
		Modes:          control.Modes,
		ChartSource:    "simulated",
	}
}

// sessionMode reads the browser session's mode; a missing or stale value
// means ModeAuto.
func (app *application) sessionMode(r *http.Request) control.Mode {
	raw := app.sessionManager.GetString(r.Context(), "mode")
	if raw == "" {
		return control.ModeAuto
	}
	mode, err := control.ParseMode(raw)
	if err != nil {
		app.logger.Warn("discarding unknown session mode", "mode", raw)
		return control.ModeAuto
	}
	return mode
}

func (app *application) decodePostForm(r *http.Request, dst any) error {
	if err := r.ParseForm(); err != nil {
		return err
	}

	err := app.formDecoder.Decode(dst, r.PostForm)
	if err != nil {
		var invalidDecoderError *form.InvalidDecoderError
		if errors.As(err, &invalidDecoderError) {
			panic(err)
		}
		return err
	}
	return nil
}
