package main

import (
	"net/http"

	"github.com/justinas/alice"

	"furitingoasis/fogger/website/ui"
)

func (app *application) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /static/", http.FileServerFS(ui.Files))
	mux.HandleFunc("GET /ping", ping)
	mux.Handle("GET /metrics", app.metrics.Handler())

	dynamic := alice.New(app.sessionManager.LoadAndSave, app.noSurf)
	mux.Handle("GET /{$}", app.metrics.WrapHandler("home", dynamic.ThenFunc(app.home)))
	mux.Handle("POST /mode", app.metrics.WrapHandler("mode", dynamic.ThenFunc(app.selectMode)))

	mux.Handle("GET /chart", app.metrics.WrapHandler("chart", http.HandlerFunc(app.chartPage)))
	api := alice.New(app.enableCORS)
	mux.Handle("GET /api/history", app.metrics.WrapHandler("api_history", api.ThenFunc(app.apiHistory)))

	standard := alice.New(app.recoverPanic, app.logRequest, app.securityHeaders)
	return standard.Then(mux)
}
