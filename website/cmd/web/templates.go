package main

import (
	"html/template"
	"io/fs"
	"path/filepath"
	"time"

	"furitingoasis/fogger/control"
	"furitingoasis/fogger/history"
	"furitingoasis/fogger/website/ui"
)

type templateData struct {
	CurrentTime    string
	RefreshSeconds int
	Flash          string
	CSRFToken      string
	CurrentMode    control.Mode
	Modes          []control.Mode
	Summary        *control.Summary
	Stats          *history.Stats
	ChartSource    string
}

func newTemplateCache() (map[string]*template.Template, error) {
	cache := map[string]*template.Template{}

	pages, err := fs.Glob(ui.Files, "html/pages/*.tmpl")
	if err != nil {
		return nil, err
	}
	for _, page := range pages {
		name := filepath.Base(page)
		ts, err := template.New(name).ParseFS(ui.Files, "html/base.tmpl", page)
		if err != nil {
			return nil, err
		}
		cache[name] = ts
	}
	return cache, nil
}

func clockTime(t time.Time) string {
	return t.Format("15:04:05")
}
