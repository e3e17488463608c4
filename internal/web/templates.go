// Package web renders the storefront pages from embedded templates.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
)

//go:embed templates/*.html static/*
var assetFS embed.FS

var pages *template.Template

func init() {
	funcMap := template.FuncMap{
		"yen": func(v int) string { return fmt.Sprintf("¥%d", v) },
	}
	pages = template.Must(template.New("pages").Funcs(funcMap).ParseFS(assetFS, "templates/*.html"))
}

// Render writes the named page. The template executes into a buffer first so
// a mid-render failure never leaks a truncated body behind a success status.
func Render(w http.ResponseWriter, status int, name string, data any) error {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// StaticHandler serves the embedded static assets under /static/.
func StaticHandler() http.Handler {
	return http.FileServer(http.FS(assetFS))
}
