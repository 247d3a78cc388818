// Package web embeds the page template and static assets served by the picker.
package web

import (
	"embed"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed all:static
var staticFS embed.FS

var page = template.Must(template.New("index.html").
	Funcs(template.FuncMap{"label": CategoryLabel}).
	ParseFS(templateFS, "templates/index.html"))

// CategoryLabel turns a catalog category into a display label.
func CategoryLabel(category string) string {
	return cases.Title(language.English).String(strings.TrimSpace(category))
}

// PageTemplate returns the parsed full-page template.
func PageTemplate() *template.Template {
	return page
}

// StaticHandler serves the embedded assets. Mount it under /static/.
func StaticHandler() http.Handler {
	subFS, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic("web: failed to create sub filesystem: " + err.Error())
	}

	fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(subFS)))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/static/")
		if path == "" || strings.HasSuffix(path, "/") {
			http.NotFound(w, r)
			return
		}
		f, err := subFS.Open(path)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		if closeErr := f.Close(); closeErr != nil {
			slog.Debug("web: failed to close embedded file", "path", path, "error", closeErr)
		}
		w.Header().Set("Cache-Control", "public, max-age=300")
		fileServer.ServeHTTP(w, r)
	})
}
