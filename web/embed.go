// Package web embeds the HTML templates and static assets for the wizard pages.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Page names, one per wizard step.
var pageNames = []string{"identify", "guide", "chat", "summary"}

// Pages holds one parsed template set per page.
type Pages struct {
	set map[string]*template.Template
}

var funcs = template.FuncMap{
	// imageURL trusts only inline image data produced by the upload path.
	"imageURL": func(u string) template.URL {
		if strings.HasPrefix(u, "data:image/") {
			return template.URL(u) //nolint:gosec // data URLs are built server-side from sniffed uploads.
		}
		return ""
	},
}

// LoadPages parses the embedded templates.
func LoadPages() (*Pages, error) {
	p := &Pages{set: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS,
			"templates/layout.html",
			"templates/partials.html",
			"templates/"+name+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		p.set[name] = t
	}
	return p, nil
}

// Render executes the named page inside the shared layout.
func (p *Pages) Render(w io.Writer, name string, data any) error {
	t, ok := p.set[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}
	return t.ExecuteTemplate(w, "layout", data)
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

		// No directory listings; only files that exist.
		f, err := subFS.Open(path)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		if closeErr := f.Close(); closeErr != nil {
			slog.Debug("web: failed to close embedded file", "path", path, "error", closeErr)
		}
		fileServer.ServeHTTP(w, r)
	})
}
