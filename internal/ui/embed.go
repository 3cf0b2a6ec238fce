// Package ui serves the embedded chat widget.
package ui

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/joescharf/desk/internal/models"
)

//go:embed all:dist
var distFS embed.FS

// DistFS returns the embedded dist/ filesystem with the "dist" prefix stripped.
func DistFS() (fs.FS, error) {
	return fs.Sub(distFS, "dist")
}

// page is the data the index template is rendered with.
type page struct {
	Company models.Company
	APIBase string
}

// Handler returns an http.Handler that serves the widget for company.
// Static files are served directly. Paths without a file extension get the
// rendered index page. Missing assets return 404.
func Handler(company models.Company, apiBase string) (http.Handler, error) {
	sub, err := DistFS()
	if err != nil {
		return nil, err
	}

	tmpl, err := template.ParseFS(sub, "index.html")
	if err != nil {
		return nil, fmt.Errorf("parse index: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, page{Company: company, APIBase: strings.TrimSuffix(apiBase, "/")}); err != nil {
		return nil, fmt.Errorf("render index: %w", err)
	}
	index := buf.Bytes()

	fileServer := http.FileServerFS(sub)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if p == "" || p == "index.html" {
			writeIndex(w, index)
			return
		}

		if _, err := fs.Stat(sub, p); err == nil {
			fileServer.ServeHTTP(w, r)
			return
		}

		// Has extension (e.g. .js, .css), genuine missing asset
		if strings.Contains(p, ".") {
			http.NotFound(w, r)
			return
		}

		writeIndex(w, index)
	}), nil
}

func writeIndex(w http.ResponseWriter, index []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(index)
}
