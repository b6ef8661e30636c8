// Package templates renders the viewer page and the HTML fragments patched
// into it over Datastar SSE.
package templates

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"sync"

	"github.com/rotisserie/eris"
)

//go:embed fragments/*.html
var embedded embed.FS

// funcMap provides common template functions.
var funcMap = template.FuncMap{
	// dict creates a map from key-value pairs for nested templates
	"dict": func(values ...any) map[string]any {
		if len(values)%2 != 0 {
			return nil
		}
		m := make(map[string]any, len(values)/2)
		for i := 0; i < len(values); i += 2 {
			key, ok := values[i].(string)
			if !ok {
				continue
			}
			m[key] = values[i+1]
		}
		return m
	},
}

// Renderer manages HTML templates.
type Renderer struct {
	templates *template.Template
	mu        sync.RWMutex
}

// Default returns a renderer over the built-in templates.
func Default() (*Renderer, error) {
	return New(embedded)
}

// New parses fragments/*.html from fsys.
func New(fsys fs.FS) (*Renderer, error) {
	tmpl, err := parse(fsys)
	if err != nil {
		return nil, err
	}
	return &Renderer{templates: tmpl}, nil
}

func parse(fsys fs.FS) (*template.Template, error) {
	tmpl, err := template.New("").Funcs(funcMap).ParseFS(fsys, "fragments/*.html")
	if err != nil {
		return nil, eris.Wrap(err, "templates: parse")
	}
	return tmpl, nil
}

// Render renders a named template to a string.
func (r *Renderer) Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.RenderToBuffer(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderToBuffer renders a named template to a buffer.
func (r *Renderer) RenderToBuffer(buf *bytes.Buffer, name string, data any) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.templates.ExecuteTemplate(buf, name, data); err != nil {
		return eris.Wrapf(err, "templates: render %s", name)
	}
	return nil
}

// Reload swaps in templates from fsys (useful for dev hot-reload).
func (r *Renderer) Reload(fsys fs.FS) error {
	tmpl, err := parse(fsys)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.templates = tmpl
	r.mu.Unlock()

	return nil
}
