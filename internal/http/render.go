package http

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"strings"

	"github.com/shopspring/decimal"

	"fatture/internal/core"
)

// Renderer executes the embedded templates into strings so that fragments
// can be stored as document nodes.
type Renderer struct {
	t *template.Template
}

var templateFuncs = template.FuncMap{
	"lower": strings.ToLower,
	"plain": func(d decimal.Decimal) string { return core.Plain(d) },
	"selected": func(a, b any) template.HTMLAttr {
		if fmt.Sprint(a) == fmt.Sprint(b) {
			return "selected"
		}
		return ""
	},
	"checked": func(b bool) template.HTMLAttr {
		if b {
			return "checked"
		}
		return ""
	},
}

// NewRenderer parses every *.html file under templates/ in fsys.
func NewRenderer(fsys fs.FS) (*Renderer, error) {
	t, err := template.New("fatture").Funcs(templateFuncs).ParseFS(fsys, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Renderer{t: t}, nil
}

// Fragment renders the named template.
func (r *Renderer) Fragment(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.t.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// Has reports whether a template is defined.
func (r *Renderer) Has(name string) bool {
	return r.t.Lookup(name) != nil
}
