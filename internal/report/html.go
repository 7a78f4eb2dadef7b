package report

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

// HTMLPresenter renders reports as standalone HTML pages.
type HTMLPresenter struct {
	templates *template.Template
}

// NewHTMLPresenter parses the embedded report templates.
func NewHTMLPresenter() (*HTMLPresenter, error) {
	// Links come from the host and may use the file scheme, which the
	// default URL sanitizer rewrites.
	funcs := template.FuncMap{
		"trustedURL": func(s string) template.URL { return template.URL(s) },
	}
	tmpl, err := template.New("report").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse report templates: %w", err)
	}
	return &HTMLPresenter{templates: tmpl}, nil
}

// Render implements Presenter.
func (p *HTMLPresenter) Render(v View) (*Document, error) {
	var name string
	switch v.Kind {
	case ViewConsumption:
		name = "consumption"
	case ViewAllClear:
		name = "all-clear"
	case ViewError:
		name = "error"
	default:
		return nil, fmt.Errorf("unknown view %q", v.Kind)
	}

	var buf bytes.Buffer
	if err := p.templates.ExecuteTemplate(&buf, name, buildModel(v)); err != nil {
		return nil, fmt.Errorf("failed to render %s view: %w", name, err)
	}

	return &Document{
		Kind:        v.Kind,
		Format:      FormatHTML,
		ContentType: "text/html; charset=utf-8",
		Title:       Title,
		Body:        buf.Bytes(),
	}, nil
}
