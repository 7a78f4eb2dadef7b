// Package report renders governor limit consumption for display.
package report

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/goodtune/limitsmate/internal/limits"
)

// Title is the heading of every rendered report.
const Title = "Governor Limits Consumption"

// ViewKind selects which document a presenter produces.
type ViewKind string

const (
	// ViewError is shown when no log of the session could be read.
	ViewError ViewKind = "error"
	// ViewAllClear is shown when logs were read but none reached the threshold.
	ViewAllClear ViewKind = "all-clear"
	// ViewConsumption lists per-log cards and the aggregate chart.
	ViewConsumption ViewKind = "consumption"
)

// Format names a presenter output format.
type Format string

const (
	FormatHTML     Format = "html"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
)

// View is everything a presenter needs to render a report.
type View struct {
	Kind        ViewKind
	Report      limits.ReportReader
	Threshold   int
	Namespace   string
	GeneratedAt time.Time

	// DisplayName resolves the label shown for a log file. Nil uses the base name.
	DisplayName func(file string) string
	// Link resolves a URL opening the log file. Nil omits links.
	Link func(file string) string
}

// Document is a rendered report.
type Document struct {
	Kind        ViewKind `json:"kind"`
	Format      Format   `json:"format"`
	ContentType string   `json:"content_type"`
	Title       string   `json:"title"`
	Body        []byte   `json:"body"`
}

// Presenter turns a view into a displayable document.
type Presenter interface {
	Render(v View) (*Document, error)
}

// ForFormat returns the presenter for a format name. An empty name selects HTML.
func ForFormat(name string) (Presenter, error) {
	switch Format(strings.ToLower(strings.TrimSpace(name))) {
	case "", FormatHTML:
		return NewHTMLPresenter()
	case FormatMarkdown, "md":
		return NewMarkdownPresenter()
	case FormatText, "txt":
		return NewTextPresenter(), nil
	default:
		return nil, fmt.Errorf("unknown report format %q", name)
	}
}

func (v View) displayName(file string) string {
	if v.DisplayName != nil {
		return v.DisplayName(file)
	}
	return filepath.Base(file)
}

func (v View) link(file string) string {
	if v.Link != nil {
		return v.Link(file)
	}
	return ""
}

// card is one limit reading prepared for templates.
type card struct {
	Description string
	Consumed    int64
	Max         int64
	Percent     string
	BarWidth    string
}

type fileCards struct {
	Name  string
	Link  string
	Cards []card
}

type chartBar struct {
	Description string
	Count       int
	Width       string
}

// model is the presenter-neutral shape shared by the HTML and text presenters.
type model struct {
	Title       string
	Kind        ViewKind
	Threshold   int
	Namespace   string
	GeneratedAt string
	Files       []fileCards
	Chart       []chartBar
}

func buildModel(v View) model {
	m := model{
		Title:     Title,
		Kind:      v.Kind,
		Threshold: v.Threshold,
		Namespace: v.Namespace,
	}
	if !v.GeneratedAt.IsZero() {
		m.GeneratedAt = v.GeneratedAt.Format(time.RFC1123)
	}
	if v.Kind != ViewConsumption || v.Report == nil {
		return m
	}

	for _, file := range v.Report.Files() {
		fc := fileCards{Name: v.displayName(file), Link: v.link(file)}
		for _, e := range v.Report.Entries(file) {
			width := e.Percentage
			if width > 100 {
				width = 100
			}
			fc.Cards = append(fc.Cards, card{
				Description: e.Description,
				Consumed:    e.Consumed,
				Max:         e.Max,
				Percent:     e.PercentLabel(),
				BarWidth:    fmt.Sprintf("%.2f%%", width),
			})
		}
		m.Files = append(m.Files, fc)
	}

	counts := v.Report.Aggregate()
	most := 0
	for _, c := range counts {
		if c.Count > most {
			most = c.Count
		}
	}
	for _, c := range counts {
		width := 0.0
		if most > 0 {
			width = float64(c.Count) / float64(most) * 100
		}
		m.Chart = append(m.Chart, chartBar{
			Description: c.Description,
			Count:       c.Count,
			Width:       fmt.Sprintf("%.2f%%", width),
		})
	}
	return m
}
