package report

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

const barWidth = 30

// TextPresenter renders reports for a terminal.
type TextPresenter struct {
	heading *color.Color
	label   *color.Color
	hot     *color.Color
	dim     *color.Color
	ok      *color.Color
}

// NewTextPresenter creates a terminal presenter. Colors follow color.NoColor.
func NewTextPresenter() *TextPresenter {
	return &TextPresenter{
		heading: color.New(color.FgCyan, color.Bold),
		label:   color.New(color.FgYellow),
		hot:     color.New(color.FgRed, color.Bold),
		dim:     color.New(color.FgHiBlack),
		ok:      color.New(color.FgGreen, color.Bold),
	}
}

// Render implements Presenter.
func (p *TextPresenter) Render(v View) (*Document, error) {
	m := buildModel(v)
	var b strings.Builder

	b.WriteString(p.heading.Sprint(m.Title))
	b.WriteString("\n")
	meta := fmt.Sprintf("Namespace %s | Threshold %d%%", m.Namespace, m.Threshold)
	if m.GeneratedAt != "" {
		meta += " | Generated " + m.GeneratedAt
	}
	b.WriteString(p.dim.Sprint(meta))
	b.WriteString("\n\n")

	switch v.Kind {
	case ViewError:
		b.WriteString(p.hot.Sprint("No logs found"))
		b.WriteString("\nNo debug logs have been captured since the engine was started.\n")
	case ViewAllClear:
		b.WriteString(p.ok.Sprint("All clear"))
		fmt.Fprintf(&b, "\nNo governor limit reached %d%% in the logs captured this session.\n", m.Threshold)
	case ViewConsumption:
		p.writeConsumption(&b, m)
	default:
		return nil, fmt.Errorf("unknown view %q", v.Kind)
	}

	return &Document{
		Kind:        v.Kind,
		Format:      FormatText,
		ContentType: "text/plain; charset=utf-8",
		Title:       Title,
		Body:        []byte(b.String()),
	}, nil
}

func (p *TextPresenter) writeConsumption(b *strings.Builder, m model) {
	b.WriteString(p.heading.Sprint("Limits at or above threshold"))
	b.WriteString("\n")
	for _, bar := range m.Chart {
		fmt.Fprintf(b, "  %-28s %4d\n", bar.Description, bar.Count)
	}

	for _, f := range m.Files {
		b.WriteString("\n")
		b.WriteString(p.heading.Sprint(f.Name))
		if f.Link != "" {
			b.WriteString(" ")
			b.WriteString(p.dim.Sprint(f.Link))
		}
		b.WriteString("\n")
		for _, c := range f.Cards {
			fmt.Fprintf(b, "  %s\n", p.label.Sprint(c.Description))
			fmt.Fprintf(b, "    Used: %d / %d (%s%%) %s\n", c.Consumed, c.Max, c.Percent, p.hot.Sprint(bar(c.Consumed, c.Max)))
		}
	}
}

func bar(consumed, max int64) string {
	filled := 0
	if max > 0 {
		filled = int(consumed * barWidth / max)
	}
	if filled > barWidth {
		filled = barWidth
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", barWidth-filled) + "]"
}
