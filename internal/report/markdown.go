package report

import (
	"fmt"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
)

// MarkdownPresenter renders the HTML report and converts it to Markdown.
type MarkdownPresenter struct {
	html *HTMLPresenter
	conv *md.Converter
}

// NewMarkdownPresenter creates a Markdown presenter.
func NewMarkdownPresenter() (*MarkdownPresenter, error) {
	html, err := NewHTMLPresenter()
	if err != nil {
		return nil, err
	}
	conv := md.NewConverter("", true, nil)
	conv.Use(plugin.GitHubFlavored())
	conv.Remove("style", "title")
	return &MarkdownPresenter{html: html, conv: conv}, nil
}

// Render implements Presenter.
func (p *MarkdownPresenter) Render(v View) (*Document, error) {
	doc, err := p.html.Render(v)
	if err != nil {
		return nil, err
	}

	out, err := p.conv.ConvertString(string(doc.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to convert report to markdown: %w", err)
	}

	return &Document{
		Kind:        v.Kind,
		Format:      FormatMarkdown,
		ContentType: "text/markdown; charset=utf-8",
		Title:       Title,
		Body:        []byte(out + "\n"),
	}, nil
}
