package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// Renderer turns a bot reply into terminal output.
type Renderer func(string) (string, error)

// Plain returns replies untouched.
func Plain(s string) (string, error) { return s, nil }

// NewRenderer returns a markdown renderer wrapping at width columns.
// It falls back to Plain when glamour cannot be initialized.
func NewRenderer(width int) Renderer {
	opts := []glamour.TermRendererOption{glamour.WithAutoStyle()}
	if width > 0 {
		opts = append(opts, glamour.WithWordWrap(width))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return Plain
	}
	return func(markdown string) (string, error) {
		out, err := r.Render(markdown)
		if err != nil {
			return markdown, err
		}
		return strings.TrimSpace(out), nil
	}
}
