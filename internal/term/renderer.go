package term

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
)

// Renderer turns assembled reply text into terminal markdown.
type Renderer struct {
	tr *glamour.TermRenderer
}

// NewRenderer wraps at width. An empty style picks one from the terminal
// background; "notty" gives plain output.
func NewRenderer(width int, style string) (*Renderer, error) {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if style == "" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStylePath(style))
	}
	tr, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	return &Renderer{tr: tr}, nil
}

// Render returns text unchanged if it cannot be rendered.
func (r *Renderer) Render(text string) string {
	if r == nil || r.tr == nil {
		return text
	}
	out, err := r.tr.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(out, "\n")
}
