// Package term is the terminal presentation of the companion: markdown
// rendering, toasts and the live chat transcript.
package term

import "github.com/charmbracelet/lipgloss"

var (
	Primary     = lipgloss.Color("#8B5CF6")
	Accent      = lipgloss.Color("#EC4899")
	Muted       = lipgloss.Color("#94A3B8")
	Destructive = lipgloss.Color("#EF4444")
	Success     = lipgloss.Color("#22C55E")
)

type Styles struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Muted     lipgloss.Style
	Label     lipgloss.Style
	Speaker   lipgloss.Style
	Error     lipgloss.Style
	Toast     lipgloss.Style
	ToastHead lipgloss.Style
}

func DefaultStyles() Styles {
	return Styles{
		Title: lipgloss.NewStyle().
			Foreground(Primary).
			Bold(true),

		Subtitle: lipgloss.NewStyle().
			Foreground(Muted).
			Italic(true),

		Muted: lipgloss.NewStyle().
			Foreground(Muted),

		Label: lipgloss.NewStyle().
			Foreground(Accent).
			Bold(true),

		Speaker: lipgloss.NewStyle().
			Foreground(Primary).
			Bold(true),

		Error: lipgloss.NewStyle().
			Foreground(Destructive).
			Bold(true),

		Toast: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Accent).
			Padding(0, 1),

		ToastHead: lipgloss.NewStyle().
			Foreground(Accent).
			Bold(true),
	}
}
