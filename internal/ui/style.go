// internal/ui/style.go
package ui

import "github.com/charmbracelet/lipgloss"

// Palette holds the colors used across the screen.
type Palette struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Success   lipgloss.Color
	Warning   lipgloss.Color
	Error     lipgloss.Color
	Text      lipgloss.Color
	TextMuted lipgloss.Color
}

// DefaultPalette returns the default color scheme.
func DefaultPalette() Palette {
	return Palette{
		Primary:   lipgloss.Color("#7C3AED"),
		Secondary: lipgloss.Color("#06B6D4"),
		Success:   lipgloss.Color("#22C55E"),
		Warning:   lipgloss.Color("#EAB308"),
		Error:     lipgloss.Color("#EF4444"),
		Text:      lipgloss.Color("#E5E7EB"),
		TextMuted: lipgloss.Color("#6B7280"),
	}
}

// Styles collects the lipgloss styles for the clicker screen.
type Styles struct {
	Header      lipgloss.Style
	Title       lipgloss.Style
	Wallet      lipgloss.Style
	Counter     lipgloss.Style
	CounterBig  lipgloss.Style
	Pending     lipgloss.Style
	Panel       lipgloss.Style
	PanelTitle  lipgloss.Style
	Leaderboard lipgloss.Style
	RankSelf    lipgloss.Style
	Success     lipgloss.Style
	Warning     lipgloss.Style
	Error       lipgloss.Style
	Info        lipgloss.Style
	Muted       lipgloss.Style
	Frozen      lipgloss.Style
	Help        lipgloss.Style
}

// NewStyles creates the screen styles from a palette.
func NewStyles(p Palette) Styles {
	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(p.Secondary).
		Padding(0, 2)

	return Styles{
		Header: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(p.Primary).
			Padding(0, 2),
		Title: lipgloss.NewStyle().
			Foreground(p.Primary).
			Bold(true),
		Wallet: lipgloss.NewStyle().
			Foreground(p.TextMuted),
		Counter: lipgloss.NewStyle().
			Foreground(p.Text),
		CounterBig: lipgloss.NewStyle().
			Foreground(p.Secondary).
			Bold(true),
		Pending: lipgloss.NewStyle().
			Foreground(p.Warning).
			Bold(true),
		Panel:      panel,
		PanelTitle: lipgloss.NewStyle().Foreground(p.Secondary).Bold(true),
		Leaderboard: lipgloss.NewStyle().
			Foreground(p.Text),
		RankSelf: lipgloss.NewStyle().
			Foreground(p.Success).
			Bold(true),
		Success: lipgloss.NewStyle().Foreground(p.Success).Bold(true),
		Warning: lipgloss.NewStyle().Foreground(p.Warning).Bold(true),
		Error:   lipgloss.NewStyle().Foreground(p.Error).Bold(true),
		Info:    lipgloss.NewStyle().Foreground(p.Secondary),
		Muted:   lipgloss.NewStyle().Foreground(p.TextMuted),
		Frozen: lipgloss.NewStyle().
			Foreground(p.Warning).
			Bold(true).
			Border(lipgloss.DoubleBorder()).
			BorderForeground(p.Warning).
			Padding(0, 2),
		Help: lipgloss.NewStyle().Foreground(p.TextMuted),
	}
}
