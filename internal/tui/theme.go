package tui

import "github.com/charmbracelet/lipgloss"

// Theme groups the colors and styles of the AyudaPO screen.
type Theme struct {
	Brand   lipgloss.Color
	User    lipgloss.Color
	Warning lipgloss.Color
	Danger  lipgloss.Color
	Muted   lipgloss.Color
	Text    lipgloss.Color
	Dim     lipgloss.Color
	Surface lipgloss.Color
	Border  lipgloss.Color

	TitleStyle       lipgloss.Style
	ActiveTabStyle   lipgloss.Style
	InactiveTabStyle lipgloss.Style
	StatusBarStyle   lipgloss.Style
	SidebarStyle     lipgloss.Style
	InputStyle       lipgloss.Style
	ErrorStyle       lipgloss.Style
	MutedStyle       lipgloss.Style
	UserStyle        lipgloss.Style
	SelectedStyle    lipgloss.Style
	LogWarnStyle     lipgloss.Style
	LogErrorStyle    lipgloss.Style
}

// DarkTheme is the only theme; the chat panel is rendered by glamour's dark style too.
func DarkTheme() Theme {
	t := Theme{
		Brand:   lipgloss.Color("#2563EB"),
		User:    lipgloss.Color("#14B8A6"),
		Warning: lipgloss.Color("#EAB308"),
		Danger:  lipgloss.Color("#DC2626"),
		Muted:   lipgloss.Color("#64748B"),
		Text:    lipgloss.Color("#E2E8F0"),
		Dim:     lipgloss.Color("#94A3B8"),
		Surface: lipgloss.Color("#1E293B"),
		Border:  lipgloss.Color("#334155"),
	}

	t.TitleStyle = lipgloss.NewStyle().Foreground(t.Brand).Bold(true)
	t.ActiveTabStyle = lipgloss.NewStyle().
		Foreground(t.Text).
		Background(t.Brand).
		Padding(0, 2).
		Bold(true)
	t.InactiveTabStyle = lipgloss.NewStyle().Foreground(t.Dim).Padding(0, 2)
	t.StatusBarStyle = lipgloss.NewStyle().Foreground(t.Dim).Background(lipgloss.Color("#0F172A"))
	t.SidebarStyle = lipgloss.NewStyle().
		Foreground(t.Text).
		BorderLeft(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(t.Border)
	t.InputStyle = lipgloss.NewStyle().
		Foreground(t.Text).
		BorderTop(true).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(t.Border)
	t.ErrorStyle = lipgloss.NewStyle().Foreground(t.Danger).Bold(true)
	t.MutedStyle = lipgloss.NewStyle().Foreground(t.Muted)
	t.UserStyle = lipgloss.NewStyle().Foreground(t.User).Bold(true)
	t.SelectedStyle = lipgloss.NewStyle().Foreground(t.Text).Background(t.Surface).Bold(true)
	t.LogWarnStyle = lipgloss.NewStyle().Foreground(t.Warning)
	t.LogErrorStyle = lipgloss.NewStyle().Foreground(t.Danger)
	return t
}
