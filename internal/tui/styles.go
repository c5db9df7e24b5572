package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Palette shared by the watcher views
var (
	accent  = lipgloss.AdaptiveColor{Light: "#6D28D9", Dark: "#7C3AED"}
	info    = lipgloss.AdaptiveColor{Light: "#0891B2", Dark: "#06B6D4"}
	good    = lipgloss.Color("#10B981")
	warn    = lipgloss.Color("#F59E0B")
	bad     = lipgloss.Color("#EF4444")
	subtle  = lipgloss.AdaptiveColor{Light: "#94A3B8", Dark: "#64748B"}
	body    = lipgloss.AdaptiveColor{Light: "#334155", Dark: "#CBD5E1"}
	barFill = lipgloss.AdaptiveColor{Light: "#E2E8F0", Dark: "#1E293B"}
)

var (
	TextNormal = lipgloss.NewStyle().Foreground(body)
	TextMuted  = lipgloss.NewStyle().Foreground(subtle)

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#F8FAFC")).
			Background(accent).
			Padding(0, 2).
			MarginBottom(1)

	CardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(subtle).
			Padding(0, 1)

	CardTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(info)

	HelpKeyStyle = lipgloss.NewStyle().Bold(true).Foreground(info)
	HelpStyle    = lipgloss.NewStyle().Foreground(subtle)
	HelpBarStyle = lipgloss.NewStyle().
			Foreground(subtle).
			Background(barFill).
			Padding(0, 2)

	SuccessStyle = lipgloss.NewStyle().Foreground(good)
	ErrorStyle   = lipgloss.NewStyle().Foreground(bad)
	WarningStyle = lipgloss.NewStyle().Foreground(warn)
	SpinnerStyle = lipgloss.NewStyle().Foreground(accent)
)

// RenderHelp renders one "key action" hint for the help bar
func RenderHelp(key, desc string) string {
	return HelpKeyStyle.Render(key) + HelpStyle.Render(" "+desc)
}

// StatusIcon renders a colored dot for a connection state
func StatusIcon(state string) string {
	dot := lipgloss.NewStyle().SetString("●")
	switch state {
	case "connected":
		return dot.Foreground(good).String()
	case "disconnected":
		return dot.Foreground(bad).String()
	default:
		return dot.Foreground(warn).String()
	}
}

// Truncate shortens s to max runes, marking the cut with "..."
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
