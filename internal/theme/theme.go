package theme

import "github.com/charmbracelet/lipgloss"

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue    = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen   = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow  = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed     = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorMagenta = lipgloss.AdaptiveColor{Dark: "#CC5DE8", Light: "#805AD5"}
	ColorGray    = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite   = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorSubtle  = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#CBD5E0"}
	ColorBorder  = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// HeaderStyle is used for the application title bar.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorBlue).
	Padding(0, 1)

// StatusBarStyle is used for the bottom status bar.
var StatusBarStyle = lipgloss.NewStyle().
	Foreground(ColorWhite).
	Background(ColorSubtle).
	Padding(0, 1)

// DetailPanelStyle wraps the conflict and detail panels.
var DetailPanelStyle = lipgloss.NewStyle().
	Padding(1, 2).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBorder)

// UnreadStyle marks unread titles.
var UnreadStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorWhite)

// ReadStyle dims read titles.
var ReadStyle = lipgloss.NewStyle().Foreground(ColorGray)

// HelpStyle is used for keyboard shortcut hints and help text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Italic(true)

// ErrorStyle is used for transient error messages.
var ErrorStyle = lipgloss.NewStyle().Foreground(ColorRed).Bold(true)

// LiveStyle returns the style of the connection indicator.
func LiveStyle(connected bool) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)
	if connected {
		return base.Foreground(ColorGreen)
	}
	return base.Foreground(ColorRed)
}

// ResponseStyle returns a color-coded style for an invitation status.
func ResponseStyle(status string) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)

	switch status {
	case "", "pending":
		return base.Foreground(ColorYellow)
	case "accepted":
		return base.Foreground(ColorGreen)
	case "declined":
		return base.Foreground(ColorRed)
	case "removed", "event_deleted":
		return base.Foreground(ColorGray).Strikethrough(true)
	default:
		return base.Foreground(ColorGray)
	}
}

// FamilyStyle returns a color-coded style for a notification family label.
func FamilyStyle(family string) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)

	switch family {
	case "event":
		return base.Foreground(ColorMagenta)
	case "workspace", "board":
		return base.Foreground(ColorBlue)
	case "task", "list":
		return base.Foreground(ColorGreen)
	default:
		return base.Foreground(ColorGray)
	}
}

// ListItemStyle is the base style of an inbox row.
var ListItemStyle = lipgloss.NewStyle().PaddingLeft(2)

// SelectedItemStyle highlights the row under the cursor.
var SelectedItemStyle = lipgloss.NewStyle().
	PaddingLeft(1).
	Border(lipgloss.NormalBorder(), false, false, false, true).
	BorderForeground(ColorBlue).
	Foreground(ColorBlue)

// NoticeStyle renders one-line informational messages.
var NoticeStyle = lipgloss.NewStyle().Foreground(ColorGreen)
