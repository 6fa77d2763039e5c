package notiflist

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/theme"
)

// Item wraps a model.Notification so it can be used in a bubbles/list.
type Item struct {
	Notification model.Notification

	// Sending is true while an invitation response is in flight.
	Sending bool
}

// FilterValue returns the string used for fuzzy filtering.
func (i Item) FilterValue() string { return i.Notification.Title }

// Title returns the notification title.
func (i Item) Title() string { return i.Notification.Title }

// Description returns the type label, response status and age.
func (i Item) Description() string {
	parts := []string{i.Notification.Type.Label()}
	if s := responseLabel(i.Notification); s != "" {
		parts = append(parts, s)
	}
	parts = append(parts, relativeTime(i.Notification.CreatedAt, time.Now()))
	return strings.Join(parts, " | ")
}

// ItemDelegate implements list.ItemDelegate for inbox rows.
type ItemDelegate struct {
	now func() time.Time
}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws one row: read marker, family badge, title, response status
// and age.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(Item)
	if !ok {
		return
	}
	fmt.Fprint(w, d.renderLine(it, index == m.Index()))
}

func (d ItemDelegate) renderLine(it Item, selected bool) string {
	n := it.Notification
	now := time.Now
	if d.now != nil {
		now = d.now
	}

	marker := "○"
	titleStyle := theme.ReadStyle
	if !n.IsRead {
		marker = "●"
		titleStyle = theme.UnreadStyle
	}

	family := string(n.Type.Family())
	badge := theme.FamilyStyle(family).Render(strings.ToUpper(family)[:min(3, len(family))])

	status := ""
	if s := responseLabel(n); s != "" {
		status = " " + theme.ResponseStyle(s).Render(s)
	}
	if it.Sending {
		status += lipgloss.NewStyle().Foreground(theme.ColorYellow).Render(" …")
	}

	age := lipgloss.NewStyle().
		Foreground(theme.ColorGray).
		Render(relativeTime(n.CreatedAt, now()))

	line := fmt.Sprintf("%s %s %s%s  %s", marker, badge, titleStyle.Render(n.Title), status, age)
	if selected {
		return theme.SelectedItemStyle.Render(line)
	}
	return theme.ListItemStyle.Render(line)
}

// responseLabel returns the displayed invitation status, or "" for types
// that carry none.
func responseLabel(n model.Notification) string {
	switch {
	case n.Type.UsesInvitationResponse():
		if n.InvitationResponse.IsPending() {
			return string(model.InvitationPending)
		}
		return string(n.InvitationResponse)
	case n.Type.UsesResponseStatus():
		if n.ResponseStatus.IsPending() {
			return string(model.ResponsePending)
		}
		return string(n.ResponseStatus)
	}
	return ""
}

// relativeTime returns a human-friendly age of t measured at now.
func relativeTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return fmt.Sprintf("%dw ago", int(d.Hours()/24/7))
	}
}
