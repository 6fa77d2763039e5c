// Package notiflist renders the inbox as a navigable list.
package notiflist

import (
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/theme"
)

// Model is the inbox list view component. It holds the last snapshot of
// the store and shows either all of it or only the unread records.
type Model struct {
	list       list.Model
	all        []model.Notification
	sending    map[string]bool
	unreadOnly bool
	hasMore    bool
	width      int
	height     int
}

// New creates an empty list view.
func New(width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height)
	l.Title = "Notifications"
	l.SetShowTitle(false)
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.SetStatusBarItemName("notification", "notifications")
	l.Styles.Title = theme.HeaderStyle

	return Model{
		list:    l,
		sending: make(map[string]bool),
		width:   width,
		height:  height,
	}
}

// SetNotifications replaces the snapshot. The cursor stays on the same
// notification when it is still visible.
func (m *Model) SetNotifications(items []model.Notification, hasMore bool) tea.Cmd {
	m.all = items
	m.hasMore = hasMore
	return m.rebuild()
}

// SetSending flags or clears the in-flight marker of id.
func (m *Model) SetSending(id string, sending bool) tea.Cmd {
	if sending {
		m.sending[id] = true
	} else {
		delete(m.sending, id)
	}
	return m.rebuild()
}

// ToggleUnreadOnly switches between all and unread records.
func (m *Model) ToggleUnreadOnly() tea.Cmd {
	m.unreadOnly = !m.unreadOnly
	return m.rebuild()
}

// UnreadOnly reports whether the unread filter is on.
func (m Model) UnreadOnly() bool {
	return m.unreadOnly
}

// Selected returns the notification under the cursor.
func (m Model) Selected() (model.Notification, bool) {
	it, ok := m.list.SelectedItem().(Item)
	if !ok {
		return model.Notification{}, false
	}
	return it.Notification, true
}

// AtEnd reports whether the cursor is on the last visible row.
func (m Model) AtEnd() bool {
	n := len(m.list.Items())
	return n > 0 && m.list.Index() == n-1
}

// Visible returns the number of rows currently shown.
func (m Model) Visible() int {
	return len(m.list.Items())
}

// Update forwards navigation to the embedded list.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the list, or a hint when it is empty.
func (m Model) View() string {
	if len(m.list.Items()) == 0 {
		return m.renderEmptyState()
	}
	return m.list.View()
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height)
}

func (m *Model) rebuild() tea.Cmd {
	selectedID := ""
	if n, ok := m.Selected(); ok {
		selectedID = n.NotificationID
	}

	items := make([]list.Item, 0, len(m.all))
	cursor := 0
	for _, n := range m.all {
		if m.unreadOnly && n.IsRead && n.NotificationID != selectedID {
			continue
		}
		if n.NotificationID == selectedID {
			cursor = len(items)
		}
		items = append(items, Item{Notification: n, Sending: m.sending[n.NotificationID]})
	}

	cmd := m.list.SetItems(items)
	if len(items) > 0 {
		m.list.Select(cursor)
	}
	return cmd
}

func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	switch {
	case m.unreadOnly && len(m.all) > 0:
		return style.Render("All caught up.\nPress u to show read notifications.")
	case m.hasMore:
		return style.Render("No notifications loaded.\nPress m to load more.")
	}
	return style.Render("No notifications yet.")
}
