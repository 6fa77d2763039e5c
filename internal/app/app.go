package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/nhle/taskboard/internal/api"
	"github.com/nhle/taskboard/internal/inbox"
	"github.com/nhle/taskboard/internal/keys"
	"github.com/nhle/taskboard/internal/readstate"
	"github.com/nhle/taskboard/internal/realtime"
	"github.com/nhle/taskboard/internal/respond"
	appsync "github.com/nhle/taskboard/internal/sync"
	"github.com/nhle/taskboard/internal/theme"
	"github.com/nhle/taskboard/internal/ui"
	"github.com/nhle/taskboard/internal/ui/notiflist"
)

// Channel is the part of the realtime client the UI drives.
type Channel interface {
	Connect(ctx context.Context) error
	State() realtime.State
}

// Deps are the sync components the UI reads from and acts through.
type Deps struct {
	Store     *inbox.Store
	Syncer    *appsync.Syncer
	Responder *respond.Coordinator
	Reads     *readstate.Tracker

	// Channel may be nil when live updates are disabled.
	Channel Channel

	UserID string
	Log    *zap.Logger
}

// conflict is the scheduling conflict panel shown after a refused accept.
type conflict struct {
	notificationID string
	title          string
	data           *api.ConflictData
}

// Model is the root Bubble Tea model: the inbox list plus the header,
// notice line, status bar and the help and conflict overlays.
type Model struct {
	deps   Deps
	log    *zap.Logger
	keys   *keys.KeyMap
	layout ui.Layout
	list   notiflist.Model
	help   help.Model

	ready     bool
	showHelp  bool
	live      bool
	unread    int
	notice    string
	noticeErr bool
	authError string
	conflict  *conflict
}

// New creates the root model.
func New(deps Deps) Model {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return Model{
		deps: deps,
		log:  log.Named("ui"),
		keys: keys.DefaultKeyMap(),
		list: notiflist.New(80, 20),
		help: help.New(),
	}
}

// Init renders the cached inbox, starts the first fetch and the channel
// connect, and begins listening for store and sync updates.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.reloadList(),
		waitForChange(m.deps.Store),
		waitForResult(m.deps.Syncer),
		refreshCmd(m.deps.Syncer),
		connectCmd(m.deps.Channel),
		tick(),
	)
}

// Update handles messages and key presses.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		m.help.Width = msg.Width
		m.list.SetSize(m.layout.ContentWidth(), m.layout.ContentHeight())
		return m, nil

	case storeChangedMsg:
		return m, tea.Batch(m.reloadList(), waitForChange(m.deps.Store))

	case listSnapshotMsg:
		m.unread = msg.unread
		cmd := m.list.SetNotifications(msg.items, msg.hasMore)
		return m, cmd

	case syncResultMsg:
		m.handleSyncResult(appsync.Result(msg))
		return m, waitForResult(m.deps.Syncer)

	case markReadDoneMsg:
		if msg.err != nil {
			m.setError(fmt.Sprintf("could not mark read: %v", msg.err))
		}
		return m, nil

	case markAllReadDoneMsg:
		if msg.err != nil {
			m.setError(fmt.Sprintf("could not mark all read: %v", msg.err))
		} else {
			m.setNotice("all notifications marked read")
		}
		return m, nil

	case respondDoneMsg:
		cmd := m.handleResponse(msg)
		return m, cmd

	case connectDoneMsg:
		if msg.err != nil {
			m.setError("live updates unavailable, retrying in the background")
		}
		m.live = msg.err == nil
		return m, nil

	case tickMsg:
		if m.deps.Channel != nil {
			m.live = m.deps.Channel.State() == realtime.StateConnected
		}
		return m, tick()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		return m, nil

	case key.Matches(msg, m.keys.Back):
		m.showHelp = false
		m.conflict = nil
		m.notice = ""
		return m, nil
	}

	if m.conflict != nil {
		// Only a decline or a dismissal makes sense while the panel is up.
		if !key.Matches(msg, m.keys.Decline) {
			return m, nil
		}
		id := m.conflict.notificationID
		m.conflict = nil
		cmd := m.respond(id, respond.DecisionDecline)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.MarkRead):
		if n, ok := m.list.Selected(); ok && !n.IsRead {
			return m, markReadCmd(m.deps.Reads, n.NotificationID)
		}
		return m, nil

	case key.Matches(msg, m.keys.MarkAllRead):
		return m, markAllReadCmd(m.deps.Reads)

	case key.Matches(msg, m.keys.Accept), key.Matches(msg, m.keys.Decline):
		n, ok := m.list.Selected()
		if !ok {
			return m, nil
		}
		decision := respond.DecisionAccept
		if key.Matches(msg, m.keys.Decline) {
			decision = respond.DecisionDecline
		}
		cmd := m.respond(n.NotificationID, decision)
		return m, cmd

	case key.Matches(msg, m.keys.Refresh):
		m.setNotice("refreshing…")
		return m, refreshCmd(m.deps.Syncer)

	case key.Matches(msg, m.keys.LoadMore):
		cmd := m.loadMore()
		return m, cmd

	case key.Matches(msg, m.keys.UnreadOnly):
		cmd := m.list.ToggleUnreadOnly()
		return m, cmd

	case key.Matches(msg, m.keys.Down):
		// Moving past the last row pulls in the next page.
		var loadCmd tea.Cmd
		if m.list.AtEnd() {
			loadCmd = loadMoreCmd(m.deps.Syncer)
		}
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, tea.Batch(cmd, loadCmd)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// respond validates the selection locally so obvious misuse gets a notice
// instead of a round trip, then sends the decision.
func (m *Model) respond(id string, decision respond.Decision) tea.Cmd {
	n, ok := m.deps.Store.Get(id)
	if !ok {
		return nil
	}
	kind, ok := respond.KindFor(n.Type)
	if !ok {
		m.setError("this notification has nothing to answer")
		return nil
	}
	if !n.IsPending() || n.Responded {
		m.setError("already answered")
		return nil
	}
	if m.deps.Responder.InFlight(id) {
		m.setError("response already being sent")
		return nil
	}
	m.setNotice(fmt.Sprintf("sending %s…", decision))
	return tea.Batch(
		m.list.SetSending(id, true),
		respondCmd(m.deps.Responder, id, n.Title, kind, decision),
	)
}

func (m *Model) loadMore() tea.Cmd {
	if !m.deps.Store.Cursor().HasMore {
		m.setNotice("no more notifications")
		return nil
	}
	return loadMoreCmd(m.deps.Syncer)
}

func (m *Model) handleResponse(msg respondDoneMsg) tea.Cmd {
	cmd := m.list.SetSending(msg.id, false)
	switch {
	case msg.err != nil:
		m.log.Warn("invitation response failed", zap.String("notification_id", msg.id), zap.Error(msg.err))
		m.setError(fmt.Sprintf("could not respond: %v", msg.err))
	case msg.result.Outcome == respond.OutcomeConflict:
		m.conflict = &conflict{
			notificationID: msg.id,
			title:          msg.title,
			data:           msg.result.ConflictData,
		}
		m.setError("scheduling conflict")
	default:
		text := msg.result.Message
		if text == "" {
			text = msg.result.Status
		}
		m.setNotice(text)
	}
	return cmd
}

func (m *Model) handleSyncResult(r appsync.Result) {
	switch {
	case r.AuthError:
		m.authError = "session rejected by the server, sign in again"
	case r.Error != nil:
		m.setError(fmt.Sprintf("%s failed: %v", r.Kind, r.Error))
	default:
		m.authError = ""
		if r.Kind == appsync.FetchRefresh && m.notice == "refreshing…" {
			m.notice = ""
		}
	}
}

func (m *Model) setNotice(text string) {
	m.notice = text
	m.noticeErr = false
}

func (m *Model) setError(text string) {
	m.notice = text
	m.noticeErr = true
}

// View renders the full terminal UI.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	title := "Inbox"
	if m.unread > 0 {
		title = fmt.Sprintf("Inbox [%d unread]", m.unread)
	}
	header := m.layout.RenderHeader(title, m.indicators())

	var content string
	switch {
	case m.showHelp:
		content = theme.DetailPanelStyle.Render(m.help.FullHelpView(m.keys.FullHelp()))
	case m.conflict != nil:
		content = m.renderConflict()
	default:
		content = m.list.View()
	}

	notice, isErr := m.notice, m.noticeErr
	if m.authError != "" {
		notice, isErr = m.authError, true
	}

	return m.layout.RenderWithFrame(
		header,
		content,
		m.layout.RenderNotice(notice, isErr),
		m.layout.RenderStatusBar(m.keyHints()),
	)
}

// indicators returns the live channel marker and the fetch state.
func (m Model) indicators() string {
	live := theme.LiveStyle(false).Render("○ offline")
	if m.live {
		live = theme.LiveStyle(true).Render("● live")
	}

	parts := []string{live}
	if m.deps.Syncer != nil {
		switch st := m.deps.Syncer.Status(); st.State {
		case appsync.SyncRunning:
			parts = append(parts, "syncing")
		case appsync.SyncError:
			parts = append(parts, "⚠ sync failed")
		default:
			if !st.LastSync.IsZero() {
				parts = append(parts, "synced "+st.LastSync.Format("15:04"))
			}
		}
	}
	if m.list.UnreadOnly() {
		parts = append(parts, "unread only")
	}
	if m.deps.UserID != "" {
		parts = append(parts, m.deps.UserID)
	}
	return strings.Join(parts, " · ")
}

func (m Model) renderConflict() string {
	c := m.conflict
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n\n", theme.UnreadStyle.Render("Scheduling conflict: "+c.title))
	if c.data != nil {
		if c.data.Message != "" {
			fmt.Fprintf(&b, "%s\n", c.data.Message)
		}
		for _, ev := range c.data.Conflicts {
			line := "• " + ev.Title
			if ev.StartDate != "" {
				line += fmt.Sprintf(" (%s – %s)", ev.StartDate, ev.EndDate)
			}
			fmt.Fprintln(&b, line)
		}
	}
	b.WriteString("\n")
	b.WriteString(theme.HelpStyle.Render("d decline | esc keep pending"))

	return lipgloss.NewStyle().
		Width(m.layout.ContentWidth()).
		Render(theme.DetailPanelStyle.Render(b.String()))
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	switch {
	case m.showHelp:
		return "? close help | esc back"
	case m.conflict != nil:
		return "d decline | esc dismiss"
	}
	return m.help.ShortHelpView(m.keys.ShortHelp())
}
