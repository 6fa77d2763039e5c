package app

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/taskboard/internal/inbox"
	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/readstate"
	"github.com/nhle/taskboard/internal/respond"
	appsync "github.com/nhle/taskboard/internal/sync"
)

// connectTimeout bounds the first channel connect started from Init.
const connectTimeout = 15 * time.Second

// tickInterval is how often the live indicator is re-read.
const tickInterval = time.Second

// storeChangedMsg is sent when the inbox store signals a mutation.
type storeChangedMsg struct{}

// listSnapshotMsg carries a copy of the store for rendering.
type listSnapshotMsg struct {
	items   []model.Notification
	hasMore bool
	unread  int
}

// syncResultMsg wraps a fetch outcome published by the syncer.
type syncResultMsg appsync.Result

type markReadDoneMsg struct {
	id  string
	err error
}

type markAllReadDoneMsg struct {
	err error
}

type respondDoneMsg struct {
	id     string
	title  string
	result respond.Result
	err    error
}

type connectDoneMsg struct {
	err error
}

type tickMsg time.Time

// reloadList snapshots the store.
func (m Model) reloadList() tea.Cmd {
	s := m.deps.Store
	return func() tea.Msg {
		return listSnapshotMsg{
			items:   s.List(),
			hasMore: s.Cursor().HasMore,
			unread:  s.UnreadCount(),
		}
	}
}

// waitForChange blocks until the store reports a mutation.
func waitForChange(s *inbox.Store) tea.Cmd {
	if s == nil {
		return nil
	}
	ch := s.Changes()
	return func() tea.Msg {
		<-ch
		return storeChangedMsg{}
	}
}

// waitForResult blocks until the syncer publishes a fetch outcome.
func waitForResult(s *appsync.Syncer) tea.Cmd {
	if s == nil {
		return nil
	}
	ch := s.Results()
	return func() tea.Msg {
		r, ok := <-ch
		if !ok {
			return nil
		}
		return syncResultMsg(r)
	}
}

// refreshCmd runs a full fetch; its outcome arrives through Results.
func refreshCmd(s *appsync.Syncer) tea.Cmd {
	if s == nil {
		return nil
	}
	return func() tea.Msg {
		_ = s.Refresh(context.Background())
		return nil
	}
}

// loadMoreCmd fetches the next page; its outcome arrives through Results.
func loadMoreCmd(s *appsync.Syncer) tea.Cmd {
	if s == nil {
		return nil
	}
	return func() tea.Msg {
		_ = s.LoadMore(context.Background())
		return nil
	}
}

func markReadCmd(t *readstate.Tracker, id string) tea.Cmd {
	return func() tea.Msg {
		return markReadDoneMsg{id: id, err: t.MarkRead(context.Background(), id)}
	}
}

func markAllReadCmd(t *readstate.Tracker) tea.Cmd {
	return func() tea.Msg {
		return markAllReadDoneMsg{err: t.MarkAllRead(context.Background())}
	}
}

func respondCmd(c *respond.Coordinator, id, title string, kind respond.Kind, d respond.Decision) tea.Cmd {
	return func() tea.Msg {
		res, err := c.Respond(context.Background(), id, kind, d)
		return respondDoneMsg{id: id, title: title, result: res, err: err}
	}
}

func connectCmd(ch Channel) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		return connectDoneMsg{err: ch.Connect(ctx)}
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
