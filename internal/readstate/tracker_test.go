package readstate

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nhle/taskboard/internal/api"
	"github.com/nhle/taskboard/internal/inbox"
	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/obs"
	"github.com/nhle/taskboard/internal/realtime"
	"github.com/nhle/taskboard/internal/testutil"
)

type failingBackend struct{ calls int }

func (f *failingBackend) MarkRead(context.Context, string) error {
	f.calls++
	return errors.New("network down")
}

func newStore(t *testing.T, list ...model.Notification) *inbox.Store {
	t.Helper()
	s := inbox.New(inbox.Config{PageSize: 20}, nil, zaptest.NewLogger(t), nil)
	s.ReplaceAll(list, 0)
	return s
}

func TestMarkRead_Idempotent(t *testing.T) {
	b := testutil.NewBackend(t)
	s := newStore(t, model.Notification{NotificationID: "n2"})
	metrics := obs.NewMetrics(prometheus.NewRegistry())
	tr := New(s, api.NewClient(b.APIURL(), "tok", "", time.Second), zaptest.NewLogger(t), metrics)

	require.NoError(t, tr.MarkRead(context.Background(), "n2"))
	first, _ := s.Get("n2")
	require.True(t, first.IsRead)
	require.NotNil(t, first.ReadAt)

	require.NoError(t, tr.MarkRead(context.Background(), "n2"))
	second, _ := s.Get("n2")
	assert.True(t, first.ReadAt.Equal(*second.ReadAt))

	assert.Equal(t, 1, b.MarkReads("n2"))
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.MarkRead.WithLabelValues("ok")))
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.MarkRead.WithLabelValues("noop")))
}

func TestMarkRead_UnknownID(t *testing.T) {
	fb := &failingBackend{}
	tr := New(newStore(t), fb, zaptest.NewLogger(t), nil)

	assert.NoError(t, tr.MarkRead(context.Background(), "ghost"))
	assert.Zero(t, fb.calls)
}

func TestMarkRead_FailureKeepsLocalState(t *testing.T) {
	fb := &failingBackend{}
	s := newStore(t, model.Notification{NotificationID: "n1"})
	tr := New(s, fb, zaptest.NewLogger(t), nil)

	err := tr.MarkRead(context.Background(), "n1")
	require.Error(t, err)

	n, _ := s.Get("n1")
	assert.True(t, n.IsRead)
	assert.NotNil(t, n.ReadAt)
	assert.Equal(t, 1, fb.calls)
}

func TestMarkRead_ServerRejects(t *testing.T) {
	srv := testutil.NewBackend(t)
	s := newStore(t, model.Notification{NotificationID: "n1"})
	client := api.NewClient(srv.APIURL()+"/missing", "tok", "", time.Second)
	tr := New(s, client, zaptest.NewLogger(t), nil)

	err := tr.MarkRead(context.Background(), "n1")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, api.StatusCode(err))
}

func TestMarkAllRead(t *testing.T) {
	b := testutil.NewBackend(t)
	s := newStore(t,
		model.Notification{NotificationID: "a"},
		model.Notification{NotificationID: "b", IsRead: true},
		model.Notification{NotificationID: "c"},
	)
	tr := New(s, api.NewClient(b.APIURL(), "tok", "", time.Second), zaptest.NewLogger(t), nil)

	require.NoError(t, tr.MarkAllRead(context.Background()))
	assert.Zero(t, s.UnreadCount())
	assert.Equal(t, 1, b.MarkReads("a"))
	assert.Zero(t, b.MarkReads("b"))
	assert.Equal(t, 1, b.MarkReads("c"))
}

func TestApplyRemote(t *testing.T) {
	s := newStore(t, model.Notification{NotificationID: "n1"})
	tr := New(s, &failingBackend{}, zaptest.NewLogger(t), nil)

	tr.ApplyRemote(realtime.ReadUpdate{NotificationID: "n1", IsRead: true})
	n, _ := s.Get("n1")
	assert.True(t, n.IsRead)
	assert.NotNil(t, n.ReadAt)

	tr.ApplyRemote(realtime.ReadUpdate{NotificationID: "n1", IsRead: false})
	n, _ = s.Get("n1")
	assert.False(t, n.IsRead)
	assert.Nil(t, n.ReadAt)

	assert.NotPanics(t, func() {
		tr.ApplyRemote(realtime.ReadUpdate{NotificationID: "ghost", IsRead: true})
	})
}
