package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	gosync "sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/obs"
	"github.com/nhle/taskboard/internal/testutil"
)

const waitFor = 2 * time.Second

type recorder struct {
	mu        gosync.Mutex
	notes     []model.Notification
	readState []bool
	updates   []ReadUpdate
	states    []State
}

func (r *recorder) OnNotification(n model.Notification, hasReadState bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
	r.readState = append(r.readState, hasReadState)
}

func (r *recorder) OnNotificationUpdated(u ReadUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recorder) OnStateChange(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) noteCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notes)
}

func (r *recorder) updateCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates)
}

func (r *recorder) stateLog() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

type panicker struct{ recorder }

func (p *panicker) OnNotification(model.Notification, bool) { panic("listener bug") }

func newTestClient(t *testing.T, url string, metrics *obs.Metrics) *Client {
	t.Helper()
	c := NewClient(Config{
		URL:            url,
		UserID:         "u1",
		Token:          "tok",
		ConnectTimeout: time.Second,
		ReuseTimeout:   time.Second,
		MinBackoff:     10 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
	}, zaptest.NewLogger(t), metrics)
	t.Cleanup(c.Disconnect)
	return c
}

func connected(t *testing.T, b *testutil.Backend, metrics *obs.Metrics) (*Client, *recorder) {
	t.Helper()
	c := newTestClient(t, b.WSURL(), metrics)
	rec := &recorder{}
	c.Subscribe(rec)
	require.NoError(t, c.Connect(context.Background()))
	require.True(t, b.WaitRegistrations(1, waitFor))
	return c, rec
}

func TestConnect_RegistersUser(t *testing.T) {
	b := testutil.NewBackend(t)
	c, rec := connected(t, b, nil)

	assert.Equal(t, StateConnected, c.State())
	assert.Equal(t, []string{"u1"}, b.Registrations())

	hs := b.Handshakes()
	require.Len(t, hs, 1)
	assert.Equal(t, "u1", hs[0].UserID)
	assert.Equal(t, "Bearer tok", hs[0].Authorization)
	assert.Equal(t, []State{StateConnected}, rec.stateLog())
}

func TestConnect_Idempotent(t *testing.T) {
	b := testutil.NewBackend(t)
	c, _ := connected(t, b, nil)

	var wg gosync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.Connect(context.Background()))
		}()
	}
	wg.Wait()

	assert.Len(t, b.Handshakes(), 1)
	assert.Equal(t, 1, c.Connects())
}

func TestNewNotification_Dispatched(t *testing.T) {
	b := testutil.NewBackend(t)
	_, rec := connected(t, b, nil)

	b.Push(EventNewNotification, map[string]interface{}{
		"notificationId": "n1",
		"type":           "event_invitation",
		"title":          "Dinner",
	})
	b.Push(EventNewNotification, map[string]interface{}{
		"notificationId": "n2",
		"type":           "task_assigned",
		"isRead":         true,
	})

	require.Eventually(t, func() bool { return rec.noteCount() == 2 }, waitFor, 5*time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, "n1", rec.notes[0].NotificationID)
	assert.Equal(t, model.TypeEventInvitation, rec.notes[0].Type)
	assert.False(t, rec.notes[0].IsRead)
	assert.Equal(t, []bool{false, true}, rec.readState)
}

func TestNotificationUpdated_Dispatched(t *testing.T) {
	b := testutil.NewBackend(t)
	_, rec := connected(t, b, nil)

	b.Push(EventNotificationUpdated, map[string]interface{}{"notificationId": "n1", "isRead": true})

	require.Eventually(t, func() bool { return rec.updateCount() == 1 }, waitFor, 5*time.Millisecond)
	rec.mu.Lock()
	assert.Equal(t, ReadUpdate{NotificationID: "n1", IsRead: true}, rec.updates[0])
	rec.mu.Unlock()
}

func TestMalformedAndUnknownFramesDropped(t *testing.T) {
	b := testutil.NewBackend(t)
	_, rec := connected(t, b, nil)

	b.PushRaw([]byte("not json"))
	b.PushRaw([]byte(`{"event":"new_notification","data":"oops"}`))
	b.PushRaw([]byte(`{"event":"new_notification","data":{"title":"no id"}}`))
	b.Push("user_typing", map[string]string{"userId": "u2"})
	b.Push(EventNewNotification, map[string]string{"notificationId": "ok"})

	require.Eventually(t, func() bool { return rec.noteCount() == 1 }, waitFor, 5*time.Millisecond)
	rec.mu.Lock()
	assert.Equal(t, "ok", rec.notes[0].NotificationID)
	rec.mu.Unlock()
}

func TestDuplicateFramesDropped(t *testing.T) {
	metrics := obs.NewMetrics(prometheus.NewRegistry())
	b := testutil.NewBackend(t)
	_, rec := connected(t, b, metrics)

	frame := []byte(`{"event":"new_notification","data":{"notificationId":"n1"}}`)
	b.PushRaw(frame)
	b.PushRaw(frame)
	b.Push(EventNewNotification, map[string]string{"notificationId": "n2"})

	require.Eventually(t, func() bool { return rec.noteCount() == 2 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.RealtimeDuplicates))
	assert.Equal(t, 2.0, promtest.ToFloat64(metrics.RealtimeEvents.WithLabelValues(EventNewNotification)))
}

func TestReconnect_ReRegisters(t *testing.T) {
	metrics := obs.NewMetrics(prometheus.NewRegistry())
	b := testutil.NewBackend(t)
	c, rec := connected(t, b, metrics)

	b.DropConnections()
	require.True(t, b.WaitRegistrations(2, waitFor))
	require.Eventually(t, func() bool { return len(rec.stateLog()) == 3 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, 2, c.Connects())

	assert.Equal(t, []string{"u1", "u1"}, b.Registrations())
	assert.Equal(t, []State{StateConnected, StateDisconnected, StateConnected}, rec.stateLog())
	assert.Equal(t, 2.0, promtest.ToFloat64(metrics.RealtimeConnects))

	// One subscription keeps delivering exactly once after the reconnect.
	b.Push(EventNewNotification, map[string]string{"notificationId": "after"})
	require.Eventually(t, func() bool { return rec.noteCount() == 1 }, waitFor, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, rec.noteCount())
}

func TestConnect_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	c := NewClient(Config{
		URL:            "ws" + strings.TrimPrefix(srv.URL, "http"),
		UserID:         "u1",
		ConnectTimeout: 100 * time.Millisecond,
		ReuseTimeout:   50 * time.Millisecond,
		MinBackoff:     10 * time.Millisecond,
		MaxBackoff:     20 * time.Millisecond,
	}, zaptest.NewLogger(t), nil)
	t.Cleanup(c.Disconnect)

	start := time.Now()
	err := c.Connect(context.Background())
	assert.ErrorIs(t, err, ErrConnectTimeout)
	assert.Less(t, time.Since(start), time.Second)

	// The loop is still running, so a second caller takes the reuse path.
	start = time.Now()
	assert.ErrorIs(t, c.Connect(context.Background()), ErrConnectTimeout)
	assert.Less(t, time.Since(start), 100*time.Millisecond+50*time.Millisecond)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestConnect_ContextCancelled(t *testing.T) {
	c := newTestClient(t, "ws://127.0.0.1:1/ws", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Connect(ctx), context.Canceled)
}

func TestListenerPanicRecovered(t *testing.T) {
	b := testutil.NewBackend(t)
	c := newTestClient(t, b.WSURL(), nil)
	c.Subscribe(&panicker{})
	rec := &recorder{}
	c.Subscribe(rec)
	require.NoError(t, c.Connect(context.Background()))
	require.True(t, b.WaitRegistrations(1, waitFor))

	b.Push(EventNewNotification, map[string]string{"notificationId": "n1"})
	b.Push(EventNewNotification, map[string]string{"notificationId": "n2"})

	require.Eventually(t, func() bool { return rec.noteCount() == 2 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, StateConnected, c.State())
}

func TestUnsubscribe(t *testing.T) {
	b := testutil.NewBackend(t)
	c, rec := connected(t, b, nil)

	other := &recorder{}
	unsubscribe := c.Subscribe(other)
	unsubscribe()
	unsubscribe()

	b.Push(EventNewNotification, map[string]string{"notificationId": "n1"})
	require.Eventually(t, func() bool { return rec.noteCount() == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, 0, other.noteCount())
}

func TestDisconnect_ThenConnectStartsFresh(t *testing.T) {
	b := testutil.NewBackend(t)
	c, rec := connected(t, b, nil)

	frame := []byte(`{"event":"new_notification","data":{"notificationId":"n1"}}`)
	b.PushRaw(frame)
	require.Eventually(t, func() bool { return rec.noteCount() == 1 }, waitFor, 5*time.Millisecond)

	c.Disconnect()
	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, []State{StateConnected, StateDisconnected}, rec.stateLog())
	require.Eventually(t, func() bool { return b.OpenConnections() == 0 }, waitFor, 5*time.Millisecond)

	require.NoError(t, c.Connect(context.Background()))
	require.True(t, b.WaitRegistrations(2, waitFor))
	assert.Len(t, b.Handshakes(), 2)

	// The dedupe window was cleared, so a repeated frame is delivered again.
	b.PushRaw(frame)
	require.Eventually(t, func() bool { return rec.noteCount() == 2 }, waitFor, 5*time.Millisecond)
}

func TestDedupeWindow_Evicts(t *testing.T) {
	w := newDedupeWindow(2)
	assert.False(t, w.seen([]byte("a")))
	assert.False(t, w.seen([]byte("b")))
	assert.True(t, w.seen([]byte("a")))
	assert.False(t, w.seen([]byte("c")))
	assert.False(t, w.seen([]byte("a")), "oldest digest was evicted")
}

func TestClamp(t *testing.T) {
	assert.Equal(t, time.Second, clamp(10*time.Millisecond, time.Second, 5*time.Second))
	assert.Equal(t, 5*time.Second, clamp(time.Minute, time.Second, 5*time.Second))
	assert.Equal(t, 2*time.Second, clamp(2*time.Second, time.Second, 5*time.Second))
}
