// Package readstate marks notifications read, locally first and then on
// the server, and applies read updates pushed from other devices.
package readstate

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/taskboard/internal/inbox"
	"github.com/nhle/taskboard/internal/obs"
	"github.com/nhle/taskboard/internal/realtime"
)

// Backend is the server call the tracker needs.
type Backend interface {
	MarkRead(ctx context.Context, notificationID string) error
}

// Tracker owns read-state transitions for one inbox.
type Tracker struct {
	store   *inbox.Store
	backend Backend
	log     *zap.Logger
	metrics *obs.Metrics
	now     func() time.Time
}

// New creates a Tracker.
func New(store *inbox.Store, backend Backend, log *zap.Logger, metrics *obs.Metrics) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = obs.NopMetrics()
	}
	return &Tracker{
		store:   store,
		backend: backend,
		log:     log.Named("readstate"),
		metrics: metrics,
		now:     time.Now,
	}
}

// MarkRead marks id read. Unknown and already-read ids are a no-op with no
// server call. The local change is kept even when the server call fails;
// the error is returned so the caller can retry later.
func (t *Tracker) MarkRead(ctx context.Context, id string) error {
	if !t.store.MarkRead(id, t.now()) {
		t.metrics.MarkRead.WithLabelValues("noop").Inc()
		return nil
	}

	if err := t.backend.MarkRead(ctx, id); err != nil {
		t.metrics.MarkRead.WithLabelValues("error").Inc()
		t.log.Warn("mark read failed", zap.String("notification_id", id), zap.Error(err))
		return fmt.Errorf("marking %s read: %w", id, err)
	}
	t.metrics.MarkRead.WithLabelValues("ok").Inc()
	return nil
}

// MarkAllRead marks every unread notification read and returns the first
// server error, if any. All local changes are applied regardless.
func (t *Tracker) MarkAllRead(ctx context.Context) error {
	var firstErr error
	for _, n := range t.store.List() {
		if n.IsRead {
			continue
		}
		if err := t.MarkRead(ctx, n.NotificationID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ApplyRemote merges a read update pushed by the server. Unknown ids are
// ignored.
func (t *Tracker) ApplyRemote(u realtime.ReadUpdate) {
	t.store.PatchReadState(u.NotificationID, u.IsRead, u.ReadAt)
}
