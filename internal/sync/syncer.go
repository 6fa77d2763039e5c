// Package sync keeps the inbox store aligned with the server: full and
// paged fetches, batched consistency refreshes, optional polling, and the
// realtime listener that feeds pushed events into the store.
package sync

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/taskboard/internal/api"
	"github.com/nhle/taskboard/internal/inbox"
	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/obs"
	"github.com/nhle/taskboard/internal/realtime"
)

// SyncState represents the current state of the fetch side.
type SyncState int

const (
	SyncIdle    SyncState = iota
	SyncRunning
	SyncError
)

func (s SyncState) String() string {
	switch s {
	case SyncRunning:
		return "running"
	case SyncError:
		return "error"
	default:
		return "idle"
	}
}

// SyncStatus is a snapshot of fetch and channel health.
type SyncStatus struct {
	State     SyncState
	LastSync  time.Time
	Error     error
	Connected bool
}

// FetchKind names the operation that produced a Result.
type FetchKind string

const (
	FetchRefresh  FetchKind = "refresh"
	FetchLoadMore FetchKind = "load_more"
)

// Result is published after every fetch.
type Result struct {
	Kind      FetchKind
	Count     int
	Error     error
	AuthError bool
}

// Fetcher is the REST call the Syncer needs.
type Fetcher interface {
	FetchNotifications(ctx context.Context, offset, limit int) (*api.NotificationPage, error)
}

// ReadApplier applies pushed read updates; see readstate.Tracker.
type ReadApplier interface {
	ApplyRemote(u realtime.ReadUpdate)
}

// Subscriber is the realtime channel's observer registration.
type Subscriber interface {
	Subscribe(l realtime.Listener) (unsubscribe func())
}

// fetchTimeout is the maximum time allowed for a single fetch operation.
const fetchTimeout = 30 * time.Second

// Config controls fetch paging and scheduling.
type Config struct {
	PageSize int

	// RefreshDelay batches RequestRefresh calls; zero refreshes at once.
	RefreshDelay time.Duration

	// PollInterval enables periodic refreshes when positive.
	PollInterval time.Duration

	// RefreshOnReconnect refreshes after the channel comes back.
	RefreshOnReconnect bool
}

// Syncer orchestrates fetches into an inbox.Store and implements
// realtime.Listener.
type Syncer struct {
	store   *inbox.Store
	fetcher Fetcher
	reads   ReadApplier
	cfg     Config
	log     *zap.Logger
	metrics *obs.Metrics

	resultCh chan Result

	mu           gosync.Mutex
	status       SyncStatus
	seenConnect  bool
	refreshTimer *time.Timer
	stopCh       chan struct{}
	running      bool
	closed       bool
	unsubscribe  func()
	wg           gosync.WaitGroup
}

// New creates a Syncer. reads may be nil, in which case pushed read
// updates go straight to the store.
func New(
	store *inbox.Store,
	fetcher Fetcher,
	reads ReadApplier,
	cfg Config,
	log *zap.Logger,
	metrics *obs.Metrics,
) *Syncer {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = obs.NopMetrics()
	}
	return &Syncer{
		store:    store,
		fetcher:  fetcher,
		reads:    reads,
		cfg:      cfg,
		log:      log.Named("sync"),
		metrics:  metrics,
		resultCh: make(chan Result, 16),
	}
}

// Attach subscribes the Syncer to a realtime channel. Close undoes it.
func (s *Syncer) Attach(sub Subscriber) {
	unsubscribe := sub.Subscribe(s)
	s.mu.Lock()
	prev := s.unsubscribe
	s.unsubscribe = unsubscribe
	s.mu.Unlock()
	if prev != nil {
		prev()
	}
}

// Results delivers fetch outcomes. Results are dropped when nobody reads.
func (s *Syncer) Results() <-chan Result {
	return s.resultCh
}

// Refresh fetches the first page and replaces the store contents.
func (s *Syncer) Refresh(ctx context.Context) error {
	s.setStatus(SyncRunning, nil)

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	page, err := s.fetcher.FetchNotifications(ctx, 0, s.cfg.PageSize)
	if err != nil {
		s.fail(FetchRefresh, err)
		return err
	}

	s.store.ReplaceAll(page.Notifications, page.TotalCount)
	s.succeed(FetchRefresh, len(page.Notifications))
	return nil
}

// LoadMore fetches the next page. It is a no-op when no page is expected
// or one is already loading.
func (s *Syncer) LoadMore(ctx context.Context) error {
	load, ok := s.store.BeginLoad()
	if !ok {
		return nil
	}

	s.setStatus(SyncRunning, nil)

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	page, err := s.fetcher.FetchNotifications(ctx, load.Offset, s.cfg.PageSize)
	if err != nil {
		s.store.EndLoad(load)
		s.fail(FetchLoadMore, err)
		return err
	}

	if !s.store.AppendPage(load, page.Notifications, page.TotalCount) {
		s.log.Debug("load-more page dropped after refresh", zap.Int("offset", load.Offset))
		s.succeed(FetchLoadMore, 0)
		return nil
	}
	s.succeed(FetchLoadMore, len(page.Notifications))
	return nil
}

// RequestRefresh schedules a consistency refresh. Calls within the refresh
// delay collapse into one fetch. It does nothing once Close has been called.
func (s *Syncer) RequestRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.refreshTimer != nil {
		return
	}
	s.wg.Add(1)
	s.refreshTimer = time.AfterFunc(s.cfg.RefreshDelay, func() {
		defer s.wg.Done()
		s.mu.Lock()
		s.refreshTimer = nil
		s.mu.Unlock()

		_ = s.Refresh(context.Background())
	})
}

// Start begins periodic polling when a poll interval is configured.
func (s *Syncer) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.running || s.cfg.PollInterval <= 0 {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go s.poll(s.stopCh)
}

// Stop halts polling and any pending batched refresh.
func (s *Syncer) Stop() {
	s.mu.Lock()
	if s.running {
		close(s.stopCh)
		s.running = false
	}
	if s.refreshTimer != nil && s.refreshTimer.Stop() {
		s.refreshTimer = nil
		s.wg.Done()
	}
	s.mu.Unlock()
}

// Close stops all background work, detaches from the realtime channel and
// waits for in-progress refreshes.
func (s *Syncer) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.Stop()

	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}

	s.wg.Wait()
}

// Status returns the current sync status.
func (s *Syncer) Status() SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// OnNotification implements realtime.Listener.
func (s *Syncer) OnNotification(n model.Notification, hasReadState bool) {
	s.store.UpsertFromRealtime(n, hasReadState)
}

// OnNotificationUpdated implements realtime.Listener.
func (s *Syncer) OnNotificationUpdated(u realtime.ReadUpdate) {
	if s.reads != nil {
		s.reads.ApplyRemote(u)
		return
	}
	s.store.PatchReadState(u.NotificationID, u.IsRead, u.ReadAt)
}

// OnStateChange implements realtime.Listener. Coming back after a drop
// schedules a refresh to pick up anything missed while offline.
func (s *Syncer) OnStateChange(state realtime.State) {
	s.mu.Lock()
	s.status.Connected = state == realtime.StateConnected
	reconnected := state == realtime.StateConnected && s.seenConnect
	if state == realtime.StateConnected {
		s.seenConnect = true
	}
	s.mu.Unlock()

	if reconnected && s.cfg.RefreshOnReconnect {
		s.log.Info("realtime channel reconnected; refreshing")
		s.RequestRefresh()
	}
}

func (s *Syncer) poll(stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			_ = s.Refresh(context.Background())
		}
	}
}

func (s *Syncer) fail(kind FetchKind, err error) {
	s.setStatus(SyncError, err)
	s.metrics.SyncRefreshes.WithLabelValues(string(kind), "error").Inc()

	authErr := api.IsAuthError(err)
	if authErr {
		s.log.Warn("notification fetch rejected; token expired?", zap.String("kind", string(kind)))
	} else if errors.Is(err, context.Canceled) {
		s.log.Debug("notification fetch cancelled", zap.String("kind", string(kind)))
	} else {
		s.log.Warn("notification fetch failed", zap.String("kind", string(kind)), zap.Error(err))
	}
	s.sendResult(Result{Kind: kind, Error: err, AuthError: authErr})
}

func (s *Syncer) succeed(kind FetchKind, count int) {
	s.setStatus(SyncIdle, nil)
	s.metrics.SyncRefreshes.WithLabelValues(string(kind), "ok").Inc()
	s.log.Debug("notifications fetched", zap.String("kind", string(kind)), zap.Int("count", count))
	s.sendResult(Result{Kind: kind, Count: count})
}

// setStatus updates the fetch state.
func (s *Syncer) setStatus(state SyncState, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.State = state
	s.status.Error = err
	if state == SyncIdle && err == nil {
		s.status.LastSync = time.Now()
	}
}

// sendResult sends a Result without blocking.
func (s *Syncer) sendResult(r Result) {
	select {
	case s.resultCh <- r:
	default:
		// Drop if channel is full to avoid blocking the caller
	}
}
