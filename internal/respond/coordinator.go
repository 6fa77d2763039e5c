// Package respond drives the accept/decline workflow for event, workspace
// and board invitations on top of the inbox store.
package respond

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"

	"go.uber.org/zap"

	"github.com/nhle/taskboard/internal/api"
	"github.com/nhle/taskboard/internal/inbox"
	"github.com/nhle/taskboard/internal/obs"
)

var (
	ErrNotFound         = errors.New("notification not found")
	ErrKindMismatch     = errors.New("invitation kind does not match notification type")
	ErrAlreadyResponded = errors.New("invitation already answered")
	ErrInFlight         = errors.New("response already in flight")
	ErrUnknownKind      = errors.New("unknown invitation kind")
	ErrUnknownDecision  = errors.New("unknown decision")
	ErrMissingTarget    = errors.New("notification is missing a required field")
)

// Outcome distinguishes a confirmed response from a scheduling conflict.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeConflict
)

func (o Outcome) String() string {
	if o == OutcomeConflict {
		return "conflict"
	}
	return "success"
}

// Result is returned for every response the server answered. A conflict
// is a result, not an error; the caller must ask the user again.
type Result struct {
	Outcome Outcome

	// Status is the canonical status written to the store on success.
	Status string

	ConflictData *api.ConflictData
	Message      string

	patch inbox.ResponsePatch
}

// Refresher schedules a batched consistency refresh.
type Refresher interface {
	RequestRefresh()
}

// Coordinator applies invitation responses optimistically and reconciles
// them with the server. At most one response per notification is in
// flight at a time.
type Coordinator struct {
	store   *inbox.Store
	backend Backend
	userID  string
	refresh Refresher
	log     *zap.Logger
	metrics *obs.Metrics

	mu       gosync.Mutex
	inFlight map[string]struct{}
}

// New creates a Coordinator. refresh may be nil.
func New(
	store *inbox.Store,
	backend Backend,
	userID string,
	refresh Refresher,
	log *zap.Logger,
	metrics *obs.Metrics,
) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = obs.NopMetrics()
	}
	return &Coordinator{
		store:    store,
		backend:  backend,
		userID:   userID,
		refresh:  refresh,
		log:      log.Named("respond"),
		metrics:  metrics,
		inFlight: make(map[string]struct{}),
	}
}

// InFlight reports whether a response for id is outstanding.
func (c *Coordinator) InFlight(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inFlight[id]
	return ok
}

// Respond answers the invitation carried by notification id. Precondition
// failures return an error without any network call. A failed request
// reverts the optimistic write exactly and returns the error.
func (c *Coordinator) Respond(ctx context.Context, id string, kind Kind, decision Decision) (Result, error) {
	h, ok := handlers[kind]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	decision, err := parseDecision(string(decision))
	if err != nil {
		return Result{}, err
	}

	if !c.acquire(id) {
		c.metrics.InvitationResponses.WithLabelValues(string(kind), "in_flight").Inc()
		return Result{}, ErrInFlight
	}
	defer c.release(id)

	n, ok := c.store.Get(id)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !h.accepts(n.Type) {
		return Result{}, fmt.Errorf("%w: %s is %s", ErrKindMismatch, kind, n.Type)
	}
	if !n.IsPending() {
		return Result{}, fmt.Errorf("%w: %s", ErrAlreadyResponded, id)
	}
	if err := h.check(n); err != nil {
		return Result{}, err
	}

	prev := inbox.ResponseFields(n)
	c.store.PatchResponse(id, h.tentative(decision))

	log := c.log.With(
		zap.String("notification_id", id),
		zap.String("kind", string(kind)),
		zap.String("decision", string(decision)),
	)

	res, err := h.send(ctx, c.backend, c.userID, n, decision)
	if err != nil {
		c.store.PatchResponse(id, prev)
		c.metrics.InvitationResponses.WithLabelValues(string(kind), "error").Inc()
		log.Warn("invitation response failed", zap.Error(err))
		return Result{}, fmt.Errorf("responding to %s invitation: %w", kind, err)
	}

	if res.Outcome == OutcomeConflict {
		c.store.PatchResponse(id, prev)
		c.metrics.InvitationResponses.WithLabelValues(string(kind), "conflict").Inc()
		log.Info("invitation response conflicted")
		return res, nil
	}

	c.store.PatchResponse(id, res.patch)
	c.metrics.InvitationResponses.WithLabelValues(string(kind), "success").Inc()
	log.Info("invitation response recorded", zap.String("status", res.Status))

	if c.refresh != nil {
		c.refresh.RequestRefresh()
	}
	return res, nil
}

func (c *Coordinator) acquire(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inFlight[id]; busy {
		return false
	}
	c.inFlight[id] = struct{}{}
	return true
}

func (c *Coordinator) release(id string) {
	c.mu.Lock()
	delete(c.inFlight, id)
	c.mu.Unlock()
}
