package respond

import (
	"context"
	"fmt"
	"strings"

	"github.com/nhle/taskboard/internal/api"
	"github.com/nhle/taskboard/internal/inbox"
	"github.com/nhle/taskboard/internal/model"
)

// Kind is an invitation family. Each family has its own endpoint and
// status vocabulary.
type Kind string

const (
	KindEvent     Kind = "event"
	KindWorkspace Kind = "workspace"
	KindBoard     Kind = "board"
)

// KindFor returns the invitation kind that handles notifications of type
// t, or false when t is not an invitation.
func KindFor(t model.Type) (Kind, bool) {
	for _, k := range []Kind{KindEvent, KindWorkspace, KindBoard} {
		if handlers[k].accepts(t) {
			return k, true
		}
	}
	return "", false
}

// Decision is the user's answer to an invitation.
type Decision string

const (
	DecisionAccept  Decision = "accept"
	DecisionDecline Decision = "decline"
)

// parseDecision accepts both vocabularies: accept/decline and the event
// wire values accepted/declined.
func parseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "accept", "accepted":
		return DecisionAccept, nil
	case "decline", "declined":
		return DecisionDecline, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDecision, s)
}

// pastTense is the event wire value and the canonical stored status.
func (d Decision) pastTense() string {
	if d == DecisionAccept {
		return "accepted"
	}
	return "declined"
}

// Backend is the subset of the REST client the coordinator calls.
type Backend interface {
	RespondEvent(ctx context.Context, eventID, userID, status string) (*api.EventResult, error)
	RespondWorkspaceInvite(ctx context.Context, token, action string) (*api.InviteResult, error)
	RespondBoardInvite(ctx context.Context, workspaceID, token, action string) (*api.InviteResult, error)
}

// handler supplies the per-family behaviour of one invitation kind.
type handler interface {
	accepts(t model.Type) bool
	// check validates that n carries what the endpoint needs.
	check(n model.Notification) error
	// tentative is the optimistic patch written before the request.
	tentative(d Decision) inbox.ResponsePatch
	send(ctx context.Context, b Backend, userID string, n model.Notification, d Decision) (Result, error)
}

var handlers = map[Kind]handler{
	KindEvent:     eventHandler{},
	KindWorkspace: inviteHandler{kind: model.TypeWorkspaceInvite},
	KindBoard:     inviteHandler{kind: model.TypeBoardInvite, needsWorkspace: true},
}

type eventHandler struct{}

func (eventHandler) accepts(t model.Type) bool { return t.UsesResponseStatus() }

func (eventHandler) check(n model.Notification) error {
	if n.EventID == "" {
		return fmt.Errorf("%w: eventId", ErrMissingTarget)
	}
	return nil
}

func (eventHandler) tentative(d Decision) inbox.ResponsePatch {
	status := model.ResponseStatus(d.pastTense())
	responded := true
	return inbox.ResponsePatch{ResponseStatus: &status, Responded: &responded}
}

func (eventHandler) send(ctx context.Context, b Backend, userID string, n model.Notification, d Decision) (Result, error) {
	res, err := b.RespondEvent(ctx, n.EventID, userID, d.pastTense())
	if err != nil {
		return Result{}, err
	}
	if res.Conflict {
		return Result{
			Outcome:      OutcomeConflict,
			ConflictData: res.ConflictData,
			Message:      res.Message,
		}, nil
	}

	status := model.ResponseStatus(d.pastTense())
	responded := true
	return Result{
		Outcome: OutcomeSuccess,
		Status:  d.pastTense(),
		Message: res.Message,
		patch:   inbox.ResponsePatch{ResponseStatus: &status, Responded: &responded},
	}, nil
}

type inviteHandler struct {
	kind           model.Type
	needsWorkspace bool
}

func (h inviteHandler) accepts(t model.Type) bool { return t == h.kind }

func (h inviteHandler) check(n model.Notification) error {
	if n.InvitationToken == "" {
		return fmt.Errorf("%w: invitationToken", ErrMissingTarget)
	}
	if h.needsWorkspace && n.TargetWorkspaceID == "" {
		return fmt.Errorf("%w: targetWorkspaceId", ErrMissingTarget)
	}
	return nil
}

func (inviteHandler) tentative(d Decision) inbox.ResponsePatch {
	status := model.InvitationResponse(d.pastTense())
	responded := true
	return inbox.ResponsePatch{InvitationResponse: &status, Responded: &responded}
}

func (h inviteHandler) send(ctx context.Context, b Backend, _ string, n model.Notification, d Decision) (Result, error) {
	var (
		res *api.InviteResult
		err error
	)
	if h.needsWorkspace {
		res, err = b.RespondBoardInvite(ctx, n.TargetWorkspaceID, n.InvitationToken, string(d))
	} else {
		res, err = b.RespondWorkspaceInvite(ctx, n.InvitationToken, string(d))
	}
	if err != nil {
		return Result{}, err
	}

	status := model.InvitationResponse(d.pastTense())
	// Some backends echo the updated record; its status wins when present.
	if res.Notification != nil && res.Notification.NotificationID == n.NotificationID &&
		!res.Notification.InvitationResponse.IsPending() {
		status = res.Notification.InvitationResponse
	}
	responded := true
	return Result{
		Outcome: OutcomeSuccess,
		Status:  string(status),
		Message: res.Message,
		patch:   inbox.ResponsePatch{InvitationResponse: &status, Responded: &responded},
	}, nil
}
