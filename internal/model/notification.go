package model

import (
	"strings"
	"time"
)

// Type is the server-defined kind of a notification. The set is open-ended:
// unknown values are carried through untouched and only affect labels.
type Type string

const (
	TypeEventInvitation   Type = "event_invitation"
	TypeEventUpdate       Type = "event_update"
	TypeEventStatusUpdate Type = "event_status_update"
	TypeWorkspaceInvite   Type = "workspace_invite"
	TypeBoardInvite       Type = "board_invite"
)

// Family groups notification types by the entity they concern.
type Family string

const (
	FamilyEvent     Family = "event"
	FamilyWorkspace Family = "workspace"
	FamilyBoard     Family = "board"
	FamilyTask      Family = "task"
	FamilyList      Family = "list"
	FamilyOther     Family = "other"
)

// Family classifies t. Task and list lifecycle subtypes are matched by prefix.
func (t Type) Family() Family {
	switch {
	case t == TypeWorkspaceInvite:
		return FamilyWorkspace
	case t == TypeBoardInvite:
		return FamilyBoard
	case strings.HasPrefix(string(t), "event_"):
		return FamilyEvent
	case strings.HasPrefix(string(t), "task_"):
		return FamilyTask
	case strings.HasPrefix(string(t), "list_"):
		return FamilyList
	default:
		return FamilyOther
	}
}

// UsesResponseStatus reports whether ResponseStatus is the meaningful
// response field for t.
func (t Type) UsesResponseStatus() bool {
	return t.Family() == FamilyEvent
}

// UsesInvitationResponse reports whether InvitationResponse is the
// meaningful response field for t.
func (t Type) UsesInvitationResponse() bool {
	return t == TypeWorkspaceInvite || t == TypeBoardInvite
}

var typeLabels = map[Type]string{
	TypeEventInvitation:   "Event invitation",
	TypeEventUpdate:       "Event updated",
	TypeEventStatusUpdate: "Event status",
	TypeWorkspaceInvite:   "Workspace invite",
	TypeBoardInvite:       "Board invite",
}

// Label returns a short human-readable label for t.
func (t Type) Label() string {
	if l, ok := typeLabels[t]; ok {
		return l
	}
	switch t.Family() {
	case FamilyTask:
		return "Task"
	case FamilyList:
		return "List"
	case FamilyEvent:
		return "Event"
	}
	return "Notification"
}

// ResponseStatus is the participant state of an event-related notification.
// The empty value means the server sent nothing and is treated as pending.
type ResponseStatus string

const (
	ResponsePending      ResponseStatus = "pending"
	ResponseAccepted     ResponseStatus = "accepted"
	ResponseDeclined     ResponseStatus = "declined"
	ResponseRemoved      ResponseStatus = "removed"
	ResponseEventDeleted ResponseStatus = "event_deleted"
)

// IsPending reports whether s still allows a user decision.
func (s ResponseStatus) IsPending() bool {
	return s == "" || s == ResponsePending
}

// InvitationResponse is the state of a workspace or board invitation.
// The empty value is treated as pending.
type InvitationResponse string

const (
	InvitationPending  InvitationResponse = "pending"
	InvitationAccepted InvitationResponse = "accepted"
	InvitationDeclined InvitationResponse = "declined"
)

// IsPending reports whether r still allows a user decision.
func (r InvitationResponse) IsPending() bool {
	return r == "" || r == InvitationPending
}

// Notification is one event delivered to the signed-in user.
type Notification struct {
	// NotificationID is stable across re-delivery and is the merge key.
	NotificationID string `json:"notificationId"`

	Type    Type   `json:"type"`
	Title   string `json:"title"`
	Content string `json:"content"`

	CreatedAt time.Time `json:"createdAt"`

	IsRead bool       `json:"isRead"`
	ReadAt *time.Time `json:"readAt"`

	EventID           string `json:"eventId,omitempty"`
	TaskID            string `json:"taskId,omitempty"`
	InvitationToken   string `json:"invitationToken,omitempty"`
	TargetWorkspaceID string `json:"targetWorkspaceId,omitempty"`

	// ResponseStatus is meaningful for event-related types only.
	ResponseStatus ResponseStatus `json:"responseStatus,omitempty"`

	// InvitationResponse is meaningful for workspace and board invites only.
	InvitationResponse InvitationResponse `json:"invitationResponse,omitempty"`

	// Responded is a client-side flag set as soon as any response has been
	// recorded, before the server confirms it.
	Responded bool `json:"responded"`
}

// IsPending reports whether the notification is an invitation still
// awaiting a decision. Non-invitation types are never pending.
func (n Notification) IsPending() bool {
	switch {
	case n.Type.UsesInvitationResponse():
		return n.InvitationResponse.IsPending()
	case n.Type.UsesResponseStatus():
		return n.ResponseStatus.IsPending()
	}
	return false
}

// Normalize enforces the record invariants: read state and readAt agree,
// only the response field selected by Type is kept, and a terminal
// response implies Responded.
func (n *Notification) Normalize(now time.Time) {
	if n.IsRead && n.ReadAt == nil {
		at := now
		n.ReadAt = &at
	}
	if !n.IsRead {
		n.ReadAt = nil
	}

	switch {
	case n.Type.UsesInvitationResponse():
		n.ResponseStatus = ""
		if !n.InvitationResponse.IsPending() {
			n.Responded = true
		}
	case n.Type.UsesResponseStatus():
		n.InvitationResponse = ""
		if !n.ResponseStatus.IsPending() {
			n.Responded = true
		}
	}
}
