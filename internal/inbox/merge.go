package inbox

import (
	"time"

	"github.com/nhle/taskboard/internal/model"
)

// ResponsePatch carries the response-related fields to merge into a
// notification. Nil fields are left unchanged.
type ResponsePatch struct {
	ResponseStatus     *model.ResponseStatus
	InvitationResponse *model.InvitationResponse
	Responded          *bool
}

// ResponseFields captures the current response fields of n as a patch that
// restores them exactly.
func ResponseFields(n model.Notification) ResponsePatch {
	status := n.ResponseStatus
	inv := n.InvitationResponse
	responded := n.Responded
	return ResponsePatch{
		ResponseStatus:     &status,
		InvitationResponse: &inv,
		Responded:          &responded,
	}
}

func (p ResponsePatch) apply(n *model.Notification) {
	if p.ResponseStatus != nil {
		n.ResponseStatus = *p.ResponseStatus
	}
	if p.InvitationResponse != nil {
		n.InvitationResponse = *p.InvitationResponse
	}
	if p.Responded != nil {
		n.Responded = *p.Responded
	}
}

// mergeFetched overwrites dst with an authoritative server record. A
// readAt already known locally survives when the server omits it, and the
// client-only responded flag is never cleared by a fetch.
func mergeFetched(dst *model.Notification, src model.Notification) {
	keepReadAt := dst.ReadAt
	keepResponded := dst.Responded
	*dst = src
	dst.Responded = keepResponded || src.Responded
	if dst.IsRead && dst.ReadAt == nil && keepReadAt != nil {
		dst.ReadAt = keepReadAt
	}
}

// mergeRealtime applies a pushed record onto dst. Only fields present in
// the payload win; read state is applied only when the payload carried it.
func mergeRealtime(dst *model.Notification, src model.Notification, hasReadState bool) {
	if src.Type != "" {
		dst.Type = src.Type
	}
	if src.Title != "" {
		dst.Title = src.Title
	}
	if src.Content != "" {
		dst.Content = src.Content
	}
	if !src.CreatedAt.IsZero() {
		dst.CreatedAt = src.CreatedAt
	}
	if src.EventID != "" {
		dst.EventID = src.EventID
	}
	if src.TaskID != "" {
		dst.TaskID = src.TaskID
	}
	if src.InvitationToken != "" {
		dst.InvitationToken = src.InvitationToken
	}
	if src.TargetWorkspaceID != "" {
		dst.TargetWorkspaceID = src.TargetWorkspaceID
	}
	if src.ResponseStatus != "" {
		dst.ResponseStatus = src.ResponseStatus
	}
	if src.InvitationResponse != "" {
		dst.InvitationResponse = src.InvitationResponse
	}
	dst.Responded = dst.Responded || src.Responded

	if hasReadState {
		applyReadState(dst, src.IsRead, src.ReadAt)
	}
}

// applyReadState sets the read fields, keeping an existing readAt stable
// when the record was already read and no new timestamp is given.
func applyReadState(n *model.Notification, isRead bool, readAt *time.Time) {
	if !isRead {
		n.IsRead = false
		n.ReadAt = nil
		return
	}
	if readAt != nil {
		at := *readAt
		n.ReadAt = &at
	}
	n.IsRead = true
}

func cloneNotification(n model.Notification) model.Notification {
	if n.ReadAt != nil {
		at := *n.ReadAt
		n.ReadAt = &at
	}
	return n
}

func cloneAll(items []model.Notification) []model.Notification {
	out := make([]model.Notification, len(items))
	for i, n := range items {
		out[i] = cloneNotification(n)
	}
	return out
}
