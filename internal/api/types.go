package api

import (
	"encoding/json"

	"github.com/nhle/taskboard/internal/model"
)

// notificationsResponse is the envelope of GET /notification.
type notificationsResponse struct {
	Status json.RawMessage `json:"status"`
	Data   struct {
		Notifications []model.Notification `json:"notifications"`
		TotalCount    int                  `json:"totalCount"`
	} `json:"data"`
}

// NotificationPage is one page of the server's notification list.
type NotificationPage struct {
	Notifications []model.Notification

	// TotalCount is zero when the server does not report a total.
	TotalCount int
}

// eventStatusRequest is the body of the participant status update.
type eventStatusRequest struct {
	Status string `json:"status"`
}

// eventStatusResponse is returned by the participant status update, both
// on success and with a 409 conflict.
type eventStatusResponse struct {
	Status       json.RawMessage `json:"status"`
	Message      string          `json:"message"`
	HasConflict  bool            `json:"hasConflict"`
	ConflictData json.RawMessage `json:"conflictData"`
}

// ConflictingEvent is an existing commitment that overlaps the event being
// accepted.
type ConflictingEvent struct {
	EventID   string `json:"eventId"`
	Title     string `json:"title"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// ConflictData describes a scheduling conflict reported for an event
// accept. Raw keeps the payload as sent for display of fields not modelled
// here.
type ConflictData struct {
	Message   string             `json:"message"`
	Conflicts []ConflictingEvent `json:"conflicts"`
	Raw       json.RawMessage    `json:"-"`
}

// EventResult is the outcome of an event invitation response.
type EventResult struct {
	// Conflict is true when the server refused the accept because of a
	// scheduling conflict. Conflict is a result, not an error.
	Conflict     bool
	ConflictData *ConflictData
	Message      string
}

// inviteRequest is the body of workspace and board invite responses.
type inviteRequest struct {
	Token  string `json:"token"`
	Action string `json:"action"`
}

// InviteResult is the response of a workspace or board invite response.
type InviteResult struct {
	Message    string          `json:"message"`
	Membership json.RawMessage `json:"membership,omitempty"`

	// Notification is set by backends that echo the updated record.
	Notification *model.Notification `json:"notification,omitempty"`
}

// errorResponse is the shape of error bodies.
type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func parseConflict(raw json.RawMessage, message string) *ConflictData {
	cd := &ConflictData{Message: message}
	if len(raw) > 0 && string(raw) != "null" {
		cd.Raw = append(json.RawMessage(nil), raw...)
		// Unknown shapes keep only Raw.
		_ = json.Unmarshal(raw, cd)
		if cd.Message == "" {
			cd.Message = message
		}
	}
	return cd
}
