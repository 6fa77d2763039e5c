package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nhle/taskboard/internal/model"
)

// Event names on the wire.
const (
	EventRegisterUser        = "register_user"
	EventNewNotification     = "new_notification"
	EventNotificationUpdated = "notification_updated"
)

// State is the liveness of the channel as seen by listeners.
type State int

const (
	StateDisconnected State = iota
	StateConnected
)

func (s State) String() string {
	if s == StateConnected {
		return "connected"
	}
	return "disconnected"
}

// ReadUpdate is the payload of notification_updated: a read-state delta
// for one record. All other fields of the record are unchanged.
type ReadUpdate struct {
	NotificationID string     `json:"notificationId"`
	IsRead         bool       `json:"isRead"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
}

// Listener receives decoded events. Methods are called from the channel's
// read goroutine and should not block for long.
type Listener interface {
	// OnNotification is called for new_notification. hasReadState is false
	// when the payload omitted isRead, in which case it defaults to unread.
	OnNotification(n model.Notification, hasReadState bool)

	// OnNotificationUpdated is called for notification_updated.
	OnNotificationUpdated(u ReadUpdate)

	// OnStateChange is called on every connect and disconnect.
	OnStateChange(s State)
}

// envelope is the framing of every message in both directions.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type registerPayload struct {
	UserID string `json:"userId"`
}

func encodeEnvelope(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", event, err)
	}
	return json.Marshal(envelope{Event: event, Data: raw})
}

// decodeNotification decodes a new_notification payload and reports
// whether it carried isRead.
func decodeNotification(raw json.RawMessage) (model.Notification, bool, error) {
	var n model.Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return model.Notification{}, false, err
	}
	var fields struct {
		IsRead *bool `json:"isRead"`
	}
	_ = json.Unmarshal(raw, &fields)
	return n, fields.IsRead != nil, nil
}
