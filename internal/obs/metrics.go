package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the collectors shared by the sync components.
type Metrics struct {
	RealtimeConnects   prometheus.Counter
	RealtimeConnected  prometheus.Gauge
	RealtimeEvents     *prometheus.CounterVec
	RealtimeDuplicates prometheus.Counter

	InvitationResponses *prometheus.CounterVec
	MarkRead            *prometheus.CounterVec

	InboxSize     prometheus.Gauge
	InboxUnread   prometheus.Gauge
	SyncRefreshes *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg. Pass prometheus.NewRegistry()
// in tests to keep registrations isolated.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RealtimeConnects: f.NewCounter(prometheus.CounterOpts{
			Name: "taskboard_realtime_connects_total",
			Help: "Successful realtime handshakes, including reconnects.",
		}),
		RealtimeConnected: f.NewGauge(prometheus.GaugeOpts{
			Name: "taskboard_realtime_connected",
			Help: "1 while the realtime channel is connected.",
		}),
		RealtimeEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "taskboard_realtime_events_total",
			Help: "Inbound realtime events by name.",
		}, []string{"event"}),
		RealtimeDuplicates: f.NewCounter(prometheus.CounterOpts{
			Name: "taskboard_realtime_duplicates_total",
			Help: "Inbound frames dropped as recent duplicates.",
		}),
		InvitationResponses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "taskboard_invitation_responses_total",
			Help: "Invitation responses by kind and outcome.",
		}, []string{"kind", "outcome"}),
		MarkRead: f.NewCounterVec(prometheus.CounterOpts{
			Name: "taskboard_mark_read_total",
			Help: "Mark-read requests by result.",
		}, []string{"result"}),
		InboxSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "taskboard_inbox_notifications",
			Help: "Notifications currently held in the inbox.",
		}),
		InboxUnread: f.NewGauge(prometheus.GaugeOpts{
			Name: "taskboard_inbox_unread",
			Help: "Unread notifications currently held in the inbox.",
		}),
		SyncRefreshes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "taskboard_sync_fetches_total",
			Help: "Notification fetches by kind and result.",
		}, []string{"kind", "result"}),
	}
}

// NopMetrics returns collectors registered nowhere.
func NopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
