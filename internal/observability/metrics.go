package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects client-side counters for the messaging sync layer.
//
// The metrics system is built on Prometheus and tracks:
//   - Message flow (sent via REST, received via push, deduplicated pushes)
//   - Channel session lifecycle (connects, reconnect attempts, drops)
//   - Typing signal traffic in both directions
//   - Advisory smart-reply fetch outcomes
type Metrics struct {
	// MessageCounter tracks messages by direction.
	// Labels: direction (sent|received)
	MessageCounter *prometheus.CounterVec

	// PushesDeduplicated counts pushed messages dropped by reconciliation.
	// Labels: reason (self_sender|duplicate_id|foreign_room)
	PushesDeduplicated *prometheus.CounterVec

	// TypingSignals counts typing signals by direction and kind.
	// Labels: direction (inbound|outbound), kind (start|stop)
	TypingSignals *prometheus.CounterVec

	// ConnectCounter counts channel session connects by outcome.
	// Labels: outcome (connected|failed)
	ConnectCounter *prometheus.CounterVec

	// ReconnectAttempts counts reconnection attempts.
	ReconnectAttempts prometheus.Counter

	// DroppedSends counts fire-and-forget sends dropped for lack of a session.
	DroppedSends prometheus.Counter

	// SmartReplyCounter counts advisory suggestion fetches by outcome.
	// Labels: outcome (ok|error)
	SmartReplyCounter *prometheus.CounterVec

	// ActiveRoomSessions is a gauge of currently open room sessions.
	ActiveRoomSessions prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics with the given
// registerer. Pass prometheus.DefaultRegisterer at application startup;
// tests use an isolated registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		MessageCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "courier_messages_total",
				Help: "Total number of chat messages by direction",
			},
			[]string{"direction"},
		),
		PushesDeduplicated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "courier_pushes_deduplicated_total",
				Help: "Pushed messages dropped by the reconciliation engine",
			},
			[]string{"reason"},
		),
		TypingSignals: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "courier_typing_signals_total",
				Help: "Typing signals by direction and kind",
			},
			[]string{"direction", "kind"},
		),
		ConnectCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "courier_channel_connects_total",
				Help: "Channel session connection attempts by outcome",
			},
			[]string{"outcome"},
		),
		ReconnectAttempts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "courier_channel_reconnect_attempts_total",
				Help: "Channel session reconnection attempts",
			},
		),
		DroppedSends: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "courier_channel_dropped_sends_total",
				Help: "Outbound channel events dropped because no session existed",
			},
		),
		SmartReplyCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "courier_smart_reply_fetches_total",
				Help: "Advisory smart-reply fetches by outcome",
			},
			[]string{"outcome"},
		),
		ActiveRoomSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "courier_active_room_sessions",
				Help: "Currently open room sessions",
			},
		),
	}
}
