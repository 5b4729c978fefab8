package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics_RegistersWithIsolatedRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.MessageCounter.WithLabelValues("sent").Inc()
	metrics.MessageCounter.WithLabelValues("received").Inc()
	metrics.MessageCounter.WithLabelValues("received").Inc()

	if got := testutil.ToFloat64(metrics.MessageCounter.WithLabelValues("received")); got != 2 {
		t.Errorf("received count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.MessageCounter.WithLabelValues("sent")); got != 1 {
		t.Errorf("sent count = %v, want 1", got)
	}
}

func TestMetrics_DedupReasons(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.PushesDeduplicated.WithLabelValues("self_sender").Inc()
	metrics.PushesDeduplicated.WithLabelValues("duplicate_id").Inc()
	metrics.PushesDeduplicated.WithLabelValues("self_sender").Inc()

	if got := testutil.ToFloat64(metrics.PushesDeduplicated.WithLabelValues("self_sender")); got != 2 {
		t.Errorf("self_sender count = %v, want 2", got)
	}
}

func TestMetrics_GaugeUpDown(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.ActiveRoomSessions.Inc()
	metrics.ActiveRoomSessions.Inc()
	metrics.ActiveRoomSessions.Dec()

	if got := testutil.ToFloat64(metrics.ActiveRoomSessions); got != 1 {
		t.Errorf("active sessions = %v, want 1", got)
	}
}
