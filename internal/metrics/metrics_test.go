package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.SetRegistry(1, 1)
	m.ObservePublish(1, 0)
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.PlaylistCreated("prompt", "happy", 0.1)
	m.UpstreamFailure("suggest")
}

func TestObservePublish(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObservePublish(0, 0)
	m.ObservePublish(2, 1)
	m.ObservePublish(0, 2)

	if got := testutil.ToFloat64(m.EventsDropped); got != 1 {
		t.Errorf("dropped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.EventsPublished); got != 1 {
		t.Errorf("published = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.DeliveriesFailed); got != 3 {
		t.Errorf("failed deliveries = %v, want 3", got)
	}
}

func TestPipelineMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.PlaylistCreated("prompt", "happy", 0.2)
	m.PlaylistCreated("audio", "calm", 1.5)
	m.PlaylistCreated("prompt", "happy", 0.3)
	m.UpstreamFailure("probe")

	if got := testutil.ToFloat64(m.PlaylistsCreated.WithLabelValues("prompt", "happy")); got != 2 {
		t.Errorf("prompt/happy = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.UpstreamFailures.WithLabelValues("probe")); got != 1 {
		t.Errorf("probe failures = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.AnalysisDuration); got != 2 {
		t.Errorf("duration series = %d, want 2", got)
	}
}

func TestConnectionGauge(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()

	if got := testutil.ToFloat64(m.PushConnections); got != 1 {
		t.Errorf("open = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.PushConnectionsAll); got != 2 {
		t.Errorf("total = %v, want 2", got)
	}
}
