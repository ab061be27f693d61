// Package metrics exposes Prometheus collectors for the push channel and the
// mood/playlist pipeline. All methods are safe to call on a nil *Metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the service
type Metrics struct {
	// Session channel registry
	Registrations      prometheus.Gauge
	ActiveSessions     prometheus.Gauge
	EventsPublished    prometheus.Counter
	EventsDropped      prometheus.Counter
	DeliveriesFailed   prometheus.Counter
	PushConnections    prometheus.Gauge
	PushConnectionsAll prometheus.Counter

	// Mood pipeline
	PlaylistsCreated *prometheus.CounterVec
	UpstreamFailures *prometheus.CounterVec
	AnalysisDuration *prometheus.HistogramVec
}

// New registers every collector on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Registrations: f.NewGauge(prometheus.GaugeOpts{
			Name: "moodtunes_registry_registrations",
			Help: "Connections currently joined to a session",
		}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "moodtunes_registry_sessions",
			Help: "Session identifiers with at least one joined connection",
		}),
		EventsPublished: f.NewCounter(prometheus.CounterOpts{
			Name: "moodtunes_registry_events_published_total",
			Help: "Result events delivered to at least one connection",
		}),
		EventsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "moodtunes_registry_events_dropped_total",
			Help: "Result events published to a session with no subscribers",
		}),
		DeliveriesFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "moodtunes_registry_delivery_failures_total",
			Help: "Deliveries rejected by a connection, which was then pruned",
		}),
		PushConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "moodtunes_push_connections",
			Help: "Open push channel connections",
		}),
		PushConnectionsAll: f.NewCounter(prometheus.CounterOpts{
			Name: "moodtunes_push_connections_total",
			Help: "Push channel connections accepted since start",
		}),
		PlaylistsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "moodtunes_playlists_created_total",
			Help: "Playlists created, by request source and mood",
		}, []string{"source", "mood"}),
		UpstreamFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "moodtunes_upstream_failures_total",
			Help: "Failed downstream operations",
		}, []string{"operation"}),
		AnalysisDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "moodtunes_request_duration_seconds",
			Help:    "Time from request receipt to playlist publication",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"source"}),
	}
}

// SetRegistry mirrors the broker's membership counts.
func (m *Metrics) SetRegistry(registrations, sessions int) {
	if m == nil {
		return
	}
	m.Registrations.Set(float64(registrations))
	m.ActiveSessions.Set(float64(sessions))
}

// ObservePublish records one Publish call. A publish that reached nobody counts as dropped.
func (m *Metrics) ObservePublish(delivered, failed int) {
	if m == nil {
		return
	}
	if delivered == 0 && failed == 0 {
		m.EventsDropped.Inc()
		return
	}
	if delivered > 0 {
		m.EventsPublished.Inc()
	}
	m.DeliveriesFailed.Add(float64(failed))
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.PushConnections.Inc()
	m.PushConnectionsAll.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.PushConnections.Dec()
}

func (m *Metrics) PlaylistCreated(source, mood string, seconds float64) {
	if m == nil {
		return
	}
	m.PlaylistsCreated.WithLabelValues(source, mood).Inc()
	m.AnalysisDuration.WithLabelValues(source).Observe(seconds)
}

func (m *Metrics) UpstreamFailure(operation string) {
	if m == nil {
		return
	}
	m.UpstreamFailures.WithLabelValues(operation).Inc()
}
