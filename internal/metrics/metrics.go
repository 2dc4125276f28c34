// Package metrics provides Prometheus metrics for the canvas replica
// process.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every metric this replica exposes on /metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Pixel write metrics
	PixelWritesTotal *prometheus.CounterVec

	// Replication (PendingAck FIFO + ring traversal) metrics
	ReplicationPendingDepth prometheus.Gauge
	ReplicationAckTotal     prometheus.Counter
	ReplicationTimeoutTotal prometheus.Counter
	ReplicationErrorsTotal  *prometheus.CounterVec

	// Ring topology metrics
	ElectionsTotal       prometheus.Counter
	ActiveReplicas       prometheus.Gauge
	SuccessorConnected   prometheus.Gauge
	PredecessorConnected prometheus.Gauge

	// Websocket session metrics
	SessionsActive prometheus.Gauge
}

// New creates a Metrics instance with every metric registered under
// namespace.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "pixring"
	}

	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),

		PixelWritesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pixel_writes_total",
				Help:      "Total pixel writes, by origin",
			},
			[]string{"origin"}, // origin: session, ring
		),

		ReplicationPendingDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "replication_pending_depth",
				Help:      "Current depth of the primary's PendingAck FIFO",
			},
		),
		ReplicationAckTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "replication_ack_total",
				Help:      "Total pixel writes confirmed by a full ring round-trip",
			},
		),
		ReplicationTimeoutTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "replication_timeout_total",
				Help:      "Total pixel writes that timed out unacknowledged",
			},
		),
		ReplicationErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "replication_errors_total",
				Help:      "Total replication errors, by kind",
			},
			[]string{"kind"}, // kind: successor_lost, predecessor_lost, store, protocol
		),

		ElectionsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "elections_total",
				Help:      "Total Chang-Roberts elections initiated by this replica",
			},
		),
		ActiveReplicas: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_replicas",
				Help:      "Number of active replicas in the manifest, as last observed",
			},
		),
		SuccessorConnected: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "successor_connected",
				Help:      "Whether this replica has a live successor link (1=yes, 0=no)",
			},
		),
		PredecessorConnected: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "predecessor_connected",
				Help:      "Whether this replica has a live predecessor link (1=yes, 0=no)",
			},
		),

		SessionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_active",
				Help:      "Number of currently registered websocket sessions",
			},
		),
	}
}

var defaultMetrics *Metrics

// Default returns the process-wide default metrics instance, creating
// it on first use.
func Default() *Metrics {
	if defaultMetrics == nil {
		defaultMetrics = New("pixring")
	}
	return defaultMetrics
}

// RecordHTTPRequest records one completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusToString(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordPixelWrite records one applied pixel write.
func (m *Metrics) RecordPixelWrite(origin string) {
	m.PixelWritesTotal.WithLabelValues(origin).Inc()
}

// SetPendingDepth reports the PendingAck FIFO's current depth.
func (m *Metrics) SetPendingDepth(depth int) {
	m.ReplicationPendingDepth.Set(float64(depth))
}

// RecordAck records a pixel write confirmed by round-trip.
func (m *Metrics) RecordAck() {
	m.ReplicationAckTotal.Inc()
}

// RecordTimeout records a pixel write that timed out unacknowledged.
func (m *Metrics) RecordTimeout() {
	m.ReplicationTimeoutTotal.Inc()
}

// RecordReplicationError records a replication-path error by kind.
func (m *Metrics) RecordReplicationError(kind string) {
	m.ReplicationErrorsTotal.WithLabelValues(kind).Inc()
}

// RecordElection records this replica initiating an election.
func (m *Metrics) RecordElection() {
	m.ElectionsTotal.Inc()
}

// SetActiveReplicas reports the current active-replica count.
func (m *Metrics) SetActiveReplicas(count int) {
	m.ActiveReplicas.Set(float64(count))
}

// SetSuccessorConnected reports successor link liveness.
func (m *Metrics) SetSuccessorConnected(connected bool) {
	setBoolGauge(m.SuccessorConnected, connected)
}

// SetPredecessorConnected reports predecessor link liveness.
func (m *Metrics) SetPredecessorConnected(connected bool) {
	setBoolGauge(m.PredecessorConnected, connected)
}

// SetSessionsActive reports the current websocket session count.
func (m *Metrics) SetSessionsActive(count int) {
	m.SessionsActive.Set(float64(count))
}

func setBoolGauge(g prometheus.Gauge, v bool) {
	if v {
		g.Set(1)
	} else {
		g.Set(0)
	}
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
