package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the server
type Metrics struct {
	// Session metrics
	activeSessions       prometheus.Gauge
	sessionsCreated      prometheus.Counter
	sessionsDisconnected prometheus.Counter

	// Frame metrics
	framesReceived *prometheus.CounterVec // by frame kind

	// Broadcast metrics
	broadcastFanout   prometheus.Histogram
	broadcastsDropped prometheus.Counter

	// History metrics
	historySize prometheus.Gauge
}

// NewMetrics creates a metrics instance registered on reg. Each server
// carries its own registry so tests can run servers side by side.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chatrelay_active_sessions",
			Help: "Current number of active sessions",
		}),
		sessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatrelay_sessions_created_total",
			Help: "Total number of sessions created",
		}),
		sessionsDisconnected: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatrelay_sessions_disconnected_total",
			Help: "Total number of sessions disconnected",
		}),
		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatrelay_frames_received_total",
			Help: "Total number of inbound frames by kind",
		}, []string{"kind"}),
		broadcastFanout: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "chatrelay_broadcast_fanout",
			Help:    "Number of sessions each broadcast was queued for",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		broadcastsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatrelay_broadcasts_dropped_total",
			Help: "Total number of per-recipient broadcast drops (full or closed queues)",
		}),
		historySize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chatrelay_history_size",
			Help: "Current number of messages in the history buffer",
		}),
	}
}

// RecordActiveSessions updates the active session count
func (m *Metrics) RecordActiveSessions(count int) {
	m.activeSessions.Set(float64(count))
}

// RecordSessionCreated increments the session creation counter
func (m *Metrics) RecordSessionCreated() {
	m.sessionsCreated.Inc()
}

// RecordSessionDisconnected increments the session disconnection counter
func (m *Metrics) RecordSessionDisconnected() {
	m.sessionsDisconnected.Inc()
}

// RecordFrameReceived increments the inbound frame counter for a kind
func (m *Metrics) RecordFrameReceived(kind string) {
	m.framesReceived.WithLabelValues(kind).Inc()
}

// RecordBroadcastFanout records how many sessions received a broadcast
func (m *Metrics) RecordBroadcastFanout(recipientCount int) {
	m.broadcastFanout.Observe(float64(recipientCount))
}

// RecordBroadcastsDropped counts recipients skipped during a fanout
func (m *Metrics) RecordBroadcastsDropped(count int) {
	m.broadcastsDropped.Add(float64(count))
}

// RecordHistorySize updates the history buffer size gauge
func (m *Metrics) RecordHistorySize(size int) {
	m.historySize.Set(float64(size))
}
