package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultApplied      = "applied"
	resultMalformed    = "malformed"
	resultPersistError = "persist_error"
)

// Metrics counts ingest activity. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	frames      *prometheus.CounterVec
	connections prometheus.Counter
	active      prometheus.Gauge
	connErrors  prometheus.Counter
}

// NewMetrics registers the ingest collectors with reg. A nil reg gets a
// private registry so repeated construction in tests does not collide.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		frames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gyrohook",
			Subsystem: "ingest",
			Name:      "frames_total",
			Help:      "Frames received, by outcome.",
		}, []string{"result"}),
		connections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "gyrohook",
			Subsystem: "ingest",
			Name:      "connections_total",
			Help:      "Client connections accepted.",
		}),
		active: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "gyrohook",
			Subsystem: "ingest",
			Name:      "connections_active",
			Help:      "Client connections currently being served.",
		}),
		connErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "gyrohook",
			Subsystem: "ingest",
			Name:      "connection_errors_total",
			Help:      "Connections closed because of a read error or an oversized frame.",
		}),
	}
}

func (m *Metrics) frame(result string) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(result).Inc()
}

func (m *Metrics) connOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
	m.active.Inc()
}

func (m *Metrics) connClosed() {
	if m == nil {
		return
	}
	m.active.Dec()
}

func (m *Metrics) connError() {
	if m == nil {
		return
	}
	m.connErrors.Inc()
}
