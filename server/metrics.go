package server

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nedpals/nfc-reader-bridge/nfc"
	"github.com/nedpals/nfc-reader-bridge/protocol"
)

// Metrics holds the reader counters exposed on /metrics. Each server owns a
// registry so tests can build several servers in one process.
type Metrics struct {
	Registry *prometheus.Registry

	requests  *prometheus.CounterVec
	results   *prometheus.CounterVec
	errors    *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	connected prometheus.Gauge
}

// NewMetrics registers the bridge metrics on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nfc_bridge_read_requests_total",
			Help: "Read requests received, by operation and transport",
		}, []string{"op", "transport"}),
		results: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nfc_bridge_read_results_total",
			Help: "Successful read results, by operation and tag type",
		}, []string{"op", "type"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nfc_bridge_read_errors_total",
			Help: "Failed read requests, by operation and error payload",
		}, []string{"op", "code"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nfc_bridge_read_duration_seconds",
			Help:    "Time from request to delivered result",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"op"}),
		connected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "nfc_bridge_websocket_clients",
			Help: "Connected WebSocket clients",
		}),
	}
}

// ObserveRead records one finished read request.
func (m *Metrics) ObserveRead(op, transport string, started time.Time, result *protocol.ReadResult, err error) {
	m.requests.WithLabelValues(op, transport).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(started).Seconds())

	switch {
	case err != nil:
		m.errors.WithLabelValues(op, errorLabel(err)).Inc()
	case result.Cancelled:
		m.results.WithLabelValues(op, "cancelled").Inc()
	default:
		m.results.WithLabelValues(op, result.Type).Inc()
	}
}

func errorLabel(err error) string {
	if errors.Is(err, nfc.ErrSessionBusy) {
		return protocol.WSErrSessionBusy
	}
	return string(nfc.ErrorCodeOf(err))
}
