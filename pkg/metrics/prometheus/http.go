// Package prometheus implements metrics.HTTPMetrics on top of
// prometheus/client_golang.
package prometheus

import (
	"strconv"
	"time"

	"github.com/marmos91/dittohttp/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// httpMetrics is the Prometheus implementation of metrics.HTTPMetrics.
type httpMetrics struct {
	requestsTotal          *prometheus.CounterVec
	requestDuration        *prometheus.HistogramVec
	bytesTransferred       *prometheus.CounterVec
	queueDepth             prometheus.Gauge
	requeues               prometheus.Counter
	activeConnections      prometheus.Gauge
	connectionsAccepted    prometheus.Counter
	connectionsClosed      prometheus.Counter
	connectionsForceClosed prometheus.Counter
}

// NewHTTPMetrics registers the adapter metrics on the global registry.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry
// not called).
func NewHTTPMetrics() metrics.HTTPMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopHTTPMetrics()
	}
	return NewHTTPMetricsWith(metrics.GetRegistry())
}

// NewHTTPMetricsWith registers the adapter metrics on reg.
func NewHTTPMetricsWith(reg prometheus.Registerer) metrics.HTTPMetrics {
	factory := promauto.With(reg)

	return &httpMetrics{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittohttp_requests_total",
				Help: "Total number of requests by method and status code",
			},
			[]string{"method", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittohttp_request_duration_milliseconds",
				Help: "Duration of requests in milliseconds",
				Buckets: []float64{
					1,     // 1ms
					10,    // 10ms
					100,   // 100ms
					1000,  // 1s
					10000, // 10s
				},
			},
			[]string{"method"},
		),
		bytesTransferred: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittohttp_bytes_transferred_total",
				Help: "Total body bytes moved, by direction",
			},
			[]string{"direction"},
		),
		queueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dittohttp_queue_depth",
				Help: "Connections waiting in the queue for a worker",
			},
		),
		requeues: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "dittohttp_requeues_total",
				Help: "Connections suspended because their socket was not ready",
			},
		),
		activeConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dittohttp_active_connections",
				Help: "Accepted connections not yet closed",
			},
		),
		connectionsAccepted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "dittohttp_connections_accepted_total",
				Help: "Total number of connections accepted",
			},
		),
		connectionsClosed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "dittohttp_connections_closed_total",
				Help: "Total number of connections closed",
			},
		),
		connectionsForceClosed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "dittohttp_connections_force_closed_total",
				Help: "Connections closed by shutdown while in flight",
			},
		),
	}
}

func (m *httpMetrics) RecordRequest(method string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(float64(duration) / float64(time.Millisecond))
}

func (m *httpMetrics) RecordBytesTransferred(direction string, bytes int64) {
	if bytes > 0 {
		m.bytesTransferred.WithLabelValues(direction).Add(float64(bytes))
	}
}

func (m *httpMetrics) SetQueueDepth(depth int) {
	m.queueDepth.Set(float64(depth))
}

func (m *httpMetrics) RecordRequeue() {
	m.requeues.Inc()
}

func (m *httpMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}

func (m *httpMetrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *httpMetrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

func (m *httpMetrics) RecordConnectionForceClosed() {
	m.connectionsForceClosed.Inc()
}
