package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "reactor"

// Metrics are the server's Prometheus collectors
type Metrics struct {
	ActiveConns prometheus.Gauge
	Accepted    prometheus.Counter
	Rejected    prometheus.Counter
	Closed      prometheus.Counter
	Evicted     prometheus.Counter
	BadRequests prometheus.Counter
	QueueDepth  prometheus.Gauge

	responses *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewMetrics registers the collectors with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ActiveConns: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "conn",
			Name:      "active",
			Help:      "Connections currently registered with the reactor",
		}),
		Accepted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conn",
			Name:      "accepted_total",
			Help:      "Connections accepted",
		}),
		Rejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conn",
			Name:      "rejected_total",
			Help:      "Connections refused because the server was at capacity",
		}),
		Closed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conn",
			Name:      "closed_total",
			Help:      "Connections closed for any reason",
		}),
		Evicted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conn",
			Name:      "evicted_total",
			Help:      "Connections closed by the idle timer",
		}),
		BadRequests: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "bad_requests_total",
			Help:      "Requests rejected by the parser",
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "queue_depth",
			Help:      "Jobs waiting for a worker",
		}),
		responses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "responses_total",
			Help:      "Responses by status code",
		}, []string{"code"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Time from dispatch to response built, by route",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"route"}),
	}
}

// ObserveResponse records one built response
func (m *Metrics) ObserveResponse(route string, code int, d time.Duration) {
	m.responses.WithLabelValues(strconv.Itoa(code)).Inc()
	m.duration.WithLabelValues(route).Observe(d.Seconds())
}
