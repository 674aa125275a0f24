package engine

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "mediahub"

// Metrics collects engine counters on a private registry so tests can run
// multiple engines without duplicate-registration panics.
type Metrics struct {
	registry *prometheus.Registry

	NormalizedTotal   prometheus.Counter
	DuplicatesTotal   prometheus.Counter
	DistributedTotal  prometheus.Counter
	SendsTotal        *prometheus.CounterVec
	RateRejections    prometheus.Counter
	BreakerTrips      *prometheus.CounterVec
	NudgesTotal       prometheus.Counter
	QueueDepth        prometheus.Gauge
	SendDuration      prometheus.Histogram
	SendLogPrunedRows prometheus.Counter
}

// NewMetrics builds the metric set on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		NormalizedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_normalized_total",
			Help:      "Messages accepted by the normalizer.",
		}),
		DuplicatesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_duplicate_total",
			Help:      "Messages dropped by the dedup layer.",
		}),
		DistributedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_distributed_total",
			Help:      "Messages fanned out to at least one destination.",
		}),
		SendsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sends_total",
			Help:      "Send attempts by outcome.",
		}, []string{"outcome"}),
		RateRejections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rate_rejections_total",
			Help:      "Platform too-many-requests rejections.",
		}),
		BreakerTrips: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "breaker_trips_total",
			Help:      "Circuit breaker trips by scope.",
		}, []string{"scope"}),
		NudgesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "paywall_nudges_total",
			Help:      "Paywall nudge messages sent to source chats.",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "queue_depth",
			Help:      "Send tasks currently queued.",
		}),
		SendDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "send_duration_seconds",
			Help:      "Wall time per send, token wait included.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		SendLogPrunedRows: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "send_log_pruned_rows_total",
			Help:      "Send-log rows removed by the retention sweeper.",
		}),
	}
}

// Handler exposes the registry for the HTTP endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
