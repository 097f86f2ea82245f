package utils

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Tracks performance metrics across the system
type MetricsCollector struct {
	registry *prometheus.Registry

	requestCount prometheus.Counter
	errorCount   prometheus.Counter

	// Operation name -> latency distribution
	operationTimes *prometheus.HistogramVec

	// Public space verdicts labelled by outcome ("allowed" or the denial reason)
	verdicts *prometheus.CounterVec

	systemStartTime time.Time
}

func NewMetricsCollector() *MetricsCollector {
	mc := &MetricsCollector{
		registry: prometheus.NewRegistry(),
		requestCount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "twiller",
			Name:      "http_requests_total",
			Help:      "HTTP requests served.",
		}),
		errorCount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "twiller",
			Name:      "errors_total",
			Help:      "Requests that ended in a server-side error.",
		}),
		operationTimes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "twiller",
			Name:      "operation_duration_seconds",
			Help:      "Latency of engine operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "twiller",
			Name:      "publicspace_verdicts_total",
			Help:      "Public space posting decisions by outcome.",
		}, []string{"outcome"}),
		systemStartTime: time.Now(),
	}

	mc.registry.MustRegister(mc.requestCount, mc.errorCount, mc.operationTimes, mc.verdicts)
	return mc
}

func (mc *MetricsCollector) IncrementRequests() {
	mc.requestCount.Inc()
}

func (mc *MetricsCollector) IncrementErrors() {
	mc.errorCount.Inc()
}

func (mc *MetricsCollector) AddOperationLatency(operationName string, duration time.Duration) {
	mc.operationTimes.WithLabelValues(operationName).Observe(duration.Seconds())
}

// RecordVerdict counts one posting decision. An empty reason means the post was allowed.
func (mc *MetricsCollector) RecordVerdict(reason string) {
	if reason == "" {
		reason = "allowed"
	}
	mc.verdicts.WithLabelValues(reason).Inc()
}

// Uptime reports how long the collector has been alive.
func (mc *MetricsCollector) Uptime() time.Duration {
	return time.Since(mc.systemStartTime)
}

// Handler exposes the collector's registry in Prometheus text format.
func (mc *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{})
}
