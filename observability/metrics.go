package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type marketMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	events   *prometheus.CounterVec
}

var (
	marketMetricsOnce sync.Once
	marketRegistry    *marketMetrics
)

// MarketMetrics returns the lazily-initialised metrics registry used to record
// marketplace operation activity.
func MarketMetrics() *marketMetrics {
	marketMetricsOnce.Do(func() {
		marketRegistry = &marketMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tokenmart",
				Subsystem: "market",
				Name:      "requests_total",
				Help:      "Total marketplace operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tokenmart",
				Subsystem: "market",
				Name:      "errors_total",
				Help:      "Total marketplace operation failures segmented by operation and status code.",
			}, []string{"operation", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "tokenmart",
				Subsystem: "market",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for marketplace operation handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tokenmart",
				Subsystem: "market",
				Name:      "events_total",
				Help:      "Count of domain events emitted by settled operations.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(
			marketRegistry.requests,
			marketRegistry.errors,
			marketRegistry.latency,
			marketRegistry.events,
		)
	})
	return marketRegistry
}

// Observe records the outcome of one marketplace operation. The status code
// should be the HTTP status that was ultimately written to the response
// writer.
func (m *marketMetrics) Observe(operation string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
		m.errors.WithLabelValues(operation, fmt.Sprintf("%d", status)).Inc()
	}
	m.requests.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordEvent counts a domain event by its type string.
func (m *marketMetrics) RecordEvent(eventType string) {
	if m == nil || eventType == "" {
		return
	}
	m.events.WithLabelValues(eventType).Inc()
}
