package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"escrowd/core/events"
)

type gatewayMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	gatewayOnce     sync.Once
	gatewayRegistry *gatewayMetrics

	eventOnce     sync.Once
	eventRegistry *EventRecorder
)

// Gateway returns the lazily-initialised metrics registry used to record
// settlement API activity.
func Gateway() *gatewayMetrics {
	gatewayOnce.Do(func() {
		gatewayRegistry = &gatewayMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrowd",
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Total settlement API requests segmented by operation and outcome.",
			}, []string{"op", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "escrowd",
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for settlement API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"op"}),
		}
		prometheus.MustRegister(gatewayRegistry.requests, gatewayRegistry.latency)
	})
	return gatewayRegistry
}

// Observe records one handled request.
func (m *gatewayMetrics) Observe(op, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// EventRecorder counts emitted settlement events by type. It satisfies
// events.Emitter so it can ride the same fanout as the journal.
type EventRecorder struct {
	emitted *prometheus.CounterVec
}

// Events returns the lazily-initialised event recorder.
func Events() *EventRecorder {
	eventOnce.Do(func() {
		eventRegistry = &EventRecorder{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "escrowd",
				Subsystem: "engine",
				Name:      "events_total",
				Help:      "Total settlement events emitted segmented by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.emitted)
	})
	return eventRegistry
}

// Emit implements events.Emitter.
func (r *EventRecorder) Emit(evt *events.Event) {
	if r == nil || evt == nil {
		return
	}
	r.emitted.WithLabelValues(evt.Type).Inc()
}
