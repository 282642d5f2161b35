package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EventBusMetrics records publish, dispatch, and store health for the event bus.
type EventBusMetrics struct {
	published        *prometheus.CounterVec
	handlerDuration  *prometheus.HistogramVec
	handlerFailures  *prometheus.CounterVec
	deadLettered     *prometheus.CounterVec
	storeFallbacks   *prometheus.CounterVec
	broadcastFailure prometheus.Counter
	observed         *prometheus.CounterVec
}

// NewEventBusMetrics registers the event bus metrics on the provided registerer.
func NewEventBusMetrics(reg prometheus.Registerer) *EventBusMetrics {
	if reg == nil {
		return &EventBusMetrics{}
	}
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "events_published_total",
		Help: "Events accepted by Publish.",
	}, []string{"event_type"})
	handlerDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "event_handler_duration_seconds",
		Help:    "Duration of individual handler invocations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"handler"})
	handlerFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "event_handler_failures_total",
		Help: "Handler invocations that returned an error, panicked, or timed out.",
	}, []string{"handler"})
	deadLettered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "events_dead_lettered_total",
		Help: "Deliveries that exhausted their retries.",
	}, []string{"event_type"})
	storeFallbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "event_store_fallbacks_total",
		Help: "Store operations served by the in-process fallback.",
	}, []string{"operation"})
	broadcastFailure := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "event_broadcast_failures_total",
		Help: "Distributed broadcasts that failed.",
	})
	observed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "events_observed_total",
		Help: "Events seen by the wildcard metrics subscriber.",
	}, []string{"priority"})
	reg.MustRegister(published, handlerDuration, handlerFailures, deadLettered, storeFallbacks, broadcastFailure, observed)
	return &EventBusMetrics{
		published:        published,
		handlerDuration:  handlerDuration,
		handlerFailures:  handlerFailures,
		deadLettered:     deadLettered,
		storeFallbacks:   storeFallbacks,
		broadcastFailure: broadcastFailure,
		observed:         observed,
	}
}

func (m *EventBusMetrics) IncPublished(eventType string) {
	if m == nil || m.published == nil {
		return
	}
	m.published.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// ObserveHandler records one handler invocation and counts it as a failure when failed is set.
func (m *EventBusMetrics) ObserveHandler(handler string, duration time.Duration, failed bool) {
	if m == nil || m.handlerDuration == nil {
		return
	}
	label := normalizeLabel(handler)
	m.handlerDuration.WithLabelValues(label).Observe(duration.Seconds())
	if failed {
		m.handlerFailures.WithLabelValues(label).Inc()
	}
}

func (m *EventBusMetrics) IncDeadLettered(eventType string) {
	if m == nil || m.deadLettered == nil {
		return
	}
	m.deadLettered.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// StoreFallback counts an event store operation that degraded to the in-process map.
func (m *EventBusMetrics) StoreFallback(operation string) {
	if m == nil || m.storeFallbacks == nil {
		return
	}
	m.storeFallbacks.WithLabelValues(normalizeLabel(operation)).Inc()
}

func (m *EventBusMetrics) IncBroadcastFailure() {
	if m == nil || m.broadcastFailure == nil {
		return
	}
	m.broadcastFailure.Inc()
}

func (m *EventBusMetrics) IncObserved(priority string) {
	if m == nil || m.observed == nil {
		return
	}
	m.observed.WithLabelValues(normalizeLabel(priority)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
