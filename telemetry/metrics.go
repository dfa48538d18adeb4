// Package telemetry provides Prometheus metrics for the chat core.
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	EventsConsumed  *prometheus.CounterVec
	EventsRecovered prometheus.Counter
	SpansAnnotated  prometheus.Counter
	TrimsConfirmed  prometheus.Counter
	TasksEnqueued   *prometheus.CounterVec
	Disconnects     prometheus.Counter

	// Gauges
	QueueDepth     prometheus.Gauge
	SessionsActive prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		EventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_events_consumed_total", Help: "Number of chat events processed, by kind"}, []string{"kind"})
		EventsRecovered = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_events_recovered_total", Help: "Number of events whose processing panicked and was recovered"})
		SpansAnnotated = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_spans_annotated_total", Help: "Number of spans accepted by the annotation engine"})
		TrimsConfirmed = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_trims_confirmed_total", Help: "Number of backlog trims confirmed by the surface"})
		TasksEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chat_tasks_enqueued_total", Help: "Number of outbound connection tasks enqueued, by type"}, []string{"type"})
		Disconnects = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_disconnects_total", Help: "Number of unexpected disconnect notifications"})
		QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_event_queue_depth", Help: "Current number of events waiting in the queue"})
		SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_sessions_active", Help: "Current number of live channel sessions"})
	})
}

// CountEvent increments the consumed counter for one event kind.
func CountEvent(kind string) {
	if EventsConsumed != nil {
		EventsConsumed.WithLabelValues(kind).Inc()
	}
}

// CountRecovered records one recovered event-processing panic.
func CountRecovered() {
	if EventsRecovered != nil {
		EventsRecovered.Inc()
	}
}

// CountSpans records n accepted annotation spans.
func CountSpans(n int) {
	if SpansAnnotated != nil && n > 0 {
		SpansAnnotated.Add(float64(n))
	}
}

// CountTrim records one confirmed backlog trim.
func CountTrim() {
	if TrimsConfirmed != nil {
		TrimsConfirmed.Inc()
	}
}

// CountTask records one enqueued outbound task.
func CountTask(typ string) {
	if TasksEnqueued != nil {
		TasksEnqueued.WithLabelValues(typ).Inc()
	}
}

// CountDisconnect records one unexpected disconnect.
func CountDisconnect() {
	if Disconnects != nil {
		Disconnects.Inc()
	}
}

// SetQueueDepth records the current event backlog size.
func SetQueueDepth(n int) {
	if QueueDepth != nil {
		QueueDepth.Set(float64(n))
	}
}

// SetSessionsActive records the current number of sessions.
func SetSessionsActive(n int) {
	if SessionsActive != nil {
		SessionsActive.Set(float64(n))
	}
}
