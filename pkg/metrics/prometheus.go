// Package metrics provides Prometheus metrics for the task distribution engine.
//
// A Manager owns its registry and is injected into the components that
// record into it. All recording methods are safe on a nil *Manager, which
// turns them into no-ops; tests construct components without metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery results recorded by the event bus.
const (
	DeliveryOK           = "ok"
	DeliveryFailed       = "failed"
	DeliveryPanic        = "panic"
	DeliveryBackpressure = "backpressure"
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         *prometheus.Registry

	// Event bus
	eventsEmitted   *prometheus.CounterVec
	deliveries      *prometheus.CounterVec
	handlerLatency  prometheus.Histogram
	outcomesDropped prometheus.Counter
	queueSize       prometheus.Gauge
	queueCapacity   prometheus.Gauge
	busWorkers      prometheus.Gauge
	duplicateEvents prometheus.Counter

	// Distribution pipeline
	tasksGenerated    *prometheus.CounterVec
	assignments       *prometheus.CounterVec
	noAssignee        prometheus.Counter
	decisionLatency   prometheus.Histogram
	approvals         *prometheus.CounterVec
	reassignSkipped   prometheus.Counter
	skillUpdates      *prometheus.CounterVec
	notifyFailures    prometheus.Counter
	eligibleWorkers   prometheus.Gauge
	configReloads     *prometheus.CounterVec
	errorsByComponent *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewManager creates a metrics manager. Without WithRegistry a fresh registry
// carrying the Go and process collectors is created.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "autodist",
		subsystem:        "distribution",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	})
}

func (m *Manager) initializeMetrics() {
	m.eventsEmitted = m.counterVec("events_emitted_total", "Business events emitted on the bus", "event_type")
	m.deliveries = m.counterVec("handler_deliveries_total", "Handler deliveries by result", "result")
	m.handlerLatency = m.histogram("handler_latency_milliseconds", "Event handler execution time in milliseconds")
	m.outcomesDropped = m.counter("outcomes_dropped_total", "Handler outcomes dropped because nobody drained the channel")
	m.queueSize = m.gauge("bus_queue_size", "Deliveries waiting in the bus queue")
	m.queueCapacity = m.gauge("bus_queue_capacity", "Maximum bus queue capacity")
	m.busWorkers = m.gauge("bus_workers", "Number of bus dispatch workers")
	m.duplicateEvents = m.counter("events_duplicate_total", "Ingested events rejected as duplicates")

	m.tasksGenerated = m.counterVec("tasks_generated_total", "Task definitions generated from events", "task_kind")
	m.assignments = m.counterVec("assignments_total", "Assignment decisions committed by method", "method")
	m.noAssignee = m.counter("no_assignee_total", "Task definitions that found no eligible assignee")
	m.decisionLatency = m.histogram("decision_latency_milliseconds", "Time to score and commit one task definition")
	m.approvals = m.counterVec("approvals_total", "Approval records by status transition", "status")
	m.reassignSkipped = m.counter("reassign_skipped_total", "Open tasks that could not be reassigned")
	m.skillUpdates = m.counterVec("skill_updates_total", "Skill score updates by skill and timeliness", "skill", "outcome")
	m.notifyFailures = m.counter("notification_failures_total", "Notifications that failed to persist")
	m.eligibleWorkers = m.gauge("eligible_workers", "Eligible workers seen by the last assignment decision")
	m.configReloads = m.counterVec("config_reloads_total", "Distribution config reloads by result", "result")
	m.errorsByComponent = m.counterVec("errors_total", "Errors by component and type", "component", "error_type")

	auto := promauto.With(m.registry)
	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: "http_requests_total",
		Help: "Total number of HTTP requests by endpoint and method",
	}, []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name:    "http_request_duration_milliseconds",
		Help:    "HTTP request duration in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})
}

// Registry returns the registry backing this manager.
func (m *Manager) Registry() *prometheus.Registry {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

func (m *Manager) RecordEventEmitted(eventType string) {
	if m == nil {
		return
	}
	m.eventsEmitted.WithLabelValues(eventType).Inc()
}

func (m *Manager) RecordDelivery(result string, latencyMs float64) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(result).Inc()
	if result != DeliveryBackpressure {
		m.handlerLatency.Observe(latencyMs)
	}
}

func (m *Manager) RecordOutcomeDropped() {
	if m == nil {
		return
	}
	m.outcomesDropped.Inc()
}

func (m *Manager) UpdateQueue(size, capacity int) {
	if m == nil {
		return
	}
	m.queueSize.Set(float64(size))
	m.queueCapacity.Set(float64(capacity))
}

func (m *Manager) UpdateBusWorkers(count int) {
	if m == nil {
		return
	}
	m.busWorkers.Set(float64(count))
}

func (m *Manager) RecordDuplicateEvent() {
	if m == nil {
		return
	}
	m.duplicateEvents.Inc()
}

func (m *Manager) RecordTaskGenerated(kind string) {
	if m == nil {
		return
	}
	m.tasksGenerated.WithLabelValues(kind).Inc()
}

func (m *Manager) RecordAssignment(method string) {
	if m == nil {
		return
	}
	m.assignments.WithLabelValues(method).Inc()
}

func (m *Manager) RecordNoAssignee() {
	if m == nil {
		return
	}
	m.noAssignee.Inc()
}

func (m *Manager) RecordDecisionLatency(latencyMs float64) {
	if m == nil {
		return
	}
	m.decisionLatency.Observe(latencyMs)
}

func (m *Manager) RecordApproval(status string) {
	if m == nil {
		return
	}
	m.approvals.WithLabelValues(status).Inc()
}

func (m *Manager) RecordReassignSkipped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.reassignSkipped.Add(float64(n))
}

func (m *Manager) RecordSkillUpdate(skill string, onTime bool) {
	if m == nil {
		return
	}
	outcome := "late"
	if onTime {
		outcome = "on_time"
	}
	m.skillUpdates.WithLabelValues(skill, outcome).Inc()
}

func (m *Manager) RecordNotificationFailure() {
	if m == nil {
		return
	}
	m.notifyFailures.Inc()
}

func (m *Manager) UpdateEligibleWorkers(n int) {
	if m == nil {
		return
	}
	m.eligibleWorkers.Set(float64(n))
}

func (m *Manager) RecordConfigReload(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "invalid"
	}
	m.configReloads.WithLabelValues(result).Inc()
}

func (m *Manager) RecordError(component, errorType string) {
	if m == nil {
		return
	}
	m.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

func (m *Manager) RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}
