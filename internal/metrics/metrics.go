package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Call outcomes used as the status label of tool_calls_total.
const (
	StatusOK         = "ok"
	StatusPaused     = "paused"
	StatusInvalid    = "invalid"
	StatusError      = "error"
	StatusNotFound   = "not_found"
	StatusRemoteFail = "transport_error"
)

// Metrics holds all Prometheus metrics for the application. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Tool metrics
	ToolCallsTotal   *prometheus.CounterVec
	ToolCallDuration *prometheus.HistogramVec

	// Plan metrics
	PlanPausesTotal  *prometheus.CounterVec
	PlanResumesTotal *prometheus.CounterVec

	// Run metrics
	RunsActive prometheus.Gauge

	// Push metrics
	BusEventsDroppedTotal *prometheus.CounterVec
	PushSubscribers       prometheus.Gauge
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		ToolCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_calls_total",
				Help: "Total number of tool invocations by outcome",
			},
			[]string{"tool", "status"},
		),
		ToolCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tool_call_duration_seconds",
				Help:    "Duration of tool invocations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),

		PlanPausesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plan_pauses_total",
				Help: "Total number of plans that paused for external input",
			},
			[]string{"tool"},
		),
		PlanResumesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plan_resumes_total",
				Help: "Total number of plans resumed from a checkpoint",
			},
			[]string{"tool"},
		),

		RunsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "runs_active",
				Help: "Number of asynchronous runs currently executing",
			},
		),

		BusEventsDroppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bus_events_dropped_total",
				Help: "Total number of events dropped for slow subscribers",
			},
			[]string{"kind"},
		),
		PushSubscribers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "push_subscribers",
				Help: "Number of connected push subscribers",
			},
		),
	}

	m.registry.MustRegister(
		m.ToolCallsTotal,
		m.ToolCallDuration,
		m.PlanPausesTotal,
		m.PlanResumesTotal,
		m.RunsActive,
		m.BusEventsDroppedTotal,
		m.PushSubscribers,
	)

	return m
}

// ObserveToolCall records one finished invocation
func (m *Metrics) ObserveToolCall(tool, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.ToolCallsTotal.WithLabelValues(tool, status).Inc()
	m.ToolCallDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// PlanPaused counts a pause of tool's plan
func (m *Metrics) PlanPaused(tool string) {
	if m == nil {
		return
	}
	m.PlanPausesTotal.WithLabelValues(tool).Inc()
}

// PlanResumed counts a resume of tool's plan
func (m *Metrics) PlanResumed(tool string) {
	if m == nil {
		return
	}
	m.PlanResumesTotal.WithLabelValues(tool).Inc()
}

// RunStarted increments the active run gauge
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.RunsActive.Inc()
}

// RunEnded decrements the active run gauge
func (m *Metrics) RunEnded() {
	if m == nil {
		return
	}
	m.RunsActive.Dec()
}

// EventDropped counts an event not delivered to a full subscriber
func (m *Metrics) EventDropped(kind string) {
	if m == nil {
		return
	}
	m.BusEventsDroppedTotal.WithLabelValues(kind).Inc()
}

// SubscriberAdded increments the push subscriber gauge
func (m *Metrics) SubscriberAdded() {
	if m == nil {
		return
	}
	m.PushSubscribers.Inc()
}

// SubscriberRemoved decrements the push subscriber gauge
func (m *Metrics) SubscriberRemoved() {
	if m == nil {
		return
	}
	m.PushSubscribers.Dec()
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
