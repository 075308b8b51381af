// Package metrics exports the orchestrator's Telemetry hook stream
// (C5) as Prometheus series, entirely decoupled from the orchestrator
// itself: it is just one more registered Handler.
//
// A centralized Metrics struct holds one CounterVec/HistogramVec field
// per event kind, registered once via promauto, with a single method
// translating hook events into label/value updates — the label set and
// metric names are tool/model/workflow events rather than generic chat
// events, but the registration shape follows the same pattern used
// throughout this ecosystem's observability packages.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Unicorn/Radium-sub010/internal/hooks"
)

// Metrics holds every series this daemon exports. Construct once per
// process with NewMetrics and register its Handler with the hook
// registry's Telemetry type.
type Metrics struct {
	ToolCallsTotal   *prometheus.CounterVec
	ToolCallDuration *prometheus.HistogramVec

	ModelRequestsTotal *prometheus.CounterVec
	ModelTokensTotal   *prometheus.CounterVec
	ModelRequestDur    prometheus.Histogram

	BudgetWarnings prometheus.Counter

	WorkflowStepsTotal *prometheus.CounterVec
}

// NewMetrics registers every series against reg and returns the
// handle. Pass prometheus.DefaultRegisterer for a process-wide /metrics
// endpoint, or a fresh prometheus.NewRegistry() in tests to avoid
// collisions between test runs.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ToolCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "radium_tool_calls_total",
			Help: "Tool calls executed, labeled by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		ToolCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "radium_tool_call_duration_seconds",
			Help:    "Tool call latency in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"tool"}),
		ModelRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "radium_model_requests_total",
			Help: "Model requests issued, labeled by outcome.",
		}, []string{"outcome"}),
		ModelTokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "radium_model_tokens_total",
			Help: "Tokens consumed by model requests, labeled by direction.",
		}, []string{"direction"}),
		ModelRequestDur: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "radium_model_request_duration_seconds",
			Help:    "Model request latency in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		BudgetWarnings: factory.NewCounter(prometheus.CounterOpts{
			Name: "radium_budget_warnings_total",
			Help: "Times a session crossed its budget warning threshold.",
		}),
		WorkflowStepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "radium_workflow_steps_total",
			Help: "Workflow steps completed, labeled by outcome.",
		}, []string{"outcome"}),
	}
}

// Handler adapts Metrics to a hooks.Handler for registration against
// hooks.Telemetry. It never vetoes or rewrites data — Telemetry hooks
// cannot change flow (§4.2) — and always returns hooks.Continue.
func (m *Metrics) Handler() hooks.Handler {
	return func(ctx context.Context, ev hooks.Event) hooks.Result {
		if ev.Type != hooks.Telemetry {
			return hooks.Result{Outcome: hooks.Continue}
		}
		m.observe(ev)
		return hooks.Result{Outcome: hooks.Continue}
	}
}

func (m *Metrics) observe(ev hooks.Event) {
	if _, ok := ev.Counters["tool_calls_total"]; ok {
		outcome := "error"
		if ev.Counters["tool_calls_success"] == 1 {
			outcome = "success"
		}
		m.ToolCallsTotal.WithLabelValues(ev.ToolName, outcome).Inc()
		if ms, ok := ev.Durations["tool_call_duration_ms"]; ok {
			m.ToolCallDuration.WithLabelValues(ev.ToolName).Observe(ms / 1000)
		}
	}
	if _, ok := ev.Counters["model_requests_total"]; ok {
		outcome := "success"
		if ev.Counters["model_requests_error"] == 1 {
			outcome = "error"
		}
		m.ModelRequestsTotal.WithLabelValues(outcome).Inc()
		if ms, ok := ev.Durations["model_request_duration_ms"]; ok {
			m.ModelRequestDur.Observe(ms / 1000)
		}
		if in, ok := ev.Counters["model_input_tokens"]; ok {
			m.ModelTokensTotal.WithLabelValues("input").Add(in)
		}
		if out, ok := ev.Counters["model_output_tokens"]; ok {
			m.ModelTokensTotal.WithLabelValues("output").Add(out)
		}
	}
	if _, ok := ev.Counters["budget_warning"]; ok {
		m.BudgetWarnings.Inc()
	}
	if v, ok := ev.Counters["workflow_step_completed"]; ok && v == 1 {
		m.WorkflowStepsTotal.WithLabelValues("completed").Inc()
	}
	if v, ok := ev.Counters["workflow_step_failed"]; ok && v == 1 {
		m.WorkflowStepsTotal.WithLabelValues("failed").Inc()
	}
}
