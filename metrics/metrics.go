// Package metrics records capability, hook and terminal activity as
// Prometheus metrics. Each Recorder owns its registry so several can coexist
// in one process (tests, embedded use).
//
// A nil *Recorder is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for capability calls.
const (
	OutcomeOK      = "ok"
	OutcomeBlocked = "blocked"
	OutcomeError   = "error"
)

// Recorder holds the metric vectors.
type Recorder struct {
	registry *prometheus.Registry

	CapabilityCalls  *prometheus.CounterVec
	HookResults      *prometheus.CounterVec
	TerminalsActive  prometheus.Gauge
	TerminalsCreated prometheus.Counter
}

// New creates a Recorder backed by a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,

		CapabilityCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cyril_capability_calls_total",
				Help: "Capability calls handled for the agent",
			},
			[]string{"method", "outcome"},
		),
		HookResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cyril_hook_results_total",
				Help: "Non-continue hook results by phase",
			},
			[]string{"timing", "target", "result"},
		),
		TerminalsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "cyril_terminals_active",
				Help: "Terminals currently tracked",
			},
		),
		TerminalsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "cyril_terminals_created_total",
				Help: "Terminals spawned",
			},
		),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RecordCapabilityCall counts one capability call.
func (r *Recorder) RecordCapabilityCall(method, outcome string) {
	if r == nil {
		return
	}
	r.CapabilityCalls.WithLabelValues(method, outcome).Inc()
}

// RecordHookResult counts one hook result.
func (r *Recorder) RecordHookResult(timing, target, result string) {
	if r == nil {
		return
	}
	r.HookResults.WithLabelValues(timing, target, result).Inc()
}

// TerminalStarted counts a spawned terminal.
func (r *Recorder) TerminalStarted() {
	if r == nil {
		return
	}
	r.TerminalsCreated.Inc()
	r.TerminalsActive.Inc()
}

// TerminalReleased marks a terminal as no longer tracked.
func (r *Recorder) TerminalReleased() {
	if r == nil {
		return
	}
	r.TerminalsActive.Dec()
}
