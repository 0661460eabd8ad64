// Package metrics records scheduler and transport observability as
// Prometheus gauges/counters/histograms, mirroring the collector-per-
// component pattern the retrieval pack's sockstats exporter uses. It is
// strictly read-only with respect to simulation state: nothing here ever
// influences tick order or timing, preserving the determinism contract.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics owns its own registry rather than registering to the global
// default, so multiple simulation runs in one process (e.g. tests) never
// collide on metric registration.
type Metrics struct {
	Registry *prometheus.Registry

	TickDuration     prometheus.Histogram
	ActiveTPSessions prometheus.Gauge
	FramesDropped    prometheus.Counter
	ComponentErrors  *prometheus.CounterVec
}

// New builds a Metrics instance with a fresh registry and every gauge,
// counter, and histogram this package exposes.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "j1939sim_tick_duration_seconds",
			Help:    "Wall-clock time spent running one scheduler tick across all components.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		ActiveTPSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "j1939sim_tp_active_sessions",
			Help: "Number of in-flight BAM/RTS transport-protocol sessions.",
		}),
		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "j1939sim_frames_dropped_total",
			Help: "Frames reported as InvalidFrame port errors (out-of-range identifier, malformed payload, or failed transport step).",
		}),
		ComponentErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "j1939sim_component_errors_total",
			Help: "Scheduler component tick failures, labeled by component name.",
		}, []string{"component"}),
	}
}

// ObserveTick records the wall-clock duration of one scheduler Step call.
func (m *Metrics) ObserveTick(d time.Duration) {
	m.TickDuration.Observe(d.Seconds())
}

// SetActiveTPSessions reports the current count of in-flight transport
// sessions across all bound j1939 ports.
func (m *Metrics) SetActiveTPSessions(n int) {
	m.ActiveTPSessions.Set(float64(n))
}

// IncFramesDropped counts one InvalidFrame error event.
func (m *Metrics) IncFramesDropped() {
	m.FramesDropped.Inc()
}

// IncComponentError counts one scheduler ErrorEvent for the named
// component.
func (m *Metrics) IncComponentError(component string) {
	m.ComponentErrors.WithLabelValues(component).Inc()
}
