package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Failure kinds used as the "kind" label of FailuresTotal.
const (
	FailureConfig   = "config"
	FailureFeatures = "features"
	FailureModel    = "model"
	FailureNumeric  = "numeric"
)

// Metrics holds the Prometheus collectors of the simulator
type Metrics struct {
	PathsTotal    prometheus.Counter
	StepsTotal    prometheus.Counter
	BatchesTotal  prometheus.Counter
	FailuresTotal *prometheus.CounterVec
	PathDuration  prometheus.Histogram

	registry *prometheus.Registry
}

// New creates all collectors and registers them on reg. A nil reg gets a
// fresh private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		PathsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "sim_paths_total",
			Help: "Number of trajectories simulated to completion",
		}),
		StepsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "sim_steps_total",
			Help: "Number of simulated steps appended to trajectories",
		}),
		BatchesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "sim_batches_total",
			Help: "Number of multi-run simulations completed",
		}),
		FailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sim_failures_total",
				Help: "Number of aborted simulations by failure kind",
			},
			[]string{"kind"},
		),
		PathDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sim_path_duration_seconds",
			Help:    "Wall time spent simulating one trajectory",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		}),
		registry: reg,
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the current values in the text exposition format,
// suitable for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
