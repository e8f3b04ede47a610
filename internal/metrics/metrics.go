// Package metrics exposes per-run prometheus counters and gauges and writes
// them to a node-exporter textfile at the end of a run.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/talgya/pqnwatch/internal/engine"
)

const namespace = "pqnwatch"

// Recorder feeds one run's step results into its own registry, so parallel
// runs never share series.
type Recorder struct {
	Registry *prometheus.Registry

	Steps         prometheus.Counter
	Events        *prometheus.CounterVec
	Substitutions prometheus.Counter
	Threshold     prometheus.Gauge
	Purity        prometheus.Gauge
	Entropy       prometheus.Gauge
}

// NewRecorder registers the run series under a fresh registry. Every event
// series starts at zero so absent flags still export.
func NewRecorder(runID string) *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(prometheus.WrapRegistererWith(prometheus.Labels{"run": runID}, reg))

	r := &Recorder{
		Registry: reg,
		Steps: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Simulation steps completed.",
		}),
		Events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Detector flags raised, by flag.",
		}, []string{"flag"}),
		Substitutions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guardrail_substitutions_total",
			Help:      "Script symbols replaced with idle by the guardrail.",
		}),
		Threshold: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "det_threshold",
			Help:      "Current adaptive collapse threshold on |det|.",
		}),
		Purity: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "purity",
			Help:      "Purity of the state after the latest step.",
		}),
		Entropy: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entropy",
			Help:      "Von Neumann entropy of the state after the latest step, in nats.",
		}),
	}
	for _, f := range engine.AllFlags() {
		r.Events.WithLabelValues(f.String())
	}
	return r
}

// Record implements engine.Recorder.
func (r *Recorder) Record(res engine.StepResult) {
	r.Steps.Inc()
	for _, f := range res.Flags.List() {
		r.Events.WithLabelValues(f.String()).Inc()
	}
	if res.Substituted {
		r.Substitutions.Inc()
	}
	if res.DetDefined {
		r.Threshold.Set(res.Threshold)
	}
	r.Purity.Set(res.Obs.Purity)
	r.Entropy.Set(res.Obs.Entropy)
}

// WriteTextfile dumps the registry in text exposition format. The file is
// written to a temp name and renamed, so a scraper never sees a partial file.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.Registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
