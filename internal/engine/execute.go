// Execute is the single entry point of the core: one run, two artifacts.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/talgya/pqnwatch/internal/config"
	"github.com/talgya/pqnwatch/internal/quantum"
	"github.com/talgya/pqnwatch/internal/script"
)

// Sink receives every step's result and decides what to persist.
type Sink interface {
	Write(StepResult) error
}

// Recorder observes every step, e.g. for metrics. Must not fail.
type Recorder interface {
	Record(StepResult)
}

// Sinks bundles the outputs of a run. Dense sees every step; Events sees
// only steps with at least one flag. Any field may be nil.
type Sinks struct {
	RunID    string // generated when empty
	Dense    Sink
	Events   Sink
	Recorder Recorder
}

// Summary describes a finished (or aborted) run.
type Summary struct {
	RunID   string              `json:"run_id"`
	Script  string              `json:"script"`
	Steps   int                 `json:"steps"`
	Stats   SimStats            `json:"stats"`
	Final   quantum.Observables `json:"final"`
	Started time.Time           `json:"started"`
	Elapsed time.Duration       `json:"elapsed"`
}

// Rate returns how often f fired per 1000 steps.
func (s Summary) Rate(f Flag) float64 {
	if s.Stats.Steps == 0 {
		return 0
	}
	return 1000 * float64(s.Stats.Count(f)) / float64(s.Stats.Steps)
}

// NewRunID returns a fresh run identifier.
func NewRunID() string { return uuid.NewString() }

// Execute runs cfg.Steps steps, streaming results into sinks. It fails fast
// on an invalid config and aborts on the first sink error; the caller owns
// opening, flushing and closing the sinks.
func Execute(ctx context.Context, cfg config.Config, sinks Sinks) (Summary, error) {
	sim, err := NewSimulation(cfg)
	if err != nil {
		return Summary{}, fmt.Errorf("setup run: %w", err)
	}
	syms, _ := cfg.Symbols()

	if sinks.RunID == "" {
		sinks.RunID = NewRunID()
	}
	sum := Summary{
		RunID:   sinks.RunID,
		Script:  script.Format(syms),
		Steps:   cfg.Steps,
		Started: time.Now(),
	}
	log := slog.With("run", shortID(sum.RunID))
	log.Info("run started",
		"script", sum.Script,
		"steps", humanize.Comma(int64(cfg.Steps)),
		"dwell", cfg.Dwell,
		"dt", cfg.DT,
		"guardrail", cfg.Guardrail.Enabled,
	)

	var last StepResult
	eng := NewEngine(cfg.Steps)
	eng.ReportEvery = cfg.ReportEvery
	eng.OnStep = func(step int) error {
		res := sim.Step()
		last = res
		if sinks.Recorder != nil {
			sinks.Recorder.Record(res)
		}
		if sinks.Dense != nil {
			if err := sinks.Dense.Write(res); err != nil {
				return fmt.Errorf("write dense row %d: %w", step, err)
			}
		}
		if sinks.Events != nil && !res.Flags.Empty() {
			if err := sinks.Events.Write(res); err != nil {
				return fmt.Errorf("write event %d: %w", step, err)
			}
		}
		return nil
	}
	eng.OnReport = func(step int) {
		log.Info("progress report",
			"step", humanize.Comma(int64(step)),
			"purity", fmt.Sprintf("%.3f", last.Obs.Purity),
			"entropy", fmt.Sprintf("%.3f", last.Obs.Entropy),
			"events", sim.Stats.Events,
			"pqn", sim.Stats.Count(FlagPQNDetected),
			"resonance", sim.Stats.Count(FlagResonanceHit),
			"paradox", sim.Stats.Count(FlagParadoxRisk),
		)
	}

	runErr := eng.Run(ctx)

	sum.Stats = sim.Stats
	sum.Final = quantum.Observe(sim.State())
	sum.Elapsed = time.Since(sum.Started)

	if runErr != nil {
		log.Error("run aborted", "step", eng.Step, "error", runErr)
		return sum, runErr
	}
	log.Info("run finished",
		"steps", humanize.Comma(int64(sum.Stats.Steps)),
		"events", sum.Stats.Events,
		"pqn_per_1k", fmt.Sprintf("%.3f", sum.Rate(FlagPQNDetected)),
		"reso_per_1k", fmt.Sprintf("%.3f", sum.Rate(FlagResonanceHit)),
		"paradox_per_1k", fmt.Sprintf("%.3f", sum.Rate(FlagParadoxRisk)),
		"substitutions", sum.Stats.Substitutions,
		"elapsed", sum.Elapsed.Round(time.Millisecond),
	)
	return sum, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
