// Package engine provides the step loop that drives a run and the per-step
// simulation it advances.
package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Engine drives a fixed number of steps. It has no notion of wall-clock time:
// a run is deterministic in step count.
type Engine struct {
	Step        int // steps completed (monotonic, never resets)
	Total       int // steps to run
	ReportEvery int // OnReport cadence in steps, 0 disables

	// Callbacks, populated during setup.
	OnStep   func(step int) error // every step; an error aborts the run
	OnReport func(step int)       // every ReportEvery steps

	stopped atomic.Bool
}

// NewEngine creates an engine for total steps.
func NewEngine(total int) *Engine {
	return &Engine{Total: total}
}

// Run issues steps until Total is reached, Stop is called, the context is
// cancelled, or OnStep fails. Cancellation is only checked between steps.
func (e *Engine) Run(ctx context.Context) error {
	slog.Debug("step engine started", "step", e.Step, "total", e.Total)

	for e.Step < e.Total {
		if e.stopped.Load() {
			slog.Info("step engine stopped", "step", e.Step)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.step(); err != nil {
			return err
		}
	}

	slog.Debug("step engine finished", "step", e.Step)
	return nil
}

// Stop makes Run return before the next step. Safe to call from another goroutine.
func (e *Engine) Stop() {
	e.stopped.Store(true)
}

func (e *Engine) step() error {
	if e.OnStep != nil {
		if err := e.OnStep(e.Step); err != nil {
			return err
		}
	}
	e.Step++

	if e.ReportEvery > 0 && e.Step%e.ReportEvery == 0 && e.OnReport != nil {
		e.OnReport(e.Step)
	}
	return nil
}
