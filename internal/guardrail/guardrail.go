// Package guardrail throttles the control script when the observables look
// like a collapse into a mixed, degenerate state: the upcoming symbol is
// swapped for idle until the state recovers.
package guardrail

import (
	"errors"
	"fmt"
	"math"

	"github.com/talgya/pqnwatch/internal/script"
)

// Triple is the per-step observable triple a run publishes for the guardrail.
type Triple struct {
	Purity     float64
	Entropy    float64
	Det        float64
	DetDefined bool
}

// Config sets the trip points. A zero DetFloor disables the determinant check.
type Config struct {
	Enabled    bool
	MinPurity  float64 // trip when purity falls below this...
	MaxEntropy float64 // ...while entropy is above this
	DetFloor   float64 // or when |det| is defined and below this
	Hold       int     // extra steps to keep substituting after a trip
}

var ErrBadGuardrail = errors.New("guardrail: bad config")

// DefaultConfig mirrors the paradox-risk boundary; disabled.
func DefaultConfig() Config {
	return Config{
		Enabled:    false,
		MinPurity:  0.8,
		MaxEntropy: 0.3,
		DetFloor:   1e-9,
		Hold:       5,
	}
}

// Validate checks ranges.
func (c Config) Validate() error {
	if c.MinPurity < 0 || c.MinPurity > 1 {
		return fmt.Errorf("%w: min_purity %g outside [0, 1]", ErrBadGuardrail, c.MinPurity)
	}
	if c.MaxEntropy < 0 {
		return fmt.Errorf("%w: max_entropy %g < 0", ErrBadGuardrail, c.MaxEntropy)
	}
	if c.DetFloor < 0 {
		return fmt.Errorf("%w: det_floor %g < 0", ErrBadGuardrail, c.DetFloor)
	}
	if c.Hold < 0 {
		return fmt.Errorf("%w: hold %d < 0", ErrBadGuardrail, c.Hold)
	}
	return nil
}

// Guard is stateful only through its hold counter; one per run.
type Guard struct {
	cfg   Config
	hold  int
	swaps int
}

// New returns a guard, or nil when the config is disabled. A nil *Guard never substitutes.
func New(cfg Config) *Guard {
	if !cfg.Enabled {
		return nil
	}
	return &Guard{cfg: cfg}
}

// Decide reports whether the triple trips the guard.
func (g *Guard) Decide(t Triple) bool {
	if g == nil {
		return false
	}
	if t.Purity < g.cfg.MinPurity && t.Entropy > g.cfg.MaxEntropy {
		return true
	}
	if t.DetDefined && g.cfg.DetFloor > 0 && math.Abs(t.Det) < g.cfg.DetFloor {
		return true
	}
	return false
}

// Apply returns the symbol to run next given the previous step's triple,
// and whether it was substituted.
func (g *Guard) Apply(next script.Symbol, last Triple) (script.Symbol, bool) {
	if g == nil {
		return next, false
	}
	if g.Decide(last) {
		g.hold = g.cfg.Hold
	} else if g.hold > 0 {
		g.hold--
	} else {
		return next, false
	}
	g.swaps++
	return script.Idle, true
}

// Substitutions returns how many symbols have been replaced.
func (g *Guard) Substitutions() int {
	if g == nil {
		return 0
	}
	return g.swaps
}
