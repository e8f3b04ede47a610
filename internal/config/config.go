// Package config holds the immutable run configuration and its TOML loader.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/talgya/pqnwatch/internal/guardrail"
	"github.com/talgya/pqnwatch/internal/script"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is one run's parameters. Passed by value; nothing mutates it after Validate.
type Config struct {
	Script string // control script text, see script.Parse
	Steps  int    // total steps
	Dwell  int    // steps each symbol stays active
	DT     float64

	GeomWin    int     // geometric window, in differences
	ResoWin    int     // resonance window, in samples
	ResoTol    float64 // band half-width
	TargetFreq float64 // resonance target frequency
	ResoMinMag float64 // optional resonance hit floor; 0 disables it
	TopK       int     // peaks kept per resonance query
	Consec     int     // sub-threshold steps required for PQN_DETECTED
	KMAD       float64 // MAD multiplier for the geometric threshold

	KEntangle   float64 // kE
	KCohere     float64 // kA
	DistortRate float64 // gD

	Seed      int64   // reserved for stochastic extensions; drives coupling noise
	NoiseAmp  float64 // relative coupling jitter, 0 disables
	NoiseFreq float64 // jitter bandwidth in noise units per unit time

	OutDir      string // dense.csv and events.jsonl land here
	MetricsFile string // optional prometheus textfile
	ReportEvery int    // progress log cadence in steps, 0 disables

	Guardrail guardrail.Config
	Sweep     SweepConfig
}

// SweepConfig drives the motif sweep and council ranking.
type SweepConfig struct {
	Motifs   []string // alphabet the candidates are built from
	Length   int      // motifs per candidate
	Parallel int      // concurrent runs

	WeightPQN     float64
	WeightReso    float64
	WeightParadox float64
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Script: script.DefaultScript,
		Steps:  5000,
		Dwell:  10,
		DT:     0.05,

		GeomWin:    32,
		ResoWin:    128,
		ResoTol:    0.08,
		TargetFreq: 0.3125,
		ResoMinMag: 0,
		TopK:       3,
		Consec:     10,
		KMAD:       6.0,

		KEntangle:   1.0,
		KCohere:     1.0,
		DistortRate: 0.2,

		Seed:      42,
		NoiseAmp:  0,
		NoiseFreq: 0.5,

		OutDir:      "out",
		ReportEvery: 1000,

		Guardrail: guardrail.DefaultConfig(),
		Sweep: SweepConfig{
			Motifs:        []string{"entangle", "cohere", "distort", "idle"},
			Length:        3,
			Parallel:      4,
			WeightPQN:     1.0,
			WeightReso:    0.1,
			WeightParadox: -1.0,
		},
	}
}

// Symbols parses the configured script.
func (c Config) Symbols() ([]script.Symbol, error) {
	text := c.Script
	if strings.TrimSpace(text) == "" {
		text = script.DefaultScript
	}
	return script.Parse(text)
}

// Validate rejects configurations the run loop cannot execute.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
		}
	}

	check(c.Steps >= 0, "steps must be >= 0, got %d", c.Steps)
	check(c.Dwell >= 1, "dwell must be >= 1, got %d", c.Dwell)
	check(c.DT > 0, "dt must be > 0, got %g", c.DT)
	check(c.GeomWin >= 2, "geom_win must be >= 2, got %d", c.GeomWin)
	check(c.ResoWin >= 2, "reso_win must be >= 2, got %d", c.ResoWin)
	check(c.ResoTol >= 0, "reso_tol must be >= 0, got %g", c.ResoTol)
	check(c.TargetFreq > 0, "target_freq must be > 0, got %g", c.TargetFreq)
	check(c.TopK >= 0, "top_k must be >= 0, got %d", c.TopK)
	check(c.Consec >= 1, "consec must be >= 1, got %d", c.Consec)
	check(c.KMAD > 0, "k_mad must be > 0, got %g", c.KMAD)
	check(c.DistortRate >= 0, "distort_rate must be >= 0, got %g", c.DistortRate)
	check(c.NoiseAmp >= 0 && c.NoiseAmp < 1, "noise_amp must be in [0, 1), got %g", c.NoiseAmp)
	check(strings.TrimSpace(c.OutDir) != "", "out_dir is required")
	check(c.ReportEvery >= 0, "report_every must be >= 0, got %d", c.ReportEvery)

	if _, err := c.Symbols(); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalidConfig, err))
	}
	if err := c.Guardrail.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalidConfig, err))
	}
	return errors.Join(errs...)
}

// ValidateSweep checks the sweep section on top of Validate.
func (c Config) ValidateSweep() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if len(c.Sweep.Motifs) == 0 {
		return fmt.Errorf("%w: sweep.motifs is empty", ErrInvalidConfig)
	}
	for _, m := range c.Sweep.Motifs {
		if _, err := script.Parse(m); err != nil {
			return fmt.Errorf("%w: sweep motif %q: %w", ErrInvalidConfig, m, err)
		}
	}
	if c.Sweep.Length < 1 {
		return fmt.Errorf("%w: sweep.length must be >= 1, got %d", ErrInvalidConfig, c.Sweep.Length)
	}
	if c.Sweep.Parallel < 1 {
		return fmt.Errorf("%w: sweep.parallel must be >= 1, got %d", ErrInvalidConfig, c.Sweep.Parallel)
	}
	return nil
}
