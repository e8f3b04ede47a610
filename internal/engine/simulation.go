// Simulation owns one run's state and advances it a step at a time:
// script → operators → Lindblad step → observables → detectors → flags.
package engine

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/talgya/pqnwatch/internal/config"
	"github.com/talgya/pqnwatch/internal/detect"
	"github.com/talgya/pqnwatch/internal/guardrail"
	"github.com/talgya/pqnwatch/internal/quantum"
	"github.com/talgya/pqnwatch/internal/script"
)

// Paradox-risk boundaries.
const (
	ParadoxMaxPurity  = 0.8
	ParadoxMinEntropy = 0.3
)

// StepResult is everything one step produced. Values that may not exist yet
// carry a Defined flag or a nil pointer.
type StepResult struct {
	Step        int
	T           float64
	Symbol      script.Symbol
	Substituted bool // guardrail replaced the scripted symbol with idle

	Obs quantum.Observables

	Det        float64
	DetDefined bool
	Threshold  float64 // meaningful only when DetDefined

	Spectrum *detect.Spectrum // nil until the resonance window is full
	Warning  detect.Warning

	Flags FlagSet
}

// Triple is the stable observable triple published for the guardrail.
func (r StepResult) Triple() guardrail.Triple {
	return guardrail.Triple{
		Purity:     r.Obs.Purity,
		Entropy:    r.Obs.Entropy,
		Det:        r.Det,
		DetDefined: r.DetDefined,
	}
}

// Collapsed reports whether the determinant is defined and below threshold.
func (r StepResult) Collapsed() bool {
	return r.DetDefined && math.Abs(r.Det) < r.Threshold
}

// SimStats tracks aggregate counts over a run.
type SimStats struct {
	Steps         int           `json:"steps"`
	Events        int           `json:"events"` // steps with at least one flag
	FlagCounts    [numFlags]int `json:"-"`
	Substitutions int           `json:"substitutions"`
}

// Count returns how many times f fired.
func (s SimStats) Count(f Flag) int { return s.FlagCounts[f] }

type simStatsJSON struct {
	Steps         int            `json:"steps"`
	Events        int            `json:"events"`
	Flags         map[string]int `json:"flags"`
	Substitutions int            `json:"substitutions"`
}

// MarshalJSON writes the per-flag counts keyed by wire name.
func (s SimStats) MarshalJSON() ([]byte, error) {
	out := simStatsJSON{
		Steps:         s.Steps,
		Events:        s.Events,
		Flags:         make(map[string]int, numFlags),
		Substitutions: s.Substitutions,
	}
	for _, f := range AllFlags() {
		out.Flags[f.String()] = s.Count(f)
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads what MarshalJSON writes; unknown flag names are ignored.
func (s *SimStats) UnmarshalJSON(data []byte) error {
	var in simStatsJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*s = SimStats{Steps: in.Steps, Events: in.Events, Substitutions: in.Substitutions}
	for _, f := range AllFlags() {
		s.FlagCounts[f] = in.Flags[f.String()]
	}
	return nil
}

// Simulation holds the state of a single run. Not safe for concurrent use;
// independent runs share nothing.
type Simulation struct {
	cfg       config.Config
	couplings quantum.Couplings

	rho    quantum.Matrix
	interp *script.Interpreter
	geom   *detect.GeomMeter
	reso   *detect.Resonance
	warn   *detect.EarlyWarning
	guard  *guardrail.Guard
	noise  *couplingNoise

	step        int
	consecutive int
	last        guardrail.Triple

	Stats SimStats
}

// NewSimulation validates cfg and builds a run at the fixed initial state.
func NewSimulation(cfg config.Config) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	syms, err := cfg.Symbols()
	if err != nil {
		return nil, err
	}
	interp, err := script.New(syms, cfg.Dwell)
	if err != nil {
		return nil, fmt.Errorf("script: %w", err)
	}

	rho := quantum.InitialState()
	obs := quantum.Observe(rho)

	return &Simulation{
		cfg: cfg,
		couplings: quantum.Couplings{
			Entangle:    cfg.KEntangle,
			Cohere:      cfg.KCohere,
			DistortRate: cfg.DistortRate,
		},
		rho:    rho,
		interp: interp,
		geom:   detect.NewGeomMeter(cfg.GeomWin, cfg.KMAD),
		reso: detect.NewResonance(detect.ResonanceConfig{
			Window:    cfg.ResoWin,
			Target:    cfg.TargetFreq,
			Tolerance: cfg.ResoTol,
			MinHitMag: cfg.ResoMinMag,
		}),
		warn:  detect.NewEarlyWarning(detect.WarningWindow(cfg.GeomWin)),
		guard: guardrail.New(cfg.Guardrail),
		noise: newCouplingNoise(cfg.Seed, cfg.NoiseAmp, cfg.NoiseFreq),
		last:  guardrail.Triple{Purity: obs.Purity, Entropy: obs.Entropy},
	}, nil
}

// State returns a copy of the current density matrix.
func (s *Simulation) State() quantum.Matrix { return s.rho }

// StepsDone returns how many steps have been taken.
func (s *Simulation) StepsDone() int { return s.step }

// Step advances the run by one time step.
func (s *Simulation) Step() StepResult {
	t := float64(s.step) * s.cfg.DT
	res := StepResult{Step: s.step, T: t}

	sym := s.interp.Next()
	if swapped, ok := s.guard.Apply(sym, s.last); ok {
		sym = swapped
		res.Substituted = true
		s.Stats.Substitutions++
	}
	res.Symbol = sym

	h, ds := quantum.Select(sym, s.noise.apply(s.couplings, t))
	s.rho = quantum.Step(s.rho, h, ds, s.cfg.DT)
	res.Obs = quantum.Observe(s.rho)

	s.geom.Push(res.Obs.C, res.Obs.E)
	res.Det, res.DetDefined = s.geom.Det()
	if res.DetDefined {
		res.Threshold = s.geom.Threshold()
	}

	s.reso.Push(res.Obs.E)
	if sp, ok := s.reso.Detect(s.cfg.DT, s.cfg.TopK); ok {
		res.Spectrum = &sp
	}
	res.Warning = s.warn.Push(res.Obs.E, res.Obs.Entropy)

	res.Flags = s.flags(res)

	s.Stats.Steps++
	if !res.Flags.Empty() {
		s.Stats.Events++
		for _, f := range res.Flags.List() {
			s.Stats.FlagCounts[f]++
		}
	}
	s.last = res.Triple()
	s.step++
	return res
}

// flags applies the emitter rules. PQN_DETECTED is edge-triggered: the
// consecutive counter restarts from zero every time it fires.
func (s *Simulation) flags(res StepResult) FlagSet {
	var set FlagSet

	if res.Collapsed() {
		s.consecutive++
	} else {
		s.consecutive = 0
	}
	if s.consecutive >= s.cfg.Consec {
		set.Add(FlagPQNDetected)
		s.consecutive = 0
	}

	if res.Spectrum != nil && res.Spectrum.Hit != nil {
		set.Add(FlagResonanceHit)
	}

	if res.Collapsed() && res.Obs.Purity < ParadoxMaxPurity && res.Obs.Entropy > ParadoxMinEntropy {
		set.Add(FlagParadoxRisk)
	}
	return set
}
