package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/pqnwatch/internal/config"
	"github.com/talgya/pqnwatch/internal/quantum"
	"github.com/talgya/pqnwatch/internal/script"
)

func testConfig(steps int) config.Config {
	cfg := config.Default()
	cfg.Steps = steps
	cfg.ReportEvery = 0
	return cfg
}

func newSim(t *testing.T, cfg config.Config) *Simulation {
	t.Helper()
	sim, err := NewSimulation(cfg)
	require.NoError(t, err)
	return sim
}

// --- flags ---

func TestFlagSet(t *testing.T) {
	var s FlagSet
	assert.True(t, s.Empty())
	assert.Equal(t, []string{}, s.Names())

	s.Add(FlagParadoxRisk)
	s.Add(FlagPQNDetected)
	s.Add(FlagPQNDetected)
	assert.False(t, s.Empty())
	assert.True(t, s.Has(FlagPQNDetected))
	assert.False(t, s.Has(FlagResonanceHit))
	assert.Equal(t, []Flag{FlagPQNDetected, FlagParadoxRisk}, s.List())
	assert.Equal(t, []string{"PQN_DETECTED", "PARADOX_RISK"}, s.Names())
}

func TestFlagJSON(t *testing.T) {
	b, err := json.Marshal([]Flag{FlagResonanceHit})
	require.NoError(t, err)
	assert.Equal(t, `["RESONANCE_HIT"]`, string(b))
	assert.Equal(t, "flag(9)", Flag(9).String())
}

func collapsed() StepResult {
	return StepResult{Det: 0, DetDefined: true, Threshold: 1e-6, Obs: quantum.Observables{Purity: 1}}
}

func TestPQNDebounce(t *testing.T) {
	sim := newSim(t, testConfig(0))
	consec := sim.cfg.Consec

	var fired []int
	for i := 0; i < 3*consec; i++ {
		if sim.flags(collapsed()).Has(FlagPQNDetected) {
			fired = append(fired, i)
		}
	}
	assert.Equal(t, []int{consec - 1, 2*consec - 1, 3*consec - 1}, fired)
}

func TestPQNResetsOnMiss(t *testing.T) {
	sim := newSim(t, testConfig(0))
	consec := sim.cfg.Consec

	for i := 0; i < consec-1; i++ {
		require.False(t, sim.flags(collapsed()).Has(FlagPQNDetected))
	}
	miss := collapsed()
	miss.Det = 1
	assert.False(t, sim.flags(miss).Has(FlagPQNDetected))

	undefined := StepResult{}
	for i := 0; i < consec-1; i++ {
		require.False(t, sim.flags(collapsed()).Has(FlagPQNDetected))
	}
	assert.False(t, sim.flags(undefined).Has(FlagPQNDetected))
	assert.Zero(t, sim.consecutive)
}

func TestParadoxRisk(t *testing.T) {
	sim := newSim(t, testConfig(0))

	risky := collapsed()
	risky.Obs = quantum.Observables{Purity: 0.6, Entropy: 0.5}
	assert.True(t, sim.flags(risky).Has(FlagParadoxRisk))

	pure := risky
	pure.Obs.Purity = 0.9
	assert.False(t, sim.flags(pure).Has(FlagParadoxRisk))

	calm := risky
	calm.Obs.Entropy = 0.2
	assert.False(t, sim.flags(calm).Has(FlagParadoxRisk))

	notCollapsed := risky
	notCollapsed.Det = 1
	assert.False(t, sim.flags(notCollapsed).Has(FlagParadoxRisk))
}

// --- simulation ---

func TestNewSimulationRejectsBadConfig(t *testing.T) {
	cfg := testConfig(10)
	cfg.Script = "entangle,warp"
	_, err := NewSimulation(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
	assert.ErrorIs(t, err, script.ErrUnknownSymbol)
}

func TestWindowFill(t *testing.T) {
	cfg := testConfig(0)
	sim := newSim(t, cfg)

	detSeen, specSeen, warnSeen := false, false, false
	for i := 0; i < cfg.ResoWin+10; i++ {
		res := sim.Step()
		assert.Equal(t, i, res.Step)
		assert.InDelta(t, float64(i)*cfg.DT, res.T, 1e-12)

		assert.Equal(t, i >= cfg.GeomWin, res.DetDefined, "det at step %d", i)
		assert.Equal(t, i >= cfg.ResoWin-1, res.Spectrum != nil, "spectrum at step %d", i)
		assert.Equal(t, i >= 2, res.Warning.Defined, "warning at step %d", i)

		// once defined, never undefined again
		if detSeen {
			assert.True(t, res.DetDefined)
		}
		if specSeen {
			assert.NotNil(t, res.Spectrum)
		}
		if warnSeen {
			assert.True(t, res.Warning.Defined)
		}
		detSeen = detSeen || res.DetDefined
		specSeen = specSeen || res.Spectrum != nil
		warnSeen = warnSeen || res.Warning.Defined
	}
	assert.Equal(t, cfg.ResoWin+10, sim.StepsDone())
}

func TestResonanceHitOnFlatSignal(t *testing.T) {
	cfg := testConfig(0)
	cfg.Script = "cohere"
	sim := newSim(t, cfg)

	for i := 0; i < 200; i++ {
		res := sim.Step()
		assert.Zero(t, res.Obs.E, "step %d", i)
		if i < cfg.ResoWin-1 {
			assert.False(t, res.Flags.Has(FlagResonanceHit), "step %d", i)
			continue
		}
		require.NotNil(t, res.Spectrum, "step %d", i)
		require.NotNil(t, res.Spectrum.Hit, "step %d", i)
		assert.InDelta(t, cfg.TargetFreq, res.Spectrum.Hit.Freq, cfg.ResoTol)
		assert.True(t, res.Flags.Has(FlagResonanceHit), "step %d", i)
	}
	assert.Equal(t, 200-cfg.ResoWin+1, sim.Stats.Count(FlagResonanceHit))
}

func TestScriptDrivesSymbols(t *testing.T) {
	cfg := testConfig(0)
	cfg.Script = "entangle,distort"
	cfg.Dwell = 3
	sim := newSim(t, cfg)

	want := []script.Symbol{
		script.Entangle, script.Entangle, script.Entangle,
		script.Distort, script.Distort, script.Distort,
		script.Entangle,
	}
	for i, sym := range want {
		assert.Equal(t, sym, sim.Step().Symbol, "step %d", i)
	}
}

func TestStatsMatchFlags(t *testing.T) {
	sim := newSim(t, testConfig(0))

	var events int
	var counts [numFlags]int
	for i := 0; i < 1500; i++ {
		res := sim.Step()
		if !res.Flags.Empty() {
			events++
		}
		for _, f := range res.Flags.List() {
			counts[f]++
		}
		rho := sim.State()
		require.True(t, rho.IsHermitian(1e-9), "step %d", i)
		require.InDelta(t, 1.0, real(rho.Trace()), 1e-9, "step %d", i)
	}
	assert.Equal(t, 1500, sim.Stats.Steps)
	assert.Equal(t, events, sim.Stats.Events)
	assert.Equal(t, counts, sim.Stats.FlagCounts)
}

func TestGuardrailSubstitutesIdle(t *testing.T) {
	cfg := testConfig(0)
	cfg.Guardrail.Enabled = true
	cfg.Guardrail.MinPurity = 1.0
	cfg.Guardrail.MaxEntropy = 0
	sim := newSim(t, cfg)

	// the mixed initial state trips the guard before the first step, and idle
	// leaves it mixed, so every step is substituted
	for i := 0; i < 50; i++ {
		res := sim.Step()
		require.True(t, res.Substituted, "step %d", i)
		assert.Equal(t, script.Idle, res.Symbol)
	}
	assert.Equal(t, 50, sim.Stats.Substitutions)
	assert.InDelta(t, 0.9, real(sim.State()[0][0]), 1e-12)
}

func TestGuardrailDisabledByDefault(t *testing.T) {
	sim := newSim(t, testConfig(0))
	for i := 0; i < 200; i++ {
		assert.False(t, sim.Step().Substituted)
	}
	assert.Zero(t, sim.Stats.Substitutions)
}

func TestDeterministic(t *testing.T) {
	for _, amp := range []float64{0, 0.3} {
		cfg := testConfig(0)
		cfg.NoiseAmp = amp
		a, b := newSim(t, cfg), newSim(t, cfg)
		for i := 0; i < 400; i++ {
			ra, rb := a.Step(), b.Step()
			require.Equal(t, ra.Obs, rb.Obs, "amp %g step %d", amp, i)
			require.Equal(t, ra.Flags, rb.Flags, "amp %g step %d", amp, i)
		}
	}
}

func TestNoiseChangesTrajectory(t *testing.T) {
	quiet := newSim(t, testConfig(0))
	cfg := testConfig(0)
	cfg.NoiseAmp = 0.5
	noisy := newSim(t, cfg)

	differs := false
	for i := 0; i < 100; i++ {
		if quiet.Step().Obs != noisy.Step().Obs {
			differs = true
		}
	}
	assert.True(t, differs)
}

func TestCouplingNoiseBounds(t *testing.T) {
	assert.Nil(t, newCouplingNoise(1, 0, 1))

	base := quantum.Couplings{Entangle: 1, Cohere: 2, DistortRate: 0.5}
	var n *couplingNoise
	assert.Equal(t, base, n.apply(base, 3))

	n = newCouplingNoise(7, 0.25, 0.5)
	for i := 0; i < 200; i++ {
		c := n.apply(base, float64(i)*0.1)
		assert.InDelta(t, 1.0, c.Entangle, 0.25+1e-9)
		assert.InDelta(t, 2.0, c.Cohere, 0.5+1e-9)
		assert.InDelta(t, 0.5, c.DistortRate, 0.125+1e-9)
	}
}

// --- tick engine ---

func TestEngineRunsAllSteps(t *testing.T) {
	eng := NewEngine(25)
	eng.ReportEvery = 10
	var steps, reports []int
	eng.OnStep = func(step int) error { steps = append(steps, step); return nil }
	eng.OnReport = func(step int) { reports = append(reports, step) }

	require.NoError(t, eng.Run(context.Background()))
	assert.Len(t, steps, 25)
	assert.Equal(t, 0, steps[0])
	assert.Equal(t, 24, steps[24])
	assert.Equal(t, []int{10, 20}, reports)
	assert.Equal(t, 25, eng.Step)
}

func TestEngineStop(t *testing.T) {
	eng := NewEngine(100)
	eng.OnStep = func(step int) error {
		if step == 4 {
			eng.Stop()
		}
		return nil
	}
	require.NoError(t, eng.Run(context.Background()))
	assert.Equal(t, 5, eng.Step)
}

func TestEngineContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	eng := NewEngine(100)
	eng.OnStep = func(step int) error {
		if step == 9 {
			cancel()
		}
		return nil
	}
	err := eng.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 10, eng.Step)
}

func TestEngineStepError(t *testing.T) {
	boom := errors.New("boom")
	eng := NewEngine(10)
	eng.OnStep = func(step int) error {
		if step == 3 {
			return boom
		}
		return nil
	}
	assert.ErrorIs(t, eng.Run(context.Background()), boom)
	assert.Equal(t, 3, eng.Step)
}

// --- execute ---

type sliceSink struct {
	rows []StepResult
	fail int // fail on this many-th write when > 0
}

func (s *sliceSink) Write(res StepResult) error {
	s.rows = append(s.rows, res)
	if s.fail > 0 && len(s.rows) == s.fail {
		return errors.New("disk full")
	}
	return nil
}

type countingRecorder struct{ n int }

func (r *countingRecorder) Record(StepResult) { r.n++ }

func TestExecute(t *testing.T) {
	cfg := testConfig(800)
	dense, events := &sliceSink{}, &sliceSink{}
	rec := &countingRecorder{}

	sum, err := Execute(context.Background(), cfg, Sinks{Dense: dense, Events: events, Recorder: rec})
	require.NoError(t, err)

	assert.Len(t, dense.rows, 800)
	assert.Equal(t, 800, rec.n)
	assert.Len(t, events.rows, sum.Stats.Events)
	for _, ev := range events.rows {
		assert.False(t, ev.Flags.Empty())
	}
	assert.Equal(t, 800, sum.Stats.Steps)
	assert.Equal(t, 800, sum.Steps)
	assert.NotEmpty(t, sum.RunID)
	assert.Equal(t, script.DefaultScript, sum.Script)
	assert.Equal(t, dense.rows[799].Obs, sum.Final)
}

func TestExecuteSinkError(t *testing.T) {
	cfg := testConfig(100)
	dense := &sliceSink{fail: 5}
	sum, err := Execute(context.Background(), cfg, Sinks{Dense: dense})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write dense row 4")
	assert.Equal(t, 5, sum.Stats.Steps)
}

func TestExecuteInvalidConfig(t *testing.T) {
	cfg := testConfig(10)
	cfg.DT = 0
	_, err := Execute(context.Background(), cfg, Sinks{})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestExecuteCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum, err := Execute(ctx, testConfig(100), Sinks{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, sum.Stats.Steps)
}

func TestSummaryRate(t *testing.T) {
	var s Summary
	assert.Zero(t, s.Rate(FlagPQNDetected))

	s.Stats.Steps = 2000
	s.Stats.FlagCounts[FlagResonanceHit] = 30
	assert.InDelta(t, 15.0, s.Rate(FlagResonanceHit), 1e-12)
}

func TestSimStatsJSON(t *testing.T) {
	var s SimStats
	s.Steps = 100
	s.Events = 7
	s.Substitutions = 2
	s.FlagCounts[FlagPQNDetected] = 3
	s.FlagCounts[FlagResonanceHit] = 5

	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"steps":100,"events":7,"substitutions":2,
		"flags":{"PQN_DETECTED":3,"RESONANCE_HIT":5,"PARADOX_RISK":0}}`, string(b))

	var back SimStats
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, s, back)
}
