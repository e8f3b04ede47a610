package detect

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMedianAndMAD(t *testing.T) {
	assert.True(t, math.IsNaN(Median(nil)))
	assert.Equal(t, 2.0, Median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, Median([]float64{4, 1, 3, 2}))

	xs := []float64{1, 1, 2, 2, 4, 6, 9}
	assert.Equal(t, 1.0, MAD(xs))
	assert.Equal(t, []float64{1, 1, 2, 2, 4, 6, 9}, xs, "input must not be reordered")
}

func TestGeomMeter_WindowFill(t *testing.T) {
	g := NewGeomMeter(4, 6)
	for i := 0; i < 4; i++ {
		g.Push(float64(i%2), float64(i))
		_, ok := g.Det()
		assert.False(t, ok, "det must be undefined after %d samples", i+1)
	}
	for i := 4; i < 20; i++ {
		g.Push(float64(i%2), float64(i*i%7))
		_, ok := g.Det()
		assert.True(t, ok, "det must be defined after %d samples", i+1)
	}
}

func TestGeomMeter_ConstantSeries(t *testing.T) {
	g := NewGeomMeter(8, 6)
	for i := 0; i < 9; i++ {
		g.Push(0.3, 0.1)
	}
	var det float64
	var ok bool
	require.NotPanics(t, func() { det, ok = g.Det() })
	require.True(t, ok)
	assert.Equal(t, 0.0, det)

	// One flat series is enough to fall back to the diagonal covariance.
	g = NewGeomMeter(4, 6)
	for _, c := range []float64{0, 1, 0, 1, 0} {
		g.Push(c, 0.5)
	}
	det, ok = g.Det()
	require.True(t, ok)
	assert.Equal(t, 0.0, det)
}

func TestGeomMeter_Uncorrelated(t *testing.T) {
	g := NewGeomMeter(4, 6)
	cs := []float64{0, 1, 0, 1, 0}
	es := []float64{0, 1, 2, 1, 0}
	for i := range cs {
		g.Push(cs[i], es[i])
	}
	det, ok := g.Det()
	require.True(t, ok)
	// ΔC = [1 -1 1 -1], ΔE = [1 1 -1 -1]: variances 4/3, covariance 0.
	assert.InDelta(t, 16.0/9.0, det, 1e-12)
	assert.Equal(t, 1, g.HistoryLen())
}

func TestGeomMeter_Correlated(t *testing.T) {
	g := NewGeomMeter(6, 6)
	for i := 0; i < 7; i++ {
		x := float64(i * i)
		g.Push(x, 2*x+1)
	}
	det, ok := g.Det()
	require.True(t, ok)
	assert.InDelta(t, 0.0, det, 1e-9)
}

func TestGeomMeter_Threshold(t *testing.T) {
	g := NewGeomMeter(4, 6)
	assert.Equal(t, DetFloor, g.Threshold())

	for i := 0; i < MinCalibration-1; i++ {
		g.history.Push(float64(i))
	}
	assert.Equal(t, DetFloor, g.Threshold(), "floor until the history is long enough")

	g = NewGeomMeter(4, 6)
	for i := 1; i <= 100; i++ {
		g.history.Push(float64(i))
	}
	// median 50.5, absolute deviations 0.5..49.5 twice each: MAD 25.
	assert.InDelta(t, 150.0, g.Threshold(), 1e-9)

	g = NewGeomMeter(4, 6)
	for i := 0; i < 400; i++ {
		g.history.Push(0)
	}
	assert.Equal(t, DetFloor, g.Threshold(), "flat history never drops below the floor")
}

func TestGeomMeter_ThresholdUsesRecentWindow(t *testing.T) {
	g := NewGeomMeter(4, 2)
	for i := 0; i < 1000; i++ {
		g.history.Push(1e6)
	}
	for i := 1; i <= CalibrationWindow; i++ {
		g.history.Push(float64(i % 3))
	}
	// Last 300 values cycle 1,2,0: median 1, MAD 1.
	assert.InDelta(t, 2.0, g.Threshold(), 1e-9)
}

func TestGeomMeter_HistoryCapped(t *testing.T) {
	g := NewGeomMeter(2, 6)
	for i := 0; i < DetHistoryCap+10; i++ {
		g.history.Push(1)
	}
	assert.Equal(t, DetHistoryCap, g.HistoryLen())
}

func newTestResonance(target, tol float64) *Resonance {
	return NewResonance(ResonanceConfig{Window: 128, Target: target, Tolerance: tol})
}

func sine(n int, freq, dt, offset, amp float64) []float64 {
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = offset + amp*math.Sin(2*math.Pi*freq*float64(i)*dt)
	}
	return xs
}

func TestResonance_NotReady(t *testing.T) {
	r := newTestResonance(0.3125, 0.08)
	for i := 0; i < 127; i++ {
		r.Push(0.1)
		_, ok := r.Detect(0.05, 3)
		assert.False(t, ok)
	}
	r.Push(0.1)
	_, ok := r.Detect(0.05, 3)
	assert.True(t, ok)
}

func TestResonance_SinusoidHit(t *testing.T) {
	const dt, target, tol = 0.05, 0.3125, 0.08
	r := newTestResonance(target, tol)
	for _, x := range sine(128, target, dt, 0.5, 0.2) {
		r.Push(x)
	}

	sp, ok := r.Detect(dt, 3)
	require.True(t, ok)
	require.NotNil(t, sp.Hit)
	assert.InDelta(t, target, sp.Hit.Freq, tol)
	assert.InDelta(t, 12.8, sp.Hit.Mag, 1e-6)

	require.Len(t, sp.Top, 3)
	assert.InDelta(t, target, sp.Top[0].Freq, 1e-9)
	assert.GreaterOrEqual(t, sp.Top[0].Mag, sp.Top[1].Mag)
	assert.GreaterOrEqual(t, sp.Top[1].Mag, sp.Top[2].Mag)

	fund := sp.Harmonics[BandFund]
	assert.InDelta(t, target, fund.Freq, 1e-9)
	assert.InDelta(t, 12.8, fund.Mag, 1e-6)
	assert.Less(t, sp.Harmonics[Band2F].Mag, 1e-6)
}

func TestResonance_DCRemoved(t *testing.T) {
	r := newTestResonance(0.3125, 0.08)
	for i := 0; i < 128; i++ {
		r.Push(5.0)
	}
	sp, ok := r.Detect(0.05, 2)
	require.True(t, ok)
	// the target bin still exists, so a flat window reports it as the hit
	require.NotNil(t, sp.Hit)
	assert.InDelta(t, 0.3125, sp.Hit.Freq, 1e-9)
	assert.Zero(t, sp.Hit.Mag)
	for _, p := range sp.Top {
		assert.InDelta(t, 0.0, p.Mag, 1e-9)
	}
}

func TestResonance_HarmonicPlaceholders(t *testing.T) {
	// Bins sit on multiples of 0.15625; none lies within 0.01 of 0.2, 0.4, 0.8 or 1.2.
	r := newTestResonance(0.4, 0.01)
	for _, x := range sine(128, 0.3125, 0.05, 0, 1) {
		r.Push(x)
	}
	sp, ok := r.Detect(0.05, 1)
	require.True(t, ok)
	assert.Nil(t, sp.Hit)

	want := r.Centers()
	for b := BandSub; b <= Band3F; b++ {
		assert.Equal(t, want[b], sp.Harmonics[b].Freq, "band %s", b)
		assert.Zero(t, sp.Harmonics[b].Mag, "band %s", b)
	}
	assert.InDelta(t, 0.2, want[BandSub], 1e-12)
	assert.InDelta(t, 1.2, want[Band3F], 1e-12)
}

func TestResonance_MinHitMagnitude(t *testing.T) {
	r := NewResonance(ResonanceConfig{Window: 128, Target: 0.3125, Tolerance: 0.08, MinHitMag: 100})
	for _, x := range sine(128, 0.3125, 0.05, 0, 0.2) {
		r.Push(x)
	}
	sp, ok := r.Detect(0.05, 1)
	require.True(t, ok)
	assert.Nil(t, sp.Hit)
	assert.InDelta(t, 12.8, sp.Harmonics[BandFund].Mag, 1e-6)

	// the floor is inclusive
	r = NewResonance(ResonanceConfig{Window: 128, Target: 0.3125, Tolerance: 0.08, MinHitMag: 12.8})
	for _, x := range sine(128, 0.3125, 0.05, 0, 0.2) {
		r.Push(x)
	}
	sp, ok = r.Detect(0.05, 1)
	require.True(t, ok)
	require.NotNil(t, sp.Hit)
	assert.InDelta(t, 0.3125, sp.Hit.Freq, 1e-9)
}

func TestResonance_MinHitMagnitudeFlatWindow(t *testing.T) {
	r := NewResonance(ResonanceConfig{Window: 128, Target: 0.3125, Tolerance: 0.08, MinHitMag: 1e-9})
	for i := 0; i < 128; i++ {
		r.Push(0)
	}
	sp, ok := r.Detect(0.05, 1)
	require.True(t, ok)
	assert.Nil(t, sp.Hit)
}

func TestEarlyWarning(t *testing.T) {
	w := NewEarlyWarning(WarningWindow(4))
	assert.Equal(t, 16, WarningWindow(4))
	assert.Equal(t, 32, WarningWindow(32))

	got := w.Push(0, 0.2)
	assert.False(t, got.Defined)
	assert.Zero(t, got.DeltaS)

	got = w.Push(1, 0.5)
	assert.False(t, got.Defined)
	assert.InDelta(t, 0.3, got.DeltaS, 1e-12)

	got = w.Push(0, 0.4)
	require.True(t, got.Defined)
	assert.InDelta(t, -0.1, got.DeltaS, 1e-12)
	assert.InDelta(t, 2.0/9.0, got.VarE, 1e-12)
	assert.InDelta(t, -1.0, got.AC1E, 1e-12)
}

func TestEarlyWarning_FlatSeries(t *testing.T) {
	w := NewEarlyWarning(16)
	var got Warning
	for i := 0; i < 20; i++ {
		got = w.Push(0.3, 0.1)
	}
	require.True(t, got.Defined)
	assert.Zero(t, got.AC1E)
	assert.InDelta(t, 0.0, got.VarE, 1e-15)
	assert.Zero(t, got.DeltaS)
}
