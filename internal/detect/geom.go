package detect

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/talgya/pqnwatch/internal/ring"
)

// Threshold calibration constants.
const (
	DetFloor          = 1e-6  // threshold used until the history is long enough
	MinCalibration    = 50    // determinants required before the MAD threshold kicks in
	CalibrationWindow = 300   // most recent determinants used for the MAD threshold
	DetHistoryCap     = 5000  // determinant magnitudes retained for calibration
	MADEpsilon        = 1e-12 // added to the MAD so a flat history still yields a threshold
)

// GeomMeter tracks the determinant of the covariance of first differences of
// two observables (C, E) over a sliding window. The determinant approximates
// the area of the fluctuation ellipse; it collapses when the trajectory
// degenerates onto a line.
type GeomMeter struct {
	window int
	kMAD   float64

	c, e    *ring.Buffer[float64]
	history *ring.Buffer[float64]
}

// NewGeomMeter creates a meter over window differences (window+1 samples).
// kMAD multiplies the median absolute deviation to form the threshold.
func NewGeomMeter(window int, kMAD float64) *GeomMeter {
	return &GeomMeter{
		window:  window,
		kMAD:    kMAD,
		c:       ring.New[float64](window + 1),
		e:       ring.New[float64](window + 1),
		history: ring.New[float64](DetHistoryCap),
	}
}

// Push appends one (C, E) sample.
func (g *GeomMeter) Push(c, e float64) {
	g.c.Push(c)
	g.e.Push(e)
}

// Ready reports whether both windows are full.
func (g *GeomMeter) Ready() bool {
	return g.c.Full() && g.e.Full()
}

// Det returns the signed covariance determinant of (ΔC, ΔE), or false while
// the window is filling. Each defined result is recorded for calibration, so
// call it once per step.
func (g *GeomMeter) Det() (float64, bool) {
	if !g.Ready() {
		return 0, false
	}
	dc := diff(g.c.Slice())
	de := diff(g.e.Slice())

	varC := variance(dc)
	varE := variance(de)

	var det float64
	if varC == 0 || varE == 0 {
		// Diagonal-only covariance; the cross term is meaningless here.
		det = varC * varE
	} else {
		cov := stat.Covariance(dc, de, nil)
		det = varC*varE - cov*cov
	}

	g.history.Push(math.Abs(det))
	return det, true
}

// Threshold returns the current adaptive collapse threshold:
// max(DetFloor, k·MAD) over the recent determinant magnitudes.
func (g *GeomMeter) Threshold() float64 {
	if g.history.Len() < MinCalibration {
		return DetFloor
	}
	mad := MAD(g.history.Last(CalibrationWindow)) + MADEpsilon
	return math.Max(DetFloor, g.kMAD*mad)
}

// HistoryLen returns how many determinants have been recorded (capped).
func (g *GeomMeter) HistoryLen() int {
	return g.history.Len()
}

// variance is the sample variance, exactly 0 for a constant series.
func variance(xs []float64) float64 {
	if flat(xs) {
		return 0
	}
	return stat.Variance(xs, nil)
}

func diff(xs []float64) []float64 {
	if len(xs) < 2 {
		return nil
	}
	out := make([]float64, len(xs)-1)
	for i := range out {
		out[i] = xs[i+1] - xs[i]
	}
	return out
}
