package detect

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/talgya/pqnwatch/internal/ring"
)

// MinWarningSamples is the window length at which variance and autocorrelation become defined.
const MinWarningSamples = 3

// Warning holds the early-warning diagnostics for one step.
// VarE and AC1E are only meaningful when Defined is true.
type Warning struct {
	VarE    float64 // population variance of the E window
	AC1E    float64 // lag-1 autocorrelation of the E window
	DeltaS  float64 // entropy change since the previous step
	Defined bool
}

// EarlyWarning tracks critical-slowing-down style indicators over E and S.
type EarlyWarning struct {
	window *ring.Buffer[float64]
	prevS  float64
	seen   bool
}

// WarningWindow returns the early-warning window length for a geometric window size.
func WarningWindow(geomWin int) int {
	return max(geomWin, 16)
}

// NewEarlyWarning creates a tracker with the given window capacity.
func NewEarlyWarning(capacity int) *EarlyWarning {
	return &EarlyWarning{window: ring.New[float64](capacity)}
}

// Push records the step's E and S and returns the updated diagnostics.
func (w *EarlyWarning) Push(e, s float64) Warning {
	w.window.Push(e)

	var out Warning
	if w.seen {
		out.DeltaS = s - w.prevS
	}
	w.prevS, w.seen = s, true

	if w.window.Len() < MinWarningSamples {
		return out
	}
	xs := w.window.Slice()
	out.VarE = stat.PopVariance(xs, nil)
	out.AC1E = lag1(xs)
	out.Defined = true
	return out
}

// lag1 is the Pearson correlation of xs[:-1] against xs[1:], 0 when either side is flat.
func lag1(xs []float64) float64 {
	a, b := xs[:len(xs)-1], xs[1:]
	if flat(a) || flat(b) {
		return 0
	}
	return stat.Correlation(a, b, nil)
}

func flat(xs []float64) bool {
	return floats.Max(xs) == floats.Min(xs)
}
