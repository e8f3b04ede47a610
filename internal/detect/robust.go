// Package detect holds the streaming detectors that run over the observables:
// the geometric collapse meter, the resonance/harmonic detector and the
// early-warning statistics.
package detect

import (
	"math"
	"slices"
)

// Median returns the median of xs, averaging the two middle values for even lengths.
// Returns NaN for an empty slice. xs is not modified.
func Median(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	s := slices.Clone(xs)
	slices.Sort(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// MAD returns the median absolute deviation from the median.
func MAD(xs []float64) float64 {
	med := Median(xs)
	dev := make([]float64, len(xs))
	for i, x := range xs {
		dev[i] = math.Abs(x - med)
	}
	return Median(dev)
}
