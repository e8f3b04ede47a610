// Coupling jitter from seeded simplex noise.
// Off by default; with a fixed seed the jitter is reproducible.
package engine

import (
	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/pqnwatch/internal/quantum"
)

// couplingNoise perturbs each coupling by a relative amount in [−amp, amp].
type couplingNoise struct {
	entangle, cohere, distort opensimplex.Noise
	amp, freq                 float64
}

func newCouplingNoise(seed int64, amp, freq float64) *couplingNoise {
	if amp <= 0 {
		return nil
	}
	return &couplingNoise{
		entangle: opensimplex.New(seed),
		cohere:   opensimplex.New(seed + 1),
		distort:  opensimplex.New(seed + 2),
		amp:      amp,
		freq:     freq,
	}
}

// apply returns the couplings at time t. A nil receiver returns base unchanged.
func (n *couplingNoise) apply(base quantum.Couplings, t float64) quantum.Couplings {
	if n == nil {
		return base
	}
	return quantum.Couplings{
		Entangle:    base.Entangle * (1 + n.amp*octaveNoise(n.entangle, t, 3, n.freq, 0.5)),
		Cohere:      base.Cohere * (1 + n.amp*octaveNoise(n.cohere, t, 3, n.freq, 0.5)),
		DistortRate: base.DistortRate * (1 + n.amp*octaveNoise(n.distort, t, 3, n.freq, 0.5)),
	}
}

// octaveNoise layers octaves of 1-D simplex noise, normalized to [−1, 1].
func octaveNoise(noise opensimplex.Noise, t float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(t*frequency, float64(i)) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
