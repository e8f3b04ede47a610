package detect

import (
	"math"
	"math/cmplx"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"

	"github.com/talgya/pqnwatch/internal/ring"
)

// Peak is one frequency bin: frequency in cycles per unit time and spectral magnitude.
type Peak struct {
	Freq float64 `json:"freq"`
	Mag  float64 `json:"mag"`
}

// Band identifies one of the four harmonic bands around the target.
type Band uint8

const (
	BandSub  Band = iota // target/2
	BandFund             // target
	Band2F               // 2·target
	Band3F               // 3·target
	numBands
)

var bandNames = [numBands]string{"sub", "fund", "2f", "3f"}

func (b Band) String() string { return bandNames[b] }

// Spectrum is the result of one resonance query.
type Spectrum struct {
	Top       []Peak         // strongest bins, descending magnitude
	Hit       *Peak          // strongest in-band bin near the target, nil if none
	Harmonics [numBands]Peak // per-band peak, or zero magnitude at the band centre
}

// ResonanceConfig fixes the target and tolerance of a detector.
type ResonanceConfig struct {
	Window    int     // samples per transform
	Target    float64 // target frequency
	Tolerance float64 // half-width of every band
	MinHitMag float64 // when > 0, a hit also needs at least this magnitude
}

// Resonance is a sliding-window spectral estimator over the E series.
type Resonance struct {
	cfg     ResonanceConfig
	centers [numBands]float64
	window  *ring.Buffer[float64]
	fft     *fourier.FFT
}

// NewResonance creates a detector; the FFT plan is sized once for the window.
func NewResonance(cfg ResonanceConfig) *Resonance {
	return &Resonance{
		cfg: cfg,
		centers: [numBands]float64{
			cfg.Target / 2,
			cfg.Target,
			cfg.Target * 2,
			cfg.Target * 3,
		},
		window: ring.New[float64](cfg.Window),
		fft:    fourier.NewFFT(cfg.Window),
	}
}

// Push appends one E sample.
func (r *Resonance) Push(e float64) {
	r.window.Push(e)
}

// Centers returns the four harmonic band centres.
func (r *Resonance) Centers() [numBands]float64 {
	return r.centers
}

// Detect transforms the current window. Returns false until the window is full.
// dt is the sample spacing; topK bounds the Top list.
func (r *Resonance) Detect(dt float64, topK int) (Spectrum, bool) {
	if !r.window.Full() {
		return Spectrum{}, false
	}

	xs := r.window.Slice()
	mean := stat.Mean(xs, nil)
	for i := range xs {
		xs[i] -= mean
	}

	coeffs := r.fft.Coefficients(nil, xs)
	bins := make([]Peak, len(coeffs))
	for i, c := range coeffs {
		bins[i] = Peak{Freq: r.fft.Freq(i) / dt, Mag: cmplx.Abs(c)}
	}
	bins[0].Mag = 0 // DC removal

	var sp Spectrum
	sp.Top = topPeaks(bins, topK)

	if p, ok := bandPeak(bins, r.cfg.Target, r.cfg.Tolerance); ok && r.strongEnough(p) {
		hit := p
		sp.Hit = &hit
	}
	for b, center := range r.centers {
		p, ok := bandPeak(bins, center, r.cfg.Tolerance)
		if !ok {
			p = Peak{Freq: center}
		}
		sp.Harmonics[b] = p
	}
	return sp, true
}

// strongEnough applies the optional magnitude floor. Without one, any in-band
// bin is a hit, including a zero-magnitude bin of a flat window.
func (r *Resonance) strongEnough(p Peak) bool {
	return r.cfg.MinHitMag <= 0 || p.Mag >= r.cfg.MinHitMag
}

func topPeaks(bins []Peak, k int) []Peak {
	if k <= 0 {
		return nil
	}
	sorted := make([]Peak, len(bins))
	copy(sorted, bins)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Mag > sorted[j].Mag
	})
	if k > len(sorted) {
		k = len(sorted)
	}
	return sorted[:k]
}

// bandPeak returns the max-magnitude bin with |freq − center| ≤ tol.
// On ties the lower frequency wins.
func bandPeak(bins []Peak, center, tol float64) (Peak, bool) {
	best, found := Peak{}, false
	for _, b := range bins {
		if math.Abs(b.Freq-center) > tol {
			continue
		}
		if !found || b.Mag > best.Mag {
			best, found = b, true
		}
	}
	return best, found
}
