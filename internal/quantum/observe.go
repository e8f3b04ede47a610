package quantum

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

// EntropyEpsilon is the eigenvalue cutoff below which a term contributes nothing to S.
const EntropyEpsilon = 1e-12

// Observables are the five scalars derived from the state each step.
type Observables struct {
	C       float64 `json:"C"`      // excited-state population ρ₁₁
	E       float64 `json:"E"`      // coherence magnitude |ρ₀₁|
	RNorm   float64 `json:"rnorm"`  // Bloch-vector norm
	Purity  float64 `json:"purity"` // Re tr(ρ²)
	Entropy float64 `json:"S"`      // von Neumann entropy, nats
}

// Observe maps a density matrix to its observables. Pure.
func Observe(rho Matrix) Observables {
	return Observables{
		C:       real(rho[1][1]),
		E:       cmplx.Abs(rho[0][1]),
		RNorm:   BlochNorm(rho),
		Purity:  real(rho.Mul(rho).Trace()),
		Entropy: Entropy(rho),
	}
}

// Bloch returns (rx, ry, rz) with rz = ρ₁₁ − ρ₀₀.
func Bloch(rho Matrix) (float64, float64, float64) {
	return 2 * real(rho[0][1]), -2 * imag(rho[0][1]), real(rho[1][1]) - real(rho[0][0])
}

// BlochNorm returns the Euclidean norm of the Bloch vector.
func BlochNorm(rho Matrix) float64 {
	x, y, z := Bloch(rho)
	return math.Sqrt(x*x + y*y + z*z)
}

// Eigenvalues returns the two eigenvalues of a Hermitian rho in ascending order.
// The complex matrix A+iB is embedded as the real symmetric [[A, −B], [B, A]],
// whose spectrum is that of rho with every eigenvalue repeated.
func Eigenvalues(rho Matrix) [2]float64 {
	a := func(i, j int) float64 { return real(rho[i][j]) }
	b := func(i, j int) float64 { return imag(rho[i][j]) }

	emb := mat.NewSymDense(4, []float64{
		a(0, 0), a(0, 1), -b(0, 0), -b(0, 1),
		a(1, 0), a(1, 1), -b(1, 0), -b(1, 1),
		b(0, 0), b(0, 1), a(0, 0), a(0, 1),
		b(1, 0), b(1, 1), a(1, 0), a(1, 1),
	})

	var eig mat.EigenSym
	if !eig.Factorize(emb, false) {
		// Closed form fallback for the trace-1 case.
		r := BlochNorm(rho)
		return [2]float64{(1 - r) / 2, (1 + r) / 2}
	}
	vals := eig.Values(nil)
	return [2]float64{(vals[0] + vals[1]) / 2, (vals[2] + vals[3]) / 2}
}

// Entropy returns S = −Σ w ln w over eigenvalues above EntropyEpsilon.
func Entropy(rho Matrix) float64 {
	var s float64
	for _, w := range Eigenvalues(rho) {
		if w > EntropyEpsilon {
			s -= w * math.Log(math.Max(w, EntropyEpsilon))
		}
	}
	return s
}
