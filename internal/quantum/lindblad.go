package quantum

import (
	"math"
	"math/cmplx"
)

// TraceEpsilon is the smallest trace magnitude the repair step will divide by.
// Below it the state is left unnormalized.
const TraceEpsilon = 1e-12

// Step advances rho by one explicit Euler step of the Lindblad master equation
//
//	dρ/dt = −i[H, ρ] + Σ γ (LρL† − ½{L†L, ρ})
//
// and repairs the result back to a valid density matrix. Pure and deterministic.
func Step(rho, h Matrix, ds []Dissipator, dt float64) Matrix {
	drift := h.Commutator(rho).Scale(-1i)
	for _, d := range ds {
		drift = drift.Add(dissipator(rho, d.L).Scale(complex(d.Rate, 0)))
	}
	return Repair(rho.Add(drift.Scale(complex(dt, 0))))
}

func dissipator(rho, l Matrix) Matrix {
	ld := l.Dagger()
	jump := l.Mul(rho).Mul(ld)
	return jump.Sub(ld.Mul(l).Anticommutator(rho).Scale(0.5))
}

// Repair restores the density-matrix invariants after an integration step:
// Hermitian, real non-negative diagonal, unit trace, and a Bloch vector no
// longer than 1.
func Repair(rho Matrix) Matrix {
	rho = rho.Add(rho.Dagger()).Scale(0.5)
	rho = normalize(rho)

	for i := 0; i < 2; i++ {
		d := real(rho[i][i])
		if d < 0 {
			d = 0
		}
		rho[i][i] = complex(d, 0)
	}
	rho = normalize(rho)

	return projectPositive(rho)
}

func normalize(rho Matrix) Matrix {
	tr := rho.Trace()
	if cmplx.Abs(tr) <= TraceEpsilon {
		return rho
	}
	return rho.Scale(1 / tr)
}

// projectPositive clips a negative eigenvalue to zero. For a trace-1 2×2
// matrix the eigenvalues are (1 ± |r|)/2, so this amounts to scaling the
// traceless part back onto the Bloch sphere. It runs after the usual
// hermitize/normalize/clip/normalize sequence as an extra step, so
// trajectories differ from a four-step repair once |r| would exceed 1.
func projectPositive(rho Matrix) Matrix {
	if math.Abs(real(rho.Trace())-1) > 1e-9 {
		return rho
	}
	r := BlochNorm(rho)
	if r <= 1 {
		return rho
	}
	half := Identity.Scale(0.5)
	return half.Add(rho.Sub(half).Scale(complex(1/r, 0)))
}
