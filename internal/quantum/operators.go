package quantum

import "github.com/talgya/pqnwatch/internal/script"

// Dissipator is one Lindblad channel: jump operator L applied at Rate.
type Dissipator struct {
	L    Matrix
	Rate float64
}

// Couplings holds the three scalar strengths used by operator selection.
type Couplings struct {
	Entangle    float64 // kE, scales the σ_y Hamiltonian
	Cohere      float64 // kA, scales the σ_z Hamiltonian
	DistortRate float64 // gD, rate of the distort dissipator
}

// Entangle returns k·σ_y.
func Entangle(k float64) Matrix {
	return Matrix{
		{0, complex(0, -k)},
		{complex(0, k), 0},
	}
}

// Cohere returns k·σ_z.
func Cohere(k float64) Matrix {
	return Matrix{
		{complex(k, 0), 0},
		{0, complex(-k, 0)},
	}
}

// Distort returns k·|1⟩⟨0|. Not Hermitian; only valid as a jump operator.
func Distort(k float64) Matrix {
	return Matrix{
		{0, 0},
		{complex(k, 0), 0},
	}
}

// Select maps the active script symbol to the Hamiltonian and dissipators for one step.
func Select(sym script.Symbol, c Couplings) (Matrix, []Dissipator) {
	switch sym {
	case script.Entangle:
		return Entangle(c.Entangle), nil
	case script.Cohere:
		return Cohere(c.Cohere), nil
	case script.Distort:
		return Matrix{}, []Dissipator{{L: Distort(1.0), Rate: c.DistortRate}}
	default:
		return Matrix{}, nil
	}
}
