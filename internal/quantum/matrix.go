// Package quantum implements the two-level open-system simulator:
// the operator library, the Lindblad step with state repair, and observables.
package quantum

import "math/cmplx"

// Matrix is a 2×2 complex matrix, row-major: m[row][col].
type Matrix [2][2]complex128

// Identity is the 2×2 identity.
var Identity = Matrix{{1, 0}, {0, 1}}

// Diag builds a diagonal matrix.
func Diag(a, b float64) Matrix {
	return Matrix{{complex(a, 0), 0}, {0, complex(b, 0)}}
}

// InitialState is the fixed starting condition of every run: population skew, no coherence.
func InitialState() Matrix {
	return Diag(0.9, 0.1)
}

func (m Matrix) Add(o Matrix) Matrix {
	var r Matrix
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			r[i][j] = m[i][j] + o[i][j]
		}
	}
	return r
}

func (m Matrix) Sub(o Matrix) Matrix {
	return m.Add(o.Scale(-1))
}

func (m Matrix) Scale(s complex128) Matrix {
	var r Matrix
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			r[i][j] = m[i][j] * s
		}
	}
	return r
}

func (m Matrix) Mul(o Matrix) Matrix {
	var r Matrix
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			r[i][j] = m[i][0]*o[0][j] + m[i][1]*o[1][j]
		}
	}
	return r
}

// Dagger returns the conjugate transpose.
func (m Matrix) Dagger() Matrix {
	var r Matrix
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			r[i][j] = cmplx.Conj(m[j][i])
		}
	}
	return r
}

func (m Matrix) Trace() complex128 {
	return m[0][0] + m[1][1]
}

// Commutator returns [m, o] = mo − om.
func (m Matrix) Commutator(o Matrix) Matrix {
	return m.Mul(o).Sub(o.Mul(m))
}

// Anticommutator returns {m, o} = mo + om.
func (m Matrix) Anticommutator(o Matrix) Matrix {
	return m.Mul(o).Add(o.Mul(m))
}

// IsHermitian reports whether m equals its conjugate transpose within tol.
func (m Matrix) IsHermitian(tol float64) bool {
	d := m.Dagger()
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if cmplx.Abs(m[i][j]-d[i][j]) > tol {
				return false
			}
		}
	}
	return true
}
