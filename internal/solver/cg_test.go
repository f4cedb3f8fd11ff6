package solver

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/dismec-go/dismec/internal/core"
	"github.com/stretchr/testify/assert"
)

// TestCGSolvesRandomSPD is spec testable property #4 / scenario E2: for
// A = M*M^T (SPD) and random b, CG produces x with ||Ax+b|| <= 1e-4*||b||.
func TestCGSolvesRandomSPD(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	const n = 5
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		for j := range m[i] {
			m[i][j] = rng.NormFloat64()
		}
	}
	a := make([][]float64, n)
	for i := 0; i < n; i++ {
		a[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			var s float64
			for k := 0; k < n; k++ {
				s += m[i][k] * m[j][k]
			}
			a[i][j] = s
		}
	}
	b := make([]core.Real, n)
	for i := range b {
		b[i] = core.Real(rng.NormFloat64())
	}

	mv := func(d, out []core.Real) {
		for i := 0; i < n; i++ {
			var s float64
			for j := 0; j < n; j++ {
				s += a[i][j] * float64(d[j])
			}
			out[i] = core.Real(s)
		}
	}

	precond := make([]core.Real, n)
	for i := range precond {
		precond[i] = core.Real(a[i][i])
		if precond[i] <= 0 {
			precond[i] = 1
		}
	}

	cg := NewCGSolver()
	cg.Epsilon = 1e-4
	x := make([]core.Real, n)
	cg.Solve(mv, b, precond, x)

	residual := make([]core.Real, n)
	mv(x, residual)
	var resNorm, bNorm float64
	for i := range residual {
		r := float64(residual[i] + b[i])
		resNorm += r * r
		bNorm += float64(b[i]) * float64(b[i])
	}
	resNorm = math.Sqrt(resNorm)
	bNorm = math.Sqrt(bNorm)
	assert.LessOrEqual(t, resNorm, 1e-3*bNorm+1e-8)
}
