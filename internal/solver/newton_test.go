package solver

import (
	"math/rand/v2"
	"testing"

	"github.com/dismec-go/dismec/internal/core"
	"github.com/dismec-go/dismec/internal/objective"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// quadraticObjective implements f(w) = 0.5*w^T A w + b^T w for a dense SPD A,
// used to exercise the Newton solver against a problem with a known closed
// form minimizer w* = -A^-1 b (spec testable property #5).
type quadraticObjective struct {
	n    int
	a    [][]float64
	b    []core.Real
	line struct {
		w0, d []core.Real
	}
}

func (q *quadraticObjective) NumVariables() int64 { return int64(q.n) }

func (q *quadraticObjective) mulA(v []core.Real, out []core.Real) {
	for i := 0; i < q.n; i++ {
		var s float64
		for j := 0; j < q.n; j++ {
			s += q.a[i][j] * float64(v[j])
		}
		out[i] = core.Real(s)
	}
}

func (q *quadraticObjective) Value(w *core.HashedVector) (core.Real, error) {
	data := w.Data()
	av := make([]core.Real, q.n)
	q.mulA(data, av)
	var quad, lin float64
	for i := 0; i < q.n; i++ {
		quad += float64(data[i]) * float64(av[i])
		lin += float64(data[i]) * float64(q.b[i])
	}
	return core.Real(0.5*quad + lin), nil
}

func (q *quadraticObjective) Gradient(w *core.HashedVector, out []core.Real) error {
	q.mulA(w.Data(), out)
	for i := range out {
		out[i] += q.b[i]
	}
	return nil
}

func (q *quadraticObjective) GradientAtZero(out []core.Real) error {
	copy(out, q.b)
	return nil
}

func (q *quadraticObjective) HessianTimesDirection(w *core.HashedVector, d []core.Real, out []core.Real) error {
	q.mulA(d, out)
	return nil
}

func (q *quadraticObjective) DiagPreconditioner(w *core.HashedVector, out []core.Real) error {
	for i := 0; i < q.n; i++ {
		out[i] = core.Real(q.a[i][i])
	}
	return nil
}

func (q *quadraticObjective) GradientAndPreconditioner(w *core.HashedVector, gradOut, precondOut []core.Real) error {
	if err := q.Gradient(w, gradOut); err != nil {
		return err
	}
	return q.DiagPreconditioner(w, precondOut)
}

func (q *quadraticObjective) ProjectToLine(w *core.HashedVector, d []core.Real) error {
	q.line.w0 = append(q.line.w0[:0], w.Data()...)
	q.line.d = append(q.line.d[:0], d...)
	return nil
}

func (q *quadraticObjective) LookupOnLine(t core.Real) core.Real {
	wt := make([]core.Real, q.n)
	for i := range wt {
		wt[i] = q.line.w0[i] + t*q.line.d[i]
	}
	v, _ := q.Value(core.NewHashedVector(wt))
	return v
}

func (q *quadraticObjective) DeclareVectorOnLastLine(w *core.HashedVector, t core.Real) {}

var _ objective.Objective = (*quadraticObjective)(nil)

func TestNewtonConvergesOnQuadratic(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	const n = 4
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
		a[i][i] += 1 // ensure well-conditioned SPD
	}
	b := make([]core.Real, n)
	for i := range b {
		b[i] = core.Real(rng.NormFloat64())
	}

	obj := &quadraticObjective{n: n, a: a, b: b}
	ns := NewNewtonSolver()
	ns.Epsilon = 1e-6
	ns.MaxSteps = 10

	w := core.NewZeroHashedVector(n)
	init := make([]core.Real, n)
	result := ns.Minimize(obj, w, init)

	require.LessOrEqual(t, result.Iterations, 10)
	assert.Equal(t, Success, result.Status)

	// Check against the closed-form minimizer solved by Gaussian elimination.
	want := gaussianSolve(a, b)
	got := w.Data()
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-3)
	}
}

// gaussianSolve returns x = -A^-1 b via naive Gaussian elimination with
// partial pivoting, used only to produce the reference answer in tests.
func gaussianSolve(a [][]float64, b []core.Real) []core.Real {
	n := len(a)
	aug := make([][]float64, n)
	for i := range aug {
		aug[i] = make([]float64, n+1)
		copy(aug[i], a[i])
		aug[i][n] = -float64(b[i])
	}
	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if abs(aug[r][col]) > abs(aug[pivot][col]) {
				pivot = r
			}
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]
		pv := aug[col][col]
		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			factor := aug[r][col] / pv
			for c := col; c <= n; c++ {
				aug[r][c] -= factor * aug[col][c]
			}
		}
	}
	x := make([]core.Real, n)
	for i := 0; i < n; i++ {
		x[i] = core.Real(aug[i][n] / aug[i][i])
	}
	return x
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
