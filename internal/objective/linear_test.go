package objective

import (
	"testing"

	"github.com/dismec-go/dismec/internal/core"
	"github.com/dismec-go/dismec/internal/matrix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestE1TinyDataset reproduces tiny-dataset scenario E1: features x0=(0,0,0,1,0),
// x1=(2,0,0,0,0), x2=(0,1,1,0,0); label 0 has positives {1} so y=(-1,+1,-1);
// with w=(1,2,0,-1,2), value(w) = 0.5*||w||^2 + 9 = 14 and
// gradient(w) = w + 6*(0,1,1,0,0).
func TestE1TinyDataset(t *testing.T) {
	x, err := matrix.NewDense(3, 5, []core.Real{
		0, 0, 0, 1, 0,
		2, 0, 0, 0, 0,
		0, 1, 1, 0, 0,
	})
	require.NoError(t, err)

	y := []core.Real{-1, 1, -1}
	cost := []core.Real{1, 1, 1}

	// Squared regularizer is ‖·‖²/2 per §4.4's header, so strength 1 gives
	// R(w) = 0.5*||w||^2 as the scenario expects.
	reg, err := NewSquared(1, false)
	require.NoError(t, err)
	loss, err := NewLinearClassifierLoss(x, y, cost, SquaredHinge{}, reg)
	require.NoError(t, err)

	w := core.NewHashedVector([]core.Real{1, 2, 0, -1, 2})
	val, err := loss.Value(w)
	require.NoError(t, err)
	assert.InDelta(t, 14, val, 1e-5)

	grad := make([]core.Real, 5)
	require.NoError(t, loss.Gradient(w, grad))
	want := []core.Real{1, 2 + 6, 0 + 6, -1, 2}
	assert.InDeltaSlice(t, want, grad, 1e-5)
}

func TestFiniteDifferenceGradient(t *testing.T) {
	x, err := matrix.NewDense(3, 5, []core.Real{
		0, 0, 0, 1, 0,
		2, 0, 0, 0, 0,
		0, 1, 1, 0, 0,
	})
	require.NoError(t, err)
	y := []core.Real{-1, 1, -1}
	cost := []core.Real{1.3, 0.7, 2.1}

	for _, phi := range []MarginFunction{SquaredHinge{}, Logistic{}, HuberHinge{Epsilon: 0.5}} {
		reg, err := NewElastic(0.3, 0.4, 0.5, false)
		require.NoError(t, err)
		loss, err := NewLinearClassifierLoss(x, y, cost, phi, reg)
		require.NoError(t, err)

		w := core.NewHashedVector([]core.Real{0.3, -0.4, 0.2, 0.1, -0.2})
		grad := make([]core.Real, 5)
		require.NoError(t, loss.Gradient(w, grad))

		d := []core.Real{1, 0.5, -0.3, 0.2, 0.1}
		const eps = 1e-4
		v0, err := loss.Value(w)
		require.NoError(t, err)
		wEps := core.NewHashedVector([]core.Real{0.3 + eps*1, -0.4 + eps*0.5, 0.2 + eps*-0.3, 0.1 + eps*0.2, -0.2 + eps*0.1})
		v1, err := loss.Value(wEps)
		require.NoError(t, err)

		var gd float64
		for i := range grad {
			gd += float64(grad[i]) * float64(d[i])
		}
		fd := (float64(v1) - float64(v0)) / eps
		assert.InDelta(t, fd, gd, 1e-2, "phi=%s", phi.Name())
	}
}

func TestProjectToLineMatchesValue(t *testing.T) {
	x, err := matrix.NewDense(3, 5, []core.Real{
		0, 0, 0, 1, 0,
		2, 0, 0, 0, 0,
		0, 1, 1, 0, 0,
	})
	require.NoError(t, err)
	y := []core.Real{-1, 1, -1}
	cost := []core.Real{1, 1, 1}
	reg, err := NewSquared(0.5, false)
	require.NoError(t, err)
	loss, err := NewLinearClassifierLoss(x, y, cost, SquaredHinge{}, reg)
	require.NoError(t, err)

	w := core.NewHashedVector([]core.Real{1, 2, 0, -1, 2})
	d := []core.Real{0.1, -0.2, 0.3, 0.0, 0.1}
	require.NoError(t, loss.ProjectToLine(w, d))

	for _, tt := range []core.Real{0, 0.3, 1, -0.5} {
		got := loss.LookupOnLine(tt)
		wNew := core.NewHashedVector(nil)
		data := make([]core.Real, 5)
		base := w.Data()
		for i := range data {
			data[i] = base[i] + tt*d[i]
		}
		wNew = core.NewHashedVector(data)
		want, err := loss.Value(wNew)
		require.NoError(t, err)
		assert.InDelta(t, want, got, 1e-4)
	}
}

func TestDimensionMismatchIsInvalidArgument(t *testing.T) {
	x, err := matrix.NewDense(2, 3, []core.Real{1, 0, 0, 0, 1, 0})
	require.NoError(t, err)
	y := []core.Real{1, -1}
	cost := []core.Real{1, 1}
	reg, err := NewSquared(0.1, false)
	require.NoError(t, err)
	loss, err := NewLinearClassifierLoss(x, y, cost, SquaredHinge{}, reg)
	require.NoError(t, err)

	w := core.NewHashedVector([]core.Real{1, 2})
	_, err = loss.Value(w)
	assert.ErrorIs(t, err, core.InvalidArgument)
}
