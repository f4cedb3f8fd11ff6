package objective

import (
	"testing"

	"github.com/dismec-go/dismec/internal/core"
	"github.com/stretchr/testify/assert"
)

func finiteDiffCheck(t *testing.T, phi MarginFunction, m core.Real) {
	t.Helper()
	const eps = 1e-3
	fd := (phi.Value(m+eps) - phi.Value(m-eps)) / (2 * eps)
	assert.InDelta(t, fd, phi.Grad(m), 5e-2, "phi=%s m=%v", phi.Name(), m)
}

func TestSquaredHingeShape(t *testing.T) {
	phi := SquaredHinge{}
	assert.InDelta(t, 0, phi.Value(1), 1e-6)
	assert.InDelta(t, 0, phi.Value(2), 1e-6)
	assert.InDelta(t, 4, phi.Value(-1), 1e-6)
	for _, m := range []core.Real{-2, -0.5, 0.3, 0.9999} {
		finiteDiffCheck(t, phi, m)
	}
}

func TestLogisticShape(t *testing.T) {
	phi := Logistic{}
	for _, m := range []core.Real{-5, -1, 0, 1, 5} {
		finiteDiffCheck(t, phi, m)
	}
	// overflow guard: large negative margin shouldn't produce NaN/Inf.
	v := phi.Value(-1000)
	assert.False(t, v != v) // not NaN
	assert.Less(t, float32(900), v)
}

func TestHuberHingeContinuity(t *testing.T) {
	phi := HuberHinge{Epsilon: 0.3}
	// continuous at the m=1 and m=1-epsilon crossover points.
	assert.InDelta(t, 0, phi.Value(1), 1e-6)
	assert.InDelta(t, phi.Value(0.7-1e-6), phi.Value(0.7+1e-6), 1e-3)
	for _, m := range []core.Real{-1, 0.5, 0.8, 0.95} {
		finiteDiffCheck(t, phi, m)
	}
}
