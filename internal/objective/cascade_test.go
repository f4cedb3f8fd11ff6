package objective

import (
	"testing"

	"github.com/dismec-go/dismec/internal/core"
	"github.com/dismec-go/dismec/internal/matrix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCascadeMatchesEquivalentDense (spec testable property #5, E5): the
// same classification problem expressed once as a single dense matrix and
// once split into a dense-only "half" plus an all-zero sparse half must
// agree on value and gradient.
func TestCascadeMatchesEquivalentDense(t *testing.T) {
	denseFull, err := matrix.NewDense(3, 5, []core.Real{
		0, 0, 0, 1, 0,
		2, 0, 0, 0, 0,
		0, 1, 1, 0, 0,
	})
	require.NoError(t, err)
	y := []core.Real{-1, 1, -1}
	cost := []core.Real{1, 1, 1}
	regFull, err := NewSquared(1, false)
	require.NoError(t, err)
	full, err := NewLinearClassifierLoss(denseFull, y, cost, SquaredHinge{}, regFull)
	require.NoError(t, err)

	emptySparse, err := matrix.NewSparse(3, 0, []int32{0, 0, 0, 0}, nil, nil)
	require.NoError(t, err)
	regDense, err := NewSquared(1, false)
	require.NoError(t, err)
	regSparse, err := NewSquared(1, false)
	require.NoError(t, err)
	cascade, err := NewCascadeLoss(denseFull, emptySparse, y, cost, SquaredHinge{}, regDense, regSparse)
	require.NoError(t, err)

	w := core.NewHashedVector([]core.Real{1, 2, 0, -1, 2})
	v1, err := full.Value(w)
	require.NoError(t, err)
	v2, err := cascade.Value(w)
	require.NoError(t, err)
	assert.InDelta(t, v1, v2, 1e-5)

	g1 := make([]core.Real, 5)
	g2 := make([]core.Real, 5)
	require.NoError(t, full.Gradient(w, g1))
	require.NoError(t, cascade.Gradient(w, g2))
	assert.InDeltaSlice(t, g1, g2, 1e-5)
}
