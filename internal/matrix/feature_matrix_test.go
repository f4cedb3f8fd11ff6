package matrix

import (
	"testing"

	"github.com/dismec-go/dismec/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDenseRowDot(t *testing.T) {
	d, err := NewDense(3, 5, []core.Real{
		0, 0, 0, 1, 0,
		2, 0, 0, 0, 0,
		0, 1, 1, 0, 0,
	})
	require.NoError(t, err)
	w := []core.Real{1, 2, 0, -1, 2}
	assert.InDelta(t, -1, d.RowDot(0, w), 1e-6)
	assert.InDelta(t, 2, d.RowDot(1, w), 1e-6)
	assert.InDelta(t, 2, d.RowDot(2, w), 1e-6)
}

func toSparse(t *testing.T, rows, cols int, rowsData [][2][]core.Real) *Sparse {
	t.Helper()
	var rowStart []int32
	var indices []int32
	var values []core.Real
	rowStart = append(rowStart, 0)
	for _, r := range rowsData {
		cols, vals := r[0], r[1]
		for i := range cols {
			indices = append(indices, int32(cols[i]))
			values = append(values, vals[i])
		}
		rowStart = append(rowStart, int32(len(indices)))
	}
	s, err := NewSparse(rows, cols, rowStart, indices, values)
	require.NoError(t, err)
	return s
}

func TestSparseMatchesDense(t *testing.T) {
	dense, err := NewDense(3, 5, []core.Real{
		0, 0, 0, 1, 0,
		2, 0, 0, 0, 0,
		0, 1, 1, 0, 0,
	})
	require.NoError(t, err)

	sparse := toSparse(t, 3, 5, [][2][]core.Real{
		{{3}, {1}},
		{{0}, {2}},
		{{1, 2}, {1, 1}},
	})

	w := []core.Real{1, 2, 0, -1, 2}
	for i := 0; i < 3; i++ {
		assert.InDelta(t, dense.RowDot(i, w), sparse.RowDot(i, w), 1e-6)

		outD := make([]core.Real, 5)
		outS := make([]core.Real, 5)
		dense.RowAddScaled(i, 2, outD)
		sparse.RowAddScaled(i, 2, outS)
		assert.InDeltaSlice(t, outD, outS, 1e-6)
	}
}

func TestSparseRejectsInvalidConstruction(t *testing.T) {
	_, err := NewSparse(2, 3, []int32{0, 1}, nil, nil)
	assert.Error(t, err)

	_, err = NewSparse(2, 3, []int32{0, 1, 1}, []int32{5}, []core.Real{1})
	assert.Error(t, err)
}
