// Package matrix implements the shared-immutable feature matrix: a tagged
// union of a dense row-major layout and a sparse CSR layout that both expose
// the same row-iteration and row-dot contract (runtime
// polymorphism of Objective and FeatureMatrix").
package matrix

import (
	"github.com/dismec-go/dismec/internal/core"
)

// FeatureMatrix is implemented by Dense and Sparse. It is shared-immutable:
// once constructed it is never mutated, so a single instance can be handed
// out (via a refcounted handle, i.e. a plain Go pointer kept alive by the
// owner) to every worker thread.
type FeatureMatrix interface {
	// Rows returns the number of instances (N).
	Rows() int
	// Cols returns the feature dimension (D).
	Cols() int
	// RowDot returns the dot product of row i with the dense vector w, whose
	// length must equal Cols().
	RowDot(i int, w []core.Real) core.Real
	// RowAddScaled adds scale*row(i) into the dense accumulator out, whose
	// length must equal Cols(). This is the building block for Xᵀd-style
	// reductions (out += scale * x_i).
	RowAddScaled(i int, scale core.Real, out []core.Real)
	// VisitRow calls fn once per non-structural-zero (col, value) pair of
	// row i, in increasing column order. Dense rows visit every column.
	VisitRow(i int, fn func(col int, value core.Real))
}

// Dense is a contiguous, row-major N x D feature matrix.
type Dense struct {
	rows, cols int
	data       []core.Real
}

var _ FeatureMatrix = (*Dense)(nil)

// NewDense builds a Dense matrix taking ownership of data, which must have
// length rows*cols and be laid out row-major.
func NewDense(rows, cols int, data []core.Real) (*Dense, error) {
	if rows < 0 || cols < 0 {
		return nil, core.Errorf(core.InvalidArgument, "dense matrix dimensions must be non-negative, got %dx%d", rows, cols)
	}
	if len(data) != rows*cols {
		return nil, core.Errorf(core.InvalidArgument, "dense matrix data has %d entries, expected %d (%dx%d)", len(data), rows*cols, rows, cols)
	}
	return &Dense{rows: rows, cols: cols, data: data}, nil
}

func (d *Dense) Rows() int { return d.rows }
func (d *Dense) Cols() int { return d.cols }

func (d *Dense) row(i int) []core.Real {
	return d.data[i*d.cols : (i+1)*d.cols]
}

func (d *Dense) RowDot(i int, w []core.Real) core.Real {
	row := d.row(i)
	var sum float64
	for j, v := range row {
		sum += float64(v) * float64(w[j])
	}
	return core.Real(sum)
}

func (d *Dense) RowAddScaled(i int, scale core.Real, out []core.Real) {
	row := d.row(i)
	for j, v := range row {
		out[j] += scale * v
	}
}

func (d *Dense) VisitRow(i int, fn func(col int, value core.Real)) {
	row := d.row(i)
	for j, v := range row {
		fn(j, v)
	}
}

// Sparse is an N x D matrix in compressed sparse row (CSR) form: row i's
// non-zero entries occupy Indices[RowStart[i]:RowStart[i+1]] /
// Values[RowStart[i]:RowStart[i+1]], sorted by column index.
type Sparse struct {
	rows, cols int
	rowStart   []int32
	indices    []int32
	values     []core.Real
}

var _ FeatureMatrix = (*Sparse)(nil)

// NewSparse builds a Sparse matrix from CSR arrays. len(rowStart) must equal
// rows+1; indices/values must have matching lengths and every index must lie
// in [0, cols).
func NewSparse(rows, cols int, rowStart, indices []int32, values []core.Real) (*Sparse, error) {
	if rows < 0 || cols < 0 {
		return nil, core.Errorf(core.InvalidArgument, "sparse matrix dimensions must be non-negative, got %dx%d", rows, cols)
	}
	if len(rowStart) != rows+1 {
		return nil, core.Errorf(core.InvalidArgument, "sparse matrix rowStart has %d entries, expected %d", len(rowStart), rows+1)
	}
	if len(indices) != len(values) {
		return nil, core.Errorf(core.InvalidArgument, "sparse matrix indices/values length mismatch: %d vs %d", len(indices), len(values))
	}
	if int(rowStart[rows]) != len(indices) {
		return nil, core.Errorf(core.InvalidArgument, "sparse matrix rowStart[rows]=%d disagrees with nnz=%d", rowStart[rows], len(indices))
	}
	for _, idx := range indices {
		if idx < 0 || int(idx) >= cols {
			return nil, core.Errorf(core.InvalidArgument, "sparse matrix column index %d out of range [0,%d)", idx, cols)
		}
	}
	return &Sparse{rows: rows, cols: cols, rowStart: rowStart, indices: indices, values: values}, nil
}

func (s *Sparse) Rows() int { return s.rows }
func (s *Sparse) Cols() int { return s.cols }

func (s *Sparse) RowDot(i int, w []core.Real) core.Real {
	begin, end := s.rowStart[i], s.rowStart[i+1]
	var sum float64
	for k := begin; k < end; k++ {
		sum += float64(s.values[k]) * float64(w[s.indices[k]])
	}
	return core.Real(sum)
}

func (s *Sparse) RowAddScaled(i int, scale core.Real, out []core.Real) {
	begin, end := s.rowStart[i], s.rowStart[i+1]
	for k := begin; k < end; k++ {
		out[s.indices[k]] += scale * s.values[k]
	}
}

func (s *Sparse) VisitRow(i int, fn func(col int, value core.Real)) {
	begin, end := s.rowStart[i], s.rowStart[i+1]
	for k := begin; k < end; k++ {
		fn(int(s.indices[k]), s.values[k])
	}
}

// NNZ returns the number of stored non-zero entries.
func (s *Sparse) NNZ() int {
	return len(s.values)
}
