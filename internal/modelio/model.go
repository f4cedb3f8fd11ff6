// Package modelio implements partial model I/O protocol: a
// metadata file plus one or more weight files, read and written incrementally
// so that training a model with hundreds of thousands of labels never needs
// to hold the whole thing in memory at once.
package modelio

import (
	"github.com/dismec-go/dismec/internal/core"
)

// Format names a weight file's on-disk layout.
type Format int

const (
	DenseText Format = iota
	SparseText
	DenseBinary
	Null
)

func (f Format) String() string {
	switch f {
	case DenseText:
		return "DenseText"
	case SparseText:
		return "SparseText"
	case DenseBinary:
		return "DenseBinary"
	case Null:
		return "Null"
	default:
		return "Unknown"
	}
}

func parseFormat(s string) (Format, error) {
	switch s {
	case "DenseText":
		return DenseText, nil
	case "SparseText":
		return SparseText, nil
	case "DenseBinary":
		return DenseBinary, nil
	case "Null":
		return Null, nil
	default:
		return 0, core.Errorf(core.IOError, "unknown weight file format %q", s)
	}
}

// WeightFileEntry describes one weight file covering a contiguous label
// range.
type WeightFileEntry struct {
	First    core.LabelID
	Count    int64
	Filename string
	Format   Format
}

func (e WeightFileEntry) end() core.LabelID {
	return e.First + core.LabelID(e.Count)
}

// sparseEntry is one (index, value) pair of a label's sparse weight vector.
type sparseEntry struct {
	index int32
	value core.Real
}

// Model stores weights for a contiguous label range [First, First+Count) of
// a logical L-label model, either as dense column-major storage or as one
// sparse vector per label.
type Model struct {
	spec        core.PartialModelSpec
	numFeatures int
	sparse      bool

	// dense storage: column-major numFeatures x LabelCount, column k-first
	// contiguous so that concurrent SetWeightsForLabel calls for different
	// labels never share a cache line's write set across columns.
	dense []core.Real

	// sparse storage: one slice per label, sorted by index, zeros dropped.
	sparseRows [][]sparseEntry
}

// NewDenseModel allocates a zero-initialized dense model over spec's label
// range.
func NewDenseModel(spec core.PartialModelSpec, numFeatures int) (*Model, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &Model{
		spec:        spec,
		numFeatures: numFeatures,
		dense:       make([]core.Real, int64(numFeatures)*spec.LabelCount),
	}, nil
}

// NewSparseModel allocates an empty sparse model over spec's label range.
func NewSparseModel(spec core.PartialModelSpec, numFeatures int) (*Model, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &Model{
		spec:        spec,
		numFeatures: numFeatures,
		sparse:      true,
		sparseRows:  make([][]sparseEntry, spec.LabelCount),
	}, nil
}

func (m *Model) Spec() core.PartialModelSpec { return m.spec }
func (m *Model) NumFeatures() int            { return m.numFeatures }
func (m *Model) IsSparse() bool              { return m.sparse }

func (m *Model) localIndex(k core.LabelID) (int, error) {
	if k < m.spec.FirstLabel || k >= m.spec.End() {
		return 0, core.Errorf(core.InvalidArgument, "label %d out of model range [%d,%d)", k, m.spec.FirstLabel, m.spec.End())
	}
	return int(k - m.spec.FirstLabel), nil
}

// SetWeightsForLabel stores v (dense, length NumFeatures()) as label k's
// weight vector. Sparse models drop exact zeros on insert.
func (m *Model) SetWeightsForLabel(k core.LabelID, v []core.Real) error {
	idx, err := m.localIndex(k)
	if err != nil {
		return err
	}
	if len(v) != m.numFeatures {
		return core.Errorf(core.InvalidArgument, "weight vector has %d entries, expected %d", len(v), m.numFeatures)
	}
	if m.sparse {
		row := m.sparseRows[idx][:0]
		for j, val := range v {
			if val != 0 {
				row = append(row, sparseEntry{index: int32(j), value: val})
			}
		}
		m.sparseRows[idx] = row
		return nil
	}
	col := m.dense[idx*m.numFeatures : (idx+1)*m.numFeatures]
	copy(col, v)
	return nil
}

// WeightsForLabel reconstructs label k's dense weight vector, satisfying
// weightinit.WeightSource for Pretrained initialization.
func (m *Model) WeightsForLabel(k core.LabelID) ([]core.Real, error) {
	idx, err := m.localIndex(k)
	if err != nil {
		return nil, err
	}
	out := make([]core.Real, m.numFeatures)
	if m.sparse {
		for _, e := range m.sparseRows[idx] {
			out[e.index] = e.value
		}
		return out, nil
	}
	copy(out, m.dense[idx*m.numFeatures:(idx+1)*m.numFeatures])
	return out, nil
}
