// Package core defines the scalar and index types shared by every part of the
// training core, plus the sentinel error kinds used throughout.
package core

// Real is the scalar type used for features, weights and losses. Reductions
// that accumulate many terms (dot products, sums over instances) use float64
// internally and convert back to Real at the boundary, to keep results
// numerically stable without paying float64 storage everywhere.
type Real = float32

// LabelID identifies a single label (a column of the training problem). It is
// always non-negative and supports simple offset arithmetic.
type LabelID int64

// PartialModelSpec describes a contiguous sub-range of a logical L-label
// model, as produced by splitting a big training job into batches or shards.
type PartialModelSpec struct {
	FirstLabel  LabelID
	LabelCount  int64
	TotalLabels int64
}

// Validate checks the PartialModelSpec invariants.
func (s PartialModelSpec) Validate() error {
	if s.FirstLabel < 0 {
		return Errorf(InvalidArgument, "first label %d is negative", s.FirstLabel)
	}
	if s.LabelCount < 1 {
		return Errorf(InvalidArgument, "label count %d must be >= 1", s.LabelCount)
	}
	if int64(s.FirstLabel)+s.LabelCount > s.TotalLabels {
		return Errorf(InvalidArgument, "range [%d, %d) exceeds total labels %d",
			s.FirstLabel, int64(s.FirstLabel)+s.LabelCount, s.TotalLabels)
	}
	return nil
}

// End returns the exclusive end of the label range.
func (s PartialModelSpec) End() LabelID {
	return s.FirstLabel + LabelID(s.LabelCount)
}
