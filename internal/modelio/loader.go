package modelio

import (
	"path/filepath"
	"sort"

	"github.com/dismec-go/dismec/internal/core"
)

// PartialModelLoader reads a metadata file and serves Model instances
// reconstructed from its weight files.
type PartialModelLoader struct {
	dir         string
	numFeatures int64
	numLabels   int64
	entries     []WeightFileEntry
	preference  SparsePreference
}

// NewLoader parses the metadata file at path. sparseMode selects the
// default materialization for loaded models (MatchOnDisk, ForceDense, or
// ForceSparse).
func NewLoader(path string, sparseMode SparsePreference) (*PartialModelLoader, error) {
	numFeatures, numLabels, entries, err := readMetadata(path)
	if err != nil {
		return nil, err
	}
	return &PartialModelLoader{
		dir:         filepath.Dir(path),
		numFeatures: numFeatures,
		numLabels:   numLabels,
		entries:     entries,
		preference:  sparseMode,
	}, nil
}

func (l *PartialModelLoader) NumFeatures() int64         { return l.numFeatures }
func (l *PartialModelLoader) NumLabels() int64           { return l.numLabels }
func (l *PartialModelLoader) Entries() []WeightFileEntry { return append([]WeightFileEntry(nil), l.entries...) }

// LoadModelRange returns a Model holding the smallest union of weight files
// overlapping [begin, end), merged into a single Model instance.
func (l *PartialModelLoader) LoadModelRange(begin, end core.LabelID) (*Model, error) {
	if begin < 0 || end > core.LabelID(l.numLabels) || begin >= end {
		return nil, core.Errorf(core.InvalidArgument, "invalid range [%d,%d) for model with %d labels", begin, end, l.numLabels)
	}
	var overlapping []WeightFileEntry
	for _, e := range l.entries {
		if e.First < end && begin < e.end() {
			overlapping = append(overlapping, e)
		}
	}
	if len(overlapping) == 0 {
		return nil, core.Errorf(core.IOError, "no weight file covers any of [%d,%d)", begin, end)
	}
	sort.Slice(overlapping, func(i, j int) bool { return overlapping[i].First < overlapping[j].First })

	lo, hi := overlapping[0].First, overlapping[0].end()
	for _, e := range overlapping[1:] {
		if e.First != hi {
			return nil, core.Errorf(core.ConsistencyError, "weight file coverage has a gap before label %d", e.First)
		}
		hi = e.end()
	}

	sparse := l.preference == ForceSparse || (l.preference == MatchOnDisk && overlapping[0].Format == SparseText)
	spec := core.PartialModelSpec{FirstLabel: lo, LabelCount: int64(hi - lo), TotalLabels: l.numLabels}
	var merged *Model
	var err error
	if sparse {
		merged, err = NewSparseModel(spec, int(l.numFeatures))
	} else {
		merged, err = NewDenseModel(spec, int(l.numFeatures))
	}
	if err != nil {
		return nil, err
	}

	for _, e := range overlapping {
		part, err := readWeightFile(filepath.Join(l.dir, e.Filename), e, int(l.numFeatures), l.numLabels, l.preference)
		if err != nil {
			return nil, err
		}
		for k := e.First; k < e.end(); k++ {
			w, err := part.WeightsForLabel(k)
			if err != nil {
				return nil, err
			}
			if err := merged.SetWeightsForLabel(k, w); err != nil {
				return nil, err
			}
		}
	}
	return merged, nil
}

// LoadModelAt loads exactly the index-th weight file entry (in sorted
// order), without merging it with any neighbor.
func (l *PartialModelLoader) LoadModelAt(index int) (*Model, error) {
	if index < 0 || index >= len(l.entries) {
		return nil, core.Errorf(core.InvalidArgument, "weight file index %d out of range [0,%d)", index, len(l.entries))
	}
	e := l.entries[index]
	return readWeightFile(filepath.Join(l.dir, e.Filename), e, int(l.numFeatures), l.numLabels, l.preference)
}
