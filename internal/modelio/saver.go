package modelio

import (
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dismec-go/dismec/internal/core"
	"github.com/google/uuid"
)

// SaverState is the PartialModelSaver state machine's current state (spec
// §4.13).
type SaverState int

const (
	Empty SaverState = iota
	Accepting
	Finalized
)

// SaveFuture is what AddModel returns: the weight file write happens on a
// background goroutine, and the caller can either Wait for it or check
// Ready without blocking.
type SaveFuture struct {
	done  chan struct{}
	entry WeightFileEntry
	err   error
}

// Ready reports whether the write has completed, without blocking.
func (f *SaveFuture) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the write completes and returns its result.
func (f *SaveFuture) Wait() (WeightFileEntry, error) {
	<-f.done
	return f.entry, f.err
}

// PartialModelSaver implements saver state machine. The driver
// mutates it sequentially from a single thread; only the background write
// goroutines launched by AddModel run concurrently with that thread, and
// they touch only their own weight file, never the in-memory entries list.
type PartialModelSaver struct {
	path        string
	dir         string
	format      Format
	numFeatures int64
	numLabels   int64

	state   SaverState
	entries []WeightFileEntry

	mu sync.Mutex // guards entries during concurrent AddModel calls
}

// NewSaver opens or creates a saver writing to metadataPath. If loadPartial
// is true and a metadata file already exists there, its entries are loaded
// and the saver starts in Accepting state; otherwise it starts Empty.
func NewSaver(metadataPath string, defaultFormat Format, numFeatures, numLabels int64, loadPartial bool) (*PartialModelSaver, error) {
	s := &PartialModelSaver{
		path:        metadataPath,
		dir:         filepath.Dir(metadataPath),
		format:      defaultFormat,
		numFeatures: numFeatures,
		numLabels:   numLabels,
		state:       Empty,
	}
	if loadPartial {
		if _, err := os.Stat(metadataPath); err == nil {
			nf, nl, entries, err := readMetadata(metadataPath)
			if err != nil {
				return nil, err
			}
			if nf != numFeatures || nl != numLabels {
				return nil, core.Errorf(core.ConsistencyError, "existing metadata %q has (features=%d, labels=%d), expected (%d, %d)",
					metadataPath, nf, nl, numFeatures, numLabels)
			}
			s.entries = entries
			s.state = Accepting
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}
	return s, nil
}

func (s *PartialModelSaver) State() SaverState { return s.state }
func (s *PartialModelSaver) NumFeatures() int64 { return s.numFeatures }
func (s *PartialModelSaver) NumLabels() int64   { return s.numLabels }

// AddModel validates model against the saver's known dimensions and existing
// ranges, reserves its slot in the entries list, and launches an async write
// of the weight file, returning a future for the resulting WeightFileEntry.
// The metadata file itself is untouched until UpdateMetaFile is called.
func (s *PartialModelSaver) AddModel(model *Model, filename string) (*SaveFuture, error) {
	if s.state == Finalized {
		return nil, core.Errorf(core.ConsistencyError, "cannot add a model to a finalized saver")
	}
	if int64(model.NumFeatures()) != s.numFeatures {
		return nil, core.Errorf(core.InvalidArgument, "model has %d features, expected %d", model.NumFeatures(), s.numFeatures)
	}
	spec := model.Spec()
	if spec.TotalLabels != s.numLabels {
		return nil, core.Errorf(core.InvalidArgument, "model's total label count %d disagrees with saver's %d", spec.TotalLabels, s.numLabels)
	}
	if filename == "" {
		filename = "weights-" + uuid.NewString() + weightFileSuffix(s.format)
	}
	entry := WeightFileEntry{First: spec.FirstLabel, Count: spec.LabelCount, Filename: filename, Format: s.format}

	s.mu.Lock()
	if err := s.checkNoOverlapLocked(entry); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.insertSortedLocked(entry)
	s.state = Accepting
	s.mu.Unlock()

	future := &SaveFuture{done: make(chan struct{})}
	go func() {
		defer close(future.done)
		future.err = writeWeightFile(filepath.Join(s.dir, filename), model, s.format)
		future.entry = entry
	}()
	return future, nil
}

func weightFileSuffix(f Format) string {
	switch f {
	case DenseBinary:
		return ".npy"
	default:
		return ".txt"
	}
}

func (s *PartialModelSaver) checkNoOverlapLocked(e WeightFileEntry) error {
	for _, existing := range s.entries {
		if e.First < existing.end() && existing.First < e.end() {
			return core.Errorf(core.InvalidArgument, "label range [%d,%d) overlaps existing entry [%d,%d)",
				e.First, e.end(), existing.First, existing.end())
		}
	}
	return nil
}

func (s *PartialModelSaver) insertSortedLocked(e WeightFileEntry) {
	s.entries = append(s.entries, e)
	sort.Slice(s.entries, func(i, j int) bool { return s.entries[i].First < s.entries[j].First })
}

// UpdateMetaFile rewrites the metadata file atomically from the in-memory
// entries list. Legal any time after the first AddModel call.
func (s *PartialModelSaver) UpdateMetaFile() error {
	s.mu.Lock()
	entries := append([]WeightFileEntry(nil), s.entries...)
	s.mu.Unlock()
	return writeMetadataAtomic(s.path, s.numFeatures, s.numLabels, entries)
}

// GetMissingWeights returns the first gap in label coverage, or
// (numLabels, numLabels) if the model is fully covered.
func (s *PartialModelSaver) GetMissingWeights() (begin, end core.LabelID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cursor core.LabelID
	for _, e := range s.entries {
		if e.First > cursor {
			return cursor, e.First
		}
		if e.end() > cursor {
			cursor = e.end()
		}
	}
	if cursor < core.LabelID(s.numLabels) {
		return cursor, core.LabelID(s.numLabels)
	}
	return core.LabelID(s.numLabels), core.LabelID(s.numLabels)
}

// Finalize verifies total coverage is [0, numLabels), rewrites the metadata
// file, and transitions to Finalized.
func (s *PartialModelSaver) Finalize() error {
	begin, end := s.GetMissingWeights()
	if begin != end {
		return core.Errorf(core.ConsistencyError, "model is incomplete: missing labels [%d,%d)", begin, end)
	}
	if err := s.UpdateMetaFile(); err != nil {
		return err
	}
	s.state = Finalized
	return nil
}
