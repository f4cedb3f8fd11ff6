// Package postproc implements per-label weight post-processors,
// run after the Newton solver has produced a label's weight vector and
// before it is handed to the model sink.
package postproc

import (
	"math"
	"sort"

	"github.com/dismec-go/dismec/internal/core"
	"github.com/dismec-go/dismec/internal/objective"
)

// PostProcessor transforms a solved weight vector in place. It has access to
// the thread-local Objective so loss-feedback variants (Sparsify) can
// re-evaluate the objective at trial points.
type PostProcessor interface {
	Apply(w *core.HashedVector, obj objective.Objective) error
}

// Identity leaves w unchanged.
type Identity struct{}

func (Identity) Apply(*core.HashedVector, objective.Objective) error { return nil }

// Cull zeroes any coordinate whose magnitude does not exceed Epsilon.
type Cull struct {
	Epsilon core.Real
}

func (c Cull) Apply(w *core.HashedVector, _ objective.Objective) error {
	data := w.MutableData()
	for i, v := range data {
		if core.Real(math.Abs(float64(v))) <= c.Epsilon {
			data[i] = 0
		}
	}
	return nil
}

// Reorder applies a fixed column permutation: the output's coordinate j
// takes the input's coordinate Permutation[j]. len(Permutation) must equal
// w.Len().
type Reorder struct {
	Permutation []int
}

func (r Reorder) Apply(w *core.HashedVector, _ objective.Objective) error {
	if len(r.Permutation) != w.Len() {
		return core.Errorf(core.InvalidArgument, "permutation has %d entries, expected %d", len(r.Permutation), w.Len())
	}
	src := append([]core.Real(nil), w.Data()...)
	out := make([]core.Real, len(src))
	for j, p := range r.Permutation {
		if p < 0 || p >= len(src) {
			return core.Errorf(core.InvalidArgument, "permutation entry %d out of range [0,%d)", p, len(src))
		}
		out[j] = src[p]
	}
	w.Assign(out)
	return nil
}

// Combined applies a sequence of post-processors in order.
type Combined struct {
	Stages []PostProcessor
}

func (c Combined) Apply(w *core.HashedVector, obj objective.Objective) error {
	for _, s := range c.Stages {
		if err := s.Apply(w, obj); err != nil {
			return err
		}
	}
	return nil
}

// Sparsify implements feedback-driven sparsification: it zeroes
// as many of the smallest-magnitude coordinates as possible while the
// objective's value increases by at most Tau (relative to the value at
// entry), binary-searching the number of coordinates culled. This assumes
// the loss increase is monotonic in the number of smallest-magnitude
// coordinates zeroed, which holds for the convex margin losses and
// regularizers this package is paired with.
type Sparsify struct {
	Tau core.Real
}

func (s Sparsify) Apply(w *core.HashedVector, obj objective.Objective) error {
	baseline, err := obj.Value(w)
	if err != nil {
		return err
	}
	budget := float64(baseline) + float64(s.Tau)*math.Abs(float64(baseline))

	data := append([]core.Real(nil), w.Data()...)
	order := make([]int, len(data))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return math.Abs(float64(data[order[a]])) < math.Abs(float64(data[order[b]]))
	})

	trial := make([]core.Real, len(data))
	tryZeroing := func(count int) (core.Real, error) {
		copy(trial, data)
		for _, idx := range order[:count] {
			trial[idx] = 0
		}
		return obj.Value(core.NewHashedVector(append([]core.Real(nil), trial...)))
	}

	lo, hi, best := 0, len(data), 0
	for lo <= hi {
		mid := (lo + hi) / 2
		val, err := tryZeroing(mid)
		if err == nil && float64(val) <= budget {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}

	for _, idx := range order[:best] {
		data[idx] = 0
	}
	w.Assign(data)
	return nil
}
