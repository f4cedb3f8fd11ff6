// Package stats implements StatisticsCollection: tagged
// counters, histograms and timers that the solver, scheduler and driver
// record into from worker threads, merged into a single report only in
// finalize() on the driver thread.
package stats

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dismec-go/dismec/internal/generics"
	"github.com/dustin/go-humanize"
)

// StatisticMetaData names a recorded quantity.
type StatisticMetaData struct {
	Name string
	Unit string
}

// Tag is a shared integer cell whose lifetime exceeds every
// StatisticsCollection that observes it -- e.g. a "labels
// completed so far" counter that worker threads bump and the driver's
// progress line reads concurrently.
type Tag struct {
	name string
	cell *atomic.Int64
}

// NewTag creates a fresh zero-valued tag.
func NewTag(name string) Tag {
	return Tag{name: name, cell: new(atomic.Int64)}
}

func (t Tag) Name() string   { return t.name }
func (t Tag) Value() int64   { return t.cell.Load() }
func (t Tag) Add(delta int64) int64 {
	return t.cell.Add(delta)
}
func (t Tag) Set(v int64) { t.cell.Store(v) }

type counterState struct {
	meta  StatisticMetaData
	count int64
}

type histogramState struct {
	meta    StatisticMetaData
	bounds  []float64 // upper bound of bucket i, last bucket is +Inf
	buckets []int64
	sum     float64
	n       int64
}

type timerState struct {
	meta  StatisticMetaData
	total time.Duration
	n     int64
	max   time.Duration
}

// StatisticsCollection is a single thread's recording surface: a worker owns
// exactly one, passed to it during init_thread, and records into it without
// synchronization. Collections from every worker are combined with Merge
// once, single-threaded, in the scheduler's finalize().
type StatisticsCollection struct {
	counters   map[string]*counterState
	histograms map[string]*histogramState
	timers     map[string]*timerState
}

// New creates an empty, single-thread-owned collection.
func New() *StatisticsCollection {
	return &StatisticsCollection{
		counters:   make(map[string]*counterState),
		histograms: make(map[string]*histogramState),
		timers:     make(map[string]*timerState),
	}
}

// Count adds delta to the named counter, creating it on first use.
func (s *StatisticsCollection) Count(meta StatisticMetaData, delta int64) {
	c, ok := s.counters[meta.Name]
	if !ok {
		c = &counterState{meta: meta}
		s.counters[meta.Name] = c
	}
	c.count += delta
}

// Observe records v into the named histogram, bucketed by bounds (each
// bucket's inclusive upper bound; a final implicit +Inf bucket catches
// anything above the last bound).
func (s *StatisticsCollection) Observe(meta StatisticMetaData, bounds []float64, v float64) {
	h, ok := s.histograms[meta.Name]
	if !ok {
		h = &histogramState{meta: meta, bounds: bounds, buckets: make([]int64, len(bounds)+1)}
		s.histograms[meta.Name] = h
	}
	idx := sort.SearchFloat64s(h.bounds, v)
	h.buckets[idx]++
	h.sum += v
	h.n++
}

// Record adds a single timing sample to the named timer.
func (s *StatisticsCollection) Record(meta StatisticMetaData, d time.Duration) {
	t, ok := s.timers[meta.Name]
	if !ok {
		t = &timerState{meta: meta}
		s.timers[meta.Name] = t
	}
	t.total += d
	t.n++
	if d > t.max {
		t.max = d
	}
}

// StartTimer begins timing and returns a function that records the elapsed
// duration into the named timer when called.
func (s *StatisticsCollection) StartTimer(meta StatisticMetaData) func() {
	start := time.Now()
	return func() {
		s.Record(meta, time.Since(start))
	}
}

// Merge folds src's counters/histograms/timers additively into dst. It is
// only safe to call single-threaded (merging happens in
// finalize() single-threaded"), since dst is mutated without locking.
func Merge(dst, src *StatisticsCollection) {
	for name, c := range src.counters {
		existing, ok := dst.counters[name]
		if !ok {
			cp := *c
			dst.counters[name] = &cp
			continue
		}
		existing.count += c.count
	}
	for name, h := range src.histograms {
		existing, ok := dst.histograms[name]
		if !ok {
			cp := *h
			cp.buckets = append([]int64(nil), h.buckets...)
			dst.histograms[name] = &cp
			continue
		}
		for i := range existing.buckets {
			existing.buckets[i] += h.buckets[i]
		}
		existing.sum += h.sum
		existing.n += h.n
	}
	for name, t := range src.timers {
		existing, ok := dst.timers[name]
		if !ok {
			cp := *t
			dst.timers[name] = &cp
			continue
		}
		existing.total += t.total
		existing.n += t.n
		if t.max > existing.max {
			existing.max = t.max
		}
	}
}

// CounterValue returns the named counter's current total (0 if never
// recorded).
func (s *StatisticsCollection) CounterValue(name string) int64 {
	if c, ok := s.counters[name]; ok {
		return c.count
	}
	return 0
}

// TimerMean returns the named timer's mean duration (0 if never recorded).
func (s *StatisticsCollection) TimerMean(name string) time.Duration {
	t, ok := s.timers[name]
	if !ok || t.n == 0 {
		return 0
	}
	return t.total / time.Duration(t.n)
}

// HistogramMean returns the named histogram's running mean (NaN if empty).
func (s *StatisticsCollection) HistogramMean(name string) float64 {
	h, ok := s.histograms[name]
	if !ok || h.n == 0 {
		return math.NaN()
	}
	return h.sum / float64(h.n)
}

// Report renders a human-readable multi-line summary, sorted by metric name
// for determinism, using go-humanize for counts; durations are rounded to
// the microsecond.
func (s *StatisticsCollection) Report() string {
	var b strings.Builder
	for name := range generics.SortedKeys(s.counters) {
		c := s.counters[name]
		fmt.Fprintf(&b, "%s: %s %s\n", c.meta.Name, humanize.Comma(c.count), c.meta.Unit)
	}
	for name := range generics.SortedKeys(s.timers) {
		t := s.timers[name]
		mean := time.Duration(0)
		if t.n > 0 {
			mean = t.total / time.Duration(t.n)
		}
		fmt.Fprintf(&b, "%s: %s total, %s mean over %s samples, %s max\n",
			t.meta.Name, t.total.Round(time.Microsecond), mean.Round(time.Microsecond),
			humanize.Comma(t.n), t.max.Round(time.Microsecond))
	}
	for name := range generics.SortedKeys(s.histograms) {
		h := s.histograms[name]
		mean := 0.0
		if h.n > 0 {
			mean = h.sum / float64(h.n)
		}
		fmt.Fprintf(&b, "%s: mean %.4g %s over %s samples\n", h.meta.Name, mean, h.meta.Unit, humanize.Comma(h.n))
	}
	return b.String()
}
