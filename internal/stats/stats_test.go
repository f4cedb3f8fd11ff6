package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var labelsDone = StatisticMetaData{Name: "labels_done", Unit: "labels"}
var newtonIters = StatisticMetaData{Name: "newton_iterations", Unit: "iterations"}
var solveTime = StatisticMetaData{Name: "solve_time", Unit: "duration"}

func TestCounterAccumulates(t *testing.T) {
	s := New()
	s.Count(labelsDone, 3)
	s.Count(labelsDone, 4)
	assert.Equal(t, int64(7), s.CounterValue("labels_done"))
}

func TestHistogramBucketsAndMean(t *testing.T) {
	s := New()
	bounds := []float64{5, 10, 20}
	for _, v := range []float64{1, 6, 11, 25} {
		s.Observe(newtonIters, bounds, v)
	}
	assert.InDelta(t, (1.0+6+11+25)/4, s.HistogramMean("newton_iterations"), 1e-9)
}

func TestTimerRecordsMeanAndMax(t *testing.T) {
	s := New()
	s.Record(solveTime, 10*time.Millisecond)
	s.Record(solveTime, 30*time.Millisecond)
	assert.Equal(t, 20*time.Millisecond, s.TimerMean("solve_time"))
}

func TestStartTimerRecordsElapsed(t *testing.T) {
	s := New()
	stop := s.StartTimer(solveTime)
	time.Sleep(time.Millisecond)
	stop()
	assert.Greater(t, s.TimerMean("solve_time"), time.Duration(0))
}

func TestMergeCombinesPerThreadCollections(t *testing.T) {
	global := New()
	worker0 := New()
	worker0.Count(labelsDone, 5)
	worker0.Record(solveTime, 10*time.Millisecond)

	worker1 := New()
	worker1.Count(labelsDone, 7)
	worker1.Record(solveTime, 30*time.Millisecond)

	Merge(global, worker0)
	Merge(global, worker1)

	assert.Equal(t, int64(12), global.CounterValue("labels_done"))
	assert.Equal(t, 20*time.Millisecond, global.TimerMean("solve_time"))
}

func TestTagSharedAcrossObservers(t *testing.T) {
	tag := NewTag("active_workers")
	tag.Set(2)
	assert.Equal(t, int64(2), tag.Value())
	tag.Add(1)
	assert.Equal(t, int64(3), tag.Value())
	assert.Equal(t, "active_workers", tag.Name())
}

func TestReportIsNonEmptyAndDeterministic(t *testing.T) {
	s := New()
	s.Count(labelsDone, 1)
	s.Record(solveTime, time.Millisecond)
	r1 := s.Report()
	r2 := s.Report()
	assert.Equal(t, r1, r2)
	assert.NotEmpty(t, r1)
}
