package scheduler

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingGenerator struct {
	n          int64
	mu         sync.Mutex
	done       []bool
	prepared   bool
	numThreads int
	chunkSize  int64
	initCalls  atomic.Int64
	finalized  atomic.Bool
	sleep      time.Duration
	failOn     int64 // RunTasks returns an error if begin == failOn
}

func newRecordingGenerator(n int) *recordingGenerator {
	return &recordingGenerator{n: int64(n), done: make([]bool, n), failOn: -1}
}

func (g *recordingGenerator) NumTasks() int64 { return g.n }

func (g *recordingGenerator) Prepare(numThreads int, chunkSize int64) error {
	g.prepared = true
	g.numThreads = numThreads
	g.chunkSize = chunkSize
	return nil
}

func (g *recordingGenerator) InitThread(int) error {
	g.initCalls.Add(1)
	return nil
}

func (g *recordingGenerator) RunTasks(begin, end int64, _ int) error {
	if g.sleep > 0 {
		time.Sleep(g.sleep)
	}
	if begin == g.failOn {
		return fmt.Errorf("task %d intentionally failed", begin)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := begin; i < end; i++ {
		g.done[i] = true
	}
	return nil
}

func (g *recordingGenerator) Finalize() error {
	g.finalized.Store(true)
	return nil
}

func (g *recordingGenerator) allDone() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, d := range g.done {
		if !d {
			return false
		}
	}
	return true
}

func TestSchedulerCompletesAllTasks(t *testing.T) {
	gen := newRecordingGenerator(97)
	s := NewTaskScheduler(4, 10)
	res, err := s.Run(gen, time.Time{})
	require.NoError(t, err)
	assert.True(t, res.Finished)
	assert.EqualValues(t, 97, res.NextTask)
	assert.True(t, gen.allDone())
	assert.True(t, gen.finalized.Load())
	assert.EqualValues(t, 4, gen.initCalls.Load())
}

func TestSchedulerRespectsDeadline(t *testing.T) {
	gen := newRecordingGenerator(200)
	gen.sleep = 5 * time.Millisecond
	s := NewTaskScheduler(2, 5)
	res, err := s.Run(gen, time.Now().Add(20*time.Millisecond))
	require.NoError(t, err)
	assert.False(t, res.Finished)
	assert.Less(t, res.NextTask, int64(200))
	assert.True(t, gen.finalized.Load())
}

func TestSchedulerPropagatesTaskError(t *testing.T) {
	gen := newRecordingGenerator(50)
	gen.failOn = 20
	s := NewTaskScheduler(3, 10)
	_, err := s.Run(gen, time.Time{})
	assert.Error(t, err)
	assert.True(t, gen.finalized.Load())
}

func TestSchedulerSingleThreadDefault(t *testing.T) {
	gen := newRecordingGenerator(10)
	s := NewTaskScheduler(0, 3)
	res, err := s.Run(gen, time.Time{})
	require.NoError(t, err)
	assert.True(t, res.Finished)
	assert.EqualValues(t, 1, gen.numThreads)
}
