package driver

import (
	"time"

	"github.com/dismec-go/dismec/internal/core"
	"github.com/dismec-go/dismec/internal/matrix"
	"github.com/dismec-go/dismec/internal/modelio"
	"github.com/dismec-go/dismec/internal/objective"
	"github.com/dismec-go/dismec/internal/postproc"
	"github.com/dismec-go/dismec/internal/scheduler"
	"github.com/dismec-go/dismec/internal/solver"
	"github.com/dismec-go/dismec/internal/stats"
	"github.com/dismec-go/dismec/internal/trainspec"
	"github.com/dismec-go/dismec/internal/weightinit"
)

// solveDuration/solveIterations are the per-label statistics every
// TrainingTaskGenerator records, regardless of which TrainingSpec is in use.
var (
	solveDuration   = stats.StatisticMetaData{Name: "label_solve_duration", Unit: "seconds"}
	solveIterations = stats.StatisticMetaData{Name: "label_solve_iterations", Unit: "count"}
	labelsSucceeded = stats.StatisticMetaData{Name: "labels_succeeded", Unit: "count"}
	labelsFailed    = stats.StatisticMetaData{Name: "labels_failed", Unit: "count"}
)

// threadState is the bundle of thread-local objects a worker builds once in
// InitThread and reuses across every label it trains.
type threadState struct {
	obj       objective.Objective
	minimizer *solver.NewtonSolver
	init      weightinit.Initializer
	post      postproc.PostProcessor
	gather    *stats.StatisticsCollection
}

// TrainingTaskGenerator is the scheduler.TaskGenerator that trains: task
// id `local` (in [0, Count)) trains label First+local, writing its weights
// into Model. Results records the per-label MinimizationResult for
// reporting.
type TrainingTaskGenerator struct {
	Spec   trainspec.TrainingSpec
	X      matrix.FeatureMatrix
	Labels trainspec.LabelSource
	First  core.LabelID
	Count  int64
	Model  *modelio.Model

	// Results[local] is filled in by RunTasks; safe without synchronization
	// because distinct labels write to distinct indices.
	Results []solver.MinimizationResult

	state []*threadState
}

var _ scheduler.TaskGenerator = (*TrainingTaskGenerator)(nil)

func (g *TrainingTaskGenerator) NumTasks() int64 { return g.Count }

func (g *TrainingTaskGenerator) Prepare(numThreads int, _ int64) error {
	g.state = make([]*threadState, numThreads)
	g.Results = make([]solver.MinimizationResult, g.Count)
	return nil
}

func (g *TrainingTaskGenerator) InitThread(threadID int) error {
	obj, err := g.Spec.MakeObjective()
	if err != nil {
		return err
	}
	g.state[threadID] = &threadState{
		obj:       obj,
		minimizer: g.Spec.MakeMinimizer(),
		init:      g.Spec.MakeInitializer(),
		post:      g.Spec.MakePostProcessor(obj),
		gather:    stats.New(),
	}
	return nil
}

func (g *TrainingTaskGenerator) RunTasks(begin, end int64, threadID int) error {
	st := g.state[threadID]
	for local := begin; local < end; local++ {
		k := g.First + core.LabelID(local)

		if err := g.Spec.UpdateObjective(st.obj, k); err != nil {
			return err
		}
		g.Spec.UpdateMinimizer(st.minimizer, k)

		column, err := g.Labels.LabelColumn(k)
		if err != nil {
			return err
		}
		init, err := st.init.Init(k, g.X, column)
		if err != nil {
			return err
		}

		w := core.NewZeroHashedVector(len(init))
		start := time.Now()
		result := st.minimizer.Minimize(st.obj, w, init)
		st.gather.Record(solveDuration, time.Since(start))
		st.gather.Observe(solveIterations, []float64{10, 50, 100, 500}, float64(result.Iterations))
		if result.Status == solver.Success {
			st.gather.Count(labelsSucceeded, 1)
		} else {
			st.gather.Count(labelsFailed, 1)
		}
		g.Results[local] = result

		if err := st.post.Apply(w, st.obj); err != nil {
			return err
		}
		if err := g.Model.SetWeightsForLabel(k, w.Data()); err != nil {
			return err
		}
	}
	return nil
}

func (g *TrainingTaskGenerator) Finalize() error {
	sink := g.Spec.StatisticsGatherer()
	for _, st := range g.state {
		if st != nil {
			stats.Merge(sink, st.gather)
		}
	}
	return nil
}
