// Package trainspec implements TrainingSpec abstraction: the
// factory that hands each worker thread its own Objective, NewtonSolver,
// Initializer and PostProcessor, and knows how to re-point a thread-local
// Objective/Solver pair at a new label without reallocating either.
package trainspec

import (
	"github.com/dismec-go/dismec/internal/core"
	"github.com/dismec-go/dismec/internal/labelweight"
	"github.com/dismec-go/dismec/internal/matrix"
	"github.com/dismec-go/dismec/internal/modelio"
	"github.com/dismec-go/dismec/internal/objective"
	"github.com/dismec-go/dismec/internal/postproc"
	"github.com/dismec-go/dismec/internal/solver"
	"github.com/dismec-go/dismec/internal/stats"
	"github.com/dismec-go/dismec/internal/weightinit"
)

// LabelSource abstracts "give me label k's dense +-1 target column" --
// ultimately backed by a dataset's label matrix, kept as a narrow interface
// here so this package does not need to depend on the dataset reader.
type LabelSource interface {
	LabelColumn(k core.LabelID) ([]core.Real, error)
}

// TrainingSpec is the per-job factory. A single TrainingSpec
// is shared read-only across all worker threads; every Make* call produces
// a fresh, thread-owned instance, so two threads calling MakeObjective
// concurrently never share state.
type TrainingSpec interface {
	// MakeObjective builds a fresh Objective, called once per worker thread
	// on its first task and cached for the thread's lifetime.
	MakeObjective() (objective.Objective, error)
	// MakeMinimizer builds a fresh NewtonSolver, likewise cached per thread.
	MakeMinimizer() *solver.NewtonSolver
	// MakeInitializer builds a fresh WeightInitializer, likewise cached.
	MakeInitializer() weightinit.Initializer
	// MakePostProcessor builds a fresh PostProcessor bound to obj, the same
	// Objective instance the calling thread will keep reusing.
	MakePostProcessor(obj objective.Objective) postproc.PostProcessor
	// MakeModel allocates the Model that will receive this job's weights,
	// choosing dense vs sparse storage.
	MakeModel(numFeatures int, spec core.PartialModelSpec) (*modelio.Model, error)
	// UpdateObjective re-points obj (previously returned by MakeObjective on
	// this same thread) at label k: loads k's label column, recomputes the
	// cost vector from the configured LabelWeighting, and invalidates every
	// label-dependent cache inside obj.
	UpdateObjective(obj objective.Objective, k core.LabelID) error
	// UpdateMinimizer scales s's epsilon by
	// max(min(n+_k, N-n+_k), 1) / N so the stopping tolerance tracks the
	// minority-class size of label k.
	UpdateMinimizer(s *solver.NewtonSolver, k core.LabelID)
	// StatisticsGatherer returns the StatisticsCollection this spec's
	// threads should record into; per-thread instances are merged into this
	// one at finalize time.
	StatisticsGatherer() *stats.StatisticsCollection
}

// minorityScale computes max(min(nPos, n-nPos), 1) / n, the epsilon scale
// factor of update_minimizer.
func minorityScale(nPos, n int64) core.Real {
	minority := nPos
	if n-nPos < minority {
		minority = n - nPos
	}
	if minority < 1 {
		minority = 1
	}
	if n <= 0 {
		return 1
	}
	return core.Real(minority) / core.Real(n)
}

func countPositives(labelColumn []core.Real) int64 {
	var nPos int64
	for _, y := range labelColumn {
		if y > 0 {
			nPos++
		}
	}
	return nPos
}

// DismecSpec is the single-matrix TrainingSpec: one FeatureMatrix, one
// pluggable loss/regularizer/weighting/initializer/post-processor.
type DismecSpec struct {
	X              matrix.FeatureMatrix
	Labels         LabelSource
	Loss           objective.MarginFunction
	RegFactory     func() (objective.Objective, error)
	Weighting      labelweight.Weighting
	InitFactory    func() weightinit.Initializer
	PostProcFactory func(objective.Objective) postproc.PostProcessor
	Sparse         bool
	TotalInstances int64
	BaseEpsilon    core.Real
	Stats          *stats.StatisticsCollection
}

var _ TrainingSpec = (*DismecSpec)(nil)

func (d *DismecSpec) MakeObjective() (objective.Objective, error) {
	reg, err := d.RegFactory()
	if err != nil {
		return nil, err
	}
	n := d.X.Rows()
	y := make([]core.Real, n)
	for i := range y {
		y[i] = -1
	}
	cost := make([]core.Real, n)
	for i := range cost {
		cost[i] = 1
	}
	return objective.NewLinearClassifierLoss(d.X, y, cost, d.Loss, reg)
}

func (d *DismecSpec) MakeMinimizer() *solver.NewtonSolver {
	s := solver.NewNewtonSolver()
	if d.BaseEpsilon > 0 {
		s.Epsilon = d.BaseEpsilon
	}
	return s
}

func (d *DismecSpec) MakeInitializer() weightinit.Initializer {
	if d.InitFactory != nil {
		return d.InitFactory()
	}
	return weightinit.Zero{}
}

func (d *DismecSpec) MakePostProcessor(obj objective.Objective) postproc.PostProcessor {
	if d.PostProcFactory != nil {
		return d.PostProcFactory(obj)
	}
	return postproc.Identity{}
}

func (d *DismecSpec) MakeModel(numFeatures int, spec core.PartialModelSpec) (*modelio.Model, error) {
	if d.Sparse {
		return modelio.NewSparseModel(spec, numFeatures)
	}
	return modelio.NewDenseModel(spec, numFeatures)
}

func (d *DismecSpec) UpdateObjective(obj objective.Objective, k core.LabelID) error {
	loss, ok := obj.(*objective.LinearClassifierLoss)
	if !ok {
		return core.Errorf(core.InvalidArgument, "UpdateObjective: obj is not a *LinearClassifierLoss")
	}
	column, err := d.Labels.LabelColumn(k)
	if err != nil {
		return err
	}
	cost := labelweight.CostVector(d.Weighting, k, column, d.TotalInstances)
	return loss.SetLabelsAndCosts(column, cost)
}

func (d *DismecSpec) UpdateMinimizer(s *solver.NewtonSolver, k core.LabelID) {
	column, err := d.Labels.LabelColumn(k)
	if err != nil {
		return
	}
	base := d.BaseEpsilon
	if base <= 0 {
		base = 0.01
	}
	scale := minorityScale(countPositives(column), d.TotalInstances)
	s.Epsilon = base * scale
}

func (d *DismecSpec) StatisticsGatherer() *stats.StatisticsCollection {
	if d.Stats == nil {
		d.Stats = stats.New()
	}
	return d.Stats
}

// CascadeSpec is the dense+sparse TrainingSpec, built on
// objective.CascadeLoss: the two feature halves may carry different
// regularizer strengths (e.g. a lighter penalty on the dense, learned-
// embedding half and a heavier one on the sparse, raw-feature half).
type CascadeSpec struct {
	Dense, Sparse     matrix.FeatureMatrix
	Labels            LabelSource
	Loss              objective.MarginFunction
	RegDenseFactory   func() (objective.Objective, error)
	RegSparseFactory  func() (objective.Objective, error)
	Weighting         labelweight.Weighting
	InitFactory       func() weightinit.Initializer
	PostProcFactory   func(objective.Objective) postproc.PostProcessor
	ModelIsSparse     bool
	TotalInstances    int64
	BaseEpsilon       core.Real
	Stats             *stats.StatisticsCollection
}

var _ TrainingSpec = (*CascadeSpec)(nil)

func (c *CascadeSpec) MakeObjective() (objective.Objective, error) {
	regDense, err := c.RegDenseFactory()
	if err != nil {
		return nil, err
	}
	regSparse, err := c.RegSparseFactory()
	if err != nil {
		return nil, err
	}
	n := c.Dense.Rows()
	y := make([]core.Real, n)
	for i := range y {
		y[i] = -1
	}
	cost := make([]core.Real, n)
	for i := range cost {
		cost[i] = 1
	}
	return objective.NewCascadeLoss(c.Dense, c.Sparse, y, cost, c.Loss, regDense, regSparse)
}

func (c *CascadeSpec) MakeMinimizer() *solver.NewtonSolver {
	s := solver.NewNewtonSolver()
	if c.BaseEpsilon > 0 {
		s.Epsilon = c.BaseEpsilon
	}
	return s
}

func (c *CascadeSpec) MakeInitializer() weightinit.Initializer {
	if c.InitFactory != nil {
		return c.InitFactory()
	}
	return weightinit.Zero{}
}

func (c *CascadeSpec) MakePostProcessor(obj objective.Objective) postproc.PostProcessor {
	if c.PostProcFactory != nil {
		return c.PostProcFactory(obj)
	}
	return postproc.Identity{}
}

func (c *CascadeSpec) MakeModel(numFeatures int, spec core.PartialModelSpec) (*modelio.Model, error) {
	if c.ModelIsSparse {
		return modelio.NewSparseModel(spec, numFeatures)
	}
	return modelio.NewDenseModel(spec, numFeatures)
}

func (c *CascadeSpec) UpdateObjective(obj objective.Objective, k core.LabelID) error {
	loss, ok := obj.(*objective.CascadeLoss)
	if !ok {
		return core.Errorf(core.InvalidArgument, "UpdateObjective: obj is not a *CascadeLoss")
	}
	column, err := c.Labels.LabelColumn(k)
	if err != nil {
		return err
	}
	cost := labelweight.CostVector(c.Weighting, k, column, c.TotalInstances)
	return loss.SetLabelsAndCosts(column, cost)
}

func (c *CascadeSpec) UpdateMinimizer(s *solver.NewtonSolver, k core.LabelID) {
	column, err := c.Labels.LabelColumn(k)
	if err != nil {
		return
	}
	base := c.BaseEpsilon
	if base <= 0 {
		base = 0.01
	}
	scale := minorityScale(countPositives(column), c.TotalInstances)
	s.Epsilon = base * scale
}

func (c *CascadeSpec) StatisticsGatherer() *stats.StatisticsCollection {
	if c.Stats == nil {
		c.Stats = stats.New()
	}
	return c.Stats
}
