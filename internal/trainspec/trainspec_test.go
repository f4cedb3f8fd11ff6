package trainspec

import (
	"testing"

	"github.com/dismec-go/dismec/internal/core"
	"github.com/dismec-go/dismec/internal/labelweight"
	"github.com/dismec-go/dismec/internal/matrix"
	"github.com/dismec-go/dismec/internal/objective"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLabels struct {
	columns map[core.LabelID][]core.Real
}

func (f fakeLabels) LabelColumn(k core.LabelID) ([]core.Real, error) {
	col, ok := f.columns[k]
	if !ok {
		return nil, core.Errorf(core.InvalidArgument, "no such label %d", k)
	}
	return col, nil
}

func newDismecSpec(t *testing.T) (*DismecSpec, matrix.FeatureMatrix) {
	t.Helper()
	x, err := matrix.NewDense(4, 2, []core.Real{
		1, 0,
		0, 1,
		1, 1,
		-1, -1,
	})
	require.NoError(t, err)
	labels := fakeLabels{columns: map[core.LabelID][]core.Real{
		5: {1, -1, 1, -1},
	}}
	spec := &DismecSpec{
		X:      x,
		Labels: labels,
		Loss:   objective.SquaredHinge{},
		RegFactory: func() (objective.Objective, error) {
			return objective.NewSquared(1, true)
		},
		Weighting:      labelweight.Constant{A: 1, B: 1},
		TotalInstances: 4,
		BaseEpsilon:    0.01,
	}
	return spec, x
}

func TestDismecSpecMakeObjectiveAndUpdate(t *testing.T) {
	spec, x := newDismecSpec(t)
	obj, err := spec.MakeObjective()
	require.NoError(t, err)
	require.NoError(t, spec.UpdateObjective(obj, 5))

	w := core.NewZeroHashedVector(x.Cols())
	val, err := obj.Value(w)
	require.NoError(t, err)
	assert.True(t, val >= 0)
}

func TestDismecSpecUpdateObjectiveWrongType(t *testing.T) {
	spec, _ := newDismecSpec(t)
	err := spec.UpdateObjective(&fakeObjective{}, 5)
	assert.ErrorIs(t, err, core.InvalidArgument)
}

func TestMinorityScale(t *testing.T) {
	assert.Equal(t, core.Real(1)/10, minorityScale(1, 10))
	assert.Equal(t, core.Real(3)/10, minorityScale(7, 10))
	assert.Equal(t, core.Real(1)/10, minorityScale(0, 10))
}

func TestDismecSpecUpdateMinimizerScalesEpsilonEachCall(t *testing.T) {
	spec, _ := newDismecSpec(t)
	spec.Labels = fakeLabels{columns: map[core.LabelID][]core.Real{
		1: {1, -1, -1, -1}, // nPos=1, N=4 -> scale = min(1,3)/4 = 1/4
		2: {1, 1, 1, -1},   // nPos=3, N=4 -> scale = min(3,1)/4 = 1/4
	}}
	s := spec.MakeMinimizer()
	base := s.Epsilon

	spec.UpdateMinimizer(s, 1)
	first := s.Epsilon
	assert.InDelta(t, float64(base)*0.25, float64(first), 1e-6)

	// A second call against a different label must scale from BaseEpsilon
	// again, not compound onto the already-scaled value.
	spec.UpdateMinimizer(s, 2)
	second := s.Epsilon
	assert.InDelta(t, float64(first), float64(second), 1e-6)
}

func TestDismecSpecMakeModelDenseAndSparse(t *testing.T) {
	spec, _ := newDismecSpec(t)
	ps := core.PartialModelSpec{FirstLabel: 0, LabelCount: 2, TotalLabels: 2}

	dense, err := spec.MakeModel(2, ps)
	require.NoError(t, err)
	assert.False(t, dense.IsSparse())

	spec.Sparse = true
	sparse, err := spec.MakeModel(2, ps)
	require.NoError(t, err)
	assert.True(t, sparse.IsSparse())
}

func newCascadeSpec(t *testing.T) *CascadeSpec {
	t.Helper()
	dense, err := matrix.NewDense(3, 1, []core.Real{1, 2, 3})
	require.NoError(t, err)
	sparse, err := matrix.NewDense(3, 1, []core.Real{1, 0, -1})
	require.NoError(t, err)
	labels := fakeLabels{columns: map[core.LabelID][]core.Real{
		0: {1, -1, 1},
	}}
	return &CascadeSpec{
		Dense:  dense,
		Sparse: sparse,
		Labels: labels,
		Loss:   objective.SquaredHinge{},
		RegDenseFactory: func() (objective.Objective, error) {
			return objective.NewSquared(1, true)
		},
		RegSparseFactory: func() (objective.Objective, error) {
			return objective.NewSquared(1, true)
		},
		Weighting:      labelweight.Constant{A: 1, B: 1},
		TotalInstances: 3,
		BaseEpsilon:    0.01,
	}
}

func TestCascadeSpecMakeObjectiveAndUpdate(t *testing.T) {
	spec := newCascadeSpec(t)
	obj, err := spec.MakeObjective()
	require.NoError(t, err)
	require.NoError(t, spec.UpdateObjective(obj, 0))

	w := core.NewZeroHashedVector(int(obj.NumVariables()))
	_, err = obj.Value(w)
	require.NoError(t, err)
}

func TestStatisticsGathererIsLazyAndStable(t *testing.T) {
	spec, _ := newDismecSpec(t)
	g1 := spec.StatisticsGatherer()
	g2 := spec.StatisticsGatherer()
	assert.Same(t, g1, g2)
}

// fakeObjective is a minimal Objective stand-in with no real behavior, used
// only to exercise the UpdateObjective type-assertion failure path.
type fakeObjective struct{}

func (fakeObjective) NumVariables() int64                                            { return 0 }
func (fakeObjective) Value(*core.HashedVector) (core.Real, error)                    { return 0, nil }
func (fakeObjective) Gradient(*core.HashedVector, []core.Real) error                  { return nil }
func (fakeObjective) HessianTimesDirection(*core.HashedVector, []core.Real, []core.Real) error {
	return nil
}
func (fakeObjective) DiagPreconditioner(*core.HashedVector, []core.Real) error { return nil }
func (fakeObjective) GradientAndPreconditioner(*core.HashedVector, []core.Real, []core.Real) error {
	return nil
}
func (fakeObjective) GradientAtZero([]core.Real) error                  { return nil }
func (fakeObjective) ProjectToLine(*core.HashedVector, []core.Real) error { return nil }
func (fakeObjective) LookupOnLine(core.Real) core.Real                  { return 0 }
func (fakeObjective) DeclareVectorOnLastLine(*core.HashedVector, core.Real) {}

var _ objective.Objective = fakeObjective{}
