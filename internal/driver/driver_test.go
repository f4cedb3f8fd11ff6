package driver

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dismec-go/dismec/internal/core"
	"github.com/dismec-go/dismec/internal/labelweight"
	"github.com/dismec-go/dismec/internal/matrix"
	"github.com/dismec-go/dismec/internal/modelio"
	"github.com/dismec-go/dismec/internal/objective"
	"github.com/dismec-go/dismec/internal/scheduler"
	"github.com/dismec-go/dismec/internal/trainspec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedLabels struct {
	n       int
	byLabel map[core.LabelID][]int // indices that are positive for this label
}

func (f fixedLabels) LabelColumn(k core.LabelID) ([]core.Real, error) {
	col := make([]core.Real, f.n)
	for i := range col {
		col[i] = -1
	}
	for _, i := range f.byLabel[k] {
		col[i] = 1
	}
	return col, nil
}

func newTestSpec(t *testing.T, labels fixedLabels, totalInstances, totalLabels int64) *trainspec.DismecSpec {
	t.Helper()
	x, err := matrix.NewDense(int(totalInstances), 2, []core.Real{
		1, 0,
		0, 1,
		1, 1,
		-1, 0,
		0, -1,
	})
	require.NoError(t, err)
	return &trainspec.DismecSpec{
		X:      x,
		Labels: labels,
		Loss:   objective.SquaredHinge{},
		RegFactory: func() (objective.Objective, error) {
			return objective.NewSquared(1, true)
		},
		Weighting:      labelweight.Constant{A: 1, B: 1},
		TotalInstances: totalInstances,
		BaseEpsilon:    0.1,
	}
}

func TestDriverRunTrainsFullRangeWithTailAbsorption(t *testing.T) {
	labels := fixedLabels{n: 5, byLabel: map[core.LabelID][]int{
		0: {0}, 1: {1}, 2: {2}, 3: {3}, 4: {4},
	}}
	spec := newTestSpec(t, labels, 5, 5)

	dir := t.TempDir()
	metaPath := filepath.Join(dir, "meta.json")
	saver, err := modelio.NewSaver(metaPath, modelio.DenseText, 2, 5, false)
	require.NoError(t, err)

	d := &Driver{
		Spec:        spec,
		X:           spec.X,
		Labels:      labels,
		Saver:       saver,
		Scheduler:   scheduler.NewTaskScheduler(2, 1),
		NumFeatures: 2,
		BatchSize:   4, // with end=5 and half-batch absorption, this becomes one batch of 5
	}

	res, err := d.Run(context.Background(), 0, 5, time.Time{}, false)
	require.NoError(t, err)
	assert.True(t, res.Finished)
	assert.EqualValues(t, 5, res.NextLabel)

	loader, err := modelio.NewLoader(metaPath, modelio.MatchOnDisk)
	require.NoError(t, err)
	model, err := loader.LoadModelRange(0, 5)
	require.NoError(t, err)
	for k := core.LabelID(0); k < 5; k++ {
		_, err := model.WeightsForLabel(k)
		require.NoError(t, err)
	}
}

func TestDriverRunResumesFromMissingRange(t *testing.T) {
	labels := fixedLabels{n: 5, byLabel: map[core.LabelID][]int{
		0: {0}, 1: {1}, 2: {2}, 3: {3}, 4: {4},
	}}
	spec := newTestSpec(t, labels, 5, 5)

	dir := t.TempDir()
	metaPath := filepath.Join(dir, "meta.json")
	saver, err := modelio.NewSaver(metaPath, modelio.DenseText, 2, 5, false)
	require.NoError(t, err)

	// Pre-populate labels [0,2) as if from a prior run.
	pre, err := modelio.NewDenseModel(core.PartialModelSpec{FirstLabel: 0, LabelCount: 2, TotalLabels: 5}, 2)
	require.NoError(t, err)
	require.NoError(t, pre.SetWeightsForLabel(0, []core.Real{1, 1}))
	require.NoError(t, pre.SetWeightsForLabel(1, []core.Real{2, 2}))
	f, err := saver.AddModel(pre, "")
	require.NoError(t, err)
	_, err = f.Wait()
	require.NoError(t, err)
	require.NoError(t, saver.UpdateMetaFile())

	resumed, err := modelio.NewSaver(metaPath, modelio.DenseText, 2, 5, true)
	require.NoError(t, err)

	d := &Driver{
		Spec:        spec,
		X:           spec.X,
		Labels:      labels,
		Saver:       resumed,
		Scheduler:   scheduler.NewTaskScheduler(2, 1),
		NumFeatures: 2,
		BatchSize:   10,
	}

	res, err := d.Run(context.Background(), 0, 5, time.Time{}, true)
	require.NoError(t, err)
	assert.True(t, res.Finished)

	loader, err := modelio.NewLoader(metaPath, modelio.MatchOnDisk)
	require.NoError(t, err)
	model, err := loader.LoadModelRange(0, 5)
	require.NoError(t, err)
	w0, err := model.WeightsForLabel(0)
	require.NoError(t, err)
	assert.Equal(t, []core.Real{1, 1}, w0) // untouched by the resumed run
}
