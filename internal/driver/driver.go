// Package driver implements the top-level batched
// training loop that splits a label range into batches, runs each through
// the TaskScheduler, and asynchronously checkpoints each batch's trained
// weights while the next batch is already training.
package driver

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/dismec-go/dismec/internal/core"
	"github.com/dismec-go/dismec/internal/matrix"
	"github.com/dismec-go/dismec/internal/modelio"
	"github.com/dismec-go/dismec/internal/scheduler"
	"github.com/dismec-go/dismec/internal/trainspec"
)

// Driver runs one TrainingSpec over a label range, in batches, with async
// checkpointing.
type Driver struct {
	Spec      trainspec.TrainingSpec
	X         matrix.FeatureMatrix
	Labels    trainspec.LabelSource
	Saver     *modelio.PartialModelSaver
	Scheduler *scheduler.TaskScheduler

	NumFeatures int
	BatchSize   int64

	// sem bounds the number of in-flight asynchronous weight-file writes to
	// one: the driver trains the next batch while the previous batch's
	// write is still in progress, but never starts the next write before the
	// previous one has landed.
	sem *semaphore.Weighted
}

// Result summarizes one Driver.Run call.
type Result struct {
	// Finished reports whether every label in the requested range was
	// trained before the deadline.
	Finished bool
	// NextLabel is the first label that still needs training -- equal to
	// the range's end when Finished is true.
	NextLabel core.LabelID
}

// Run trains labels in [labelBegin, labelEnd) in batches of BatchSize (absorbing
// a tiny tail batch), respecting deadline (zero value means no
// deadline). If resume is true, the driver first narrows the range to the
// saver's first reported gap.
func (d *Driver) Run(ctx context.Context, labelBegin, labelEnd core.LabelID, deadline time.Time, resume bool) (Result, error) {
	if d.sem == nil {
		d.sem = semaphore.NewWeighted(1)
	}

	cur := labelBegin
	end := labelEnd
	if resume {
		missingBegin, missingEnd := d.Saver.GetMissingWeights()
		if missingBegin > cur {
			cur = missingBegin
		}
		if missingEnd < end {
			end = missingEnd
		}
		if cur > end {
			cur = end
		}
	}

	batch := d.BatchSize
	if batch < 1 {
		batch = end - cur
		if batch < 1 {
			batch = 1
		}
	}

	var pending *modelio.SaveFuture
	finished := true

	for cur < end {
		nxt := cur + core.LabelID(batch)
		if nxt > end {
			nxt = end
		}
		if nxt+core.LabelID(batch/2) > end {
			nxt = end
		}

		count := int64(nxt - cur)
		partialSpec := core.PartialModelSpec{FirstLabel: cur, LabelCount: count, TotalLabels: d.Saver.NumLabels()}
		model, err := d.Spec.MakeModel(d.NumFeatures, partialSpec)
		if err != nil {
			return Result{}, err
		}

		gen := &TrainingTaskGenerator{
			Spec:   d.Spec,
			X:      d.X,
			Labels: d.Labels,
			First:  cur,
			Count:  count,
			Model:  model,
		}
		result, runErr := d.Scheduler.Run(gen, deadline)
		if runErr != nil {
			return Result{}, runErr
		}

		saveModel := model
		if !result.Finished {
			saveModel, err = trimModel(d.Spec, d.NumFeatures, cur, result.NextTask, d.Saver.NumLabels(), model)
			if err != nil {
				return Result{}, err
			}
		}

		// A deadline that lands before this batch trained anything leaves
		// nothing new to save: the batch is skipped and cur stays put so the
		// next Run (or --continue) retries it.
		if saveModel == nil {
			finished = false
			break
		}

		if err := d.sem.Acquire(ctx, 1); err != nil {
			return Result{}, err
		}
		future, err := d.Saver.AddModel(saveModel, "")
		if err != nil {
			d.sem.Release(1)
			return Result{}, err
		}
		go func(f *modelio.SaveFuture, saver *modelio.PartialModelSaver, sem *semaphore.Weighted) {
			f.Wait()
			saver.UpdateMetaFile()
			sem.Release(1)
		}(future, d.Saver, d.sem)
		pending = future

		if !result.Finished {
			finished = false
			cur = cur + core.LabelID(result.NextTask)
			break
		}
		cur = nxt
	}

	if pending != nil {
		if _, err := pending.Wait(); err != nil {
			return Result{}, err
		}
	}
	if err := d.Saver.UpdateMetaFile(); err != nil {
		return Result{}, err
	}

	return Result{Finished: finished && cur >= end, NextLabel: cur}, nil
}

// trimModel narrows model, which covers [first, first+count), down to
// [first, first+trainedCount): only the labels the scheduler actually
// dispatched before its deadline have real weights, so only those are
// worth persisting. A deadline landing between batches, before any label in
// this batch was dispatched, is not an error (spec.md:304): trimModel
// returns (nil, nil) and the caller skips the save entirely.
func trimModel(spec trainspec.TrainingSpec, numFeatures int, first core.LabelID, trainedCount int64, totalLabels int64, model *modelio.Model) (*modelio.Model, error) {
	if trainedCount <= 0 {
		return nil, nil
	}
	trimmed, err := spec.MakeModel(numFeatures, core.PartialModelSpec{FirstLabel: first, LabelCount: trainedCount, TotalLabels: totalLabels})
	if err != nil {
		return nil, err
	}
	for k := first; k < first+core.LabelID(trainedCount); k++ {
		w, err := model.WeightsForLabel(k)
		if err != nil {
			return nil, err
		}
		if err := trimmed.SetWeightsForLabel(k, w); err != nil {
			return nil, err
		}
	}
	return trimmed, nil
}
