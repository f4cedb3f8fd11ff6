// Command dismec-train runs one OVA training job: it reads a dataset in XMC
// or SLICE text format, builds a TrainingSpec from the chosen loss,
// regularizer, label weighting and weight-initialization strategy, and
// drives it through the batched training loop, checkpointing partial models
// as it goes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/dismec-go/dismec/internal/core"
	"github.com/dismec-go/dismec/internal/dataset"
	"github.com/dismec-go/dismec/internal/driver"
	"github.com/dismec-go/dismec/internal/modelio"
	"github.com/dismec-go/dismec/internal/objective"
	"github.com/dismec-go/dismec/internal/scheduler"
	"github.com/dismec-go/dismec/internal/trainspec"
	"github.com/dismec-go/dismec/internal/ui"
	"github.com/dismec-go/dismec/internal/ui/spinning"
)

type flags struct {
	datasetPath   string
	datasetFormat string
	labelsPath    string // SLICE format's second file
	oneBased      bool

	outputPath string
	firstLabel int64
	numLabels  int64
	resume     bool

	saveDenseTxt  bool
	saveDenseNpy  bool
	saveSparseTxt bool
	weightCulling float64

	threads   int
	batchSize int64
	timeout   time.Duration

	epsilon   float64
	alphaPCG  float64
	maxSteps  int

	loss          string
	regularizer   string
	regScale      float64
	regBias       bool
	weightingMode string
	propensityA   float64
	propensityB   float64
	weightingPos  string
	weightingNeg  string
	initMode      string
	msiPos        float64
	msiNeg        float64
	maxNumPos     int
	biasInitValue float64
	sparsify      float64
}

func main() {
	klog.InitFlags(nil)
	defer klog.Flush()

	f := &flags{}
	root := &cobra.Command{
		Use:   "dismec-train [output-path]",
		Short: "Train an extreme multi-label one-vs-all linear classifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.outputPath = args[0]
			return run(cmd.Context(), f)
		},
	}

	fs := root.Flags()
	fs.StringVar(&f.datasetPath, "dataset", "", "path to the training dataset (XMC format) or its feature file (SLICE format)")
	fs.StringVar(&f.datasetFormat, "dataset-format", "xmc", "dataset format: xmc or slice")
	fs.StringVar(&f.labelsPath, "dataset-labels", "", "SLICE format's separate labels file")
	fs.BoolVar(&f.oneBased, "one-based", false, "dataset feature/label indices are 1-based")

	fs.Int64Var(&f.firstLabel, "first-label", 0, "first label id to train, inclusive")
	fs.Int64Var(&f.numLabels, "num-labels", -1, "number of labels to train; defaults to all remaining labels")
	fs.BoolVar(&f.resume, "continue", false, "resume from the first gap reported by the output model's metadata")

	fs.BoolVar(&f.saveDenseTxt, "save-dense-txt", false, "save weights as dense text (default)")
	fs.BoolVar(&f.saveDenseNpy, "save-dense-npy", false, "save weights as a dense NumPy .npy file")
	fs.BoolVar(&f.saveSparseTxt, "save-sparse-txt", false, "save weights as sparse text")
	fs.Float64Var(&f.weightCulling, "weight-culling", 0, "zero any weight coordinate with magnitude <= this value before saving")

	fs.IntVar(&f.threads, "threads", 1, "number of worker threads")
	fs.Int64Var(&f.batchSize, "batch-size", 0, "labels per checkpoint batch; 0 trains the whole range in one batch")
	fs.DurationVar(&f.timeout, "timeout", 0, "stop dispatching new labels after this long (0 disables the deadline)")

	fs.Float64Var(&f.epsilon, "epsilon", 0.01, "Newton solver relative gradient-norm stopping tolerance")
	fs.Float64Var(&f.alphaPCG, "alpha-pcg", 0.5, "accepted but not applied: the Newton solver's preconditioner mixing weight alpha_pcg stays at its default of 0.01")
	fs.IntVar(&f.maxSteps, "max-steps", 1000, "accepted but not applied: the Newton solver's iteration cap per label stays at its default of 1000")

	fs.StringVar(&f.loss, "loss", "squared-hinge", "margin loss: squared-hinge, logistic or huber-hinge")
	fs.StringVar(&f.regularizer, "regularizer", "l2", "regularizer: l2, huber, l1-relaxed, elastic-50-50 or elastic-90-10")
	fs.Float64Var(&f.regScale, "reg-scale", 1, "regularizer scale factor")
	fs.BoolVar(&f.regBias, "reg-bias", false, "include the bias coordinate in the regularization penalty")
	fs.StringVar(&f.weightingMode, "weighting-mode", "constant", "label weighting: constant, 2pm1, p2mp or from-file")
	fs.Float64Var(&f.propensityA, "propensity-a", 0.55, "propensity curve parameter a")
	fs.Float64Var(&f.propensityB, "propensity-b", 1.5, "propensity curve parameter b")
	fs.StringVar(&f.weightingPos, "weighting-pos-file", "", "per-label positive weights, one value per line (from-file mode)")
	fs.StringVar(&f.weightingNeg, "weighting-neg-file", "", "per-label negative weights, one value per line (from-file mode)")
	fs.StringVar(&f.initMode, "init-mode", "zero", "weight initialization: zero, bias, mean, msi, multi-pos or ova-primal")
	fs.Float64Var(&f.msiPos, "msi-pos", 1, "feature-mean initializer's positive-class target margin")
	fs.Float64Var(&f.msiNeg, "msi-neg", -1, "feature-mean initializer's negative-class target margin")
	fs.IntVar(&f.maxNumPos, "max-num-pos", 0, "multi-pos initializer's positive-count threshold")
	fs.Float64Var(&f.biasInitValue, "bias-init-value", 0, "constant value used to seed every coordinate in --init-mode bias")
	fs.Float64Var(&f.sparsify, "sparsify", 0, "percent relative loss increase allowed when sparsifying weights, 0 disables it")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		klog.Errorf("dismec-train: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, f *flags) error {
	ds, err := loadDataset(f)
	if err != nil {
		return errors.Wrap(err, "loading dataset")
	}
	klog.V(1).Infof("loaded dataset: %d instances, %d features, %d labels", ds.NumInstances(), ds.NumFeatures(), ds.NumLabels())

	loss, err := buildLoss(f.loss)
	if err != nil {
		return err
	}
	regScale := core.Real(f.regScale)
	regFactory := func() (objective.Objective, error) {
		return buildRegularizer(f.regularizer, regScale, f.regBias)
	}
	if _, err := regFactory(); err != nil {
		return err
	}

	weighting, err := buildWeighting(f.weightingMode, f.propensityA, f.propensityB, f.weightingPos, f.weightingNeg, ds.NumLabels())
	if err != nil {
		return err
	}
	initFactory, err := buildInitFactory(f.initMode, core.Real(f.msiPos), core.Real(f.msiNeg), core.Real(f.biasInitValue), f.maxNumPos, loss, regFactory)
	if err != nil {
		return err
	}
	postProcFactory := buildPostProcFactory(core.Real(f.weightCulling), f.sparsify)

	format, err := saveFormat(f.saveDenseTxt, f.saveDenseNpy, f.saveSparseTxt)
	if err != nil {
		return err
	}

	numLabels := f.numLabels
	if numLabels < 0 {
		numLabels = ds.NumLabels() - f.firstLabel
	}
	labelEnd := core.LabelID(f.firstLabel + numLabels)

	saver, err := modelio.NewSaver(f.outputPath, format, int64(ds.NumFeatures()), ds.NumLabels(), f.resume)
	if err != nil {
		return errors.Wrap(err, "opening output model")
	}

	spec := &trainspec.DismecSpec{
		X:               ds.FeatureMatrix(),
		Labels:          ds,
		Loss:            loss,
		RegFactory:      regFactory,
		Weighting:       weighting,
		InitFactory:     initFactory,
		PostProcFactory: postProcFactory,
		TotalInstances:  int64(ds.NumInstances()),
		BaseEpsilon:     core.Real(f.epsilon),
	}

	d := &driver.Driver{
		Spec:        spec,
		X:           ds.FeatureMatrix(),
		Labels:      ds,
		Saver:       saver,
		Scheduler:   scheduler.NewTaskScheduler(f.threads, chunkSize(numLabels, f.threads)),
		NumFeatures: ds.NumFeatures(),
		BatchSize:   f.batchSize,
	}

	var deadline time.Time
	if f.timeout > 0 {
		deadline = time.Now().Add(f.timeout)
	}

	spin := spinning.New(ctx)
	result, err := d.Run(ctx, core.LabelID(f.firstLabel), labelEnd, deadline, f.resume)
	spin.Done()
	if err != nil {
		return errors.Wrap(err, "training")
	}

	fmt.Println(ui.Summary("dismec-train", int64(result.NextLabel)-f.firstLabel, numLabels))
	if !result.Finished {
		klog.Warningf("training stopped early at label %d of %d (deadline reached); rerun with --continue to resume", result.NextLabel, labelEnd)
	}
	return nil
}

// chunkSize picks a scheduler dispatch granularity: enough chunks to keep
// every thread busy, without going finer than one label per chunk.
func chunkSize(numLabels int64, threads int) int64 {
	if threads < 1 {
		threads = 1
	}
	c := numLabels / int64(threads*4)
	if c < 1 {
		c = 1
	}
	return c
}

func loadDataset(f *flags) (*dataset.Dataset, error) {
	switch f.datasetFormat {
	case "xmc":
		return dataset.ReadXMC(f.datasetPath, f.oneBased)
	case "slice":
		return dataset.ReadSlice(f.datasetPath, f.labelsPath)
	default:
		return nil, core.Errorf(core.InvalidArgument, "unknown --dataset-format %q", f.datasetFormat)
	}
}
