package main

import (
	"bufio"
	"os"
	"strconv"

	"github.com/dismec-go/dismec/internal/core"
	"github.com/dismec-go/dismec/internal/labelweight"
	"github.com/dismec-go/dismec/internal/modelio"
	"github.com/dismec-go/dismec/internal/objective"
	"github.com/dismec-go/dismec/internal/postproc"
	"github.com/dismec-go/dismec/internal/weightinit"
)

// buildLoss maps --loss to a MarginFunction (CLI surface).
func buildLoss(name string) (objective.MarginFunction, error) {
	switch name {
	case "squared-hinge":
		return objective.SquaredHinge{}, nil
	case "logistic":
		return objective.Logistic{}, nil
	case "huber-hinge":
		return objective.HuberHinge{Epsilon: 1}, nil
	case "hinge":
		return nil, core.Errorf(core.InvalidArgument, "--loss hinge (the exact, non-smooth hinge) is not implemented; use --loss huber-hinge for a smoothed approximation")
	default:
		return nil, core.Errorf(core.InvalidArgument, "unknown --loss %q", name)
	}
}

// buildRegularizer maps --regularizer/--reg-scale/--reg-bias to an
// Objective. The pointwise regularizer hierarchy only covers
// L2/Huber/Elastic; exact L1 has no smooth diagonal preconditioner and is
// not implemented, matching --regularizer l1-relaxed's smoothed-Huber
// substitute.
func buildRegularizer(name string, scale core.Real, regBias bool) (objective.Objective, error) {
	ignoreBias := !regBias
	const huberEpsilon = 0.1
	switch name {
	case "l2":
		return objective.NewSquared(scale, ignoreBias)
	case "huber":
		return objective.NewHuber(scale, huberEpsilon, ignoreBias)
	case "l1-relaxed":
		return objective.NewElastic(scale, huberEpsilon, 0, ignoreBias)
	case "elastic-50-50":
		return objective.NewElastic(scale, huberEpsilon, 0.5, ignoreBias)
	case "elastic-90-10":
		return objective.NewElastic(scale, huberEpsilon, 0.9, ignoreBias)
	case "l1":
		return nil, core.Errorf(core.InvalidArgument, "--regularizer l1 (exact, non-smooth L1) is not implemented; use --regularizer l1-relaxed")
	default:
		return nil, core.Errorf(core.InvalidArgument, "unknown --regularizer %q", name)
	}
}

func readPerLabelFile(path string, numLabels int64) ([]core.Real, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, core.Errorf(core.IOError, "opening %q: %v", path, err)
	}
	defer f.Close()
	out := make([]core.Real, 0, numLabels)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		v, err := strconv.ParseFloat(line, 32)
		if err != nil {
			return nil, core.Errorf(core.IOError, "%q: invalid value %q", path, line)
		}
		out = append(out, core.Real(v))
	}
	if err := scanner.Err(); err != nil {
		return nil, core.Errorf(core.IOError, "reading %q: %v", path, err)
	}
	if int64(len(out)) != numLabels {
		return nil, core.Errorf(core.InvalidArgument, "%q has %d entries, expected %d", path, len(out), numLabels)
	}
	return out, nil
}

// buildWeighting maps --weighting-mode and friends to a LabelWeighting.
func buildWeighting(mode string, a, b float64, posFile, negFile string, numLabels int64) (labelweight.Weighting, error) {
	switch mode {
	case "constant":
		return labelweight.Constant{A: 1, B: 1}, nil
	case "2pm1":
		return labelweight.Propensity{A: a, B: b}, nil
	case "p2mp":
		return labelweight.PropensityDownweight{A: a, B: b}, nil
	case "from-file":
		if posFile == "" || negFile == "" {
			return nil, core.Errorf(core.InvalidArgument, "--weighting-mode from-file requires --weighting-pos-file and --weighting-neg-file")
		}
		vpos, err := readPerLabelFile(posFile, numLabels)
		if err != nil {
			return nil, err
		}
		vneg, err := readPerLabelFile(negFile, numLabels)
		if err != nil {
			return nil, err
		}
		return labelweight.Custom{VPos: vpos, VNeg: vneg}, nil
	default:
		return nil, core.Errorf(core.InvalidArgument, "unknown --weighting-mode %q", mode)
	}
}

// buildInitFactory maps --init-mode and friends to a weightinit.Initializer
// factory, called once per worker thread. loss/regFactory are only needed by
// "ova-primal", which solves its own warm-start minimization.
func buildInitFactory(mode string, msiPos, msiNeg, biasInitValue core.Real, maxNumPos int, loss objective.MarginFunction, regFactory func() (objective.Objective, error)) (func() weightinit.Initializer, error) {
	switch mode {
	case "zero":
		return func() weightinit.Initializer { return weightinit.Zero{} }, nil
	case "bias":
		// No architecture-level "bias-only" initializer exists; --bias-init-value
		// is applied uniformly via Constant as a CLI-level convenience reading.
		return func() weightinit.Initializer { return weightinit.Constant{V: biasInitValue} }, nil
	case "mean":
		return func() weightinit.Initializer { return weightinit.FeatureMean{PosTarget: msiPos, NegTarget: msiNeg} }, nil
	case "msi":
		return func() weightinit.Initializer { return weightinit.FeatureMean{PosTarget: msiPos, NegTarget: msiNeg} }, nil
	case "multi-pos":
		if maxNumPos < 1 {
			return nil, core.Errorf(core.InvalidArgument, "--init-mode multi-pos requires --max-num-pos >= 1")
		}
		return func() weightinit.Initializer {
			return weightinit.MultiPositive{MaxPositives: maxNumPos, PosTarget: msiPos, NegTarget: msiNeg, Ridge: 1e-6}
		}, nil
	case "ova-primal":
		return func() weightinit.Initializer {
			reg, err := regFactory()
			if err != nil {
				reg = nil
			}
			return &weightinit.OVAPrimal{Reg: reg, Loss: loss}
		}, nil
	default:
		return nil, core.Errorf(core.InvalidArgument, "unknown --init-mode %q", mode)
	}
}

// buildPostProcFactory maps --weight-culling/--sparsify to a PostProcessor
// factory.
func buildPostProcFactory(cullEpsilon core.Real, sparsifyPercent float64) func(objective.Objective) postproc.PostProcessor {
	var stages []postproc.PostProcessor
	if cullEpsilon > 0 {
		stages = append(stages, postproc.Cull{Epsilon: cullEpsilon})
	}
	if sparsifyPercent > 0 {
		return func(obj objective.Objective) postproc.PostProcessor {
			all := append([]postproc.PostProcessor(nil), stages...)
			all = append(all, postproc.Sparsify{Tau: core.Real(sparsifyPercent / 100)})
			return postproc.Combined{Stages: all}
		}
	}
	switch len(stages) {
	case 0:
		return func(objective.Objective) postproc.PostProcessor { return postproc.Identity{} }
	case 1:
		s := stages[0]
		return func(objective.Objective) postproc.PostProcessor { return s }
	default:
		return func(objective.Objective) postproc.PostProcessor { return postproc.Combined{Stages: stages} }
	}
}

// saveFormat maps the three mutually exclusive --save-* flags to a
// modelio.Format.
func saveFormat(denseTxt, denseNpy, sparseTxt bool) (modelio.Format, error) {
	count := 0
	for _, v := range []bool{denseTxt, denseNpy, sparseTxt} {
		if v {
			count++
		}
	}
	if count > 1 {
		return 0, core.Errorf(core.InvalidArgument, "--save-dense-txt, --save-dense-npy and --save-sparse-txt are mutually exclusive")
	}
	switch {
	case denseNpy:
		return modelio.DenseBinary, nil
	case sparseTxt:
		return modelio.SparseText, nil
	default:
		return modelio.DenseText, nil
	}
}
