package solver

import (
	"math"

	"github.com/dismec-go/dismec/internal/core"
	"github.com/dismec-go/dismec/internal/objective"
	"github.com/dismec-go/dismec/internal/params"
)

// Status is the outcome of a NewtonSolver run.
type Status int

const (
	Success Status = iota
	Failed
	Diverged
	TimedOut
)

func (s Status) String() string {
	switch s {
	case Success:
		return "Success"
	case Failed:
		return "Failed"
	case Diverged:
		return "Diverged"
	case TimedOut:
		return "TimedOut"
	default:
		return "Unknown"
	}
}

// MinimizationResult is what the OVA driver records per label:
// "Per-label NumericFailures are captured into the label's
// MinimizationResult and reported").
type MinimizationResult struct {
	Status     Status
	Iterations int
	FinalValue core.Real
	FinalGrad  core.Real
}

// NewtonSolver is a trust-region-free Newton loop: CG
// direction, then Armijo line search, then weight update, converging on
// ||grad||/||grad0|| <= Epsilon.
type NewtonSolver struct {
	Epsilon  core.Real // default 0.01
	MaxSteps int       // default 1000
	AlphaPCG core.Real // preconditioner regularization in (0,1), default 0.01

	CG     *CGSolver
	Search *LineSearch
}

// NewNewtonSolver builds a NewtonSolver with spec-default hyperparameters
// and fresh CG/LineSearch sub-solvers.
func NewNewtonSolver() *NewtonSolver {
	return &NewtonSolver{
		Epsilon:  0.01,
		MaxSteps: 1000,
		AlphaPCG: 0.01,
		CG:       NewCGSolver(),
		Search:   NewLineSearch(),
	}
}

// Apply validates and sets this solver's own hyperparameters from b, then
// recurses into the "cg." and "search." sub-bags for the nested solvers.
func (n *NewtonSolver) Apply(b *params.Bag) error {
	eps, err := b.PopRealOr("epsilon", float64(n.Epsilon))
	if err != nil {
		return err
	}
	maxSteps, err := b.PopIntOr("max_steps", int64(n.MaxSteps))
	if err != nil {
		return err
	}
	alphaPCG, err := b.PopRealOr("alpha_pcg", float64(n.AlphaPCG))
	if err != nil {
		return err
	}
	if eps <= 0 {
		return core.Errorf(core.InvalidArgument, "epsilon must be > 0, got %v", eps)
	}
	if maxSteps < 1 {
		return core.Errorf(core.InvalidArgument, "max_steps must be >= 1, got %v", maxSteps)
	}
	if alphaPCG <= 0 || alphaPCG >= 1 {
		return core.Errorf(core.InvalidArgument, "alpha_pcg must be in (0,1), got %v", alphaPCG)
	}
	n.Epsilon, n.MaxSteps, n.AlphaPCG = core.Real(eps), int(maxSteps), core.Real(alphaPCG)

	cgBag := b.Sub("cg")
	if err := n.CG.Apply(cgBag); err != nil {
		return err
	}
	b.Merge("cg", cgBag)

	searchBag := b.Sub("search")
	if err := n.Search.Apply(searchBag); err != nil {
		return err
	}
	b.Merge("search", searchBag)
	return nil
}

func norm(v []core.Real) core.Real {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return core.Real(math.Sqrt(s))
}

// Minimize runs the Newton loop against obj, starting from init (copied into
// w, which is mutated in place across iterations and left at the solver's
// final iterate on return).
func (n *NewtonSolver) Minimize(obj objective.Objective, w *core.HashedVector, init []core.Real) MinimizationResult {
	dim := int(obj.NumVariables())
	if dim < 0 {
		dim = w.Len()
	}
	w.Assign(init)

	g0 := make([]core.Real, dim)
	if err := obj.GradientAtZero(g0); err != nil {
		return MinimizationResult{Status: Failed}
	}
	g0Norm := norm(g0)

	f, err := obj.Value(w)
	if err != nil || !objective.IsFinite(f) {
		return MinimizationResult{Status: Failed}
	}
	grad := make([]core.Real, dim)
	if err := obj.Gradient(w, grad); err != nil {
		return MinimizationResult{Status: Failed}
	}
	gNorm := norm(grad)
	if !objective.IsFinite(gNorm) {
		return MinimizationResult{Status: Failed}
	}
	if gNorm <= n.Epsilon*g0Norm {
		return MinimizationResult{Status: Success, FinalValue: f, FinalGrad: gNorm}
	}

	precond := make([]core.Real, dim)
	if err := obj.DiagPreconditioner(w, precond); err != nil {
		return MinimizationResult{Status: Failed}
	}

	direction := make([]core.Real, dim)
	hvBuf := make([]core.Real, dim)
	regPrecond := make([]core.Real, dim)
	prevF := f

	for k := 1; k <= n.MaxSteps; k++ {
		for i := range regPrecond {
			regPrecond[i] = (1-n.AlphaPCG)*1 + n.AlphaPCG*precond[i]
		}

		mv := func(d, out []core.Real) {
			// HessianTimesDirection expects to be called with the current w;
			// any error here indicates a dimension bug in the caller, which
			// we treat as a degenerate direction by zeroing the product.
			if err := obj.HessianTimesDirection(w, d, out); err != nil {
				for i := range out {
					out[i] = 0
				}
			}
		}
		n.CG.Solve(mv, grad, regPrecond, direction)

		if err := obj.ProjectToLine(w, direction); err != nil {
			return MinimizationResult{Status: Failed, Iterations: k - 1, FinalValue: f, FinalGrad: gNorm}
		}
		var gTs float64
		for i := range grad {
			gTs += float64(grad[i]) * float64(direction[i])
		}
		res := n.Search.Search(obj.LookupOnLine, f, core.Real(gTs))
		if res.Step == 0 {
			return MinimizationResult{Status: Failed, Iterations: k - 1, FinalValue: f, FinalGrad: gNorm}
		}

		base := append([]core.Real(nil), w.Data()...)
		w.AssignAdd(base, res.Step, direction)
		obj.DeclareVectorOnLastLine(w, res.Step)

		f = res.Value
		if err := obj.GradientAndPreconditioner(w, grad, precond); err != nil {
			return MinimizationResult{Status: Failed, Iterations: k, FinalValue: f}
		}
		gNorm = norm(grad)
		if !objective.IsFinite(f) || !objective.IsFinite(gNorm) {
			return MinimizationResult{Status: Failed, Iterations: k, FinalValue: f, FinalGrad: gNorm}
		}
		if gNorm <= n.Epsilon*g0Norm {
			return MinimizationResult{Status: Success, Iterations: k, FinalValue: f, FinalGrad: gNorm}
		}
		if f < -1e32 {
			return MinimizationResult{Status: Diverged, Iterations: k, FinalValue: f, FinalGrad: gNorm}
		}
		if math.Abs(float64(prevF-f)) <= 1e-12*math.Abs(float64(f)) {
			return MinimizationResult{Status: Failed, Iterations: k, FinalValue: f, FinalGrad: gNorm}
		}
		prevF = f
	}
	return MinimizationResult{Status: TimedOut, Iterations: n.MaxSteps, FinalValue: f, FinalGrad: gNorm}
}
