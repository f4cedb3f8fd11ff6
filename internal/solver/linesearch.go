package solver

import (
	"github.com/dismec-go/dismec/internal/core"
	"github.com/dismec-go/dismec/internal/params"
)

// LineLookup evaluates g(t) = f(w + t*d) for a direction already projected
// via Objective.ProjectToLine.
type LineLookup func(t core.Real) core.Real

// LineSearch implements Armijo backtracking over a projected scalar
// objective.
type LineSearch struct {
	Alpha0   core.Real // initial step, default 1
	Rho      core.Real // shrink factor in (0,1), default 0.5
	Eta      core.Real // sufficient-decrease factor in (0,1), default 0.01
	MaxSteps int       // default 20
}

// NewLineSearch builds a LineSearch with spec-default hyperparameters.
func NewLineSearch() *LineSearch {
	return &LineSearch{Alpha0: 1, Rho: 0.5, Eta: 0.01, MaxSteps: 20}
}

// Apply validates and sets the line search's hyperparameters from a bag
// (keys unprefixed; the caller applies the "search." sub-bag).
func (ls *LineSearch) Apply(b *params.Bag) error {
	alpha0, err := b.PopRealOr("alpha0", float64(ls.Alpha0))
	if err != nil {
		return err
	}
	rho, err := b.PopRealOr("rho", float64(ls.Rho))
	if err != nil {
		return err
	}
	eta, err := b.PopRealOr("eta", float64(ls.Eta))
	if err != nil {
		return err
	}
	maxSteps, err := b.PopIntOr("max_steps", int64(ls.MaxSteps))
	if err != nil {
		return err
	}
	if alpha0 <= 0 {
		return core.Errorf(core.InvalidArgument, "search.alpha0 must be > 0, got %v", alpha0)
	}
	if rho <= 0 || rho >= 1 {
		return core.Errorf(core.InvalidArgument, "search.rho must be in (0,1), got %v", rho)
	}
	if eta <= 0 || eta >= 1 {
		return core.Errorf(core.InvalidArgument, "search.eta must be in (0,1), got %v", eta)
	}
	if maxSteps < 1 {
		return core.Errorf(core.InvalidArgument, "search.max_steps must be >= 1, got %v", maxSteps)
	}
	ls.Alpha0, ls.Rho, ls.Eta, ls.MaxSteps = core.Real(alpha0), core.Real(rho), core.Real(eta), int(maxSteps)
	return nil
}

// Result is the outcome of a backtracking search: the accepted objective
// value and step (Step == 0 means the search exhausted its budget and the
// caller should treat the step as rejected).
type Result struct {
	Value core.Real
	Step  core.Real
}

// Search runs Armijo backtracking: starting from step Alpha0, shrink by Rho
// while g(alpha) - g(0) > Eta*alpha*gTs, for at most MaxSteps shrinks.
// g0 is g(0) and gTs is the directional derivative grad(w).d at the base
// point.
func (ls *LineSearch) Search(lookup LineLookup, g0, gTs core.Real) Result {
	alpha := ls.Alpha0
	for step := 0; step < ls.MaxSteps; step++ {
		val := lookup(alpha)
		if val-g0 <= ls.Eta*alpha*gTs {
			return Result{Value: val, Step: alpha}
		}
		alpha *= ls.Rho
	}
	return Result{Value: g0, Step: 0}
}
