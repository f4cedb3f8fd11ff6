// Package objective implements the Objective contract shared by
// regularizers and linear classifier losses, the margin-loss family used by
// LinearClassifierLoss, and the pointwise regularizer hierarchy
//.
package objective

import (
	"github.com/dismec-go/dismec/internal/core"
)

// Objective models a differentiable optimization objective whose second
// derivative may only be available as a Hessian-vector product. Every method
// takes the evaluation point as a *core.HashedVector, never an owning
// vector, so that implementations can memoize work keyed by the vector's
// hash instead of by value.
//
// Implementations must validate that every vector they are given matches
// NumVariables() whenever NumVariables() >= 0, failing with
// core.InvalidArgument otherwise. Regularizers that accept any dimension
// (because they apply componentwise) return -1 from NumVariables.
type Objective interface {
	// NumVariables returns the expected dimension of w, or -1 if any
	// dimension is accepted.
	NumVariables() int64

	// Value evaluates f(w).
	Value(w *core.HashedVector) (core.Real, error)

	// Gradient writes ∇f(w) into out.
	Gradient(w *core.HashedVector, out []core.Real) error

	// HessianTimesDirection writes H(w)*d into out.
	HessianTimesDirection(w *core.HashedVector, d []core.Real, out []core.Real) error

	// DiagPreconditioner writes an approximation of diag(H(w)) into out,
	// suitable as a CG preconditioner.
	DiagPreconditioner(w *core.HashedVector, out []core.Real) error

	// GradientAndPreconditioner is the combined form of Gradient and
	// DiagPreconditioner that may exploit shared intermediate work.
	GradientAndPreconditioner(w *core.HashedVector, gradOut, precondOut []core.Real) error

	// GradientAtZero writes ∇f(0) into out. Implementations typically make
	// this much cheaper than Gradient at an arbitrary w.
	GradientAtZero(out []core.Real) error

	// ProjectToLine precomputes whatever caches are needed so that
	// LookupOnLine(t) can evaluate f(w + t*d) in O(n) amortized, i.e.
	// without a fresh matrix-vector product per t.
	ProjectToLine(w *core.HashedVector, d []core.Real) error

	// LookupOnLine returns f(w + t*d) for the (w, d) passed to the most
	// recent ProjectToLine call.
	LookupOnLine(t core.Real) core.Real

	// DeclareVectorOnLastLine hints that w equals the position last
	// line-searched (i.e. w's contents are base + t*direction from the last
	// ProjectToLine call), letting the implementation fold that knowledge
	// into its own w-keyed caches without recomputing a matrix product.
	DeclareVectorOnLastLine(w *core.HashedVector, t core.Real)
}

// CheckDimension validates that v has the dimension the objective expects,
// returning a core.InvalidArgument error if not. NumVariables() == -1 means
// any dimension is accepted.
func CheckDimension(o Objective, name string, n int) error {
	expect := o.NumVariables()
	if expect >= 0 && int64(n) != expect {
		return core.Errorf(core.InvalidArgument, "%s has dimension %d, expected %d", name, n, expect)
	}
	return nil
}
