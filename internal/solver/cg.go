// Package solver implements the numerical core of the per-label training
// pipeline: preconditioned CG, Armijo backtracking line search
//, and the Newton loop that drives them.
package solver

import (
	"math"

	"github.com/dismec-go/dismec/internal/core"
	"github.com/dismec-go/dismec/internal/params"
)

// MatVec is the matrix-vector-product closure CG solves against: it must
// write A*d into out, for A assumed symmetric positive semidefinite.
type MatVec func(d, out []core.Real)

// CGSolver is preconditioned CG solving A*x + b = 0, stopping on the
// quadratic-approximation progress rule.
type CGSolver struct {
	// Epsilon in (0,1), default 0.5.
	Epsilon core.Real

	// scratch buffers reused across Solve calls on the same thread.
	r, z, d, ad, x []core.Real
}

// NewCGSolver builds a CGSolver with the default Epsilon.
func NewCGSolver() *CGSolver {
	return &CGSolver{Epsilon: 0.5}
}

// Params exposes the solver's tunable scalars under the "cg." prefix (spec
// §9 "Hyperparameter plumbing").
func (c *CGSolver) Params() *params.Bag {
	b := params.New()
	b.SetReal("epsilon", float64(c.Epsilon))
	return b
}

// Apply validates and sets Epsilon from a HyperParameters bag (keys are not
// prefixed here; the caller applies the "cg." sub-bag).
func (c *CGSolver) Apply(b *params.Bag) error {
	eps, err := b.PopRealOr("epsilon", float64(c.Epsilon))
	if err != nil {
		return err
	}
	if eps <= 0 || eps >= 1 {
		return core.Errorf(core.InvalidArgument, "cg.epsilon must be in (0,1), got %v", eps)
	}
	c.Epsilon = core.Real(eps)
	return nil
}

func (c *CGSolver) ensureScratch(n int) {
	if len(c.x) == n {
		return
	}
	c.r = make([]core.Real, n)
	c.z = make([]core.Real, n)
	c.d = make([]core.Real, n)
	c.ad = make([]core.Real, n)
	c.x = make([]core.Real, n)
}

// Solve finds x with A*x + b ~= 0 given mv(d) = A*d and a componentwise
// positive diagonal preconditioner m. x is written into out (len(out) ==
// len(b) == len(m)) and also returned for convenience. In the Newton loop,
// b is the objective's gradient g, so the adaptive stopping tolerance
// tol = min(epsilon, sqrt(||g||_{M^-1})) is computed from b
// directly.
func (c *CGSolver) Solve(mv MatVec, b, m []core.Real, out []core.Real) []core.Real {
	n := len(b)
	c.ensureScratch(n)
	x := c.x
	for i := range x {
		x[i] = 0
	}
	// r = b - A*x = b (x starts at 0); CG here solves A*x = -b, i.e. we track
	// the residual of A*x + b = 0 directly: r := -(A*x + b) = -b initially.
	r := c.r
	for i := range r {
		r[i] = -b[i]
	}
	z := c.z
	for i := range z {
		z[i] = r[i] / m[i]
	}
	d := c.d
	copy(d, z)

	var mInvGradNormSq float64
	for i := range b {
		mInvGradNormSq += float64(b[i]) * float64(b[i]) / float64(m[i])
	}
	tol := math.Min(float64(c.Epsilon), math.Sqrt(math.Sqrt(mInvGradNormSq)))

	maxIter := n
	if maxIter < 10 {
		maxIter = 10
	}

	rz := dot(r, z)
	var prevQ float64
	haveQ := false

	ad := c.ad
	for k := 1; k <= maxIter; k++ {
		mv(d, ad)
		dAd := dot(d, ad)
		if dAd < 1e-16 {
			// direction degenerate: accept current x.
			break
		}
		alpha := core.Real(rz / float64(dAd))
		for i := range x {
			x[i] += alpha * d[i]
			r[i] -= alpha * ad[i]
		}

		// Q_k = -1/2 * x . (r - b) where r is the current residual of Ax+b=0
		// and b is the CG right-hand side.
		var xrb float64
		for i := range x {
			xrb += float64(x[i]) * (float64(r[i]) - float64(b[i]))
		}
		q := -0.5 * xrb

		if haveQ {
			delta := q - prevQ
			if q <= 0 && delta <= 0 && float64(k)*delta >= tol*q {
				prevQ = q
				copy(out, x)
				return out
			}
		}
		prevQ = q
		haveQ = true

		for i := range z {
			z[i] = r[i] / m[i]
		}
		rzNew := dot(r, z)
		beta := core.Real(rzNew / rz)
		rz = rzNew
		for i := range d {
			d[i] = z[i] + beta*d[i]
		}
	}
	copy(out, x)
	return out
}

func dot(a, b []core.Real) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
