package objective

import (
	"math"

	"github.com/dismec-go/dismec/internal/core"
)

// pointwise is the per-coordinate r/grad/q triple used by the regularizer
// hierarchy: R(w) = strength * sum_{j in J} r(w_j), J excluding
// the last coordinate when ignoreBias is set.
type pointwise interface {
	r(w core.Real) core.Real
	grad(w core.Real) core.Real
	quad(w core.Real) core.Real
}

// squaredPoint is the "‖·‖²/2" regularizer: r(w) = w²/2, so that
// grad(w) = w and quad(w) = 1 are genuinely r's first/second derivative.
type squaredPoint struct{}

func (squaredPoint) r(w core.Real) core.Real    { return w * w / 2 }
func (squaredPoint) grad(w core.Real) core.Real { return w }
func (squaredPoint) quad(core.Real) core.Real   { return 1 }

type huberPoint struct{ epsilon core.Real }

func (h huberPoint) r(w core.Real) core.Real {
	a := core.Real(math.Abs(float64(w)))
	if a <= h.epsilon {
		return w * w / (2 * h.epsilon)
	}
	return a - h.epsilon/2
}

func (h huberPoint) grad(w core.Real) core.Real {
	if core.Real(math.Abs(float64(w))) <= h.epsilon {
		return w / h.epsilon
	}
	if w > 0 {
		return 1
	}
	return -1
}

func (h huberPoint) quad(w core.Real) core.Real {
	a := core.Real(math.Abs(float64(w)))
	if a <= h.epsilon {
		return 1 / (2 * h.epsilon)
	}
	return 1 / a
}

type elasticPoint struct {
	squared squaredPoint
	huber   huberPoint
	alpha   core.Real // interpolation: alpha*squared + (1-alpha)*huber
}

func (e elasticPoint) r(w core.Real) core.Real {
	return e.alpha*e.squared.r(w) + (1-e.alpha)*e.huber.r(w)
}
func (e elasticPoint) grad(w core.Real) core.Real {
	return e.alpha*e.squared.grad(w) + (1-e.alpha)*e.huber.grad(w)
}
func (e elasticPoint) quad(w core.Real) core.Real {
	return e.alpha*e.squared.quad(w) + (1-e.alpha)*e.huber.quad(w)
}

// pointwiseRegularizer implements the common Objective-contract plumbing
// shared by Squared, Huber and Elastic: summing a pointwise r/grad/q over
// J = all coordinates, or all but the last when IgnoreBias is set.
type pointwiseRegularizer struct {
	point      pointwise
	strength   core.Real
	ignoreBias bool

	lastHash core.VectorHash
	lineBase []core.Real
	lineDir  []core.Real
}

func (p *pointwiseRegularizer) NumVariables() int64 { return -1 }

func (p *pointwiseRegularizer) activeCount(n int) int {
	if p.ignoreBias && n > 0 {
		return n - 1
	}
	return n
}

func (p *pointwiseRegularizer) Value(w *core.HashedVector) (core.Real, error) {
	data := w.Data()
	n := p.activeCount(len(data))
	var sum float64
	for j := 0; j < n; j++ {
		sum += float64(p.point.r(data[j]))
	}
	return p.strength * core.Real(sum), nil
}

func (p *pointwiseRegularizer) Gradient(w *core.HashedVector, out []core.Real) error {
	data := w.Data()
	n := p.activeCount(len(data))
	for j := range out {
		if j < n {
			out[j] += p.strength * p.point.grad(data[j])
		}
	}
	return nil
}

func (p *pointwiseRegularizer) HessianTimesDirection(w *core.HashedVector, d []core.Real, out []core.Real) error {
	data := w.Data()
	n := p.activeCount(len(data))
	for j := range out {
		if j < n {
			out[j] += p.strength * p.point.quad(data[j]) * d[j]
		}
	}
	return nil
}

func (p *pointwiseRegularizer) DiagPreconditioner(w *core.HashedVector, out []core.Real) error {
	data := w.Data()
	n := p.activeCount(len(data))
	for j := range out {
		if j < n {
			out[j] += p.strength * p.point.quad(data[j])
		}
	}
	return nil
}

func (p *pointwiseRegularizer) GradientAndPreconditioner(w *core.HashedVector, gradOut, precondOut []core.Real) error {
	if err := p.Gradient(w, gradOut); err != nil {
		return err
	}
	return p.DiagPreconditioner(w, precondOut)
}

func (p *pointwiseRegularizer) GradientAtZero(out []core.Real) error {
	n := p.activeCount(len(out))
	for j := 0; j < n; j++ {
		out[j] += p.strength * p.point.grad(0)
	}
	return nil
}

func (p *pointwiseRegularizer) ProjectToLine(w *core.HashedVector, d []core.Real) error {
	p.lineBase = append(p.lineBase[:0], w.Data()...)
	p.lineDir = append(p.lineDir[:0], d...)
	return nil
}

func (p *pointwiseRegularizer) LookupOnLine(t core.Real) core.Real {
	n := p.activeCount(len(p.lineBase))
	var sum float64
	for j := 0; j < n; j++ {
		sum += float64(p.point.r(p.lineBase[j] + t*p.lineDir[j]))
	}
	return p.strength * core.Real(sum)
}

func (p *pointwiseRegularizer) DeclareVectorOnLastLine(w *core.HashedVector, t core.Real) {
	// Pointwise regularizers hold no w-keyed cache beyond the line buffers
	// above, which LookupOnLine already recomputes per call; nothing to do.
}

// Squared is R(w) = strength * sum(w_j^2/2): per coordinate the value is
// w^2/2, the gradient w and the curvature 1.
type Squared struct {
	*pointwiseRegularizer
}

// NewSquared builds the L2 regularizer strength*sum(w_j^2)/2, excluding the
// last coordinate when ignoreBias is set. strength must be >= 0.
func NewSquared(strength core.Real, ignoreBias bool) (*Squared, error) {
	if strength < 0 {
		return nil, core.Errorf(core.InvalidArgument, "regularizer strength %v must be >= 0", strength)
	}
	return &Squared{&pointwiseRegularizer{point: squaredPoint{}, strength: strength, ignoreBias: ignoreBias}}, nil
}

// ProjectToLine/LookupOnLine override the generic pointwise implementation
// with the closed form ‖w+td‖² = ‖w‖² + 2t⟨w,d⟩ + t²‖d‖², valid
// because r is exactly quadratic for Squared.
type squaredLineCache struct {
	w2, wd, d2 core.Real
}

func (s *Squared) ProjectToLine(w *core.HashedVector, d []core.Real) error {
	data := w.Data()
	n := s.activeCount(len(data))
	var w2, wd, d2 float64
	for j := 0; j < n; j++ {
		w2 += float64(data[j]) * float64(data[j])
		wd += float64(data[j]) * float64(d[j])
		d2 += float64(d[j]) * float64(d[j])
	}
	s.lineBase = []core.Real{core.Real(w2), core.Real(wd), core.Real(d2)}
	return nil
}

func (s *Squared) LookupOnLine(t core.Real) core.Real {
	w2, wd, d2 := s.lineBase[0], s.lineBase[1], s.lineBase[2]
	// r(w)=w²/2, so R(w+td) = strength/2 * ||w+td||² = strength/2 * (w2 + 2t·wd + t²d2).
	return s.strength * 0.5 * (w2 + 2*t*wd + t*t*d2)
}

// Huber is R(w) = strength*sum(huber_epsilon(w_j)), linear tails / quadratic
// center with crossover at +-epsilon.
type Huber struct {
	*pointwiseRegularizer
}

// NewHuber builds the Huber regularizer. strength must be >= 0, epsilon > 0.
func NewHuber(strength, epsilon core.Real, ignoreBias bool) (*Huber, error) {
	if strength < 0 {
		return nil, core.Errorf(core.InvalidArgument, "regularizer strength %v must be >= 0", strength)
	}
	if epsilon <= 0 {
		return nil, core.Errorf(core.InvalidArgument, "regularizer epsilon %v must be > 0", epsilon)
	}
	return &Huber{&pointwiseRegularizer{point: huberPoint{epsilon: epsilon}, strength: strength, ignoreBias: ignoreBias}}, nil
}

// Elastic is R(w) = strength*sum(alpha*w_j^2/2 + (1-alpha)*huber_epsilon(w_j)).
type Elastic struct {
	*pointwiseRegularizer
}

// NewElastic builds the elastic-net regularizer. strength must be >= 0,
// epsilon > 0, interpolation (alpha) in [0,1].
func NewElastic(strength, epsilon, interpolation core.Real, ignoreBias bool) (*Elastic, error) {
	if strength < 0 {
		return nil, core.Errorf(core.InvalidArgument, "regularizer strength %v must be >= 0", strength)
	}
	if epsilon <= 0 {
		return nil, core.Errorf(core.InvalidArgument, "regularizer epsilon %v must be > 0", epsilon)
	}
	if interpolation < 0 || interpolation > 1 {
		return nil, core.Errorf(core.InvalidArgument, "regularizer interpolation %v must be in [0,1]", interpolation)
	}
	point := elasticPoint{huber: huberPoint{epsilon: epsilon}, alpha: interpolation}
	return &Elastic{&pointwiseRegularizer{point: point, strength: strength, ignoreBias: ignoreBias}}, nil
}

var (
	_ Objective = (*Squared)(nil)
	_ Objective = (*Huber)(nil)
	_ Objective = (*Elastic)(nil)
)
