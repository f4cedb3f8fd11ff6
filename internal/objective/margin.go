package objective

import (
	"github.com/chewxy/math32"
	"github.com/dismec-go/dismec/internal/core"
)

// MarginFunction is a scalar function of the margin m = y*(xᵀw):
// Value is the per-instance loss, Grad its first derivative, and Quad a
// "curvature surrogate" used in place of the true second derivative where
// that is zero or undefined (e.g. at the hinge's kink).
type MarginFunction interface {
	Value(m core.Real) core.Real
	Grad(m core.Real) core.Real
	Quad(m core.Real) core.Real
	Name() string
}

// SquaredHinge implements phi(m) = max(0, 1-m)^2.
type SquaredHinge struct{}

func (SquaredHinge) Name() string { return "squared-hinge" }

func (SquaredHinge) Value(m core.Real) core.Real {
	d := 1 - m
	if d <= 0 {
		return 0
	}
	return d * d
}

func (SquaredHinge) Grad(m core.Real) core.Real {
	d := 1 - m
	if d <= 0 {
		return 0
	}
	return -2 * d
}

func (SquaredHinge) Quad(m core.Real) core.Real {
	if m < 1 {
		return 2
	}
	return 0
}

// Logistic implements phi(m) = log(1+exp(-m)), with an overflow guard that
// returns -m directly once exp(-m) would overflow.
type Logistic struct{}

func (Logistic) Name() string { return "logistic" }

func (Logistic) Value(m core.Real) core.Real {
	if -m > 80 {
		// exp(-m) would overflow float32; log(1+exp(-m)) ~= -m in this regime.
		return -m
	}
	return math32.Log1p(math32.Exp(-m))
}

func (Logistic) Grad(m core.Real) core.Real {
	return -1 / (1 + math32.Exp(m))
}

func (Logistic) Quad(m core.Real) core.Real {
	e := math32.Exp(m)
	denom := 1 + e
	return e / (denom * denom)
}

// HuberHinge implements a Huber-smoothed hinge with transition width epsilon:
// linear for m < 1-epsilon, quadratic on [1-epsilon, 1], zero for m > 1.
type HuberHinge struct {
	Epsilon core.Real
}

func (h HuberHinge) Name() string { return "huber-hinge" }

func (h HuberHinge) Value(m core.Real) core.Real {
	switch {
	case m > 1:
		return 0
	case m < 1-h.Epsilon:
		return 1 - h.Epsilon/2 - m
	default:
		d := 1 - m
		return d * d / (2 * h.Epsilon)
	}
}

func (h HuberHinge) Grad(m core.Real) core.Real {
	switch {
	case m > 1:
		return 0
	case m < 1-h.Epsilon:
		return -1
	default:
		return -(1 - m) / h.Epsilon
	}
}

func (h HuberHinge) Quad(m core.Real) core.Real {
	switch {
	case m > 1:
		return 0
	case m < 1-h.Epsilon:
		d := 1 - m
		if d == 0 {
			return 1 / h.Epsilon
		}
		return 1 / d
	default:
		return 1 / h.Epsilon
	}
}
