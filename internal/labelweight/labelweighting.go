// Package labelweight implements the LabelWeighting contract:
// a function from LabelId to a per-label (positive, negative) instance-cost
// pair applied uniformly to every positive/negative instance of that label.
package labelweight

import (
	"math"

	"github.com/dismec-go/dismec/internal/core"
)

// Weighting maps a label to its (positive, negative) instance weight.
type Weighting interface {
	// Weights returns (c+, c-) for label k, given nPos positives and n
	// total training instances (both needed by the Propensity variants).
	Weights(k core.LabelID, nPos, n int64) (positive, negative core.Real)
}

// Constant returns the fixed pair (A, B) for every label.
type Constant struct {
	A, B core.Real
}

func (c Constant) Weights(core.LabelID, int64, int64) (core.Real, core.Real) {
	return c.A, c.B
}

// Propensity implements propensity-scored weighting:
// p_k = 1 / (1 + C*exp(-a*log(n+_k + b))), C = (log N - 1)*(b+1)^a,
// returning (2/p_k - 1, 1). A and B are kept in float64, and the whole
// computation runs in float64, since this formula's exponential/log terms
// are numerically sensitive enough that float32 throughout fails to
// reproduce the reference propensity value to the precision the test
// oracle expects.
type Propensity struct {
	A, B float64
}

// propensityScore computes p_k for label k with n+_k positives out of n
// total instances, entirely in float64.
func propensityScore(a, b float64, nPos, n int64) float64 {
	logN := math.Log(float64(n))
	c := (logN - 1) * math.Pow(b+1, a)
	return 1 / (1 + c*math.Exp(-a*math.Log(float64(nPos)+b)))
}

func (p Propensity) Weights(_ core.LabelID, nPos, n int64) (core.Real, core.Real) {
	score := propensityScore(p.A, p.B, nPos, n)
	return core.Real(2/score - 1), 1
}

// Score exposes the raw propensity p_k, used directly by PropensityDownweight
// and by tests that check scenario E4.
func (p Propensity) Score(nPos, n int64) float64 {
	return propensityScore(p.A, p.B, nPos, n)
}

// PropensityDownweight implements variant that downweights
// negatives instead of upweighting positives: (1, p_k/(2-p_k)).
type PropensityDownweight struct {
	A, B float64
}

func (p PropensityDownweight) Weights(_ core.LabelID, nPos, n int64) (core.Real, core.Real) {
	score := propensityScore(p.A, p.B, nPos, n)
	return 1, core.Real(score / (2 - score))
}

// Custom reads explicit per-label weights from two parallel slices indexed
// by LabelID.
type Custom struct {
	VPos, VNeg []core.Real
}

func (c Custom) Weights(k core.LabelID, _, _ int64) (core.Real, core.Real) {
	return c.VPos[k], c.VNeg[k]
}

// CostVector builds the per-instance cost vector for label k (the
// CostVector) given the dense +-1 label column: positives get c+, negatives
// get c-.
func CostVector(w Weighting, k core.LabelID, labelColumn []core.Real, totalInstances int64) []core.Real {
	var nPos int64
	for _, y := range labelColumn {
		if y > 0 {
			nPos++
		}
	}
	cPos, cNeg := w.Weights(k, nPos, totalInstances)
	out := make([]core.Real, len(labelColumn))
	for i, y := range labelColumn {
		if y > 0 {
			out[i] = cPos
		} else {
			out[i] = cNeg
		}
	}
	return out
}
