package labelweight

import (
	"testing"

	"github.com/dismec-go/dismec/internal/core"
	"github.com/stretchr/testify/assert"
)

// TestPropensityReferenceValue is spec testable property #9 / scenario E4:
// for a=0.55, b=1.5, N=50, n+=1, p = 0.25562221863533147 +- 1e-12 and
// c+ = 2/p - 1.
func TestPropensityReferenceValue(t *testing.T) {
	p := Propensity{A: 0.55, B: 1.5}
	score := p.Score(1, 50)
	assert.InDelta(t, 0.25562221863533147, score, 1e-12)

	cPos, cNeg := p.Weights(0, 1, 50)
	assert.InDelta(t, 2/score-1, float64(cPos), 1e-4)
	assert.Equal(t, core.Real(1), cNeg)
}

func TestPropensityDownweight(t *testing.T) {
	p := PropensityDownweight{A: 0.55, B: 1.5}
	cPos, cNeg := p.Weights(0, 1, 50)
	assert.Equal(t, core.Real(1), cPos)
	score := Propensity{A: 0.55, B: 1.5}.Score(1, 50)
	assert.InDelta(t, score/(2-score), float64(cNeg), 1e-4)
}

func TestCostVectorAssignsPerInstance(t *testing.T) {
	w := Constant{A: 3, B: 0.5}
	labels := []core.Real{1, -1, 1, -1}
	cost := CostVector(w, 0, labels, int64(len(labels)))
	assert.Equal(t, []core.Real{3, 0.5, 3, 0.5}, cost)
}

func TestCustomWeighting(t *testing.T) {
	c := Custom{VPos: []core.Real{1, 2, 3}, VNeg: []core.Real{0.1, 0.2, 0.3}}
	pos, neg := c.Weights(1, 0, 0)
	assert.Equal(t, core.Real(2), pos)
	assert.Equal(t, core.Real(0.2), neg)
}
