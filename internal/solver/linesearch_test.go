package solver

import (
	"testing"

	"github.com/dismec-go/dismec/internal/core"
	"github.com/dismec-go/dismec/internal/params"
	"github.com/stretchr/testify/assert"
)

func TestLineSearchAccepts(t *testing.T) {
	ls := NewLineSearch()
	// g(t) = (t-1)^2, minimized at t=1, g(0)=1, g'(0) = -2.
	lookup := func(t core.Real) core.Real { return (t - 1) * (t - 1) }
	res := ls.Search(lookup, 1, -2)
	assert.Greater(t, res.Step, core.Real(0))
	assert.LessOrEqual(t, res.Value, core.Real(1))
}

func TestLineSearchExhausts(t *testing.T) {
	ls := NewLineSearch()
	ls.MaxSteps = 3
	// g is flat: no decrease is ever achieved relative to the (very steep)
	// claimed directional derivative, so every trial step is rejected.
	lookup := func(t core.Real) core.Real { return 5 }
	res := ls.Search(lookup, 5, -1000)
	assert.Equal(t, core.Real(0), res.Step)
	assert.Equal(t, core.Real(5), res.Value)
}

func TestLineSearchConstructionValidation(t *testing.T) {
	ls := NewLineSearch()
	b := params.FromConfigString("rho=1.5")
	err := ls.Apply(b)
	assert.Error(t, err)
}
