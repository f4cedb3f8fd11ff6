package params

import (
	"testing"

	"github.com/dismec-go/dismec/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromConfigStringAndPop(t *testing.T) {
	b := FromConfigString("threads=4,epsilon=0.01,verbose")
	threads, err := b.PopIntOr("threads", 1)
	require.NoError(t, err)
	assert.EqualValues(t, 4, threads)

	eps, err := b.PopRealOr("epsilon", 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 0.01, eps, 1e-9)

	verbose, err := b.PopBoolOr("verbose", false)
	require.NoError(t, err)
	assert.True(t, verbose)

	assert.NoError(t, b.ValidateEmpty())
}

func TestTypeMismatchIsInvalidArgument(t *testing.T) {
	b := FromConfigString("epsilon=not-a-number")
	_, err := b.PopRealOr("epsilon", 0.5)
	assert.ErrorIs(t, err, core.InvalidArgument)
}

func TestUnknownKeyReported(t *testing.T) {
	b := FromConfigString("epsilon=0.1,mystery=1")
	_, err := b.PopRealOr("epsilon", 0)
	require.NoError(t, err)
	err = b.ValidateEmpty()
	assert.ErrorIs(t, err, core.InvalidArgument)
}

func TestNestedPrefixing(t *testing.T) {
	b := FromConfigString("epsilon=0.02,cg.epsilon=0.3,search.rho=0.7")
	cgBag := b.Sub("cg")
	eps, err := cgBag.PopRealOr("epsilon", 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, eps, 1e-9)
	b.Merge("cg", cgBag)

	searchBag := b.Sub("search")
	rho, err := searchBag.PopRealOr("rho", 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, rho, 1e-9)
	b.Merge("search", searchBag)

	_, err = b.PopRealOr("epsilon", 0)
	require.NoError(t, err)
	assert.NoError(t, b.ValidateEmpty())
}
