package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashedVectorStableOnPureReads(t *testing.T) {
	v := NewHashedVector([]Real{1, 2, 3})
	h1 := v.Hash()
	_ = v.Data()
	_ = v.Data()
	h2 := v.Hash()
	assert.Equal(t, h1, h2)
}

func TestHashedVectorChangesOnMutation(t *testing.T) {
	v := NewHashedVector([]Real{1, 2, 3})
	h1 := v.Hash()
	v.MutableData()[0] = 5
	h2 := v.Hash()
	assert.NotEqual(t, h1, h2)

	h2 = v.Hash()
	v.Assign([]Real{0, 0, 0})
	h3 := v.Hash()
	assert.NotEqual(t, h2, h3)
}

func TestHashedVectorsNeverShareHash(t *testing.T) {
	seen := make(map[VectorHash]bool)
	for i := 0; i < 1000; i++ {
		v := NewHashedVector([]Real{Real(i)})
		assert.False(t, seen[v.Hash()])
		seen[v.Hash()] = true
	}
}

func TestInvalidHashNeverProduced(t *testing.T) {
	for i := 0; i < 1000; i++ {
		v := NewHashedVector(nil)
		assert.NotEqual(t, InvalidHash, v.Hash())
	}
}
