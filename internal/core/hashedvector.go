package core

import "sync/atomic"

// VectorHash identifies a particular "version" of a HashedVector's contents.
// Two HashedVectors constructed independently always get different hashes,
// and any mutating access to a HashedVector produces a fresh hash before the
// mutation becomes observable. InvalidHash compares equal to no real hash.
type VectorHash uint64

// InvalidHash is the distinguished value no real hash ever takes.
const InvalidHash VectorHash = 0

var globalHashCounter atomic.Uint64

func nextHash() VectorHash {
	// Counter starts at 1 so that the zero value of VectorHash stays reserved
	// for InvalidHash.
	return VectorHash(globalHashCounter.Add(1))
}

// HashedVector owns a dense Real vector together with a VectorHash that
// changes on every mutating access. It is the cache key used throughout the
// core (objectives, line search, Xᵀw caches) to avoid both value-based vector
// comparison and the bookkeeping overhead of manual dirty flags.
//
// A HashedVector is not safe for concurrent use; each worker thread owns its
// own.
type HashedVector struct {
	data []Real
	hash VectorHash
}

// NewHashedVector creates a HashedVector taking ownership of v. Its hash is
// immediately unique and distinct from every other HashedVector's.
func NewHashedVector(v []Real) *HashedVector {
	return &HashedVector{data: v, hash: nextHash()}
}

// NewZeroHashedVector creates a HashedVector of n zeros.
func NewZeroHashedVector(n int) *HashedVector {
	return NewHashedVector(make([]Real, n))
}

// Hash returns the current version identifier. It is stable across any
// number of calls to Data (pure reads).
func (v *HashedVector) Hash() VectorHash {
	return v.hash
}

// Len returns the vector's dimension.
func (v *HashedVector) Len() int {
	return len(v.data)
}

// Data returns read-only access to the underlying vector. Callers must not
// mutate the returned slice; use MutableData or Assign for that.
func (v *HashedVector) Data() []Real {
	return v.data
}

// MutableData bumps the hash and returns a slice the caller may write
// through. The new hash is visible to any future Hash() call immediately,
// i.e. before the caller has actually written anything -- this matches the
// contract that any write *path* advances the hash before the write becomes
// observable, since no other goroutine can see data written through this
// slice until the caller is done and some subsequent synchronization point
// is reached.
func (v *HashedVector) MutableData() []Real {
	v.hash = nextHash()
	return v.data
}

// Assign bumps the hash and overwrites the vector's contents with src.
// len(src) must equal v.Len().
func (v *HashedVector) Assign(src []Real) {
	dst := v.MutableData()
	copy(dst, src)
}

// AssignAdd bumps the hash and sets v := base + scale*direction. This is the
// operation the Newton solver uses for its weight update (w <- w + t*d).
func (v *HashedVector) AssignAdd(base []Real, scale Real, direction []Real) {
	dst := v.MutableData()
	for i := range dst {
		dst[i] = base[i] + scale*direction[i]
	}
}

// DeclareHash forcibly sets the hash to an externally known value. This is
// used by Objective.DeclareVectorOnLastLine: the caller already knows the
// result of w + t*d equals a specific HashedVector's target contents (it just
// finished a line search), so it writes the data directly and stamps the
// hash that a subsequent cache lookup keyed on this HashedVector will
// observe -- without forcing a recompute of Xᵀw from scratch.
func (v *HashedVector) DeclareHash(h VectorHash) {
	v.hash = h
}

// NextHash exposes the global hash generator for callers (e.g.
// DeclareVectorOnLastLine) that need to mint a fresh, globally unique hash
// without attaching it to a HashedVector's own mutation path.
func NextHash() VectorHash {
	return nextHash()
}
