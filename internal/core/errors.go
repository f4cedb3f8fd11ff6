package core

import (
	"fmt"

	"github.com/pkg/errors"
)

// The four error kinds callers test for with errors.Is;
// context is added with errors.Wrap/Wrapf as usual, which preserves the
// Unwrap chain down to one of these sentinels.
var (
	// InvalidArgument: out-of-range hyperparameter, dimension mismatch, label
	// id outside the valid range, overlapping label ranges on save, unknown
	// hyperparameter name.
	InvalidArgument = errors.New("invalid argument")

	// NumericFailure: non-finite value/gradient, exhausted line search,
	// stalled Newton step, degenerate CG direction.
	NumericFailure = errors.New("numeric failure")

	// IOError: cannot open metadata/weight file, metadata parse failure,
	// on-disk dimension mismatch.
	IOError = errors.New("io error")

	// ConsistencyError: overlapping/incomplete label ranges, weight file
	// content disagreeing with its metadata header.
	ConsistencyError = errors.New("consistency error")
)

// kindError pairs a message with one of the sentinel kinds above, so that
// errors.Is(err, core.InvalidArgument) keeps working after any number of
// errors.Wrap calls on top.
type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

// Errorf builds a new error of the given kind with a formatted message.
func Errorf(kind error, format string, args ...any) error {
	return &kindError{kind: kind, msg: fmt.Sprintf(format, args...)}
}
