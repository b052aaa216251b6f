package corpus

import (
	"errors"
	"fmt"
)

// Engine error taxonomy. Wrap them with the constructors below and test with
// errors.Is.
var (
	// ErrEncodingFailure: the encoder backend is unreachable, timed out or
	// returned malformed output. Retryable.
	ErrEncodingFailure = errors.New("encoding failure")

	// ErrInsufficientData: fewer eligible documents than the algorithm needs.
	// Fatal to the run, never retried automatically.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrDimensionMismatch: no stored vectors exist for the requested encoder
	// and no fallback encoder has any either.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrConcurrentRunConflict: a run of the same family is already in progress.
	// Rejected immediately; the caller may retry later.
	ErrConcurrentRunConflict = errors.New("concurrent run conflict")

	// ErrGenerationUnavailable: the external language model is down. Retrieval
	// results are still returned.
	ErrGenerationUnavailable = errors.New("generation unavailable")

	// ErrDocumentNotFound: no document with the given id.
	ErrDocumentNotFound = errors.New("document not found")
)

// EngineError attaches an operation name and a cause to a taxonomy kind.
type EngineError struct {
	Kind error
	Op   string
	Err  error
}

func (e *EngineError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *EngineError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, op string, err error) error {
	return &EngineError{Kind: kind, Op: op, Err: err}
}

// EncodingFailure wraps err as ErrEncodingFailure.
func EncodingFailure(op string, err error) error { return newError(ErrEncodingFailure, op, err) }

// InsufficientData wraps err as ErrInsufficientData.
func InsufficientData(op string, err error) error { return newError(ErrInsufficientData, op, err) }

// DimensionMismatch wraps err as ErrDimensionMismatch.
func DimensionMismatch(op string, err error) error { return newError(ErrDimensionMismatch, op, err) }

// ConcurrentRunConflict wraps err as ErrConcurrentRunConflict.
func ConcurrentRunConflict(op string, err error) error {
	return newError(ErrConcurrentRunConflict, op, err)
}

// GenerationUnavailable wraps err as ErrGenerationUnavailable.
func GenerationUnavailable(op string, err error) error {
	return newError(ErrGenerationUnavailable, op, err)
}

// IsRetryable reports whether retrying the same operation later can succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrEncodingFailure) ||
		errors.Is(err, ErrConcurrentRunConflict) ||
		errors.Is(err, ErrGenerationUnavailable)
}
