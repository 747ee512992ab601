// Package errors defines the sentinel errors shared by the indexing and query
// paths and maps them onto HTTP status codes for the search API.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrCorpusRead marks a failure to iterate the corpus. Fatal for a build.
	ErrCorpusRead = errors.New("corpus read failed")
	// ErrIndexWrite marks a vector index write that exhausted its retries.
	ErrIndexWrite = errors.New("vector index write failed")
	// ErrIndexRead marks a vector index read (retrieve or query) failure.
	ErrIndexRead = errors.New("vector index read failed")
	// ErrModelStore marks a failure to publish or load the vocabulary/IDF model.
	ErrModelStore = errors.New("model store unavailable")
	// ErrModelMismatch marks a persisted model that does not match the live index.
	ErrModelMismatch     = errors.New("model does not match vector index")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrEmptyCorpus       = errors.New("corpus produced an empty vocabulary")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInternal          = errors.New("internal error")
	ErrTimeout           = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// Wrap annotates err with a sentinel so callers can match on the kind with
// errors.Is while keeping the original cause in the chain.
func Wrap(sentinel error, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrModelMismatch), errors.Is(err, ErrDimensionMismatch):
		return http.StatusConflict
	case errors.Is(err, ErrModelStore), errors.Is(err, ErrIndexRead), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
