package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrLoad matches every *LoadError.
	ErrLoad = errors.New("load failed")
	// ErrInvalidInput matches every *InvalidInputError.
	ErrInvalidInput = errors.New("invalid input")
	// ErrModelSkew matches dimension and model mismatches between query and store.
	ErrModelSkew = errors.New("embedding model skew")
	// ErrProvider matches every *ProviderError.
	ErrProvider = errors.New("embedding provider error")
)

// LoadError reports malformed or inaccessible persisted data.
type LoadError struct {
	Source   string
	Row      int
	RecordID string
	Err      error
}

func (e *LoadError) Error() string {
	msg := "load " + e.Source
	if e.Row > 0 {
		msg += fmt.Sprintf(" row %d", e.Row)
	}
	if e.RecordID != "" {
		msg += fmt.Sprintf(" record %q", e.RecordID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error { return e.Err }

func (e *LoadError) Is(target error) bool { return target == ErrLoad }

// InvalidInputError is returned when no search can be performed for the given input.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string { return "invalid input: " + e.Reason }

func (e *InvalidInputError) Is(target error) bool { return target == ErrInvalidInput }

// DimensionMismatchError indicates a query/store vector length mismatch.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *DimensionMismatchError) Is(target error) bool { return target == ErrModelSkew }

// ModelMismatchError indicates embeddings produced by different models.
type ModelMismatchError struct {
	Expected string
	Actual   string
}

func (e *ModelMismatchError) Error() string {
	return fmt.Sprintf("model mismatch: expected %q, got %q", e.Expected, e.Actual)
}

func (e *ModelMismatchError) Is(target error) bool { return target == ErrModelSkew }

// ProviderError is a failure of the remote embedding capability.
// Transient errors (timeouts, rate limits, 5xx, network) may be retried.
type ProviderError struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
	Transient  bool
	RetryAfter time.Duration
	Err        error
}

func (e *ProviderError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	msg := fmt.Sprintf("%s provider %s error", e.Provider, kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" [%d]", e.StatusCode)
	}
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

// IsTransient reports whether err is a retryable provider failure.
func IsTransient(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Transient
}
