package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is matched by every ConfigurationError. A round that fails
	// with it cannot start.
	ErrConfiguration = errors.New("configuration error")

	// ErrResourceExhausted is returned when the compute device is unavailable or a
	// capacity limit is reached. Callers fall back to CPU-only generation.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrDeadlineMiss is reported when the budget ran out before any candidate was
	// found. A trivial bid is still sent.
	ErrDeadlineMiss = errors.New("no candidate found before deadline")

	ErrIndexOutOfDomain = errors.New("index out of round domain")
	ErrDuplicateIndex   = errors.New("duplicate index in candidate")
	ErrEmptyCandidate   = errors.New("empty candidate")
)

// ConfigurationError describes a round or engine parameter that is missing or
// out of range.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (err ConfigurationError) Error() string {
	return fmt.Sprintf("invalid `%v`; %v", err.Field, err.Reason)
}

func (err ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// ResourceError records which resource ran out and why.
type ResourceError struct {
	Resource string
	Err      error
}

func (err ResourceError) Error() string {
	return fmt.Sprintf("%v unavailable: %v", err.Resource, err.Err)
}

func (err ResourceError) Unwrap() error {
	return err.Err
}

func (err ResourceError) Is(target error) bool {
	return target == ErrResourceExhausted
}
