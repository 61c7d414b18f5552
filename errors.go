package tally

import (
	"errors"
	"fmt"

	"github.com/xraph/tally/policy"
	"github.com/xraph/tally/tier"
	"github.com/xraph/tally/usage"
)

// Sentinel errors for common failure scenarios.
var (
	// Re-exported from the packages that produce them.
	ErrUnknownFeature = policy.ErrUnknownFeature
	ErrUnknownTier    = tier.ErrUnknownTier
	ErrPersistence    = usage.ErrPersistence
	ErrInvalidPolicy  = policy.ErrInvalidPolicy

	ErrInvalidThreshold = errors.New("tally: approaching threshold must be in (0, 1]")
	ErrInvalidInput     = errors.New("tally: invalid input")
	ErrStoreClosed      = errors.New("tally: store is closed")
)

// ValidationError represents a configuration validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("tally: validation failed for %s: %s", e.Field, e.Message)
}

// Is makes errors.Is(err, ErrInvalidInput) succeed.
func (e ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "tally: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("tally: %d errors occurred", len(e.Errors))
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ErrOrNil returns e when it holds errors, nil otherwise.
func (e MultiError) ErrOrNil() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

// IsUnknownFeature reports whether err names a feature the policy lacks.
func IsUnknownFeature(err error) bool {
	return errors.Is(err, ErrUnknownFeature)
}

// IsPersistence reports whether err is a store read or write failure.
func IsPersistence(err error) bool {
	return errors.Is(err, ErrPersistence)
}

// IsRetryable returns true if the error is temporary and the operation can
// be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPersistence) && !errors.Is(err, ErrStoreClosed)
}
