package vigil

import (
	"errors"
	"fmt"
)

// Common sentinel errors for the vigil package.
var (
	// ErrInvalidInput is returned for non-finite values, missing required
	// fields, or shape mismatches. Detector state is unchanged.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInsufficientData is returned by operations that need more samples
	// than are currently buffered.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrInvalidConfig is returned at construction for unrecoverable
	// configuration such as an unknown mode enum.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrClosed is returned when operations are attempted on a closed
	// collector, engine, or store.
	ErrClosed = errors.New("closed")

	// ErrExportFailed wraps I/O failures during dataset export or upload.
	// The in-memory buffer is kept intact for retry.
	ErrExportFailed = errors.New("export failed")

	// ErrStateCodec is returned when persisted state cannot be encoded
	// or decoded.
	ErrStateCodec = errors.New("state codec failure")
)

// ValidationError describes rejected input. The offending sample did not
// alter detector state.
type ValidationError struct {
	Detector string
	Reason   string
	Value    float64
}

func (e *ValidationError) Error() string {
	if e.Detector != "" {
		return fmt.Sprintf("%s: %s (value=%g)", e.Detector, e.Reason, e.Value)
	}
	return fmt.Sprintf("%s (value=%g)", e.Reason, e.Value)
}

// Is implements error matching for ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// newValidationError creates a ValidationError for a detector.
func newValidationError(detector, reason string, value float64) *ValidationError {
	return &ValidationError{Detector: detector, Reason: reason, Value: value}
}

// ExportError describes a failed export or upload. Key identifies the
// destination object when known.
type ExportError struct {
	Op    string
	Key   string
	Cause error
}

func (e *ExportError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s [%s]: %v", e.Op, e.Key, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Cause)
}

func (e *ExportError) Unwrap() error {
	return e.Cause
}

// Is implements error matching for ExportError.
func (e *ExportError) Is(target error) bool {
	return target == ErrExportFailed
}

// newExportError creates an ExportError.
func newExportError(op, key string, cause error) *ExportError {
	return &ExportError{Op: op, Key: key, Cause: cause}
}

// ConfigError reports an invalid configuration field at construction.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config field %q: %s", e.Field, e.Reason)
}

// Is implements error matching for ConfigError.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// newConfigError creates a ConfigError.
func newConfigError(field, reason string) *ConfigError {
	return &ConfigError{Field: field, Reason: reason}
}
