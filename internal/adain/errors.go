package adain

import (
	"errors"
	"fmt"
)

// Sentinel errors. Match them with errors.Is.
var (
	// ErrConfiguration is matched by every *ConfigurationError.
	ErrConfiguration = errors.New("adain: invalid configuration")

	// ErrShapeMismatch reports tensors whose shapes cannot be combined.
	ErrShapeMismatch = errors.New("adain: shape mismatch")

	// ErrInvalidAlpha reports a blend factor outside [0, 1].
	ErrInvalidAlpha = errors.New("adain: alpha must be in [0, 1]")

	// ErrNumericDegeneracy reports NaN or Inf produced by a transform or loss.
	ErrNumericDegeneracy = errors.New("adain: non-finite values")

	// ErrTrainingFailure is matched by every *TrainingFailure.
	ErrTrainingFailure = errors.New("adain: training failed")
)

// ConfigurationError reports a setting that is invalid against the
// extractor topology or the rest of the configuration. It is detected at
// construction time and never retried.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error // Optional more specific sentinel, e.g. ErrInvalidAlpha
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("adain: invalid %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("adain: invalid %s: %s", e.Field, e.Reason)
}

// Is reports whether target is ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// Unwrap returns the specific sentinel, if any.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func configErr(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// TrainingFailure aborts a training run. Epoch and Batch locate the failing
// step; Batch is -1 for failures outside the batch loop.
type TrainingFailure struct {
	Epoch int
	Batch int
	Err   error
}

func (e *TrainingFailure) Error() string {
	return fmt.Sprintf("adain: training failed at epoch %d batch %d: %v", e.Epoch, e.Batch, e.Err)
}

// Is reports whether target is ErrTrainingFailure.
func (e *TrainingFailure) Is(target error) bool {
	return target == ErrTrainingFailure
}

// Unwrap returns the cause.
func (e *TrainingFailure) Unwrap() error {
	return e.Err
}
