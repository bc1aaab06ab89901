package simulator

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is returned for unusable simulator or call parameters.
	ErrInvalidConfig = errors.New("invalid simulator configuration")
	// ErrEffectOverlap is returned when an additional effect shares its name
	// with the target site, the target column or an inherited column.
	ErrEffectOverlap = errors.New("additional effect overlaps another column")
	// ErrNonFinite is returned when the model produces NaN or an infinity,
	// or an effect that cannot be represented as an integer.
	ErrNonFinite = errors.New("non-finite model output")
)

// InitialStep marks a StepError raised before the first simulated step.
const InitialStep = -1

// StepError locates a failure inside one trajectory.
type StepError struct {
	RunID int
	Step  int
	Err   error
}

func (e *StepError) Error() string {
	if e.Step == InitialStep {
		return fmt.Sprintf("run %d: initial features: %v", e.RunID, e.Err)
	}
	return fmt.Sprintf("run %d step %d: %v", e.RunID, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
