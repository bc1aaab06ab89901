package utils

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Message: "must be positive"}
	assert.Equal(t, "must be positive", err.Error())

	err.Field = "simulation.steps"
	assert.Equal(t, "simulation.steps: must be positive", err.Error())
}

func TestNewValidationErrorf(t *testing.T) {
	err := NewValidationErrorf("num_sims must be at least %d, got %d", 1, 0)
	assert.Equal(t, "num_sims must be at least 1, got 0", err.Error())

	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Empty(t, validationErr.Field)
}

func TestNewFieldError_Wrapped(t *testing.T) {
	err := fmt.Errorf("load history: %w", NewFieldError("close", "row %d is not a number", 3))
	assert.Equal(t, "load history: close: row 3 is not a number", err.Error())

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "close", validationErr.Field)
	assert.Equal(t, "row 3 is not a number", validationErr.Message)

	assert.Equal(t, "plain", NewValidationError("plain").Error())
}
