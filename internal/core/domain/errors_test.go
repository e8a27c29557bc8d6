package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrors_Existence(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrModelUnavailable", ErrModelUnavailable},
		{"ErrEncodeFailed", ErrEncodeFailed},
		{"ErrDimensionMismatch", ErrDimensionMismatch},
		{"ErrCollectionNotFound", ErrCollectionNotFound},
		{"ErrNotFound", ErrNotFound},
		{"ErrInvalidPredicate", ErrInvalidPredicate},
		{"ErrCorruptIndex", ErrCorruptIndex},
		{"ErrTaskNotFound", ErrTaskNotFound},
		{"ErrCancelled", ErrCancelled},
		{"ErrAlreadyExists", ErrAlreadyExists},
		{"ErrInvalidInput", ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, tt.err)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestErrors_Uniqueness(t *testing.T) {
	allErrors := []error{
		ErrModelUnavailable,
		ErrEncodeFailed,
		ErrDimensionMismatch,
		ErrCollectionNotFound,
		ErrNotFound,
		ErrInvalidPredicate,
		ErrCorruptIndex,
		ErrTaskNotFound,
		ErrCancelled,
		ErrAlreadyExists,
		ErrInvalidInput,
	}

	for i, err1 := range allErrors {
		for j, err2 := range allErrors {
			if i != j {
				assert.False(t, errors.Is(err1, err2),
					"Error %v should not match error %v", err1, err2)
			}
		}
	}
}

func TestErrors_ComparingWithIs(t *testing.T) {
	assert.True(t, errors.Is(ErrNotFound, ErrNotFound))

	wrapped := errors.Join(errors.New("context"), ErrInvalidInput)
	assert.True(t, errors.Is(wrapped, ErrInvalidInput))

	assert.False(t, errors.Is(ErrNotFound, ErrAlreadyExists))
}

func TestStageError(t *testing.T) {
	base := errors.New("connection refused")
	err := &StageError{Stage: "encoding", Batch: 3, Err: base}

	assert.Contains(t, err.Error(), "encoding")
	assert.Contains(t, err.Error(), "3")
	assert.True(t, errors.Is(err, base))

	wrapped := &StageError{Stage: "storage", Batch: 1, Err: ErrCollectionNotFound}
	assert.True(t, errors.Is(wrapped, ErrCollectionNotFound))
}
