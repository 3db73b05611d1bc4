package apperr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestAlreadyPendingIsConflict(t *testing.T) {
	assert.ErrorIs(t, ErrRequestAlreadyPending, ErrConflict)
	assert.NotErrorIs(t, ErrAlreadyPenpals, ErrConflict)
}

func TestBackendWrapsBothSentinelAndCause(t *testing.T) {
	cause := context.DeadlineExceeded
	err := Backend("directory: get", cause)

	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "directory: get")
}

func TestBackendNil(t *testing.T) {
	assert.NoError(t, Backend("noop", nil))
}

func TestInvalid(t *testing.T) {
	err := Invalid("language %q is required", "")
	assert.True(t, errors.Is(err, ErrInvalidArgument))
	assert.Contains(t, err.Error(), "language")
}
