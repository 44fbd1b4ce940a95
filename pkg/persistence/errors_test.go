package persistence

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkflowError(t *testing.T) {
	t.Parallel()

	err := NewWorkflowError("GetByID", "wf-1", ErrWorkflowNotFound)

	assert.Equal(t, "GetByID operation failed for workflow wf-1: workflow not found", err.Error())
	assert.True(t, IsWorkflowNotFound(err))
	assert.True(t, IsWorkflowNotFound(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsRunNotFound(err))
}

func TestRunError(t *testing.T) {
	t.Parallel()

	err := NewRunError("MarkRunning", "run-1", ErrInvalidRunTransition)

	assert.True(t, IsInvalidRunTransition(err))
	assert.False(t, IsForeignKeyViolation(err))

	cause := errors.New("connection reset")
	wrapped := NewRunError("GetByID", "run-1", cause)
	assert.ErrorIs(t, wrapped, cause)
	assert.False(t, IsRunNotFound(wrapped))
}
