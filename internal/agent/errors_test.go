package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/autopilot/api/schemas"
)

func TestErrorMessages(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		err  error
		want string
	}{
		{NewDeviceError(cause, "click failed"), "computer error: click failed: boom"},
		{NewReasoningError(nil, "missing snapshot image"), "reasoner error: missing snapshot image"},
		{NewReasoningError(cause, "decoding %s", "response"), "reasoner error: decoding response: boom"},
		{NewDeniedError(schemas.ScopeFileAccess), "policy denied: file_access"},
		{NewTimeoutError("Run budget exceeded"), "timeout: Run budget exceeded"},
		{NewPersistenceError(cause, "recording step %d", 3), "memory error: recording step 3: boom"},
		{&Error{Code: ErrCodeUnknown, Err: cause}, "error: boom"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.Error())
	}
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", NewDeviceError(nil, "gone"))
	assert.Equal(t, ErrCodeDevice, CodeOf(wrapped))
	assert.Equal(t, ErrCodeUnknown, CodeOf(errors.New("plain")))
	assert.Equal(t, ErrCodeUnknown, CodeOf(nil))
}

func TestAsCode(t *testing.T) {
	plain := errors.New("socket closed")
	err := asCode(ErrCodeDevice, plain)
	assert.Equal(t, ErrCodeDevice, CodeOf(err))
	assert.ErrorIs(t, err, plain)

	existing := NewReasoningError(plain, "turn")
	assert.Same(t, existing, asCode(ErrCodeDevice, existing), "already classified errors keep their code")

	deadline := asCode(ErrCodeDevice, fmt.Errorf("waiting: %w", context.DeadlineExceeded))
	assert.Equal(t, ErrCodeTimeout, CodeOf(deadline))
	assert.ErrorIs(t, NewTimeoutError("late"), context.DeadlineExceeded)
}
