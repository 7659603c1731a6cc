// internal/agent/errors.go
package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/xkilldash9x/autopilot/api/schemas"
)

// ErrorCode classifies failures surfaced by the run controller and its collaborators.
type ErrorCode string

const (
	// ErrCodeDevice covers any failure of the perception/execution device.
	ErrCodeDevice ErrorCode = "DEVICE_ERROR"
	// ErrCodeReasoning covers transport, decode and protocol failures of the reasoner.
	ErrCodeReasoning ErrorCode = "REASONING_ERROR"
	// ErrCodePolicyDenied is produced when the policy refuses an action.
	ErrCodePolicyDenied ErrorCode = "POLICY_DENIED"
	ErrCodeTimeout      ErrorCode = "TIMEOUT_ERROR"
	// ErrCodePersistence covers step log and run record failures.
	ErrCodePersistence ErrorCode = "PERSISTENCE_ERROR"
	ErrCodeUnknown     ErrorCode = "UNKNOWN_ERROR"
)

// Error is the structured error type exchanged across the agent boundary.
type Error struct {
	Code ErrorCode
	// Scope is set for ErrCodePolicyDenied.
	Scope   schemas.Scope
	Message string
	Err     error
}

func (e *Error) Error() string {
	var prefix string
	switch e.Code {
	case ErrCodeDevice:
		prefix = "computer error"
	case ErrCodeReasoning:
		prefix = "reasoner error"
	case ErrCodePolicyDenied:
		return fmt.Sprintf("policy denied: %s", e.Scope)
	case ErrCodeTimeout:
		if e.Message != "" {
			return "timeout: " + e.Message
		}
		prefix = "timeout"
	case ErrCodePersistence:
		prefix = "memory error"
	default:
		prefix = "error"
	}

	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", prefix, e.Err)
	default:
		return fmt.Sprintf("%s: %s", prefix, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code ErrorCode, err error, format string, args ...any) *Error {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// NewDeviceError wraps a failure of the Computer.
func NewDeviceError(err error, format string, args ...any) *Error {
	return newError(ErrCodeDevice, err, format, args...)
}

// NewReasoningError wraps a failure of the Reasoner or its remote service.
func NewReasoningError(err error, format string, args ...any) *Error {
	return newError(ErrCodeReasoning, err, format, args...)
}

// NewTimeoutError reports an exceeded step or run budget.
func NewTimeoutError(format string, args ...any) *Error {
	return newError(ErrCodeTimeout, context.DeadlineExceeded, format, args...)
}

// NewPersistenceError wraps a MemoryStore failure.
func NewPersistenceError(err error, format string, args ...any) *Error {
	return newError(ErrCodePersistence, err, format, args...)
}

// NewDeniedError reports that the policy refused an action requiring scope.
func NewDeniedError(scope schemas.Scope) *Error {
	return &Error{Code: ErrCodePolicyDenied, Scope: scope}
}

// CodeOf extracts the ErrorCode from err, or ErrCodeUnknown.
func CodeOf(err error) ErrorCode {
	var agentErr *Error
	if errors.As(err, &agentErr) {
		return agentErr.Code
	}
	return ErrCodeUnknown
}

// asCode returns err unchanged when it already carries a code, otherwise wraps it.
func asCode(code ErrorCode, err error) error {
	var agentErr *Error
	if errors.As(err, &agentErr) {
		return err
	}
	if code != ErrCodeTimeout && errors.Is(err, context.DeadlineExceeded) {
		return &Error{Code: ErrCodeTimeout, Message: "step deadline exceeded", Err: err}
	}
	return &Error{Code: code, Err: err}
}
