package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument is returned when a required value is absent or empty.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrConfiguration is the root of every bot definition error.
var ErrConfiguration = errors.New("configuration error")

// ErrProviderShutdown is returned by a recognizer that has been shut down.
var ErrProviderShutdown = errors.New("intent recognition provider is shut down")

// ErrNoTransition is returned when no transition of the current state accepts the event.
var ErrNoTransition = errors.New("no transition matches event")

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrPlatformNotFound is returned when an action references an unregistered platform.
var ErrPlatformNotFound = errors.New("platform not found")

// ErrActionNotFound is returned when a platform does not provide (or has disabled) an action.
var ErrActionNotFound = errors.New("action not found")

// ErrUnknownEntity is returned when an intent parameter references an entity that is not registered.
var ErrUnknownEntity = errors.New("unknown entity")

// ErrVariableTimeout is returned when a deferred context value is not resolved in time.
var ErrVariableTimeout = errors.New("context variable timed out")

// ConfigurationError describes a malformed bot definition.
type ConfigurationError struct {
	State  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.State == "" {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration error in state '%s': %s", e.State, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// NewConfigurationError builds a ConfigurationError with a formatted reason.
func NewConfigurationError(state, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{State: state, Reason: fmt.Sprintf(format, args...)}
}

// RecognitionError wraps a failure raised by a recognition backend.
type RecognitionError struct {
	Op  string
	Err error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("recognition %s failed: %v", e.Op, e.Err)
}

func (e *RecognitionError) Unwrap() error {
	return e.Err
}
