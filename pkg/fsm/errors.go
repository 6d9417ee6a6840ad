package fsm

import (
	"errors"
	"fmt"
)

// ErrorCode represents specific error conditions in the state machine
type ErrorCode int

const (
	// No error occurred
	ErrCodeNone ErrorCode = iota
	// State was not found in the machine
	ErrCodeStateNotFound
	// No transition is defined for the event in the current state
	ErrCodeTransitionNotAllowed
	// Every candidate transition was rejected by its guard
	ErrCodeGuardRejected
	// Event is invalid for current context
	ErrCodeInvalidEvent
	// Machine is not in started state
	ErrCodeMachineNotStarted
	// Action execution failed
	ErrCodeActionFailed
	// Machine definition is invalid
	ErrCodeInvalidConfiguration
	// Machine is in an invalid condition for the operation
	ErrCodeInvalidState
)

// StateError represents state-related errors
type StateError struct {
	Code    ErrorCode
	StateID string
	Message string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("state error [%s]: %s", e.StateID, e.Message)
}

// NewStateNotFoundError creates a new state not found error
func NewStateNotFoundError(stateID string) *StateError {
	return &StateError{
		Code:    ErrCodeStateNotFound,
		StateID: stateID,
		Message: fmt.Sprintf("state '%s' not found", stateID),
	}
}

// TransitionError is returned when an event cannot move the machine
type TransitionError struct {
	Code   ErrorCode
	From   string
	To     string
	Event  string
	Reason string
}

func (e *TransitionError) Error() string {
	if e.To == "" {
		return fmt.Sprintf("transition error [%s on %s]: %s", e.From, e.Event, e.Reason)
	}
	return fmt.Sprintf("transition error [%s->%s on %s]: %s", e.From, e.To, e.Event, e.Reason)
}

// NewNoTransitionError creates a new no transition found error
func NewNoTransitionError(from, event string) *TransitionError {
	return &TransitionError{
		Code:   ErrCodeTransitionNotAllowed,
		From:   from,
		Event:  event,
		Reason: fmt.Sprintf("no transition found from state '%s' for event '%s'", from, event),
	}
}

// NewGuardRejectedError creates a new guard rejected error
func NewGuardRejectedError(from, to, event string) *TransitionError {
	return &TransitionError{
		Code:   ErrCodeGuardRejected,
		From:   from,
		To:     to,
		Event:  event,
		Reason: "guard rejected transition",
	}
}

// MachineError represents machine lifecycle errors
type MachineError struct {
	Code      ErrorCode
	Operation string
	Message   string
}

func (e *MachineError) Error() string {
	return fmt.Sprintf("machine error during %s: %s", e.Operation, e.Message)
}

// NewMachineNotStartedError creates a new machine not started error
func NewMachineNotStartedError(operation string) *MachineError {
	return &MachineError{
		Code:      ErrCodeMachineNotStarted,
		Operation: operation,
		Message:   "machine is not started",
	}
}

// NewMachineError creates a new machine error with custom values
func NewMachineError(code ErrorCode, operation, message string) *MachineError {
	return &MachineError{
		Code:      code,
		Operation: operation,
		Message:   message,
	}
}

// ActionError wraps a failure returned by, or recovered from, an action
type ActionError struct {
	Kind  string
	State string
	Event string
	Cause error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s action failed in state '%s' on event '%s': %v", e.Kind, e.State, e.Event, e.Cause)
}

func (e *ActionError) Unwrap() error {
	return e.Cause
}

// NewActionError creates a new action error
func NewActionError(kind, state, event string, cause error) *ActionError {
	return &ActionError{
		Kind:  kind,
		State: state,
		Event: event,
		Cause: cause,
	}
}

// ConfigurationError represents an invalid machine definition
type ConfigurationError struct {
	Component string
	Issue     string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Issue)
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(component, issue string) *ConfigurationError {
	return &ConfigurationError{
		Component: component,
		Issue:     issue,
	}
}

// IsStateNotFound checks if an error is a state not found error
func IsStateNotFound(err error) bool {
	var se *StateError
	return errors.As(err, &se) && se.Code == ErrCodeStateNotFound
}

// IsTransitionRejected checks if an error means the event did not move the machine
func IsTransitionRejected(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}

// IsGuardRejected checks if an error is a guard rejection
func IsGuardRejected(err error) bool {
	var te *TransitionError
	return errors.As(err, &te) && te.Code == ErrCodeGuardRejected
}

// IsMachineNotStarted checks if an error is a machine not started error
func IsMachineNotStarted(err error) bool {
	var me *MachineError
	return errors.As(err, &me) && me.Code == ErrCodeMachineNotStarted
}

// IsActionFailed checks if an error came from an action
func IsActionFailed(err error) bool {
	var ae *ActionError
	return errors.As(err, &ae)
}

// IsConfigurationError checks if an error is a configuration error
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// GetErrorCode returns the error code for known error types
func GetErrorCode(err error) ErrorCode {
	var (
		se *StateError
		te *TransitionError
		me *MachineError
		ae *ActionError
		ce *ConfigurationError
	)
	switch {
	case errors.As(err, &se):
		return se.Code
	case errors.As(err, &te):
		return te.Code
	case errors.As(err, &me):
		return me.Code
	case errors.As(err, &ae):
		return ErrCodeActionFailed
	case errors.As(err, &ce):
		return ErrCodeInvalidConfiguration
	default:
		return ErrCodeNone
	}
}
