package core

import (
	"errors"
	"fmt"
)

// ErrorCode represents specific error conditions in the core
type ErrorCode int

const (
	// No error occurred
	ErrCodeNone ErrorCode = iota
	// Dequeue or peek on an empty queue
	ErrCodeEmptyQueue
	// Lane identifier outside the fixed twelve
	ErrCodeUnknownLane
	// Direction outside the four canonical directions
	ErrCodeInvalidDirection
	// Arrival record could not be parsed
	ErrCodeMalformedRecord
	// A core invariant no longer holds
	ErrCodeInvariantViolation
	// Configuration is invalid
	ErrCodeInvalidConfiguration
)

// QueueError represents queue-level failures
type QueueError struct {
	Code    ErrorCode
	Lane    LaneID
	Message string
}

func (e *QueueError) Error() string {
	if e.Lane != "" {
		return fmt.Sprintf("queue error [%s]: %s", e.Lane, e.Message)
	}
	return fmt.Sprintf("queue error: %s", e.Message)
}

// NewEmptyQueueError creates a new empty queue error
func NewEmptyQueueError(lane LaneID) *QueueError {
	return &QueueError{
		Code:    ErrCodeEmptyQueue,
		Lane:    lane,
		Message: "queue is empty",
	}
}

// LaneError represents a lookup of a lane that does not exist
type LaneError struct {
	Code      ErrorCode
	Lane      string
	Operation string
}

func (e *LaneError) Error() string {
	return fmt.Sprintf("lane error during %s: unknown lane %q", e.Operation, e.Lane)
}

// NewUnknownLaneError creates a new unknown lane error
func NewUnknownLaneError(lane string, operation string) *LaneError {
	return &LaneError{
		Code:      ErrCodeUnknownLane,
		Lane:      lane,
		Operation: operation,
	}
}

// DirectionError is returned when a caller names a direction that does not exist.
// It signals a defect in the caller rather than a runtime condition.
type DirectionError struct {
	Direction string
	Operation string
}

func (e *DirectionError) Error() string {
	return fmt.Sprintf("invalid direction %q during %s", e.Direction, e.Operation)
}

// NewInvalidDirectionError creates a new invalid direction error
func NewInvalidDirectionError(direction Direction, operation string) *DirectionError {
	return &DirectionError{
		Direction: string(direction),
		Operation: operation,
	}
}

// RecordError describes an arrival record that was dropped
type RecordError struct {
	Offset int64
	Raw    string
	Reason string
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("malformed record at offset %d: %s (%q)", e.Offset, e.Reason, e.Raw)
}

// NewMalformedRecordError creates a new malformed record error
func NewMalformedRecordError(offset int64, raw, reason string) *RecordError {
	return &RecordError{
		Offset: offset,
		Raw:    raw,
		Reason: reason,
	}
}

// InvariantError reports core corruption. Callers must stop ticking.
type InvariantError struct {
	Component string
	Message   string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violated in %s: %s", e.Component, e.Message)
}

// NewInvariantError creates a new invariant violation error
func NewInvariantError(component, message string) *InvariantError {
	return &InvariantError{
		Component: component,
		Message:   message,
	}
}

// ConfigurationError represents configuration issues
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

// IsEmptyQueue checks if an error is an empty queue error
func IsEmptyQueue(err error) bool {
	var qe *QueueError
	return errors.As(err, &qe) && qe.Code == ErrCodeEmptyQueue
}

// IsUnknownLane checks if an error is an unknown lane error
func IsUnknownLane(err error) bool {
	var le *LaneError
	return errors.As(err, &le)
}

// IsInvalidDirection checks if an error is an invalid direction error
func IsInvalidDirection(err error) bool {
	var de *DirectionError
	return errors.As(err, &de)
}

// IsMalformedRecord checks if an error is a malformed record error
func IsMalformedRecord(err error) bool {
	var re *RecordError
	return errors.As(err, &re)
}

// IsInvariantViolation checks if an error is an invariant violation
func IsInvariantViolation(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}

// IsConfigurationError checks if an error is a configuration error
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// GetErrorCode returns the error code for known error types
func GetErrorCode(err error) ErrorCode {
	var (
		qe *QueueError
		le *LaneError
		de *DirectionError
		re *RecordError
		ie *InvariantError
		ce *ConfigurationError
	)
	switch {
	case errors.As(err, &qe):
		return qe.Code
	case errors.As(err, &le):
		return le.Code
	case errors.As(err, &de):
		return ErrCodeInvalidDirection
	case errors.As(err, &re):
		return ErrCodeMalformedRecord
	case errors.As(err, &ie):
		return ErrCodeInvariantViolation
	case errors.As(err, &ce):
		return ErrCodeInvalidConfiguration
	default:
		return ErrCodeNone
	}
}
