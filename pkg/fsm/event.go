package fsm

import (
	"time"

	"github.com/google/uuid"
)

// Event represents a trigger for transitions in the state machine
type Event interface {
	ID() string
	Name() string
	Data() any
	Timestamp() time.Time
}

// BaseEvent provides a basic implementation of the Event interface
type BaseEvent struct {
	id        string
	name      string
	data      any
	timestamp time.Time
}

// NewEvent creates a new event with a fresh identifier
func NewEvent(name string, data any) Event {
	return &BaseEvent{
		id:        uuid.NewString(),
		name:      name,
		data:      data,
		timestamp: time.Now(),
	}
}

// ID returns the unique event identifier
func (e *BaseEvent) ID() string {
	return e.id
}

// Name returns the event name
func (e *BaseEvent) Name() string {
	return e.name
}

// Data returns the event payload
func (e *BaseEvent) Data() any {
	return e.data
}

// Timestamp returns when the event was created
func (e *BaseEvent) Timestamp() time.Time {
	return e.timestamp
}

// EventResult represents the result of processing an event
type EventResult struct {
	EventID         string
	Processed       bool
	StateChanged    bool
	PreviousState   string
	CurrentState    string
	Error           error
	RejectionReason string
}

// NewEventResult creates a new event result
func NewEventResult(processed, stateChanged bool, prevState, currentState string) *EventResult {
	return &EventResult{
		Processed:     processed,
		StateChanged:  stateChanged,
		PreviousState: prevState,
		CurrentState:  currentState,
	}
}

// WithError adds an error to the event result
func (r *EventResult) WithError(err error) *EventResult {
	r.Error = err
	return r
}

// WithRejection marks the event as rejected with a reason
func (r *EventResult) WithRejection(reason string) *EventResult {
	r.RejectionReason = reason
	r.Processed = false
	return r
}

// Success returns true if the event was processed successfully
func (r *EventResult) Success() bool {
	return r.Processed && r.Error == nil
}
