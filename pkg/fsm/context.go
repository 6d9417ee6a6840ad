package fsm

import "context"

// Context is handed to guards and actions while an event is processed.
// It carries the caller's context.Context, so loggers and deadlines flow through.
type Context interface {
	context.Context

	Machine() *Machine
	CurrentState() string
	SourceState() string
	TargetState() string

	Event() Event
	EventName() string
	EventData() any
}

type machineContext struct {
	context.Context
	machine *Machine
	current string
	source  string
	target  string
	event   Event
}

func newMachineContext(parent context.Context, m *Machine, current, source, target string, event Event) *machineContext {
	if parent == nil {
		parent = context.Background()
	}
	return &machineContext{
		Context: parent,
		machine: m,
		current: current,
		source:  source,
		target:  target,
		event:   event,
	}
}

// Machine returns the machine processing the event. Actions must not call its
// event or lifecycle methods, which would deadlock.
func (c *machineContext) Machine() *Machine {
	return c.machine
}

func (c *machineContext) CurrentState() string {
	return c.current
}

func (c *machineContext) SourceState() string {
	return c.source
}

func (c *machineContext) TargetState() string {
	return c.target
}

func (c *machineContext) Event() Event {
	return c.event
}

func (c *machineContext) EventName() string {
	if c.event == nil {
		return ""
	}
	return c.event.Name()
}

func (c *machineContext) EventData() any {
	if c.event == nil {
		return nil
	}
	return c.event.Data()
}
