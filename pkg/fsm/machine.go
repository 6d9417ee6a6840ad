// Package fsm is a small guarded state-machine engine with a fluent builder,
// entry and exit actions, transition actions and lifecycle observers.
package fsm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// MachineState represents the lifecycle state of the machine
type MachineState int

const (
	// Machine is stopped and not processing events
	MachineStateStopped MachineState = iota
	// Machine is running and processing events
	MachineStateStarted
)

// Machine is a running instance of a Definition. Events are processed one at a time.
type Machine struct {
	def          *Definition
	currentState string
	machineState MachineState
	observers    *ObserverManager
	mutex        sync.Mutex
}

// NewInstance creates a stopped machine positioned at the initial state
func (d *Definition) NewInstance() *Machine {
	return &Machine{
		def:          d,
		currentState: d.initial,
		machineState: MachineStateStopped,
		observers:    NewObserverManager(),
	}
}

// safeEvaluateGuard evaluates a guard with panic recovery
func safeEvaluateGuard(guard GuardFunc, ctx Context) (result bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = false
			err = fmt.Errorf("guard panic: %v", r)
		}
	}()

	return guard(ctx), nil
}

// safeExecuteAction executes an action with panic recovery
func safeExecuteAction(action ActionFunc, ctx Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panic: %v", r)
		}
	}()

	return action(ctx)
}

// Definition returns the declaration the machine was created from
func (m *Machine) Definition() *Definition {
	return m.def
}

// Start enters the initial state and begins accepting events
func (m *Machine) Start(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.machineState == MachineStateStarted {
		return NewMachineError(ErrCodeInvalidState, "Start", "machine is already started")
	}

	state, ok := m.def.states[m.def.initial]
	if !ok {
		return NewConfigurationError("Machine", fmt.Sprintf("initial state '%s' does not exist", m.def.initial))
	}

	m.machineState = MachineStateStarted
	m.currentState = state.id

	mctx := newMachineContext(ctx, m, state.id, "", state.id, nil)
	if err := state.enter(mctx); err != nil {
		m.observers.NotifyError(NewActionError("entry", state.id, "", err), mctx)
	}
	m.observers.NotifyStateEnter(state.id, mctx)
	m.observers.NotifyMachineStarted(mctx)
	return nil
}

// Stop halts event processing. The current state is exited for observers only.
func (m *Machine) Stop(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.machineState != MachineStateStarted {
		return NewMachineNotStartedError("Stop")
	}

	mctx := newMachineContext(ctx, m, m.currentState, "", "", nil)
	m.observers.NotifyStateExit(m.currentState, mctx)
	m.observers.NotifyMachineStopped(mctx)

	m.machineState = MachineStateStopped
	return nil
}

// Reset stops the machine and moves it back to the initial state
func (m *Machine) Reset(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	previous := m.currentState
	m.currentState = m.def.initial
	m.machineState = MachineStateStopped

	if previous != m.currentState {
		mctx := newMachineContext(ctx, m, m.currentState, previous, m.currentState, nil)
		m.observers.NotifyStateExit(previous, mctx)
		m.observers.NotifyTransition(previous, m.currentState, nil, mctx)
		m.observers.NotifyStateEnter(m.currentState, mctx)
	}
	return nil
}

// Started reports whether the machine accepts events
func (m *Machine) Started() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.machineState == MachineStateStarted
}

// CurrentState returns the current state id
func (m *Machine) CurrentState() string {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.currentState
}

// AddObserver registers an observer
func (m *Machine) AddObserver(observer Observer) {
	m.observers.AddObserver(observer)
}

// RemoveObserver unregisters an observer
func (m *Machine) RemoveObserver(observer Observer) {
	m.observers.RemoveObserver(observer)
}

// HandleEvent processes an event synchronously.
//
// Candidate transitions are tried in declaration order and the first whose
// guard passes fires. The transition action runs before the source state is
// exited; if it fails the machine stays where it was.
func (m *Machine) HandleEvent(ctx context.Context, eventName string, eventData any) *EventResult {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	event := NewEvent(eventName, eventData)
	source := m.currentState
	mctx := newMachineContext(ctx, m, source, source, "", event)

	reject := func(reason string, err error) *EventResult {
		m.observers.NotifyEventRejected(event, reason, mctx)
		result := NewEventResult(false, false, source, source).
			WithRejection(reason).
			WithError(err)
		result.EventID = event.ID()
		return result
	}

	if m.machineState != MachineStateStarted {
		return reject("machine is not started", NewMachineNotStartedError("HandleEvent"))
	}
	if strings.TrimSpace(eventName) == "" {
		return reject("event name cannot be empty",
			NewMachineError(ErrCodeInvalidEvent, "HandleEvent", "event name cannot be empty"))
	}

	transition, err := m.findMatchingTransition(source, event, mctx)
	if err != nil {
		return reject(err.Error(), err)
	}

	mctx.target = transition.Target
	if transition.Action != nil {
		m.observers.NotifyActionExecution("transition", source, event, mctx)
		if err := safeExecuteAction(transition.Action, mctx); err != nil {
			actionErr := NewActionError("transition", source, eventName, err)
			m.observers.NotifyError(actionErr, mctx)
			return reject(fmt.Sprintf("transition action failed: %v", err), actionErr)
		}
	}

	from := m.def.states[source]
	to := m.def.states[transition.Target]

	if from.exitAction != nil {
		m.observers.NotifyActionExecution("exit", source, event, mctx)
	}
	if err := from.exit(mctx); err != nil {
		m.observers.NotifyError(NewActionError("exit", source, eventName, err), mctx)
	}

	m.currentState = to.id
	mctx.current = to.id

	if to.entryAction != nil {
		m.observers.NotifyActionExecution("entry", to.id, event, mctx)
	}
	if err := to.enter(mctx); err != nil {
		m.observers.NotifyError(NewActionError("entry", to.id, eventName, err), mctx)
	}

	m.observers.NotifyStateExit(source, mctx)
	m.observers.NotifyTransition(source, to.id, event, mctx)
	m.observers.NotifyStateEnter(to.id, mctx)

	result := NewEventResult(true, true, source, to.id)
	result.EventID = event.ID()
	return result
}

// findMatchingTransition returns the first candidate whose guard passes
func (m *Machine) findMatchingTransition(source string, event Event, mctx *machineContext) (*Transition, error) {
	var rejected *Transition
	for _, t := range m.def.transitions[source] {
		if t.Event != event.Name() {
			continue
		}
		t := t
		if t.Guard == nil {
			return &t, nil
		}

		mctx.target = t.Target
		passed, err := safeEvaluateGuard(t.Guard, mctx)
		if err != nil {
			m.observers.NotifyError(err, mctx)
		}
		m.observers.NotifyGuardEvaluation(source, t.Target, event, passed, mctx)
		if passed {
			return &t, nil
		}
		if rejected == nil {
			rejected = &t
		}
	}
	mctx.target = ""

	if rejected != nil {
		return nil, NewGuardRejectedError(source, rejected.Target, event.Name())
	}
	return nil, NewNoTransitionError(source, event.Name())
}

// ErrResult extracts the error of a rejected result, or nil
func ErrResult(r *EventResult) error {
	if r == nil || r.Success() {
		return nil
	}
	if r.Error != nil {
		return r.Error
	}
	return errors.New(r.RejectionReason)
}
