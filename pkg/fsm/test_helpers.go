package fsm

import (
	"sync"
	"testing"
)

// TestObserver records every notification it receives
type TestObserver struct {
	mutex        sync.RWMutex
	Transitions  []TransitionEvent
	StateEnters  []string
	StateExits   []string
	EventRejects []EventRejectEvent
	Errors       []error
	Actions      []ActionEvent
	Guards       []GuardEvent
	Started      int
	Stopped      int
}

type TransitionEvent struct {
	From  string
	To    string
	Event string
}

type EventRejectEvent struct {
	Event  string
	Reason string
}

type ActionEvent struct {
	ActionType string
	State      string
}

type GuardEvent struct {
	From   string
	To     string
	Result bool
}

// NewTestObserver creates a new test observer
func NewTestObserver() *TestObserver {
	return &TestObserver{}
}

func eventName(event Event) string {
	if event == nil {
		return ""
	}
	return event.Name()
}

func (o *TestObserver) OnTransition(from string, to string, event Event, ctx Context) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Transitions = append(o.Transitions, TransitionEvent{From: from, To: to, Event: eventName(event)})
}

func (o *TestObserver) OnStateEnter(state string, ctx Context) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.StateEnters = append(o.StateEnters, state)
}

func (o *TestObserver) OnStateExit(state string, ctx Context) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.StateExits = append(o.StateExits, state)
}

func (o *TestObserver) OnGuardEvaluation(from string, to string, event Event, result bool, ctx Context) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Guards = append(o.Guards, GuardEvent{From: from, To: to, Result: result})
}

func (o *TestObserver) OnEventRejected(event Event, reason string, ctx Context) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.EventRejects = append(o.EventRejects, EventRejectEvent{Event: eventName(event), Reason: reason})
}

func (o *TestObserver) OnError(err error, ctx Context) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Errors = append(o.Errors, err)
}

func (o *TestObserver) OnActionExecution(actionType string, state string, event Event, ctx Context) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Actions = append(o.Actions, ActionEvent{ActionType: actionType, State: state})
}

func (o *TestObserver) OnMachineStarted(ctx Context) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Started++
}

func (o *TestObserver) OnMachineStopped(ctx Context) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.Stopped++
}

func (o *TestObserver) TransitionCount() int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return len(o.Transitions)
}

func (o *TestObserver) LastTransition() *TransitionEvent {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	if len(o.Transitions) == 0 {
		return nil
	}
	return &o.Transitions[len(o.Transitions)-1]
}

func (o *TestObserver) ErrorCount() int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return len(o.Errors)
}

// AssertState checks if machine is in expected state
func AssertState(t *testing.T, machine *Machine, expectedState string) {
	t.Helper()
	if currentState := machine.CurrentState(); currentState != expectedState {
		t.Errorf("Expected state %s, got %s", expectedState, currentState)
	}
}

// AssertStateChanged checks if state transition occurred
func AssertStateChanged(t *testing.T, result *EventResult, expectedPrevious, expectedCurrent string) {
	t.Helper()
	if !result.StateChanged {
		t.Error("Expected state to change")
	}
	if result.PreviousState != expectedPrevious {
		t.Errorf("Expected previous state %s, got %s", expectedPrevious, result.PreviousState)
	}
	if result.CurrentState != expectedCurrent {
		t.Errorf("Expected current state %s, got %s", expectedCurrent, result.CurrentState)
	}
}

// AssertEventProcessed checks if event was processed or rejected
func AssertEventProcessed(t *testing.T, result *EventResult, shouldProcess bool) {
	t.Helper()
	if result.Processed != shouldProcess {
		if shouldProcess {
			t.Errorf("Expected event to be processed: %s", result.RejectionReason)
		} else {
			t.Error("Expected event to be rejected")
		}
	}
}
