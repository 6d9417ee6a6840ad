package fsm

import (
	"fmt"
	"sync"
)

// Observer represents an entity that observes state machine lifecycle
type Observer interface {
	// OnTransition is called when a state transition occurs
	OnTransition(from string, to string, event Event, ctx Context)

	// OnStateEnter is called when entering a new state
	OnStateEnter(state string, ctx Context)
}

// ExtendedObserver provides additional optional observation methods
type ExtendedObserver interface {
	Observer

	// OnStateExit is called when exiting a state
	OnStateExit(state string, ctx Context)

	// OnGuardEvaluation is called when a guard condition is evaluated
	OnGuardEvaluation(from string, to string, event Event, result bool, ctx Context)

	// OnEventRejected is called when an event is rejected
	OnEventRejected(event Event, reason string, ctx Context)

	// OnError is called when an error occurs during processing
	OnError(err error, ctx Context)

	// OnActionExecution is called when an action is executed
	OnActionExecution(actionType string, state string, event Event, ctx Context)

	// OnMachineStarted is called when the state machine starts
	OnMachineStarted(ctx Context)

	// OnMachineStopped is called when the state machine stops
	OnMachineStopped(ctx Context)
}

// BaseObserver provides no-op implementations to embed
type BaseObserver struct{}

func (o *BaseObserver) OnTransition(from string, to string, event Event, ctx Context) {}

func (o *BaseObserver) OnStateEnter(state string, ctx Context) {}

func (o *BaseObserver) OnStateExit(state string, ctx Context) {}

func (o *BaseObserver) OnGuardEvaluation(from string, to string, event Event, result bool, ctx Context) {
}

func (o *BaseObserver) OnEventRejected(event Event, reason string, ctx Context) {}

func (o *BaseObserver) OnError(err error, ctx Context) {}

func (o *BaseObserver) OnActionExecution(actionType string, state string, event Event, ctx Context) {
}

func (o *BaseObserver) OnMachineStarted(ctx Context) {}

func (o *BaseObserver) OnMachineStopped(ctx Context) {}

// ObserverManager fans notifications out to registered observers.
// A panicking observer is reported through OnError and never reaches the machine.
type ObserverManager struct {
	mutex     sync.RWMutex
	observers []Observer
}

// NewObserverManager creates a new observer manager
func NewObserverManager() *ObserverManager {
	return &ObserverManager{
		observers: make([]Observer, 0),
	}
}

// AddObserver adds an observer to the manager
func (om *ObserverManager) AddObserver(observer Observer) {
	om.mutex.Lock()
	defer om.mutex.Unlock()
	om.observers = append(om.observers, observer)
}

// RemoveObserver removes an observer from the manager
func (om *ObserverManager) RemoveObserver(observer Observer) {
	om.mutex.Lock()
	defer om.mutex.Unlock()
	for i, obs := range om.observers {
		if obs == observer {
			om.observers = append(om.observers[:i], om.observers[i+1:]...)
			break
		}
	}
}

// Len returns the number of registered observers
func (om *ObserverManager) Len() int {
	om.mutex.RLock()
	defer om.mutex.RUnlock()
	return len(om.observers)
}

func (om *ObserverManager) snapshot() []Observer {
	om.mutex.RLock()
	defer om.mutex.RUnlock()
	observers := make([]Observer, len(om.observers))
	copy(observers, om.observers)
	return observers
}

func (om *ObserverManager) each(method string, ctx Context, fn func(Observer)) {
	for _, observer := range om.snapshot() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					if extObs, ok := observer.(ExtendedObserver); ok && method != "OnError" {
						func() {
							defer func() { recover() }()
							extObs.OnError(fmt.Errorf("observer panic in %s: %v", method, r), ctx)
						}()
					}
				}
			}()
			fn(observer)
		}()
	}
}

func (om *ObserverManager) eachExtended(method string, ctx Context, fn func(ExtendedObserver)) {
	om.each(method, ctx, func(observer Observer) {
		if extObs, ok := observer.(ExtendedObserver); ok {
			fn(extObs)
		}
	})
}

// NotifyTransition notifies all observers of a state transition
func (om *ObserverManager) NotifyTransition(from string, to string, event Event, ctx Context) {
	om.each("OnTransition", ctx, func(o Observer) { o.OnTransition(from, to, event, ctx) })
}

// NotifyStateEnter notifies all observers of state entry
func (om *ObserverManager) NotifyStateEnter(state string, ctx Context) {
	om.each("OnStateEnter", ctx, func(o Observer) { o.OnStateEnter(state, ctx) })
}

// NotifyStateExit notifies all observers of state exit
func (om *ObserverManager) NotifyStateExit(state string, ctx Context) {
	om.eachExtended("OnStateExit", ctx, func(o ExtendedObserver) { o.OnStateExit(state, ctx) })
}

// NotifyGuardEvaluation notifies all observers of guard evaluation
func (om *ObserverManager) NotifyGuardEvaluation(from string, to string, event Event, result bool, ctx Context) {
	om.eachExtended("OnGuardEvaluation", ctx, func(o ExtendedObserver) {
		o.OnGuardEvaluation(from, to, event, result, ctx)
	})
}

// NotifyEventRejected notifies all observers of event rejection
func (om *ObserverManager) NotifyEventRejected(event Event, reason string, ctx Context) {
	om.eachExtended("OnEventRejected", ctx, func(o ExtendedObserver) { o.OnEventRejected(event, reason, ctx) })
}

// NotifyError notifies all observers of errors
func (om *ObserverManager) NotifyError(err error, ctx Context) {
	om.eachExtended("OnError", ctx, func(o ExtendedObserver) { o.OnError(err, ctx) })
}

// NotifyActionExecution notifies all observers of action execution
func (om *ObserverManager) NotifyActionExecution(actionType string, state string, event Event, ctx Context) {
	om.eachExtended("OnActionExecution", ctx, func(o ExtendedObserver) {
		o.OnActionExecution(actionType, state, event, ctx)
	})
}

// NotifyMachineStarted notifies all observers that the machine has started
func (om *ObserverManager) NotifyMachineStarted(ctx Context) {
	om.eachExtended("OnMachineStarted", ctx, func(o ExtendedObserver) { o.OnMachineStarted(ctx) })
}

// NotifyMachineStopped notifies all observers that the machine has stopped
func (om *ObserverManager) NotifyMachineStopped(ctx Context) {
	om.eachExtended("OnMachineStopped", ctx, func(o ExtendedObserver) { o.OnMachineStopped(ctx) })
}
