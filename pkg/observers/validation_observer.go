package observers

import (
	"fmt"
	"sync"

	"github.com/anggasct/junction/pkg/fsm"
)

// ValidationObserver checks every transition against an allow-list and
// records the ones that are not on it.
type ValidationObserver struct {
	fsm.BaseObserver

	allowedTransitions map[string]map[string]bool
	visitedStates      map[string]bool
	violations         []string
	mutex              sync.RWMutex
}

// NewValidationObserver creates a validation observer
func NewValidationObserver() *ValidationObserver {
	return &ValidationObserver{
		allowedTransitions: make(map[string]map[string]bool),
		visitedStates:      make(map[string]bool),
	}
}

// NewDefinitionValidator allows exactly the transitions declared by def
func NewDefinitionValidator(def *fsm.Definition) *ValidationObserver {
	o := NewValidationObserver()
	for _, t := range def.Transitions() {
		o.AddAllowedTransition(t.Source, t.Target)
	}
	return o
}

// AddAllowedTransition adds an allowed transition
func (o *ValidationObserver) AddAllowedTransition(from, to string) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if _, exists := o.allowedTransitions[from]; !exists {
		o.allowedTransitions[from] = make(map[string]bool)
	}
	o.allowedTransitions[from][to] = true
}

// OnStateEnter marks the state as visited
func (o *ValidationObserver) OnStateEnter(state string, ctx fsm.Context) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.visitedStates[state] = true
}

// OnTransition validates the transition against the allow-list
func (o *ValidationObserver) OnTransition(from, to string, event fsm.Event, ctx fsm.Context) {
	if from == "" || to == "" {
		return
	}

	o.mutex.Lock()
	defer o.mutex.Unlock()

	if !o.allowedTransitions[from][to] {
		name := ""
		if event != nil {
			name = event.Name()
		}
		o.violations = append(o.violations, fmt.Sprintf(
			"invalid transition from '%s' to '%s' on event '%s'", from, to, name))
	}
}

// OnError records errors as violations
func (o *ValidationObserver) OnError(err error, ctx fsm.Context) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.violations = append(o.violations, fmt.Sprintf("error occurred: %v", err))
}

// Violations returns all recorded violations
func (o *ValidationObserver) Violations() []string {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	result := make([]string, len(o.violations))
	copy(result, o.violations)
	return result
}

// HasViolations returns whether any violations occurred
func (o *ValidationObserver) HasViolations() bool {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return len(o.violations) > 0
}

// Visited reports whether a state has been entered
func (o *ValidationObserver) Visited(state string) bool {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return o.visitedStates[state]
}

// Reset clears visited states and violations
func (o *ValidationObserver) Reset() {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.visitedStates = make(map[string]bool)
	o.violations = nil
}
