package fsm

import (
	"fmt"

	"go.uber.org/multierr"
)

// MachineBuilder is the entry point for declaring a machine
type MachineBuilder interface {
	State(id string) StateBuilder
	Build() (*Definition, error)
}

// StateBuilder configures one atomic state
type StateBuilder interface {
	To(target string) TransitionBuilder
	ToSelf() TransitionBuilder

	OnEntry(action ActionFunc) StateBuilder
	OnExit(action ActionFunc) StateBuilder
	Final() StateBuilder
	Initial() StateBuilder

	State(id string) StateBuilder
	Build() (*Definition, error)
}

// TransitionBuilder configures the transition started by StateBuilder.To
type TransitionBuilder interface {
	On(event string) TransitionBuilder
	When(guard GuardFunc) TransitionBuilder
	Unless(guard GuardFunc) TransitionBuilder
	Do(action ActionFunc) TransitionBuilder

	// Another transition from the same source state
	To(target string) TransitionBuilder
	ToSelf() TransitionBuilder

	State(id string) StateBuilder
	Build() (*Definition, error)
}

type machineBuilder struct {
	states      map[string]*State
	order       []string
	transitions []*Transition
	initial     string
}

// NewMachine starts a new machine declaration
func NewMachine() MachineBuilder {
	return &machineBuilder{
		states: make(map[string]*State),
	}
}

// State declares a state, or returns to a previously declared one
func (mb *machineBuilder) State(id string) StateBuilder {
	state, ok := mb.states[id]
	if !ok {
		state = NewState(id)
		mb.states[id] = state
		mb.order = append(mb.order, id)
	}
	return &stateBuilder{machine: mb, state: state}
}

// Build validates the declaration and freezes it into a Definition
func (mb *machineBuilder) Build() (*Definition, error) {
	if err := mb.validate(); err != nil {
		return nil, err
	}

	def := &Definition{
		initial:     mb.initial,
		states:      make(map[string]*State, len(mb.states)),
		order:       append([]string(nil), mb.order...),
		transitions: make(map[string][]Transition),
	}
	for id, state := range mb.states {
		copied := *state
		def.states[id] = &copied
	}
	for _, t := range mb.transitions {
		def.transitions[t.Source] = append(def.transitions[t.Source], *t)
		def.all = append(def.all, *t)
	}
	return def, nil
}

func (mb *machineBuilder) validate() error {
	var errs error
	if mb.initial == "" {
		errs = multierr.Append(errs, NewConfigurationError("definition", "no initial state defined"))
	}
	for _, t := range mb.transitions {
		if t.Event == "" {
			errs = multierr.Append(errs, NewConfigurationError("definition",
				fmt.Sprintf("transition %s -> %s has no event", t.Source, t.Target)))
		}
		if _, ok := mb.states[t.Target]; !ok {
			errs = multierr.Append(errs, NewConfigurationError("definition",
				fmt.Sprintf("target state '%s' does not exist for transition from '%s'", t.Target, t.Source)))
		}
	}
	return errs
}

type stateBuilder struct {
	machine *machineBuilder
	state   *State
}

// To starts a transition from this state to target
func (sb *stateBuilder) To(target string) TransitionBuilder {
	t := &Transition{Source: sb.state.id, Target: target}
	sb.machine.transitions = append(sb.machine.transitions, t)
	return &transitionBuilder{source: sb, transition: t}
}

// ToSelf starts a self-transition, which runs exit and entry actions
func (sb *stateBuilder) ToSelf() TransitionBuilder {
	return sb.To(sb.state.id)
}

// OnEntry sets the entry action
func (sb *stateBuilder) OnEntry(action ActionFunc) StateBuilder {
	sb.state.entryAction = action
	return sb
}

// OnExit sets the exit action
func (sb *stateBuilder) OnExit(action ActionFunc) StateBuilder {
	sb.state.exitAction = action
	return sb
}

// Final marks this state as final
func (sb *stateBuilder) Final() StateBuilder {
	sb.state.final = true
	return sb
}

// Initial marks this state as the machine's initial state
func (sb *stateBuilder) Initial() StateBuilder {
	sb.machine.initial = sb.state.id
	return sb
}

func (sb *stateBuilder) State(id string) StateBuilder {
	return sb.machine.State(id)
}

func (sb *stateBuilder) Build() (*Definition, error) {
	return sb.machine.Build()
}

type transitionBuilder struct {
	source     *stateBuilder
	transition *Transition
}

// On binds the transition to an event name
func (tb *transitionBuilder) On(event string) TransitionBuilder {
	tb.transition.Event = event
	return tb
}

// When adds a guard condition
func (tb *transitionBuilder) When(guard GuardFunc) TransitionBuilder {
	tb.transition.Guard = guard
	return tb
}

// Unless adds a negated guard condition
func (tb *transitionBuilder) Unless(guard GuardFunc) TransitionBuilder {
	tb.transition.Guard = func(ctx Context) bool {
		return !guard(ctx)
	}
	return tb
}

// Do sets the transition action, run before the source state is exited
func (tb *transitionBuilder) Do(action ActionFunc) TransitionBuilder {
	tb.transition.Action = action
	return tb
}

func (tb *transitionBuilder) To(target string) TransitionBuilder {
	return tb.source.To(target)
}

func (tb *transitionBuilder) ToSelf() TransitionBuilder {
	return tb.source.ToSelf()
}

func (tb *transitionBuilder) State(id string) StateBuilder {
	return tb.source.machine.State(id)
}

func (tb *transitionBuilder) Build() (*Definition, error) {
	return tb.source.machine.Build()
}

// Definition is an immutable machine declaration that instances are created from
type Definition struct {
	initial     string
	states      map[string]*State
	order       []string
	transitions map[string][]Transition
	all         []Transition
}

// InitialState returns the initial state id
func (d *Definition) InitialState() string {
	return d.initial
}

// StateIDs returns the state ids in declaration order
func (d *Definition) StateIDs() []string {
	return append([]string(nil), d.order...)
}

// State returns a declared state
func (d *Definition) State(id string) (*State, bool) {
	s, ok := d.states[id]
	return s, ok
}

// Transitions returns every transition in declaration order
func (d *Definition) Transitions() []Transition {
	return append([]Transition(nil), d.all...)
}

// TransitionsFrom returns the transitions leaving a state
func (d *Definition) TransitionsFrom(id string) []Transition {
	return append([]Transition(nil), d.transitions[id]...)
}

// Events returns the distinct event names in declaration order
func (d *Definition) Events() []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range d.all {
		if !seen[t.Event] {
			seen[t.Event] = true
			out = append(out, t.Event)
		}
	}
	return out
}
