package fsm

// ActionFunc runs on state entry, state exit or while taking a transition
type ActionFunc func(ctx Context) error

// GuardFunc decides whether a transition may fire
type GuardFunc func(ctx Context) bool

// State is a single atomic state of a machine definition
type State struct {
	id          string
	entryAction ActionFunc
	exitAction  ActionFunc
	final       bool
}

// NewState creates a new atomic state
func NewState(id string) *State {
	return &State{id: id}
}

// ID returns the state identifier
func (s *State) ID() string {
	return s.id
}

// IsFinal reports whether the state ends the machine
func (s *State) IsFinal() bool {
	return s.final
}

// HasEntryAction reports whether an entry action is attached
func (s *State) HasEntryAction() bool {
	return s.entryAction != nil
}

// HasExitAction reports whether an exit action is attached
func (s *State) HasExitAction() bool {
	return s.exitAction != nil
}

func (s *State) enter(ctx Context) error {
	if s.entryAction == nil {
		return nil
	}
	return safeExecuteAction(s.entryAction, ctx)
}

func (s *State) exit(ctx Context) error {
	if s.exitAction == nil {
		return nil
	}
	return safeExecuteAction(s.exitAction, ctx)
}

// Transition represents a state transition
type Transition struct {
	Source string
	Target string
	Event  string
	Guard  GuardFunc
	Action ActionFunc
}

// Guarded reports whether the transition carries a guard
func (t Transition) Guarded() bool {
	return t.Guard != nil
}
