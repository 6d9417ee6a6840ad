// Package signal implements the intersection traffic light on top of the fsm engine.
//
// The light is either ALL_RED or GREEN for exactly one direction. Switching
// between two green directions always passes through ALL_RED, and a green can
// only begin once the all-red interval has fully elapsed.
package signal

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/anggasct/junction/pkg/core"
	"github.com/anggasct/junction/pkg/fsm"
	"github.com/anggasct/junction/pkg/logging"
)

// Phase is the coarse state of the light
type Phase string

const (
	PhaseAllRed Phase = "ALL_RED"
	PhaseGreen  Phase = "GREEN"
)

// Color is the aspect shown to one direction
type Color string

const (
	Red   Color = "RED"
	Green Color = "GREEN"
)

const (
	// StateAllRed is the fsm state id of the all-red phase
	StateAllRed = "all_red"

	// EventEndGreen ends the current green
	EventEndGreen = "end_green"
)

// GreenState returns the fsm state id for a green direction
func GreenState(d core.Direction) string {
	return "green_" + string(d)
}

// GreenEvent returns the fsm event that requests green for a direction
func GreenEvent(d core.Direction) string {
	return "green:" + string(d)
}

// Status is an immutable view of the light
type Status struct {
	Phase     Phase                    `json:"phase"`
	Direction core.Direction           `json:"direction,omitempty"`
	Remaining time.Duration            `json:"remaining"`
	GreenFor  time.Duration            `json:"greenFor,omitempty"`
	Signals   map[core.Direction]Color `json:"signals"`
}

// Option configures a Light
type Option func(*Light)

// WithObserver attaches an fsm observer to the underlying machine
func WithObserver(observer fsm.Observer) Option {
	return func(l *Light) {
		l.observers = append(l.observers, observer)
	}
}

// WithLogger sets the logger used for phase changes
func WithLogger(logger logr.Logger) Option {
	return func(l *Light) {
		l.logger = logger
	}
}

// Light is the traffic-light state machine. It is not safe for concurrent use.
type Light struct {
	allRed time.Duration

	machine   *fsm.Machine
	observers []fsm.Observer
	logger    logr.Logger

	direction    core.Direction
	remaining    time.Duration
	greenFor     time.Duration
	greenElapsed time.Duration
	signals      map[core.Direction]Color
}

// New creates a light in ALL_RED with the all-red timer armed
func New(ctx context.Context, allRed time.Duration, opts ...Option) (*Light, error) {
	if allRed <= 0 {
		return nil, core.NewConfigurationError("signal", "all-red interval must be positive")
	}

	l := &Light{
		allRed:  allRed,
		logger:  logr.Discard(),
		signals: make(map[core.Direction]Color, len(core.Directions)),
	}
	for _, d := range core.Directions {
		l.signals[d] = Red
	}
	for _, opt := range opts {
		opt(l)
	}

	def, err := l.definition()
	if err != nil {
		return nil, fmt.Errorf("building signal machine: %w", err)
	}
	l.machine = def.NewInstance()
	for _, observer := range l.observers {
		l.machine.AddObserver(observer)
	}
	if err := l.machine.Start(l.withLogger(ctx)); err != nil {
		return nil, fmt.Errorf("starting signal machine: %w", err)
	}
	return l, nil
}

// Definition returns the machine declaration of a light, for export and inspection
func Definition() (*fsm.Definition, error) {
	l := &Light{signals: make(map[core.Direction]Color)}
	return l.definition()
}

func (l *Light) definition() (*fsm.Definition, error) {
	b := fsm.NewMachine()

	allRed := b.State(StateAllRed).Initial().OnEntry(l.enterAllRed)
	for _, d := range core.Directions {
		allRed.To(GreenState(d)).On(GreenEvent(d)).When(l.allRedElapsed)
	}

	for _, d := range core.Directions {
		b.State(GreenState(d)).
			OnEntry(l.enterGreen(d)).
			OnExit(l.exitGreen(d)).
			To(StateAllRed).On(EventEndGreen)
	}
	return b.Build()
}

func (l *Light) allRedElapsed(fsm.Context) bool {
	return l.remaining <= 0
}

func (l *Light) enterAllRed(ctx fsm.Context) error {
	l.direction = ""
	l.remaining = l.allRed
	l.greenFor = 0
	l.greenElapsed = 0
	logging.FromContext(ctx).V(logging.DEBUG).Info("All red", "duration", l.allRed)
	return nil
}

func (l *Light) enterGreen(d core.Direction) fsm.ActionFunc {
	return func(ctx fsm.Context) error {
		green, _ := ctx.EventData().(time.Duration)
		l.direction = d
		l.signals[d] = Green
		l.remaining = green
		l.greenFor = green
		l.greenElapsed = 0
		logging.FromContext(ctx).V(logging.DEBUG).Info("Green", "direction", d, "duration", green)
		return nil
	}
}

func (l *Light) exitGreen(d core.Direction) fsm.ActionFunc {
	return func(fsm.Context) error {
		l.signals[d] = Red
		return nil
	}
}

func (l *Light) withLogger(ctx context.Context) context.Context {
	if _, err := logr.FromContext(ctx); err == nil {
		return ctx
	}
	return logr.NewContext(ctx, l.logger)
}

// Advance runs the phase timer down by dt
func (l *Light) Advance(dt time.Duration) {
	if dt <= 0 {
		return
	}
	l.remaining -= dt
	if l.remaining < 0 {
		l.remaining = 0
	}
	if l.direction != "" {
		l.greenElapsed += dt
	}
}

// SwitchTo starts a green for d lasting green. Requesting the direction that
// is already green is a no-op. Any other request while green, or a request
// before the all-red interval has elapsed, is rejected with a transition error.
func (l *Light) SwitchTo(ctx context.Context, d core.Direction, green time.Duration) error {
	if !d.Valid() {
		return core.NewInvalidDirectionError(d, "switch")
	}
	if l.direction == d {
		return nil
	}
	return fsm.ErrResult(l.machine.HandleEvent(l.withLogger(ctx), GreenEvent(d), green))
}

// EndGreen moves a green light to ALL_RED and arms the all-red timer.
// It does nothing while already ALL_RED.
func (l *Light) EndGreen(ctx context.Context) error {
	if l.direction == "" {
		return nil
	}
	return fsm.ErrResult(l.machine.HandleEvent(l.withLogger(ctx), EventEndGreen, nil))
}

// Stop halts the underlying machine. Later switches are rejected.
func (l *Light) Stop(ctx context.Context) error {
	return l.machine.Stop(l.withLogger(ctx))
}

// Phase returns the coarse light state
func (l *Light) Phase() Phase {
	if l.direction == "" {
		return PhaseAllRed
	}
	return PhaseGreen
}

// Direction returns the green direction, if any
func (l *Light) Direction() (core.Direction, bool) {
	return l.direction, l.direction != ""
}

// Remaining returns the time left in the current phase
func (l *Light) Remaining() time.Duration {
	return l.remaining
}

// Expired reports whether the current phase timer has run out
func (l *Light) Expired() bool {
	return l.remaining <= 0
}

// GreenFor returns the duration the current green was granted
func (l *Light) GreenFor() time.Duration {
	return l.greenFor
}

// GreenElapsed returns how long the current green has been shown
func (l *Light) GreenElapsed() time.Duration {
	return l.greenElapsed
}

// AllRed returns the configured all-red interval
func (l *Light) AllRed() time.Duration {
	return l.allRed
}

// Signals returns a copy of the per-direction aspects
func (l *Light) Signals() map[core.Direction]Color {
	out := make(map[core.Direction]Color, len(l.signals))
	for d, c := range l.signals {
		out[d] = c
	}
	return out
}

// Status returns an immutable view of the light
func (l *Light) Status() Status {
	return Status{
		Phase:     l.Phase(),
		Direction: l.direction,
		Remaining: l.remaining,
		GreenFor:  l.greenFor,
		Signals:   l.Signals(),
	}
}

// Machine exposes the underlying state machine
func (l *Light) Machine() *fsm.Machine {
	return l.machine
}

// Verify checks that at most one direction is green and that the aspects
// agree with the machine state.
func (l *Light) Verify() error {
	var greens []core.Direction
	for _, d := range core.Directions {
		if l.signals[d] == Green {
			greens = append(greens, d)
		}
	}
	if len(greens) > 1 {
		return core.NewInvariantError("signal", fmt.Sprintf("directions %v are green at once", greens))
	}

	state := l.machine.CurrentState()
	switch {
	case state == StateAllRed:
		if len(greens) != 0 || l.direction != "" {
			return core.NewInvariantError("signal", fmt.Sprintf("%s shows green during all red", greens))
		}
	case len(greens) != 1 || state != GreenState(greens[0]) || l.direction != greens[0]:
		return core.NewInvariantError("signal",
			fmt.Sprintf("state %s disagrees with aspects %v", state, l.signals))
	}
	return nil
}
