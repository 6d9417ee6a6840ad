// Package scheduler drives the intersection: each tick it updates lane
// congestion, runs the light, picks the next green and releases vehicles.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/samber/lo"

	"github.com/anggasct/junction/pkg/core"
	"github.com/anggasct/junction/pkg/fsm"
	"github.com/anggasct/junction/pkg/lanes"
	"github.com/anggasct/junction/pkg/logging"
	"github.com/anggasct/junction/pkg/metrics"
	"github.com/anggasct/junction/pkg/signal"
)

// SelectionReason explains why a direction received the green
type SelectionReason string

const (
	// ReasonPriority means an active priority lane claimed the green
	ReasonPriority SelectionReason = "priority"
	// ReasonRoundRobin means the next direction with waiting vehicles was chosen
	ReasonRoundRobin SelectionReason = "round_robin"
	// ReasonIdle means every queue was empty and rotation continued regardless
	ReasonIdle SelectionReason = "idle"
)

// TickReport summarizes what one tick did
type TickReport struct {
	Tick      uint64          `json:"tick"`
	Elapsed   time.Duration   `json:"elapsed"`
	Phase     signal.Phase    `json:"phase"`
	Green     core.Direction  `json:"green,omitempty"`
	Selected  core.Direction  `json:"selected,omitempty"`
	Reason    SelectionReason `json:"reason,omitempty"`
	GreenFor  time.Duration   `json:"greenFor,omitempty"`
	Preempted bool            `json:"preempted,omitempty"`
	Released  []string        `json:"released,omitempty"`
}

// Option configures a Scheduler
type Option func(*options)

type options struct {
	logger         logr.Logger
	epoch          time.Time
	laneOptions    []lanes.Option
	lightObservers []fsm.Observer
}

// WithLogger sets the scheduler logger
func WithLogger(logger logr.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEpoch sets the simulated start time used for vehicle timestamps
func WithEpoch(epoch time.Time) Option {
	return func(o *options) {
		o.epoch = epoch
	}
}

// WithLaneOptions passes options to the lane table
func WithLaneOptions(opts ...lanes.Option) Option {
	return func(o *options) {
		o.laneOptions = append(o.laneOptions, opts...)
	}
}

// WithLightObservers attaches fsm observers to the traffic light
func WithLightObservers(observers ...fsm.Observer) Option {
	return func(o *options) {
		o.lightObservers = append(o.lightObservers, observers...)
	}
}

// Scheduler is the intersection orchestrator. Ticks must be issued from a
// single goroutine.
type Scheduler struct {
	cfg    Config
	world  *World
	logger logr.Logger

	// next is the round-robin position in core.Directions
	next  int
	fault error
}

// New validates cfg and builds a scheduler with an empty world
func New(ctx context.Context, cfg Config, opts ...Option) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{
		logger: logr.Discard(),
		epoch:  time.Now(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.WithName("scheduler")

	lightOpts := []signal.Option{signal.WithLogger(logger.WithName("signal"))}
	for _, obs := range o.lightObservers {
		lightOpts = append(lightOpts, signal.WithObserver(obs))
	}
	light, err := signal.New(ctx, cfg.AllRed, lightOpts...)
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		cfg:    cfg,
		logger: logger,
		world: &World{
			Lanes: lanes.NewTable(o.laneOptions...),
			Light: light,
			epoch: o.epoch,
		},
	}, nil
}

// World returns the state owned by the scheduler
func (s *Scheduler) World() *World {
	return s.world
}

// Config returns the scheduler constants
func (s *Scheduler) Config() Config {
	return s.cfg
}

// Fault returns the invariant violation that stopped the scheduler, if any
func (s *Scheduler) Fault() error {
	return s.fault
}

// Tick advances the simulation by dt.
//
// Once an invariant violation has been detected every later tick returns the
// same error without touching the world.
func (s *Scheduler) Tick(ctx context.Context, dt time.Duration) (TickReport, error) {
	if s.fault != nil {
		return TickReport{}, s.fault
	}

	w := s.world
	logger := s.logger.WithValues("tick", w.tick+1)
	ctx = logging.IntoContext(ctx, logger)

	w.tick++
	w.elapsed += dt
	report := TickReport{Tick: w.tick, Elapsed: w.elapsed}
	metrics.RecordTick()

	s.evaluatePriority(logger)

	w.Light.Advance(dt)

	if green, ok := w.Light.Direction(); ok {
		priority, active := s.activePriority()
		switch {
		case active && priority.Direction() != green && w.Light.GreenElapsed() >= s.cfg.MinGreenBeforePreempt:
			if err := w.Light.EndGreen(ctx); err != nil {
				logger.Error(err, "Failed to preempt green", "direction", green)
			} else {
				report.Preempted = true
				metrics.RecordPreemption()
				logger.V(logging.VERBOSE).Info("Green preempted", "direction", green, "priorityLane", priority)
			}
		case w.Light.Expired():
			if err := w.Light.EndGreen(ctx); err != nil {
				logger.Error(err, "Failed to end green", "direction", green)
			}
		}
	}

	if w.Light.Phase() == signal.PhaseAllRed && w.Light.Expired() {
		next, reason := s.selectNext()
		green := AdaptiveDuration(w.Lanes.Lengths(w.Lanes.Normal(next)),
			s.cfg.PerVehicleTime, s.cfg.MinGreen, s.cfg.MaxGreen)

		if err := w.Light.SwitchTo(ctx, next, green); err != nil {
			logger.Error(err, "Failed to switch light", "direction", next)
		} else {
			report.Selected, report.Reason, report.GreenFor = next, reason, green
			metrics.RecordSelection(string(next), string(reason), green)
			logger.V(logging.VERBOSE).Info("Green selected", "direction", next, "reason", reason, "duration", green)
		}
	}

	report.Released = s.release(logger)

	report.Phase = w.Light.Phase()
	report.Green, _ = w.Light.Direction()
	s.recordGauges()

	if err := w.Light.Verify(); err != nil {
		s.fault = err
		metrics.RecordFault()
		logger.Error(err, "Scheduler entered fault state")
		return report, err
	}
	return report, nil
}

// Stop halts the light so observers see the machine stop
func (s *Scheduler) Stop(ctx context.Context) error {
	return s.world.Light.Stop(ctx)
}

// evaluatePriority re-runs the hysteresis policy for every priority lane
func (s *Scheduler) evaluatePriority(logger logr.Logger) {
	table := s.world.Lanes
	for _, id := range table.PriorityLanes() {
		length, err := table.LengthOf(id)
		if err != nil {
			length = 0
		}
		before := table.PriorityActive(id)
		after := s.cfg.Thresholds.Evaluate(length, before)
		if after == before {
			continue
		}
		if err := table.SetPriorityActive(id, after); err != nil {
			logger.Error(err, "Failed to update priority flag", "lane", id)
			continue
		}
		logger.V(logging.DEFAULT).Info("Priority changed", "lane", id, "active", after, "length", length)
	}
}

// activePriority returns the active priority lane with the longest queue
func (s *Scheduler) activePriority() (core.LaneID, bool) {
	table := s.world.Lanes
	active := lo.Filter(table.PriorityLanes(), func(id core.LaneID, _ int) bool {
		return table.PriorityActive(id)
	})
	if len(active) == 0 {
		return "", false
	}
	return lo.MaxBy(active, func(a, b core.LaneID) bool {
		la, _ := table.LengthOf(a)
		lb, _ := table.LengthOf(b)
		return la > lb
	}), true
}

// selectNext picks the direction for the next green. A priority selection
// does not move the round-robin position.
func (s *Scheduler) selectNext() (core.Direction, SelectionReason) {
	if id, ok := s.activePriority(); ok {
		return id.Direction(), ReasonPriority
	}

	table := s.world.Lanes
	n := len(core.Directions)
	anyWaiting := lo.SomeBy(core.Directions, func(d core.Direction) bool {
		return table.NormalQueue(d) > 0
	})

	for i := 0; i < n; i++ {
		idx := (s.next + i) % n
		d := core.Directions[idx]
		if anyWaiting && table.NormalQueue(d) == 0 {
			continue
		}
		s.next = (idx + 1) % n
		if !anyWaiting {
			return d, ReasonIdle
		}
		return d, ReasonRoundRobin
	}

	// Unreachable while core.Directions is non-empty.
	d := core.Directions[s.next]
	s.next = (s.next + 1) % n
	return d, ReasonIdle
}

// release discharges the green direction's gated lanes and every free-left lane
func (s *Scheduler) release(logger logr.Logger) []string {
	w := s.world
	now := w.Now()
	var ids []string

	collect := func(id core.LaneID, released []*core.Vehicle, err error) {
		if err != nil {
			logger.Error(err, "Release skipped", "lane", id)
			return
		}
		for _, v := range released {
			ids = append(ids, v.ID)
		}
		w.released = append(w.released, released...)
		metrics.RecordReleased(string(id), len(released))
	}

	green, isGreen := w.Light.Direction()
	if isGreen {
		for _, id := range w.Lanes.Gated(green) {
			released, err := w.Lanes.Release(id, s.cfg.ReleaseCap, now)
			collect(id, released, err)
		}
	}

	for _, id := range w.Lanes.FreeLeftLanes() {
		pred := turningLeft
		if isGreen && id.Direction() == green {
			pred = nil
		}
		released, err := w.Lanes.ReleaseWhile(id, s.cfg.ReleaseCap, now, pred)
		collect(id, released, err)
	}

	if len(ids) > 0 {
		logger.V(logging.TRACE).Info("Released vehicles", "count", len(ids))
	}
	return ids
}

func turningLeft(v *core.Vehicle) bool {
	return v.Maneuver == core.Left
}

func (s *Scheduler) recordGauges() {
	w := s.world
	for _, lane := range w.Lanes.Snapshot() {
		metrics.RecordLaneState(string(lane.ID), lane.Length, lane.PriorityActive)
	}
	green, _ := w.Light.Direction()
	metrics.RecordSignalGreen(lo.Map(core.Directions, func(d core.Direction, _ int) string {
		return string(d)
	}), string(green))
}

// Arrive enqueues a new vehicle stamped with the simulated clock
func (s *Scheduler) Arrive(lane core.LaneID, maneuver core.Maneuver) (*core.Vehicle, error) {
	v := core.NewVehicle(lane, maneuver, s.world.Now())
	if err := s.world.Lanes.Ingest(lane, v); err != nil {
		return nil, fmt.Errorf("ingesting vehicle: %w", err)
	}
	metrics.RecordArrival(string(lane))
	return v, nil
}
