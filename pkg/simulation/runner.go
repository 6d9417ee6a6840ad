// Package simulation runs the tick loop: each tick ingests new arrivals,
// advances the scheduler, drains released vehicles and publishes a snapshot.
package simulation

import (
	"context"
	"errors"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/anggasct/junction/pkg/core"
	"github.com/anggasct/junction/pkg/ingest"
	"github.com/anggasct/junction/pkg/logging"
	"github.com/anggasct/junction/pkg/scheduler"
)

// Service is a long-running component stopped by cancelling its context
type Service interface {
	Run(ctx context.Context) error
}

// Consumer receives the vehicles that left the intersection during a tick
type Consumer func(exited []core.Vehicle)

// Option configures a Runner
type Option func(*Runner)

// WithInterval sets the wall-clock tick period
func WithInterval(d time.Duration) Option {
	return func(r *Runner) {
		r.interval = d
	}
}

// WithStep sets the simulated time advanced per tick
func WithStep(d time.Duration) Option {
	return func(r *Runner) {
		r.step = d
	}
}

// WithIngestor reads arrivals before every tick
func WithIngestor(i *ingest.Ingestor, watch bool) Option {
	return func(r *Runner) {
		r.ingestor = i
		r.watch = watch
	}
}

// WithConsumer receives drained vehicles
func WithConsumer(c Consumer) Option {
	return func(r *Runner) {
		r.consumer = c
	}
}

// WithPublisher publishes a snapshot after every tick
func WithPublisher(p *Publisher) Option {
	return func(r *Runner) {
		r.publisher = p
	}
}

// Runner owns the scheduler and is the only goroutine that mutates it
type Runner struct {
	sched     *scheduler.Scheduler
	ingestor  *ingest.Ingestor
	watch     bool
	publisher *Publisher
	consumer  Consumer
	interval  time.Duration
	step      time.Duration
}

// NewRunner creates a runner around sched
func NewRunner(sched *scheduler.Scheduler, opts ...Option) *Runner {
	r := &Runner{
		sched:     sched,
		publisher: NewPublisher(),
		interval:  100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.step <= 0 {
		r.step = r.interval
	}
	r.publisher.Publish(sched.Snapshot())
	return r
}

// Publisher returns the snapshot publisher
func (r *Runner) Publisher() *Publisher {
	return r.publisher
}

// Scheduler returns the scheduler driven by the runner
func (r *Runner) Scheduler() *scheduler.Scheduler {
	return r.sched
}

// Step runs one tick. Ingest failures are logged and the tick proceeds; a
// scheduler fault is returned.
func (r *Runner) Step(ctx context.Context) (scheduler.TickReport, error) {
	logger := logging.FromContext(ctx)
	world := r.sched.World()

	if r.ingestor != nil {
		n, err := r.ingestor.Ingest(ctx, world.Lanes, world.Now())
		if err != nil {
			logger.Error(err, "Failed to read arrivals")
		}
		if n > 0 {
			logger.V(logging.DEBUG).Info("Ingested arrivals", "count", n)
		}
	}

	report, err := r.sched.Tick(ctx, r.step)

	exited := world.Drain()
	if r.consumer != nil && len(exited) > 0 {
		r.consumer(exited)
	}
	r.publisher.Publish(r.sched.Snapshot())
	return report, err
}

// Run ticks until ctx is cancelled or the scheduler faults. The tick in
// flight when ctx is cancelled completes before Run returns.
func (r *Runner) Run(ctx context.Context) error {
	logger := logging.FromContext(ctx).WithName("runner")
	ctx = logging.IntoContext(ctx, logger)

	if r.ingestor != nil && r.watch {
		if err := r.ingestor.Watch(ctx); err != nil {
			logger.Error(err, "Falling back to polling the arrival file")
		}
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	logger.Info("Simulation started", "interval", r.interval, "step", r.step)
	for {
		select {
		case <-ctx.Done():
			logger.Info("Simulation stopped", "ticks", r.sched.World().Tick())
			if err := r.sched.Stop(context.WithoutCancel(ctx)); err != nil {
				logger.Error(err, "Failed to stop signal machine")
			}
			return nil
		case <-ticker.C:
			report, err := r.Step(ctx)
			if err != nil {
				return err
			}
			logTick(logger, report)
		}
	}
}

func logTick(logger logr.Logger, report scheduler.TickReport) {
	if report.Selected != "" || report.Preempted {
		logger.V(logging.VERBOSE).Info("Tick", "tick", report.Tick, "selected", report.Selected,
			"reason", report.Reason, "greenFor", report.GreenFor, "preempted", report.Preempted)
		return
	}
	logger.V(logging.TRACE).Info("Tick", "tick", report.Tick, "phase", report.Phase, "released", len(report.Released))
}

// RunAll runs every service until one fails or ctx is cancelled, then waits
// for all of them to return.
func RunAll(ctx context.Context, services ...Service) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range services {
		svc := svc
		g.Go(func() error {
			if err := svc.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}
