// Command junction runs the intersection scheduler against an append-only
// arrival file and serves read-only snapshots over HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/anggasct/junction/pkg/config"
	"github.com/anggasct/junction/pkg/core"
	"github.com/anggasct/junction/pkg/fsm"
	"github.com/anggasct/junction/pkg/ingest"
	"github.com/anggasct/junction/pkg/logging"
	"github.com/anggasct/junction/pkg/metrics"
	"github.com/anggasct/junction/pkg/observers"
	"github.com/anggasct/junction/pkg/scheduler"
	"github.com/anggasct/junction/pkg/server"
	"github.com/anggasct/junction/pkg/signal"
	"github.com/anggasct/junction/pkg/simulation"
	"github.com/anggasct/junction/visualization"
)

func main() {
	opts := config.NewOptions()
	opts.AddFlags(pflag.CommandLine)
	exportDOT := pflag.String("export-dot", "", "Write the traffic light machine as a DOT graph to this file and exit.")
	pflag.Parse()

	if err := opts.Complete(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := logging.NewLogger(logging.Options{Verbosity: opts.LogVerbosity, Development: opts.Development})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := opts.Validate(); err != nil {
		logging.Fatal(logger, err, "Invalid configuration")
	}

	def, err := signal.Definition()
	if err != nil {
		logging.Fatal(logger, err, "Failed to build traffic light definition")
	}
	if *exportDOT != "" {
		if err := visualization.NewDOTGenerator(def).GenerateToFile(*exportDOT); err != nil {
			logging.Fatal(logger, err, "Failed to export DOT graph", "path", *exportDOT)
		}
		return
	}

	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.IntoContext(ctx, logger)

	if err := run(ctx, opts.Config, def); err != nil {
		logging.Fatal(logger, err, "Simulation failed")
	}
}

func run(ctx context.Context, cfg config.Config, def *fsm.Definition) error {
	logger := logging.FromContext(ctx)
	metrics.Register()

	validator := observers.NewDefinitionValidator(def)
	sched, err := scheduler.New(ctx, cfg.Scheduler(),
		scheduler.WithLogger(logger),
		scheduler.WithLightObservers(
			observers.NewLoggingObserver(logger.WithName("signal")),
			observers.NewMetricsObserver(),
			validator,
		))
	if err != nil {
		return err
	}

	ing, err := ingest.New(cfg.IngestOptions())
	if err != nil {
		return err
	}

	runner := simulation.NewRunner(sched,
		simulation.WithInterval(cfg.TickInterval.Duration()),
		simulation.WithStep(cfg.SimulatedStep()),
		simulation.WithIngestor(ing, cfg.Ingest.Watch),
		simulation.WithConsumer(func(exited []core.Vehicle) {
			logger.V(logging.TRACE).Info("Vehicles exited", "count", len(exited))
		}))

	services := []simulation.Service{runner}
	if cfg.HTTP.Address != "" {
		services = append(services, server.New(runner.Publisher(), server.WithAddress(cfg.HTTP.Address)))
	}

	err = simulation.RunAll(ctx, services...)
	if validator.HasViolations() {
		logger.Error(nil, "Traffic light took undeclared transitions", "violations", validator.Violations())
	}
	stats := ing.Stats()
	logger.Info("Shut down", "ticks", sched.World().Tick(), "records", stats.Records, "malformed", stats.Malformed)
	return err
}
