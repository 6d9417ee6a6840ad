package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/anggasct/junction/pkg/logging"
)

// Options contains the command-line configuration of the junction process.
type Options struct {
	ConfigFile   string // Optional YAML file loaded before flags are applied.
	LogVerbosity int    // Number for the log level verbosity.
	Development  bool   // Human-readable console logs.

	// Config is the effective configuration after Complete.
	Config Config

	// flags holds the flag-bound values; only flags that were set override the file
	flags Config
	fs    *pflag.FlagSet
}

// NewOptions returns a new Options struct initialized with default values.
func NewOptions() *Options {
	return &Options{
		LogVerbosity: logging.DEFAULT,
		Config:       Defaults(),
		flags:        Defaults(),
	}
}

// overrides copies a flag-bound field into the effective configuration
var overrides = map[string]func(dst, src *Config){
	"priority-on":              func(d, s *Config) { d.Priority.On = s.Priority.On },
	"priority-off":             func(d, s *Config) { d.Priority.Off = s.Priority.Off },
	"per-vehicle-time":         func(d, s *Config) { d.PerVehicleTime = s.PerVehicleTime },
	"all-red":                  func(d, s *Config) { d.AllRed = s.AllRed },
	"min-green":                func(d, s *Config) { d.MinGreen = s.MinGreen },
	"max-green":                func(d, s *Config) { d.MaxGreen = s.MaxGreen },
	"min-green-before-preempt": func(d, s *Config) { d.MinGreenBeforePreempt = s.MinGreenBeforePreempt },
	"release-cap":              func(d, s *Config) { d.ReleaseCap = s.ReleaseCap },
	"tick-interval":            func(d, s *Config) { d.TickInterval = s.TickInterval },
	"time-scale":               func(d, s *Config) { d.TimeScale = s.TimeScale },
	"arrivals":                 func(d, s *Config) { d.Ingest.Path = s.Ingest.Path },
	"offset-file":              func(d, s *Config) { d.Ingest.OffsetPath = s.Ingest.OffsetPath },
	"watch":                    func(d, s *Config) { d.Ingest.Watch = s.Ingest.Watch },
	"max-read-bytes":           func(d, s *Config) { d.Ingest.MaxReadBytes = s.Ingest.MaxReadBytes },
	"http-address":             func(d, s *Config) { d.HTTP.Address = s.HTTP.Address },
}

// AddFlags binds the Options fields to command-line flags on the given FlagSet.
func (opts *Options) AddFlags(fs *pflag.FlagSet) {
	if fs == nil {
		fs = pflag.CommandLine
	}
	opts.fs = fs
	f := &opts.flags

	fs.StringVar(&opts.ConfigFile, "config", opts.ConfigFile,
		"Path to a YAML configuration file. Flags override its values.")
	fs.IntVarP(&opts.LogVerbosity, "v", "v", opts.LogVerbosity,
		"Number for the log level verbosity.")
	fs.BoolVar(&opts.Development, "development", opts.Development,
		"Use human-readable console logs.")

	fs.IntVar(&f.Priority.On, "priority-on", f.Priority.On,
		"Queue length above which a priority lane takes over.")
	fs.IntVar(&f.Priority.Off, "priority-off", f.Priority.Off,
		"Queue length below which a priority lane gives the rotation back.")
	fs.DurationVar((*time.Duration)(&f.PerVehicleTime), "per-vehicle-time", time.Duration(f.PerVehicleTime),
		"Green time granted per queued vehicle.")
	fs.DurationVar((*time.Duration)(&f.AllRed), "all-red", time.Duration(f.AllRed),
		"All-red interval between two greens.")
	fs.DurationVar((*time.Duration)(&f.MinGreen), "min-green", time.Duration(f.MinGreen),
		"Minimum green duration.")
	fs.DurationVar((*time.Duration)(&f.MaxGreen), "max-green", time.Duration(f.MaxGreen),
		"Maximum green duration. 0 means unbounded.")
	fs.DurationVar((*time.Duration)(&f.MinGreenBeforePreempt), "min-green-before-preempt", time.Duration(f.MinGreenBeforePreempt),
		"How long a green runs before a priority lane may preempt it.")
	fs.IntVar(&f.ReleaseCap, "release-cap", f.ReleaseCap,
		"Vehicles released per lane per tick.")
	fs.DurationVar((*time.Duration)(&f.TickInterval), "tick-interval", time.Duration(f.TickInterval),
		"Wall-clock period of the tick loop.")
	fs.Float64Var(&f.TimeScale, "time-scale", f.TimeScale,
		"Simulated seconds per wall-clock second.")
	fs.StringVar(&f.Ingest.Path, "arrivals", f.Ingest.Path,
		"Append-only arrival file written by the generator.")
	fs.StringVar(&f.Ingest.OffsetPath, "offset-file", f.Ingest.OffsetPath,
		"Sidecar file for the consumed offset. Defaults to <arrivals>.offset.")
	fs.BoolVar(&f.Ingest.Watch, "watch", f.Ingest.Watch,
		"Watch the arrival file instead of reading it every tick.")
	fs.IntVar(&f.Ingest.MaxReadBytes, "max-read-bytes", f.Ingest.MaxReadBytes,
		"Upper bound of arrival bytes read per tick.")
	fs.StringVar(&f.HTTP.Address, "http-address", f.HTTP.Address,
		"Listen address of the snapshot server. Empty disables it.")
}

// Complete loads the configuration file and applies the flags that were set.
func (opts *Options) Complete() error {
	cfg := Defaults()
	if opts.ConfigFile != "" {
		loaded, err := Load(opts.ConfigFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	if opts.fs != nil {
		opts.fs.Visit(func(flag *pflag.Flag) {
			if apply, ok := overrides[flag.Name]; ok {
				apply(&cfg, &opts.flags)
			}
		})
	}
	opts.Config = cfg
	return nil
}

// Validate checks the Options for invalid or conflicting values.
func (opts *Options) Validate() error {
	if opts.LogVerbosity < 0 {
		return fmt.Errorf("invalid value %d for flag %q: must be >= 0", opts.LogVerbosity, "v")
	}
	return opts.Config.Validate()
}
