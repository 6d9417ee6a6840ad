// Package config holds the process configuration of junction. Values are
// read from a YAML file and may be overridden by command-line flags.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"
	"sigs.k8s.io/yaml"

	"github.com/anggasct/junction/pkg/core"
	"github.com/anggasct/junction/pkg/ingest"
	"github.com/anggasct/junction/pkg/policy"
	"github.com/anggasct/junction/pkg/scheduler"
)

// Duration is a time.Duration written as a string such as "2s"
type Duration time.Duration

// Duration returns the value as a time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// MarshalJSON encodes the duration in time.Duration notation
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts "1.5s" strings or plain nanoseconds
func (d *Duration) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		*d = Duration(time.Duration(v))
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration %s", b)
	}
	return nil
}

// PriorityConfig holds the congestion hysteresis band
type PriorityConfig struct {
	On  int `json:"on"`
	Off int `json:"off"`
}

// IngestConfig locates the arrival file
type IngestConfig struct {
	Path         string `json:"path"`
	OffsetPath   string `json:"offsetPath,omitempty"`
	Watch        bool   `json:"watch"`
	MaxReadBytes int    `json:"maxReadBytes"`
}

// HTTPConfig configures the read-only snapshot server
type HTTPConfig struct {
	// Address is empty to disable the server
	Address string `json:"address"`
}

// Config is the full process configuration
type Config struct {
	Priority              PriorityConfig `json:"priority"`
	PerVehicleTime        Duration       `json:"perVehicleTime"`
	AllRed                Duration       `json:"allRed"`
	MinGreen              Duration       `json:"minGreen"`
	MaxGreen              Duration       `json:"maxGreen"`
	MinGreenBeforePreempt Duration       `json:"minGreenBeforePreempt"`
	ReleaseCap            int            `json:"releaseCap"`

	// TickInterval is the wall-clock period of the tick loop
	TickInterval Duration `json:"tickInterval"`
	// TimeScale multiplies the simulated time advanced per tick
	TimeScale float64 `json:"timeScale"`

	Ingest IngestConfig `json:"ingest"`
	HTTP   HTTPConfig   `json:"http"`
}

// Defaults returns the standard configuration
func Defaults() Config {
	sched := scheduler.DefaultConfig()
	return Config{
		Priority:              PriorityConfig{On: sched.Thresholds.On, Off: sched.Thresholds.Off},
		PerVehicleTime:        Duration(sched.PerVehicleTime),
		AllRed:                Duration(sched.AllRed),
		MinGreen:              Duration(sched.MinGreen),
		MaxGreen:              Duration(sched.MaxGreen),
		MinGreenBeforePreempt: Duration(sched.MinGreenBeforePreempt),
		ReleaseCap:            sched.ReleaseCap,
		TickInterval:          Duration(100 * time.Millisecond),
		TimeScale:             1,
		Ingest: IngestConfig{
			Path:         "arrivals.log",
			Watch:        true,
			MaxReadBytes: ingest.DefaultMaxReadBytes,
		},
		HTTP: HTTPConfig{Address: ":8080"},
	}
}

// Load reads a YAML file on top of Defaults. Unknown fields are rejected.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML or JSON on top of Defaults
func Parse(data []byte) (Config, error) {
	cfg := Defaults()
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return Config{}, core.NewConfigurationError("config", err.Error())
	}
	return cfg, nil
}

// Marshal encodes the configuration as YAML
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Scheduler returns the scheduler constants
func (c Config) Scheduler() scheduler.Config {
	return scheduler.Config{
		Thresholds:            policy.Thresholds{On: c.Priority.On, Off: c.Priority.Off},
		PerVehicleTime:        time.Duration(c.PerVehicleTime),
		AllRed:                time.Duration(c.AllRed),
		MinGreen:              time.Duration(c.MinGreen),
		MaxGreen:              time.Duration(c.MaxGreen),
		MinGreenBeforePreempt: time.Duration(c.MinGreenBeforePreempt),
		ReleaseCap:            c.ReleaseCap,
	}
}

// IngestOptions returns the arrival ingestor options
func (c Config) IngestOptions() ingest.Options {
	offsets := c.Ingest.OffsetPath
	if offsets == "" && c.Ingest.Path != "" {
		offsets = c.Ingest.Path + ".offset"
	}
	return ingest.Options{
		Path:         c.Ingest.Path,
		OffsetPath:   offsets,
		MaxReadBytes: c.Ingest.MaxReadBytes,
	}
}

// SimulatedStep returns the simulated time advanced by one tick
func (c Config) SimulatedStep() time.Duration {
	return time.Duration(float64(c.TickInterval) * c.TimeScale)
}

// Validate reports every invalid field at once
func (c Config) Validate() error {
	errs := c.Scheduler().Validate()
	if c.TickInterval <= 0 {
		errs = multierr.Append(errs, core.NewConfigurationError("config", "tick interval must be positive"))
	}
	if c.TimeScale <= 0 {
		errs = multierr.Append(errs, core.NewConfigurationError("config", "time scale must be positive"))
	}
	if c.Ingest.Path == "" {
		errs = multierr.Append(errs, core.NewConfigurationError("config", "ingest path is required"))
	}
	if c.Ingest.MaxReadBytes < 0 {
		errs = multierr.Append(errs, core.NewConfigurationError("config", "max read bytes must not be negative"))
	}
	return errs
}
