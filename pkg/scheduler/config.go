package scheduler

import (
	"time"

	"go.uber.org/multierr"

	"github.com/anggasct/junction/pkg/core"
	"github.com/anggasct/junction/pkg/policy"
)

const (
	// DefaultPerVehicleTime is the green time granted per queued vehicle
	DefaultPerVehicleTime = 2 * time.Second
	// DefaultAllRed is the all-red buffer between two greens
	DefaultAllRed = 2 * time.Second
	// DefaultMinGreen keeps empty directions cycling
	DefaultMinGreen = 4 * time.Second
	// DefaultMaxGreen bounds a single green
	DefaultMaxGreen = 40 * time.Second
	// DefaultReleaseCap is the per-lane discharge per tick
	DefaultReleaseCap = 1
)

// Config holds the scheduler constants. They are read-only after construction.
type Config struct {
	Thresholds     policy.Thresholds
	PerVehicleTime time.Duration
	AllRed         time.Duration
	MinGreen       time.Duration
	// MaxGreen of zero leaves the adaptive duration unbounded
	MaxGreen time.Duration
	// MinGreenBeforePreempt is how long a green must have run before an
	// active priority lane on another direction may cut it short
	MinGreenBeforePreempt time.Duration
	ReleaseCap            int
}

// DefaultConfig returns the standard scheduler constants
func DefaultConfig() Config {
	return Config{
		Thresholds:     policy.DefaultThresholds(),
		PerVehicleTime: DefaultPerVehicleTime,
		AllRed:         DefaultAllRed,
		MinGreen:       DefaultMinGreen,
		MaxGreen:       DefaultMaxGreen,
		ReleaseCap:     DefaultReleaseCap,
	}
}

// Validate reports every invalid field at once
func (c Config) Validate() error {
	var errs error
	if err := c.Thresholds.Validate(); err != nil {
		errs = multierr.Append(errs, err)
	}
	if c.PerVehicleTime <= 0 {
		errs = multierr.Append(errs, core.NewConfigurationError("scheduler", "per-vehicle time must be positive"))
	}
	if c.AllRed <= 0 {
		errs = multierr.Append(errs, core.NewConfigurationError("scheduler", "all-red interval must be positive"))
	}
	if c.MinGreen <= 0 {
		errs = multierr.Append(errs, core.NewConfigurationError("scheduler", "minimum green must be positive"))
	}
	if c.MaxGreen != 0 && c.MaxGreen < c.MinGreen {
		errs = multierr.Append(errs, core.NewConfigurationError("scheduler", "maximum green is below minimum green"))
	}
	if c.MinGreenBeforePreempt < 0 {
		errs = multierr.Append(errs, core.NewConfigurationError("scheduler", "minimum green before preemption must not be negative"))
	}
	if c.ReleaseCap < 1 {
		errs = multierr.Append(errs, core.NewConfigurationError("scheduler", "release cap must be at least 1"))
	}
	return errs
}
