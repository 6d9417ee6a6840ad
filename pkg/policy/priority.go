// Package policy decides when a congested lane takes over the rotation.
package policy

import (
	"fmt"

	"github.com/anggasct/junction/pkg/core"
)

const (
	// DefaultPriorityOn activates priority when the queue is strictly longer
	DefaultPriorityOn = 10
	// DefaultPriorityOff clears priority when the queue is strictly shorter
	DefaultPriorityOff = 5
)

// Thresholds holds the hysteresis band for priority activation
type Thresholds struct {
	On  int `json:"on"`
	Off int `json:"off"`
}

// DefaultThresholds returns the standard 10/5 band
func DefaultThresholds() Thresholds {
	return Thresholds{On: DefaultPriorityOn, Off: DefaultPriorityOff}
}

// Validate rejects bands that would make the flag oscillate
func (t Thresholds) Validate() error {
	if t.On < 0 || t.Off < 0 {
		return core.NewConfigurationError("priority", "thresholds must be non-negative")
	}
	if t.Off > t.On {
		return core.NewConfigurationError("priority",
			fmt.Sprintf("off threshold %d exceeds on threshold %d", t.Off, t.On))
	}
	return nil
}

// Evaluate returns the priority flag after observing the current queue length.
// Once active the flag holds until the length drops below Off.
func (t Thresholds) Evaluate(length int, active bool) bool {
	switch {
	case !active && length > t.On:
		return true
	case active && length < t.Off:
		return false
	default:
		return active
	}
}

// Evaluate applies the default thresholds
func Evaluate(length int, active bool) bool {
	return DefaultThresholds().Evaluate(length, active)
}
