package scheduler

import (
	"time"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"
)

// AdaptiveDuration returns mean(lengths) * perVehicle clamped to
// [min, max]. A max of zero means no upper bound.
func AdaptiveDuration(lengths []int, perVehicle, min, max time.Duration) time.Duration {
	d := time.Duration(0)
	if len(lengths) > 0 {
		mean := stat.Mean(lo.Map(lengths, func(n int, _ int) float64 {
			return float64(n)
		}), nil)
		d = time.Duration(mean * float64(perVehicle))
	}
	if d < min {
		d = min
	}
	if max > 0 && d > max {
		d = max
	}
	return d
}
