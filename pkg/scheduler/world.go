package scheduler

import (
	"time"

	"github.com/anggasct/junction/pkg/core"
	"github.com/anggasct/junction/pkg/lanes"
	"github.com/anggasct/junction/pkg/signal"
)

// World is the whole mutable simulation state, owned by one Scheduler
type World struct {
	Lanes *lanes.Table
	Light *signal.Light

	epoch    time.Time
	elapsed  time.Duration
	tick     uint64
	released []*core.Vehicle
}

// Now returns the simulated wall time
func (w *World) Now() time.Time {
	return w.epoch.Add(w.elapsed)
}

// Elapsed returns the simulated time since start
func (w *World) Elapsed() time.Duration {
	return w.elapsed
}

// Tick returns the number of completed ticks
func (w *World) Tick() uint64 {
	return w.tick
}

// Pending returns how many released vehicles have not been drained yet
func (w *World) Pending() int {
	return len(w.released)
}

// Drain hands the released vehicles to the downstream consumer. They leave
// the core as EXITED and the release set is emptied.
func (w *World) Drain() []core.Vehicle {
	out := make([]core.Vehicle, 0, len(w.released))
	for _, v := range w.released {
		v.State = core.Exited
		out = append(out, *v)
	}
	w.released = nil
	return out
}
