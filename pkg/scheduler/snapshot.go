package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/anggasct/junction/pkg/lanes"
	"github.com/anggasct/junction/pkg/signal"
)

// Snapshot is an immutable view of the world after a tick. It shares no
// memory with the scheduler.
type Snapshot struct {
	Tick           uint64               `json:"tick"`
	Elapsed        time.Duration        `json:"elapsed"`
	Lanes          []lanes.LaneSnapshot `json:"lanes"`
	Light          signal.Status        `json:"light"`
	TotalQueued    int                  `json:"totalQueued"`
	PendingRelease int                  `json:"pendingRelease"`
	PriorityActive bool                 `json:"priorityActive"`
	Fault          string               `json:"fault,omitempty"`
}

// Snapshot copies the current state
func (s *Scheduler) Snapshot() Snapshot {
	w := s.world
	laneViews := w.Lanes.Snapshot()

	snap := Snapshot{
		Tick:           w.tick,
		Elapsed:        w.elapsed,
		Lanes:          laneViews,
		Light:          w.Light.Status(),
		TotalQueued:    lo.SumBy(laneViews, func(l lanes.LaneSnapshot) int { return l.Length }),
		PendingRelease: len(w.released),
		PriorityActive: lo.SomeBy(laneViews, func(l lanes.LaneSnapshot) bool { return l.PriorityActive }),
	}
	if s.fault != nil {
		snap.Fault = s.fault.Error()
	}
	return snap
}

// Statistics renders the snapshot as the plain-text block shown next to the intersection
func (snap Snapshot) Statistics() string {
	var b strings.Builder

	b.WriteString("Lane Statistics\n")
	for _, lane := range snap.Lanes {
		fmt.Fprintf(&b, "%s (%s): %d", lane.ID, strings.ToLower(string(lane.Classification)), lane.Length)
		if lane.PriorityActive {
			b.WriteString(" [priority]")
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Total: %d vehicles\n", snap.TotalQueued)

	if snap.PriorityActive {
		active := lo.FilterMap(snap.Lanes, func(l lanes.LaneSnapshot, _ int) (string, bool) {
			return string(l.ID), l.PriorityActive
		})
		fmt.Fprintf(&b, "PRIORITY MODE ACTIVE: %s\n", strings.Join(active, ", "))
	}

	switch snap.Light.Phase {
	case signal.PhaseGreen:
		fmt.Fprintf(&b, "Traffic Light: GREEN %s (%.1fs left)\n",
			strings.ToUpper(string(snap.Light.Direction)), snap.Light.Remaining.Seconds())
	default:
		fmt.Fprintf(&b, "Traffic Light: ALL RED (%.1fs left)\n", snap.Light.Remaining.Seconds())
	}

	if snap.Fault != "" {
		fmt.Fprintf(&b, "FAULT: %s\n", snap.Fault)
	}
	return b.String()
}

// Statistics renders the current state as text
func (s *Scheduler) Statistics() string {
	return s.Snapshot().Statistics()
}
