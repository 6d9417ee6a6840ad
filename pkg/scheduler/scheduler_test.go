package scheduler

import (
	"context"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anggasct/junction/pkg/core"
	"github.com/anggasct/junction/pkg/fsm"
	"github.com/anggasct/junction/pkg/lanes"
	"github.com/anggasct/junction/pkg/signal"
)

var epoch = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		Thresholds:     DefaultConfig().Thresholds,
		PerVehicleTime: 2 * time.Second,
		AllRed:         2 * time.Second,
		MinGreen:       4 * time.Second,
		MaxGreen:       40 * time.Second,
		ReleaseCap:     1,
	}
}

func newScheduler(t *testing.T, cfg Config, opts ...Option) *Scheduler {
	t.Helper()
	opts = append([]Option{WithLogger(testr.New(t)), WithEpoch(epoch)}, opts...)
	s, err := New(context.Background(), cfg, opts...)
	require.NoError(t, err)
	return s
}

func arrive(t *testing.T, s *Scheduler, lane core.LaneID, m core.Maneuver, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := s.Arrive(lane, m)
		require.NoError(t, err)
	}
}

func tick(t *testing.T, s *Scheduler, dt time.Duration) TickReport {
	t.Helper()
	report, err := s.Tick(context.Background(), dt)
	require.NoError(t, err)
	return report
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := Config{MaxGreen: time.Second, MinGreen: 2 * time.Second, MinGreenBeforePreempt: -1}
	err := bad.Validate()
	require.Error(t, err)
	assert.True(t, core.IsConfigurationError(err))
	for _, want := range []string{"per-vehicle", "all-red", "maximum green", "preemption", "release cap"} {
		assert.Contains(t, err.Error(), want)
	}

	_, err = New(context.Background(), bad)
	assert.Error(t, err)
}

func TestAdaptiveDuration(t *testing.T) {
	tests := []struct {
		name    string
		lengths []int
		want    time.Duration
	}{
		{"empty queues clamp to min", []int{0, 0}, 4 * time.Second},
		{"no lanes clamp to min", nil, 4 * time.Second},
		{"mean times per vehicle", []int{3, 5}, 8 * time.Second},
		{"fractional mean", []int{3, 0}, 4 * time.Second},
		{"clamped to max", []int{40, 40}, 40 * time.Second},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := AdaptiveDuration(tc.lengths, 2*time.Second, 4*time.Second, 40*time.Second)
			assert.Equal(t, tc.want, got)
		})
	}

	assert.Equal(t, 200*time.Second, AdaptiveDuration([]int{100}, 2*time.Second, time.Second, 0))
}

// Growing one lane while the others stay fixed never shortens the green.
func TestAdaptiveDuration_Monotone(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	for run := 0; run < 200; run++ {
		other := rng.Intn(30)
		prev := time.Duration(0)
		for n := 0; n < 60; n++ {
			d := AdaptiveDuration([]int{n, other}, 2*time.Second, 4*time.Second, 0)
			require.GreaterOrEqual(t, d, prev, "length %d other %d", n, other)
			prev = d
		}
	}
}

func TestTick_AllEmptyCyclesRoundRobinWithMinGreen(t *testing.T) {
	s := newScheduler(t, testConfig())

	var selected []core.Direction
	for i := 0; i < 40 && len(selected) < 5; i++ {
		r := tick(t, s, time.Second)
		if r.Selected != "" {
			assert.Equal(t, ReasonIdle, r.Reason)
			assert.Equal(t, 4*time.Second, r.GreenFor)
			selected = append(selected, r.Selected)
		}
	}

	assert.Equal(t, []core.Direction{core.North, core.East, core.South, core.West, core.North}, selected)
}

func TestTick_SkipsIdleDirections(t *testing.T) {
	s := newScheduler(t, testConfig())
	arrive(t, s, "C2", core.Straight, 2)

	tick(t, s, time.Second)
	r := tick(t, s, time.Second)

	assert.Equal(t, core.South, r.Selected)
	assert.Equal(t, ReasonRoundRobin, r.Reason)
	assert.Len(t, r.Released, 1)
}

// Green length is the mean queue of the direction's normal lanes times the
// per-vehicle time. The incoming-only lane neither lengthens the green nor
// wins the rotation on its own.
func TestTick_GreenDurationFollowsNormalLanes(t *testing.T) {
	tests := []struct {
		name     string
		queues   map[core.LaneID]int
		selected core.Direction
		reason   SelectionReason
		greenFor time.Duration
	}{
		{
			name:     "single normal lane",
			queues:   map[core.LaneID]int{"B2": 10},
			selected: core.East,
			reason:   ReasonRoundRobin,
			greenFor: 20 * time.Second,
		},
		{
			name:     "incoming lane is ignored",
			queues:   map[core.LaneID]int{"B1": 7, "B2": 10},
			selected: core.East,
			reason:   ReasonRoundRobin,
			greenFor: 20 * time.Second,
		},
		{
			name:     "free left lane is ignored",
			queues:   map[core.LaneID]int{"B2": 5, "B3": 4},
			selected: core.East,
			reason:   ReasonRoundRobin,
			greenFor: 10 * time.Second,
		},
		{
			name:     "clamped to maximum",
			queues:   map[core.LaneID]int{"D2": 30},
			selected: core.West,
			reason:   ReasonRoundRobin,
			greenFor: 40 * time.Second,
		},
		{
			name:     "incoming-only queue does not win the rotation",
			queues:   map[core.LaneID]int{"C1": 5, "D2": 3},
			selected: core.West,
			reason:   ReasonRoundRobin,
			greenFor: 6 * time.Second,
		},
		{
			name:     "incoming-only queue alone leaves the light idle",
			queues:   map[core.LaneID]int{"C1": 5},
			selected: core.North,
			reason:   ReasonIdle,
			greenFor: 4 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newScheduler(t, testConfig())
			for id, n := range tt.queues {
				arrive(t, s, id, core.Straight, n)
			}

			r := tick(t, s, 2*time.Second)

			assert.Equal(t, tt.selected, r.Selected)
			assert.Equal(t, tt.reason, r.Reason)
			assert.Equal(t, tt.greenFor, r.GreenFor)
			assert.Equal(t, tt.greenFor, s.World().Light.GreenFor())
		})
	}
}

func TestTick_FreeLeftReleasesDuringAllRed(t *testing.T) {
	s := newScheduler(t, testConfig())
	arrive(t, s, "A3", core.Left, 3)

	for i := 0; i < 3; i++ {
		r := tick(t, s, 500*time.Millisecond)
		assert.Equal(t, signal.PhaseAllRed, r.Phase)
		assert.Len(t, r.Released, 1)
	}

	n, err := s.World().Lanes.LengthOf("A3")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 3, s.World().Pending())
}

func TestTick_FreeLeftNonLeftHeadWaitsForGreen(t *testing.T) {
	s := newScheduler(t, testConfig())
	arrive(t, s, "B3", core.Straight, 1)
	arrive(t, s, "B3", core.Left, 1)
	arrive(t, s, "B2", core.Straight, 1)

	r := tick(t, s, time.Second)
	assert.Empty(t, r.Released)

	// East receives the green and the blocked head leaves with it.
	r = tick(t, s, time.Second)
	require.Equal(t, core.East, r.Selected)
	assert.Len(t, r.Released, 2)
}

func TestTick_PriorityPreemptsImmediately(t *testing.T) {
	s := newScheduler(t, testConfig())
	arrive(t, s, "B2", core.Straight, 3)

	tick(t, s, time.Second)
	r := tick(t, s, time.Second)
	require.Equal(t, core.East, r.Selected)

	arrive(t, s, "A2", core.Straight, 11)

	r = tick(t, s, time.Second)
	assert.True(t, s.World().Lanes.PriorityActive("A2"))
	assert.True(t, r.Preempted)
	assert.Equal(t, signal.PhaseAllRed, r.Phase)

	var next TickReport
	for i := 0; i < 5 && next.Selected == ""; i++ {
		next = tick(t, s, time.Second)
		assert.False(t, next.Preempted)
	}
	assert.Equal(t, core.North, next.Selected)
	assert.Equal(t, ReasonPriority, next.Reason)
}

func TestTick_PriorityWaitsForMinimumGreen(t *testing.T) {
	cfg := testConfig()
	cfg.MinGreenBeforePreempt = 3 * time.Second
	s := newScheduler(t, cfg)
	arrive(t, s, "D2", core.Straight, 3)
	arrive(t, s, "B2", core.Straight, 1)

	tick(t, s, time.Second)
	r := tick(t, s, time.Second)
	require.Equal(t, core.East, r.Selected)

	arrive(t, s, "A2", core.Straight, 11)

	assert.False(t, tick(t, s, time.Second).Preempted)
	assert.False(t, tick(t, s, time.Second).Preempted)
	assert.True(t, tick(t, s, time.Second).Preempted)

	// West had vehicles first, but the priority lane wins the next green.
	var next TickReport
	for i := 0; i < 5 && next.Selected == ""; i++ {
		next = tick(t, s, time.Second)
	}
	assert.Equal(t, core.North, next.Selected)
}

func TestTick_PriorityHysteresisReleasesRotation(t *testing.T) {
	s := newScheduler(t, testConfig())
	arrive(t, s, "A2", core.Straight, 11)
	arrive(t, s, "C2", core.Straight, 50)

	sawSouth := false
	for i := 0; i < 200; i++ {
		r := tick(t, s, time.Second)
		n, _ := s.World().Lanes.LengthOf("A2")
		if s.World().Lanes.PriorityActive("A2") {
			assert.NotEqual(t, core.South, r.Selected)
		} else if n < 5 && r.Selected == core.South {
			sawSouth = true
			break
		}
	}
	assert.True(t, sawSouth, "rotation never resumed after priority cleared")
}

// At most one direction is green per tick, and a change of green direction
// is always separated by at least one all-red tick.
func TestTick_RandomArrivalsKeepSignalInvariants(t *testing.T) {
	s := newScheduler(t, testConfig())
	rng := rand.New(rand.NewSource(9))
	ids := core.AllLanes()
	maneuvers := []core.Maneuver{core.Straight, core.Left, core.Right}

	var prev TickReport
	greens := 0
	for i := 0; i < 1500; i++ {
		for j := rng.Intn(3); j > 0; j-- {
			arrive(t, s, ids[rng.Intn(len(ids))], maneuvers[rng.Intn(3)], 1)
		}
		r := tick(t, s, 500*time.Millisecond)

		if r.Phase == signal.PhaseGreen {
			greens++
			if prev.Phase == signal.PhaseGreen {
				assert.Equal(t, prev.Green, r.Green, "tick %d switched green without all red", r.Tick)
			}
		}
		green := 0
		for _, c := range s.World().Light.Signals() {
			if c == signal.Green {
				green++
			}
		}
		require.LessOrEqual(t, green, 1)
		prev = r
		s.World().Drain()
	}
	assert.NotZero(t, greens)
}

func TestTick_FaultStateIsSticky(t *testing.T) {
	s := newScheduler(t, testConfig())
	tick(t, s, time.Second)
	r := tick(t, s, time.Second)
	require.Equal(t, signal.PhaseGreen, r.Phase)

	// Knock the machine back to all red behind the light's back.
	require.NoError(t, s.World().Light.Machine().Reset(context.Background()))

	_, err := s.Tick(context.Background(), time.Second)
	require.Error(t, err)
	assert.True(t, core.IsInvariantViolation(err))

	before := s.World().Tick()
	_, again := s.Tick(context.Background(), time.Second)
	assert.Equal(t, err, again)
	assert.Equal(t, before, s.World().Tick())
	assert.Equal(t, err, s.Fault())
	assert.Contains(t, s.Statistics(), "FAULT")
}

func TestWorld_Drain(t *testing.T) {
	s := newScheduler(t, testConfig())
	arrive(t, s, "A3", core.Left, 2)
	tick(t, s, 500*time.Millisecond)

	drained := s.World().Drain()
	require.Len(t, drained, 1)
	assert.Equal(t, core.Exited, drained[0].State)
	assert.Equal(t, epoch.Add(500*time.Millisecond), drained[0].ReleasedAt)
	assert.Zero(t, s.World().Pending())
	assert.Empty(t, s.World().Drain())
}

func TestScheduler_LightObservers(t *testing.T) {
	obs := fsm.NewTestObserver()
	s := newScheduler(t, testConfig(), WithLightObservers(obs), WithLaneOptions(lanes.WithLocking()))

	for i := 0; i < 8; i++ {
		tick(t, s, time.Second)
	}
	assert.NotZero(t, obs.TransitionCount())
}

func TestSnapshot(t *testing.T) {
	s := newScheduler(t, testConfig())
	arrive(t, s, "A2", core.Straight, 12)
	tick(t, s, time.Second)

	snap := s.Snapshot()

	want := Snapshot{
		Tick:    1,
		Elapsed: time.Second,
		Light: signal.Status{
			Phase:     signal.PhaseAllRed,
			Remaining: time.Second,
			Signals: map[core.Direction]signal.Color{
				core.North: signal.Red, core.East: signal.Red, core.South: signal.Red, core.West: signal.Red,
			},
		},
		TotalQueued:    12,
		PriorityActive: true,
	}
	for _, id := range core.AllLanes() {
		lane := lanes.LaneSnapshot{ID: id, Direction: id.Direction(), Classification: id.Classification()}
		if id == "A2" {
			lane.Length, lane.Ingested, lane.PriorityActive = 12, 12, true
		}
		want.Lanes = append(want.Lanes, lane)
	}

	if diff := cmp.Diff(want, snap); diff != "" {
		t.Errorf("Unexpected snapshot (-want +got):\n%s", diff)
	}

	// The snapshot is detached from the world.
	snap.Lanes[0].Length = 99
	assert.Zero(t, s.Snapshot().Lanes[0].Length)
}

func TestStatistics(t *testing.T) {
	s := newScheduler(t, testConfig())
	arrive(t, s, "A2", core.Straight, 11)
	arrive(t, s, "B1", core.Straight, 2)
	tick(t, s, time.Second)

	stats := s.Statistics()
	lines := strings.Split(strings.TrimSpace(stats), "\n")

	assert.Equal(t, "Lane Statistics", lines[0])
	assert.Contains(t, stats, "A2 (priority_eligible): 11 [priority]\n")
	assert.Contains(t, stats, "Total: 13 vehicles\n")
	assert.Contains(t, stats, "PRIORITY MODE ACTIVE: A2\n")
	assert.Equal(t, "Traffic Light: ALL RED (1.0s left)", lines[len(lines)-1])

	tick(t, s, time.Second)
	assert.Contains(t, s.Statistics(), "Traffic Light: GREEN NORTH")
}
