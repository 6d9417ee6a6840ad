package signal

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anggasct/junction/pkg/core"
	"github.com/anggasct/junction/pkg/fsm"
)

const allRed = 2 * time.Second

func newLight(t *testing.T, opts ...Option) *Light {
	t.Helper()
	opts = append(opts, WithLogger(testr.New(t)))
	l, err := New(context.Background(), allRed, opts...)
	require.NoError(t, err)
	return l
}

func TestNew_StartsAllRed(t *testing.T) {
	l := newLight(t)

	assert.Equal(t, PhaseAllRed, l.Phase())
	assert.Equal(t, allRed, l.Remaining())
	assert.False(t, l.Expired())
	for _, d := range core.Directions {
		assert.Equal(t, Red, l.Signals()[d])
	}
	assert.NoError(t, l.Verify())

	_, err := New(context.Background(), 0)
	assert.True(t, core.IsConfigurationError(err))
}

func TestSwitchTo_RejectedBeforeAllRedElapses(t *testing.T) {
	ctx := context.Background()
	l := newLight(t)

	l.Advance(time.Second)
	err := l.SwitchTo(ctx, core.North, 5*time.Second)
	assert.True(t, fsm.IsGuardRejected(err))
	assert.Equal(t, PhaseAllRed, l.Phase())

	l.Advance(time.Second)
	require.NoError(t, l.SwitchTo(ctx, core.North, 5*time.Second))
	d, ok := l.Direction()
	assert.True(t, ok)
	assert.Equal(t, core.North, d)
	assert.Equal(t, 5*time.Second, l.Remaining())
	assert.Equal(t, Green, l.Signals()[core.North])
	assert.NoError(t, l.Verify())
}

func TestSwitchTo_SameDirectionIsNoop(t *testing.T) {
	ctx := context.Background()
	l := newLight(t)
	l.Advance(allRed)
	require.NoError(t, l.SwitchTo(ctx, core.East, 4*time.Second))
	l.Advance(time.Second)

	require.NoError(t, l.SwitchTo(ctx, core.East, 9*time.Second))
	assert.Equal(t, 3*time.Second, l.Remaining())
	assert.Equal(t, time.Second, l.GreenElapsed())
}

func TestSwitchTo_NeverGreenToGreen(t *testing.T) {
	ctx := context.Background()
	l := newLight(t)
	l.Advance(allRed)
	require.NoError(t, l.SwitchTo(ctx, core.East, 4*time.Second))

	err := l.SwitchTo(ctx, core.West, 4*time.Second)
	assert.True(t, fsm.IsTransitionRejected(err))
	d, _ := l.Direction()
	assert.Equal(t, core.East, d)
}

func TestSwitchTo_InvalidDirection(t *testing.T) {
	l := newLight(t)
	err := l.SwitchTo(context.Background(), core.Direction("up"), time.Second)
	assert.True(t, core.IsInvalidDirection(err))
}

func TestEndGreen(t *testing.T) {
	ctx := context.Background()
	l := newLight(t)

	// No-op in all red.
	require.NoError(t, l.EndGreen(ctx))
	assert.Equal(t, allRed, l.Remaining())

	l.Advance(allRed)
	require.NoError(t, l.SwitchTo(ctx, core.South, 6*time.Second))
	l.Advance(2 * time.Second)
	require.NoError(t, l.EndGreen(ctx))

	assert.Equal(t, PhaseAllRed, l.Phase())
	assert.Equal(t, allRed, l.Remaining())
	assert.Equal(t, Red, l.Signals()[core.South])
	assert.Zero(t, l.GreenElapsed())
	assert.NoError(t, l.Verify())
}

func TestStop_RejectsLaterSwitches(t *testing.T) {
	ctx := context.Background()
	obs := fsm.NewTestObserver()
	l := newLight(t, WithObserver(obs))

	require.NoError(t, l.Stop(ctx))
	assert.False(t, l.Machine().Started())
	assert.Equal(t, 1, obs.Stopped)
	assert.Equal(t, []string{StateAllRed}, obs.StateExits)

	l.Advance(allRed)
	assert.True(t, fsm.IsMachineNotStarted(l.SwitchTo(ctx, core.North, 5*time.Second)))
	assert.Equal(t, PhaseAllRed, l.Phase())

	assert.True(t, fsm.IsMachineNotStarted(l.Stop(ctx)))
}

func TestAdvance_ClampsAtZero(t *testing.T) {
	l := newLight(t)
	l.Advance(10 * time.Second)
	assert.Zero(t, l.Remaining())
	assert.True(t, l.Expired())

	l.Advance(-time.Second)
	assert.Zero(t, l.Remaining())
}

// Every change between two green directions passes through all red, and at
// most one direction is ever green.
func TestLight_RandomDriveKeepsInvariants(t *testing.T) {
	ctx := context.Background()
	obs := fsm.NewTestObserver()
	l := newLight(t, WithObserver(obs))
	rng := rand.New(rand.NewSource(3))

	for step := 0; step < 2000; step++ {
		switch rng.Intn(3) {
		case 0:
			l.Advance(time.Duration(rng.Intn(1500)) * time.Millisecond)
		case 1:
			d := core.Directions[rng.Intn(len(core.Directions))]
			_ = l.SwitchTo(ctx, d, time.Duration(1+rng.Intn(5))*time.Second)
		case 2:
			_ = l.EndGreen(ctx)
		}
		require.NoError(t, l.Verify())
	}

	require.NotZero(t, obs.TransitionCount())
	for _, tr := range obs.Transitions {
		if tr.From != StateAllRed {
			assert.Equal(t, StateAllRed, tr.To, "transition %s -> %s skipped all red", tr.From, tr.To)
		}
	}
}

func TestVerify_DetectsTwoGreens(t *testing.T) {
	ctx := context.Background()
	l := newLight(t)
	l.Advance(allRed)
	require.NoError(t, l.SwitchTo(ctx, core.North, time.Second))

	l.signals[core.West] = Green
	err := l.Verify()
	assert.True(t, core.IsInvariantViolation(err))
}

func TestVerify_DetectsStateMismatch(t *testing.T) {
	l := newLight(t)
	l.direction = core.East
	assert.True(t, core.IsInvariantViolation(l.Verify()))
}

func TestDefinition(t *testing.T) {
	def, err := Definition()
	require.NoError(t, err)

	assert.Equal(t, StateAllRed, def.InitialState())
	assert.Len(t, def.StateIDs(), 5)
	assert.Len(t, def.TransitionsFrom(StateAllRed), 4)
	for _, d := range core.Directions {
		from := def.TransitionsFrom(GreenState(d))
		require.Len(t, from, 1)
		assert.Equal(t, StateAllRed, from[0].Target)
	}
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	l := newLight(t)
	l.Advance(allRed)
	require.NoError(t, l.SwitchTo(ctx, core.West, 3*time.Second))

	st := l.Status()
	assert.Equal(t, PhaseGreen, st.Phase)
	assert.Equal(t, core.West, st.Direction)
	assert.Equal(t, 3*time.Second, st.GreenFor)

	st.Signals[core.West] = Red
	assert.Equal(t, Green, l.Signals()[core.West])
}
