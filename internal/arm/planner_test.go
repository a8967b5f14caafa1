package arm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rover/internal/hal/sim"
	"rover/pkg/types"
)

func newPlanner(t *testing.T, step int) (*Planner, *sim.Board) {
	t.Helper()
	table, err := NewPoseTable(DefaultPoses(), DefaultPresets())
	require.NoError(t, err)
	board := sim.NewBoard()
	return NewPlanner(board, table, step), board
}

func TestStartsAtHome(t *testing.T) {
	p, board := newPlanner(t, DefaultStepSize)
	assert.Equal(t, HomePose.Angles, p.Angles())
	assert.True(t, p.IsSettled())

	p.Sync()
	for j := 0; j < types.JointCount; j++ {
		assert.Equal(t, HomePose.Angles[j], board.Joint(j))
	}
}

func TestSetTargetClamps(t *testing.T) {
	p, _ := newPlanner(t, DefaultStepSize)
	got, err := p.SetTarget(0, 250)
	require.NoError(t, err)
	assert.Equal(t, 180, got)
	got, err = p.SetTarget(1, -10)
	require.NoError(t, err)
	assert.Equal(t, 0, got)

	_, err = p.SetTarget(6, 10)
	assert.ErrorIs(t, err, ErrInvalidJoint)
}

func TestTickBoundedStep(t *testing.T) {
	p, board := newPlanner(t, 3)
	_, err := p.SetTarget(0, 100)
	require.NoError(t, err)

	want := []int{93, 96, 99, 100}
	for _, w := range want {
		assert.False(t, p.IsSettled())
		p.Tick()
		assert.Equal(t, w, p.Angles()[0])
	}
	assert.True(t, p.IsSettled())
	assert.Equal(t, 0, p.Tick(), "settled arm does not move")

	writes := board.JointWrites()
	require.Len(t, writes, 4)
	assert.Equal(t, want, jointAngles(writes))
}

func TestEveryTickMovesAtMostOneStep(t *testing.T) {
	for step := MinStepSize; step <= MaxStepSize; step++ {
		p, _ := newPlanner(t, step)
		require.NoError(t, p.SetPose(Pose{Name: "x", Angles: types.Angles{0, 180, 17, 163, 0, 180}}))
		for !p.IsSettled() {
			before := p.Angles()
			p.Tick()
			after := p.Angles()
			for j := range after {
				d := after[j] - before[j]
				if d < 0 {
					d = -d
				}
				assert.LessOrEqual(t, d, step)
			}
		}
		assert.Equal(t, types.Angles{0, 180, 17, 163, 0, 180}, p.Angles())
	}
}

func TestPoseLookupIsCaseInsensitive(t *testing.T) {
	p, _ := newPlanner(t, DefaultStepSize)
	for _, name := range []string{"pick", "Pick", "PICK"} {
		pose, err := p.Pose([]byte(name))
		require.NoError(t, err)
		assert.Equal(t, "pick", pose.Name)
	}
	_, err := p.Pose([]byte("pickup"))
	assert.ErrorIs(t, err, ErrUnknownPose)

	pose, err := p.Preset(3)
	require.NoError(t, err)
	assert.Equal(t, "rest", pose.Name)
	_, err = p.Preset(9)
	assert.ErrorIs(t, err, ErrUnknownPose)
}

func TestBeginPoseSettlesExactly(t *testing.T) {
	p, _ := newPlanner(t, DefaultStepSize)
	clock := sim.NewClock()
	pick, err := p.Pose([]byte("Pick"))
	require.NoError(t, err)

	require.NoError(t, p.BeginPose(pick, clock.Now(), 3*time.Second))
	var ev TransitionEvent
	var name string
	for i := 0; i < 200 && ev == TransitionNone; i++ {
		ev, name = p.Advance(clock.Advance(20 * time.Millisecond))
	}
	assert.Equal(t, TransitionDone, ev)
	assert.Equal(t, "pick", name)
	assert.True(t, p.IsSettled())
	assert.Equal(t, pick.Angles, p.Angles())
	assert.False(t, p.InTransition())
}

func TestBeginPoseReportsPartial(t *testing.T) {
	p, _ := newPlanner(t, 1)
	clock := sim.NewClock()
	rest, err := p.Pose([]byte("rest"))
	require.NoError(t, err)

	require.NoError(t, p.BeginPose(rest, clock.Now(), 100*time.Millisecond))
	var ev TransitionEvent
	for i := 0; i < 10 && ev == TransitionNone; i++ {
		ev, _ = p.Advance(clock.Advance(20 * time.Millisecond))
	}
	assert.Equal(t, TransitionPartial, ev)
	assert.False(t, p.IsSettled())
}

func TestFreezePinsTargets(t *testing.T) {
	p, _ := newPlanner(t, DefaultStepSize)
	clock := sim.NewClock()
	rest, err := p.Pose([]byte("rest"))
	require.NoError(t, err)
	require.NoError(t, p.BeginPose(rest, clock.Now(), time.Second))
	p.Advance(clock.Advance(20 * time.Millisecond))
	p.Advance(clock.Advance(20 * time.Millisecond))

	p.Freeze()
	assert.Equal(t, p.Angles(), p.Targets())
	ev, name := p.Advance(clock.Advance(20 * time.Millisecond))
	assert.Equal(t, TransitionPartial, ev, "freeze preempts the transition")
	assert.Equal(t, "rest", name)

	frozenAt := p.Angles()
	for i := 0; i < 10; i++ {
		p.Tick()
	}
	assert.Equal(t, frozenAt, p.Angles())

	_, err = p.SetTarget(0, 10)
	assert.ErrorIs(t, err, ErrFrozen)
	assert.ErrorIs(t, p.SetPose(rest), ErrFrozen)
	assert.ErrorIs(t, p.Gripper(true), ErrFrozen)

	p.Unfreeze()
	_, err = p.SetTarget(0, 10)
	assert.NoError(t, err)
}

func TestDisableHoldsArmUntilEnable(t *testing.T) {
	p, _ := newPlanner(t, DefaultStepSize)
	_, err := p.SetTarget(0, 120)
	require.NoError(t, err)
	p.Tick()

	p.Disable()
	assert.False(t, p.Enabled())
	assert.Equal(t, p.Angles(), p.Targets())
	_, err = p.SetTarget(0, 10)
	assert.ErrorIs(t, err, ErrDisabled)
	assert.ErrorIs(t, p.Home(), ErrDisabled)
	assert.ErrorIs(t, p.Gripper(true), ErrDisabled)

	p.Freeze()
	_, err = p.SetTarget(0, 10)
	assert.ErrorIs(t, err, ErrFrozen, "the emergency reason wins")
	p.Unfreeze()
	_, err = p.SetTarget(0, 10)
	assert.ErrorIs(t, err, ErrDisabled, "unfreeze does not enable")

	p.Enable()
	got, err := p.SetTarget(0, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, got)
}

func TestToPose(t *testing.T) {
	p, _ := newPlanner(t, MaxStepSize)
	p.SetInterval(time.Millisecond)

	res, err := p.ToPose(context.Background(), "PICK", time.Second)
	require.NoError(t, err)
	assert.True(t, res.Settled)
	assert.Equal(t, "pick", res.Pose)
	pick, _ := p.Pose([]byte("pick"))
	assert.Equal(t, pick.Angles, p.Angles())
}

func TestToPoseBudgetElapses(t *testing.T) {
	p, _ := newPlanner(t, MinStepSize)
	p.SetInterval(5 * time.Millisecond)

	res, err := p.ToPose(context.Background(), "rest", 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrPosePartial)
	assert.False(t, res.Settled)
	assert.Positive(t, res.Remaining)
}

func TestToPoseUnknownAndCancelled(t *testing.T) {
	p, _ := newPlanner(t, MinStepSize)
	_, err := p.ToPose(context.Background(), "dance", time.Second)
	assert.ErrorIs(t, err, ErrUnknownPose)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.ToPose(ctx, "rest", time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGripperAndStep(t *testing.T) {
	p, _ := newPlanner(t, DefaultStepSize)
	require.NoError(t, p.Gripper(false))
	assert.Equal(t, GripperClose, p.Targets()[GripperJoint])
	require.NoError(t, p.Gripper(true))
	assert.Equal(t, GripperOpen, p.Targets()[GripperJoint])

	assert.Equal(t, MaxStepSize, p.SetStepSize(9))
	assert.Equal(t, MinStepSize, p.SetStepSize(0))
}

func TestPoseTableValidation(t *testing.T) {
	_, err := NewPoseTable([]Pose{{Name: "a"}, {Name: "A"}}, nil)
	assert.Error(t, err)
	_, err = NewPoseTable([]Pose{{Name: "bad", Angles: types.Angles{0, 0, 0, 0, 0, 181}}}, nil)
	assert.Error(t, err)
	_, err = NewPoseTable(DefaultPoses(), map[int]string{4: "wave"})
	assert.Error(t, err)

	table, err := NewPoseTable(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"home"}, table.Names())
}

func TestMergePoses(t *testing.T) {
	merged, err := MergePoses(DefaultPoses(), map[string][]int{
		"PICK": {10, 20, 30, 40, 50, 60},
		"wave": {90, 90, 90, 0, 0, 90},
	})
	require.NoError(t, err)
	table, err := NewPoseTable(merged, DefaultPresets())
	require.NoError(t, err)

	pick, err := table.Preset(1)
	require.NoError(t, err)
	assert.Equal(t, types.Angles{10, 20, 30, 40, 50, 60}, pick.Angles)
	_, err = table.Lookup([]byte("WAVE"))
	assert.NoError(t, err)

	_, err = MergePoses(nil, map[string][]int{"short": {1, 2}})
	assert.Error(t, err)
}

func jointAngles(ws []sim.JointWrite) []int {
	out := make([]int, len(ws))
	for i, w := range ws {
		out[i] = w.Angle
	}
	return out
}
