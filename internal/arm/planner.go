// Package arm plans the motion of the six arm joints. Each tick every joint
// moves toward its target by at most one step.
package arm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rover/internal/hal"
	"rover/internal/logging"
	"rover/pkg/types"
)

const (
	DefaultStepSize = 3
	MinStepSize     = 1
	MaxStepSize     = 5

	GripperJoint = 5
	GripperOpen  = 180
	GripperClose = 0

	// DefaultTickInterval paces ToPose when no interval is configured.
	DefaultTickInterval = 20 * time.Millisecond
)

var (
	ErrFrozen       = errors.New("arm frozen by emergency stop")
	ErrDisabled     = errors.New("arm disabled")
	ErrInvalidJoint = errors.New("invalid joint")
	ErrPosePartial  = errors.New("pose transition incomplete")
)

// Joint is the state of one joint in degrees.
type Joint struct {
	ID      int
	Current int
	Target  int
}

// PoseResult describes a finished or abandoned pose transition.
type PoseResult struct {
	Pose    string
	Settled bool
	Ticks   int
	Elapsed time.Duration
	// Remaining is the largest distance, in degrees, still to travel.
	Remaining int
}

// TransitionEvent is reported by Advance when a tracked pose transition ends.
type TransitionEvent int

const (
	TransitionNone TransitionEvent = iota
	TransitionDone
	TransitionPartial
)

type transition struct {
	active    bool
	pose      string
	started   time.Time
	deadline  time.Time
	preempted bool
}

// Planner owns the joint states.
type Planner struct {
	out      hal.JointOutput
	poses    *PoseTable
	joints   [types.JointCount]Joint
	step     int
	interval time.Duration
	frozen   bool
	disabled bool
	trans    transition
	logger   *logging.Logger
}

// NewPlanner creates a planner with every joint at the home pose of the table.
func NewPlanner(out hal.JointOutput, poses *PoseTable, step int) *Planner {
	p := &Planner{
		out:      out,
		poses:    poses,
		step:     clamp(step, MinStepSize, MaxStepSize),
		interval: DefaultTickInterval,
		logger:   logging.GetLogger("arm"),
	}
	home, err := poses.Lookup([]byte(HomePose.Name))
	if err != nil {
		home = HomePose
	}
	for i := range p.joints {
		p.joints[i] = Joint{ID: i, Current: home.Angles[i], Target: home.Angles[i]}
	}
	return p
}

// SetInterval sets the pacing used by ToPose.
func (p *Planner) SetInterval(d time.Duration) {
	if d > 0 {
		p.interval = d
	}
}

// Sync writes every current angle to the hardware.
func (p *Planner) Sync() {
	for i := range p.joints {
		_ = p.out.WriteJointAngle(i, p.joints[i].Current)
	}
}

// SetTarget records a target angle, clamped to the joint limits. It returns
// the angle actually recorded.
func (p *Planner) SetTarget(joint, angle int) (int, error) {
	if joint < 0 || joint >= types.JointCount {
		return 0, fmt.Errorf("%w: %d", ErrInvalidJoint, joint+1)
	}
	if err := p.accepting(); err != nil {
		return p.joints[joint].Target, err
	}
	angle = clamp(angle, types.MinAngle, types.MaxAngle)
	p.joints[joint].Target = angle
	return angle, nil
}

// Tick advances every joint toward its target by at most one step and
// writes the joints that moved. It returns how many joints moved.
func (p *Planner) Tick() int {
	moved := 0
	for i := range p.joints {
		j := &p.joints[i]
		diff := j.Target - j.Current
		if diff == 0 {
			continue
		}
		switch {
		case diff > p.step:
			j.Current += p.step
		case diff < -p.step:
			j.Current -= p.step
		default:
			j.Current = j.Target
		}
		// write failures are counted and logged by the HAL
		_ = p.out.WriteJointAngle(i, j.Current)
		moved++
	}
	return moved
}

// IsSettled reports whether every joint is within one step of its target.
// Tick snaps such joints onto the target, so a settled arm has reached it.
func (p *Planner) IsSettled() bool {
	for _, j := range p.joints {
		if j.Current != j.Target {
			return false
		}
	}
	return true
}

// Pose finds a pose by name.
func (p *Planner) Pose(name []byte) (Pose, error) {
	return p.poses.Lookup(name)
}

// Preset finds a pose by preset number.
func (p *Planner) Preset(n int) (Pose, error) {
	return p.poses.Preset(n)
}

// Poses returns the pose table.
func (p *Planner) Poses() *PoseTable {
	return p.poses
}

// SetPose sets all six targets at once.
func (p *Planner) SetPose(pose Pose) error {
	if err := p.accepting(); err != nil {
		return err
	}
	for i := range p.joints {
		p.joints[i].Target = clamp(pose.Angles[i], types.MinAngle, types.MaxAngle)
	}
	return nil
}

// BeginPose starts a tracked transition. Advance reports its outcome.
func (p *Planner) BeginPose(pose Pose, now time.Time, budget time.Duration) error {
	if err := p.SetPose(pose); err != nil {
		return err
	}
	p.trans = transition{active: true, pose: pose.Name, started: now, deadline: now.Add(budget)}
	return nil
}

// Advance ticks the joints and checks the tracked transition. It returns the
// transition's end event and its pose name when one ends.
func (p *Planner) Advance(now time.Time) (TransitionEvent, string) {
	p.Tick()
	if !p.trans.active {
		return TransitionNone, ""
	}
	name := p.trans.pose
	switch {
	case p.trans.preempted:
		p.trans = transition{}
		return TransitionPartial, name
	case p.IsSettled():
		p.trans = transition{}
		return TransitionDone, name
	case !now.Before(p.trans.deadline):
		p.logger.Warn("Pose transition exceeded budget", "pose", name, "remaining", p.remaining())
		p.trans = transition{}
		return TransitionPartial, name
	}
	return TransitionNone, ""
}

// InTransition reports whether a tracked pose transition is running.
func (p *Planner) InTransition() bool {
	return p.trans.active
}

// ToPose moves to a named pose and waits until the joints settle, the budget
// elapses, ctx is done or the planner is frozen. It ticks on its own interval
// and must not run while another goroutine ticks the planner.
func (p *Planner) ToPose(ctx context.Context, name string, budget time.Duration) (PoseResult, error) {
	pose, err := p.poses.Lookup([]byte(name))
	if err != nil {
		return PoseResult{Pose: name}, fmt.Errorf("%w: %s", err, name)
	}
	if err := p.SetPose(pose); err != nil {
		return PoseResult{Pose: pose.Name}, err
	}

	start := time.Now()
	timer := time.NewTimer(budget)
	defer timer.Stop()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	result := PoseResult{Pose: pose.Name}
	for {
		if p.IsSettled() {
			result.Settled = true
			result.Elapsed = time.Since(start)
			return result, nil
		}
		if err := p.accepting(); err != nil {
			return p.partial(result, start), err
		}
		select {
		case <-ctx.Done():
			return p.partial(result, start), ctx.Err()
		case <-timer.C:
			return p.partial(result, start), ErrPosePartial
		case <-ticker.C:
			p.Tick()
			result.Ticks++
		}
	}
}

func (p *Planner) partial(result PoseResult, start time.Time) PoseResult {
	result.Elapsed = time.Since(start)
	result.Remaining = p.remaining()
	return result
}

// Home targets the home pose.
func (p *Planner) Home() error {
	pose, err := p.poses.Lookup([]byte(HomePose.Name))
	if err != nil {
		pose = HomePose
	}
	return p.SetPose(pose)
}

// Gripper opens or closes the gripper.
func (p *Planner) Gripper(open bool) error {
	angle := GripperClose
	if open {
		angle = GripperOpen
	}
	_, err := p.SetTarget(GripperJoint, angle)
	return err
}

// SetStepSize clamps and sets the per-tick step, returning the value used.
func (p *Planner) SetStepSize(step int) int {
	p.step = clamp(step, MinStepSize, MaxStepSize)
	return p.step
}

func (p *Planner) StepSize() int { return p.step }

// Freeze holds every joint where it is and preempts any transition. Targets
// stay pinned until Unfreeze.
func (p *Planner) Freeze() {
	p.pin()
	if !p.frozen {
		p.logger.Warn("Arm frozen")
	}
	p.frozen = true
}

// Unfreeze accepts targets again.
func (p *Planner) Unfreeze() {
	if p.frozen {
		p.logger.Info("Arm released")
	}
	p.frozen = false
}

func (p *Planner) Frozen() bool { return p.frozen }

// Disable holds the arm like Freeze but until Enable, independent of the
// emergency latch.
func (p *Planner) Disable() {
	p.pin()
	if !p.disabled {
		p.logger.Info("Arm disabled")
	}
	p.disabled = true
}

// Enable accepts targets again after Disable.
func (p *Planner) Enable() {
	if p.disabled {
		p.logger.Info("Arm enabled")
	}
	p.disabled = false
}

func (p *Planner) Enabled() bool { return !p.disabled }

// accepting reports why new targets are refused, frozen first.
func (p *Planner) accepting() error {
	switch {
	case p.frozen:
		return ErrFrozen
	case p.disabled:
		return ErrDisabled
	}
	return nil
}

func (p *Planner) pin() {
	for i := range p.joints {
		p.joints[i].Target = p.joints[i].Current
	}
	if p.trans.active {
		p.trans.preempted = true
	}
}

// Joints returns a copy of every joint state.
func (p *Planner) Joints() [types.JointCount]Joint { return p.joints }

// Angles returns every current angle.
func (p *Planner) Angles() types.Angles {
	var a types.Angles
	for i, j := range p.joints {
		a[i] = j.Current
	}
	return a
}

// Targets returns every target angle.
func (p *Planner) Targets() types.Angles {
	var a types.Angles
	for i, j := range p.joints {
		a[i] = j.Target
	}
	return a
}

func (p *Planner) remaining() int {
	worst := 0
	for _, j := range p.joints {
		d := j.Target - j.Current
		if d < 0 {
			d = -d
		}
		if d > worst {
			worst = d
		}
	}
	return worst
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
