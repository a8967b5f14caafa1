package robot

import (
	"time"

	"rover/internal/protocol"
	"rover/pkg/types"
)

// Self-test timing. The motor test runs every wheel forward then reverse;
// the servo test swings every joint to both test angles and back.
const (
	testMotorSpeed = 50
	testMotorDwell = 1500 * time.Millisecond

	testServoLow    = 45
	testServoHigh   = 135
	testServoDwell  = time.Second
	testServoReturn = 500 * time.Millisecond
)

// selfTest runs TEST_MOTORS or TEST_SERVOS one step per dwell, advanced by
// the tick. kind is KindUnknown while idle.
type selfTest struct {
	kind  protocol.Kind
	step  int
	until time.Time
	saved types.Angles
}

func (t *selfTest) active() bool { return t.kind != protocol.KindUnknown }

func (t *selfTest) steps() int {
	if t.kind == protocol.KindTestMotors {
		return 2 * types.WheelCount
	}
	return 3 * types.JointCount
}

func (r *Robot) startTest(kind protocol.Kind) error {
	r.abortTest(protocol.KindUnknown)
	r.test = selfTest{kind: kind, saved: r.arm.Targets()}
	r.logger.Info("Self-test started", "test", kind.String())
	if err := r.runTestStep(); err != nil {
		r.test = selfTest{}
		return err
	}
	return nil
}

// advanceTest moves the running self-test on once its step has dwelt. The
// motor test keeps the watchdog fed and gives way to collision risk.
func (r *Robot) advanceTest(now time.Time) {
	if !r.test.active() {
		return
	}
	if r.test.kind == protocol.KindTestMotors {
		if r.safety.Enabled() && (r.safety.Classification(types.SideFront) == types.CollisionRisk ||
			r.safety.Classification(types.SideRear) == types.CollisionRisk) {
			r.abortTest(protocol.KindTestMotors)
			return
		}
		r.watchdog.Accept(now)
	}
	if now.Before(r.test.until) {
		return
	}
	r.test.step++
	if r.test.step >= r.test.steps() {
		r.finishTest()
		return
	}
	if err := r.runTestStep(); err != nil {
		r.abortTest(r.test.kind)
	}
}

func (r *Robot) runTestStep() error {
	step := r.test.step
	if r.test.kind == protocol.KindTestMotors {
		speed := testMotorSpeed
		if step%2 == 1 {
			speed = -testMotorSpeed
		}
		r.motion.SpinWheel(types.Wheel(step/2), speed)
		r.test.until = r.now.Add(testMotorDwell)
		return nil
	}

	joint := step / 3
	angle, dwell := testServoLow, testServoDwell
	switch step % 3 {
	case 1:
		angle = testServoHigh
	case 2:
		angle, dwell = r.test.saved[joint], testServoReturn
	}
	if _, err := r.arm.SetTarget(joint, angle); err != nil {
		return err
	}
	r.test.until = r.now.Add(dwell)
	return nil
}

func (r *Robot) finishTest() {
	kind := r.test.kind
	r.test = selfTest{}
	if kind == protocol.KindTestMotors {
		r.motion.Stop()
		r.broadcastPair("TEST_MOTORS_DONE", "")
	} else {
		r.broadcastPair("TEST_SERVOS_DONE", "")
	}
	r.logger.Info("Self-test finished", "test", kind.String())
}

// abortTest cancels the running self-test when it is of kind, or any test
// for KindUnknown. An aborted motor test leaves the wheels stopped.
func (r *Robot) abortTest(kind protocol.Kind) {
	if !r.test.active() || (kind != protocol.KindUnknown && kind != r.test.kind) {
		return
	}
	running := r.test.kind
	r.test = selfTest{}
	if running == protocol.KindTestMotors {
		r.motion.Stop()
		r.broadcastPair("TEST_MOTORS_ABORTED", "")
	} else {
		r.broadcastPair("TEST_SERVOS_ABORTED", "")
	}
	r.logger.Warn("Self-test aborted", "test", running.String())
}
