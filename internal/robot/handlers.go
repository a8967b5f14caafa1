package robot

import (
	"errors"

	"rover/internal/arm"
	"rover/internal/link"
	"rover/internal/logging"
	"rover/internal/motion"
	"rover/internal/protocol"
	"rover/internal/safety"
	"rover/internal/status"
	"rover/pkg/types"
)

func (r *Robot) registerHandlers() {
	h := &r.handlers
	h[protocol.KindUnknown] = handleUnknown
	h[protocol.KindForward] = handleDrive
	h[protocol.KindBackward] = handleDrive
	h[protocol.KindLeft] = handleDrive
	h[protocol.KindRight] = handleDrive
	h[protocol.KindTank] = handleDrive
	h[protocol.KindStop] = handleStop
	h[protocol.KindServo] = handleServo
	h[protocol.KindPreset] = handlePreset
	h[protocol.KindSpeed] = handleSpeed
	h[protocol.KindStatus] = handleStatus
	h[protocol.KindEmergency] = handleEmergency
	h[protocol.KindPing] = handleOK
	h[protocol.KindArmHome] = handleArmHome
	h[protocol.KindGripperOpen] = handleGripper
	h[protocol.KindGripperClose] = handleGripper
	h[protocol.KindServoSpeed] = handleServoSpeed
	h[protocol.KindSensorsEnable] = handleSensors
	h[protocol.KindSensorsDisable] = handleSensors
	h[protocol.KindCollisionDist] = handleCollisionDist
	h[protocol.KindAggressiveness] = handleAggressiveness
	h[protocol.KindSensorStatus] = handleSensorStatus
	h[protocol.KindReset] = handleReset
	h[protocol.KindDebug] = handleDebug
	h[protocol.KindStatusAuto] = handleStatusAuto
	h[protocol.KindHelp] = handleHelp
	h[protocol.KindArmEnable] = handleArmEnable
	h[protocol.KindArmDisable] = handleArmEnable
	h[protocol.KindTestMotors] = handleTestMotors
	h[protocol.KindTestServos] = handleTestServos
	h[protocol.KindSensorDetailed] = handleSensorDetailed
}

func handleUnknown(r *Robot, ch link.Channel, cmd *protocol.Command) {
	r.respond(ch, protocol.ErrUnknownCommand.Code)
}

func handleOK(r *Robot, ch link.Channel, cmd *protocol.Command) {
	r.respond(ch, protocol.OK(cmd))
}

func handleDrive(r *Robot, ch link.Channel, cmd *protocol.Command) {
	var req motion.Request
	switch cmd.Kind {
	case protocol.KindForward:
		req = motion.ForwardRequest(cmd.Arg(0))
	case protocol.KindBackward:
		req = motion.BackwardRequest(cmd.Arg(0))
	case protocol.KindLeft:
		req = motion.TurnRequest(motion.TurnLeft, cmd.Arg(0))
	case protocol.KindRight:
		req = motion.TurnRequest(motion.TurnRight, cmd.Arg(0))
	case protocol.KindTank:
		req = motion.TankRequest(cmd.Arg(0), cmd.Arg(1))
	}
	r.abortTest(protocol.KindTestMotors)

	err := r.motion.Execute(req)
	var veto *motion.VetoError
	if errors.As(err, &veto) {
		r.sendPair(ch, "ERR_BLOCKED_", veto.Intent.String())
		return
	}
	r.respond(ch, protocol.OK(cmd))
}

func handleStop(r *Robot, ch link.Channel, cmd *protocol.Command) {
	r.abortTest(protocol.KindTestMotors)
	r.motion.Stop()
	r.respond(ch, protocol.OK(cmd))
}

func handleServo(r *Robot, ch link.Channel, cmd *protocol.Command) {
	r.abortTest(protocol.KindTestServos)
	if _, err := r.arm.SetTarget(cmd.Joint, cmd.Arg(0)); err != nil {
		r.respondArmError(ch, err)
		return
	}
	r.respond(ch, protocol.OK(cmd))
}

func handlePreset(r *Robot, ch link.Channel, cmd *protocol.Command) {
	var (
		pose arm.Pose
		err  error
	)
	if cmd.HasName() {
		pose, err = r.arm.Pose(cmd.Name())
	} else {
		pose, err = r.arm.Preset(cmd.Arg(0))
	}
	if err != nil {
		r.respond(ch, "ERR_UNKNOWN_POSE")
		return
	}
	r.abortTest(protocol.KindTestServos)
	if r.arm.InTransition() {
		r.logger.Debug("Pose transition replaced", "pose", pose.Name)
	}
	if err := r.arm.BeginPose(pose, r.now, r.cfg.Arm.PoseBudget); err != nil {
		r.respondArmError(ch, err)
		return
	}
	r.respond(ch, protocol.OK(cmd))
}

func handleArmHome(r *Robot, ch link.Channel, cmd *protocol.Command) {
	r.abortTest(protocol.KindTestServos)
	if err := r.arm.Home(); err != nil {
		r.respondArmError(ch, err)
		return
	}
	r.respond(ch, protocol.OK(cmd))
}

func handleGripper(r *Robot, ch link.Channel, cmd *protocol.Command) {
	r.abortTest(protocol.KindTestServos)
	if err := r.arm.Gripper(cmd.Kind == protocol.KindGripperOpen); err != nil {
		r.respondArmError(ch, err)
		return
	}
	r.respond(ch, protocol.OK(cmd))
}

func handleServoSpeed(r *Robot, ch link.Channel, cmd *protocol.Command) {
	r.sendValue(ch, protocol.OK(cmd), r.arm.SetStepSize(cmd.Arg(0)))
}

func handleSpeed(r *Robot, ch link.Channel, cmd *protocol.Command) {
	r.sendValue(ch, protocol.OK(cmd), r.motion.SetSpeedMultiplier(cmd.Arg(0)))
}

func handleStatus(r *Robot, ch link.Channel, cmd *protocol.Command) {
	r.sendStatus(ch)
}

func handleSensorStatus(r *Robot, ch link.Channel, cmd *protocol.Command) {
	buf := r.acquire()
	if buf == nil {
		return
	}
	r.reporter.FormatSensors(buf, r.sensorSnapshot())
	r.emit(ch, buf)
}

func handleEmergency(r *Robot, ch link.Channel, cmd *protocol.Command) {
	r.safety.TriggerEmergencyStop(ReasonOperator, safety.SourceOperator, r.now)
	r.respond(ch, protocol.OK(cmd))
}

func handleSensors(r *Robot, ch link.Channel, cmd *protocol.Command) {
	if cmd.Kind == protocol.KindSensorsEnable {
		r.safety.Enable()
	} else {
		r.safety.Disable()
	}
	r.respond(ch, protocol.OK(cmd))
}

func handleCollisionDist(r *Robot, ch link.Channel, cmd *protocol.Command) {
	r.sendValue(ch, protocol.OK(cmd), r.safety.SetCollisionDistance(cmd.Arg(0)))
}

func handleAggressiveness(r *Robot, ch link.Channel, cmd *protocol.Command) {
	r.sendValue(ch, protocol.OK(cmd), r.safety.SetAggressiveness(cmd.Arg(0)))
}

func handleReset(r *Robot, ch link.Channel, cmd *protocol.Command) {
	if err := r.safety.Reset(); err != nil {
		r.respond(ch, "ERR_RESET_BLOCKED")
		return
	}
	r.respond(ch, protocol.OK(cmd))
}

func handleDebug(r *Robot, ch link.Channel, cmd *protocol.Command) {
	level := "info"
	if cmd.Arg(0) == 1 {
		level = "debug"
	}
	logging.SetLevel(level)
	r.sendValue(ch, protocol.OK(cmd), cmd.Arg(0))
}

func handleStatusAuto(r *Robot, ch link.Channel, cmd *protocol.Command) {
	r.autoStatus = cmd.Arg(0) == 1
	r.lastStatus = r.now
	r.sendValue(ch, protocol.OK(cmd), cmd.Arg(0))
}

func handleArmEnable(r *Robot, ch link.Channel, cmd *protocol.Command) {
	if cmd.Kind == protocol.KindArmEnable {
		r.arm.Enable()
	} else {
		r.abortTest(protocol.KindTestServos)
		r.arm.Disable()
	}
	r.respond(ch, protocol.OK(cmd))
}

func handleTestMotors(r *Robot, ch link.Channel, cmd *protocol.Command) {
	if r.safety.Enabled() && (r.safety.Classification(types.SideFront) == types.CollisionRisk ||
		r.safety.Classification(types.SideRear) == types.CollisionRisk) {
		r.respond(ch, "ERR_BLOCKED_TEST")
		return
	}
	if err := r.startTest(protocol.KindTestMotors); err != nil {
		r.respond(ch, protocol.ErrBadParameter.Code)
		return
	}
	r.respond(ch, protocol.OK(cmd))
}

func handleTestServos(r *Robot, ch link.Channel, cmd *protocol.Command) {
	if err := r.startTest(protocol.KindTestServos); err != nil {
		r.respondArmError(ch, err)
		return
	}
	r.respond(ch, protocol.OK(cmd))
}

// handleHelp lists every keyword as LONG/SHORT with its parameter form,
// packed into as few HELP: lines as the line buffer allows.
func handleHelp(r *Robot, ch link.Channel, cmd *protocol.Command) {
	buf := r.acquire()
	if buf == nil {
		return
	}
	buf.AppendString("HELP:")
	first := true
	for i := range protocol.Aliases {
		a := &protocol.Aliases[i]
		if !appendHelpEntry(buf, a, first) {
			r.emit(ch, buf)
			if buf = r.acquire(); buf == nil {
				return
			}
			buf.AppendString("HELP:")
			appendHelpEntry(buf, a, true)
		}
		first = false
	}
	r.emit(ch, buf)
	r.respond(ch, protocol.OK(cmd))
}

func appendHelpEntry(buf *status.FixedBuffer, a *protocol.Alias, first bool) bool {
	buf.Begin()
	if !first {
		buf.AppendByte(',')
	}
	buf.AppendString(a.Long)
	buf.AppendByte('/')
	buf.AppendString(a.Short)
	switch a.Shape {
	case protocol.ParamInt:
		buf.AppendString(":n")
	case protocol.ParamIntPair:
		buf.AppendString(":l,r")
	case protocol.ParamName:
		buf.AppendString(":name")
	}
	return buf.End()
}

func handleSensorDetailed(r *Robot, ch link.Channel, cmd *protocol.Command) {
	buf := r.acquire()
	if buf == nil {
		return
	}
	r.reporter.FormatDetailed(buf, r.sensorSnapshot())
	r.emit(ch, buf)
}

func (r *Robot) respondArmError(ch link.Channel, err error) {
	if errors.Is(err, arm.ErrFrozen) {
		r.respond(ch, "ERR_EMERGENCY_ACTIVE")
		return
	}
	if errors.Is(err, arm.ErrDisabled) {
		r.respond(ch, "ERR_ARM_DISABLED")
		return
	}
	r.respond(ch, protocol.ErrBadParameter.Code)
}

func (r *Robot) sendStatus(ch link.Channel) {
	buf := r.acquire()
	if buf == nil {
		return
	}
	r.reporter.Format(buf, r.Snapshot())
	r.emit(ch, buf)
}

// acquire returns a cleared line buffer, or nil when the arena is exhausted.
func (r *Robot) acquire() *status.FixedBuffer {
	buf, err := r.arena.Acquire()
	if err != nil {
		r.stats.SendErrors++
		r.logger.Error("No line buffer available", "in_use", r.arena.InUse())
		return nil
	}
	return buf
}

// emit sends buf to ch, or to every channel when ch is nil, and returns the
// buffer to the arena.
func (r *Robot) emit(ch link.Channel, buf *status.FixedBuffer) {
	if ch != nil {
		r.send(ch, buf.Bytes())
	} else {
		for i := 0; i < r.reader.Len(); i++ {
			r.send(r.reader.Channel(i), buf.Bytes())
		}
	}
	if err := r.arena.Release(buf); err != nil {
		r.logger.Error("Failed to release line buffer", "error", err)
	}
}

func (r *Robot) send(ch link.Channel, line []byte) {
	err := ch.Send(line)
	if err == nil || errors.Is(err, link.ErrNotConnected) {
		return
	}
	r.stats.SendErrors++
	r.logger.Warn("Failed to send line", "channel", ch.Name(), "error", err)
}

func (r *Robot) respond(ch link.Channel, s string) {
	r.sendPair(ch, s, "")
}

func (r *Robot) sendPair(ch link.Channel, a, b string) {
	buf := r.acquire()
	if buf == nil {
		return
	}
	buf.AppendString(a)
	buf.AppendString(b)
	r.emit(ch, buf)
}

func (r *Robot) sendValue(ch link.Channel, prefix string, v int) {
	buf := r.acquire()
	if buf == nil {
		return
	}
	buf.AppendString(prefix)
	buf.AppendByte(':')
	buf.AppendInt(int64(v))
	r.emit(ch, buf)
}

func (r *Robot) broadcastPair(a, b string) {
	r.sendPair(nil, a, b)
}
