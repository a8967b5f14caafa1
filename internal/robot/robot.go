// Package robot is the rover's control aggregate. A Robot owns every
// subsystem and advances them in one fixed order per tick:
//
//  1. pending config reload
//  2. distance sampling and classification
//  3. command lines from every channel, parsed and dispatched
//  4. a running self-test
//  5. the active motion, gated again against fresh classifications
//  6. arm motion and tracked pose transitions
//  7. the command watchdog
//  8. periodic status and heartbeat
//
// Stops are issued after the motion writes of the same tick, so a stop from
// any source is what reaches the wheels.
package robot

import (
	"context"
	"errors"
	"sync"
	"time"

	"rover/internal/arm"
	"rover/internal/config"
	"rover/internal/hal"
	"rover/internal/linereader"
	"rover/internal/link"
	"rover/internal/logging"
	"rover/internal/motion"
	"rover/internal/protocol"
	"rover/internal/safety"
	"rover/internal/status"
	"rover/pkg/types"
)

// Emergency reasons.
const (
	ReasonOperator       = "OPERATOR"
	ReasonCollisionFront = "COLLISION_FRONT"
	ReasonCollisionRear  = "COLLISION_REAR"
	ReasonCollisionBoth  = "COLLISION_BOTH"
)

// Hardware is everything the robot drives and reads.
type Hardware interface {
	hal.MotorOutput
	hal.JointOutput
	hal.DistanceSensor
}

type faultCounter interface {
	Faults() uint64
}

// Stats counts what the robot has handled since it was built.
type Stats struct {
	Ticks       uint64 `json:"ticks"`
	Accepted    uint64 `json:"accepted"`
	Rejected    uint64 `json:"rejected"`
	Vetoed      uint64 `json:"vetoed"`
	Emergencies uint64 `json:"emergencies"`
	Watchdog    uint64 `json:"watchdog"`
	SendErrors  uint64 `json:"send_errors"`
	Faults      uint64 `json:"faults"`
	Reloads     uint64 `json:"reloads"`
}

type handler func(r *Robot, ch link.Channel, cmd *protocol.Command)

type Option func(*Robot)

// WithMemoryProbe replaces the runtime memory probe of the status line.
func WithMemoryProbe(p status.MemoryProbe) Option {
	return func(r *Robot) { r.reporter = status.NewReporter(p) }
}

// WithChannels adds operator channels to the reader.
func WithChannels(channels ...link.Channel) Option {
	return func(r *Robot) {
		for _, ch := range channels {
			r.reader.Add(ch)
		}
	}
}

type Robot struct {
	cfg   types.SystemConfig
	hw    Hardware
	clock hal.Clock

	reader   *linereader.Reader
	motion   *motion.Controller
	arm      *arm.Planner
	safety   *safety.Supervisor
	watchdog *safety.Watchdog
	reporter *status.Reporter
	arena    *status.Arena
	meter    *status.LoopMeter

	handlers [protocol.KindCount]handler
	cmd      protocol.Command
	visit    linereader.Visitor

	started    time.Time
	now        time.Time
	ready      bool
	autoStatus bool
	lastStatus time.Time
	lastBeat   time.Time
	test       selfTest
	stats      Stats

	pendingMu sync.Mutex
	pending   *types.SystemConfig

	logger *logging.Logger
}

// New builds a robot from a validated configuration.
func New(cfg types.SystemConfig, hw Hardware, clock hal.Clock, opts ...Option) (*Robot, error) {
	if clock == nil {
		clock = hal.SystemClock{}
	}
	mapping, err := motion.MappingByName(cfg.Motion.DriveMapping)
	if err != nil {
		return nil, err
	}
	mapping, err = mapping.WithPolarity(cfg.Motion.Polarity)
	if err != nil {
		return nil, err
	}
	poses, err := config.PoseTable(cfg.Arm)
	if err != nil {
		return nil, err
	}

	r := &Robot{
		cfg:        cfg,
		hw:         hw,
		clock:      clock,
		reader:     linereader.New(cfg.Loop.MaxLinesPerTick),
		watchdog:   safety.NewWatchdog(cfg.Watchdog.Timeout),
		reporter:   status.NewReporter(nil),
		arena:      status.NewArena(cfg.Status.ArenaSize, cfg.Status.Capacity),
		meter:      status.NewLoopMeter(),
		autoStatus: cfg.Status.Periodic,
		logger:     logging.GetLogger("robot"),
	}
	r.safety = safety.NewSupervisor(cfg.Safety, r)
	r.motion = motion.NewController(hw,
		motion.WithMapping(mapping),
		motion.WithGate(r.safety),
		motion.WithMultiplier(cfg.Motion.SpeedMultiplier),
		motion.WithMinThreshold(cfg.Motion.MinThreshold),
	)
	r.arm = arm.NewPlanner(hw, poses, cfg.Arm.StepSize)
	r.arm.SetInterval(cfg.Loop.TickInterval)
	r.visit = r.dispatch
	r.registerHandlers()

	for _, opt := range opts {
		opt(r)
	}
	r.started = clock.Now()
	r.now = r.started
	r.lastStatus = r.started
	r.lastBeat = r.started
	return r, nil
}

// HomeArm writes the initial joint angles and moves the arm to its home pose,
// waiting at most the configured pose budget. It must run before the loop
// starts ticking.
func (r *Robot) HomeArm(ctx context.Context) (arm.PoseResult, error) {
	r.arm.Sync()
	return r.arm.ToPose(ctx, arm.HomePose.Name, r.cfg.Arm.PoseBudget)
}

// Tick runs one control cycle at now.
func (r *Robot) Tick(now time.Time) {
	r.now = now
	r.stats.Ticks++

	r.applyPendingConfig()

	r.safety.Sample(r.hw.ReadDistance(types.SideFront), r.hw.ReadDistance(types.SideRear), now)

	r.reader.Poll(r.visit)

	r.advanceTest(now)

	if err := r.motion.Reapply(); err != nil && !r.safety.Latched() {
		r.safety.TriggerEmergencyStop(r.collisionReason(), safety.SourceCollision, now)
	}

	switch event, name := r.arm.Advance(now); event {
	case arm.TransitionDone:
		r.broadcastPair("PRESET_DONE:", name)
	case arm.TransitionPartial:
		r.broadcastPair("PRESET_PARTIAL:", name)
	}

	if r.watchdog.Check(now) {
		r.motion.Stop()
		r.stats.Watchdog++
		r.logger.Warn("Command watchdog expired, motors stopped", "timeout", r.watchdog.Timeout())
		r.broadcastPair("WATCHDOG_TIMEOUT", "")
	}

	r.meter.Tick(now)
	if r.autoStatus && now.Sub(r.lastStatus) >= r.cfg.Status.Interval {
		r.lastStatus = now
		r.sendStatus(nil)
	}
	if beat := r.cfg.Status.Heartbeat; beat > 0 && now.Sub(r.lastBeat) >= beat {
		r.lastBeat = now
		r.broadcastPair("HEARTBEAT", "")
	}
}

func (r *Robot) collisionReason() string {
	front := r.safety.Classification(types.SideFront) == types.CollisionRisk
	rear := r.safety.Classification(types.SideRear) == types.CollisionRisk
	switch {
	case front && rear:
		return ReasonCollisionBoth
	case rear:
		return ReasonCollisionRear
	default:
		return ReasonCollisionFront
	}
}

// dispatch handles one line event from the reader.
func (r *Robot) dispatch(ch link.Channel, line []byte, err error) {
	if err != nil {
		r.stats.Rejected++
		if errors.Is(err, link.ErrInputOverflow) {
			r.respond(ch, "ERR_INPUT_OVERFLOW")
			return
		}
		r.respond(ch, protocol.Response(err))
		return
	}

	r.cmd, err = protocol.Parse(line)
	if err != nil {
		r.stats.Rejected++
		r.logger.Debug("Command rejected", "channel", ch.Name(), "error", err)
		r.respond(ch, protocol.Response(err))
		return
	}
	cmd := &r.cmd

	if r.safety.Latched() && (cmd.Kind.IsMotion() || cmd.Kind.IsArm()) {
		r.stats.Rejected++
		r.respond(ch, "ERR_EMERGENCY_ACTIVE")
		return
	}

	r.stats.Accepted++
	r.watchdog.Accept(r.now)
	if cmd.Clamped {
		r.logger.Debug("Parameter clamped", "command", cmd.Kind.String(), "value", cmd.Arg(0))
	}
	r.handlers[cmd.Kind](r, ch, cmd)
}

// QueueConfig schedules a configuration for the start of the next tick. It is
// safe to call from any goroutine; a newer config replaces a queued one.
func (r *Robot) QueueConfig(cfg types.SystemConfig) {
	r.pendingMu.Lock()
	r.pending = &cfg
	r.pendingMu.Unlock()
}

func (r *Robot) applyPendingConfig() {
	r.pendingMu.Lock()
	cfg := r.pending
	r.pending = nil
	r.pendingMu.Unlock()
	if cfg == nil {
		return
	}

	r.safety.ApplyConfig(cfg.Safety)
	r.watchdog.SetTimeout(cfg.Watchdog.Timeout)
	r.arm.SetStepSize(cfg.Arm.StepSize)
	r.cfg.Safety = cfg.Safety
	r.cfg.Watchdog = cfg.Watchdog
	r.cfg.Arm.StepSize = r.arm.StepSize()
	if cfg.Status.Interval > 0 {
		r.cfg.Status.Interval = cfg.Status.Interval
	}
	r.cfg.Status.Heartbeat = cfg.Status.Heartbeat
	r.stats.Reloads++
	r.logger.Info("Configuration applied",
		"aggressiveness", r.safety.Aggressiveness(),
		"watchdog", r.watchdog.Timeout(),
		"step_size", r.arm.StepSize(),
		"status_interval", r.cfg.Status.Interval,
		"heartbeat", r.cfg.Status.Heartbeat)
}

// EmergencyStopped implements safety.Listener.
func (r *Robot) EmergencyStopped(reason string, source safety.Source) {
	r.abortTest(protocol.KindUnknown)
	r.motion.Stop()
	r.arm.Freeze()
	r.stats.Emergencies++
	r.broadcastPair("EMERGENCY_STOP:", reason)
}

// EmergencyCleared implements safety.Listener.
func (r *Robot) EmergencyCleared() {
	r.arm.Unfreeze()
	r.broadcastPair("EMERGENCY_CLEARED", "")
}

// CollisionWarning implements safety.Listener.
func (r *Robot) CollisionWarning(side types.Side, distance float64) {
	buf := r.acquire()
	if buf == nil {
		return
	}
	buf.AppendString("COLLISION_WARNING:")
	buf.AppendString(side.String())
	buf.AppendByte(':')
	buf.AppendFixed1(distance)
	r.emit(nil, buf)
}

// Snapshot returns the state shown on the status line.
func (r *Robot) Snapshot() status.Snapshot {
	return status.Snapshot{
		Uptime:    r.now.Sub(r.started),
		Ready:     r.ready,
		Emergency: r.safety.Latched(),
		MemoryKB:  r.reporter.MemoryKB(),
		LoopHz:    r.meter.Hz(),
		Joints:    r.arm.Angles(),
	}
}

func (r *Robot) sensorSnapshot() status.SensorSnapshot {
	front := r.safety.Sensor(types.SideFront)
	rear := r.safety.Sensor(types.SideRear)
	return status.SensorSnapshot{
		Front:      front.Distance,
		Rear:       rear.Distance,
		FrontClass: front.Class,
		RearClass:  rear.Class,
		Enabled:    r.safety.Enabled(),
	}
}

// Name implements core.Module.
func (r *Robot) Name() string { return "robot" }

// Start implements core.Module. The robot reports ready from here on.
func (r *Robot) Start(ctx context.Context) error {
	r.ready = true
	r.logger.Info("Robot ready",
		"channels", len(r.reader.Channels()),
		"mapping", r.cfg.Motion.DriveMapping,
		"watchdog", r.watchdog.Timeout())
	return nil
}

// Stop implements core.Module. It zeroes the wheels.
func (r *Robot) Stop() error {
	r.ready = false
	r.abortTest(protocol.KindUnknown)
	r.motion.Stop()
	r.logger.Info("Robot stopped", "ticks", r.stats.Ticks, "accepted", r.stats.Accepted)
	return nil
}

// Process implements core.Module.
func (r *Robot) Process() error {
	r.Tick(r.clock.Now())
	return nil
}

// Status implements core.Module.
func (r *Robot) Status() interface{} {
	return r.Stats()
}

func (r *Robot) Stats() Stats {
	s := r.stats
	s.Vetoed = r.motion.Vetoes()
	if fc, ok := r.hw.(faultCounter); ok {
		s.Faults = fc.Faults()
	}
	return s
}

func (r *Robot) Motion() *motion.Controller { return r.motion }
func (r *Robot) Arm() *arm.Planner          { return r.arm }
func (r *Robot) Safety() *safety.Supervisor { return r.safety }
func (r *Robot) Watchdog() *safety.Watchdog { return r.watchdog }
func (r *Robot) Channels() []link.Channel   { return r.reader.Channels() }
func (r *Robot) AutoStatus() bool           { return r.autoStatus }
