// Package safety holds the two supervisors that can stop the rover on their
// own: the collision supervisor, which owns the emergency latch, and the
// command watchdog.
package safety

import (
	"errors"
	"time"

	"rover/internal/logging"
	"rover/internal/motion"
	"rover/pkg/types"
)

// Defaults.
const (
	DefaultAggressiveness = 2
	DefaultMaxRange       = 200.0
	DefaultStableCount    = 2
	DefaultClearDwell     = time.Second

	MinCollisionDistance = 5
	MaxCollisionDistance = 100

	// obstacle speed cap for moves toward a detected obstacle
	obstacleSpeedCap = 30
)

var ErrResetBlocked = errors.New("reset blocked: collision risk present")

// Thresholds are the two classification distances, in cm.
type Thresholds struct {
	Collision float64
	Warning   float64
}

// Classify maps a distance onto Clear, ObstacleDetected or CollisionRisk.
func (t Thresholds) Classify(d float64) types.Classification {
	switch {
	case d <= t.Collision:
		return types.CollisionRisk
	case d <= t.Warning:
		return types.ObstacleDetected
	default:
		return types.Clear
	}
}

// aggressiveness level -> thresholds
var aggressivenessTable = [4]Thresholds{
	1: {Collision: 25, Warning: 60},
	2: {Collision: 15, Warning: 50},
	3: {Collision: 10, Warning: 30},
}

// ThresholdsFor returns the thresholds of an aggressiveness level, clamped
// to 1..3.
func ThresholdsFor(level int) Thresholds {
	return aggressivenessTable[clampInt(level, 1, 3)]
}

// Source records what set the emergency latch.
type Source int

const (
	SourceNone Source = iota
	SourceOperator
	SourceCollision
)

func (s Source) String() string {
	switch s {
	case SourceOperator:
		return "operator"
	case SourceCollision:
		return "collision"
	default:
		return "none"
	}
}

// Listener receives the supervisor's transitions. EmergencyStopped must
// zero the motors before returning.
type Listener interface {
	EmergencyStopped(reason string, source Source)
	EmergencyCleared()
	CollisionWarning(side types.Side, distance float64)
}

// Supervisor classifies distance readings, gates motion requests and owns
// the single emergency latch.
type Supervisor struct {
	enabled        bool
	aggressiveness int
	thresholds     Thresholds
	maxRange       float64
	stableCount    int
	clearDwell     time.Duration
	warnRepeat     time.Duration
	lastRepeat     time.Time

	sensors [2]SensorState

	latched    bool
	source     Source
	reason     string
	latchedAt  time.Time
	clearSince time.Time

	listener Listener
	vetoes   [types.IntentTank + 1]motion.VetoError
	held     [types.IntentTank + 1]motion.VetoError
	logger   *logging.Logger
}

// NewSupervisor builds a supervisor from config. Zero fields take defaults.
func NewSupervisor(cfg types.SafetyConfig, listener Listener) *Supervisor {
	s := &Supervisor{
		listener: listener,
		logger:   logging.GetLogger("safety"),
	}
	for i := range s.sensors {
		s.sensors[i].Side = types.Side(i)
	}
	for i := range s.vetoes {
		s.vetoes[i] = motion.VetoError{Intent: types.Intent(i), Reason: "collision risk"}
		s.held[i] = motion.VetoError{Intent: types.Intent(i), Reason: "emergency stop active"}
	}
	s.ApplyConfig(cfg)
	return s
}

// ApplyConfig updates thresholds and filter settings. The file replaces any
// value set at runtime; turning checks off behaves like Disable. An operator
// latch is kept.
func (s *Supervisor) ApplyConfig(cfg types.SafetyConfig) {
	before := s.thresholds
	if cfg.Enabled {
		s.Enable()
	} else {
		s.Disable()
	}
	s.aggressiveness = DefaultAggressiveness
	if cfg.Aggressiveness > 0 {
		s.aggressiveness = clampInt(cfg.Aggressiveness, 1, 3)
	}
	s.thresholds = ThresholdsFor(s.aggressiveness)
	s.maxRange = DefaultMaxRange
	if cfg.MaxRange > 0 {
		s.maxRange = cfg.MaxRange
	}
	if cfg.CollisionDistance > 0 {
		s.SetCollisionDistance(int(cfg.CollisionDistance))
	}
	if cfg.WarningDistance > s.thresholds.Collision {
		s.thresholds.Warning = minFloat(cfg.WarningDistance, s.maxRange)
	}
	s.stableCount = DefaultStableCount
	if cfg.StableCount > 0 {
		s.stableCount = cfg.StableCount
	}
	s.clearDwell = DefaultClearDwell
	if cfg.ClearDwell > 0 {
		s.clearDwell = cfg.ClearDwell
	}
	s.warnRepeat = cfg.WarningRepeat
	s.reclassify()
	if before != (Thresholds{}) && before != s.thresholds {
		s.logger.Info("Thresholds replaced by config", "collision", s.thresholds.Collision, "warning", s.thresholds.Warning,
			"was_collision", before.Collision, "was_warning", before.Warning)
	}
}

// Sample feeds one front and one rear reading. Entering CollisionRisk warns
// at once; with a repeat period, every side that is not clear warns again
// each period.
func (s *Supervisor) Sample(front, rear float64, now time.Time) {
	if !s.enabled {
		return
	}
	var warned [2]bool
	for i, d := range [2]float64{front, rear} {
		sensor := &s.sensors[i]
		if sensor.update(d, s.thresholds, s.maxRange, s.stableCount) {
			s.logger.Debug("Classification changed", "side", sensor.Side.String(), "class", sensor.Class.String(), "distance", sensor.Distance)
			if sensor.Class == types.CollisionRisk {
				s.warn(sensor)
				warned[i] = true
			}
		}
	}
	if s.warnRepeat > 0 && now.Sub(s.lastRepeat) >= s.warnRepeat {
		s.lastRepeat = now
		for i := range s.sensors {
			if !warned[i] && s.sensors[i].Class != types.Clear {
				s.warn(&s.sensors[i])
			}
		}
	}
	s.autoClear(now)
}

func (s *Supervisor) warn(sensor *SensorState) {
	if s.listener != nil {
		s.listener.CollisionWarning(sensor.Side, sensor.Distance)
	}
}

func (s *Supervisor) autoClear(now time.Time) {
	if !s.latched || s.source != SourceCollision {
		return
	}
	if !s.allClear() {
		s.clearSince = time.Time{}
		return
	}
	if s.clearSince.IsZero() {
		s.clearSince = now
		return
	}
	if now.Sub(s.clearSince) >= s.clearDwell {
		s.logger.Info("Collision emergency auto-cleared", "latched_for", now.Sub(s.latchedAt))
		s.release()
	}
}

// Validate implements motion.Gate.
func (s *Supervisor) Validate(req motion.Request) (motion.Request, error) {
	if s.latched {
		return motion.Request{}, &s.held[req.Intent]
	}
	if !s.enabled {
		return req, nil
	}

	front := s.sensors[types.SideFront].Class
	rear := s.sensors[types.SideRear].Class

	switch req.Intent {
	case types.IntentForward:
		if front == types.CollisionRisk {
			return motion.Request{}, &s.vetoes[req.Intent]
		}
		if front == types.ObstacleDetected {
			req.Left, req.Right = capSpeed(req.Left), capSpeed(req.Right)
		}
	case types.IntentBackward:
		if rear == types.CollisionRisk {
			return motion.Request{}, &s.vetoes[req.Intent]
		}
		if rear == types.ObstacleDetected {
			req.Left, req.Right = capSpeed(req.Left), capSpeed(req.Right)
		}
	case types.IntentTurnLeft, types.IntentTurnRight:
		if front == types.CollisionRisk && rear == types.CollisionRisk {
			return motion.Request{}, &s.vetoes[req.Intent]
		}
	case types.IntentTank:
		heading := types.Clear
		switch sum := req.Left + req.Right; {
		case sum > 0:
			heading = front
		case sum < 0:
			heading = rear
		}
		if heading != types.Clear {
			req.Left, req.Right = capSigned(req.Left), capSigned(req.Right)
		}
	}
	return req, nil
}

// TriggerEmergencyStop sets the latch. It is idempotent: only the transition
// into the latched state notifies. An operator request upgrades a collision
// latch so it no longer auto-clears. It reports whether a transition happened.
func (s *Supervisor) TriggerEmergencyStop(reason string, source Source, now time.Time) bool {
	if s.latched {
		if source == SourceOperator && s.source != SourceOperator {
			s.source = SourceOperator
			s.reason = reason
		}
		return false
	}
	s.latched = true
	s.source = source
	s.reason = reason
	s.latchedAt = now
	s.clearSince = time.Time{}
	s.logger.Warn("Emergency stop", "reason", reason, "source", source.String())
	if s.listener != nil {
		s.listener.EmergencyStopped(reason, source)
	}
	return true
}

// Reset clears the latch unless a side is at collision risk.
func (s *Supervisor) Reset() error {
	if s.enabled && (s.sensors[types.SideFront].Class == types.CollisionRisk || s.sensors[types.SideRear].Class == types.CollisionRisk) {
		return ErrResetBlocked
	}
	if s.latched {
		s.release()
	}
	return nil
}

func (s *Supervisor) release() {
	s.latched = false
	s.source = SourceNone
	s.reason = ""
	s.clearSince = time.Time{}
	if s.listener != nil {
		s.listener.EmergencyCleared()
	}
}

// SetAggressiveness remaps both thresholds from the aggressiveness table.
func (s *Supervisor) SetAggressiveness(level int) int {
	s.aggressiveness = clampInt(level, 1, 3)
	s.thresholds = ThresholdsFor(s.aggressiveness)
	s.reclassify()
	s.logger.Info("Aggressiveness set", "level", s.aggressiveness, "collision", s.thresholds.Collision, "warning", s.thresholds.Warning)
	return s.aggressiveness
}

// SetCollisionDistance sets the near threshold, keeping it below the warning
// threshold.
func (s *Supervisor) SetCollisionDistance(cm int) int {
	cm = clampInt(cm, MinCollisionDistance, MaxCollisionDistance)
	s.thresholds.Collision = float64(cm)
	if s.thresholds.Warning <= s.thresholds.Collision {
		s.thresholds.Warning = minFloat(s.thresholds.Collision+10, s.maxRange)
	}
	s.reclassify()
	return cm
}

// Enable turns collision checks on.
func (s *Supervisor) Enable() {
	if !s.enabled {
		s.logger.Info("Collision avoidance enabled")
	}
	s.enabled = true
}

// Disable turns collision checks off and releases a collision latch. An
// operator latch still needs Reset.
func (s *Supervisor) Disable() {
	if s.enabled {
		s.logger.Warn("Collision avoidance disabled")
	}
	s.enabled = false
	for i := range s.sensors {
		s.sensors[i].reset()
	}
	if s.latched && s.source == SourceCollision {
		s.release()
	}
}

func (s *Supervisor) reclassify() {
	for i := range s.sensors {
		sensor := &s.sensors[i]
		if sensor.Active {
			sensor.Class = s.thresholds.Classify(sensor.Distance)
			sensor.streak = 0
		}
	}
}

func (s *Supervisor) allClear() bool {
	return s.sensors[types.SideFront].Class == types.Clear && s.sensors[types.SideRear].Class == types.Clear
}

func (s *Supervisor) Enabled() bool { return s.enabled }

// Latched reports whether the emergency latch is set.
func (s *Supervisor) Latched() bool { return s.latched }

func (s *Supervisor) LatchSource() Source { return s.source }
func (s *Supervisor) Reason() string      { return s.reason }

func (s *Supervisor) Thresholds() Thresholds { return s.thresholds }
func (s *Supervisor) Aggressiveness() int    { return s.aggressiveness }

// Sensor returns the filtered state of one side.
func (s *Supervisor) Sensor(side types.Side) SensorState { return s.sensors[side] }

// Classification returns the current class of a side.
func (s *Supervisor) Classification(side types.Side) types.Classification {
	return s.sensors[side].Class
}

func capSpeed(v int) int {
	v /= 2
	if v > obstacleSpeedCap {
		return obstacleSpeedCap
	}
	return v
}

func capSigned(v int) int {
	if v < 0 {
		return -capSpeed(-v)
	}
	return capSpeed(v)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
