package safety

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rover/internal/hal/sim"
	"rover/internal/motion"
	"rover/pkg/types"
)

type recorder struct {
	stops    []string
	clears   int
	warnings []types.Side
}

func (r *recorder) EmergencyStopped(reason string, source Source) { r.stops = append(r.stops, reason) }
func (r *recorder) EmergencyCleared()                            { r.clears++ }
func (r *recorder) CollisionWarning(side types.Side, distance float64) {
	r.warnings = append(r.warnings, side)
}

func newSupervisor(cfg types.SafetyConfig) (*Supervisor, *recorder) {
	cfg.Enabled = true
	rec := &recorder{}
	return NewSupervisor(cfg, rec), rec
}

func TestClassify(t *testing.T) {
	th := ThresholdsFor(2)
	assert.Equal(t, types.CollisionRisk, th.Classify(15))
	assert.Equal(t, types.CollisionRisk, th.Classify(3))
	assert.Equal(t, types.ObstacleDetected, th.Classify(15.1))
	assert.Equal(t, types.ObstacleDetected, th.Classify(50))
	assert.Equal(t, types.Clear, th.Classify(50.5))
}

func TestAggressivenessTable(t *testing.T) {
	s, _ := newSupervisor(types.SafetyConfig{})
	assert.Equal(t, Thresholds{Collision: 15, Warning: 50}, s.Thresholds())

	assert.Equal(t, 1, s.SetAggressiveness(0))
	assert.Equal(t, Thresholds{Collision: 25, Warning: 60}, s.Thresholds())
	assert.Equal(t, 3, s.SetAggressiveness(7))
	assert.Equal(t, Thresholds{Collision: 10, Warning: 30}, s.Thresholds())
}

func TestAggressivenessReclassifies(t *testing.T) {
	s, _ := newSupervisor(types.SafetyConfig{})
	now := time.Now()
	s.Sample(20, 200, now)
	assert.Equal(t, types.ObstacleDetected, s.Classification(types.SideFront))

	s.SetAggressiveness(1)
	assert.Equal(t, types.CollisionRisk, s.Classification(types.SideFront))
}

func TestForwardBlockedOnFrontRisk(t *testing.T) {
	s, rec := newSupervisor(types.SafetyConfig{CollisionDistance: 10})
	s.Sample(8, 200, time.Now())
	require.Equal(t, types.CollisionRisk, s.Classification(types.SideFront))
	assert.Equal(t, []types.Side{types.SideFront}, rec.warnings)

	_, err := s.Validate(motion.ForwardRequest(50))
	assert.ErrorIs(t, err, motion.ErrVetoed)

	req, err := s.Validate(motion.BackwardRequest(50))
	require.NoError(t, err)
	assert.Equal(t, 50, req.Left, "backward is unaffected")

	_, err = s.Validate(motion.TurnRequest(motion.TurnLeft, 40))
	assert.NoError(t, err, "turning stays permissive with one side at risk")
}

func TestTurnBlockedWhenBothSidesAtRisk(t *testing.T) {
	s, _ := newSupervisor(types.SafetyConfig{})
	s.Sample(5, 5, time.Now())
	_, err := s.Validate(motion.TurnRequest(motion.TurnRight, 40))
	assert.ErrorIs(t, err, motion.ErrVetoed)
}

func TestObstacleScalesSpeed(t *testing.T) {
	s, _ := newSupervisor(types.SafetyConfig{})
	s.Sample(40, 200, time.Now())

	req, err := s.Validate(motion.ForwardRequest(100))
	require.NoError(t, err)
	assert.Equal(t, 30, req.Left)

	req, err = s.Validate(motion.ForwardRequest(40))
	require.NoError(t, err)
	assert.Equal(t, 20, req.Left)

	req, err = s.Validate(motion.BackwardRequest(100))
	require.NoError(t, err)
	assert.Equal(t, 100, req.Left)
}

func TestTankNeverBlocked(t *testing.T) {
	s, _ := newSupervisor(types.SafetyConfig{})
	s.Sample(5, 5, time.Now())

	req, err := s.Validate(motion.TankRequest(80, 60))
	require.NoError(t, err)
	assert.Equal(t, motion.TankRequest(30, 30), req)

	req, err = s.Validate(motion.TankRequest(-80, -10))
	require.NoError(t, err)
	assert.Equal(t, motion.TankRequest(-30, -5), req)

	req, err = s.Validate(motion.TankRequest(-50, 50))
	require.NoError(t, err)
	assert.Equal(t, motion.TankRequest(-50, 50), req, "spinning in place is not scaled")
}

func TestStabilisationBiasesTowardSafety(t *testing.T) {
	s, _ := newSupervisor(types.SafetyConfig{})
	now := time.Now()

	s.Sample(10, 200, now)
	assert.Equal(t, types.CollisionRisk, s.Classification(types.SideFront), "nearer reading applies at once")

	s.Sample(120, 200, now)
	assert.Equal(t, types.CollisionRisk, s.Classification(types.SideFront), "one far reading is not enough")
	s.Sample(121, 200, now)
	assert.Equal(t, types.Clear, s.Classification(types.SideFront))

	s.Sample(10, 200, now)
	s.Sample(120, 200, now)
	s.Sample(160, 200, now) // inconsistent with the previous one
	assert.Equal(t, types.CollisionRisk, s.Classification(types.SideFront))
	s.Sample(161, 200, now)
	assert.Equal(t, types.Clear, s.Classification(types.SideFront))
}

func TestWarningRepeatsWhileNotClear(t *testing.T) {
	s, rec := newSupervisor(types.SafetyConfig{WarningRepeat: 2 * time.Second, StableCount: 1})
	clock := sim.NewClock()

	s.Sample(40, 200, clock.Now())
	assert.Equal(t, []types.Side{types.SideFront}, rec.warnings, "an obstacle warns on the repeat")
	s.Sample(40, 30, clock.Advance(time.Second))
	assert.Len(t, rec.warnings, 1, "not before the period")

	s.Sample(10, 30, clock.Advance(time.Second))
	assert.Equal(t, []types.Side{types.SideFront, types.SideFront, types.SideRear}, rec.warnings,
		"entering risk warns once, the rear obstacle repeats")

	s.Sample(200, 200, clock.Advance(2*time.Second))
	s.Sample(200, 200, clock.Advance(2*time.Second))
	assert.Len(t, rec.warnings, 3, "clear sides stay quiet")
}

func TestWarningRepeatDisabledByDefault(t *testing.T) {
	s, rec := newSupervisor(types.SafetyConfig{})
	clock := sim.NewClock()
	for i := 0; i < 5; i++ {
		s.Sample(40, 200, clock.Advance(3*time.Second))
	}
	assert.Empty(t, rec.warnings)
}

func TestInvalidReadingKeepsClassification(t *testing.T) {
	s, _ := newSupervisor(types.SafetyConfig{})
	now := time.Now()
	s.Sample(10, 200, now)
	s.Sample(0, 250, now)

	front := s.Sensor(types.SideFront)
	assert.False(t, front.Active)
	assert.Equal(t, types.CollisionRisk, front.Class)
	assert.Equal(t, 10.0, front.Distance)
	assert.False(t, s.Sensor(types.SideRear).Active)
}

func TestEmergencyLatchIdempotent(t *testing.T) {
	s, rec := newSupervisor(types.SafetyConfig{})
	now := time.Now()

	assert.True(t, s.TriggerEmergencyStop("operator", SourceOperator, now))
	assert.False(t, s.TriggerEmergencyStop("operator", SourceOperator, now))
	assert.False(t, s.TriggerEmergencyStop("collision", SourceCollision, now))
	assert.Len(t, rec.stops, 1)
	assert.True(t, s.Latched())
	assert.Equal(t, SourceOperator, s.LatchSource())

	_, err := s.Validate(motion.BackwardRequest(10))
	assert.ErrorIs(t, err, motion.ErrVetoed, "latch holds every motion")
}

func TestCollisionLatchAutoClearsAfterDwell(t *testing.T) {
	s, rec := newSupervisor(types.SafetyConfig{ClearDwell: time.Second, StableCount: 1})
	clock := sim.NewClock()

	s.Sample(5, 200, clock.Now())
	s.TriggerEmergencyStop("collision risk FRONT", SourceCollision, clock.Now())

	s.Sample(200, 200, clock.Advance(100*time.Millisecond))
	s.Sample(200, 200, clock.Advance(500*time.Millisecond))
	s.Sample(40, 200, clock.Advance(400*time.Millisecond)) // flap resets the dwell
	s.Sample(200, 200, clock.Advance(100*time.Millisecond))
	s.Sample(200, 200, clock.Advance(900*time.Millisecond))
	assert.True(t, s.Latched())
	assert.Zero(t, rec.clears)

	s.Sample(200, 200, clock.Advance(200*time.Millisecond))
	assert.False(t, s.Latched())
	assert.Equal(t, 1, rec.clears)
}

func TestOperatorLatchNeedsReset(t *testing.T) {
	s, rec := newSupervisor(types.SafetyConfig{ClearDwell: 10 * time.Millisecond})
	clock := sim.NewClock()
	s.TriggerEmergencyStop("operator", SourceOperator, clock.Now())
	for i := 0; i < 10; i++ {
		s.Sample(200, 200, clock.Advance(time.Second))
	}
	assert.True(t, s.Latched())

	require.NoError(t, s.Reset())
	assert.False(t, s.Latched())
	assert.Equal(t, 1, rec.clears)
}

func TestResetBlockedByRisk(t *testing.T) {
	s, _ := newSupervisor(types.SafetyConfig{})
	s.Sample(200, 5, time.Now())
	s.TriggerEmergencyStop("operator", SourceOperator, time.Now())
	assert.ErrorIs(t, s.Reset(), ErrResetBlocked)
	assert.True(t, s.Latched())
}

func TestDisableReleasesCollisionLatch(t *testing.T) {
	s, rec := newSupervisor(types.SafetyConfig{})
	s.Sample(5, 200, time.Now())
	s.TriggerEmergencyStop("collision", SourceCollision, time.Now())

	s.Disable()
	assert.False(t, s.Latched())
	assert.Equal(t, 1, rec.clears)
	req, err := s.Validate(motion.ForwardRequest(90))
	require.NoError(t, err)
	assert.Equal(t, 90, req.Left)

	s.Enable()
	assert.Equal(t, types.Clear, s.Classification(types.SideFront))
}

func TestDisableKeepsOperatorLatch(t *testing.T) {
	s, rec := newSupervisor(types.SafetyConfig{})
	s.TriggerEmergencyStop("operator", SourceOperator, time.Now())

	s.Disable()
	assert.True(t, s.Latched())
	assert.Equal(t, SourceOperator, s.LatchSource())
	assert.Zero(t, rec.clears)
	_, err := s.Validate(motion.ForwardRequest(50))
	assert.ErrorIs(t, err, motion.ErrVetoed)

	require.NoError(t, s.Reset())
	assert.False(t, s.Latched())
}

func TestApplyConfigDisablingActsLikeDisable(t *testing.T) {
	s, rec := newSupervisor(types.SafetyConfig{})
	now := time.Now()
	s.Sample(5, 200, now)
	s.TriggerEmergencyStop("COLLISION_FRONT", SourceCollision, now)
	s.SetAggressiveness(3)

	s.ApplyConfig(types.SafetyConfig{Enabled: false})
	assert.False(t, s.Enabled())
	assert.False(t, s.Latched())
	assert.Equal(t, 1, rec.clears)
	assert.Equal(t, types.Clear, s.Classification(types.SideFront), "no stale class survives")
	assert.Equal(t, DefaultAggressiveness, s.Aggressiveness(), "the file replaces the runtime level")

	s.ApplyConfig(types.SafetyConfig{Enabled: true})
	assert.True(t, s.Enabled())
}

func TestSetCollisionDistanceKeepsOrder(t *testing.T) {
	s, _ := newSupervisor(types.SafetyConfig{})
	assert.Equal(t, 5, s.SetCollisionDistance(1))
	assert.Equal(t, 100, s.SetCollisionDistance(100))
	th := s.Thresholds()
	assert.Less(t, th.Collision, th.Warning)
	assert.Equal(t, 110.0, th.Warning)
}

func TestVetoDoesNotAllocate(t *testing.T) {
	s, _ := newSupervisor(types.SafetyConfig{})
	s.Sample(5, 200, time.Now())
	allocs := testing.AllocsPerRun(100, func() {
		_, _ = s.Validate(motion.ForwardRequest(50))
	})
	assert.Zero(t, allocs)
}
