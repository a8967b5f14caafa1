// Package hal defines the hardware collaborators the controller drives and the
// HardwareAbstractionLayer that fronts whichever backend is configured.
package hal

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"rover/internal/logging"
	"rover/pkg/types"
)

// MotorOutput accepts a direction and duty cycle for one wheel channel.
type MotorOutput interface {
	WriteMotorOutput(wheel types.Wheel, dir types.Direction, duty int) error
}

// JointOutput positions one arm joint.
type JointOutput interface {
	WriteJointAngle(joint int, angle int) error
}

// DistanceSensor returns the latest reading of a sensor in centimetres.
// A value <= 0 means no echo.
type DistanceSensor interface {
	ReadDistance(side types.Side) float64
}

// Clock supplies monotonic timestamps.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Backend is a complete hardware implementation: a simulator or a driver
// board.
type Backend interface {
	MotorOutput
	JointOutput
	DistanceSensor
	Name() string
	Connect(ctx context.Context) error
	Close() error
}

// HardwareAbstractionLayer wraps a Backend and counts write faults so they
// can be reported without interrupting the control loop.
type HardwareAbstractionLayer struct {
	backend Backend
	faults  atomic.Uint64
	logger  *logging.Logger
}

// NewHardwareAbstractionLayer creates a new HAL instance
func NewHardwareAbstractionLayer(backend Backend) *HardwareAbstractionLayer {
	return &HardwareAbstractionLayer{
		backend: backend,
		logger:  logging.GetLogger("hal"),
	}
}

// Start connects the backend.
func (hal *HardwareAbstractionLayer) Start(ctx context.Context) error {
	hal.logger.Info("Starting Hardware Abstraction Layer", "backend", hal.backend.Name())
	if err := hal.backend.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect %s backend: %w", hal.backend.Name(), err)
	}
	hal.logger.Info("Hardware Abstraction Layer started successfully")
	return nil
}

// Stop brakes every wheel, then closes the backend.
func (hal *HardwareAbstractionLayer) Stop() error {
	hal.logger.Info("Stopping Hardware Abstraction Layer")
	for w := types.Wheel(0); w < types.WheelCount; w++ {
		_ = hal.WriteMotorOutput(w, types.DirectionBrake, 0)
	}
	if err := hal.backend.Close(); err != nil {
		return fmt.Errorf("failed to close %s backend: %w", hal.backend.Name(), err)
	}
	return nil
}

func (hal *HardwareAbstractionLayer) WriteMotorOutput(wheel types.Wheel, dir types.Direction, duty int) error {
	err := hal.backend.WriteMotorOutput(wheel, dir, duty)
	if err != nil {
		hal.fault("motor", int(wheel), err)
	}
	return err
}

func (hal *HardwareAbstractionLayer) WriteJointAngle(joint int, angle int) error {
	err := hal.backend.WriteJointAngle(joint, angle)
	if err != nil {
		hal.fault("joint", joint, err)
	}
	return err
}

func (hal *HardwareAbstractionLayer) ReadDistance(side types.Side) float64 {
	return hal.backend.ReadDistance(side)
}

// Faults returns the number of failed hardware writes since start.
func (hal *HardwareAbstractionLayer) Faults() uint64 {
	return hal.faults.Load()
}

// Backend returns the wrapped backend.
func (hal *HardwareAbstractionLayer) Backend() Backend {
	return hal.backend
}

func (hal *HardwareAbstractionLayer) fault(kind string, channel int, err error) {
	n := hal.faults.Add(1)
	// first failure and then every 100th, a dead board writes every tick
	if n == 1 || n%100 == 0 {
		hal.logger.Error("Hardware write failed", "kind", kind, "channel", channel, "faults", n, "error", err)
	}
}
