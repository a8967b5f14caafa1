// Package sim provides in-memory hardware: a simulated driver board, a manual
// clock and a line recorder. The rover binary uses it with -sim and the tests
// use it everywhere.
package sim

import (
	"context"
	"errors"
	"sync"
	"time"

	"rover/pkg/types"
)

// ErrInjected is returned by writes while the board is failing.
var ErrInjected = errors.New("sim: injected write failure")

// MotorWrite is one recorded motor write.
type MotorWrite struct {
	Wheel     types.Wheel
	Direction types.Direction
	Duty      int
}

// JointWrite is one recorded joint write.
type JointWrite struct {
	Joint int
	Angle int
}

// Board is a simulated driver board. Distances default to a clear 200 cm.
type Board struct {
	mu          sync.Mutex
	motors      [types.WheelCount]MotorWrite
	joints      [types.JointCount]int
	distance    [2]float64
	motorWrites []MotorWrite
	jointWrites []JointWrite
	failing     bool
	connected   bool
}

func NewBoard() *Board {
	b := &Board{distance: [2]float64{200, 200}}
	for i := range b.motors {
		b.motors[i].Wheel = types.Wheel(i)
	}
	return b
}

func (b *Board) Name() string { return "sim" }

func (b *Board) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = true
	return nil
}

func (b *Board) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
	return nil
}

func (b *Board) WriteMotorOutput(wheel types.Wheel, dir types.Direction, duty int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failing {
		return ErrInjected
	}
	w := MotorWrite{Wheel: wheel, Direction: dir, Duty: duty}
	b.motors[wheel] = w
	b.motorWrites = append(b.motorWrites, w)
	return nil
}

func (b *Board) WriteJointAngle(joint int, angle int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failing {
		return ErrInjected
	}
	b.joints[joint] = angle
	b.jointWrites = append(b.jointWrites, JointWrite{Joint: joint, Angle: angle})
	return nil
}

func (b *Board) ReadDistance(side types.Side) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.distance[side]
}

// SetDistance sets the reading returned for a side.
func (b *Board) SetDistance(side types.Side, cm float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.distance[side] = cm
}

// SetFailing makes every following write return ErrInjected.
func (b *Board) SetFailing(failing bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failing = failing
}

// Motor returns the last write for a wheel.
func (b *Board) Motor(wheel types.Wheel) MotorWrite {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.motors[wheel]
}

// SignedSpeeds returns the duty of every wheel signed by its direction.
func (b *Board) SignedSpeeds() [types.WheelCount]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out [types.WheelCount]int
	for i, m := range b.motors {
		switch m.Direction {
		case types.DirectionForward:
			out[i] = m.Duty
		case types.DirectionReverse:
			out[i] = -m.Duty
		}
	}
	return out
}

// Joint returns the last angle written to a joint.
func (b *Board) Joint(joint int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.joints[joint]
}

// MotorWrites returns every motor write so far.
func (b *Board) MotorWrites() []MotorWrite {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]MotorWrite(nil), b.motorWrites...)
}

// JointWrites returns every joint write so far.
func (b *Board) JointWrites() []JointWrite {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]JointWrite(nil), b.jointWrites...)
}

// ResetWrites forgets the recorded writes.
func (b *Board) ResetWrites() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.motorWrites = nil
	b.jointWrites = nil
}

// Clock is a manually advanced clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward and returns the new time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}
