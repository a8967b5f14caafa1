// Package motion converts movement intents into signed wheel speeds for the
// four drive channels.
package motion

import (
	"errors"
	"fmt"

	"rover/internal/hal"
	"rover/internal/logging"
	"rover/pkg/types"
)

// Speed limits.
const (
	MaxSpeed            = 100
	MinMultiplier       = 20
	MaxMultiplier       = 100
	DefaultMultiplier   = 100
	DefaultMinThreshold = 20
)

// ErrVetoed matches every *VetoError.
var ErrVetoed = errors.New("motion vetoed")

// VetoError reports a request refused by the Gate.
type VetoError struct {
	Intent types.Intent
	Reason string
}

func (e *VetoError) Error() string {
	return fmt.Sprintf("%s blocked: %s", e.Intent, e.Reason)
}

func (e *VetoError) Is(target error) bool { return target == ErrVetoed }

// Request is a movement intent. Forward, backward and turns carry their speed
// in Left; tank drive uses Left and Right.
type Request struct {
	Intent types.Intent
	Left   int
	Right  int
}

func StopRequest() Request { return Request{Intent: types.IntentStop} }
func ForwardRequest(speed int) Request { return Request{Intent: types.IntentForward, Left: speed, Right: speed} }
func BackwardRequest(speed int) Request { return Request{Intent: types.IntentBackward, Left: speed, Right: speed} }
func TankRequest(left, right int) Request {
	return Request{Intent: types.IntentTank, Left: left, Right: right}
}

// TurnRequest builds an in-place turn.
func TurnRequest(dir TurnDirection, speed int) Request {
	if dir == TurnRight {
		return Request{Intent: types.IntentTurnRight, Left: speed, Right: speed}
	}
	return Request{Intent: types.IntentTurnLeft, Left: speed, Right: speed}
}

// TurnDirection selects an in-place turn.
type TurnDirection int

const (
	TurnLeft TurnDirection = iota
	TurnRight
)

// Gate validates a request before it reaches the wheels. It returns the
// request to apply, possibly scaled down, or a *VetoError.
type Gate interface {
	Validate(req Request) (Request, error)
}

// MotorChannel is the state of one wheel channel as last written.
type MotorChannel struct {
	ID          types.Wheel
	SignedSpeed int
}

// Controller owns the four motor channels.
type Controller struct {
	out          hal.MotorOutput
	gate         Gate
	mapping      DriveMapping
	multiplier   int
	minThreshold int

	channels  [types.WheelCount]MotorChannel
	requested Request
	applied   Request
	vetoes    uint64

	logger *logging.Logger
}

// Option configures a Controller.
type Option func(*Controller)

func WithMapping(m DriveMapping) Option { return func(c *Controller) { c.mapping = m } }
func WithGate(g Gate) Option { return func(c *Controller) { c.gate = g } }
func WithMultiplier(v int) Option { return func(c *Controller) { c.multiplier = clamp(v, MinMultiplier, MaxMultiplier) } }
func WithMinThreshold(v int) Option { return func(c *Controller) { c.minThreshold = clamp(v, 0, MaxSpeed) } }

// NewController creates a stopped controller. No hardware write happens until
// the first change.
func NewController(out hal.MotorOutput, opts ...Option) *Controller {
	c := &Controller{
		out:          out,
		mapping:      StandardMapping,
		multiplier:   DefaultMultiplier,
		minThreshold: DefaultMinThreshold,
		logger:       logging.GetLogger("motion"),
	}
	for i := range c.channels {
		c.channels[i].ID = types.Wheel(i)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) Forward(speed int) error { return c.Execute(ForwardRequest(speed)) }
func (c *Controller) Backward(speed int) error { return c.Execute(BackwardRequest(speed)) }

func (c *Controller) Turn(dir TurnDirection, speed int) error {
	return c.Execute(TurnRequest(dir, speed))
}

func (c *Controller) TankDrive(left, right int) error {
	return c.Execute(TankRequest(left, right))
}

// Execute validates req through the gate and applies it. A vetoed request
// degrades to Stop and returns the *VetoError.
func (c *Controller) Execute(req Request) error {
	req = normalize(req)
	if req.Intent == types.IntentStop {
		c.Stop()
		return nil
	}

	adjusted := req
	if c.gate != nil {
		var err error
		adjusted, err = c.gate.Validate(req)
		if err != nil {
			c.Stop()
			c.vetoes++
			c.logger.Warn("Motion vetoed", "intent", req.Intent.String(), "left", req.Left, "right", req.Right, "error", err)
			return err
		}
		adjusted = normalize(adjusted)
	}

	c.requested = req
	c.apply(adjusted)
	return nil
}

// Reapply runs the operator's current request through the gate again, so a
// scale-down follows the latest sensor readings. A veto is returned without
// stopping; the caller decides how to stop.
func (c *Controller) Reapply() error {
	if c.requested.Intent == types.IntentStop || c.gate == nil {
		return nil
	}
	adjusted, err := c.gate.Validate(c.requested)
	if err != nil {
		return err
	}
	adjusted = normalize(adjusted)
	if adjusted != c.applied {
		c.logger.Debug("Reapplying gated motion", "intent", adjusted.Intent.String(), "left", adjusted.Left, "right", adjusted.Right)
		c.apply(adjusted)
	}
	return nil
}

// Stop zeroes every channel.
func (c *Controller) Stop() {
	c.requested = StopRequest()
	c.apply(StopRequest())
}

// SpinWheel drives one wheel at a logical speed and zeroes the others. The
// gate and the multiplier are bypassed; the wiring polarity still applies.
// Any request or Stop takes the wheels back.
func (c *Controller) SpinWheel(wheel types.Wheel, speed int) {
	c.requested = StopRequest()
	c.applied = StopRequest()
	speed = clamp(speed, -MaxSpeed, MaxSpeed)
	for i := range c.channels {
		v := 0
		if types.Wheel(i) == wheel {
			v = speed * c.mapping.Polarity[i]
		}
		c.write(i, v)
	}
}

// SetSpeedMultiplier sets the global multiplier (clamped to 20..100) and
// rescales the motion in progress.
func (c *Controller) SetSpeedMultiplier(v int) int {
	c.multiplier = clamp(v, MinMultiplier, MaxMultiplier)
	if c.applied.Intent != types.IntentStop {
		c.apply(c.applied)
	}
	return c.multiplier
}

func (c *Controller) SpeedMultiplier() int { return c.multiplier }

// SetGate replaces the gate.
func (c *Controller) SetGate(g Gate) { c.gate = g }

// Channels returns the state of all four wheels.
func (c *Controller) Channels() [types.WheelCount]MotorChannel { return c.channels }

// Speeds returns the signed speed of every wheel.
func (c *Controller) Speeds() [types.WheelCount]int {
	var out [types.WheelCount]int
	for i, ch := range c.channels {
		out[i] = ch.SignedSpeed
	}
	return out
}

// Moving reports whether any wheel is being driven.
func (c *Controller) Moving() bool {
	for _, ch := range c.channels {
		if ch.SignedSpeed != 0 {
			return true
		}
	}
	return false
}

// Requested returns the operator's last accepted request.
func (c *Controller) Requested() Request { return c.requested }

// Applied returns the request currently on the wheels after gating.
func (c *Controller) Applied() Request { return c.applied }

// Vetoes returns the number of requests refused by the gate.
func (c *Controller) Vetoes() uint64 { return c.vetoes }

// Scale applies the global multiplier and the minimum threshold to one
// logical wheel value.
func (c *Controller) Scale(v int) int {
	v = clamp(v, -MaxSpeed, MaxSpeed)
	if v == 0 {
		return 0
	}
	n := v * c.multiplier
	// round half away from zero
	if n >= 0 {
		n = (n + 50) / 100
	} else {
		n = (n - 50) / 100
	}
	switch {
	case n > 0 && n < c.minThreshold:
		n = c.minThreshold
	case n < 0 && -n < c.minThreshold:
		n = -c.minThreshold
	}
	return clamp(n, -MaxSpeed, MaxSpeed)
}

func (c *Controller) apply(req Request) {
	c.applied = req
	logical := c.mapping.Wheels(req)
	for i := range c.channels {
		c.write(i, c.Scale(logical[i])*c.mapping.Polarity[i])
	}
}

func (c *Controller) write(i int, speed int) {
	ch := &c.channels[i]
	if ch.SignedSpeed == speed {
		return
	}
	ch.SignedSpeed = speed
	dir, duty := types.DirectionBrake, 0
	switch {
	case speed > 0:
		dir, duty = types.DirectionForward, speed
	case speed < 0:
		dir, duty = types.DirectionReverse, -speed
	}
	// write failures are counted and logged by the HAL
	_ = c.out.WriteMotorOutput(ch.ID, dir, duty)
}

func normalize(req Request) Request {
	switch req.Intent {
	case types.IntentTank:
		req.Left = clamp(req.Left, -MaxSpeed, MaxSpeed)
		req.Right = clamp(req.Right, -MaxSpeed, MaxSpeed)
	case types.IntentForward, types.IntentBackward, types.IntentTurnLeft, types.IntentTurnRight:
		req.Left = clamp(req.Left, 0, MaxSpeed)
		req.Right = req.Left
	default:
		req = Request{Intent: types.IntentStop}
	}
	return req
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
