// Package protocol implements the operator text protocol: one command per
// line, KEYWORD or KEYWORD:<params>, long or short keyword forms.
package protocol

// Kind is the canonical command kind shared by the long and short forms.
type Kind int

const (
	KindUnknown Kind = iota
	KindForward
	KindBackward
	KindLeft
	KindRight
	KindTank
	KindStop
	KindServo
	KindPreset
	KindSpeed
	KindStatus
	KindEmergency
	KindPing
	KindArmHome
	KindGripperOpen
	KindGripperClose
	KindServoSpeed
	KindSensorsEnable
	KindSensorsDisable
	KindCollisionDist
	KindAggressiveness
	KindSensorStatus
	KindReset
	KindDebug
	KindStatusAuto
	KindHelp
	KindArmEnable
	KindArmDisable
	KindTestMotors
	KindTestServos
	KindSensorDetailed

	kindCount
)

// KindCount is the number of command kinds, usable to size dispatch tables.
const KindCount = int(kindCount)

// MaxNameLength bounds a pose name parameter.
const MaxNameLength = 16

// Command is a parsed command line. It holds no references to the line it
// was parsed from.
type Command struct {
	Kind Kind
	// Joint is the zero-based joint for KindServo.
	Joint int
	Args  [2]int
	NArgs int
	// Clamped reports that at least one numeric parameter was outside its
	// range and was moved to the nearest bound.
	Clamped bool

	name    [MaxNameLength]byte
	nameLen int
}

// Name returns the string parameter (pose name), or nil.
func (c *Command) Name() []byte {
	return c.name[:c.nameLen]
}

// HasName reports whether a string parameter was given.
func (c *Command) HasName() bool {
	return c.nameLen > 0
}

// Arg returns the i-th numeric parameter.
func (c *Command) Arg(i int) int {
	return c.Args[i]
}

// IsMotion reports whether the command drives the wheels.
func (k Kind) IsMotion() bool {
	switch k {
	case KindForward, KindBackward, KindLeft, KindRight, KindTank, KindTestMotors:
		return true
	}
	return false
}

// IsArm reports whether the command moves the arm.
func (k Kind) IsArm() bool {
	switch k {
	case KindServo, KindPreset, KindArmHome, KindGripperOpen, KindGripperClose, KindTestServos:
		return true
	}
	return false
}

func (k Kind) String() string {
	if k == KindServo {
		return "SERVO"
	}
	if a := aliasForKind(k); a != nil {
		return a.Long
	}
	return "UNKNOWN"
}
