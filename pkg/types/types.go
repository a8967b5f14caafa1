// Package types defines the data structures shared across the rover controller:
// wheel and joint identifiers, movement intents, obstacle classifications and
// the YAML configuration tree that every subsystem is built from.
package types

import (
	"fmt"
	"time"
)

// Wheel identifies one of the four drive motor channels.
type Wheel int

const (
	FrontLeft Wheel = iota
	FrontRight
	RearLeft
	RearRight
)

// WheelCount is the number of motor channels on the chassis.
const WheelCount = 4

func (w Wheel) String() string {
	switch w {
	case FrontLeft:
		return "front_left"
	case FrontRight:
		return "front_right"
	case RearLeft:
		return "rear_left"
	case RearRight:
		return "rear_right"
	default:
		return fmt.Sprintf("wheel(%d)", int(w))
	}
}

// Direction is the H-bridge direction written alongside a duty cycle.
type Direction int

const (
	DirectionBrake Direction = iota
	DirectionForward
	DirectionReverse
)

func (d Direction) String() string {
	switch d {
	case DirectionForward:
		return "forward"
	case DirectionReverse:
		return "reverse"
	default:
		return "brake"
	}
}

// JointCount is the number of arm joints (base, shoulder, elbow, wrist pitch,
// wrist roll, gripper).
const JointCount = 6

// Angles holds one angle per joint, in degrees.
type Angles [JointCount]int

// Angle limits for every joint.
const (
	MinAngle = 0
	MaxAngle = 180
)

// Intent is the kind of movement requested from the motion controller.
type Intent int

const (
	IntentStop Intent = iota
	IntentForward
	IntentBackward
	IntentTurnLeft
	IntentTurnRight
	IntentTank
)

func (i Intent) String() string {
	switch i {
	case IntentForward:
		return "FORWARD"
	case IntentBackward:
		return "BACKWARD"
	case IntentTurnLeft:
		return "LEFT"
	case IntentTurnRight:
		return "RIGHT"
	case IntentTank:
		return "TANK"
	default:
		return "STOP"
	}
}

// Side names a distance sensor position.
type Side int

const (
	SideFront Side = iota
	SideRear
)

func (s Side) String() string {
	if s == SideRear {
		return "REAR"
	}
	return "FRONT"
}

// Classification is the two-threshold reading of a distance sensor.
type Classification int

const (
	Clear Classification = iota
	ObstacleDetected
	CollisionRisk
)

func (c Classification) String() string {
	switch c {
	case ObstacleDetected:
		return "OBSTACLE"
	case CollisionRisk:
		return "RISK"
	default:
		return "CLEAR"
	}
}

// SystemConfig is the root of the YAML configuration file.
type SystemConfig struct {
	Loop     LoopConfig     `yaml:"loop"`
	Motion   MotionConfig   `yaml:"motion"`
	Arm      ArmConfig      `yaml:"arm"`
	Safety   SafetyConfig   `yaml:"safety"`
	Watchdog WatchdogConfig `yaml:"watchdog"`
	Status   StatusConfig   `yaml:"status"`
	Links    LinksConfig    `yaml:"links"`
	Hardware HardwareConfig `yaml:"hardware"`
	Logging  LogConfig      `yaml:"logging"`
}

type LoopConfig struct {
	TickInterval    time.Duration `yaml:"tick_interval"`
	MaxLinesPerTick int           `yaml:"max_lines_per_tick"`
}

type MotionConfig struct {
	SpeedMultiplier int `yaml:"speed_multiplier"` // 20..100 percent
	MinThreshold    int `yaml:"min_threshold"`    // lowest duty that overcomes static friction
	// DriveMapping names a built-in mapping ("standard", "inverted-right").
	DriveMapping string `yaml:"drive_mapping"`
	// Polarity overrides the per-wheel wiring sign of the named mapping.
	Polarity map[string]int `yaml:"polarity,omitempty"`
}

type ArmConfig struct {
	StepSize   int               `yaml:"step_size"` // degrees per tick, 1..5
	Home       []int             `yaml:"home,omitempty"`
	PoseBudget time.Duration     `yaml:"pose_budget"`
	Poses      map[string][]int  `yaml:"poses,omitempty"`
	Presets    map[int]string    `yaml:"presets,omitempty"` // ARM_PRESET:<n> -> pose name
}

type SafetyConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Aggressiveness    int           `yaml:"aggressiveness"`     // 1..3
	CollisionDistance float64       `yaml:"collision_distance"` // cm, overrides the aggressiveness table when > 0
	WarningDistance   float64       `yaml:"warning_distance"`   // cm, overrides the aggressiveness table when > 0
	MaxRange          float64       `yaml:"max_range"`
	StableCount       int           `yaml:"stable_count"`
	ClearDwell        time.Duration `yaml:"clear_dwell"`
	// WarningRepeat re-sends COLLISION_WARNING for every side that is not
	// clear. Zero disables the repeat.
	WarningRepeat time.Duration `yaml:"warning_repeat"`
}

type WatchdogConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type StatusConfig struct {
	Capacity  int           `yaml:"capacity"`
	Interval  time.Duration `yaml:"interval"`
	Periodic  bool          `yaml:"periodic"`
	ArenaSize int           `yaml:"arena_size"`
	// Heartbeat is the HEARTBEAT period. Zero disables it.
	Heartbeat time.Duration `yaml:"heartbeat"`
}

type LinksConfig struct {
	Serial    SerialLinkConfig    `yaml:"serial"`
	TCP       TCPLinkConfig       `yaml:"tcp"`
	WebSocket WebSocketLinkConfig `yaml:"websocket"`
	// RingSize is the capacity of each link's input ring in bytes.
	RingSize int `yaml:"ring_size"`
}

type SerialLinkConfig struct {
	Enabled       bool          `yaml:"enabled"`
	PortName      string        `yaml:"port_name"` // e.g. /dev/rfcomm0, /dev/ttyUSB0
	BaudRate      int           `yaml:"baud_rate"`
	DataBits      int           `yaml:"data_bits"`
	StopBits      int           `yaml:"stop_bits"`
	Parity        string        `yaml:"parity"` // N, E, O
	RetryInterval time.Duration `yaml:"retry_interval"`
}

type TCPLinkConfig struct {
	Enabled bool          `yaml:"enabled"`
	Address string        `yaml:"address"`
	Port    int           `yaml:"port"`
	Timeout time.Duration `yaml:"timeout"`
}

type WebSocketLinkConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

type HardwareConfig struct {
	Driver string       `yaml:"driver"` // "sim" or "modbus"
	Modbus ModbusConfig `yaml:"modbus"`
}

// ModbusConfig describes the motor/servo/sensor driver board.
type ModbusConfig struct {
	Type     string        `yaml:"type"` // tcp, rtu, ascii
	Address  string        `yaml:"address"`
	Port     int           `yaml:"port"`
	BaudRate int           `yaml:"baud_rate"`
	DataBits int           `yaml:"data_bits"`
	StopBits int           `yaml:"stop_bits"`
	Parity   string        `yaml:"parity"`
	SlaveID  byte          `yaml:"slave_id"`
	Timeout  time.Duration `yaml:"timeout"`
	// Register map of the driver board.
	MotorBase  uint16 `yaml:"motor_base"`  // holding registers: direction, duty per wheel
	JointBase  uint16 `yaml:"joint_base"`  // holding registers: one angle per joint
	SensorBase uint16 `yaml:"sensor_base"` // input registers: front, rear in millimetres
}

type LogConfig struct {
	Level      string `yaml:"level"`       // debug, info, warn, error
	Format     string `yaml:"format"`      // json, text
	Output     string `yaml:"output"`      // stdout, stderr, file
	OutputPath string `yaml:"output_path"` // used when output is file
	AddSource  bool   `yaml:"add_source"`
	TimeFormat string `yaml:"time_format"`
}
