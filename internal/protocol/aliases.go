package protocol

import "fmt"

// ParamShape describes what follows the ':' of a keyword.
type ParamShape int

const (
	ParamNone ParamShape = iota
	ParamInt
	ParamIntPair
	ParamName // identifier or preset number
)

// Alias is one row of the keyword table: a long form, its short form and
// the canonical command they both parse to.
type Alias struct {
	Long  string
	Short string
	Kind  Kind
	Joint int
	Shape ParamShape
	Min   int
	Max   int
	// OK is the success response.
	OK string
}

// Aliases is the authoritative keyword table. Every long form has exactly
// one short form and no token appears twice.
var Aliases = []Alias{
	{Long: "FORWARD", Short: "F", Kind: KindForward, Shape: ParamInt, Min: 0, Max: 100, OK: "OK_FORWARD"},
	{Long: "BACKWARD", Short: "B", Kind: KindBackward, Shape: ParamInt, Min: 0, Max: 100, OK: "OK_BACKWARD"},
	{Long: "LEFT", Short: "L", Kind: KindLeft, Shape: ParamInt, Min: 0, Max: 100, OK: "OK_LEFT"},
	{Long: "RIGHT", Short: "R", Kind: KindRight, Shape: ParamInt, Min: 0, Max: 100, OK: "OK_RIGHT"},
	{Long: "TANK", Short: "T", Kind: KindTank, Shape: ParamIntPair, Min: -100, Max: 100, OK: "OK_TANK"},
	{Long: "STOP", Short: "S", Kind: KindStop, OK: "OK_STOP"},
	{Long: "SERVO1", Short: "SE1", Kind: KindServo, Joint: 0, Shape: ParamInt, Min: 0, Max: 180, OK: "OK_SERVO1"},
	{Long: "SERVO2", Short: "SE2", Kind: KindServo, Joint: 1, Shape: ParamInt, Min: 0, Max: 180, OK: "OK_SERVO2"},
	{Long: "SERVO3", Short: "SE3", Kind: KindServo, Joint: 2, Shape: ParamInt, Min: 0, Max: 180, OK: "OK_SERVO3"},
	{Long: "SERVO4", Short: "SE4", Kind: KindServo, Joint: 3, Shape: ParamInt, Min: 0, Max: 180, OK: "OK_SERVO4"},
	{Long: "SERVO5", Short: "SE5", Kind: KindServo, Joint: 4, Shape: ParamInt, Min: 0, Max: 180, OK: "OK_SERVO5"},
	{Long: "SERVO6", Short: "SE6", Kind: KindServo, Joint: 5, Shape: ParamInt, Min: 0, Max: 180, OK: "OK_SERVO6"},
	{Long: "ARM_PRESET", Short: "P", Kind: KindPreset, Shape: ParamName, OK: "OK_PRESET"},
	{Long: "SPEED", Short: "SP", Kind: KindSpeed, Shape: ParamInt, Min: 20, Max: 100, OK: "OK_SPEED"},
	{Long: "STATUS", Short: "ST", Kind: KindStatus},
	{Long: "EMERGENCY", Short: "E", Kind: KindEmergency, OK: "OK_EMERGENCY"},
	{Long: "PING", Short: "PN", Kind: KindPing, OK: "PONG"},
	{Long: "ARM_HOME", Short: "AH", Kind: KindArmHome, OK: "OK_ARM_HOME"},
	{Long: "GRIPPER_OPEN", Short: "GO", Kind: KindGripperOpen, OK: "OK_GRIPPER_OPEN"},
	{Long: "GRIPPER_CLOSE", Short: "GC", Kind: KindGripperClose, OK: "OK_GRIPPER_CLOSE"},
	{Long: "SERVO_SPEED", Short: "SS", Kind: KindServoSpeed, Shape: ParamInt, Min: 1, Max: 5, OK: "OK_SERVO_SPEED"},
	{Long: "SENSORS_ENABLE", Short: "SON", Kind: KindSensorsEnable, OK: "OK_SENSORS_ENABLE"},
	{Long: "SENSORS_DISABLE", Short: "SOFF", Kind: KindSensorsDisable, OK: "OK_SENSORS_DISABLE"},
	{Long: "COLLISION_DIST", Short: "CD", Kind: KindCollisionDist, Shape: ParamInt, Min: 5, Max: 100, OK: "OK_COLLISION_DIST"},
	{Long: "COLLISION_AGGRESSIVENESS", Short: "AG", Kind: KindAggressiveness, Shape: ParamInt, Min: 1, Max: 3, OK: "OK_AGGRESSIVENESS"},
	{Long: "SENSOR_STATUS", Short: "SNS", Kind: KindSensorStatus},
	{Long: "RESET", Short: "RS", Kind: KindReset, OK: "OK_RESET"},
	{Long: "DEBUG", Short: "DBG", Kind: KindDebug, Shape: ParamInt, Min: 0, Max: 1, OK: "OK_DEBUG"},
	{Long: "STATUS_AUTO", Short: "SA", Kind: KindStatusAuto, Shape: ParamInt, Min: 0, Max: 1, OK: "OK_STATUS_AUTO"},
	{Long: "HELP", Short: "H", Kind: KindHelp, OK: "OK_HELP"},
	{Long: "ARM_ENABLE", Short: "AE", Kind: KindArmEnable, OK: "OK_ARM_ENABLE"},
	{Long: "ARM_DISABLE", Short: "AD", Kind: KindArmDisable, OK: "OK_ARM_DISABLE"},
	{Long: "TEST_MOTORS", Short: "TM", Kind: KindTestMotors, OK: "OK_TEST_MOTORS"},
	{Long: "TEST_SERVOS", Short: "TS", Kind: KindTestServos, OK: "OK_TEST_SERVOS"},
	{Long: "SENSOR_DETAILED", Short: "SND", Kind: KindSensorDetailed},
}

// maxKeywordLength is the longest token in Aliases.
var maxKeywordLength int

var (
	byToken map[string]*Alias
	byKind  [kindCount]*Alias
	servos  [6]*Alias
)

func init() {
	byToken = make(map[string]*Alias, 2*len(Aliases))
	for i := range Aliases {
		a := &Aliases[i]
		for _, tok := range []string{a.Long, a.Short} {
			if _, dup := byToken[tok]; dup {
				panic(fmt.Sprintf("protocol: duplicate keyword %q", tok))
			}
			byToken[tok] = a
			if len(tok) > maxKeywordLength {
				maxKeywordLength = len(tok)
			}
		}
		if a.Kind == KindServo {
			servos[a.Joint] = a
		}
		if byKind[a.Kind] == nil {
			byKind[a.Kind] = a
		}
	}
}

func aliasForKind(k Kind) *Alias {
	if k <= KindUnknown || k >= kindCount {
		return nil
	}
	return byKind[k]
}

// Lookup returns the table row for a command.
func Lookup(cmd *Command) *Alias {
	if cmd.Kind == KindServo && cmd.Joint >= 0 && cmd.Joint < len(servos) {
		return servos[cmd.Joint]
	}
	return aliasForKind(cmd.Kind)
}

// OK returns the success response for a command, or "" for commands whose
// reply is produced by the dispatcher (STATUS, SENSOR_STATUS,
// SENSOR_DETAILED).
func OK(cmd *Command) string {
	if a := Lookup(cmd); a != nil {
		return a.OK
	}
	return ""
}

// EchoesValue reports whether the success response carries the accepted
// value, as in OK_SPEED:60.
func EchoesValue(k Kind) bool {
	switch k {
	case KindSpeed, KindServoSpeed, KindCollisionDist, KindAggressiveness, KindDebug, KindStatusAuto:
		return true
	}
	return false
}
