package motion

import (
	"fmt"
	"strings"

	"rover/pkg/types"
)

// DriveMapping assigns a sign to each wheel for every movement intent, plus
// a wiring polarity per channel. It is the only place wheel signs live.
type DriveMapping struct {
	Name     string
	Signs    [types.IntentTank + 1][types.WheelCount]int
	Polarity [types.WheelCount]int
}

//                          FL  FR  RL  RR
var standardSigns = [types.IntentTank + 1][types.WheelCount]int{
	types.IntentStop:      {0, 0, 0, 0},
	types.IntentForward:   {+1, +1, +1, +1},
	types.IntentBackward:  {-1, -1, -1, -1},
	types.IntentTurnLeft:  {-1, +1, -1, +1},
	types.IntentTurnRight: {+1, -1, +1, -1},
	// tank: sign applied to the left value on FL/RL and the right value on FR/RR
	types.IntentTank: {+1, +1, +1, +1},
}

// StandardMapping drives all four motors with the same polarity.
var StandardMapping = DriveMapping{
	Name:     "standard",
	Signs:    standardSigns,
	Polarity: [types.WheelCount]int{+1, +1, +1, +1},
}

// InvertedRightMapping is for chassis where the right motor pair is wired
// reversed relative to the left pair.
var InvertedRightMapping = DriveMapping{
	Name:     "inverted-right",
	Signs:    standardSigns,
	Polarity: [types.WheelCount]int{+1, -1, +1, -1},
}

// MappingByName returns a built-in mapping.
func MappingByName(name string) (DriveMapping, error) {
	switch strings.ToLower(name) {
	case "", "standard":
		return StandardMapping, nil
	case "inverted-right":
		return InvertedRightMapping, nil
	default:
		return DriveMapping{}, fmt.Errorf("unknown drive mapping: %s", name)
	}
}

// WithPolarity overrides wiring signs by wheel name (front_left, ...).
func (m DriveMapping) WithPolarity(overrides map[string]int) (DriveMapping, error) {
	for name, sign := range overrides {
		if sign != 1 && sign != -1 {
			return m, fmt.Errorf("polarity for %s must be 1 or -1, got %d", name, sign)
		}
		found := false
		for w := types.Wheel(0); w < types.WheelCount; w++ {
			if w.String() == name {
				m.Polarity[w] = sign
				found = true
			}
		}
		if !found {
			return m, fmt.Errorf("unknown wheel in polarity: %s", name)
		}
	}
	return m, nil
}

// Wheels returns the logical signed value of every wheel for a request,
// before scaling and wiring polarity.
func (m DriveMapping) Wheels(req Request) [types.WheelCount]int {
	var out [types.WheelCount]int
	signs := m.Signs[req.Intent]
	for w := range out {
		v := req.Left
		if req.Intent == types.IntentTank && (types.Wheel(w) == types.FrontRight || types.Wheel(w) == types.RearRight) {
			v = req.Right
		}
		out[w] = signs[w] * v
	}
	return out
}
