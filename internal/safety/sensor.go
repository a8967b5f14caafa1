package safety

import (
	"math"

	"rover/pkg/types"
)

// stableDelta is how close, in cm, consecutive readings must be to count
// toward a less severe classification.
const stableDelta = 5.0

// SensorState is the filtered view of one distance sensor.
type SensorState struct {
	Side     types.Side
	Distance float64
	Class    types.Classification
	// Active is false while the sensor returns no valid echo.
	Active bool

	candidate     types.Classification
	candidateDist float64
	streak        int
}

// update feeds one raw reading. A more severe classification applies at
// once; a less severe one needs stableCount consistent readings. It reports
// whether the classification changed.
func (s *SensorState) update(d float64, th Thresholds, maxRange float64, stableCount int) bool {
	if !(d > 0 && d <= maxRange) || math.IsNaN(d) {
		s.Active = false
		s.streak = 0
		return false
	}
	s.Active = true
	s.Distance = d
	cls := th.Classify(d)

	switch {
	case cls == s.Class:
		s.streak = 0
		return false
	case cls > s.Class || stableCount <= 1:
		s.Class = cls
		s.streak = 0
		return true
	}

	if s.streak > 0 && cls == s.candidate && math.Abs(d-s.candidateDist) < stableDelta {
		s.streak++
	} else {
		s.candidate = cls
		s.streak = 1
	}
	s.candidateDist = d
	if s.streak >= stableCount {
		s.Class = cls
		s.streak = 0
		return true
	}
	return false
}

// reset forgets the filter state and marks the side clear.
func (s *SensorState) reset() {
	side := s.Side
	*s = SensorState{Side: side}
}
