package status

import (
	"runtime"
	"time"

	"rover/pkg/types"
)

// MemoryProbe reports a free-memory indicator in KB.
type MemoryProbe interface {
	MemoryKB() int64
}

// RuntimeProbe reads the Go runtime: memory obtained from the OS that the
// heap is not using.
type RuntimeProbe struct {
	stats runtime.MemStats
}

func (p *RuntimeProbe) MemoryKB() int64 {
	runtime.ReadMemStats(&p.stats)
	if p.stats.Sys < p.stats.HeapAlloc {
		return 0
	}
	return int64(p.stats.Sys-p.stats.HeapAlloc) / 1024
}

// Snapshot is the robot state one status line shows.
type Snapshot struct {
	Uptime    time.Duration
	Ready     bool
	Emergency bool
	MemoryKB  int64
	LoopHz    float64
	Joints    types.Angles
}

// SensorSnapshot is the state the SENSOR line shows.
type SensorSnapshot struct {
	Front, Rear           float64
	FrontClass, RearClass types.Classification
	Enabled               bool
}

// Reporter writes status lines in their fixed field order.
type Reporter struct {
	probe MemoryProbe
}

// NewReporter uses probe for the memory field, or the Go runtime when nil.
func NewReporter(probe MemoryProbe) *Reporter {
	if probe == nil {
		probe = &RuntimeProbe{}
	}
	return &Reporter{probe: probe}
}

func (r *Reporter) MemoryKB() int64 { return r.probe.MemoryKB() }

// Format writes
//
//	Uptime:<ms>|Ready:<YES/NO>|Emergency:<ACTIVE/OK>|Memory:<kb>|Loop:<hz>Hz|Joints:<a1>,...,<a6>
//
// and reports whether every field fit.
func (r *Reporter) Format(buf *FixedBuffer, s Snapshot) bool {
	buf.Begin()
	buf.AppendString("Uptime:")
	buf.AppendInt(s.Uptime.Milliseconds())
	buf.End()

	buf.Begin()
	buf.AppendString("|Ready:")
	buf.AppendString(yesNo(s.Ready))
	buf.End()

	buf.Begin()
	buf.AppendString("|Emergency:")
	if s.Emergency {
		buf.AppendString("ACTIVE")
	} else {
		buf.AppendString("OK")
	}
	buf.End()

	buf.Begin()
	buf.AppendString("|Memory:")
	buf.AppendInt(s.MemoryKB)
	buf.End()

	buf.Begin()
	buf.AppendString("|Loop:")
	buf.AppendFixed1(s.LoopHz)
	buf.AppendString("Hz")
	buf.End()

	buf.Begin()
	buf.AppendString("|Joints:")
	for i, a := range s.Joints {
		if i > 0 {
			buf.AppendByte(',')
		}
		buf.AppendInt(int64(a))
	}
	return buf.End()
}

// FormatSensors writes SENSOR:<front>:<rear>:<FCLASS>:<RCLASS>:<ON|OFF>.
func (r *Reporter) FormatSensors(buf *FixedBuffer, s SensorSnapshot) bool {
	buf.Begin()
	buf.AppendString("SENSOR:")
	buf.AppendFixed1(s.Front)
	buf.AppendByte(':')
	buf.AppendFixed1(s.Rear)
	buf.End()

	buf.Begin()
	buf.AppendByte(':')
	buf.AppendString(s.FrontClass.String())
	buf.AppendByte(':')
	buf.AppendString(s.RearClass.String())
	buf.End()

	buf.Begin()
	if s.Enabled {
		buf.AppendString(":ON")
	} else {
		buf.AppendString(":OFF")
	}
	return buf.End()
}

// FormatDetailed writes SENSOR_DETAILED:<json> with the distance, the
// obstacle and risk flags of each side and whether checks are active. A side
// inside the warning distance counts as an obstacle even at risk.
func (r *Reporter) FormatDetailed(buf *FixedBuffer, s SensorSnapshot) bool {
	buf.Begin()
	buf.AppendString("SENSOR_DETAILED:{")
	appendSide(buf, `"front":{"dist":`, s.Front, s.FrontClass)
	buf.End()

	buf.Begin()
	appendSide(buf, `,"rear":{"dist":`, s.Rear, s.RearClass)
	buf.End()

	buf.Begin()
	buf.AppendString(`,"active":`)
	buf.AppendString(trueFalse(s.Enabled))
	buf.AppendByte('}')
	return buf.End()
}

func appendSide(buf *FixedBuffer, head string, d float64, c types.Classification) {
	buf.AppendString(head)
	buf.AppendFixed1(d)
	buf.AppendString(`,"obs":`)
	buf.AppendString(trueFalse(c != types.Clear))
	buf.AppendString(`,"risk":`)
	buf.AppendString(trueFalse(c == types.CollisionRisk))
	buf.AppendByte('}')
}

func trueFalse(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

func yesNo(v bool) string {
	if v {
		return "YES"
	}
	return "NO"
}

// LoopMeter measures the tick rate over one-second windows.
type LoopMeter struct {
	window time.Duration
	start  time.Time
	count  int
	hz     float64
}

func NewLoopMeter() *LoopMeter {
	return &LoopMeter{window: time.Second}
}

// Tick counts one loop iteration.
func (m *LoopMeter) Tick(now time.Time) {
	if m.start.IsZero() {
		m.start = now
		return
	}
	m.count++
	if elapsed := now.Sub(m.start); elapsed >= m.window {
		m.hz = float64(m.count) / elapsed.Seconds()
		m.count = 0
		m.start = now
	}
}

// Hz returns the rate of the last complete window.
func (m *LoopMeter) Hz() float64 { return m.hz }
