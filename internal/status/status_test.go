package status

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rover/internal/hal/sim"
	"rover/pkg/types"
)

type fixedProbe int64

func (p fixedProbe) MemoryKB() int64 { return int64(p) }

func TestFormatStatusLine(t *testing.T) {
	r := NewReporter(fixedProbe(812))
	buf := NewFixedBuffer(DefaultCapacity)

	ok := r.Format(buf, Snapshot{
		Uptime:   12345 * time.Millisecond,
		Ready:    true,
		MemoryKB: r.MemoryKB(),
		LoopHz:   49.96,
		Joints:   types.Angles{90, 90, 90, 90, 40, 90},
	})
	require.True(t, ok)
	assert.Equal(t, "Uptime:12345|Ready:YES|Emergency:OK|Memory:812|Loop:50.0Hz|Joints:90,90,90,90,40,90", buf.String())
	assert.False(t, buf.Truncated())
}

func TestFormatDropsWholeFields(t *testing.T) {
	r := NewReporter(fixedProbe(1))
	full := NewFixedBuffer(DefaultCapacity)
	r.Format(full, Snapshot{Emergency: true, Joints: types.Angles{1, 2, 3, 4, 5, 6}})
	line := full.String()

	cut := strings.Index(line, "|Memory")
	buf := NewFixedBuffer(cut + 3)
	assert.False(t, r.Format(buf, Snapshot{Emergency: true, Joints: types.Angles{1, 2, 3, 4, 5, 6}}))
	assert.True(t, buf.Truncated())
	assert.Equal(t, line[:cut], buf.String())
	assert.LessOrEqual(t, buf.Len(), buf.Cap())
}

func TestFormatSensors(t *testing.T) {
	r := NewReporter(fixedProbe(0))
	buf := NewFixedBuffer(64)
	r.FormatSensors(buf, SensorSnapshot{
		Front: 8, Rear: 123.46,
		FrontClass: types.CollisionRisk, RearClass: types.Clear,
		Enabled: true,
	})
	assert.Equal(t, "SENSOR:8.0:123.5:RISK:CLEAR:ON", buf.String())
}

func TestFormatDetailed(t *testing.T) {
	r := NewReporter(fixedProbe(0))
	buf := NewFixedBuffer(DefaultCapacity)
	require.True(t, r.FormatDetailed(buf, SensorSnapshot{
		Front: 200, Rear: 200,
		FrontClass: types.Clear, RearClass: types.Clear,
		Enabled: false,
	}), "the widest line fits the default capacity")
	assert.Equal(t, `SENSOR_DETAILED:{"front":{"dist":200.0,"obs":false,"risk":false},"rear":{"dist":200.0,"obs":false,"risk":false},"active":false}`, buf.String())

	buf = NewFixedBuffer(DefaultCapacity)
	r.FormatDetailed(buf, SensorSnapshot{
		Front: 9, Rear: 40,
		FrontClass: types.CollisionRisk, RearClass: types.ObstacleDetected,
		Enabled: true,
	})
	body := strings.TrimPrefix(buf.String(), "SENSOR_DETAILED:")
	var parsed struct {
		Front  struct{ Dist float64; Obs, Risk bool } `json:"front"`
		Rear   struct{ Dist float64; Obs, Risk bool } `json:"rear"`
		Active bool                                  `json:"active"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &parsed))
	assert.Equal(t, 9.0, parsed.Front.Dist)
	assert.True(t, parsed.Front.Obs)
	assert.True(t, parsed.Front.Risk)
	assert.True(t, parsed.Rear.Obs)
	assert.False(t, parsed.Rear.Risk)
	assert.True(t, parsed.Active)

	small := NewFixedBuffer(70)
	assert.False(t, r.FormatDetailed(small, SensorSnapshot{Front: 9, Rear: 40, Enabled: true}))
	assert.True(t, strings.HasSuffix(small.String(), `"risk":false}`), "only the front side fits")
}

func TestFixedBufferNeverGrows(t *testing.T) {
	buf := NewFixedBuffer(8)
	assert.True(t, buf.AppendString("ABCD"))
	assert.False(t, buf.AppendString("EFGHI"))
	assert.False(t, buf.AppendByte('x'), "later fields are dropped too")
	assert.Equal(t, "ABCD", buf.String())
	assert.Equal(t, 8, buf.Cap())

	buf.Reset()
	assert.False(t, buf.Truncated())
	assert.True(t, buf.AppendInt(-1234567))
	assert.Equal(t, "-1234567", buf.String())
}

func TestAppendFixed1(t *testing.T) {
	cases := map[float64]string{
		0:      "0.0",
		12.44:  "12.4",
		12.46:  "12.5",
		-3.25:  "-3.3",
		199.99: "200.0",
	}
	for in, want := range cases {
		buf := NewFixedBuffer(16)
		buf.AppendFixed1(in)
		assert.Equal(t, want, buf.String(), "%v", in)
	}
}

func TestFormatDoesNotAllocate(t *testing.T) {
	r := NewReporter(fixedProbe(5))
	buf := NewFixedBuffer(DefaultCapacity)
	s := Snapshot{Uptime: time.Minute, LoopHz: 50, Joints: types.Angles{1, 2, 3, 4, 5, 6}}
	allocs := testing.AllocsPerRun(100, func() {
		buf.Reset()
		r.Format(buf, s)
	})
	assert.Zero(t, allocs)
}

func TestArenaAcquireRelease(t *testing.T) {
	a := NewArena(2, 32)
	b1, err := a.Acquire()
	require.NoError(t, err)
	b2, err := a.Acquire()
	require.NoError(t, err)
	assert.NotSame(t, b1, b2)

	_, err = a.Acquire()
	assert.ErrorIs(t, err, ErrBufferBusy)
	assert.Equal(t, 2, a.InUse())

	b1.AppendString("stale")
	require.NoError(t, a.Release(b1))
	b3, err := a.Acquire()
	require.NoError(t, err)
	assert.Same(t, b1, b3)
	assert.Zero(t, b3.Len(), "acquired buffers start empty")

	assert.ErrorIs(t, a.Release(NewFixedBuffer(8)), ErrForeignBuffer)
}

func TestLoopMeter(t *testing.T) {
	clock := sim.NewClock()
	m := NewLoopMeter()
	m.Tick(clock.Now())
	for i := 0; i < 50; i++ {
		m.Tick(clock.Advance(20 * time.Millisecond))
	}
	assert.InDelta(t, 50.0, m.Hz(), 0.01)
}

func TestRuntimeProbe(t *testing.T) {
	p := &RuntimeProbe{}
	assert.GreaterOrEqual(t, p.MemoryKB(), int64(0))
}
