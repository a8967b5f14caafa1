package linereader

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rover/internal/link"
)

type event struct {
	channel string
	line    string
	err     error
}

func collect(r *Reader) []event {
	var events []event
	r.Poll(func(ch link.Channel, line []byte, err error) {
		events = append(events, event{channel: ch.Name(), line: string(line), err: err})
	})
	return events
}

func endpoint(name string, size int) *link.Endpoint {
	e := link.NewEndpoint(name, size)
	e.Open()
	return e
}

func TestSplitsOnEitherTerminator(t *testing.T) {
	e := endpoint("a", 256)
	r := New(10, e)
	e.Feed([]byte("F:50\rB:20\n  S  \r\n\n\rPING\n"))

	events := collect(r)
	require.Len(t, events, 4)
	for i, want := range []string{"F:50", "B:20", "S", "PING"} {
		assert.Equal(t, want, events[i].line)
		assert.NoError(t, events[i].err)
	}
}

func TestPartialLineWaits(t *testing.T) {
	e := endpoint("a", 256)
	r := New(4, e)
	e.Feed([]byte("FORW"))
	assert.Empty(t, collect(r))

	e.Feed([]byte("ARD:10\n"))
	events := collect(r)
	require.Len(t, events, 1)
	assert.Equal(t, "FORWARD:10", events[0].line)
}

func TestLongLineIsReported(t *testing.T) {
	e := endpoint("a", 1024)
	r := New(4, e)
	e.Feed([]byte(strings.Repeat("X", MaxLineLength+1) + "tail\nPING\n"))

	events := collect(r)
	require.Len(t, events, 2)
	assert.ErrorIs(t, events[0].err, ErrLineTooLong)
	assert.Empty(t, events[0].line)
	assert.Equal(t, "PING", events[1].line)
}

func TestLineAtLimitIsAccepted(t *testing.T) {
	e := endpoint("a", 1024)
	r := New(4, e)
	long := strings.Repeat("Y", MaxLineLength)
	e.Feed([]byte(long + "\n"))

	events := collect(r)
	require.Len(t, events, 1)
	assert.Equal(t, long, events[0].line)
}

func TestBoundedLinesPerTick(t *testing.T) {
	e := endpoint("a", 256)
	r := New(2, e)
	e.Feed([]byte("S\nS\nS\nPING\n"))

	assert.Len(t, collect(r), 2)
	events := collect(r)
	require.Len(t, events, 2)
	assert.Equal(t, "PING", events[1].line)
	assert.Empty(t, collect(r))
}

func TestRoundRobinAcrossChannels(t *testing.T) {
	a, b := endpoint("a", 256), endpoint("b", 256)
	r := New(4, a, b)
	a.Feed([]byte("A1\nA2\nA3\n"))
	b.Feed([]byte("B1\nB2\nB3\n"))

	events := collect(r)
	require.Len(t, events, 4)
	got := make([]string, len(events))
	for i, ev := range events {
		got[i] = ev.channel + ":" + ev.line
	}
	assert.Equal(t, []string{"a:A1", "b:B1", "a:A2", "b:B2"}, got)
}

func TestInputOverflowIsReported(t *testing.T) {
	e := endpoint("a", 8)
	r := New(4, e)
	e.Feed([]byte("PING\nPING\n"))

	events := collect(r)
	require.Len(t, events, 2)
	assert.Equal(t, "PING", events[0].line)
	assert.ErrorIs(t, events[1].err, ErrInputOverflow)
}

func TestOverflowGapDoesNotJoinLines(t *testing.T) {
	e := endpoint("a", 5)
	r := New(4, e)
	e.Feed([]byte("SE1:4"))
	e.Feed([]byte("5\nSE2:1"))

	events := collect(r)
	require.Len(t, events, 1)
	assert.ErrorIs(t, events[0].err, ErrInputOverflow)

	e.Feed([]byte("20\n"))
	assert.Empty(t, collect(r), "tail of the broken line is discarded")

	e.Feed([]byte("PING\n"))
	events = collect(r)
	require.Len(t, events, 1)
	assert.Equal(t, "PING", events[0].line)
	assert.NoError(t, events[0].err)
}

func TestPollDoesNotAllocate(t *testing.T) {
	e := endpoint("a", 256)
	r := New(4, e)
	visit := func(link.Channel, []byte, error) {}
	line := []byte("F:50\n")
	allocs := testing.AllocsPerRun(100, func() {
		e.Feed(line)
		r.Poll(visit)
	})
	assert.Zero(t, allocs)
}
