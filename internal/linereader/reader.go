// Package linereader turns raw link bytes into bounded command lines.
package linereader

import (
	"bytes"
	"errors"

	"rover/internal/link"
	"rover/internal/protocol"
)

const (
	MaxLineLength          = protocol.MaxLineLength
	DefaultMaxLinesPerTick = 4

	rawSize = 256
)

var (
	ErrLineTooLong   = protocol.ErrLineTooLong
	ErrInputOverflow = link.ErrInputOverflow
)

// Visitor receives one line, or a nil line with ErrLineTooLong or
// ErrInputOverflow. The line is only valid during the call.
type Visitor func(ch link.Channel, line []byte, err error)

type channelState struct {
	ch link.Channel

	raw        [rawSize]byte
	rpos, rlen int

	line       [MaxLineLength]byte
	n          int
	discarding bool
	// gap marks input dropped after the last byte in raw.
	gap bool
}

// Reader polls its channels round-robin. All buffers are allocated when a
// channel is added.
type Reader struct {
	channels []*channelState
	next     int
	maxLines int
}

func New(maxLinesPerTick int, channels ...link.Channel) *Reader {
	if maxLinesPerTick <= 0 {
		maxLinesPerTick = DefaultMaxLinesPerTick
	}
	r := &Reader{maxLines: maxLinesPerTick}
	for _, ch := range channels {
		r.Add(ch)
	}
	return r
}

func (r *Reader) Add(ch link.Channel) {
	r.channels = append(r.channels, &channelState{ch: ch})
}

// Channels returns the polled channels in order.
func (r *Reader) Channels() []link.Channel {
	out := make([]link.Channel, len(r.channels))
	for i, cs := range r.channels {
		out[i] = cs.ch
	}
	return out
}

// Len returns the number of channels.
func (r *Reader) Len() int { return len(r.channels) }

// Channel returns the i-th channel.
func (r *Reader) Channel(i int) link.Channel { return r.channels[i].ch }

// Poll visits at most maxLinesPerTick events without blocking, taking one
// from each channel in turn. It returns the number visited.
func (r *Reader) Poll(visit Visitor) int {
	if len(r.channels) == 0 {
		return 0
	}
	visited, idle := 0, 0
	for visited < r.maxLines && idle < len(r.channels) {
		cs := r.channels[r.next]
		r.next = (r.next + 1) % len(r.channels)

		line, ok, err := cs.nextLine()
		if !ok {
			idle++
			continue
		}
		idle = 0
		visit(cs.ch, line, err)
		visited++
	}
	return visited
}

// nextLine returns the next complete line or error event of one channel.
// At an input gap the partial line is dropped along with everything up to
// the next terminator.
func (cs *channelState) nextLine() ([]byte, bool, error) {
	for {
		if cs.rpos == cs.rlen {
			if cs.gap {
				cs.gap = false
				cs.n = 0
				cs.discarding = true
				return nil, true, ErrInputOverflow
			}
			n, err := cs.ch.Poll(cs.raw[:])
			cs.rpos, cs.rlen = 0, n
			cs.gap = errors.Is(err, link.ErrInputOverflow)
			if n == 0 && !cs.gap {
				return nil, false, nil
			}
		}

		for cs.rpos < cs.rlen {
			c := cs.raw[cs.rpos]
			cs.rpos++
			if c == '\n' || c == '\r' {
				if cs.discarding {
					cs.discarding = false
					continue
				}
				line := bytes.TrimSpace(cs.line[:cs.n])
				cs.n = 0
				if len(line) == 0 {
					continue
				}
				return line, true, nil
			}
			if cs.discarding {
				continue
			}
			if cs.n == MaxLineLength {
				cs.n = 0
				cs.discarding = true
				return nil, true, ErrLineTooLong
			}
			cs.line[cs.n] = c
			cs.n++
		}
	}
}
