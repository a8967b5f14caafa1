// Package status formats the status, sensor and notification lines the rover
// sends to its operator. Every line is built in a preallocated FixedBuffer
// borrowed from an Arena, so the control loop never grows a string.
package status

import (
	"errors"
	"math"
	"strconv"
)

// DefaultCapacity fits the longest status line with room to spare.
const DefaultCapacity = 128

var (
	ErrBufferBusy    = errors.New("status: no free buffer")
	ErrForeignBuffer = errors.New("status: buffer not owned by arena")
)

// FixedBuffer is a line buffer that never grows. Appends are field-atomic:
// a field that does not fit is dropped together with every later field and
// the buffer reports Truncated.
type FixedBuffer struct {
	buf       []byte
	mark      int
	open      bool
	truncated bool
}

func NewFixedBuffer(capacity int) *FixedBuffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &FixedBuffer{buf: make([]byte, 0, capacity)}
}

// Begin opens a field spanning several appends. Until End, an overflow rolls
// the buffer back to where the field began.
func (b *FixedBuffer) Begin() {
	b.mark = len(b.buf)
	b.open = true
}

// End closes the field and reports whether it was kept.
func (b *FixedBuffer) End() bool {
	b.open = false
	return !b.truncated
}

func (b *FixedBuffer) reserve(n int) bool {
	if b.truncated {
		return false
	}
	if len(b.buf)+n <= cap(b.buf) {
		return true
	}
	b.truncated = true
	if b.open {
		b.buf = b.buf[:b.mark]
	}
	return false
}

func (b *FixedBuffer) AppendString(s string) bool {
	if !b.reserve(len(s)) {
		return false
	}
	b.buf = append(b.buf, s...)
	return true
}

func (b *FixedBuffer) AppendBytes(p []byte) bool {
	if !b.reserve(len(p)) {
		return false
	}
	b.buf = append(b.buf, p...)
	return true
}

func (b *FixedBuffer) AppendByte(c byte) bool {
	if !b.reserve(1) {
		return false
	}
	b.buf = append(b.buf, c)
	return true
}

// AppendInt writes v in base 10.
func (b *FixedBuffer) AppendInt(v int64) bool {
	var scratch [20]byte
	return b.AppendBytes(strconv.AppendInt(scratch[:0], v, 10))
}

// AppendFixed1 writes v rounded to one decimal place, as in 12.5.
func (b *FixedBuffer) AppendFixed1(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return b.AppendString("0.0")
	}
	tenths := int64(math.Round(v * 10))
	var scratch [24]byte
	out := scratch[:0]
	if tenths < 0 {
		out = append(out, '-')
		tenths = -tenths
	}
	out = strconv.AppendInt(out, tenths/10, 10)
	out = append(out, '.', byte('0'+tenths%10))
	return b.AppendBytes(out)
}

// Bytes returns the content. The slice is only valid until the next Reset.
func (b *FixedBuffer) Bytes() []byte { return b.buf }

func (b *FixedBuffer) String() string { return string(b.buf) }

func (b *FixedBuffer) Len() int { return len(b.buf) }
func (b *FixedBuffer) Cap() int { return cap(b.buf) }

// Truncated reports whether any field was dropped.
func (b *FixedBuffer) Truncated() bool { return b.truncated }

func (b *FixedBuffer) Reset() {
	b.buf = b.buf[:0]
	b.mark = 0
	b.open = false
	b.truncated = false
}

// Arena is a fixed set of buffers handed out one at a time. It has a single
// consumer, the control loop, and is not safe for concurrent use.
type Arena struct {
	bufs  []FixedBuffer
	inUse []bool
}

// NewArena preallocates size buffers of the given capacity.
func NewArena(size, capacity int) *Arena {
	if size <= 0 {
		size = 4
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	a := &Arena{
		bufs:  make([]FixedBuffer, size),
		inUse: make([]bool, size),
	}
	for i := range a.bufs {
		a.bufs[i].buf = make([]byte, 0, capacity)
	}
	return a
}

// Acquire returns an empty buffer or ErrBufferBusy when all are out.
func (a *Arena) Acquire() (*FixedBuffer, error) {
	for i := range a.bufs {
		if !a.inUse[i] {
			a.inUse[i] = true
			a.bufs[i].Reset()
			return &a.bufs[i], nil
		}
	}
	return nil, ErrBufferBusy
}

// Release hands a buffer back. Releasing a free buffer is a no-op.
func (a *Arena) Release(b *FixedBuffer) error {
	for i := range a.bufs {
		if &a.bufs[i] == b {
			a.inUse[i] = false
			return nil
		}
	}
	return ErrForeignBuffer
}

// InUse returns how many buffers are currently acquired.
func (a *Arena) InUse() int {
	n := 0
	for _, used := range a.inUse {
		if used {
			n++
		}
	}
	return n
}

func (a *Arena) Size() int { return len(a.bufs) }
