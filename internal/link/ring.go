package link

import "sync"

// Ring is a bounded byte FIFO shared by one producer goroutine and the
// control loop. It never grows. Bytes that do not fit are dropped, and so is
// every later write until a Read empties the ring, so the gap always sits at
// the end of the buffered bytes.
type Ring struct {
	mu       sync.Mutex
	buf      []byte
	head     int
	size     int
	overflow bool
}

func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultRingSize
	}
	return &Ring{buf: make([]byte, capacity)}
}

// Write stores as much of p as fits and returns the count stored.
func (r *Ring) Write(p []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.overflow {
		return 0
	}
	n := len(p)
	if free := len(r.buf) - r.size; n > free {
		n = free
		r.overflow = true
	}
	r.put(p[:n])
	return n
}

// WriteAll stores p only if all of it fits.
func (r *Ring) WriteAll(p []byte, tail ...byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.buf)-r.size < len(p)+len(tail) {
		return false
	}
	r.put(p)
	r.put(tail)
	return true
}

func (r *Ring) put(p []byte) {
	for len(p) > 0 {
		tail := (r.head + r.size) % len(r.buf)
		end := len(r.buf)
		if tail < r.head {
			end = r.head
		}
		c := copy(r.buf[tail:end], p)
		r.size += c
		p = p[c:]
	}
}

// Read moves up to len(p) bytes into p. overflowed reports that bytes were
// dropped right after the last byte returned; it is set by the Read that
// empties the ring.
func (r *Ring) Read(p []byte) (n int, overflowed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for n < len(p) && r.size > 0 {
		end := r.head + r.size
		if end > len(r.buf) {
			end = len(r.buf)
		}
		c := copy(p[n:], r.buf[r.head:end])
		r.head = (r.head + c) % len(r.buf)
		r.size -= c
		n += c
	}
	if r.size == 0 {
		r.head = 0
		overflowed = r.overflow
		r.overflow = false
	}
	return n, overflowed
}

func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

func (r *Ring) Cap() int { return len(r.buf) }

func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head, r.size, r.overflow = 0, 0, false
}
