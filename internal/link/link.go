// Package link carries operator command lines between the control loop and
// the outside world. Every transport (serial, TCP, websocket) owns an
// Endpoint: its goroutines feed received bytes into the input ring and drain
// outgoing lines from the output ring, while the control loop only ever
// polls and sends without blocking.
package link

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"rover/internal/logging"
)

// DefaultRingSize is the capacity of each ring in bytes.
const DefaultRingSize = 1024

var (
	// ErrInputOverflow reports input bytes dropped because the ring was full.
	ErrInputOverflow = errors.New("link: input overflow")
	ErrOutputFull    = errors.New("link: output buffer full")
	ErrNotConnected  = errors.New("link: no operator connected")
	ErrBusy          = errors.New("link: operator already connected")
)

// Channel is the loop-side view of a link.
type Channel interface {
	Name() string
	// Poll copies buffered input into p without blocking. It returns
	// ErrInputOverflow, alongside any bytes, when input was dropped.
	Poll(p []byte) (int, error)
	// Send queues one line; the terminator is added.
	Send(line []byte) error
}

// Status is the connection state of a link.
type Status int32

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return "disconnected"
	}
}

// Endpoint is a ring-backed Channel. Transports call Open, Feed, Drain and
// Close from their goroutines.
type Endpoint struct {
	name  string
	in    *Ring
	out   *Ring
	ready chan struct{}

	status  atomic.Int32
	mu      sync.RWMutex
	session string
	lastErr error

	sent    atomic.Uint64
	dropped atomic.Uint64
	logger  *logging.Logger
}

func NewEndpoint(name string, ringSize int) *Endpoint {
	return &Endpoint{
		name:   name,
		in:     NewRing(ringSize),
		out:    NewRing(ringSize),
		ready:  make(chan struct{}, 1),
		logger: logging.GetLogger("link").With("link", name),
	}
}

func (e *Endpoint) Name() string { return e.name }

// Poll implements Channel.
func (e *Endpoint) Poll(p []byte) (int, error) {
	n, overflowed := e.in.Read(p)
	if overflowed {
		return n, ErrInputOverflow
	}
	return n, nil
}

// Send implements Channel. Lines sent while no operator is connected are
// discarded with ErrNotConnected.
func (e *Endpoint) Send(line []byte) error {
	if e.Status() != StatusConnected {
		return ErrNotConnected
	}
	if !e.out.WriteAll(line, '\n') {
		e.dropped.Add(1)
		return ErrOutputFull
	}
	e.sent.Add(1)
	select {
	case e.ready <- struct{}{}:
	default:
	}
	return nil
}

// Open starts a new operator session and returns its id. Stale buffered
// bytes of the previous session are discarded.
func (e *Endpoint) Open() string {
	id := uuid.NewString()
	e.in.Reset()
	e.out.Reset()
	e.mu.Lock()
	e.session = id
	e.lastErr = nil
	e.mu.Unlock()
	e.status.Store(int32(StatusConnected))
	e.logger.Info("Operator connected", "session", id)
	return id
}

// Close ends the session. A non-nil cause puts the link in StatusError.
func (e *Endpoint) Close(cause error) {
	e.mu.Lock()
	session := e.session
	e.session = ""
	e.lastErr = cause
	e.mu.Unlock()
	if cause != nil {
		e.status.Store(int32(StatusError))
		e.logger.Warn("Operator link lost", "session", session, "error", cause)
		return
	}
	e.status.Store(int32(StatusDisconnected))
	if session != "" {
		e.logger.Info("Operator disconnected", "session", session)
	}
}

// SetConnecting marks a transport that is (re)opening its device.
func (e *Endpoint) SetConnecting() { e.status.Store(int32(StatusConnecting)) }

// Feed stores received bytes for the control loop.
func (e *Endpoint) Feed(p []byte) int {
	n := e.in.Write(p)
	if n < len(p) {
		e.logger.Warn("Input ring full, bytes dropped", "dropped", len(p)-n)
	}
	return n
}

// Drain moves queued outgoing bytes into p.
func (e *Endpoint) Drain(p []byte) int {
	n, _ := e.out.Read(p)
	return n
}

// Pump writes queued output to w until ctx is done or a write fails.
func (e *Endpoint) Pump(ctx context.Context, w io.Writer) error {
	buf := make([]byte, e.BufferSize())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.ready:
		}
		for {
			n := e.Drain(buf)
			if n == 0 {
				break
			}
			if _, err := w.Write(buf[:n]); err != nil {
				return err
			}
		}
	}
}

// BufferSize is the output ring capacity; a Drain into a buffer this large
// always ends on a line boundary.
func (e *Endpoint) BufferSize() int { return e.out.Cap() }

// Ready is signalled after Send queues output.
func (e *Endpoint) Ready() <-chan struct{} { return e.ready }

func (e *Endpoint) Status() Status { return Status(e.status.Load()) }

func (e *Endpoint) Session() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.session
}

func (e *Endpoint) LastError() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastErr
}

// Sent and Dropped count lines queued and lines refused for lack of space.
func (e *Endpoint) Sent() uint64    { return e.sent.Load() }
func (e *Endpoint) Dropped() uint64 { return e.dropped.Load() }
