package safety

import "time"

// DefaultWatchdogTimeout is the silence allowed before a forced stop.
const DefaultWatchdogTimeout = 2 * time.Second

// Watchdog forces a stop when no command has been accepted for longer than
// its timeout. It fires once per silence episode: after firing it returns to
// the armed-idle state until the next accepted command.
type Watchdog struct {
	timeout time.Duration
	last    time.Time // zero while armed-idle
	fired   uint64
}

func NewWatchdog(timeout time.Duration) *Watchdog {
	if timeout <= 0 {
		timeout = DefaultWatchdogTimeout
	}
	return &Watchdog{timeout: timeout}
}

// Accept records an accepted command.
func (w *Watchdog) Accept(now time.Time) {
	w.last = now
}

// Check reports whether the timeout elapsed since the last accepted command.
// A true result disarms the watchdog.
func (w *Watchdog) Check(now time.Time) bool {
	if w.last.IsZero() {
		return false
	}
	if now.Sub(w.last) <= w.timeout {
		return false
	}
	w.last = time.Time{}
	w.fired++
	return true
}

// Armed reports whether a command is being timed.
func (w *Watchdog) Armed() bool { return !w.last.IsZero() }

// Fired returns how many times the watchdog has forced a stop.
func (w *Watchdog) Fired() uint64 { return w.fired }

func (w *Watchdog) Timeout() time.Duration { return w.timeout }

func (w *Watchdog) SetTimeout(d time.Duration) {
	if d > 0 {
		w.timeout = d
	}
}
