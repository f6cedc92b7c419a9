// Package throttle rate-limits per-consumer updates.
//
// A burst of messages inside one window coalesces into a single emit of
// the most recent message (last-write-wins); intermediate messages are
// never queued for later display. Spacing between emits is enforced with
// a token bucket from golang.org/x/time/rate.
package throttle

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dmaslov/tablefeed/internal/feed"
)

// Defaults observed across the dashboard's consumers.
const (
	DefaultWindow = 500 * time.Millisecond
	DefaultPulse  = 300 * time.Millisecond
)

// Config holds throttle settings.
type Config struct {
	// Window is the minimum spacing between visible updates.
	Window time.Duration

	// Pulse is how long Pulsing stays true after an emit, for UI flash
	// cues.
	Pulse time.Duration
}

// DefaultConfig returns the observed defaults.
func DefaultConfig() Config {
	return Config{
		Window: DefaultWindow,
		Pulse:  DefaultPulse,
	}
}

// Throttle coalesces a message stream into at most one emit per window.
type Throttle struct {
	cfg  Config
	emit func(feed.Message)

	mu         sync.Mutex
	limiter    *rate.Limiter
	pending    *feed.Message
	timer      *time.Timer
	pulseUntil time.Time
	stopped    bool
}

// New creates a throttle that delivers coalesced updates to emit. The
// emit callback runs on a timer goroutine and must not call back into the
// throttle's Stop.
func New(cfg Config, emit func(feed.Message)) *Throttle {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Pulse <= 0 {
		cfg.Pulse = DefaultPulse
	}

	lim := rate.NewLimiter(rate.Every(cfg.Window), 1)
	// Drain the initial token: the first window fills before the first
	// emit, so a burst arriving immediately still renders exactly once.
	lim.Allow()

	return &Throttle{
		cfg:     cfg,
		emit:    emit,
		limiter: lim,
	}
}

// Accept offers a message. Never blocks. The most recently accepted
// message in the current window is the one ultimately emitted.
func (t *Throttle) Accept(m feed.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}

	t.pending = &m

	if t.timer != nil {
		// An emit is already scheduled; this message just replaced the
		// candidate.
		return
	}

	res := t.limiter.Reserve()
	t.timer = time.AfterFunc(res.Delay(), t.fire)
}

func (t *Throttle) fire() {
	t.mu.Lock()
	if t.stopped || t.pending == nil {
		t.timer = nil
		t.mu.Unlock()
		return
	}
	m := *t.pending
	t.pending = nil
	t.timer = nil
	t.pulseUntil = time.Now().Add(t.cfg.Pulse)
	emit := t.emit
	t.mu.Unlock()

	emit(m)
}

// Pulsing reports whether an emit happened within the pulse period, so
// the UI can flash that fresh data arrived.
func (t *Throttle) Pulsing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Now().Before(t.pulseUntil)
}

// Stop cancels any scheduled emit. Subsequent Accepts are ignored.
func (t *Throttle) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = true
	t.pending = nil
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
