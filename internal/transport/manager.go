package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dmaslov/tablefeed/internal/feed"
)

// Manager owns the single persistent connection to the backend.
type Manager interface {
	// Start begins connecting and keeps the socket alive until Stop.
	Start(ctx context.Context) error

	// Stop disconnects, cancels any pending reconnect timer, and detaches
	// all socket handlers. Terminal until Start is called again.
	Stop(ctx context.Context) error

	// Send transmits a typed command over the live socket. Best-effort and
	// fire-and-forget: when the socket is not connected the call is a
	// silent no-op. Only a payload that cannot be serialized returns an
	// error.
	Send(msgType string, data any) error

	// Status returns the current connection state and attempt metadata.
	Status() Status

	// OnStateChange registers a callback invoked on every state
	// transition. The returned function cancels the registration.
	// Callbacks run synchronously on the manager goroutine and must not
	// block.
	OnStateChange(fn func(Status)) (cancel func())

	// Frames returns the raw frame stream: everything read off the socket
	// plus synthetic system diagnostics for transport health. The channel
	// stays open across reconnects.
	Frames() <-chan RawFrame
}

type manager struct {
	cfg    ManagerConfig
	logger *slog.Logger

	frames chan RawFrame

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu              sync.RWMutex
	running         bool
	state           State
	attempts        int
	usingFallback   bool
	lastChecked     time.Time
	lastConnectedAt time.Time
	client          Client

	cbMu   sync.Mutex
	cbs    map[int]func(Status)
	nextCB int
}

// NewManager creates a connection manager for the configured endpoint.
func NewManager(cfg ManagerConfig, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FrameBuffer < 1 {
		cfg.FrameBuffer = 256
	}

	return &manager{
		cfg:    cfg,
		logger: logger,
		frames: make(chan RawFrame, cfg.FrameBuffer),
		state:  StateDisconnected,
		cbs:    make(map[int]func(Status)),
	}
}

// Start begins the connect loop.
func (m *manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrRunning
	}
	m.running = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	runCtx := m.ctx
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(runCtx)

	fallback := ""
	if m.cfg.Endpoint.HasFallback() {
		fallback = m.cfg.Endpoint.Fallback.String()
	}
	m.logger.Info("connection manager started",
		"primary", m.cfg.Endpoint.Primary.String(),
		"fallback", fallback,
	)

	return nil
}

// Stop disconnects and waits for the connect loop to finish.
func (m *manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	cancel := m.cancel
	m.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("shutdown timeout, abandoning connect loop")
	}

	m.mu.Lock()
	m.running = false
	m.mu.Unlock()

	m.transition(StateDisconnected, nil)
	m.logger.Info("connection manager stopped")
	return nil
}

// Send serializes {type, data} and writes it to the live socket. No queue,
// no block: callers never check connection state first.
func (m *manager) Send(msgType string, data any) error {
	frame, err := feed.Encode(msgType, data)
	if err != nil {
		return err
	}

	m.mu.RLock()
	cl := m.client
	st := m.state
	m.mu.RUnlock()

	if cl == nil || st != StateConnected {
		m.logger.Debug("send skipped, not connected", "type", msgType, "state", st)
		return nil
	}

	if err := cl.Send(frame); err != nil {
		// Socket errors are recoverable; the read side will notice the
		// broken connection and drive the state machine.
		m.logger.Debug("send failed", "type", msgType, "error", err)
	}
	return nil
}

func (m *manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{
		State:           m.state,
		Attempts:        m.attempts,
		UsingFallback:   m.usingFallback,
		LastChecked:     m.lastChecked,
		LastConnectedAt: m.lastConnectedAt,
	}
}

func (m *manager) OnStateChange(fn func(Status)) (cancel func()) {
	m.cbMu.Lock()
	id := m.nextCB
	m.nextCB++
	m.cbs[id] = fn
	m.cbMu.Unlock()

	return func() {
		m.cbMu.Lock()
		delete(m.cbs, id)
		m.cbMu.Unlock()
	}
}

func (m *manager) Frames() <-chan RawFrame {
	return m.frames
}

// transition applies a state change plus optional field mutations under
// the lock, then notifies state subscribers.
func (m *manager) transition(st State, mutate func()) {
	m.mu.Lock()
	m.state = st
	if mutate != nil {
		mutate()
	}
	status := Status{
		State:           m.state,
		Attempts:        m.attempts,
		UsingFallback:   m.usingFallback,
		LastChecked:     m.lastChecked,
		LastConnectedAt: m.lastConnectedAt,
	}
	m.mu.Unlock()

	m.cbMu.Lock()
	cbs := make([]func(Status), 0, len(m.cbs))
	for _, fn := range m.cbs {
		cbs = append(cbs, fn)
	}
	m.cbMu.Unlock()

	for _, fn := range cbs {
		fn(status)
	}
}

// pushSystem injects a synthetic diagnostic frame into the stream so log
// views render transport health alongside domain events.
func (m *manager) pushSystem(text, level string) {
	now := time.Now()
	fr := RawFrame{Data: feed.SystemFrame(text, level, now), ReceivedAt: now}
	select {
	case m.frames <- fr:
	default:
		m.logger.Warn("frame buffer full, dropping system frame", "text", text)
	}
}

// forward relays a socket frame to the consumer channel without blocking
// the read path.
func (m *manager) forward(fr RawFrame) {
	select {
	case m.frames <- fr:
	default:
		m.logger.Warn("frame buffer full, dropping frame")
	}
}

// run is the connect loop: one iteration per connect attempt or live
// connection. useFallback selects the target for the next attempt and is
// true for at most one attempt per failure cycle.
func (m *manager) run(ctx context.Context) {
	defer m.wg.Done()

	useFallback := false

	for {
		if ctx.Err() != nil {
			return
		}

		target := m.cfg.Endpoint.Primary
		if useFallback {
			target = m.cfg.Endpoint.Fallback
		}

		onFallback := useFallback
		m.transition(StateConnecting, func() {
			m.usingFallback = onFallback
		})

		cl := NewClient(m.cfg.clientConfig(target.String()), m.logger.With("endpoint", target.Host))
		err := cl.Connect(ctx)

		m.mu.Lock()
		m.lastChecked = time.Now()
		m.mu.Unlock()

		if err != nil {
			cl.Close()
			if ctx.Err() != nil {
				return
			}
			m.logger.Warn("connect failed", "url", target.String(), "error", err)

			if m.cfg.Endpoint.HasFallback() && !useFallback {
				// Fallback is tried at most once per failure cycle, and
				// immediately: no delay while an alternate exists.
				useFallback = true
				m.pushSystem("primary unreachable, retrying via fallback", "warn")
				m.transition(StateReconnecting, func() {
					m.usingFallback = true
				})
				continue
			}

			// Cycle failed: every configured address is down. Wait out the
			// retry interval, then start a fresh cycle at the primary.
			useFallback = false
			m.transition(StateReconnecting, func() {
				m.attempts++
				m.usingFallback = false
			})
			m.pushSystem("waiting for backend", "warn")

			timer := time.NewTimer(m.cfg.RetryInterval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			continue
		}

		// Open: attempts reset, fallback cleared for the next cycle.
		m.mu.Lock()
		m.client = cl
		m.attempts = 0
		m.lastConnectedAt = time.Now()
		m.mu.Unlock()

		m.transition(StateConnected, func() {
			m.usingFallback = false
		})
		m.pushSystem("connected", "info")
		useFallback = false

		m.consume(ctx, cl)

		m.mu.Lock()
		m.client = nil
		m.mu.Unlock()
		cl.Close()

		if ctx.Err() != nil {
			return
		}

		// Abnormal close: recoverable, drives the state machine. Retry the
		// primary immediately; failures from here follow the cycle policy.
		m.transition(StateReconnecting, func() {
			m.usingFallback = false
		})
		m.pushSystem("connection lost, reconnecting", "warn")
	}
}

// consume relays frames from a live client until the socket errors, the
// frame channel closes, or the manager is stopped.
func (m *manager) consume(ctx context.Context, cl Client) {
	for {
		select {
		case <-ctx.Done():
			return

		case err := <-cl.Errors():
			m.logger.Warn("connection error", "error", err)
			return

		case fr, ok := <-cl.Frames():
			if !ok {
				return
			}
			m.forward(fr)
		}
	}
}
