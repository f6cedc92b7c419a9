// Package status exposes connection and stream health for status UI.
//
// The Observable aggregates the transport's state machine, the log's
// fill level, and backend health-poll results into one snapshot. Sustained
// failure surfaces as a degraded flag, never as an error: the dashboard
// stays interactive and shows a status chip.
package status

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dmaslov/tablefeed/internal/feed"
	"github.com/dmaslov/tablefeed/internal/transport"
)

// DefaultDegradedAfter is how many consecutive failed connect cycles mark
// the feed as degraded.
const DefaultDegradedAfter = 3

// Snapshot is a point-in-time view of feed health.
type Snapshot struct {
	State           transport.State `json:"state"`
	Attempts        int             `json:"attempts"`
	UsingFallback   bool            `json:"using_fallback"`
	LastChecked     time.Time       `json:"last_checked"`
	LastConnectedAt time.Time       `json:"last_connected_at"`
	BufferLen       int             `json:"buffer_len"`
	BufferCap       int             `json:"buffer_cap"`
	BackendOK       bool            `json:"backend_ok"`
	LastBackendOK   time.Time       `json:"last_backend_ok"`
	Degraded        bool            `json:"degraded"`
}

// Config holds observable settings.
type Config struct {
	// DegradedAfter is the failed-cycle count that flips Degraded.
	DegradedAfter int
}

// Observable tracks current status and notifies subscribers on change.
type Observable struct {
	cfg    Config
	log    *feed.Log
	logger *slog.Logger

	mu            sync.RWMutex
	conn          transport.Status
	reconnects    uint64
	backendOK     bool
	lastBackendOK time.Time

	subMu   sync.Mutex
	subs    map[int]func(Snapshot)
	nextSub int
}

// New creates an Observable over the shared message log.
func New(cfg Config, log *feed.Log, logger *slog.Logger) *Observable {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DegradedAfter < 1 {
		cfg.DegradedAfter = DefaultDegradedAfter
	}
	return &Observable{
		cfg:    cfg,
		log:    log,
		logger: logger,
		subs:   make(map[int]func(Snapshot)),
	}
}

// SetConnection records a transport status change. Wire this to
// Manager.OnStateChange.
func (o *Observable) SetConnection(st transport.Status) {
	o.mu.Lock()
	if st.State == transport.StateReconnecting && o.conn.State != transport.StateReconnecting {
		o.reconnects++
	}
	o.conn = st
	o.mu.Unlock()
	o.notify()
}

// Reconnects counts transitions into the reconnecting state since start.
func (o *Observable) Reconnects() uint64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.reconnects
}

// SetBackendHealth records a health-poll result.
func (o *Observable) SetBackendHealth(ok bool, at time.Time) {
	o.mu.Lock()
	changed := o.backendOK != ok
	o.backendOK = ok
	if ok {
		o.lastBackendOK = at
	}
	o.mu.Unlock()

	if changed {
		if ok {
			o.logger.Info("backend healthy")
		} else {
			o.logger.Warn("backend unavailable")
		}
		o.notify()
	}
}

// Current returns the aggregated snapshot.
func (o *Observable) Current() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snapshotLocked()
}

func (o *Observable) snapshotLocked() Snapshot {
	degraded := o.conn.Attempts >= o.cfg.DegradedAfter || !o.backendOK
	return Snapshot{
		State:           o.conn.State,
		Attempts:        o.conn.Attempts,
		UsingFallback:   o.conn.UsingFallback,
		LastChecked:     o.conn.LastChecked,
		LastConnectedAt: o.conn.LastConnectedAt,
		BufferLen:       o.log.Len(),
		BufferCap:       o.log.Cap(),
		BackendOK:       o.backendOK,
		LastBackendOK:   o.lastBackendOK,
		Degraded:        degraded,
	}
}

// Subscribe registers a change callback. The returned function cancels
// the registration.
func (o *Observable) Subscribe(fn func(Snapshot)) (cancel func()) {
	o.subMu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = fn
	o.subMu.Unlock()

	return func() {
		o.subMu.Lock()
		delete(o.subs, id)
		o.subMu.Unlock()
	}
}

func (o *Observable) notify() {
	snap := o.Current()

	o.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(o.subs))
	for _, fn := range o.subs {
		fns = append(fns, fn)
	}
	o.subMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// Handler serves the current snapshot as JSON. Degraded feeds answer 200:
// degradation is a display state, not an HTTP failure.
func (o *Observable) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(o.Current())
	})
}
