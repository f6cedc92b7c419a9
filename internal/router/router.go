package router

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/dmaslov/tablefeed/internal/feed"
	"github.com/dmaslov/tablefeed/internal/transport"
)

// Router decodes raw frames and distributes messages to subscribers.
type Router interface {
	// Start begins routing frames from the input channel.
	Start(ctx context.Context) error

	// Stop shuts the router down and cancels all subscriptions.
	Stop(ctx context.Context) error

	// Subscribe registers a consumer for one message type.
	Subscribe(msgType string) *Subscription

	// Matching returns the ordered subsequence of buffered messages of the
	// given type. The returned slice is referentially stable while the
	// matching set is unchanged.
	Matching(msgType string) []feed.Message

	// Log returns the shared message log.
	Log() *feed.Log

	// Stats returns current counters.
	Stats() Stats
}

type memoEntry struct {
	generation uint64
	version    uint64
	msgs       []feed.Message
}

type router struct {
	cfg    Config
	logger *slog.Logger

	input <-chan transport.RawFrame
	log   *feed.Log

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	subsMu sync.RWMutex
	subs   map[string]map[uuid.UUID]*Subscription

	memoMu sync.Mutex
	memo   map[string]memoEntry

	statsMu      sync.Mutex
	received     int64
	routed       int64
	decodeErrors int64
	unmatched    int64
}

// New creates a Router over the transport's frame stream. The router is
// the single writer to log.
func New(cfg Config, input <-chan transport.RawFrame, log *feed.Log, logger *slog.Logger) Router {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SubscriberBuffer < 1 {
		cfg.SubscriberBuffer = DefaultConfig().SubscriberBuffer
	}

	return &router{
		cfg:    cfg,
		logger: logger,
		input:  input,
		log:    log,
		subs:   make(map[string]map[uuid.UUID]*Subscription),
		memo:   make(map[string]memoEntry),
	}
}

// Start begins the route loop.
func (r *router) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.routeLoop()

	r.logger.Info("router started", "log_capacity", r.log.Cap())
	return nil
}

// Stop shuts down the route loop and closes every subscription.
func (r *router) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		r.logger.Warn("router stop timed out")
	}

	r.subsMu.Lock()
	for _, byID := range r.subs {
		for _, sub := range byID {
			close(sub.ch)
		}
	}
	r.subs = make(map[string]map[uuid.UUID]*Subscription)
	r.subsMu.Unlock()

	r.logger.Info("router stopped")
	return nil
}

// Subscribe registers a consumer for msgType.
func (r *router) Subscribe(msgType string) *Subscription {
	sub := &Subscription{
		ID:   uuid.New(),
		Type: msgType,
		r:    r,
		ch:   make(chan feed.Message, r.cfg.SubscriberBuffer),
	}

	r.subsMu.Lock()
	byID, ok := r.subs[msgType]
	if !ok {
		byID = make(map[uuid.UUID]*Subscription)
		r.subs[msgType] = byID
	}
	byID[sub.ID] = sub
	r.subsMu.Unlock()

	r.logger.Debug("subscribed", "type", msgType, "id", sub.ID)
	return sub
}

func (r *router) unsubscribe(sub *Subscription) {
	r.subsMu.Lock()
	byID, ok := r.subs[sub.Type]
	if ok {
		if _, live := byID[sub.ID]; live {
			delete(byID, sub.ID)
			close(sub.ch)
		}
		if len(byID) == 0 {
			delete(r.subs, sub.Type)
		}
	}
	r.subsMu.Unlock()
}

// Matching returns the buffered subsequence for msgType, memoized on the
// log's per-type version so unrelated traffic does not invalidate it.
func (r *router) Matching(msgType string) []feed.Message {
	gen, ver := r.log.TypeVersion(msgType)

	r.memoMu.Lock()
	defer r.memoMu.Unlock()

	if e, ok := r.memo[msgType]; ok && e.generation == gen && e.version == ver {
		return e.msgs
	}

	msgs := r.log.SnapshotType(msgType)
	r.memo[msgType] = memoEntry{generation: gen, version: ver, msgs: msgs}
	return msgs
}

func (r *router) Log() *feed.Log {
	return r.log
}

// Stats returns current counters.
func (r *router) Stats() Stats {
	r.statsMu.Lock()
	s := Stats{
		FramesReceived: r.received,
		Routed:         r.routed,
		DecodeErrors:   r.decodeErrors,
		Unmatched:      r.unmatched,
	}
	r.statsMu.Unlock()

	r.subsMu.RLock()
	for _, byID := range r.subs {
		s.Subscribers += len(byID)
	}
	r.subsMu.RUnlock()

	return s
}

func (r *router) routeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case fr, ok := <-r.input:
			if !ok {
				r.logger.Info("frame stream closed")
				return
			}
			r.route(fr)
		}
	}
}

// route decodes one frame, appends it, and fans it out. Decode failure is
// scoped to the frame: counted, logged, dropped.
func (r *router) route(fr transport.RawFrame) {
	r.statsMu.Lock()
	r.received++
	r.statsMu.Unlock()

	msg, err := feed.Decode(fr.Data, fr.ReceivedAt)
	if err != nil {
		r.logger.Debug("dropping malformed frame", "error", err)
		r.statsMu.Lock()
		r.decodeErrors++
		r.statsMu.Unlock()
		return
	}

	r.log.Append(msg)

	r.subsMu.RLock()
	byID := r.subs[msg.Type]
	hadSubs := len(byID) > 0
	delivered := false
	for _, sub := range byID {
		select {
		case sub.ch <- msg:
			delivered = true
		default:
			r.logger.Warn("subscriber lagging, dropping update",
				"type", msg.Type,
				"id", sub.ID,
			)
		}
	}
	r.subsMu.RUnlock()

	r.statsMu.Lock()
	if delivered {
		r.routed++
	} else if !hadSubs {
		r.unmatched++
	}
	r.statsMu.Unlock()
}
