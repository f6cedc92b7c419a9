package router

import (
	"github.com/google/uuid"

	"github.com/dmaslov/tablefeed/internal/feed"
)

// Config holds router settings.
type Config struct {
	// SubscriberBuffer is the per-subscription channel depth. A consumer
	// that falls further behind than this loses newest-first; throttled
	// consumers coalesce anyway.
	SubscriberBuffer int
}

// DefaultConfig returns default settings.
func DefaultConfig() Config {
	return Config{
		SubscriberBuffer: 64,
	}
}

// Stats contains runtime counters.
type Stats struct {
	FramesReceived int64
	Routed         int64
	DecodeErrors   int64
	Unmatched      int64 // valid messages with no subscriber for their type
	Subscribers    int
}

// Subscription is a (type, consumer) pairing: purely a view over the
// stream, it never owns data.
type Subscription struct {
	ID   uuid.UUID
	Type string

	r  *router
	ch chan feed.Message
}

// Updates is the live view: every future message of the subscribed type,
// in arrival order.
func (s *Subscription) Updates() <-chan feed.Message {
	return s.ch
}

// Snapshot is the static view: the ordered subsequence of currently
// buffered messages of the subscribed type.
func (s *Subscription) Snapshot() []feed.Message {
	return s.r.Matching(s.Type)
}

// Cancel detaches the subscription and closes its channel.
func (s *Subscription) Cancel() {
	s.r.unsubscribe(s)
}
