package feed

import (
	"sync"
	"time"
)

// DefaultLogCapacity is the retained-message cap before FIFO eviction.
const DefaultLogCapacity = 100

// Log is a bounded, ordered retention of the most recent messages. The
// transport side is the single writer; all other parties read through
// Snapshot or the type-filtered views. Capacity is fixed: appending to a
// full log evicts the oldest entry.
type Log struct {
	mu       sync.RWMutex
	buf      []Message
	head     int // index of oldest entry
	count    int
	capacity int

	// generation bumps on Clear; typeVersions bump on any append or
	// eviction touching that type. Together they let derived views detect
	// "my subset is unchanged" without scanning.
	generation   uint64
	typeVersions map[string]uint64

	totalAppended int64
	totalEvicted  int64
}

// LogStats is a point-in-time view of log counters.
type LogStats struct {
	Len           int
	Cap           int
	TotalAppended int64
	TotalEvicted  int64
}

// NewLog creates a log with the given capacity. Non-positive capacities
// fall back to DefaultLogCapacity.
func NewLog(capacity int) *Log {
	if capacity < 1 {
		capacity = DefaultLogCapacity
	}
	return &Log{
		buf:          make([]Message, capacity),
		capacity:     capacity,
		typeVersions: make(map[string]uint64),
	}
}

// Append adds a message, evicting the oldest entry when full.
func (l *Log) Append(m Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count == l.capacity {
		evicted := l.buf[l.head]
		l.buf[l.head] = Message{}
		l.head = (l.head + 1) % l.capacity
		l.count--
		l.totalEvicted++
		l.typeVersions[evicted.Type]++
	}

	l.buf[(l.head+l.count)%l.capacity] = m
	l.count++
	l.totalAppended++
	l.typeVersions[m.Type]++
}

// Snapshot returns a copy of the buffered messages in arrival order.
// Callers may hold or mutate the returned slice freely.
func (l *Log) Snapshot() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Message, l.count)
	for i := 0; i < l.count; i++ {
		out[i] = l.buf[(l.head+i)%l.capacity]
	}
	return out
}

// SnapshotType returns the ordered subsequence of buffered messages whose
// type equals msgType.
func (l *Log) SnapshotType(msgType string) []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Message
	for i := 0; i < l.count; i++ {
		m := l.buf[(l.head+i)%l.capacity]
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

// TypeVersion returns the current (generation, version) pair for msgType.
// The pair changes iff the set of buffered messages of that type changed.
func (l *Log) TypeVersion(msgType string) (uint64, uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.generation, l.typeVersions[msgType]
}

// Clear resets the log. With withMarker set, a single system "log cleared"
// entry is seeded so log views show where the cut happened.
func (l *Log) Clear(withMarker bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.buf {
		l.buf[i] = Message{}
	}
	l.head = 0
	l.count = 0
	l.generation++
	l.typeVersions = make(map[string]uint64)

	if withMarker {
		m := NewSystemMessage("log cleared", "info", time.Now())
		l.buf[0] = m
		l.count = 1
		l.totalAppended++
		l.typeVersions[m.Type]++
	}
}

// Len returns the number of buffered messages.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

// Cap returns the retention capacity.
func (l *Log) Cap() int {
	return l.capacity
}

// Stats returns current counters.
func (l *Log) Stats() LogStats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return LogStats{
		Len:           l.count,
		Cap:           l.capacity,
		TotalAppended: l.totalAppended,
		TotalEvicted:  l.totalEvicted,
	}
}
