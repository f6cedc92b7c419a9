package transport

import (
	"errors"
	"time"

	"github.com/dmaslov/tablefeed/internal/endpoint"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrStaleSocket   = errors.New("socket stale (no ping)")
	ErrAlreadyClosed = errors.New("already closed")
	ErrRunning       = errors.New("manager already running")
)

// State is the connection lifecycle state. Exactly one holds at any
// instant.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// RawFrame wraps raw frame bytes with the local receive timestamp.
type RawFrame struct {
	Data       []byte
	ReceivedAt time.Time
}

// Status is a snapshot of the manager's connection state and attempt
// metadata.
type Status struct {
	State State

	// Attempts counts consecutive failed connect cycles. Reset to 0 on a
	// successful open at either address.
	Attempts int

	// UsingFallback is set while the current cycle is (or last connected
	// via) the fallback address. Cleared at the start of each new failure
	// cycle and on a successful open at the primary.
	UsingFallback bool

	// LastChecked is when the last connect attempt concluded.
	LastChecked time.Time

	// LastConnectedAt is when the socket last opened successfully.
	LastConnectedAt time.Time
}

// ClientConfig configures a single WebSocket client.
type ClientConfig struct {
	URL              string        // resolved ws/wss address
	AuthToken        string        // bearer token, empty = no auth
	HandshakeTimeout time.Duration // dial handshake deadline
	PingInterval     time.Duration // keepalive ping cadence
	PingTimeout      time.Duration // max silence before the socket is stale
	WriteTimeout     time.Duration // write deadline for sends
	FrameBuffer      int           // frame channel buffer size
}

// ManagerConfig configures the connection Manager.
type ManagerConfig struct {
	Endpoint         endpoint.Endpoint
	AuthToken        string
	RetryInterval    time.Duration // wait before retrying primary after a failed cycle
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	PingTimeout      time.Duration
	WriteTimeout     time.Duration
	FrameBuffer      int // buffer size for the outbound frame channel
}

// DefaultManagerConfig returns sensible defaults. The 10s retry interval
// matches what the dashboard views expect between reconnect attempts.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		RetryInterval:    10 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     15 * time.Second,
		PingTimeout:      45 * time.Second,
		WriteTimeout:     5 * time.Second,
		FrameBuffer:      256,
	}
}

func (c ManagerConfig) clientConfig(url string) ClientConfig {
	return ClientConfig{
		URL:              url,
		AuthToken:        c.AuthToken,
		HandshakeTimeout: c.HandshakeTimeout,
		PingInterval:     c.PingInterval,
		PingTimeout:      c.PingTimeout,
		WriteTimeout:     c.WriteTimeout,
		FrameBuffer:      c.FrameBuffer,
	}
}
