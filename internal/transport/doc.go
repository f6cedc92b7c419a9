// Package transport owns the persistent WebSocket to the assist backend.
//
// A Manager holds at most one live socket at a time and runs the connection
// state machine: DISCONNECTED, CONNECTING, CONNECTED, RECONNECTING. On a
// connect failure it fails over once per cycle to the fallback endpoint
// (immediately, no delay); when both addresses are down it waits a fixed
// retry interval before trying the primary again.
//
// Socket-level errors are recoverable and never reach consumers as errors:
// they drive the state machine and surface as synthetic system frames in
// the event stream.
package transport
