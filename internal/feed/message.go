package feed

import (
	"encoding/json"
	"fmt"
	"time"
)

// Known event types pushed by the backend. The catalogue is open: the
// router dispatches on the literal string, so unknown types flow through
// the log without matching any subscriber.
const (
	TypeAdvice             = "advice"
	TypeAlternativeActions = "alternative_actions"
	TypeTableUpdate        = "table_update"
	TypeAutopilotState     = "autopilot_state_update"
	TypeAutopilotStats     = "autopilot_stats_update"
	TypeHandAnalysis       = "hand_analysis_result"
	TypeRangeAnalysis      = "range_analysis_result"
	TypeSystem             = "system"
	TypeDetection          = "detection"
	TypeError              = "error"
)

// Message is a single validated event. Immutable once buffered.
type Message struct {
	// Type is the event type string from the wire envelope.
	Type string

	// Data is the raw type-specific payload. Use Payload to decode it.
	Data json.RawMessage

	// Timestamp is the server-supplied event time, or ReceivedAt when the
	// server omitted it.
	Timestamp time.Time

	// ReceivedAt is the local time the frame came off the socket.
	ReceivedAt time.Time
}

// DecodeError reports a single inbound frame that failed validation.
// Scope is exactly one frame: the log and the connection are unaffected.
type DecodeError struct {
	Reason string
	Frame  []byte
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode frame: %s", e.Reason)
}

// wire envelope: {"type": string, "data": <opaque>, "timestamp"?: ms}
type envelope struct {
	Type      json.RawMessage `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// Decode validates a raw frame and constructs a Message. The frame must be
// a JSON object with a string "type" field. A missing timestamp defaults to
// receivedAt. Wire timestamps are milliseconds since epoch.
func Decode(raw []byte, receivedAt time.Time) (Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Message{}, &DecodeError{Reason: err.Error(), Frame: raw}
	}

	if len(env.Type) == 0 {
		return Message{}, &DecodeError{Reason: "missing type field", Frame: raw}
	}

	var msgType string
	if err := json.Unmarshal(env.Type, &msgType); err != nil {
		return Message{}, &DecodeError{Reason: "type is not a string", Frame: raw}
	}
	if msgType == "" {
		return Message{}, &DecodeError{Reason: "empty type", Frame: raw}
	}

	ts := receivedAt
	if env.Timestamp > 0 {
		ts = time.UnixMilli(env.Timestamp)
	}

	return Message{
		Type:       msgType,
		Data:       env.Data,
		Timestamp:  ts,
		ReceivedAt: receivedAt,
	}, nil
}

// outbound is the wire shape for commands and synthetic frames.
type outbound struct {
	Type      string `json:"type"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Encode serializes a type+payload pair into a wire frame.
func Encode(msgType string, data any) ([]byte, error) {
	b, err := json.Marshal(outbound{Type: msgType, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", msgType, err)
	}
	return b, nil
}

// NewSystemMessage builds a system diagnostic Message. Transport health is
// part of the event stream, so log views render these uniformly with
// domain events.
func NewSystemMessage(text, level string, now time.Time) Message {
	data, _ := json.Marshal(SystemPayload{Text: text, Level: level})
	return Message{
		Type:       TypeSystem,
		Data:       data,
		Timestamp:  now,
		ReceivedAt: now,
	}
}

// SystemFrame builds the wire form of a system diagnostic, for injection
// into the raw frame stream ahead of the decode boundary.
func SystemFrame(text, level string, now time.Time) []byte {
	data, _ := json.Marshal(outbound{
		Type:      TypeSystem,
		Data:      SystemPayload{Text: text, Level: level},
		Timestamp: now.UnixMilli(),
	})
	return data
}
