package feed

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownType is returned by Payload for types outside the known
// catalogue. Callers that only relay messages can ignore it.
var ErrUnknownType = errors.New("unknown message type")

// AdvicePayload is the solver's recommended action for the current spot.
type AdvicePayload struct {
	Action     string  `json:"action"`              // "fold", "check", "call", "bet", "raise"
	SizingBB   float64 `json:"sizing_bb,omitempty"` // bet/raise size in big blinds
	Equity     float64 `json:"equity"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// AlternativeAction is one non-recommended line with its solver frequency.
type AlternativeAction struct {
	Action    string  `json:"action"`
	SizingBB  float64 `json:"sizing_bb,omitempty"`
	EV        float64 `json:"ev"`
	Frequency float64 `json:"frequency"`
}

// AlternativeActionsPayload lists the mixed-strategy alternatives.
type AlternativeActionsPayload struct {
	Actions []AlternativeAction `json:"actions"`
}

// TableUpdatePayload is the OCR-derived view of the live table.
type TableUpdatePayload struct {
	TableID    string   `json:"table_id"`
	Street     string   `json:"street"` // "preflop", "flop", "turn", "river"
	PotBB      float64  `json:"pot_bb"`
	HeroCards  []string `json:"hero_cards,omitempty"`
	BoardCards []string `json:"board_cards,omitempty"`
	ToAct      string   `json:"to_act,omitempty"`
}

// AutopilotStatePayload reports the autopilot on/off state and mode.
type AutopilotStatePayload struct {
	Enabled     bool   `json:"enabled"`
	Mode        string `json:"mode,omitempty"`
	HandsPlayed int    `json:"hands_played"`
}

// AutopilotStatsPayload is the rolling session statistics update.
type AutopilotStatsPayload struct {
	HandsPlayed  int     `json:"hands_played"`
	VPIP         float64 `json:"vpip"`
	PFR          float64 `json:"pfr"`
	WinRateBB100 float64 `json:"win_rate_bb100"`
}

// HandAnalysisPayload is the result of a completed-hand review.
type HandAnalysisPayload struct {
	HandID   string   `json:"hand_id"`
	Score    float64  `json:"score"`
	Mistakes []string `json:"mistakes,omitempty"`
}

// RangeAnalysisPayload is the result of a range-vs-range computation.
type RangeAnalysisPayload struct {
	Street        string  `json:"street"`
	Combos        int     `json:"combos"`
	EquityVsRange float64 `json:"equity_vs_range"`
}

// SystemPayload is a transport/backend diagnostic line.
type SystemPayload struct {
	Text  string `json:"text"`
	Level string `json:"level,omitempty"` // "info", "warn", "error"
}

// DetectionPayload is a free-form OCR/detection diagnostic.
type DetectionPayload struct {
	Source string `json:"source,omitempty"`
	Text   string `json:"text"`
}

// ErrorPayload is a backend-reported error event.
type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Payload decodes the type-specific payload into its struct form. The
// shape is validated here, once, so consumers never re-implement coercion
// or defaulting. Unknown types return ErrUnknownType.
func (m Message) Payload() (any, error) {
	var (
		v   any
		err error
	)

	switch m.Type {
	case TypeAdvice:
		v, err = unmarshalPayload[AdvicePayload](m.Data)
	case TypeAlternativeActions:
		v, err = unmarshalPayload[AlternativeActionsPayload](m.Data)
	case TypeTableUpdate:
		v, err = unmarshalPayload[TableUpdatePayload](m.Data)
	case TypeAutopilotState:
		v, err = unmarshalPayload[AutopilotStatePayload](m.Data)
	case TypeAutopilotStats:
		v, err = unmarshalPayload[AutopilotStatsPayload](m.Data)
	case TypeHandAnalysis:
		v, err = unmarshalPayload[HandAnalysisPayload](m.Data)
	case TypeRangeAnalysis:
		v, err = unmarshalPayload[RangeAnalysisPayload](m.Data)
	case TypeSystem:
		v, err = unmarshalPayload[SystemPayload](m.Data)
	case TypeDetection:
		v, err = unmarshalPayload[DetectionPayload](m.Data)
	case TypeError:
		v, err = unmarshalPayload[ErrorPayload](m.Data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("payload for %s: %w", m.Type, err)
	}
	return v, nil
}

func unmarshalPayload[T any](data json.RawMessage) (T, error) {
	var v T
	if len(data) == 0 {
		return v, nil
	}
	err := json.Unmarshal(data, &v)
	return v, err
}
