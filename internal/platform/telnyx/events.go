package telnyx

import (
	"encoding/json"
	"fmt"
	"time"
)

// CallEvent is the subset of a Telnyx webhook payload the blocked-call
// handler consumes.
type CallEvent struct {
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	CallID     string    `json:"call_control_id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
}

type eventEnvelope struct {
	Data struct {
		EventType  string          `json:"event_type"`
		OccurredAt time.Time       `json:"occurred_at"`
		Payload    json.RawMessage `json:"payload"`
	} `json:"data"`
}

// ParseCallEvent decodes an inbound webhook body into a CallEvent.
func ParseCallEvent(body []byte) (*CallEvent, error) {
	var env eventEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode webhook envelope: %w", err)
	}
	if env.Data.EventType == "" {
		return nil, fmt.Errorf("webhook event_type is empty")
	}

	ev := &CallEvent{
		EventType:  env.Data.EventType,
		OccurredAt: env.Data.OccurredAt,
	}
	if len(env.Data.Payload) > 0 {
		var payload struct {
			CallControlID string `json:"call_control_id"`
			From          string `json:"from"`
			To            string `json:"to"`
		}
		if err := json.Unmarshal(env.Data.Payload, &payload); err != nil {
			return nil, fmt.Errorf("failed to decode webhook payload: %w", err)
		}
		ev.CallID = payload.CallControlID
		ev.From = payload.From
		ev.To = payload.To
	}
	return ev, nil
}
