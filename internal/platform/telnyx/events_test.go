package telnyx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCallEvent(t *testing.T) {
	body := []byte(`{
		"data": {
			"event_type": "call.initiated",
			"occurred_at": "2026-03-01T12:00:00Z",
			"payload": {
				"call_control_id": "v3:cc-1",
				"from": "+33600000001",
				"to": "+33100000001"
			}
		}
	}`)

	ev, err := ParseCallEvent(body)
	require.NoError(t, err)
	require.Equal(t, "call.initiated", ev.EventType)
	require.Equal(t, "v3:cc-1", ev.CallID)
	require.Equal(t, "+33600000001", ev.From)
	require.Equal(t, "+33100000001", ev.To)
	require.Equal(t, 2026, ev.OccurredAt.Year())
}

func TestParseCallEvent_NoPayload(t *testing.T) {
	ev, err := ParseCallEvent([]byte(`{"data": {"event_type": "call.hangup"}}`))
	require.NoError(t, err)
	require.Equal(t, "call.hangup", ev.EventType)
	require.Empty(t, ev.CallID)
}

func TestParseCallEvent_InvalidJSON(t *testing.T) {
	_, err := ParseCallEvent([]byte(`not json`))
	require.Error(t, err)
}

func TestParseCallEvent_MissingEventType(t *testing.T) {
	_, err := ParseCallEvent([]byte(`{"data": {"payload": {}}}`))
	require.Error(t, err)
}
