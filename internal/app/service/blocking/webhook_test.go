package blocking

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/voxloop/trialguard/internal/platform/telnyx"
	"github.com/voxloop/trialguard/pkg/types"
)

func TestHandleBlockedCall_AnswerSpeakHangup(t *testing.T) {
	svc := newTestService(&fakeNumberStore{}, newFakeTelnyx())
	event := &telnyx.CallEvent{EventType: "call.initiated", CallID: "cc-1", From: "+33600000001", To: "+33100000001"}

	actions := svc.HandleBlockedCall(context.Background(), event, types.BlockReasonTrialCallsExhausted)
	require.Len(t, actions, 3)
	require.Equal(t, "answer", actions[0].Type)
	require.Equal(t, "speak", actions[1].Type)
	require.Equal(t, "fr-FR", actions[1].Language)
	require.Contains(t, actions[1].Text, "période d'essai est terminée")
	require.Equal(t, "hangup", actions[2].Type)
}

func TestHandleBlockedCall_ExpiredMessage(t *testing.T) {
	svc := newTestService(&fakeNumberStore{}, newFakeTelnyx())
	event := &telnyx.CallEvent{EventType: "call.answered"}

	actions := svc.HandleBlockedCall(context.Background(), event, types.BlockReasonTrialExpired)
	require.Contains(t, actions[1].Text, "période d'essai a expiré")
}

func TestHandleBlockedCall_NilEventHangsUp(t *testing.T) {
	svc := newTestService(&fakeNumberStore{}, newFakeTelnyx())

	actions := svc.HandleBlockedCall(context.Background(), nil, types.BlockReasonManual)
	require.Len(t, actions, 1)
	require.Equal(t, "hangup", actions[0].Type)
}

func TestHandleBlockedCall_ProgressEventNoActions(t *testing.T) {
	svc := newTestService(&fakeNumberStore{}, newFakeTelnyx())
	event := &telnyx.CallEvent{EventType: "call.hangup"}

	require.Nil(t, svc.HandleBlockedCall(context.Background(), event, types.BlockReasonManual))
}
