package blocking

import (
	"context"

	"github.com/voxloop/trialguard/internal/platform/telnyx"
	"github.com/voxloop/trialguard/pkg/logctx"
	"github.com/voxloop/trialguard/pkg/types"
)

// HandleBlockedCall builds the voice response for an inbound call to a
// blocked number: answer, speak the apology message, hang up. Anything
// unexpected degrades to hangup-only so a caller is never left on a silent
// open line.
func (s *Service) HandleBlockedCall(ctx context.Context, event *telnyx.CallEvent, reason types.BlockReason) []types.VoiceAction {
	log := logctx.FromCtx(ctx, s.log)

	if event == nil {
		log.Warnw("blocked call webhook without event payload")
		return []types.VoiceAction{types.VoiceHangup()}
	}

	switch event.EventType {
	case "call.initiated", "call.answered":
	default:
		// Progress events (hangup, speak.ended, ...) need no actions.
		return nil
	}

	log.Infow("blocked call handled",
		"call_id", event.CallID,
		"from", event.From,
		"to", event.To,
		"reason", reason,
	)

	return []types.VoiceAction{
		types.VoiceAnswer(),
		types.VoiceSpeak(reason.VoiceText()),
		types.VoiceHangup(),
	}
}
