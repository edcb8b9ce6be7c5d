package trial

import (
	"context"
	"time"

	"github.com/voxloop/trialguard/internal/models"
	"github.com/voxloop/trialguard/pkg/logctx"
	"github.com/voxloop/trialguard/pkg/types"
)

// EvaluateThresholds runs the warning and blocking triggers for one subject in
// a single pass, warning first. Each trigger is gated by its persisted
// *EmailSent flag, which is the single source of truth for "do not repeat this
// effect": the sweep may re-run this any number of times. Returns which
// triggers fired.
func (s *Service) EvaluateThresholds(ctx context.Context, subject *models.TrialUsage) (warned, blocked bool) {
	if subject == nil || subject.Terminal() {
		return false, false
	}
	log := logctx.FromCtx(ctx, s.log)
	daysRemaining := s.daysRemaining(subject.TrialEndDate)

	if !subject.WarningEmailSent &&
		(subject.CallsUsed >= s.cfg.Trial.WarningCallsUsed || daysRemaining <= s.cfg.Trial.WarningDaysRemaining) {
		warned = s.fireWarning(ctx, subject)
	}

	if !subject.BlockedEmailSent && (subject.CallsRemaining <= 0 || daysRemaining <= 0) {
		blocked = s.fireBlocking(ctx, subject)
	}

	if warned || blocked {
		log.Infow("thresholds evaluated",
			"identifier", subject.Identifier,
			"warned", warned,
			"blocked", blocked,
			"calls_used", subject.CallsUsed,
			"days_remaining", daysRemaining,
		)
	}
	return warned, blocked
}

func (s *Service) fireWarning(ctx context.Context, subject *models.TrialUsage) bool {
	log := logctx.FromCtx(ctx, s.log)

	payload, err := s.buildPayload(ctx, subject)
	if err != nil {
		log.Errorf("warning email skipped for %s: %v", subject.Identifier, err)
		return false
	}
	if err := s.notifier.SendTrialWarning(ctx, payload); err != nil {
		log.Errorf("warning email failed for %s: %v", subject.Identifier, err)
		return false
	}

	now := s.now()
	if err := s.store.Update(ctx, subject.Identifier, map[string]any{
		"warning_email_sent": true,
		"warning_email_date": now,
		"status":             types.TrialStatusWarned,
	}); err != nil {
		log.Errorf("failed to persist warning state for %s: %v", subject.Identifier, err)
		return false
	}
	subject.WarningEmailSent = true
	subject.WarningEmailDate = &now
	subject.Status = types.TrialStatusWarned
	return true
}

func (s *Service) fireBlocking(ctx context.Context, subject *models.TrialUsage) bool {
	log := logctx.FromCtx(ctx, s.log)

	reason := types.BlockReasonTrialExpired
	reasonText := types.BlockReasonTextExpired
	if subject.CallsRemaining <= 0 {
		reason = types.BlockReasonTrialCallsExhausted
		reasonText = types.BlockReasonTextCallLimit
	}

	subject.BlockReason = &reasonText
	payload, err := s.buildPayload(ctx, subject)
	if err != nil {
		log.Errorf("blocked email skipped for %s: %v", subject.Identifier, err)
		return false
	}
	payload.BlockReason = reasonText
	if err := s.notifier.SendTrialBlocked(ctx, payload); err != nil {
		log.Errorf("blocked email failed for %s: %v", subject.Identifier, err)
		return false
	}

	now := s.now()
	scheduledDeletion := now.Add(time.Duration(s.cfg.Trial.DeletionGraceDays) * 24 * time.Hour)
	if err := s.store.Update(ctx, subject.Identifier, map[string]any{
		"blocked_email_sent":      true,
		"blocked_email_date":      now,
		"status":                  types.TrialStatusBlocked,
		"is_blocked":              true,
		"block_reason":            reasonText,
		"scheduled_deletion_date": scheduledDeletion,
	}); err != nil {
		log.Errorf("failed to persist blocked state for %s: %v", subject.Identifier, err)
		return false
	}
	subject.BlockedEmailSent = true
	subject.BlockedEmailDate = &now
	subject.Status = types.TrialStatusBlocked
	subject.IsBlocked = true
	subject.ScheduledDeletionDate = &scheduledDeletion

	// Number blocking and the email are independent retryable effects: a
	// provider failure here is picked up by the next sweep's catch-up phase
	// and must not reset the email flag.
	if err := s.blocker.Block(ctx, subject.BusinessID, reason); err != nil {
		log.Errorf("number blocking failed for %s: %v", subject.BusinessID, err)
	}
	return true
}

// ForceBlock is the sweep's blocking entry point for subjects whose quota is
// already exhausted: it evaluates only the blocking trigger, regardless of the
// warning state.
func (s *Service) ForceBlock(ctx context.Context, subject *models.TrialUsage) bool {
	if subject == nil || subject.Terminal() || subject.BlockedEmailSent {
		return false
	}
	daysRemaining := s.daysRemaining(subject.TrialEndDate)
	if subject.CallsRemaining > 0 && daysRemaining > 0 {
		return false
	}
	return s.fireBlocking(ctx, subject)
}
