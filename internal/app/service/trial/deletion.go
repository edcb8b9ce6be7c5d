package trial

import (
	"context"
	"math"
	"time"

	"github.com/voxloop/trialguard/internal/models"
	"github.com/voxloop/trialguard/pkg/logctx"
	"github.com/voxloop/trialguard/pkg/types"
)

// DeletionStats summarizes one run of the deletion state machine.
type DeletionStats struct {
	DeletionWarningsSent int         `json:"deletion_warnings_sent"`
	DeletionsSent        int         `json:"deletions_sent"`
	Errors               []ItemError `json:"errors,omitempty"`
}

// ProcessPendingDeletions advances blocked subjects toward deletion in two
// passes: deletion warnings for subjects blocked long enough, then final
// deletion for subjects whose scheduled date is due. Per-subject failures are
// collected and never abort the run.
func (s *Service) ProcessPendingDeletions(ctx context.Context) DeletionStats {
	log := logctx.FromCtx(ctx, s.log)
	var stats DeletionStats
	now := s.now()

	cutoff := now.Add(-time.Duration(s.cfg.Trial.DeletionWarningDays) * 24 * time.Hour)
	warnCandidates, err := s.store.ListDeletionWarningCandidates(ctx, cutoff)
	if err != nil {
		log.Errorf("failed to list deletion warning candidates: %v", err)
		stats.Errors = append(stats.Errors, ItemError{Stage: "deletion_warning_query", Error: err.Error()})
	}
	for _, subject := range warnCandidates {
		if s.sendDeletionWarning(ctx, subject, now) {
			stats.DeletionWarningsSent++
		} else {
			stats.Errors = append(stats.Errors, ItemError{
				Identifier: subject.Identifier,
				Stage:      "deletion_warning",
				Error:      "deletion warning not sent",
			})
		}
	}

	dueCandidates, err := s.store.ListDeletionDue(ctx, now)
	if err != nil {
		log.Errorf("failed to list due deletions: %v", err)
		stats.Errors = append(stats.Errors, ItemError{Stage: "deletion_query", Error: err.Error()})
	}
	for _, subject := range dueCandidates {
		if s.finalizeDeletion(ctx, subject, now) {
			stats.DeletionsSent++
		} else {
			stats.Errors = append(stats.Errors, ItemError{
				Identifier: subject.Identifier,
				Stage:      "deletion",
				Error:      "deletion not finalized",
			})
		}
	}

	return stats
}

func (s *Service) sendDeletionWarning(ctx context.Context, subject *models.TrialUsage, now time.Time) bool {
	log := logctx.FromCtx(ctx, s.log)

	daysUntil := 1
	if subject.ScheduledDeletionDate != nil {
		remaining := subject.ScheduledDeletionDate.Sub(now)
		daysUntil = int(math.Ceil(remaining.Hours() / 24))
		if daysUntil < 1 {
			daysUntil = 1
		}
	}

	payload, err := s.buildPayload(ctx, subject)
	if err != nil {
		log.Errorf("deletion warning skipped for %s: %v", subject.Identifier, err)
		return false
	}
	payload.DaysUntilDeletion = daysUntil
	if err := s.notifier.SendDeletionWarning(ctx, payload); err != nil {
		log.Errorf("deletion warning failed for %s: %v", subject.Identifier, err)
		return false
	}

	if err := s.store.Update(ctx, subject.Identifier, map[string]any{
		"deletion_warning_email_sent": true,
		"deletion_warning_email_date": now,
		"status":                      types.TrialStatusPendingDeletion,
	}); err != nil {
		log.Errorf("failed to persist deletion warning for %s: %v", subject.Identifier, err)
		return false
	}
	subject.DeletionWarningEmailSent = true
	subject.Status = types.TrialStatusPendingDeletion
	return true
}

func (s *Service) finalizeDeletion(ctx context.Context, subject *models.TrialUsage, now time.Time) bool {
	log := logctx.FromCtx(ctx, s.log)

	payload, err := s.buildPayload(ctx, subject)
	if err != nil {
		log.Errorf("deletion email skipped for %s: %v", subject.Identifier, err)
		return false
	}
	if err := s.notifier.SendAccountDeleted(ctx, payload); err != nil {
		log.Errorf("deletion email failed for %s: %v", subject.Identifier, err)
		return false
	}

	// TODO(purge): the businesses service owns the actual data purge; it
	// consumes deleted trials via the activity log feed.
	if err := s.store.Update(ctx, subject.Identifier, map[string]any{
		"status":              types.TrialStatusDeleted,
		"deletion_email_sent": true,
		"deletion_email_date": now,
	}); err != nil {
		log.Errorf("failed to persist deletion for %s: %v", subject.Identifier, err)
		return false
	}
	subject.DeletionEmailSent = true
	subject.Status = types.TrialStatusDeleted
	return true
}
