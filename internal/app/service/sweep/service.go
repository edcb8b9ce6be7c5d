package sweep

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/voxloop/trialguard/internal/app/service/activitylog"
	"github.com/voxloop/trialguard/internal/app/service/blocking"
	"github.com/voxloop/trialguard/internal/app/service/trial"
	"github.com/voxloop/trialguard/internal/models"
	"github.com/voxloop/trialguard/pkg/logctx"
	"github.com/voxloop/trialguard/pkg/types"
)

// Engine is the slice of the trial engine the sweep drives.
type Engine interface {
	WarningCandidates(ctx context.Context) ([]*models.TrialUsage, error)
	BlockingCandidates(ctx context.Context) ([]*models.TrialUsage, error)
	EvaluateThresholds(ctx context.Context, subject *models.TrialUsage) (warned, blocked bool)
	ForceBlock(ctx context.Context, subject *models.TrialUsage) bool
	ProcessPendingDeletions(ctx context.Context) trial.DeletionStats
	ScheduleCounts(ctx context.Context) (critical, expiredUnblocked int64, err error)
}

// Blocker is the number-blocking catch-up entry point.
type Blocker interface {
	ProcessPendingBlocks(ctx context.Context) blocking.PendingBlockStats
}

// Stats aggregates one full sweep run.
type Stats struct {
	Processed            int               `json:"processed"`
	WarningsSent         int               `json:"warnings_sent"`
	BlockingsSent        int               `json:"blockings_sent"`
	DeletionWarningsSent int               `json:"deletion_warnings_sent"`
	DeletionsSent        int               `json:"deletions_sent"`
	NumbersBlocked       int               `json:"numbers_blocked"`
	Errors               []trial.ItemError `json:"errors,omitempty"`
}

// Schedule is the adaptive backoff decision for the next run.
type Schedule struct {
	Priority         types.SweepPriority `json:"priority"`
	NextRunDelay     time.Duration       `json:"next_run_delay"`
	Critical         int64               `json:"critical"`
	ExpiredUnblocked int64               `json:"expired_unblocked"`
}

// Service orchestrates the periodic trial sweep: five phases in strict
// sequence, each fault-tolerant per row, so one tenant's failure never aborts
// the batch for the others.
type Service struct {
	engine   Engine
	blocker  Blocker
	activity *activitylog.Service
	log      *zap.SugaredLogger
	observe  func(phase string, elapsed time.Duration)
}

func NewService(engine *trial.Service, blocker *blocking.Service, activity *activitylog.Service, log *zap.SugaredLogger) *Service {
	return &Service{
		engine:   engine,
		blocker:  blocker,
		activity: activity,
		log:      log,
		observe:  observePhase,
	}
}

// ProcessAutomatedEmails runs the full sweep. Phase order matters: warnings
// before blockings (a subject can cross both in one run), deletions after
// blockings, number catch-up last.
func (s *Service) ProcessAutomatedEmails(ctx context.Context) Stats {
	log := logctx.FromCtx(ctx, s.log)
	var stats Stats

	s.phase("warnings", func() {
		subjects, err := s.engine.WarningCandidates(ctx)
		if err != nil {
			log.Errorf("warning phase query failed: %v", err)
			stats.Errors = append(stats.Errors, trial.ItemError{Stage: "warning_query", Error: err.Error()})
			return
		}
		for _, subject := range subjects {
			stats.Processed++
			warned, blocked := s.engine.EvaluateThresholds(ctx, subject)
			if warned {
				stats.WarningsSent++
			}
			if blocked {
				stats.BlockingsSent++
			}
		}
	})

	s.phase("blockings", func() {
		subjects, err := s.engine.BlockingCandidates(ctx)
		if err != nil {
			log.Errorf("blocking phase query failed: %v", err)
			stats.Errors = append(stats.Errors, trial.ItemError{Stage: "blocking_query", Error: err.Error()})
			return
		}
		for _, subject := range subjects {
			stats.Processed++
			if s.engine.ForceBlock(ctx, subject) {
				stats.BlockingsSent++
			} else if !subject.BlockedEmailSent {
				stats.Errors = append(stats.Errors, trial.ItemError{
					Identifier: subject.Identifier,
					Stage:      "blocking",
					Error:      "subject not blocked",
				})
			}
		}
	})

	s.phase("deletions", func() {
		del := s.engine.ProcessPendingDeletions(ctx)
		stats.DeletionWarningsSent += del.DeletionWarningsSent
		stats.DeletionsSent += del.DeletionsSent
		stats.Processed += del.DeletionWarningsSent + del.DeletionsSent
		stats.Errors = append(stats.Errors, del.Errors...)
	})

	s.phase("number_blocking", func() {
		pending := s.blocker.ProcessPendingBlocks(ctx)
		stats.NumbersBlocked += pending.Blocked
		for _, e := range pending.Errors {
			stats.Errors = append(stats.Errors, trial.ItemError{
				Identifier: e.PhoneNumber,
				Stage:      "number_blocking",
				Error:      e.Error,
			})
		}
	})

	log.Infow("sweep completed",
		"processed", stats.Processed,
		"warnings", stats.WarningsSent,
		"blockings", stats.BlockingsSent,
		"deletion_warnings", stats.DeletionWarningsSent,
		"deletions", stats.DeletionsSent,
		"numbers_blocked", stats.NumbersBlocked,
		"errors", len(stats.Errors),
	)
	if s.activity != nil {
		s.activity.Record(ctx, models.ActivityCategorySweepRun, "", stats)
	}
	return stats
}

func (s *Service) phase(name string, fn func()) {
	start := time.Now()
	fn()
	if s.observe != nil {
		s.observe(name, time.Since(start))
	}
}

// GetProcessingSchedule decides the next run delay from how urgent the
// backlog is. Any expired-but-unblocked subject means service is being given
// away for free, so that bucket runs hottest. A count failure degrades to a
// medium cadence rather than silently stopping the scheduler.
func (s *Service) GetProcessingSchedule(ctx context.Context) Schedule {
	critical, expired, err := s.engine.ScheduleCounts(ctx)
	if err != nil {
		logctx.FromCtx(ctx, s.log).Errorf("schedule counts failed: %v", err)
		return Schedule{Priority: types.SweepPriorityMedium, NextRunDelay: time.Hour}
	}

	sched := Schedule{Critical: critical, ExpiredUnblocked: expired}
	switch {
	case expired > 0:
		sched.Priority = types.SweepPriorityHigh
		sched.NextRunDelay = 5 * time.Minute
	case critical > 0:
		sched.Priority = types.SweepPriorityMedium
		sched.NextRunDelay = 30 * time.Minute
	default:
		sched.Priority = types.SweepPriorityLow
		sched.NextRunDelay = 4 * time.Hour
	}
	return sched
}
