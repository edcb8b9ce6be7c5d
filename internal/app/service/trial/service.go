package trial

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/voxloop/trialguard/internal/models"
	"github.com/voxloop/trialguard/internal/platform/email"
	cfgpkg "github.com/voxloop/trialguard/pkg/config"
	"github.com/voxloop/trialguard/pkg/logctx"
	"github.com/voxloop/trialguard/pkg/tool"
	"github.com/voxloop/trialguard/pkg/types"
)

// NumberBlocker is what the engine needs from the telephony-blocking side.
// Block and Unblock are retryable and safe to call when there is nothing to do.
type NumberBlocker interface {
	Block(ctx context.Context, businessID string, reason types.BlockReason) error
	Unblock(ctx context.Context, businessID string) error
}

// StatusResult is the admission decision for one subject.
type StatusResult struct {
	CanMakeCall    bool              `json:"can_make_call"`
	CallsRemaining int               `json:"calls_remaining"`
	DaysRemaining  int               `json:"days_remaining"`
	Status         types.TrialStatus `json:"status"`
	BlockReason    string            `json:"block_reason,omitempty"`
}

// ItemError is a structured per-subject failure collected by batch passes.
type ItemError struct {
	Identifier string `json:"identifier"`
	Stage      string `json:"stage"`
	Error      string `json:"error"`
}

// Service owns the trial state machine. All collaborators are injected; the
// clock is swappable so tests can simulate day passage.
type Service struct {
	cfg      *cfgpkg.Config
	store    Store
	notifier email.Notifier
	blocker  NumberBlocker
	log      *zap.SugaredLogger
	now      func() time.Time
}

func NewService(cfg *cfgpkg.Config, store Store, notifier email.Notifier, blocker NumberBlocker, log *zap.SugaredLogger) *Service {
	return &Service{
		cfg:      cfg,
		store:    store,
		notifier: notifier,
		blocker:  blocker,
		log:      log,
		now:      time.Now,
	}
}

// GetOrCreate looks a subject up by identifier, creating it with default
// limits on first touch. A create race against the unique index loses
// gracefully and re-reads the winner's row.
func (s *Service) GetOrCreate(ctx context.Context, identifier string, identifierType types.TrialIdentifierType, businessID string) (*models.TrialUsage, error) {
	subject, err := s.store.GetByIdentifier(ctx, identifier)
	if err == nil {
		return subject, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load trial subject: %w", err)
	}

	now := s.now()
	callsLimit := s.cfg.Trial.CallsLimit
	daysLimit := s.cfg.Trial.DaysLimit
	subject = &models.TrialUsage{
		ID:             tool.GenerateUUIDV7(),
		Identifier:     identifier,
		IdentifierType: identifierType,
		BusinessID:     businessID,
		CallsUsed:      0,
		CallsRemaining: callsLimit,
		CallsLimit:     callsLimit,
		DaysUsed:       0,
		DaysRemaining:  daysLimit,
		DaysLimit:      daysLimit,
		TrialEndDate:   now.Add(time.Duration(daysLimit) * 24 * time.Hour),
		Status:         types.TrialStatusActive,
	}

	if err := s.store.Create(ctx, subject); err != nil {
		// Lost the first-touch race: the other creator's row is authoritative.
		existing, readErr := s.store.GetByIdentifier(ctx, identifier)
		if readErr != nil {
			return nil, fmt.Errorf("failed to create trial subject: %w", err)
		}
		return existing, nil
	}

	s.sendWelcome(ctx, subject)
	return subject, nil
}

func (s *Service) sendWelcome(ctx context.Context, subject *models.TrialUsage) {
	payload, err := s.buildPayload(ctx, subject)
	if err != nil {
		logctx.FromCtx(ctx, s.log).Warnf("welcome email skipped for %s: %v", subject.Identifier, err)
		return
	}
	if err := s.notifier.SendWelcome(ctx, payload); err != nil {
		logctx.FromCtx(ctx, s.log).Warnf("welcome email failed for %s: %v", subject.Identifier, err)
	}
}

// CheckStatus recomputes day accounting against the clock and answers whether
// the subject may place a billable call. The decision order is fixed: an
// explicit block wins over recomputed expiry, and expiry is checked before
// call exhaustion so the reported reason is the first-detected cause.
func (s *Service) CheckStatus(ctx context.Context, identifier string) StatusResult {
	subject, err := s.GetOrCreate(ctx, identifier, types.TrialIdentifierTypeBusiness, identifier)
	if err != nil {
		logctx.FromCtx(ctx, s.log).Errorf("check status failed for %s: %v", identifier, err)
		return StatusResult{CanMakeCall: false, BlockReason: "verification error"}
	}
	return s.statusOf(ctx, subject)
}

func (s *Service) statusOf(ctx context.Context, subject *models.TrialUsage) StatusResult {
	daysRemaining := s.refreshDays(ctx, subject)

	result := StatusResult{
		CallsRemaining: subject.CallsRemaining,
		DaysRemaining:  daysRemaining,
		Status:         subject.Status,
	}

	if subject.Status == types.TrialStatusPaid {
		result.CanMakeCall = true
		return result
	}

	switch {
	case subject.IsBlocked:
		result.BlockReason = subject.BlockReasonText()
		if result.BlockReason == "" {
			result.BlockReason = types.BlockReasonTextExpired
		}
	case daysRemaining <= 0:
		result.BlockReason = types.BlockReasonTextExpired
	case subject.CallsRemaining <= 0:
		result.BlockReason = types.BlockReasonTextCallLimit
	default:
		result.CanMakeCall = true
	}
	return result
}

// refreshDays recomputes days remaining from the wall clock and persists the
// value only when it moved, so hot call paths do not write on every check.
func (s *Service) refreshDays(ctx context.Context, subject *models.TrialUsage) int {
	daysRemaining := s.daysRemaining(subject.TrialEndDate)
	if daysRemaining == subject.DaysRemaining {
		return daysRemaining
	}

	daysUsed := subject.DaysLimit - daysRemaining
	if daysUsed < 0 {
		daysUsed = 0
	}
	if err := s.store.Update(ctx, subject.Identifier, map[string]any{
		"days_remaining": daysRemaining,
		"days_used":      daysUsed,
	}); err != nil {
		logctx.FromCtx(ctx, s.log).Warnf("failed to persist days remaining for %s: %v", subject.Identifier, err)
	}
	subject.DaysRemaining = daysRemaining
	subject.DaysUsed = daysUsed
	return daysRemaining
}

func (s *Service) daysRemaining(trialEnd time.Time) int {
	remaining := trialEnd.Sub(s.now())
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Hours() / 24))
}

// RecordUsage consumes one trial call. It re-validates first (a denied subject
// never loses quota), increments atomically, then evaluates thresholds
// synchronously so warning/block effects fire on the crossing call rather
// than on the next sweep.
func (s *Service) RecordUsage(ctx context.Context, identifier string) bool {
	status := s.CheckStatus(ctx, identifier)
	if !status.CanMakeCall {
		return false
	}
	if status.Status == types.TrialStatusPaid {
		// Paid subjects are not metered; there is no quota to consume.
		return true
	}

	now := s.now()
	ok, err := s.store.IncrementUsage(ctx, identifier, now)
	if err != nil {
		logctx.FromCtx(ctx, s.log).Errorf("failed to record usage for %s: %v", identifier, err)
		return false
	}
	if !ok {
		// Raced to zero between the check and the increment.
		return false
	}

	subject, err := s.store.GetByIdentifier(ctx, identifier)
	if err != nil {
		logctx.FromCtx(ctx, s.log).Errorf("failed to reload subject %s after usage: %v", identifier, err)
		return true
	}
	s.EvaluateThresholds(ctx, subject)
	return true
}

// ActivatePaidPlan upgrades every suspended subject of a business and always
// runs the unblock path, which is a no-op when nothing is blocked.
func (s *Service) ActivatePaidPlan(ctx context.Context, businessID string) error {
	updated, err := s.store.MarkPaidForBusiness(ctx, businessID)
	if err != nil {
		return fmt.Errorf("failed to activate paid plan for %s: %w", businessID, err)
	}
	logctx.FromCtx(ctx, s.log).Infow("paid plan activated", "business_id", businessID, "subjects_updated", updated)

	if err := s.blocker.Unblock(ctx, businessID); err != nil {
		// Numbers stay blocked until the next sweep retries; the upgrade itself stands.
		logctx.FromCtx(ctx, s.log).Errorf("unblock after upgrade failed for %s: %v", businessID, err)
	}
	return nil
}

func (s *Service) buildPayload(ctx context.Context, subject *models.TrialUsage) (email.TrialPayload, error) {
	payload := email.TrialPayload{
		BusinessID:     subject.BusinessID,
		CallsUsed:      subject.CallsUsed,
		CallsRemaining: subject.CallsRemaining,
		DaysRemaining:  subject.DaysRemaining,
		TrialEndDate:   subject.TrialEndDate,
		BlockReason:    subject.BlockReasonText(),
	}

	business, err := s.store.GetBusiness(ctx, subject.BusinessID)
	if err != nil {
		return payload, fmt.Errorf("failed to load business %s: %w", subject.BusinessID, err)
	}
	payload.BusinessName = business.Name
	payload.OwnerName = business.OwnerName
	payload.OwnerEmail = business.OwnerEmail
	return payload, nil
}

// WarningCandidates lists active subjects matching the warning predicate that
// have not been warned yet. Used by the sweep's first phase.
func (s *Service) WarningCandidates(ctx context.Context) ([]*models.TrialUsage, error) {
	return s.store.ListWarningCandidates(ctx, s.cfg.Trial.WarningCallsUsed, s.cfg.Trial.WarningDaysRemaining, s.now())
}

// BlockingCandidates lists subjects with exhausted quota that are not blocked
// yet. Used by the sweep's second phase.
func (s *Service) BlockingCandidates(ctx context.Context) ([]*models.TrialUsage, error) {
	return s.store.ListBlockingCandidates(ctx, s.now())
}

// ScheduleCounts returns the critical and expired-unblocked bucket sizes the
// sweep scheduler derives its backoff from.
func (s *Service) ScheduleCounts(ctx context.Context) (critical, expiredUnblocked int64, err error) {
	now := s.now()
	critical, err = s.store.CountCritical(ctx, now)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count critical subjects: %w", err)
	}
	expiredUnblocked, err = s.store.CountExpiredUnblocked(ctx, now)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count expired subjects: %w", err)
	}
	return critical, expiredUnblocked, nil
}
