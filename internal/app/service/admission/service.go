package admission

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/voxloop/trialguard/internal/app/service/trial"
	"github.com/voxloop/trialguard/pkg/logctx"
)

// ReasonVerificationError is reported when trial status cannot be determined.
// Verification failures deny the action: an unverifiable tenant must not be
// allowed to place unmetered calls.
const ReasonVerificationError = "verification error"

// Engine is the slice of the trial engine the admission guard consumes.
type Engine interface {
	CheckStatus(ctx context.Context, identifier string) trial.StatusResult
	RecordUsage(ctx context.Context, identifier string) bool
}

// TrialLimitsResult is the admission decision handed to callers and to the
// HTTP guard.
type TrialLimitsResult struct {
	Allowed        bool   `json:"allowed"`
	Reason         string `json:"reason,omitempty"`
	RemainingCalls int    `json:"remaining_calls"`
	RemainingDays  int    `json:"remaining_days"`
}

// DeniedError is returned by WrapExternalCall when admission was refused.
type DeniedError struct {
	Result TrialLimitsResult
}

func (e *DeniedError) Error() string {
	return "trial limit exceeded: " + e.Result.Reason
}

type Service struct {
	engine Engine
	log    *zap.SugaredLogger
}

func NewService(engine *trial.Service, log *zap.SugaredLogger) *Service {
	return &Service{engine: engine, log: log}
}

// CheckTrialLimits consults the engine and fails closed on any internal
// error.
func (s *Service) CheckTrialLimits(ctx context.Context, businessID string) TrialLimitsResult {
	if businessID == "" {
		return TrialLimitsResult{Allowed: false, Reason: ReasonVerificationError}
	}

	status := s.engine.CheckStatus(ctx, businessID)
	result := TrialLimitsResult{
		Allowed:        status.CanMakeCall,
		RemainingCalls: status.CallsRemaining,
		RemainingDays:  status.DaysRemaining,
	}
	if !status.CanMakeCall {
		result.Reason = status.BlockReason
		if result.Reason == "" {
			result.Reason = ReasonVerificationError
		}
	}
	return result
}

// WrapExternalCall gates a billable external action. Quota is consumed only
// for actions that actually executed successfully: a denial never invokes the
// action, and a failed action never records usage.
func (s *Service) WrapExternalCall(ctx context.Context, businessID string, externalCall func(ctx context.Context) error) error {
	limits := s.CheckTrialLimits(ctx, businessID)
	if !limits.Allowed {
		return &DeniedError{Result: limits}
	}

	start := time.Now()
	if err := externalCall(ctx); err != nil {
		logctx.FromCtx(ctx, s.log).Warnw("external call failed, usage not recorded",
			"business_id", businessID,
			"elapsed_ms", time.Since(start).Milliseconds(),
			"err", err,
		)
		return err
	}

	if !s.engine.RecordUsage(ctx, businessID) {
		// The action went through; an accounting failure here is logged by
		// the engine and reconciled by the sweep.
		logctx.FromCtx(ctx, s.log).Warnw("usage not recorded after successful call", "business_id", businessID)
	}
	return nil
}

var Module = fx.Options(
	fx.Provide(NewService),
)
