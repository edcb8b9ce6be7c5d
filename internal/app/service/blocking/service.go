package blocking

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/voxloop/trialguard/internal/app/service/activitylog"
	"github.com/voxloop/trialguard/internal/models"
	"github.com/voxloop/trialguard/internal/platform/telnyx"
	cfgpkg "github.com/voxloop/trialguard/pkg/config"
	"github.com/voxloop/trialguard/pkg/logctx"
	"github.com/voxloop/trialguard/pkg/types"
)

// NumberResult is the structured per-number outcome of a block/unblock batch.
type NumberResult struct {
	NumberID    string `json:"number_id"`
	PhoneNumber string `json:"phone_number"`
	Error       string `json:"error,omitempty"`
}

// BlockResult reports a whole batch. Success means every number processed
// without error; partial success shows as BlockedNumbers < Total with Errors
// populated.
type BlockResult struct {
	Success        bool           `json:"success"`
	Total          int            `json:"total"`
	BlockedNumbers int            `json:"blocked_numbers"`
	Errors         []NumberResult `json:"errors,omitempty"`
}

// UnblockResult mirrors BlockResult for the restore path.
type UnblockResult struct {
	Success          bool           `json:"success"`
	Total            int            `json:"total"`
	UnblockedNumbers int            `json:"unblocked_numbers"`
	Errors           []NumberResult `json:"errors,omitempty"`
}

// PendingBlockStats aggregates the sweep's number-blocking catch-up phase.
type PendingBlockStats struct {
	Processed int            `json:"processed"`
	Blocked   int            `json:"blocked"`
	Errors    []NumberResult `json:"errors,omitempty"`
}

// Service reconfigures a tenant's numbers at the telephony provider so that
// callers of a suspended business hear the blocked-call message, and restores
// the original routing on unblock. Every number is handled independently.
type Service struct {
	cfg      *cfgpkg.Config
	store    NumberStore
	api      telnyx.API
	activity *activitylog.Service
	log      *zap.SugaredLogger
	now      func() time.Time
}

func NewService(cfg *cfgpkg.Config, store NumberStore, api telnyx.API, activity *activitylog.Service, log *zap.SugaredLogger) *Service {
	return &Service{
		cfg:      cfg,
		store:    store,
		api:      api,
		activity: activity,
		log:      log,
		now:      time.Now,
	}
}

func (s *Service) blockedConfig(reason types.BlockReason) types.VoiceWebhookConfig {
	blocked := s.cfg.Telnyx.BlockedWebhookURL
	if u, err := url.Parse(blocked); err == nil {
		q := u.Query()
		q.Set("reason", string(reason))
		u.RawQuery = q.Encode()
		blocked = u.String()
	}
	return types.VoiceWebhookConfig{
		WebhookURL:           blocked,
		WebhookRequestMethod: "POST",
	}
}

func (s *Service) defaultConfig() types.VoiceWebhookConfig {
	return types.VoiceWebhookConfig{
		WebhookURL:           s.cfg.Telnyx.DefaultWebhookURL,
		WebhookRequestMethod: "POST",
	}
}

// BlockNumbers repoints every ACTIVE number of the business to the
// blocked-call handler. The originalConfig snapshot is taken only on the
// ACTIVE->BLOCKED edge: re-blocking a number that already carries a snapshot
// must not overwrite it with the blocked routing.
func (s *Service) BlockNumbers(ctx context.Context, businessID string, reason types.BlockReason) (*BlockResult, error) {
	log := logctx.FromCtx(ctx, s.log)

	numbers, err := s.store.ListNumbersByStatus(ctx, businessID, types.PhoneNumberStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list active numbers for %s: %w", businessID, err)
	}

	result := &BlockResult{Total: len(numbers)}
	blockedCfg := s.blockedConfig(reason)
	now := s.now()

	for _, number := range numbers {
		if err := s.api.UpdateNumberVoiceSettings(ctx, number.TelnyxNumberID, blockedCfg); err != nil {
			log.Errorf("failed to block number %s: %v", number.PhoneNumber, err)
			result.Errors = append(result.Errors, NumberResult{
				NumberID:    number.ID,
				PhoneNumber: number.PhoneNumber,
				Error:       err.Error(),
			})
			continue
		}

		meta := number.GetMetadata()
		original := meta.OriginalConfig
		if original == nil && !meta.Blocked {
			snapshot := s.defaultConfig()
			original = &snapshot
		}
		number.Status = types.PhoneNumberStatusBlocked
		number.Metadata = datatypes.NewJSONType(&models.PhoneNumberMetadata{
			Blocked:        true,
			BlockReason:    reason,
			BlockedAt:      &now,
			OriginalConfig: original,
		})
		if err := s.store.SaveNumber(ctx, number); err != nil {
			log.Errorf("failed to save blocked number %s: %v", number.PhoneNumber, err)
			result.Errors = append(result.Errors, NumberResult{
				NumberID:    number.ID,
				PhoneNumber: number.PhoneNumber,
				Error:       err.Error(),
			})
			continue
		}
		result.BlockedNumbers++
	}

	result.Success = len(result.Errors) == 0
	s.activity.Record(ctx, models.ActivityCategoryNumbersBlocked, businessID, result)
	log.Infow("numbers blocked",
		"business_id", businessID,
		"reason", reason,
		"blocked", result.BlockedNumbers,
		"total", result.Total,
	)
	return result, nil
}

// UnblockNumbers restores every BLOCKED number of the business to its
// pre-block routing, falling back to the default configuration when no
// snapshot exists. Safe to call when nothing is blocked.
func (s *Service) UnblockNumbers(ctx context.Context, businessID string) (*UnblockResult, error) {
	log := logctx.FromCtx(ctx, s.log)

	numbers, err := s.store.ListNumbersByStatus(ctx, businessID, types.PhoneNumberStatusBlocked)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocked numbers for %s: %w", businessID, err)
	}

	result := &UnblockResult{Total: len(numbers)}
	now := s.now()

	for _, number := range numbers {
		meta := number.GetMetadata()
		restore := s.defaultConfig()
		if meta.OriginalConfig != nil {
			restore = *meta.OriginalConfig
		}

		if err := s.api.UpdateNumberVoiceSettings(ctx, number.TelnyxNumberID, restore); err != nil {
			log.Errorf("failed to unblock number %s: %v", number.PhoneNumber, err)
			result.Errors = append(result.Errors, NumberResult{
				NumberID:    number.ID,
				PhoneNumber: number.PhoneNumber,
				Error:       err.Error(),
			})
			continue
		}

		// The episode ends here; drop the snapshot so the next block re-captures it.
		number.Status = types.PhoneNumberStatusActive
		number.Metadata = datatypes.NewJSONType(&models.PhoneNumberMetadata{
			Blocked:     false,
			UnblockedAt: &now,
		})
		if err := s.store.SaveNumber(ctx, number); err != nil {
			log.Errorf("failed to save unblocked number %s: %v", number.PhoneNumber, err)
			result.Errors = append(result.Errors, NumberResult{
				NumberID:    number.ID,
				PhoneNumber: number.PhoneNumber,
				Error:       err.Error(),
			})
			continue
		}
		result.UnblockedNumbers++
	}

	result.Success = len(result.Errors) == 0
	s.activity.Record(ctx, models.ActivityCategoryNumbersUnblocked, businessID, result)
	log.Infow("numbers unblocked",
		"business_id", businessID,
		"unblocked", result.UnblockedNumbers,
		"total", result.Total,
	)
	return result, nil
}

// ProcessPendingBlocks re-runs blocking for every suspended subject whose
// business still has ACTIVE numbers. This is the sweep's recovery mechanism
// for partial block failures and for numbers provisioned after the block.
func (s *Service) ProcessPendingBlocks(ctx context.Context) PendingBlockStats {
	log := logctx.FromCtx(ctx, s.log)
	var stats PendingBlockStats

	pending, err := s.store.ListPendingBlocks(ctx)
	if err != nil {
		log.Errorf("failed to list pending blocks: %v", err)
		stats.Errors = append(stats.Errors, NumberResult{Error: err.Error()})
		return stats
	}

	for _, p := range pending {
		stats.Processed++
		reason := types.BlockReasonTrialExpired
		if p.BlockReason == types.BlockReasonTextCallLimit {
			reason = types.BlockReasonTrialCallsExhausted
		}
		result, err := s.BlockNumbers(ctx, p.BusinessID, reason)
		if err != nil {
			stats.Errors = append(stats.Errors, NumberResult{Error: fmt.Sprintf("%s: %v", p.BusinessID, err)})
			continue
		}
		stats.Blocked += result.BlockedNumbers
		stats.Errors = append(stats.Errors, result.Errors...)
	}
	return stats
}

// Block implements the engine's NumberBlocker contract.
func (s *Service) Block(ctx context.Context, businessID string, reason types.BlockReason) error {
	result, err := s.BlockNumbers(ctx, businessID, reason)
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("blocked %d of %d numbers for %s", result.BlockedNumbers, result.Total, businessID)
	}
	return nil
}

// Unblock implements the engine's NumberBlocker contract.
func (s *Service) Unblock(ctx context.Context, businessID string) error {
	result, err := s.UnblockNumbers(ctx, businessID)
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("unblocked %d of %d numbers for %s", result.UnblockedNumbers, result.Total, businessID)
	}
	return nil
}
