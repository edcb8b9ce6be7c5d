package trial

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/voxloop/trialguard/internal/models"
	"github.com/voxloop/trialguard/pkg/types"
)

// Store is the persistence contract of the engine. The gorm implementation is
// the production one; tests inject an in-memory fake.
type Store interface {
	GetByIdentifier(ctx context.Context, identifier string) (*models.TrialUsage, error)
	Create(ctx context.Context, subject *models.TrialUsage) error
	// Update applies targeted field sets so concurrent writers converge
	// instead of clobbering whole rows.
	Update(ctx context.Context, identifier string, fields map[string]any) error
	// IncrementUsage atomically consumes one call. It returns false when the
	// guard (calls_remaining > 0) rejected the increment.
	IncrementUsage(ctx context.Context, identifier string, now time.Time) (bool, error)
	GetBusiness(ctx context.Context, businessID string) (*models.Business, error)

	ListWarningCandidates(ctx context.Context, warningCallsUsed, warningDaysRemaining int, now time.Time) ([]*models.TrialUsage, error)
	ListBlockingCandidates(ctx context.Context, now time.Time) ([]*models.TrialUsage, error)
	ListDeletionWarningCandidates(ctx context.Context, blockedBefore time.Time) ([]*models.TrialUsage, error)
	ListDeletionDue(ctx context.Context, now time.Time) ([]*models.TrialUsage, error)

	CountCritical(ctx context.Context, now time.Time) (int64, error)
	CountExpiredUnblocked(ctx context.Context, now time.Time) (int64, error)

	// MarkPaidForBusiness upgrades all blocked / pending_deletion subjects of
	// a business and clears their suspension fields. Returns affected rows.
	MarkPaidForBusiness(ctx context.Context, businessID string) (int64, error)
}

type gormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) Store { return &gormStore{db: db} }

func (s *gormStore) GetByIdentifier(ctx context.Context, identifier string) (*models.TrialUsage, error) {
	var subject models.TrialUsage
	err := s.db.WithContext(ctx).Where("identifier = ?", identifier).First(&subject).Error
	if err != nil {
		return nil, err
	}
	return &subject, nil
}

func (s *gormStore) Create(ctx context.Context, subject *models.TrialUsage) error {
	return s.db.WithContext(ctx).Create(subject).Error
}

func (s *gormStore) Update(ctx context.Context, identifier string, fields map[string]any) error {
	res := s.db.WithContext(ctx).Model(&models.TrialUsage{}).
		Where("identifier = ?", identifier).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("trial subject not found: %s", identifier)
	}
	return nil
}

func (s *gormStore) IncrementUsage(ctx context.Context, identifier string, now time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.TrialUsage{}).
		Where("identifier = ? AND calls_remaining > 0", identifier).
		Updates(map[string]any{
			"calls_used":         gorm.Expr("calls_used + 1"),
			"calls_remaining":    gorm.Expr("calls_remaining - 1"),
			"last_call_date":     now,
			"last_activity_date": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *gormStore) GetBusiness(ctx context.Context, businessID string) (*models.Business, error) {
	var business models.Business
	err := s.db.WithContext(ctx).Where("id = ?", businessID).First(&business).Error
	if err != nil {
		return nil, err
	}
	return &business, nil
}

func (s *gormStore) ListWarningCandidates(ctx context.Context, warningCallsUsed, warningDaysRemaining int, now time.Time) ([]*models.TrialUsage, error) {
	var subjects []*models.TrialUsage
	warningEnd := now.Add(time.Duration(warningDaysRemaining) * 24 * time.Hour)
	err := s.db.WithContext(ctx).
		Where("status = ? AND warning_email_sent = false", types.TrialStatusActive).
		Where("calls_used >= ? OR trial_end_date <= ? OR (calls_remaining <= 2 AND calls_used >= 5)", warningCallsUsed, warningEnd).
		Find(&subjects).Error
	return subjects, err
}

func (s *gormStore) ListBlockingCandidates(ctx context.Context, now time.Time) ([]*models.TrialUsage, error) {
	var subjects []*models.TrialUsage
	err := s.db.WithContext(ctx).
		Where("calls_remaining <= 0 OR trial_end_date <= ?", now).
		Where("status IN ? AND is_blocked = false", []types.TrialStatus{types.TrialStatusActive, types.TrialStatusWarned}).
		Find(&subjects).Error
	return subjects, err
}

func (s *gormStore) ListDeletionWarningCandidates(ctx context.Context, blockedBefore time.Time) ([]*models.TrialUsage, error) {
	var subjects []*models.TrialUsage
	err := s.db.WithContext(ctx).
		Where("status = ? AND deletion_warning_email_sent = false", types.TrialStatusBlocked).
		Where("blocked_email_date IS NOT NULL AND blocked_email_date <= ?", blockedBefore).
		Find(&subjects).Error
	return subjects, err
}

func (s *gormStore) ListDeletionDue(ctx context.Context, now time.Time) ([]*models.TrialUsage, error) {
	var subjects []*models.TrialUsage
	err := s.db.WithContext(ctx).
		Where("scheduled_deletion_date IS NOT NULL AND scheduled_deletion_date <= ?", now).
		Where("status IN ?", []types.TrialStatus{types.TrialStatusBlocked, types.TrialStatusPendingDeletion}).
		Find(&subjects).Error
	return subjects, err
}

func (s *gormStore) CountCritical(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	criticalEnd := now.Add(24 * time.Hour)
	err := s.db.WithContext(ctx).Model(&models.TrialUsage{}).
		Where("status = ?", types.TrialStatusActive).
		Where("calls_remaining <= 2 OR trial_end_date <= ?", criticalEnd).
		Count(&count).Error
	return count, err
}

func (s *gormStore) CountExpiredUnblocked(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.TrialUsage{}).
		Where("calls_remaining <= 0 OR trial_end_date <= ?", now).
		Where("is_blocked = false").
		Where("status NOT IN ?", []types.TrialStatus{types.TrialStatusDeleted, types.TrialStatusPaid}).
		Count(&count).Error
	return count, err
}

func (s *gormStore) MarkPaidForBusiness(ctx context.Context, businessID string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.TrialUsage{}).
		Where("business_id = ?", businessID).
		Where("status IN ?", []types.TrialStatus{types.TrialStatusBlocked, types.TrialStatusPendingDeletion}).
		Updates(map[string]any{
			"status":                  types.TrialStatusPaid,
			"is_blocked":              false,
			"block_reason":            nil,
			"scheduled_deletion_date": nil,
		})
	return res.RowsAffected, res.Error
}
