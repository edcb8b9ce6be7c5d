package blocking

import (
	"context"

	"gorm.io/gorm"

	"github.com/voxloop/trialguard/internal/models"
	"github.com/voxloop/trialguard/pkg/types"
)

// PendingBlock is a blocked trial subject whose business still has numbers
// routing normally, either because a previous block partially failed or
// because numbers were added after the block.
type PendingBlock struct {
	BusinessID  string
	BlockReason string
}

// NumberStore is the persistence contract of the blocking adapter.
type NumberStore interface {
	ListNumbersByStatus(ctx context.Context, businessID string, status types.PhoneNumberStatus) ([]*models.PhoneNumber, error)
	SaveNumber(ctx context.Context, number *models.PhoneNumber) error
	ListPendingBlocks(ctx context.Context) ([]PendingBlock, error)
}

type gormNumberStore struct {
	db *gorm.DB
}

func NewGormNumberStore(db *gorm.DB) NumberStore { return &gormNumberStore{db: db} }

func (s *gormNumberStore) ListNumbersByStatus(ctx context.Context, businessID string, status types.PhoneNumberStatus) ([]*models.PhoneNumber, error) {
	var numbers []*models.PhoneNumber
	err := s.db.WithContext(ctx).
		Where("business_id = ? AND status = ?", businessID, status).
		Find(&numbers).Error
	return numbers, err
}

func (s *gormNumberStore) SaveNumber(ctx context.Context, number *models.PhoneNumber) error {
	return s.db.WithContext(ctx).Save(number).Error
}

func (s *gormNumberStore) ListPendingBlocks(ctx context.Context) ([]PendingBlock, error) {
	var pending []PendingBlock
	err := s.db.WithContext(ctx).
		Table("trial_usage").
		Select("DISTINCT trial_usage.business_id AS business_id, trial_usage.block_reason AS block_reason").
		Joins("JOIN phone_number ON phone_number.business_id = trial_usage.business_id").
		Where("trial_usage.status = ? AND trial_usage.is_blocked = true", types.TrialStatusBlocked).
		Where("phone_number.status = ?", types.PhoneNumberStatusActive).
		Scan(&pending).Error
	return pending, err
}
