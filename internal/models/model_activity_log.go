package models

import (
	"time"

	"gorm.io/datatypes"
)

// ActivityLog records block/unblock batches and sweep runs for auditing.
type ActivityLog struct {
	ID         string         `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Category   string         `gorm:"column:category;type:varchar(64);not null;index" json:"category"`
	BusinessID string         `gorm:"column:business_id;type:varchar(64);index" json:"business_id"`
	Payload    datatypes.JSON `gorm:"column:payload;type:jsonb;default:'{}'" json:"payload"`
	CreatedAt  time.Time      `json:"created_at"`
}

func (ActivityLog) TableName() string {
	return "activity_log"
}

// Activity log categories.
const (
	ActivityCategoryNumbersBlocked   = "numbers_blocked"
	ActivityCategoryNumbersUnblocked = "numbers_unblocked"
	ActivityCategorySweepRun         = "sweep_run"
)
