package models

import (
	"time"

	"github.com/voxloop/trialguard/pkg/types"
)

// TrialUsage tracks free-trial consumption for one subject, keyed by a stable
// identifier (normally the business id). One row per subject; concurrent first
// touches are resolved by the unique index on identifier.
type TrialUsage struct {
	ID             string                    `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Identifier     string                    `gorm:"column:identifier;type:varchar(64);not null;uniqueIndex" json:"identifier"`
	IdentifierType types.TrialIdentifierType `gorm:"column:identifier_type;type:varchar(32);not null" json:"identifier_type"`
	BusinessID     string                    `gorm:"column:business_id;type:varchar(64);index" json:"business_id"`

	CallsUsed      int `gorm:"column:calls_used;not null;default:0" json:"calls_used"`
	CallsRemaining int `gorm:"column:calls_remaining;not null" json:"calls_remaining"`
	CallsLimit     int `gorm:"column:calls_limit;not null" json:"calls_limit"`

	DaysUsed      int       `gorm:"column:days_used;not null;default:0" json:"days_used"`
	DaysRemaining int       `gorm:"column:days_remaining;not null" json:"days_remaining"`
	DaysLimit     int       `gorm:"column:days_limit;not null" json:"days_limit"`
	TrialEndDate  time.Time `gorm:"column:trial_end_date;not null" json:"trial_end_date"`

	Status      types.TrialStatus `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	IsBlocked   bool              `gorm:"column:is_blocked;not null;default:false;index" json:"is_blocked"`
	BlockReason *string           `gorm:"column:block_reason;type:varchar(128);default:null" json:"block_reason"`

	WarningEmailSent         bool       `gorm:"column:warning_email_sent;not null;default:false" json:"warning_email_sent"`
	WarningEmailDate         *time.Time `gorm:"column:warning_email_date;default:null" json:"warning_email_date"`
	BlockedEmailSent         bool       `gorm:"column:blocked_email_sent;not null;default:false" json:"blocked_email_sent"`
	BlockedEmailDate         *time.Time `gorm:"column:blocked_email_date;default:null" json:"blocked_email_date"`
	DeletionWarningEmailSent bool       `gorm:"column:deletion_warning_email_sent;not null;default:false" json:"deletion_warning_email_sent"`
	DeletionWarningEmailDate *time.Time `gorm:"column:deletion_warning_email_date;default:null" json:"deletion_warning_email_date"`
	DeletionEmailSent        bool       `gorm:"column:deletion_email_sent;not null;default:false" json:"deletion_email_sent"`
	DeletionEmailDate        *time.Time `gorm:"column:deletion_email_date;default:null" json:"deletion_email_date"`

	// ScheduledDeletionDate is only meaningful while status is blocked or pending_deletion.
	ScheduledDeletionDate *time.Time `gorm:"column:scheduled_deletion_date;default:null" json:"scheduled_deletion_date"`
	LastCallDate          *time.Time `gorm:"column:last_call_date;default:null" json:"last_call_date"`
	LastActivityDate      *time.Time `gorm:"column:last_activity_date;default:null" json:"last_activity_date"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (TrialUsage) TableName() string {
	return "trial_usage"
}

// BlockReasonText returns the stored block reason or empty string.
func (t *TrialUsage) BlockReasonText() string {
	if t == nil || t.BlockReason == nil {
		return ""
	}
	return *t.BlockReason
}

// Terminal reports whether the subject has left the trial state machine.
func (t *TrialUsage) Terminal() bool {
	return t != nil && (t.Status == types.TrialStatusDeleted || t.Status == types.TrialStatusPaid)
}
