package models

import (
	"time"

	"github.com/voxloop/trialguard/pkg/types"

	"gorm.io/datatypes"
)

// PhoneNumberMetadata is the JSON bag attached to a number. OriginalConfig is
// snapshotted once on the ACTIVE->BLOCKED edge and must not be overwritten by a
// second block while the number is still blocked, so unblock restores the
// pre-block routing verbatim.
type PhoneNumberMetadata struct {
	Blocked        bool                      `json:"blocked"`
	BlockReason    types.BlockReason         `json:"block_reason,omitempty"`
	BlockedAt      *time.Time                `json:"blocked_at,omitempty"`
	UnblockedAt    *time.Time                `json:"unblocked_at,omitempty"`
	OriginalConfig *types.VoiceWebhookConfig `json:"original_config,omitempty"`
}

// PhoneNumber is one provisioned telephony number of a business.
type PhoneNumber struct {
	ID             string                                   `gorm:"column:id;type:uuid;primary_key" json:"id"`
	BusinessID     string                                   `gorm:"column:business_id;type:varchar(64);not null;index" json:"business_id"`
	PhoneNumber    string                                   `gorm:"column:phone_number;type:varchar(32);not null;uniqueIndex" json:"phone_number"`
	Status         types.PhoneNumberStatus                  `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	TelnyxNumberID string                                   `gorm:"column:telnyx_number_id;type:varchar(64);not null" json:"telnyx_number_id"`
	Metadata       datatypes.JSONType[*PhoneNumberMetadata] `gorm:"column:metadata;type:jsonb;default:'{}'" json:"metadata"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (PhoneNumber) TableName() string {
	return "phone_number"
}

// GetMetadata never returns nil.
func (n *PhoneNumber) GetMetadata() *PhoneNumberMetadata {
	if n == nil {
		return &PhoneNumberMetadata{}
	}
	if m := n.Metadata.Data(); m != nil {
		return m
	}
	return &PhoneNumberMetadata{}
}
