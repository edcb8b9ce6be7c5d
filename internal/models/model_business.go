package models

import "time"

// Business is a tenant. Only identity and owner contact fields live here; the
// product catalog and profile data belong to other services.
type Business struct {
	ID         string `gorm:"column:id;type:varchar(64);primary_key" json:"id"`
	Name       string `gorm:"column:name;type:varchar(255);not null" json:"name"`
	OwnerName  string `gorm:"column:owner_name;type:varchar(255)" json:"owner_name"`
	OwnerEmail string `gorm:"column:owner_email;type:varchar(255);not null" json:"owner_email"`

	PhoneNumbers []PhoneNumber `gorm:"foreignKey:BusinessID" json:"phone_numbers,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Business) TableName() string {
	return "business"
}
