package models

import (
	"time"

	"github.com/google/uuid"
)

// License grants usage rights for a single customer, capped at
// MaxActivations distinct hardware fingerprints.
type License struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	LicenseKey     string     `gorm:"column:license_key;not null;uniqueIndex:uq_licenses_license_key"`
	CustomerName   string     `gorm:"column:customer_name;not null"`
	CustomerEmail  *string    `gorm:"column:customer_email"`
	MaxActivations int        `gorm:"column:max_activations;not null;default:1"`
	CreationDate   time.Time  `gorm:"column:creation_date;not null"`
	ExpirationDate time.Time  `gorm:"column:expiration_date;not null"`
	IsActive       bool       `gorm:"column:is_active;not null;default:true"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;autoUpdateTime"`

	Activations []Activation `gorm:"foreignKey:LicenseID;constraint:OnDelete:CASCADE"`
}
