package models

import (
	"time"

	"github.com/google/uuid"
)

// ValidationLog records one validation attempt, successful or not. Rows are
// append-only and never referenced by other entities.
type ValidationLog struct {
	ID                  uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	LicenseID           *uuid.UUID `gorm:"column:license_id;type:uuid;index:idx_validation_logs_license_id"`
	LicenseKey          string     `gorm:"column:license_key;not null"`
	HardwareFingerprint string     `gorm:"column:hardware_fingerprint;not null"`
	ValidationDate      time.Time  `gorm:"column:validation_date;not null"`
	IsSuccessful        bool       `gorm:"column:is_successful;not null"`
	ErrorMessage        string     `gorm:"column:error_message"`
	IPAddress           string     `gorm:"column:ip_address"`
}
