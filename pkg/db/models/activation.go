package models

import (
	"time"

	"github.com/google/uuid"
)

// Activation binds a license to one piece of hardware. The fingerprint is
// caller-supplied and treated as opaque.
type Activation struct {
	ID                  uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	LicenseID           uuid.UUID `gorm:"column:license_id;type:uuid;not null;index:idx_activations_license_id"`
	HardwareFingerprint string    `gorm:"column:hardware_fingerprint;not null"`
	MachineName         string    `gorm:"column:machine_name"`
	ProductVersion      string    `gorm:"column:product_version"`
	FirstActivated      time.Time `gorm:"column:first_activated;not null"`
	LastSeen            time.Time `gorm:"column:last_seen;not null"`
}
