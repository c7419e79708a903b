package licensing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/keylock-io/keylock/pkg/db"
	"github.com/keylock-io/keylock/pkg/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// txRunner is the slice of db.Client the repository depends on.
type txRunner interface {
	DB() *gorm.DB
	Ping(ctx context.Context) error
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Repository is the durable license store backed by Postgres through GORM.
// Every operation runs under the storage policy: per-attempt timeout plus
// bounded retries for transient connectivity failures.
type Repository struct {
	client txRunner
	policy db.Policy
}

// NewRepository constructs the durable store.
func NewRepository(client txRunner, policy db.Policy) (*Repository, error) {
	if client == nil {
		return nil, fmt.Errorf("db client required")
	}
	return &Repository{client: client, policy: policy}, nil
}

func (r *Repository) Mode() StorageMode {
	return StorageModeDurable
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.policy.Do(ctx, func(ctx context.Context) error {
		return r.client.Ping(ctx)
	})
}

// FindByKey returns the license with the exact key, or ErrNotFound.
func (r *Repository) FindByKey(ctx context.Context, key string) (*models.License, error) {
	var license models.License
	err := r.policy.Do(ctx, func(ctx context.Context) error {
		return r.client.DB().WithContext(ctx).
			Where("license_key = ?", key).
			First(&license).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &license, nil
}

// Insert persists a new license, reporting ErrDuplicateKey on a key clash.
func (r *Repository) Insert(ctx context.Context, license *models.License) error {
	if license.ID == uuid.Nil {
		license.ID = uuid.New()
	}
	err := r.policy.Do(ctx, func(ctx context.Context) error {
		return r.client.DB().WithContext(ctx).Create(license).Error
	})
	if err != nil {
		if db.IsUniqueViolation(err, "uq_licenses_license_key") {
			return ErrDuplicateKey
		}
		return err
	}
	return nil
}

// ListActivations returns a license's activations ordered by first_activated.
func (r *Repository) ListActivations(ctx context.Context, licenseID uuid.UUID) ([]models.Activation, error) {
	var rows []models.Activation
	err := r.policy.Do(ctx, func(ctx context.Context) error {
		return r.client.DB().WithContext(ctx).
			Where("license_id = ?", licenseID).
			Order("first_activated ASC").
			Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// AddActivation inserts a single activation row.
func (r *Repository) AddActivation(ctx context.Context, activation *models.Activation) error {
	if activation.ID == uuid.Nil {
		activation.ID = uuid.New()
	}
	return r.policy.Do(ctx, func(ctx context.Context) error {
		return r.client.DB().WithContext(ctx).Create(activation).Error
	})
}

// UpdateActivation saves last_seen plus machine metadata for an existing row.
func (r *Repository) UpdateActivation(ctx context.Context, activation *models.Activation) error {
	return r.policy.Do(ctx, func(ctx context.Context) error {
		return r.client.DB().WithContext(ctx).
			Model(&models.Activation{}).
			Where("id = ?", activation.ID).
			Updates(map[string]any{
				"machine_name":    activation.MachineName,
				"product_version": activation.ProductVersion,
				"last_seen":       activation.LastSeen,
			}).Error
	})
}

// Bind performs the binding check and write inside one transaction with the
// license row locked, so two concurrent validations for the same license
// cannot both observe spare capacity and overshoot max_activations.
func (r *Repository) Bind(ctx context.Context, license *models.License, req BindRequest) (*BindResult, error) {
	var result BindResult
	err := r.policy.Do(ctx, func(ctx context.Context) error {
		return r.client.WithTx(ctx, func(tx *gorm.DB) error {
			tx = tx.WithContext(ctx)

			locked := tx.Model(&models.License{})
			if tx.Dialector.Name() == "postgres" {
				locked = locked.Clauses(clause.Locking{Strength: "UPDATE"})
			}
			var row models.License
			if err := locked.Where("id = ?", license.ID).First(&row).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return db.Permanent(ErrNotFound)
				}
				return err
			}

			var existing models.Activation
			err := tx.Where("license_id = ? AND hardware_fingerprint = ?", license.ID, req.Fingerprint).
				First(&existing).Error
			switch {
			case err == nil:
				existing.LastSeen = req.Now
				existing.MachineName = req.MachineName
				if req.ProductVersion != "" {
					existing.ProductVersion = req.ProductVersion
				}
				if err := tx.Model(&models.Activation{}).
					Where("id = ?", existing.ID).
					Updates(map[string]any{
						"machine_name":    existing.MachineName,
						"product_version": existing.ProductVersion,
						"last_seen":       existing.LastSeen,
					}).Error; err != nil {
					return err
				}

				var count int64
				if err := tx.Model(&models.Activation{}).
					Where("license_id = ?", license.ID).
					Count(&count).Error; err != nil {
					return err
				}
				result = BindResult{Activation: existing, BoundCount: int(count), Renewed: true}
				return nil

			case errors.Is(err, gorm.ErrRecordNotFound):
				var count int64
				if err := tx.Model(&models.Activation{}).
					Where("license_id = ?", license.ID).
					Count(&count).Error; err != nil {
					return err
				}
				if count >= int64(row.MaxActivations) {
					return db.Permanent(ErrActivationLimit)
				}

				created := models.Activation{
					ID:                  uuid.New(),
					LicenseID:           license.ID,
					HardwareFingerprint: req.Fingerprint,
					MachineName:         req.MachineName,
					ProductVersion:      req.ProductVersion,
					FirstActivated:      req.Now,
					LastSeen:            req.Now,
				}
				if err := tx.Create(&created).Error; err != nil {
					return err
				}
				result = BindResult{Activation: created, BoundCount: int(count) + 1, Renewed: false}
				return nil

			default:
				return err
			}
		})
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// AppendLog writes one validation attempt row.
func (r *Repository) AppendLog(ctx context.Context, entry *models.ValidationLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.policy.Do(ctx, func(ctx context.Context) error {
		return r.client.DB().WithContext(ctx).Create(entry).Error
	})
}

// Counts reports total and active license counts for the status endpoint.
func (r *Repository) Counts(ctx context.Context) (Counts, error) {
	var counts Counts
	err := r.policy.Do(ctx, func(ctx context.Context) error {
		conn := r.client.DB().WithContext(ctx)
		if err := conn.Model(&models.License{}).Count(&counts.TotalLicenses).Error; err != nil {
			return err
		}
		return conn.Model(&models.License{}).
			Where("is_active = ?", true).
			Count(&counts.ActiveLicenses).Error
	})
	if err != nil {
		return Counts{}, err
	}
	return counts, nil
}
