package licensing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/keylock-io/keylock/pkg/db/models"
)

// StorageMode identifies which store backend the process booted with.
type StorageMode string

const (
	StorageModeDurable  StorageMode = "durable"
	StorageModeFallback StorageMode = "fallback"
)

// Sentinel errors shared by both store backends.
var (
	ErrNotFound        = errors.New("license not found")
	ErrDuplicateKey    = errors.New("license key already exists")
	ErrActivationLimit = errors.New("activation limit reached")
	ErrReadOnlyStore   = errors.New("store does not accept new licenses")
)

// BindRequest carries the hardware identity for one binding attempt.
type BindRequest struct {
	Fingerprint    string
	MachineName    string
	ProductVersion string
	Now            time.Time
}

// BindResult reports the outcome of an atomic binding attempt.
type BindResult struct {
	Activation models.Activation
	BoundCount int
	Renewed    bool
}

// Counts holds the aggregate numbers reported by the status operation.
type Counts struct {
	TotalLicenses  int64
	ActiveLicenses int64
}

// Store is the persistence surface the validation engine works against.
// Two backends implement it: the durable Postgres repository and the
// seed-only in-memory fallback chosen at process start.
type Store interface {
	Mode() StorageMode
	Ping(ctx context.Context) error

	FindByKey(ctx context.Context, key string) (*models.License, error)
	Insert(ctx context.Context, license *models.License) error
	ListActivations(ctx context.Context, licenseID uuid.UUID) ([]models.Activation, error)

	// AddActivation and UpdateActivation mutate a single activation row.
	// Validation goes through Bind instead, which runs the check and the
	// write atomically; these exist for out-of-band maintenance.
	AddActivation(ctx context.Context, activation *models.Activation) error
	UpdateActivation(ctx context.Context, activation *models.Activation) error

	// Bind runs the binding check and write as one atomic unit per license:
	// an existing fingerprint is renewed, a new one is created only while
	// the distinct-fingerprint count stays under max. Returns
	// ErrActivationLimit when the license is at capacity.
	Bind(ctx context.Context, license *models.License, req BindRequest) (*BindResult, error)

	// AppendLog records a validation attempt. Callers must treat failures
	// as diagnostic only; they never change a verdict.
	AppendLog(ctx context.Context, entry *models.ValidationLog) error

	Counts(ctx context.Context) (Counts, error)
}
