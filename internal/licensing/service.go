package licensing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/keylock-io/keylock/pkg/config"
	"github.com/keylock-io/keylock/pkg/db/models"
	pkgerrors "github.com/keylock-io/keylock/pkg/errors"
	"github.com/keylock-io/keylock/pkg/logger"
	"github.com/keylock-io/keylock/pkg/metrics"
	"github.com/keylock-io/keylock/pkg/security"
)

const (
	minValidityDays = 1
	maxValidityDays = 3650

	maxBulkCount = 1000
)

// keyMaker produces license keys; *KeyGenerator satisfies it.
type keyMaker interface {
	Generate() (string, error)
}

// ValidateInput is one validation attempt as submitted by a client machine.
type ValidateInput struct {
	LicenseKey          string
	HardwareFingerprint string
	MachineName         string
	ProductVersion      string
	IPAddress           string
}

// Verdict is the outcome of a validation attempt. ErrorMessage is set
// exactly when IsValid is false.
type Verdict struct {
	IsValid              bool
	CustomerName         string
	ExpirationDate       time.Time
	RemainingActivations int
	ErrorMessage         string
}

// GenerateInput carries the administrative parameters for issuing a license.
type GenerateInput struct {
	AdminSecret    string
	CustomerName   string
	CustomerEmail  string
	MaxActivations int
	ValidityDays   int
}

// GenerateResult reports one freshly issued license.
type GenerateResult struct {
	License      *models.License
	ValidityDays int
}

// BulkGenerateInput issues count licenses named customerNamePrefix-0001 and up.
type BulkGenerateInput struct {
	AdminSecret        string
	CustomerNamePrefix string
	Count              int
	ValidityDays       int
	MaxActivations     int
}

// BulkEntry is the per-license outcome of a bulk call, in request order.
type BulkEntry struct {
	Index        int
	CustomerName string
	LicenseKey   string
	Error        string
}

// BulkResult summarizes a bulk call. Failed > 0 means partial failure and
// every failed entry carries its error; nothing is silently dropped.
type BulkResult struct {
	Requested int
	Created   int
	Failed    int
	Entries   []BulkEntry
}

// StatusReport is the operational snapshot served by the status endpoint.
type StatusReport struct {
	Mode           StorageMode
	Reachable      bool
	TotalLicenses  int64
	ActiveLicenses int64
}

// Service exposes license validation, issuance, and status semantics.
type Service interface {
	Validate(ctx context.Context, input ValidateInput) (*Verdict, error)
	Generate(ctx context.Context, input GenerateInput) (*GenerateResult, error)
	BulkGenerate(ctx context.Context, input BulkGenerateInput) (*BulkResult, error)
	Status(ctx context.Context) (*StatusReport, error)
}

type service struct {
	store    Store
	keygen   keyMaker
	admin    config.AdminConfig
	defaults config.LicenseConfig
	logg     *logger.Logger
	metrics  *metrics.ValidationMetrics
	now      func() time.Time
}

// NewService builds the licensing service on the provided store backend.
func NewService(store Store, keygen keyMaker, admin config.AdminConfig, defaults config.LicenseConfig, logg *logger.Logger, m *metrics.ValidationMetrics) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("license store required")
	}
	if keygen == nil {
		return nil, fmt.Errorf("key generator required")
	}
	if admin.Secret == "" && admin.SecretHash == "" {
		return nil, fmt.Errorf("admin secret required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		store:    store,
		keygen:   keygen,
		admin:    admin,
		defaults: defaults,
		logg:     logg,
		metrics:  m,
		now:      time.Now,
	}, nil
}

// Validate applies the gate sequence lookup, active, expiry, binding. The
// order is fixed: each reason is user-visible and callers branch on it.
func (s *service) Validate(ctx context.Context, input ValidateInput) (*Verdict, error) {
	started := s.now()

	if strings.TrimSpace(input.LicenseKey) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "license key is required")
	}
	if strings.TrimSpace(input.HardwareFingerprint) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "hardware fingerprint is required")
	}

	ctx = s.logg.WithLicenseKey(ctx, input.LicenseKey)
	ctx = s.logg.WithFingerprint(ctx, input.HardwareFingerprint)

	license, err := s.store.FindByKey(ctx, input.LicenseKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.observe(started, metrics.ReasonUnknownKey)
			return s.reject(ctx, nil, input, "Unknown license key"), nil
		}
		s.observe(started, metrics.ReasonStorage)
		s.appendLog(ctx, nil, input, false, "storage unavailable")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "looking up license")
	}

	if !license.IsActive {
		s.observe(started, metrics.ReasonDeactivated)
		return s.reject(ctx, license, input, "License has been deactivated"), nil
	}

	now := s.now()
	if now.After(license.ExpirationDate) {
		s.observe(started, metrics.ReasonExpired)
		msg := fmt.Sprintf("License expired on %s", license.ExpirationDate.Format("2006-01-02"))
		return s.reject(ctx, license, input, msg), nil
	}

	bind, err := s.store.Bind(ctx, license, BindRequest{
		Fingerprint:    input.HardwareFingerprint,
		MachineName:    input.MachineName,
		ProductVersion: input.ProductVersion,
		Now:            now,
	})
	if err != nil {
		if errors.Is(err, ErrActivationLimit) {
			s.observe(started, metrics.ReasonLimit)
			msg := fmt.Sprintf("License already activated on the maximum number of machines (%d)", license.MaxActivations)
			return s.reject(ctx, license, input, msg), nil
		}
		s.observe(started, metrics.ReasonStorage)
		s.appendLog(ctx, license, input, false, "storage unavailable")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "binding activation")
	}

	s.observe(started, metrics.ReasonValid)
	s.appendLog(ctx, license, input, true, "")

	remaining := license.MaxActivations - bind.BoundCount
	if remaining < 0 {
		remaining = 0
	}
	return &Verdict{
		IsValid:              true,
		CustomerName:         license.CustomerName,
		ExpirationDate:       license.ExpirationDate,
		RemainingActivations: remaining,
	}, nil
}

// Generate issues a single license. Preconditions are checked in a fixed
// order, each with its own failure outcome: secret, customer name, validity
// window, storage availability.
func (s *service) Generate(ctx context.Context, input GenerateInput) (*GenerateResult, error) {
	if err := s.authorize(input.AdminSecret); err != nil {
		return nil, err
	}
	if err := s.checkGenerateParams(input.CustomerName, input.ValidityDays); err != nil {
		return nil, err
	}
	return s.issue(ctx, input)
}

// BulkGenerate issues up to maxBulkCount licenses with sequentially numbered
// customer names. Individual failures are reported per entry.
func (s *service) BulkGenerate(ctx context.Context, input BulkGenerateInput) (*BulkResult, error) {
	if err := s.authorize(input.AdminSecret); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.CustomerNamePrefix) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer name prefix is required")
	}
	if input.Count < 1 || input.Count > maxBulkCount {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("count must be between 1 and %d", maxBulkCount))
	}
	if input.ValidityDays < minValidityDays || input.ValidityDays > maxValidityDays {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("validity days must be between %d and %d", minValidityDays, maxValidityDays))
	}
	if err := s.requireDurable(); err != nil {
		return nil, err
	}

	result := &BulkResult{Requested: input.Count, Entries: make([]BulkEntry, 0, input.Count)}
	for i := 0; i < input.Count; i++ {
		name := fmt.Sprintf("%s-%04d", strings.TrimSpace(input.CustomerNamePrefix), i+1)
		entry := BulkEntry{Index: i, CustomerName: name}

		issued, err := s.issue(ctx, GenerateInput{
			AdminSecret:    input.AdminSecret,
			CustomerName:   name,
			MaxActivations: input.MaxActivations,
			ValidityDays:   input.ValidityDays,
		})
		if err != nil {
			entry.Error = pkgerrors.As(err).Message()
			if entry.Error == "" {
				entry.Error = err.Error()
			}
			result.Failed++
			s.logg.Warn(s.logg.WithField(ctx, "customer", name), "bulk generation entry failed")
		} else {
			entry.LicenseKey = issued.License.LicenseKey
			result.Created++
		}
		result.Entries = append(result.Entries, entry)
	}
	return result, nil
}

// Status reports the storage mode, reachability, and aggregate counts.
func (s *service) Status(ctx context.Context) (*StatusReport, error) {
	report := &StatusReport{Mode: s.store.Mode()}

	if err := s.store.Ping(ctx); err != nil {
		s.logg.Warn(ctx, "status ping failed")
		return report, nil
	}
	report.Reachable = true

	counts, err := s.store.Counts(ctx)
	if err != nil {
		report.Reachable = false
		return report, nil
	}
	report.TotalLicenses = counts.TotalLicenses
	report.ActiveLicenses = counts.ActiveLicenses
	return report, nil
}

func (s *service) issue(ctx context.Context, input GenerateInput) (*GenerateResult, error) {
	if err := s.requireDurable(); err != nil {
		return nil, err
	}

	maxActivations := input.MaxActivations
	if maxActivations == 0 {
		maxActivations = s.defaults.DefaultMaxActivations
	}
	if maxActivations < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "max activations must be at least 1")
	}

	now := s.now()
	license := &models.License{
		ID:             uuid.New(),
		CustomerName:   strings.TrimSpace(input.CustomerName),
		MaxActivations: maxActivations,
		CreationDate:   now,
		ExpirationDate: now.AddDate(0, 0, input.ValidityDays),
		IsActive:       true,
	}
	if email := strings.TrimSpace(input.CustomerEmail); email != "" {
		license.CustomerEmail = &email
	}

	// One regeneration retry on a key collision, then surface the failure.
	for attempt := 0; attempt < 2; attempt++ {
		key, err := s.keygen.Generate()
		if err != nil {
			s.metrics.IncGeneration("keygen_error")
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generating license key")
		}
		license.LicenseKey = key

		err = s.store.Insert(ctx, license)
		if err == nil {
			s.metrics.IncGeneration("success")
			return &GenerateResult{License: license, ValidityDays: input.ValidityDays}, nil
		}
		if errors.Is(err, ErrDuplicateKey) {
			s.logg.Warn(s.logg.WithLicenseKey(ctx, key), "license key collision, regenerating")
			continue
		}
		if errors.Is(err, ErrReadOnlyStore) {
			s.metrics.IncGeneration("storage_unavailable")
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "license storage unavailable")
		}
		s.metrics.IncGeneration("storage_error")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persisting license")
	}

	s.metrics.IncGeneration("duplicate_key")
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "license key collision persisted after retry")
}

func (s *service) authorize(secret string) error {
	var ok bool
	if s.admin.SecretHash != "" {
		match, err := security.VerifySecretHash(secret, s.admin.SecretHash)
		ok = err == nil && match
	} else {
		ok = security.CompareSecret(secret, s.admin.Secret)
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid admin secret")
	}
	return nil
}

func (s *service) checkGenerateParams(customerName string, validityDays int) error {
	if strings.TrimSpace(customerName) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer name is required")
	}
	if validityDays < minValidityDays || validityDays > maxValidityDays {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("validity days must be between %d and %d", minValidityDays, maxValidityDays))
	}
	return nil
}

func (s *service) requireDurable() error {
	if s.store.Mode() != StorageModeDurable {
		return pkgerrors.New(pkgerrors.CodeDependency, "license storage unavailable")
	}
	return nil
}

// reject builds an invalid verdict and records the attempt.
func (s *service) reject(ctx context.Context, license *models.License, input ValidateInput, msg string) *Verdict {
	s.appendLog(ctx, license, input, false, msg)
	return &Verdict{IsValid: false, ErrorMessage: msg}
}

// appendLog is fire-and-forget: a failed audit write never changes the verdict.
func (s *service) appendLog(ctx context.Context, license *models.License, input ValidateInput, ok bool, msg string) {
	entry := &models.ValidationLog{
		LicenseKey:          input.LicenseKey,
		HardwareFingerprint: input.HardwareFingerprint,
		ValidationDate:      s.now(),
		IsSuccessful:        ok,
		ErrorMessage:        msg,
		IPAddress:           input.IPAddress,
	}
	if license != nil {
		id := license.ID
		entry.LicenseID = &id
	}
	if err := s.store.AppendLog(ctx, entry); err != nil {
		s.logg.Warn(ctx, "validation log write failed")
	}
}

func (s *service) observe(started time.Time, reason string) {
	s.metrics.ObserveValidation(reason, s.now().Sub(started))
}
