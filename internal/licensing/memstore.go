package licensing

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/keylock-io/keylock/pkg/db/models"
)

// memLogCap bounds the in-memory audit trail; oldest entries are dropped.
const memLogCap = 1000

// MemoryStore is the seed-only fallback used when no durable backend is
// configured. The catalog is fixed at construction; bindings it observes
// live only for the lifetime of the process and new licenses are rejected.
type MemoryStore struct {
	mu       sync.Mutex
	licenses map[string]*models.License
	bindings map[uuid.UUID]map[string]*models.Activation
	logs     []models.ValidationLog
}

// SeedEntry describes one pre-seeded license for the fallback catalog.
type SeedEntry struct {
	LicenseKey     string
	CustomerName   string
	MaxActivations int
	ValidityDays   int
}

// ParseSeed parses the fallback seed string: a comma-separated list of
// key:customer:maxActivations:validityDays entries.
func ParseSeed(raw string) ([]SeedEntry, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var entries []SeedEntry
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		fields := strings.Split(item, ":")
		if len(fields) != 4 {
			return nil, fmt.Errorf("seed entry %q: expected key:customer:maxActivations:validityDays", item)
		}

		maxActivations, err := strconv.Atoi(strings.TrimSpace(fields[2]))
		if err != nil || maxActivations < 1 {
			return nil, fmt.Errorf("seed entry %q: invalid maxActivations", item)
		}
		validityDays, err := strconv.Atoi(strings.TrimSpace(fields[3]))
		if err != nil || validityDays < 1 {
			return nil, fmt.Errorf("seed entry %q: invalid validityDays", item)
		}

		entries = append(entries, SeedEntry{
			LicenseKey:     strings.TrimSpace(fields[0]),
			CustomerName:   strings.TrimSpace(fields[1]),
			MaxActivations: maxActivations,
			ValidityDays:   validityDays,
		})
	}
	return entries, nil
}

// NewMemoryStore builds the fallback store from the seed catalog.
func NewMemoryStore(seed []SeedEntry, now time.Time) *MemoryStore {
	store := &MemoryStore{
		licenses: make(map[string]*models.License, len(seed)),
		bindings: make(map[uuid.UUID]map[string]*models.Activation, len(seed)),
	}
	for _, entry := range seed {
		if entry.LicenseKey == "" {
			continue
		}
		license := &models.License{
			ID:             uuid.New(),
			LicenseKey:     entry.LicenseKey,
			CustomerName:   entry.CustomerName,
			MaxActivations: entry.MaxActivations,
			CreationDate:   now,
			ExpirationDate: now.AddDate(0, 0, entry.ValidityDays),
			IsActive:       true,
		}
		store.licenses[license.LicenseKey] = license
		store.bindings[license.ID] = make(map[string]*models.Activation)
	}
	return store
}

func (s *MemoryStore) Mode() StorageMode {
	return StorageModeFallback
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) FindByKey(_ context.Context, key string) (*models.License, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	license, ok := s.licenses[key]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *license
	return &copied, nil
}

// Insert always fails: generated keys must never land in a non-durable
// catalog.
func (s *MemoryStore) Insert(context.Context, *models.License) error {
	return ErrReadOnlyStore
}

func (s *MemoryStore) ListActivations(_ context.Context, licenseID uuid.UUID) ([]models.Activation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([]models.Activation, 0, len(s.bindings[licenseID]))
	for _, activation := range s.bindings[licenseID] {
		rows = append(rows, *activation)
	}
	sortActivations(rows)
	return rows, nil
}

func (s *MemoryStore) AddActivation(_ context.Context, activation *models.Activation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.bindings[activation.LicenseID]
	if !ok {
		return ErrNotFound
	}
	copied := *activation
	if copied.ID == uuid.Nil {
		copied.ID = uuid.New()
	}
	set[copied.HardwareFingerprint] = &copied
	return nil
}

func (s *MemoryStore) UpdateActivation(_ context.Context, activation *models.Activation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.bindings[activation.LicenseID]
	if !ok {
		return ErrNotFound
	}
	existing, ok := set[activation.HardwareFingerprint]
	if !ok {
		return ErrNotFound
	}
	existing.MachineName = activation.MachineName
	existing.ProductVersion = activation.ProductVersion
	existing.LastSeen = activation.LastSeen
	return nil
}

// Bind mirrors the durable semantics against the process-local binding set;
// the mutex is the serialized critical section closing the count/insert race.
func (s *MemoryStore) Bind(_ context.Context, license *models.License, req BindRequest) (*BindResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.licenses[license.LicenseKey]
	if !ok {
		return nil, ErrNotFound
	}
	set := s.bindings[stored.ID]

	if existing, ok := set[req.Fingerprint]; ok {
		existing.LastSeen = req.Now
		existing.MachineName = req.MachineName
		if req.ProductVersion != "" {
			existing.ProductVersion = req.ProductVersion
		}
		return &BindResult{Activation: *existing, BoundCount: len(set), Renewed: true}, nil
	}

	if len(set) >= stored.MaxActivations {
		return nil, ErrActivationLimit
	}

	created := &models.Activation{
		ID:                  uuid.New(),
		LicenseID:           stored.ID,
		HardwareFingerprint: req.Fingerprint,
		MachineName:         req.MachineName,
		ProductVersion:      req.ProductVersion,
		FirstActivated:      req.Now,
		LastSeen:            req.Now,
	}
	set[req.Fingerprint] = created
	return &BindResult{Activation: *created, BoundCount: len(set), Renewed: false}, nil
}

func (s *MemoryStore) AppendLog(_ context.Context, entry *models.ValidationLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *entry
	if copied.ID == uuid.Nil {
		copied.ID = uuid.New()
	}
	s.logs = append(s.logs, copied)
	if len(s.logs) > memLogCap {
		s.logs = s.logs[len(s.logs)-memLogCap:]
	}
	return nil
}

func (s *MemoryStore) Counts(context.Context) (Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := Counts{TotalLicenses: int64(len(s.licenses))}
	for _, license := range s.licenses {
		if license.IsActive {
			counts.ActiveLicenses++
		}
	}
	return counts, nil
}

// Logs returns a snapshot of the in-memory audit trail, newest last.
func (s *MemoryStore) Logs() []models.ValidationLog {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.ValidationLog, len(s.logs))
	copy(out, s.logs)
	return out
}

func sortActivations(rows []models.Activation) {
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].FirstActivated.Before(rows[j].FirstActivated)
	})
}
