package licensing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/keylock-io/keylock/pkg/db/models"
)

func TestParseSeed(t *testing.T) {
	entries, err := ParseSeed("KEY-AAAA-BBBB-CCCC-DDDD:Acme Corp:2:365, KEY-EEEE-FFFF-GGGG-HHHH:Beta LLC:1:30")
	if err != nil {
		t.Fatalf("parse seed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].CustomerName != "Acme Corp" || entries[0].MaxActivations != 2 || entries[0].ValidityDays != 365 {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
	if entries[1].LicenseKey != "KEY-EEEE-FFFF-GGGG-HHHH" {
		t.Fatalf("unexpected second entry %+v", entries[1])
	}
}

func TestParseSeedEmpty(t *testing.T) {
	entries, err := ParseSeed("   ")
	if err != nil {
		t.Fatalf("parse seed: %v", err)
	}
	if entries != nil {
		t.Fatalf("expected nil entries, got %v", entries)
	}
}

func TestParseSeedRejectsMalformedEntries(t *testing.T) {
	cases := []string{
		"KEY-AAAA:Acme",
		"KEY-AAAA:Acme:zero:30",
		"KEY-AAAA:Acme:0:30",
		"KEY-AAAA:Acme:1:-1",
	}
	for _, raw := range cases {
		if _, err := ParseSeed(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestMemoryStoreIsSeedOnly(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore([]SeedEntry{
		{LicenseKey: "KEY-AAAA-BBBB-CCCC-DDDD", CustomerName: "Acme Corp", MaxActivations: 1, ValidityDays: 30},
	}, now)

	if store.Mode() != StorageModeFallback {
		t.Fatalf("unexpected mode %s", store.Mode())
	}

	license, err := store.FindByKey(context.Background(), "KEY-AAAA-BBBB-CCCC-DDDD")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !license.ExpirationDate.Equal(now.AddDate(0, 0, 30)) {
		t.Fatalf("unexpected expiration %v", license.ExpirationDate)
	}

	if _, err := store.FindByKey(context.Background(), "KEY-NOPE-NOPE-NOPE-NOPE"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	err = store.Insert(context.Background(), &models.License{LicenseKey: "KEY-NEWX-NEWX-NEWX-NEWX"})
	if !errors.Is(err, ErrReadOnlyStore) {
		t.Fatalf("expected ErrReadOnlyStore, got %v", err)
	}
}

func TestMemoryStoreBindSemantics(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore([]SeedEntry{
		{LicenseKey: "KEY-AAAA-BBBB-CCCC-DDDD", CustomerName: "Acme Corp", MaxActivations: 1, ValidityDays: 30},
	}, now)

	license, err := store.FindByKey(context.Background(), "KEY-AAAA-BBBB-CCCC-DDDD")
	if err != nil {
		t.Fatalf("find: %v", err)
	}

	first, err := store.Bind(context.Background(), license, BindRequest{Fingerprint: "HW-A", MachineName: "m1", Now: now})
	if err != nil {
		t.Fatalf("first bind: %v", err)
	}
	if first.Renewed || first.BoundCount != 1 {
		t.Fatalf("unexpected first bind %+v", first)
	}

	if _, err := store.Bind(context.Background(), license, BindRequest{Fingerprint: "HW-B", Now: now}); !errors.Is(err, ErrActivationLimit) {
		t.Fatalf("expected ErrActivationLimit, got %v", err)
	}

	renewal, err := store.Bind(context.Background(), license, BindRequest{Fingerprint: "HW-A", MachineName: "m1-renamed", Now: now.Add(time.Hour)})
	if err != nil {
		t.Fatalf("renewal: %v", err)
	}
	if !renewal.Renewed || renewal.BoundCount != 1 {
		t.Fatalf("unexpected renewal %+v", renewal)
	}
	if renewal.Activation.MachineName != "m1-renamed" {
		t.Fatalf("renewal must update machine name, got %q", renewal.Activation.MachineName)
	}
}

func TestMemoryStoreBindConcurrentFingerprints(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore([]SeedEntry{
		{LicenseKey: "KEY-AAAA-BBBB-CCCC-DDDD", CustomerName: "Acme Corp", MaxActivations: 3, ValidityDays: 30},
	}, now)

	license, err := store.FindByKey(context.Background(), "KEY-AAAA-BBBB-CCCC-DDDD")
	if err != nil {
		t.Fatalf("find: %v", err)
	}

	const workers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	bound := 0
	rejected := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			fp := string(rune('A' + n))
			_, err := store.Bind(context.Background(), license, BindRequest{Fingerprint: "HW-" + fp, Now: now})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				bound++
			case errors.Is(err, ErrActivationLimit):
				rejected++
			default:
				t.Errorf("unexpected bind error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if bound != 3 {
		t.Fatalf("exactly maxActivations fingerprints may bind, got %d", bound)
	}
	if rejected != workers-3 {
		t.Fatalf("expected %d rejections, got %d", workers-3, rejected)
	}
}

func TestMemoryStoreLogsAndCounts(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore([]SeedEntry{
		{LicenseKey: "KEY-AAAA-BBBB-CCCC-DDDD", CustomerName: "Acme Corp", MaxActivations: 1, ValidityDays: 30},
		{LicenseKey: "KEY-EEEE-FFFF-GGGG-HHHH", CustomerName: "Beta LLC", MaxActivations: 1, ValidityDays: 30},
	}, now)

	if err := store.AppendLog(context.Background(), &models.ValidationLog{
		LicenseKey:     "KEY-AAAA-BBBB-CCCC-DDDD",
		ValidationDate: now,
		IsSuccessful:   true,
	}); err != nil {
		t.Fatalf("append log: %v", err)
	}
	if logs := store.Logs(); len(logs) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(logs))
	}

	counts, err := store.Counts(context.Background())
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.TotalLicenses != 2 || counts.ActiveLicenses != 2 {
		t.Fatalf("unexpected counts %+v", counts)
	}
}
