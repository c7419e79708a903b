package licensing

import (
	"regexp"
	"testing"

	"github.com/keylock-io/keylock/pkg/config"
)

func TestGenerateMatchesFixedFormat(t *testing.T) {
	gen := NewKeyGenerator(config.LicenseConfig{KeyPrefix: "KEY", KeySegments: 4, KeySegmentLen: 4})

	format := regexp.MustCompile(`^KEY(-[A-Z0-9]{4}){4}$`)

	key, err := gen.Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !format.MatchString(key) {
		t.Fatalf("key %q does not match format", key)
	}
	if len(key) != 23 {
		t.Fatalf("expected fixed length 23, got %d (%q)", len(key), key)
	}
}

func TestGenerateProducesNoDuplicates(t *testing.T) {
	gen := NewKeyGenerator(config.LicenseConfig{KeyPrefix: "KEY", KeySegments: 4, KeySegmentLen: 4})
	format := regexp.MustCompile(`^KEY(-[A-Z0-9]{4}){4}$`)

	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		key, err := gen.Generate()
		if err != nil {
			t.Fatalf("generate %d: %v", i, err)
		}
		if !format.MatchString(key) {
			t.Fatalf("key %q does not match format", key)
		}
		if _, dup := seen[key]; dup {
			t.Fatalf("duplicate key %q after %d generations", key, i)
		}
		seen[key] = struct{}{}
	}
}

func TestGenerateDefaultsWhenUnconfigured(t *testing.T) {
	gen := NewKeyGenerator(config.LicenseConfig{})

	key, err := gen.Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !regexp.MustCompile(`^KEY(-[A-Z0-9]{4}){4}$`).MatchString(key) {
		t.Fatalf("key %q does not match default format", key)
	}
}

func TestGenerateCustomShape(t *testing.T) {
	gen := NewKeyGenerator(config.LicenseConfig{KeyPrefix: "lic", KeySegments: 2, KeySegmentLen: 6})

	key, err := gen.Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !regexp.MustCompile(`^LIC(-[A-Z0-9]{6}){2}$`).MatchString(key) {
		t.Fatalf("key %q does not match configured format", key)
	}
}
