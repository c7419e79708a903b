package licensing

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/keylock-io/keylock/pkg/config"
)

// keyAlphabet is the full set of symbols a key segment may contain. The
// format is an external contract; machines parse and display these keys.
const keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// KeyGenerator produces license keys with a fixed lexical format:
// <prefix>-<seg>-<seg>-... where every segment has the same length and is
// drawn from keyAlphabet via crypto/rand.
type KeyGenerator struct {
	prefix     string
	segments   int
	segmentLen int
}

// NewKeyGenerator builds a generator from the license configuration,
// falling back to the KEY-XXXX-XXXX-XXXX-XXXX shape when unset.
func NewKeyGenerator(cfg config.LicenseConfig) *KeyGenerator {
	prefix := strings.ToUpper(strings.TrimSpace(cfg.KeyPrefix))
	if prefix == "" {
		prefix = "KEY"
	}
	segments := cfg.KeySegments
	if segments < 1 {
		segments = 4
	}
	segmentLen := cfg.KeySegmentLen
	if segmentLen < 1 {
		segmentLen = 4
	}
	return &KeyGenerator{prefix: prefix, segments: segments, segmentLen: segmentLen}
}

// Generate returns a new license key. Uniqueness is not guaranteed here;
// the caller detects duplicates at insert time and regenerates.
func (g *KeyGenerator) Generate() (string, error) {
	parts := make([]string, 0, g.segments+1)
	parts = append(parts, g.prefix)

	max := big.NewInt(int64(len(keyAlphabet)))
	buf := make([]byte, g.segmentLen)
	for i := 0; i < g.segments; i++ {
		for j := range buf {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				return "", fmt.Errorf("reading random source: %w", err)
			}
			buf[j] = keyAlphabet[n.Int64()]
		}
		parts = append(parts, string(buf))
	}

	return strings.Join(parts, "-"), nil
}
