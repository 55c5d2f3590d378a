// Package sizing parses and formats human-readable byte sizes.
package sizing

import (
	"fmt"
	"strings"

	units "github.com/docker/go-units"
)

// Parse converts a size string such as "1 GB", "512 MiB" or "4096" into bytes.
//
// Decimal suffixes (k, M, G, T, P with an optional trailing B) are powers of 10.
// Binary suffixes (Ki, Mi, Gi, Ti, Pi with an optional trailing B) are powers of 2.
// Suffixes are case-insensitive and may be separated from the number by one space.
func Parse(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("invalid size: %q", s)
	}

	lower := strings.ToLower(s)
	var (
		n   int64
		err error
	)
	switch {
	case strings.HasSuffix(lower, "ib"):
		n, err = units.RAMInBytes(s)
	case strings.HasSuffix(lower, "i"):
		n, err = units.RAMInBytes(s + "B")
	default:
		n, err = units.FromHumanSize(s)
	}
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid size %q: overflows int64", s)
	}
	return n, nil
}

// Format renders n using binary units, e.g. "1.5MiB".
func Format(n int64) string {
	return units.BytesSize(float64(n))
}
