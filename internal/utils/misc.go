package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

func Ptr[T any](v T) *T {
	return &v
}

func Val[T any](p *T) T {
	if p != nil {
		return *p
	}
	var zero T
	return zero
}

// HashParts joins the parts with a unit separator and returns the hex SHA-256.
func HashParts(parts ...string) string {
	hasher := sha256.New()
	hasher.Write([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(hasher.Sum(nil))
}

// Clock is injected wherever "now" matters so tests can pin time.
type Clock func() time.Time

// SystemClock returns UTC wall time truncated to microseconds, the precision
// Postgres keeps for timestamptz columns.
func SystemClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
