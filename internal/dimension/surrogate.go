// Package dimension generates the surrogate keys that link fact rows to the
// customer and product dimension tables. Keys are a pure function of the
// normalized business-key fields, so reprocessing a feed always produces the
// same key.
package dimension

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// fieldSeparator keeps ("ab","c") and ("a","bc") from hashing identically.
const fieldSeparator = "\x1f"

// Normalize canonicalizes a business-key field: trims, collapses inner
// whitespace, and uppercases.
func Normalize(field string) string {
	return strings.ToUpper(strings.Join(strings.Fields(field), " "))
}

// Key returns the surrogate key for an ordered tuple of business-key fields.
// Fields are normalized before hashing. The result is a fixed-length
// 64-character hex string.
func Key(fields ...string) string {
	normalized := make([]string, len(fields))
	for i, f := range fields {
		normalized[i] = Normalize(f)
	}

	sum := sha256.Sum256([]byte(strings.Join(normalized, fieldSeparator)))
	return hex.EncodeToString(sum[:])
}
