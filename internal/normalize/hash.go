package normalize

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// NationalCodeHash derives a non-reversible correlation handle for a
// normalized national code, suitable for structured logs and traces
// that must never carry the PII value itself. Two equal normalized
// codes always hash to the same value (so duplicate runs are still
// correlatable); the hash does not need to be keyed since it is not a
// security boundary, only a redaction.
func NationalCodeHash(normalizedNationalCode string) string {
	if normalizedNationalCode == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(normalizedNationalCode))
	return hex.EncodeToString(sum[:8])
}
