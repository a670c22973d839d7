package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// StorageKey derives the provider key for a canonical query identity.
// The full digest is used; a collision would surface as a revision mismatch
// on read and self-heal to a miss.
func StorageKey(prefix string, canonical []byte) string {
	sum := sha256.Sum256(canonical)
	return prefix + ":" + hex.EncodeToString(sum[:])
}

// Short returns a 16 hex char digest of s, for logs that must not carry
// filter values verbatim.
func Short(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}
