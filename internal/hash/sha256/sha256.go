// Package sha256 computes content digests recorded in crawl reports.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher digests fetched bodies so reports can be compared across runs.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex SHA-256 digest of data.
func (*Hasher) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashString is Hash for decoded text.
func (h *Hasher) HashString(s string) string {
	return h.Hash([]byte(s))
}
