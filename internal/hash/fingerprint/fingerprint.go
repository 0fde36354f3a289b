// Package fingerprint hashes captured post fragments.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hasher implements crawler.Hasher. Runs of whitespace are collapsed before
// hashing so static and headless captures of the same post agree.
type Hasher struct{}

// New returns a fragment Hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex SHA-256 of the whitespace-normalized fragment.
func (h *Hasher) Hash(data []byte) (string, error) {
	normalized := strings.Join(strings.Fields(string(data)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:]), nil
}
