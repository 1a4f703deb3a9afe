package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint hashes parts with a separator so ("ab","c") and ("a","bc")
// differ. The result is the first 16 hex characters of the SHA-256 sum.
func Fingerprint(parts ...string) string {
	h := sha256.New()
	for _, part := range parts {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
