package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashParts hashes the parts joined by a NUL separator so that ("ab","c") and
// ("a","bc") never collide.
func HashParts(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(hash[:])
}
