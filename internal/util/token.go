package util

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

const keyTokenBytes = 16

// GenerateKeyToken produces a new opaque key token: 16 bytes of
// cryptographically secure randomness, hex-encoded and upper-cased
// (32 characters). Uniqueness is still enforced by the key store's
// primary key constraint.
func GenerateKeyToken() (string, error) {
	b := make([]byte, keyTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}
