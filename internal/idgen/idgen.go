// Package idgen provides cryptographically random ID generation.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// New generates a UUID-like random ID (32 hex chars with dashes).
// Format: xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx
func New() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:])
}

// PurchaseKey generates the lowercase 32-hex opaque key attached to a
// payment at creation time.
func PurchaseKey() string {
	return Hex(16)
}

// LicenseKey generates a license key in grouped form, e.g.
// "1a2b3c4d-5e6f7a8b-9c0d1e2f-3a4b5c6d".
func LicenseKey() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	parts := make([]string, 4)
	for i := 0; i < 4; i++ {
		parts[i] = hex.EncodeToString(b[i*4 : i*4+4])
	}
	return strings.Join(parts, "-")
}

// Hex generates a random hex string of the given byte length.
func Hex(numBytes int) string {
	b := make([]byte, numBytes)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}
