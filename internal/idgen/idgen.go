// Package idgen provides cryptographically random ID generation.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

// WithPrefix generates a random ID of the form prefix + 24 hex chars
// (12 random bytes). Prefixes identify the record kind: "tpu_" for
// top-up requests, "pur_" for purchases, "led_" for ledger entries.
func WithPrefix(prefix string) string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return prefix + hex.EncodeToString(b)
}
