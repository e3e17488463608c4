package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewSessionID returns a 32-hex-character random session identifier for the
// visitor cookie.
func NewSessionID() string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
