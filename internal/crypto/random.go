// Package crypto implements low-level security helpers: secure randomness,
// constant-time comparison, password policy and input sanitization.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
)

const (
	defaultTokenLen = 32
	sessionIDLen    = 32
)

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// GenerateSecureToken returns a URL-safe token built from length random bytes.
// A non-positive length falls back to 32 bytes.
func GenerateSecureToken(length int) (string, error) {
	if length <= 0 {
		length = defaultTokenLen
	}
	b, err := RandBytes(length)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateSessionID returns an unpredictable hex identifier.
func GenerateSessionID() (string, error) {
	b, err := RandBytes(sessionIDLen)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// ConstantTimeCompare reports whether a and b are equal without leaking the
// position of the first difference. Only the length mismatch is observable.
func ConstantTimeCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
