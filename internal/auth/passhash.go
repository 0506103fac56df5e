// Package auth implements master-password hashing and session token handling.
package auth

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/and161185/passvault/internal/crypto"
)

// Argon2id parameters (tuned for server-side hashing).
const (
	argonTime    uint32 = 3         // iterations
	argonMemory  uint32 = 64 * 1024 // 64 MB
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32

	saltLen = 32
)

// Upper bounds accepted when decoding a stored hash.
const (
	maxArgonTime    uint32 = 10
	maxArgonMemory  uint32 = 256 * 1024
	maxArgonThreads uint8  = 16
	minArgonKeyLen         = 16
	maxArgonKeyLen         = 64
)

// GenerateSalt returns a fresh hex-encoded salt for a new user or password rotation.
func GenerateSalt() (string, error) {
	b, err := crypto.RandBytes(saltLen)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// HashMasterPassword returns the encoded Argon2id hash of password with salt.
// The output embeds the parameters used, so it stays verifiable if defaults change.
func HashMasterPassword(password, salt string) string {
	key := argon2.IDKey([]byte(password), []byte(salt), argonTime, argonMemory, argonThreads, argonKeyLen)
	return encodeHash(argonParams{time: argonTime, memory: argonMemory, threads: argonThreads}, key)
}

// VerifyMasterPassword reports whether password and salt produce storedHash.
// Any malformed input yields false.
func VerifyMasterPassword(password, salt, storedHash string) bool {
	p, want, err := decodeHash(storedHash)
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(password), []byte(salt), p.time, p.memory, p.threads, uint32(len(want)))
	return crypto.ConstantTimeCompare(string(got), string(want))
}

type argonParams struct {
	time    uint32
	memory  uint32
	threads uint8
}

func encodeHash(p argonParams, key []byte) string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s",
		argon2.Version, p.memory, p.time, p.threads, base64.RawStdEncoding.EncodeToString(key))
}

func decodeHash(s string) (argonParams, []byte, error) {
	parts := strings.Split(s, "$")
	if len(parts) != 5 || parts[0] != "" || parts[1] != "argon2id" {
		return argonParams{}, nil, fmt.Errorf("unsupported hash format")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return argonParams{}, nil, err
	}
	if version != argon2.Version {
		return argonParams{}, nil, fmt.Errorf("unsupported argon2 version %d", version)
	}

	var p argonParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return argonParams{}, nil, err
	}
	if p.time == 0 || p.time > maxArgonTime ||
		p.memory == 0 || p.memory > maxArgonMemory ||
		p.threads == 0 || p.threads > maxArgonThreads {
		return argonParams{}, nil, fmt.Errorf("argon2 parameters out of range")
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return argonParams{}, nil, err
	}
	if len(key) < minArgonKeyLen || len(key) > maxArgonKeyLen {
		return argonParams{}, nil, fmt.Errorf("argon2 key length %d out of range", len(key))
	}
	return p, key, nil
}
