// Package limiter throttles repeated failed logins per (username, client address).
package limiter

import (
	"context"
	"crypto/sha256"
	"time"

	"github.com/and161185/passvault/internal/crypto"
)

// Limiter controls login attempts and temporary lockouts.
type Limiter interface {
	// Allow reports whether a login attempt may proceed and, if not, how long to wait.
	Allow(ctx context.Context, k Key) (bool, time.Duration, error)
	// Success clears the bucket after a successful login.
	Success(ctx context.Context, k Key) error
	// Failure records a failed attempt and reports whether it placed a block.
	Failure(ctx context.Context, k Key) (bool, time.Duration, error)
	// Prune drops buckets that are idle past the window and not blocked.
	Prune(ctx context.Context) error
}

// Key identifies one throttling bucket. The address is only kept as a hash.
type Key struct {
	Username string
	IPHash   []byte
}

// KeyFor builds the bucket key for a login attempt. The username is sanitized
// the same way the login path sanitizes it, so padded variants share a bucket.
func KeyFor(username, ip string) Key {
	return Key{Username: crypto.SanitizeInput(username), IPHash: HashIP(ip)}
}

// HashIP returns a stable hash for an IP string to avoid storing raw addresses.
func HashIP(ip string) []byte {
	h := sha256.Sum256([]byte(ip))
	return h[:]
}

// Config holds the lockout policy shared by all implementations.
type Config struct {
	Window   time.Duration // failures older than this no longer count
	MaxFails int
	BlockFor time.Duration
}

// DefaultConfig is 5 failures within 15 minutes, then a 15 minute block.
func DefaultConfig() Config {
	return Config{Window: 15 * time.Minute, MaxFails: 5, BlockFor: 15 * time.Minute}
}

// withDefaults fills non-positive fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.MaxFails <= 0 {
		c.MaxFails = d.MaxFails
	}
	if c.BlockFor <= 0 {
		c.BlockFor = d.BlockFor
	}
	return c
}

// Nop never blocks.
type Nop struct{}

func (Nop) Allow(context.Context, Key) (bool, time.Duration, error)   { return true, 0, nil }
func (Nop) Success(context.Context, Key) error                        { return nil }
func (Nop) Failure(context.Context, Key) (bool, time.Duration, error) { return false, 0, nil }
func (Nop) Prune(context.Context) error                               { return nil }
