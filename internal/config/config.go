// Package config loads server settings from defaults, an optional .env file,
// the environment and command-line flags, in that order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/and161185/passvault/internal/auth"
	"github.com/and161185/passvault/internal/errs"
	"github.com/and161185/passvault/internal/limiter"
	"github.com/and161185/passvault/internal/repository/backend"
)

// Config holds runtime settings for the vault server.
type Config struct {
	Addr string

	DatabaseType  string
	PostgresURI   string
	MongoURI      string
	MongoDatabase string

	JWTSecret      string
	JWTAlgorithm   string
	JWTExpiryHours int

	MaxPasswordEntries int // <= 0 means unlimited
	HashConcurrency    int
	CORSOrigins        []string

	// login lockout policy
	LoginMaxFails int
	LoginWindow   time.Duration
	LoginBlock    time.Duration

	// TLS is enabled when both are set.
	TLSCert string
	TLSKey  string
}

// Defaults returns development defaults. JWTSecret is deliberately left empty.
func Defaults() Config {
	return Config{
		Addr:               ":8080",
		DatabaseType:       "postgres",
		MongoDatabase:      "passvault",
		JWTAlgorithm:       "HS256",
		JWTExpiryHours:     24,
		MaxPasswordEntries: 1000,
		HashConcurrency:    4,
		CORSOrigins:        []string{"*"},
		LoginMaxFails:      5,
		LoginWindow:        15 * time.Minute,
		LoginBlock:         15 * time.Minute,
	}
}

// Limiter returns the login lockout policy.
func (c *Config) Limiter() limiter.Config {
	return limiter.Config{Window: c.LoginWindow, MaxFails: c.LoginMaxFails, BlockFor: c.LoginBlock}
}

// Backend returns the repository selector settings.
func (c *Config) Backend() backend.Config {
	return backend.Config{
		Type:          c.DatabaseType,
		PostgresURI:   c.PostgresURI,
		MongoURI:      c.MongoURI,
		MongoDatabase: c.MongoDatabase,
	}
}

// Load builds the configuration for the process.
func Load(args []string) (*Config, error) {
	return load(args, ".env", os.LookupEnv)
}

func load(args []string, dotenv string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Defaults()

	if dotenv != "" {
		// values already in the environment win over the file
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s: %v", errs.ErrConfiguration, dotenv, err)
		}
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return nil, err
	}
	if err := parseFlags(&cfg, args); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s must be an integer", errs.ErrConfiguration, key)
		}
		*dst = n
		return nil
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s must be a duration such as 15m", errs.ErrConfiguration, key)
		}
		*dst = d
		return nil
	}

	str("ADDR", &cfg.Addr)
	str("DATABASE_TYPE", &cfg.DatabaseType)
	str("POSTGRES_URI", &cfg.PostgresURI)
	str("MONGODB_URI", &cfg.MongoURI)
	str("MONGODB_DATABASE", &cfg.MongoDatabase)
	str("JWT_SECRET_KEY", &cfg.JWTSecret)
	str("JWT_ALGORITHM", &cfg.JWTAlgorithm)
	str("TLS_CERT", &cfg.TLSCert)
	str("TLS_KEY", &cfg.TLSKey)
	if v, ok := lookup("CORS_ORIGIN"); ok && v != "" {
		cfg.CORSOrigins = splitOrigins(v)
	}
	for key, dst := range map[string]*int{
		"JWT_EXPIRY_HOURS":     &cfg.JWTExpiryHours,
		"MAX_PASSWORD_ENTRIES": &cfg.MaxPasswordEntries,
		"HASH_CONCURRENCY":     &cfg.HashConcurrency,
		"LOGIN_MAX_FAILS":      &cfg.LoginMaxFails,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	for key, dst := range map[string]*time.Duration{
		"LOGIN_WINDOW": &cfg.LoginWindow,
		"LOGIN_BLOCK":  &cfg.LoginBlock,
	} {
		if err := dur(key, dst); err != nil {
			return err
		}
	}
	return nil
}

// splitOrigins parses a comma-separated origin list, dropping blanks and trailing slashes.
func splitOrigins(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if o := strings.TrimRight(strings.TrimSpace(p), "/"); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func parseFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("passvault", flag.ContinueOnError)

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	fs.StringVar(&cfg.DatabaseType, "db-type", cfg.DatabaseType, "storage backend: postgres, mongodb or memory")
	fs.StringVar(&cfg.PostgresURI, "postgres-uri", cfg.PostgresURI, "PostgreSQL DSN")
	fs.StringVar(&cfg.MongoURI, "mongodb-uri", cfg.MongoURI, "MongoDB connection string")
	fs.StringVar(&cfg.MongoDatabase, "mongodb-database", cfg.MongoDatabase, "MongoDB database name")
	fs.StringVar(&cfg.JWTSecret, "jwt-key", cfg.JWTSecret, "session token signing key")
	fs.StringVar(&cfg.JWTAlgorithm, "jwt-alg", cfg.JWTAlgorithm, "session token algorithm (HS256, HS384, HS512)")
	fs.IntVar(&cfg.JWTExpiryHours, "jwt-expiry-hours", cfg.JWTExpiryHours, "session token lifetime in hours")
	fs.IntVar(&cfg.MaxPasswordEntries, "max-entries", cfg.MaxPasswordEntries, "per-user entry cap, 0 for unlimited")
	fs.IntVar(&cfg.HashConcurrency, "hash-concurrency", cfg.HashConcurrency, "max concurrent password hashes")
	fs.IntVar(&cfg.LoginMaxFails, "login-max-fails", cfg.LoginMaxFails, "failed logins before a block")
	fs.DurationVar(&cfg.LoginWindow, "login-window", cfg.LoginWindow, "window in which failed logins count")
	fs.DurationVar(&cfg.LoginBlock, "login-block", cfg.LoginBlock, "how long a blocked login stays blocked")
	fs.StringVar(&cfg.TLSCert, "tls-cert", cfg.TLSCert, "TLS certificate (PEM)")
	fs.StringVar(&cfg.TLSKey, "tls-key", cfg.TLSKey, "TLS private key (PEM)")
	origins := fs.String("cors-origin", strings.Join(cfg.CORSOrigins, ","), "comma-separated allowed origins")

	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg.CORSOrigins = splitOrigins(*origins)
	return nil
}

// Validate reports the first setting that would prevent the server from starting.
func (c *Config) Validate() error {
	switch {
	case c.JWTSecret == "":
		return fmt.Errorf("%w: JWT_SECRET_KEY is required", errs.ErrConfiguration)
	case c.JWTExpiryHours <= 0 || c.JWTExpiryHours > auth.MaxExpiryHours:
		return fmt.Errorf("%w: JWT_EXPIRY_HOURS must be between 1 and %d", errs.ErrConfiguration, auth.MaxExpiryHours)
	case c.HashConcurrency <= 0:
		return fmt.Errorf("%w: HASH_CONCURRENCY must be positive", errs.ErrConfiguration)
	case c.LoginMaxFails <= 0 || c.LoginWindow <= 0 || c.LoginBlock <= 0:
		return fmt.Errorf("%w: LOGIN_MAX_FAILS, LOGIN_WINDOW and LOGIN_BLOCK must be positive", errs.ErrConfiguration)
	case (c.TLSCert == "") != (c.TLSKey == ""):
		return fmt.Errorf("%w: TLS_CERT and TLS_KEY must be set together", errs.ErrConfiguration)
	}
	if _, err := backend.ParseKind(c.DatabaseType); err != nil {
		return err
	}
	return nil
}
