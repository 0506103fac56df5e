// Package backend picks a repository implementation from configuration.
package backend

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/and161185/passvault/internal/errs"
	"github.com/and161185/passvault/internal/repository"
	"github.com/and161185/passvault/internal/repository/memory"
	"github.com/and161185/passvault/internal/repository/mongodb"
	"github.com/and161185/passvault/internal/repository/postgres"
)

// Kind names a storage backend.
type Kind string

const (
	Postgres Kind = "postgres"
	MongoDB  Kind = "mongodb"
	Memory   Kind = "memory"
)

// Config carries everything needed to construct any backend.
type Config struct {
	Type          string
	PostgresURI   string
	MongoURI      string
	MongoDatabase string
}

// ParseKind normalizes a backend name. Matching is case-insensitive and ignores
// surrounding whitespace.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql":
		return Postgres, nil
	case "mongodb", "mongo":
		return MongoDB, nil
	case "memory":
		return Memory, nil
	default:
		return "", fmt.Errorf("%w: unsupported database type %q", errs.ErrConfiguration, name)
	}
}

// New returns an uninitialized repository for cfg.Type. Callers must Initialize it.
func New(cfg Config, log *zap.Logger) (repository.Repository, error) {
	kind, err := ParseKind(cfg.Type)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}

	switch kind {
	case Postgres:
		if cfg.PostgresURI == "" {
			return nil, fmt.Errorf("%w: POSTGRES_URI is required for %s", errs.ErrConfiguration, kind)
		}
		return postgres.NewRepository(cfg.PostgresURI, log), nil
	case MongoDB:
		if cfg.MongoURI == "" || cfg.MongoDatabase == "" {
			return nil, fmt.Errorf("%w: MONGODB_URI and MONGODB_DATABASE are required for %s", errs.ErrConfiguration, kind)
		}
		return mongodb.NewRepository(cfg.MongoURI, cfg.MongoDatabase, log), nil
	default:
		return memory.New(), nil
	}
}
