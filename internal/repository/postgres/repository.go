package postgres

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/and161185/passvault/internal/migrate"
	"github.com/and161185/passvault/internal/repository"
)

// Repository is the PostgreSQL backend. It owns its connection pool.
type Repository struct {
	*UserRepo
	*EntryRepo

	dsn     string
	db      *DB
	log     *zap.Logger
	migrate func(ctx context.Context, dsn string, log *zap.Logger) error
	connect func(ctx context.Context, dsn string) (*DB, error)
}

var _ repository.Repository = (*Repository)(nil)

// NewRepository returns an uninitialized backend for dsn.
func NewRepository(dsn string, log *zap.Logger) *Repository {
	if log == nil {
		log = zap.NewNop()
	}
	db := &DB{}
	return &Repository{
		UserRepo:  NewUserRepo(db),
		EntryRepo: NewEntryRepo(db),
		dsn:       dsn,
		db:        db,
		log:       log.Named("postgres"),
		migrate:   migrate.Up,
		connect:   New,
	}
}

// NewRepositoryWithPool wraps an already opened pool; Initialize becomes a connectivity check.
func NewRepositoryWithPool(pool PgxPool, log *zap.Logger) *Repository {
	r := NewRepository("", log)
	r.db.Pool = pool
	return r
}

// DB exposes the underlying pool wrapper for components sharing the connection (e.g. the limiter).
func (r *Repository) DB() *DB { return r.db }

// Initialize applies migrations and opens the pool.
func (r *Repository) Initialize(ctx context.Context) error {
	if r.db.Pool != nil {
		return r.db.Pool.Ping(ctx)
	}
	if r.dsn == "" {
		return errors.New("postgres: empty dsn")
	}
	if err := r.migrate(ctx, r.dsn, r.log); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	db, err := r.connect(ctx, r.dsn)
	if err != nil {
		return fmt.Errorf("postgres: connect: %w", err)
	}
	r.db.Pool = db.Pool
	r.log.Info("postgres backend ready")
	return nil
}

// Close releases the pool.
func (r *Repository) Close(context.Context) error {
	r.db.Close()
	return nil
}
