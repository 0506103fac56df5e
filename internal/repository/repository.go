// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/passvault/internal/model"
)

// UserRepository provides CRUD access for user accounts.
type UserRepository interface {
	// CreateUser inserts a new user. Duplicate username or email yields errs.ErrAlreadyExists.
	CreateUser(ctx context.Context, in model.NewUser) (*model.User, error)
	// GetUserByUsername loads a user by exact username.
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	// GetUserByEmail loads a user by email.
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	// GetUserByID loads a user by ID.
	GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// UpdateUserPassword replaces the stored hash and salt.
	UpdateUserPassword(ctx context.Context, id uuid.UUID, passwordHash, salt string) error
	// DeleteUser removes the user together with all of their vault entries.
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

// EntryRepository provides owner-scoped access to vault entries. A mismatched
// (id, userID) pair behaves exactly like a missing entry.
type EntryRepository interface {
	// CreatePassword stores a new entry. When limit > 0 the per-user cap is enforced
	// atomically and errs.ErrLimitExceeded is returned without writing anything.
	CreatePassword(ctx context.Context, in model.NewEntry, limit int) (*model.VaultEntry, error)
	// GetPasswords lists the user's entries ordered by creation time.
	GetPasswords(ctx context.Context, userID uuid.UUID) ([]model.VaultEntry, error)
	// GetPasswordByID returns one entry and refreshes its last_used timestamp.
	GetPasswordByID(ctx context.Context, id, userID uuid.UUID) (*model.VaultEntry, error)
	// UpdatePassword applies a sparse patch and refreshes updated_at.
	UpdatePassword(ctx context.Context, id, userID uuid.UUID, patch model.EntryPatch) (bool, error)
	// DeletePassword removes one entry.
	DeletePassword(ctx context.Context, id, userID uuid.UUID) (bool, error)
	// SearchPasswords returns entries whose website_url contains query, case-insensitively.
	SearchPasswords(ctx context.Context, userID uuid.UUID, query string) ([]model.VaultEntry, error)
	// GetPasswordCount returns the number of entries owned by the user.
	GetPasswordCount(ctx context.Context, userID uuid.UUID) (int64, error)
}

// Repository is the complete storage contract every backend satisfies.
type Repository interface {
	UserRepository
	EntryRepository

	// Initialize opens connections and prepares the schema.
	Initialize(ctx context.Context) error
	// Close releases all resources held by the backend.
	Close(ctx context.Context) error
}
