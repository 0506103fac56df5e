package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/passvault/internal/errs"
	"github.com/and161185/passvault/internal/model"
)

// UserRepo implements repository.UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id, username, email, master_password_hash, salt, created_at, updated_at`

// CreateUser inserts a new user row.
func (r *UserRepo) CreateUser(ctx context.Context, in model.NewUser) (*model.User, error) {
	id, err := model.NewID()
	if err != nil {
		return nil, err
	}
	const q = `
INSERT INTO users (id, username, email, master_password_hash, salt)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at, updated_at`
	u := model.User{
		ID:                 id,
		Username:           in.Username,
		Email:              in.Email,
		MasterPasswordHash: in.PasswordHash,
		Salt:               in.Salt,
	}
	err = r.db.Pool.QueryRow(ctx, q, u.ID, u.Username, u.Email, u.MasterPasswordHash, u.Salt).
		Scan(&u.CreatedAt, &u.UpdatedAt)
	if isUniqueViolation(err) {
		return nil, errs.ErrAlreadyExists
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByUsername selects a user by username.
func (r *UserRepo) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE username=$1`, username)
}

// GetUserByEmail selects a user by email.
func (r *UserRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email)
}

// GetUserByID selects a user by ID.
func (r *UserRepo) GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
}

func (r *UserRepo) getOne(ctx context.Context, q string, arg any) (*model.User, error) {
	var u model.User
	err := r.db.Pool.QueryRow(ctx, q, arg).
		Scan(&u.ID, &u.Username, &u.Email, &u.MasterPasswordHash, &u.Salt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// UpdateUserPassword stores a new hash and salt for the user.
func (r *UserRepo) UpdateUserPassword(ctx context.Context, id uuid.UUID, passwordHash, salt string) error {
	const q = `UPDATE users SET master_password_hash=$2, salt=$3, updated_at=now() WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, passwordHash, salt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// DeleteUser removes the user's entries and then the user, in one transaction.
func (r *UserRepo) DeleteUser(ctx context.Context, id uuid.UUID) error {
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM vault_entries WHERE user_id=$1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errs.ErrNotFound
		}
		return nil
	})
}
