package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/passvault/internal/errs"
	"github.com/and161185/passvault/internal/model"
)

// EntryRepo implements repository.EntryRepository using PostgreSQL.
type EntryRepo struct{ db *DB }

// NewEntryRepo constructs a vault entry repository.
func NewEntryRepo(db *DB) *EntryRepo { return &EntryRepo{db: db} }

const entryColumns = `id, user_id, website_url, website_name, username, encrypted_password, iv, notes, created_at, updated_at, last_used`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (model.VaultEntry, error) {
	var e model.VaultEntry
	err := row.Scan(&e.ID, &e.UserID, &e.WebsiteURL, &e.WebsiteName, &e.Username,
		&e.EncryptedPassword, &e.IV, &e.Notes, &e.CreatedAt, &e.UpdatedAt, &e.LastUsed)
	return e, err
}

// CreatePassword inserts an entry. The owning user row is locked for the duration of the
// transaction so concurrent creations for one user are serialized against the count check.
func (r *EntryRepo) CreatePassword(ctx context.Context, in model.NewEntry, limit int) (*model.VaultEntry, error) {
	id, err := model.NewID()
	if err != nil {
		return nil, err
	}

	const lock = `SELECT id FROM users WHERE id=$1 FOR UPDATE`
	const cnt = `SELECT COUNT(*) FROM vault_entries WHERE user_id=$1`
	const ins = `
INSERT INTO vault_entries (id, user_id, website_url, website_name, username, encrypted_password, iv, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING created_at, updated_at`

	e := model.VaultEntry{
		ID:                id,
		UserID:            in.UserID,
		WebsiteURL:        in.WebsiteURL,
		WebsiteName:       in.WebsiteName,
		Username:          in.Username,
		EncryptedPassword: in.EncryptedPassword,
		IV:                in.IV,
		Notes:             in.Notes,
	}

	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		var owner uuid.UUID
		if err := tx.QueryRow(ctx, lock, in.UserID).Scan(&owner); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errs.ErrNotFound
			}
			return err
		}
		if limit > 0 {
			var n int64
			if err := tx.QueryRow(ctx, cnt, in.UserID).Scan(&n); err != nil {
				return err
			}
			if n >= int64(limit) {
				return errs.LimitExceeded(limit)
			}
		}
		return tx.QueryRow(ctx, ins, e.ID, e.UserID, e.WebsiteURL, e.WebsiteName, e.Username,
			e.EncryptedPassword, e.IV, e.Notes).Scan(&e.CreatedAt, &e.UpdatedAt)
	})
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetPasswords lists all entries of a user, oldest first.
func (r *EntryRepo) GetPasswords(ctx context.Context, userID uuid.UUID) ([]model.VaultEntry, error) {
	const q = `SELECT ` + entryColumns + ` FROM vault_entries WHERE user_id=$1 ORDER BY created_at ASC, id ASC`
	return r.list(ctx, q, userID)
}

// SearchPasswords returns entries whose website_url contains query, ignoring case.
func (r *EntryRepo) SearchPasswords(ctx context.Context, userID uuid.UUID, query string) ([]model.VaultEntry, error) {
	const q = `SELECT ` + entryColumns + ` FROM vault_entries WHERE user_id=$1 AND website_url ILIKE $2 ESCAPE '\' ORDER BY created_at ASC, id ASC`
	return r.list(ctx, q, userID, containsPattern(query))
}

func (r *EntryRepo) list(ctx context.Context, q string, args ...any) ([]model.VaultEntry, error) {
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.VaultEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetPasswordByID returns one entry and stamps last_used in the same statement.
func (r *EntryRepo) GetPasswordByID(ctx context.Context, id, userID uuid.UUID) (*model.VaultEntry, error) {
	const q = `UPDATE vault_entries SET last_used=now() WHERE id=$1 AND user_id=$2 RETURNING ` + entryColumns
	e, err := scanEntry(r.db.Pool.QueryRow(ctx, q, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

// UpdatePassword applies the set fields of patch; updated_at is always refreshed.
func (r *EntryRepo) UpdatePassword(ctx context.Context, id, userID uuid.UUID, patch model.EntryPatch) (bool, error) {
	args := []any{id, userID}
	var sets []string
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	required := func(col string, v *string) {
		if v != nil {
			set(col, *v)
		}
	}
	// a nil Value binds as NULL
	nullable := func(col string, v model.NullString) {
		if v.Set {
			set(col, v.Value)
		}
	}
	required("website_url", patch.WebsiteURL)
	nullable("website_name", patch.WebsiteName)
	nullable("username", patch.Username)
	required("encrypted_password", patch.EncryptedPassword)
	required("iv", patch.IV)
	nullable("notes", patch.Notes)
	sets = append(sets, "updated_at=now()")

	q := `UPDATE vault_entries SET ` + strings.Join(sets, ", ") + ` WHERE id=$1 AND user_id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// DeletePassword removes one entry owned by userID.
func (r *EntryRepo) DeletePassword(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	const q = `DELETE FROM vault_entries WHERE id=$1 AND user_id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, id, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// GetPasswordCount returns how many entries the user owns.
func (r *EntryRepo) GetPasswordCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	const q = `SELECT COUNT(*) FROM vault_entries WHERE user_id=$1`
	var n int64
	if err := r.db.Pool.QueryRow(ctx, q, userID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
