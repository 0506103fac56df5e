// Package memory is a process-local implementation of the repository contract.
// Nothing survives a restart; it backs tests and single-node development.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/passvault/internal/errs"
	"github.com/and161185/passvault/internal/model"
	"github.com/and161185/passvault/internal/repository"
)

// Repository keeps users and entries in maps guarded by a single mutex.
type Repository struct {
	mu      sync.Mutex
	users   map[uuid.UUID]*model.User
	entries map[uuid.UUID]*model.VaultEntry
	last    time.Time
	now     func() time.Time
}

var _ repository.Repository = (*Repository)(nil)

// New returns an empty store.
func New() *Repository {
	return &Repository{
		users:   make(map[uuid.UUID]*model.User),
		entries: make(map[uuid.UUID]*model.VaultEntry),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Initialize is a no-op; the store is ready on construction.
func (r *Repository) Initialize(context.Context) error { return nil }

// Close is a no-op.
func (r *Repository) Close(context.Context) error { return nil }

// tick returns a strictly increasing timestamp so creation order is total.
func (r *Repository) tick() time.Time {
	t := r.now()
	if !t.After(r.last) {
		t = r.last.Add(time.Microsecond)
	}
	r.last = t
	return t
}

// CreateUser inserts a user, reporting duplicate username or email as errs.ErrAlreadyExists.
func (r *Repository) CreateUser(_ context.Context, in model.NewUser) (*model.User, error) {
	id, err := model.NewID()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Username == in.Username || u.Email == in.Email {
			return nil, errs.ErrAlreadyExists
		}
	}
	ts := r.tick()
	u := &model.User{
		ID:                 id,
		Username:           in.Username,
		Email:              in.Email,
		MasterPasswordHash: in.PasswordHash,
		Salt:               in.Salt,
		CreatedAt:          ts,
		UpdatedAt:          ts,
	}
	r.users[id] = u
	out := *u
	return &out, nil
}

func (r *Repository) findUser(match func(*model.User) bool) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if match(u) {
			out := *u
			return &out, nil
		}
	}
	return nil, errs.ErrNotFound
}

// GetUserByUsername loads a user by exact username.
func (r *Repository) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	return r.findUser(func(u *model.User) bool { return u.Username == username })
}

// GetUserByEmail loads a user by email.
func (r *Repository) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	return r.findUser(func(u *model.User) bool { return u.Email == email })
}

// GetUserByID loads a user by id.
func (r *Repository) GetUserByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	return r.findUser(func(u *model.User) bool { return u.ID == id })
}

// UpdateUserPassword replaces the stored hash and salt.
func (r *Repository) UpdateUserPassword(_ context.Context, id uuid.UUID, passwordHash, salt string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return errs.ErrNotFound
	}
	u.MasterPasswordHash = passwordHash
	u.Salt = salt
	u.UpdatedAt = r.tick()
	return nil
}

// DeleteUser removes the user and all of their entries.
func (r *Repository) DeleteUser(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		return errs.ErrNotFound
	}
	for eid, e := range r.entries {
		if e.UserID == id {
			delete(r.entries, eid)
		}
	}
	delete(r.users, id)
	return nil
}

func (r *Repository) countLocked(userID uuid.UUID) int64 {
	var n int64
	for _, e := range r.entries {
		if e.UserID == userID {
			n++
		}
	}
	return n
}

// CreatePassword stores a new entry, enforcing limit when it is positive.
func (r *Repository) CreatePassword(_ context.Context, in model.NewEntry, limit int) (*model.VaultEntry, error) {
	id, err := model.NewID()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[in.UserID]; !ok {
		return nil, errs.ErrNotFound
	}
	if limit > 0 && r.countLocked(in.UserID) >= int64(limit) {
		return nil, errs.LimitExceeded(limit)
	}

	ts := r.tick()
	e := model.VaultEntry{
		ID:                id,
		UserID:            in.UserID,
		WebsiteURL:        in.WebsiteURL,
		WebsiteName:       in.WebsiteName,
		Username:          in.Username,
		EncryptedPassword: in.EncryptedPassword,
		IV:                in.IV,
		Notes:             in.Notes,
		CreatedAt:         ts,
		UpdatedAt:         ts,
	}.Clone()
	r.entries[id] = &e
	out := e.Clone()
	return &out, nil
}

func (r *Repository) collect(userID uuid.UUID, match func(*model.VaultEntry) bool) []model.VaultEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.VaultEntry, 0)
	for _, e := range r.entries {
		if e.UserID == userID && match(e) {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// GetPasswords lists the user's entries, oldest first.
func (r *Repository) GetPasswords(_ context.Context, userID uuid.UUID) ([]model.VaultEntry, error) {
	return r.collect(userID, func(*model.VaultEntry) bool { return true }), nil
}

// SearchPasswords matches query case-insensitively against website_url.
func (r *Repository) SearchPasswords(_ context.Context, userID uuid.UUID, query string) ([]model.VaultEntry, error) {
	q := strings.ToLower(query)
	return r.collect(userID, func(e *model.VaultEntry) bool {
		return strings.Contains(strings.ToLower(e.WebsiteURL), q)
	}), nil
}

// owned returns the stored entry if it exists and belongs to userID. Caller holds mu.
func (r *Repository) owned(id, userID uuid.UUID) (*model.VaultEntry, bool) {
	e, ok := r.entries[id]
	if !ok || e.UserID != userID {
		return nil, false
	}
	return e, true
}

// GetPasswordByID returns an owned entry and stamps last_used.
func (r *Repository) GetPasswordByID(_ context.Context, id, userID uuid.UUID) (*model.VaultEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.owned(id, userID)
	if !ok {
		return nil, errs.ErrNotFound
	}
	ts := r.tick()
	e.LastUsed = &ts
	out := e.Clone()
	return &out, nil
}

// UpdatePassword applies a sparse patch to an entry owned by userID.
func (r *Repository) UpdatePassword(_ context.Context, id, userID uuid.UUID, patch model.EntryPatch) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.owned(id, userID)
	if !ok {
		return false, nil
	}
	patch.Apply(e)
	e.UpdatedAt = r.tick()
	return true, nil
}

// DeletePassword removes one entry owned by userID.
func (r *Repository) DeletePassword(_ context.Context, id, userID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.owned(id, userID); !ok {
		return false, nil
	}
	delete(r.entries, id)
	return true, nil
}

// GetPasswordCount returns how many entries the user owns.
func (r *Repository) GetPasswordCount(_ context.Context, userID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.countLocked(userID), nil
}
