package service

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/passvault/internal/crypto"
	"github.com/and161185/passvault/internal/errs"
	"github.com/and161185/passvault/internal/model"
	"github.com/and161185/passvault/internal/repository"
)

// VaultService defines owner-scoped operations over vault entries.
type VaultService interface {
	Create(ctx context.Context, userID uuid.UUID, in model.NewEntry) (*model.VaultEntry, error)
	List(ctx context.Context, userID uuid.UUID) ([]model.VaultEntry, error)
	// Get returns one entry and marks it as used.
	Get(ctx context.Context, userID, id uuid.UUID) (*model.VaultEntry, error)
	Update(ctx context.Context, userID, id uuid.UUID, patch model.EntryPatch) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
	Search(ctx context.Context, userID uuid.UUID, query string) ([]model.VaultEntry, error)
	Count(ctx context.Context, userID uuid.UUID) (int64, error)
}

type VaultServiceImpl struct {
	repo       repository.EntryRepository
	maxEntries int
}

// NewVaultService constructs VaultService. maxEntries <= 0 disables the per-user cap.
func NewVaultService(repo repository.EntryRepository, maxEntries int) *VaultServiceImpl {
	return &VaultServiceImpl{repo: repo, maxEntries: maxEntries}
}

func sanitizeOpt(s *string) *string {
	if s == nil {
		return nil
	}
	v := crypto.SanitizeInput(*s)
	if v == "" {
		return nil
	}
	return &v
}

func checkURL(url string) error {
	if url == "" {
		return errs.Invalid("Website URL is required")
	}
	if utf8.RuneCountInString(url) > model.MaxWebsiteURLLen {
		return errs.Invalid(fmt.Sprintf("Website URL must be at most %d characters", model.MaxWebsiteURLLen))
	}
	return nil
}

func checkName(name *string) error {
	if name != nil && utf8.RuneCountInString(*name) > model.MaxWebsiteNameLen {
		return errs.Invalid(fmt.Sprintf("Website name must be at most %d characters", model.MaxWebsiteNameLen))
	}
	return nil
}

// Create validates and stores a new entry. Only the plaintext website fields are
// sanitized; ciphertext is stored exactly as received.
func (s *VaultServiceImpl) Create(ctx context.Context, userID uuid.UUID, in model.NewEntry) (*model.VaultEntry, error) {
	in.UserID = userID
	in.WebsiteURL = crypto.SanitizeInput(in.WebsiteURL)
	in.WebsiteName = sanitizeOpt(in.WebsiteName)

	if err := checkURL(in.WebsiteURL); err != nil {
		return nil, err
	}
	if err := checkName(in.WebsiteName); err != nil {
		return nil, err
	}
	if in.EncryptedPassword == "" || in.IV == "" {
		return nil, errs.Invalid("Encrypted password and IV are required")
	}

	if s.maxEntries > 0 {
		n, err := s.repo.GetPasswordCount(ctx, userID)
		if err != nil {
			return nil, err
		}
		if n >= int64(s.maxEntries) {
			return nil, errs.LimitExceeded(s.maxEntries)
		}
	}
	// the repository re-checks the cap atomically; the count above only avoids needless work
	return s.repo.CreatePassword(ctx, in, s.maxEntries)
}

func (s *VaultServiceImpl) List(ctx context.Context, userID uuid.UUID) ([]model.VaultEntry, error) {
	return s.repo.GetPasswords(ctx, userID)
}

func (s *VaultServiceImpl) Get(ctx context.Context, userID, id uuid.UUID) (*model.VaultEntry, error) {
	return s.repo.GetPasswordByID(ctx, id, userID)
}

// Update applies a sparse patch. An empty patch still refreshes updated_at.
func (s *VaultServiceImpl) Update(ctx context.Context, userID, id uuid.UUID, patch model.EntryPatch) error {
	if patch.WebsiteURL != nil {
		url := crypto.SanitizeInput(*patch.WebsiteURL)
		if err := checkURL(url); err != nil {
			return err
		}
		patch.WebsiteURL = &url
	}
	if patch.WebsiteName.Set {
		// blank clears the name, as on create
		patch.WebsiteName.Value = sanitizeOpt(patch.WebsiteName.Value)
		if err := checkName(patch.WebsiteName.Value); err != nil {
			return err
		}
	}
	if (patch.EncryptedPassword != nil && *patch.EncryptedPassword == "") || (patch.IV != nil && *patch.IV == "") {
		return errs.Invalid("Encrypted password and IV cannot be empty")
	}

	ok, err := s.repo.UpdatePassword(ctx, id, userID, patch)
	if err != nil {
		return err
	}
	if !ok {
		return errs.ErrNotFound
	}
	return nil
}

func (s *VaultServiceImpl) Delete(ctx context.Context, userID, id uuid.UUID) error {
	ok, err := s.repo.DeletePassword(ctx, id, userID)
	if err != nil {
		return err
	}
	if !ok {
		return errs.ErrNotFound
	}
	return nil
}

// Search matches query against website_url only; other fields may be ciphertext.
func (s *VaultServiceImpl) Search(ctx context.Context, userID uuid.UUID, query string) ([]model.VaultEntry, error) {
	return s.repo.SearchPasswords(ctx, userID, crypto.SanitizeInput(query))
}

func (s *VaultServiceImpl) Count(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.GetPasswordCount(ctx, userID)
}
