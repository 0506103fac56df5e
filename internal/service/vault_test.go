package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/passvault/internal/errs"
	"github.com/and161185/passvault/internal/model"
	"github.com/and161185/passvault/internal/repository"
	"github.com/and161185/passvault/internal/repository/memory"
)

func strp(s string) *string { return &s }

func mkUser(t *testing.T, repo *memory.Repository, name string) uuid.UUID {
	t.Helper()
	u, err := repo.CreateUser(context.Background(), model.NewUser{Username: name, Email: name + "@example.com", PasswordHash: "h", Salt: "s"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u.ID
}

func entryFor(url string) model.NewEntry {
	return model.NewEntry{
		WebsiteURL:        url,
		WebsiteName:       strp("Site"),
		Username:          strp("enc-user"),
		EncryptedPassword: "enc-pass",
		IV:                "iv",
		Notes:             strp("enc-notes"),
	}
}

func TestVault_EndToEnd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := memory.New()
	s := NewVaultService(repo, 1000)
	alice := mkUser(t, repo, "alice")

	ex, err := s.Create(ctx, alice, entryFor("https://example.com"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Create(ctx, alice, entryFor("https://other.org")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	found, err := s.Search(ctx, alice, "example")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(found) != 1 || found[0].ID != ex.ID {
		t.Fatalf("search result: %+v", found)
	}
	if found, _ = s.Search(ctx, alice, "EXAMPLE"); len(found) != 1 {
		t.Fatalf("search must be case-insensitive")
	}

	if n, _ := s.Count(ctx, alice); n != 2 {
		t.Fatalf("count=%d, want 2", n)
	}

	if err := s.Delete(ctx, alice, ex.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n, _ := s.Count(ctx, alice); n != 1 {
		t.Fatalf("count=%d, want 1", n)
	}
	if _, err := s.Get(ctx, alice, ex.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("get after delete: %v", err)
	}
	if err := s.Delete(ctx, alice, ex.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

func TestVault_Limit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := memory.New()
	s := NewVaultService(repo, 1)
	bob := mkUser(t, repo, "bob")

	if _, err := s.Create(ctx, bob, entryFor("https://site1.com")); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := s.Create(ctx, bob, entryFor("https://site2.com"))
	if !errors.Is(err, errs.ErrLimitExceeded) {
		t.Fatalf("want ErrLimitExceeded, got %v", err)
	}
	if n, _ := s.Count(ctx, bob); n != 1 {
		t.Fatalf("count=%d after rejected create", n)
	}
}

func TestVault_Unlimited(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := memory.New()
	s := NewVaultService(repo, 0)
	u := mkUser(t, repo, "u")

	for i := 0; i < 5; i++ {
		if _, err := s.Create(ctx, u, entryFor("https://x.com")); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
}

// racyCount hides existing entries from the pre-check so only the repository guards the cap.
type racyCount struct{ repository.EntryRepository }

func (racyCount) GetPasswordCount(context.Context, uuid.UUID) (int64, error) { return 0, nil }

func TestVault_ConcurrentCreateRespectsLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := memory.New()
	s := NewVaultService(racyCount{repo}, 3)
	u := mkUser(t, repo, "alice")

	var wg sync.WaitGroup
	errCh := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Create(ctx, u, entryFor("https://c.com"))
			errCh <- err
		}()
	}
	wg.Wait()
	close(errCh)

	var ok, limited int
	for err := range errCh {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, errs.ErrLimitExceeded):
			limited++
		default:
			t.Fatalf("unexpected: %v", err)
		}
	}
	if ok != 3 || limited != 13 {
		t.Fatalf("ok=%d limited=%d", ok, limited)
	}
	if n, _ := repo.GetPasswordCount(ctx, u); n != 3 {
		t.Fatalf("stored=%d", n)
	}
}

func TestVault_Ownership(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := memory.New()
	s := NewVaultService(repo, 10)
	alice := mkUser(t, repo, "alice")
	bob := mkUser(t, repo, "bob")

	bobs, err := s.Create(ctx, bob, entryFor("https://bank.com"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := s.Get(ctx, alice, bobs.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("alice read bob's entry: %v", err)
	}
	if err := s.Update(ctx, alice, bobs.ID, model.EntryPatch{Notes: model.SetString("x")}); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("alice updated bob's entry: %v", err)
	}
	if err := s.Delete(ctx, alice, bobs.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("alice deleted bob's entry: %v", err)
	}
	if list, _ := s.List(ctx, alice); len(list) != 0 {
		t.Fatalf("alice sees %d entries", len(list))
	}
	if got, err := s.Get(ctx, bob, bobs.ID); err != nil || got.Notes == nil || *got.Notes != "enc-notes" {
		t.Fatalf("bob's entry damaged: %+v %v", got, err)
	}
}

func TestVault_CreateValidationAndSanitizing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := memory.New()
	s := NewVaultService(repo, 10)
	u := mkUser(t, repo, "alice")

	in := model.NewEntry{
		WebsiteURL:        "  https://example.com\x00 ",
		WebsiteName:       strp("   "),
		Username:          strp("  cipher with spaces  "),
		EncryptedPassword: " c\x00t ",
		IV:                "iv",
	}
	e, err := s.Create(ctx, u, in)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if e.WebsiteURL != "https://example.com" {
		t.Fatalf("url not sanitized: %q", e.WebsiteURL)
	}
	if e.WebsiteName != nil {
		t.Fatalf("blank name must be dropped")
	}
	if *e.Username != "  cipher with spaces  " || e.EncryptedPassword != " c\x00t " {
		t.Fatalf("ciphertext modified: %q %q", *e.Username, e.EncryptedPassword)
	}
	if e.UserID != u {
		t.Fatalf("owner not set from caller")
	}

	bad := []model.NewEntry{
		{WebsiteURL: "", EncryptedPassword: "c", IV: "i"},
		{WebsiteURL: "u", EncryptedPassword: "", IV: "i"},
		{WebsiteURL: "u", EncryptedPassword: "c", IV: ""},
		{WebsiteURL: "https://" + strings.Repeat("a", model.MaxWebsiteURLLen), EncryptedPassword: "c", IV: "i"},
	}
	bad = append(bad, model.NewEntry{WebsiteURL: "u", WebsiteName: strp(strings.Repeat("n", model.MaxWebsiteNameLen+1)), EncryptedPassword: "c", IV: "i"})
	for i, b := range bad {
		if _, err := s.Create(ctx, u, b); !errors.Is(err, errs.ErrValidation) {
			t.Fatalf("case %d: want ErrValidation, got %v", i, err)
		}
	}
}

func TestVault_Update(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := memory.New()
	s := NewVaultService(repo, 10)
	u := mkUser(t, repo, "alice")
	e, _ := s.Create(ctx, u, entryFor("https://example.com"))

	if err := s.Update(ctx, u, e.ID, model.EntryPatch{Username: model.SetString("enc-user-2")}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ := s.Get(ctx, u, e.ID)
	if *got.Username != "enc-user-2" || got.EncryptedPassword != "enc-pass" || *got.WebsiteName != "Site" {
		t.Fatalf("sparse update touched other fields: %+v", got)
	}
	if !got.UpdatedAt.After(e.UpdatedAt) {
		t.Fatalf("updated_at not refreshed")
	}
	if got.LastUsed == nil {
		t.Fatalf("get must set last_used")
	}

	prev := got.UpdatedAt
	if err := s.Update(ctx, u, e.ID, model.EntryPatch{}); err != nil {
		t.Fatalf("empty patch: %v", err)
	}
	got, _ = s.Get(ctx, u, e.ID)
	if !got.UpdatedAt.After(prev) {
		t.Fatalf("empty patch must still refresh updated_at")
	}

	if err := s.Update(ctx, u, e.ID, model.EntryPatch{WebsiteURL: strp("  https://new.example.com ")}); err != nil {
		t.Fatalf("url update: %v", err)
	}
	got, _ = s.Get(ctx, u, e.ID)
	if got.WebsiteURL != "https://new.example.com" {
		t.Fatalf("url not sanitized: %q", got.WebsiteURL)
	}

	for i, p := range []model.EntryPatch{
		{WebsiteURL: strp(" ")},
		{WebsiteName: model.SetString(strings.Repeat("n", model.MaxWebsiteNameLen+1))},
		{EncryptedPassword: strp("")},
		{IV: strp("")},
	} {
		if err := s.Update(ctx, u, e.ID, p); !errors.Is(err, errs.ErrValidation) {
			t.Fatalf("case %d: want ErrValidation, got %v", i, err)
		}
	}

	if err := s.Update(ctx, u, uuid.Must(uuid.NewV4()), model.EntryPatch{}); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("missing entry: %v", err)
	}
}

func TestVault_UpdateClearsOptionalFields(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := memory.New()
	s := NewVaultService(repo, 10)
	u := mkUser(t, repo, "alice")
	e, _ := s.Create(ctx, u, entryFor("https://example.com"))

	if err := s.Update(ctx, u, e.ID, model.EntryPatch{Notes: model.ClearString(), Username: model.ClearString()}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ := s.Get(ctx, u, e.ID)
	if got.Notes != nil || got.Username != nil {
		t.Fatalf("null did not clear fields: %+v", got)
	}
	if got.WebsiteName == nil || *got.WebsiteName != "Site" {
		t.Fatalf("unset field changed: %+v", got.WebsiteName)
	}

	// a blank name is stored as absent, same as on create
	if err := s.Update(ctx, u, e.ID, model.EntryPatch{WebsiteName: model.SetString("   ")}); err != nil {
		t.Fatalf("blank name: %v", err)
	}
	got, _ = s.Get(ctx, u, e.ID)
	if got.WebsiteName != nil {
		t.Fatalf("blank name stored as %q", *got.WebsiteName)
	}

	if err := s.Update(ctx, u, e.ID, model.EntryPatch{WebsiteName: model.SetString("  Bank ")}); err != nil {
		t.Fatalf("name: %v", err)
	}
	got, _ = s.Get(ctx, u, e.ID)
	if got.WebsiteName == nil || *got.WebsiteName != "Bank" {
		t.Fatalf("name not sanitized: %+v", got.WebsiteName)
	}
}

func TestVault_ListOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := memory.New()
	s := NewVaultService(repo, 10)
	u := mkUser(t, repo, "alice")

	var ids []uuid.UUID
	for _, url := range []string{"https://c.com", "https://a.com", "https://b.com"} {
		e, err := s.Create(ctx, u, entryFor(url))
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		ids = append(ids, e.ID)
	}
	list, err := s.List(ctx, u)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for i := range ids {
		if list[i].ID != ids[i] {
			t.Fatalf("position %d: got %s want %s", i, list[i].ID, ids[i])
		}
	}
}
