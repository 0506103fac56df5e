// Package convert maps domain models to and from the JSON shapes of the HTTP API.
package convert

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/and161185/passvault/internal/errs"
	"github.com/and161185/passvault/internal/model"
)

// User is the public view of an account. Hash and salt are never exposed.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Entry is the wire form of a vault entry.
type Entry struct {
	ID                string     `json:"id"`
	WebsiteURL        string     `json:"website_url"`
	WebsiteName       *string    `json:"website_name"`
	Username          *string    `json:"username"`
	EncryptedPassword string     `json:"encrypted_password"`
	IV                string     `json:"iv"`
	Notes             *string    `json:"notes"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	LastUsed          *time.Time `json:"last_used"`
}

// OptString is a JSON string field that remembers whether its key was present,
// so an explicit null can be told apart from an omitted key.
type OptString struct {
	Value   *string
	Present bool
}

// UnmarshalJSON implements json.Unmarshaler. It is also invoked for null.
func (o *OptString) UnmarshalJSON(b []byte) error {
	o.Present = true
	o.Value = nil
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

func (o OptString) nullable() model.NullString {
	return model.NullString{Value: o.Value, Set: o.Present}
}

// EntryRequest is the body of create and update calls.
type EntryRequest struct {
	WebsiteURL        OptString `json:"website_url"`
	WebsiteName       OptString `json:"website_name"`
	Username          OptString `json:"username"`
	EncryptedPassword OptString `json:"encrypted_password"`
	IV                OptString `json:"iv"`
	Notes             OptString `json:"notes"`
}

// ToUser converts a domain user to its public view.
func ToUser(u model.User) User {
	return User{ID: u.ID.String(), Username: u.Username, Email: u.Email, CreatedAt: u.CreatedAt}
}

// ToEntry converts a domain entry to its wire form.
func ToEntry(e model.VaultEntry) Entry {
	return Entry{
		ID:                e.ID.String(),
		WebsiteURL:        e.WebsiteURL,
		WebsiteName:       e.WebsiteName,
		Username:          e.Username,
		EncryptedPassword: e.EncryptedPassword,
		IV:                e.IV,
		Notes:             e.Notes,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
		LastUsed:          e.LastUsed,
	}
}

// ToEntries converts a slice of entries; the result is never nil.
func ToEntries(es []model.VaultEntry) []Entry {
	out := make([]Entry, 0, len(es))
	for _, e := range es {
		out = append(out, ToEntry(e))
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// NewEntry builds creation input. The owner is filled in by the service.
func (r EntryRequest) NewEntry() model.NewEntry {
	return model.NewEntry{
		WebsiteURL:        deref(r.WebsiteURL.Value),
		WebsiteName:       r.WebsiteName.Value,
		Username:          r.Username.Value,
		EncryptedPassword: deref(r.EncryptedPassword.Value),
		IV:                deref(r.IV.Value),
		Notes:             r.Notes.Value,
	}
}

// Patch builds a sparse update from the keys present in the request. Null
// clears a nullable field and is rejected for required ones.
func (r EntryRequest) Patch() (model.EntryPatch, error) {
	for _, f := range []struct {
		name string
		v    OptString
	}{
		{"website_url", r.WebsiteURL},
		{"encrypted_password", r.EncryptedPassword},
		{"iv", r.IV},
	} {
		if f.v.Present && f.v.Value == nil {
			return model.EntryPatch{}, errs.Invalid(f.name + " cannot be null")
		}
	}
	return model.EntryPatch{
		WebsiteURL:        r.WebsiteURL.Value,
		WebsiteName:       r.WebsiteName.nullable(),
		Username:          r.Username.nullable(),
		EncryptedPassword: r.EncryptedPassword.Value,
		IV:                r.IV.Value,
		Notes:             r.Notes.nullable(),
	}, nil
}
