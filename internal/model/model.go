// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Field size limits inherited from the storage schema.
const (
	MaxUsernameLen    = 100
	MaxEmailLen       = 255
	MaxWebsiteURLLen  = 500
	MaxWebsiteNameLen = 255
)

// NewID returns a fresh random identifier for a record about to be constructed.
func NewID() (uuid.UUID, error) {
	return uuid.NewV4()
}

// User represents an account stored on the server. The master password is never stored in plaintext.
type User struct {
	ID                 uuid.UUID // PK
	Username           string    // unique, case-sensitive
	Email              string    // unique
	MasterPasswordHash string    // argon2id encoded hash
	Salt               string    // per-user salt
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewUser is the input for user creation.
type NewUser struct {
	Username     string
	Email        string
	PasswordHash string
	Salt         string
}

// VaultEntry is a single stored secret. Username, EncryptedPassword, IV and Notes are
// client-side ciphertext and are never inspected by the server.
type VaultEntry struct {
	ID                uuid.UUID
	UserID            uuid.UUID // owner, immutable
	WebsiteURL        string
	WebsiteName       *string
	Username          *string // ciphertext
	EncryptedPassword string  // ciphertext
	IV                string
	Notes             *string // ciphertext
	CreatedAt         time.Time
	UpdatedAt         time.Time
	LastUsed          *time.Time
}

// Clone returns a deep copy so callers cannot mutate stored state through pointer fields.
func (e VaultEntry) Clone() VaultEntry {
	e.WebsiteName = cloneStr(e.WebsiteName)
	e.Username = cloneStr(e.Username)
	e.Notes = cloneStr(e.Notes)
	if e.LastUsed != nil {
		t := *e.LastUsed
		e.LastUsed = &t
	}
	return e
}

// NewEntry is the input for vault entry creation.
type NewEntry struct {
	UserID            uuid.UUID
	WebsiteURL        string
	WebsiteName       *string
	Username          *string
	EncryptedPassword string
	IV                string
	Notes             *string
}

// NullString is a patch value for a nullable column. An unset value leaves the
// column alone; a set value with a nil Value clears it.
type NullString struct {
	Value *string
	Set   bool
}

// SetString returns a NullString that writes s.
func SetString(s string) NullString { return NullString{Value: &s, Set: true} }

// ClearString returns a NullString that resets the column to NULL.
func ClearString() NullString { return NullString{Set: true} }

// EntryPatch is a sparse update. Nil required fields and unset nullable fields
// are left untouched.
type EntryPatch struct {
	WebsiteURL        *string
	WebsiteName       NullString
	Username          NullString
	EncryptedPassword *string
	IV                *string
	Notes             NullString
}

// Empty reports whether the patch carries no field changes.
func (p EntryPatch) Empty() bool {
	return p.WebsiteURL == nil && !p.WebsiteName.Set && !p.Username.Set &&
		p.EncryptedPassword == nil && p.IV == nil && !p.Notes.Set
}

// Apply copies the set fields of p onto e. Timestamps are not touched.
func (p EntryPatch) Apply(e *VaultEntry) {
	if p.WebsiteURL != nil {
		e.WebsiteURL = *p.WebsiteURL
	}
	if p.WebsiteName.Set {
		e.WebsiteName = cloneStr(p.WebsiteName.Value)
	}
	if p.Username.Set {
		e.Username = cloneStr(p.Username.Value)
	}
	if p.EncryptedPassword != nil {
		e.EncryptedPassword = *p.EncryptedPassword
	}
	if p.IV != nil {
		e.IV = *p.IV
	}
	if p.Notes.Set {
		e.Notes = cloneStr(p.Notes.Value)
	}
}

// Claims are the identity assertions carried by a session token.
type Claims struct {
	SessionID string // jti, unique per issued token
	UserID    string
	Username  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func cloneStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
