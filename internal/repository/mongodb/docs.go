package mongodb

import (
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/passvault/internal/model"
)

const (
	usersColl   = "users"
	entriesColl = "vault_entries"
)

// userDoc is the stored form of a user. EntryCount mirrors the number of vault
// entries owned by the user and is what the per-user cap is enforced against.
type userDoc struct {
	ID                 string    `bson:"_id"`
	Username           string    `bson:"username"`
	Email              string    `bson:"email"`
	MasterPasswordHash string    `bson:"master_password_hash"`
	Salt               string    `bson:"salt"`
	EntryCount         int64     `bson:"entry_count"`
	CreatedAt          time.Time `bson:"created_at"`
	UpdatedAt          time.Time `bson:"updated_at"`
}

type entryDoc struct {
	ID                string     `bson:"_id"`
	UserID            string     `bson:"user_id"`
	WebsiteURL        string     `bson:"website_url"`
	WebsiteName       *string    `bson:"website_name,omitempty"`
	Username          *string    `bson:"username,omitempty"`
	EncryptedPassword string     `bson:"encrypted_password"`
	IV                string     `bson:"iv"`
	Notes             *string    `bson:"notes,omitempty"`
	CreatedAt         time.Time  `bson:"created_at"`
	UpdatedAt         time.Time  `bson:"updated_at"`
	LastUsed          *time.Time `bson:"last_used,omitempty"`
}

func (d userDoc) toModel() (*model.User, error) {
	id, err := uuid.FromString(d.ID)
	if err != nil {
		return nil, err
	}
	return &model.User{
		ID:                 id,
		Username:           d.Username,
		Email:              d.Email,
		MasterPasswordHash: d.MasterPasswordHash,
		Salt:               d.Salt,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}, nil
}

func (d entryDoc) toModel() (model.VaultEntry, error) {
	id, err := uuid.FromString(d.ID)
	if err != nil {
		return model.VaultEntry{}, err
	}
	uid, err := uuid.FromString(d.UserID)
	if err != nil {
		return model.VaultEntry{}, err
	}
	return model.VaultEntry{
		ID:                id,
		UserID:            uid,
		WebsiteURL:        d.WebsiteURL,
		WebsiteName:       d.WebsiteName,
		Username:          d.Username,
		EncryptedPassword: d.EncryptedPassword,
		IV:                d.IV,
		Notes:             d.Notes,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
		LastUsed:          d.LastUsed,
	}, nil
}

// now is millisecond precision to match what BSON datetimes can round-trip.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
