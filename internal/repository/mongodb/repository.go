// Package mongodb contains the MongoDB implementation of the repository contract.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/and161185/passvault/internal/errs"
	"github.com/and161185/passvault/internal/model"
	"github.com/and161185/passvault/internal/repository"
)

// Repository is the MongoDB backend.
type Repository struct {
	uri    string
	dbName string
	client *mongo.Client
	db     *mongo.Database
	log    *zap.Logger
}

var _ repository.Repository = (*Repository)(nil)

// NewRepository returns an uninitialized backend; Initialize connects.
func NewRepository(uri, dbName string, log *zap.Logger) *Repository {
	if log == nil {
		log = zap.NewNop()
	}
	return &Repository{uri: uri, dbName: dbName, log: log.Named("mongodb")}
}

// NewRepositoryWithDatabase wraps an existing database handle. The caller owns the client.
func NewRepositoryWithDatabase(db *mongo.Database, log *zap.Logger) *Repository {
	r := NewRepository("", db.Name(), log)
	r.db = db
	return r
}

func (r *Repository) users() *mongo.Collection   { return r.db.Collection(usersColl) }
func (r *Repository) entries() *mongo.Collection { return r.db.Collection(entriesColl) }

// Initialize connects (unless a database was injected) and ensures indexes.
func (r *Repository) Initialize(ctx context.Context) error {
	if r.db == nil {
		if r.uri == "" {
			return errors.New("mongodb: empty uri")
		}
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(r.uri))
		if err != nil {
			return fmt.Errorf("mongodb: connect: %w", err)
		}
		if err := client.Ping(ctx, nil); err != nil {
			_ = client.Disconnect(ctx)
			return fmt.Errorf("mongodb: ping: %w", err)
		}
		r.client = client
		r.db = client.Database(r.dbName)
	}

	_, err := r.users().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return fmt.Errorf("mongodb: user indexes: %w", err)
	}
	_, err = r.entries().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("mongodb: entry indexes: %w", err)
	}
	r.log.Info("mongodb backend ready", zap.String("database", r.db.Name()))
	return nil
}

// Close disconnects the client if this backend opened it.
func (r *Repository) Close(ctx context.Context) error {
	if r.client == nil {
		return nil
	}
	err := r.client.Disconnect(ctx)
	r.client = nil
	return err
}

// CreateUser inserts a user, reporting duplicate username or email as errs.ErrAlreadyExists.
func (r *Repository) CreateUser(ctx context.Context, in model.NewUser) (*model.User, error) {
	id, err := model.NewID()
	if err != nil {
		return nil, err
	}
	ts := now()
	doc := userDoc{
		ID:                 id.String(),
		Username:           in.Username,
		Email:              in.Email,
		MasterPasswordHash: in.PasswordHash,
		Salt:               in.Salt,
		CreatedAt:          ts,
		UpdatedAt:          ts,
	}
	if _, err := r.users().InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, errs.ErrAlreadyExists
		}
		return nil, err
	}
	return doc.toModel()
}

func (r *Repository) findUser(ctx context.Context, filter bson.D) (*model.User, error) {
	var doc userDoc
	if err := r.users().FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return doc.toModel()
}

// GetUserByUsername loads a user by exact username.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.findUser(ctx, bson.D{{Key: "username", Value: username}})
}

// GetUserByEmail loads a user by email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findUser(ctx, bson.D{{Key: "email", Value: email}})
}

// GetUserByID loads a user by id.
func (r *Repository) GetUserByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return r.findUser(ctx, bson.D{{Key: "_id", Value: id.String()}})
}

// UpdateUserPassword replaces the stored hash and salt.
func (r *Repository) UpdateUserPassword(ctx context.Context, id uuid.UUID, passwordHash, salt string) error {
	res, err := r.users().UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id.String()}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "master_password_hash", Value: passwordHash},
			{Key: "salt", Value: salt},
			{Key: "updated_at", Value: now()},
		}}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// DeleteUser removes entries first so a failure never leaves entries without an owner.
func (r *Repository) DeleteUser(ctx context.Context, id uuid.UUID) error {
	if _, err := r.entries().DeleteMany(ctx, bson.D{{Key: "user_id", Value: id.String()}}); err != nil {
		return err
	}
	res, err := r.users().DeleteOne(ctx, bson.D{{Key: "_id", Value: id.String()}})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// releaseTimeout bounds counter compensation, which outlives the caller's context.
const releaseTimeout = 5 * time.Second

// incrementCount bumps the owner's entry counter unless it has reached limit.
// It reports whether a slot was taken.
func (r *Repository) incrementCount(ctx context.Context, userID string, limit int) (bool, error) {
	filter := bson.D{{Key: "_id", Value: userID}}
	if limit > 0 {
		filter = append(filter, bson.E{Key: "entry_count", Value: bson.D{{Key: "$lt", Value: limit}}})
	}
	res, err := r.users().UpdateOne(ctx, filter, bson.D{{Key: "$inc", Value: bson.D{{Key: "entry_count", Value: 1}}}})
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

// reserveSlot atomically takes one slot of the owner's entry cap. When the
// counter refuses but fewer entries actually exist, the counter has drifted
// (a compensation was lost) and is lowered to the real count before retrying.
func (r *Repository) reserveSlot(ctx context.Context, userID string, limit int) error {
	reserved, err := r.incrementCount(ctx, userID, limit)
	if err != nil || reserved {
		return err
	}
	n, err := r.users().CountDocuments(ctx, bson.D{{Key: "_id", Value: userID}})
	if err != nil {
		return err
	}
	if n == 0 || limit <= 0 {
		return errs.ErrNotFound
	}

	actual, err := r.entries().CountDocuments(ctx, bson.D{{Key: "user_id", Value: userID}})
	if err != nil {
		return err
	}
	if actual >= int64(limit) {
		return errs.LimitExceeded(limit)
	}
	r.log.Warn("entry counter drifted, resyncing",
		zap.String("user_id", userID), zap.Int64("entries", actual))
	if _, err := r.users().UpdateOne(ctx,
		bson.D{{Key: "_id", Value: userID}, {Key: "entry_count", Value: bson.D{{Key: "$gt", Value: actual}}}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "entry_count", Value: actual}}}},
	); err != nil {
		return err
	}

	reserved, err = r.incrementCount(ctx, userID, limit)
	if err != nil {
		return err
	}
	if !reserved {
		return errs.LimitExceeded(limit)
	}
	return nil
}

// releaseSlot gives a slot back. It runs detached from ctx cancellation so an
// aborted request still compensates.
func (r *Repository) releaseSlot(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	_, err := r.users().UpdateOne(ctx,
		bson.D{{Key: "_id", Value: userID}, {Key: "entry_count", Value: bson.D{{Key: "$gt", Value: 0}}}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "entry_count", Value: -1}}}},
	)
	return err
}

// CreatePassword stores a new entry after reserving a slot under limit.
func (r *Repository) CreatePassword(ctx context.Context, in model.NewEntry, limit int) (*model.VaultEntry, error) {
	id, err := model.NewID()
	if err != nil {
		return nil, err
	}
	uid := in.UserID.String()
	if err := r.reserveSlot(ctx, uid, limit); err != nil {
		return nil, err
	}

	ts := now()
	doc := entryDoc{
		ID:                id.String(),
		UserID:            uid,
		WebsiteURL:        in.WebsiteURL,
		WebsiteName:       in.WebsiteName,
		Username:          in.Username,
		EncryptedPassword: in.EncryptedPassword,
		IV:                in.IV,
		Notes:             in.Notes,
		CreatedAt:         ts,
		UpdatedAt:         ts,
	}
	if _, err := r.entries().InsertOne(ctx, doc); err != nil {
		if rerr := r.releaseSlot(ctx, uid); rerr != nil {
			r.log.Error("release entry slot", zap.String("user_id", uid), zap.Error(rerr))
		}
		return nil, err
	}
	e, err := doc.toModel()
	if err != nil {
		return nil, err
	}
	return &e, nil
}

var entrySort = options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

func (r *Repository) findEntries(ctx context.Context, filter bson.D) ([]model.VaultEntry, error) {
	cur, err := r.entries().Find(ctx, filter, entrySort)
	if err != nil {
		return nil, err
	}
	var docs []entryDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]model.VaultEntry, 0, len(docs))
	for _, d := range docs {
		e, err := d.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// GetPasswords lists the user's entries, oldest first.
func (r *Repository) GetPasswords(ctx context.Context, userID uuid.UUID) ([]model.VaultEntry, error) {
	return r.findEntries(ctx, bson.D{{Key: "user_id", Value: userID.String()}})
}

// SearchPasswords matches query case-insensitively against website_url.
func (r *Repository) SearchPasswords(ctx context.Context, userID uuid.UUID, query string) ([]model.VaultEntry, error) {
	return r.findEntries(ctx, bson.D{
		{Key: "user_id", Value: userID.String()},
		{Key: "website_url", Value: primitive.Regex{Pattern: regexp.QuoteMeta(query), Options: "i"}},
	})
}

func ownedFilter(id, userID uuid.UUID) bson.D {
	return bson.D{{Key: "_id", Value: id.String()}, {Key: "user_id", Value: userID.String()}}
}

// GetPasswordByID returns an owned entry and stamps last_used.
func (r *Repository) GetPasswordByID(ctx context.Context, id, userID uuid.UUID) (*model.VaultEntry, error) {
	var doc entryDoc
	err := r.entries().FindOneAndUpdate(ctx,
		ownedFilter(id, userID),
		bson.D{{Key: "$set", Value: bson.D{{Key: "last_used", Value: now()}}}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	e, err := doc.toModel()
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// patchUpdate renders the patch as an update document. Required fields and
// non-null values go to $set along with updated_at; nullable fields set to null
// go to $unset, matching how absent optional fields are stored on insert.
func patchUpdate(p model.EntryPatch) bson.D {
	set := bson.D{}
	unset := bson.D{}
	required := func(key string, v *string) {
		if v != nil {
			set = append(set, bson.E{Key: key, Value: *v})
		}
	}
	nullable := func(key string, v model.NullString) {
		switch {
		case !v.Set:
		case v.Value == nil:
			unset = append(unset, bson.E{Key: key, Value: ""})
		default:
			set = append(set, bson.E{Key: key, Value: *v.Value})
		}
	}
	required("website_url", p.WebsiteURL)
	nullable("website_name", p.WebsiteName)
	nullable("username", p.Username)
	required("encrypted_password", p.EncryptedPassword)
	required("iv", p.IV)
	nullable("notes", p.Notes)
	set = append(set, bson.E{Key: "updated_at", Value: now()})

	update := bson.D{{Key: "$set", Value: set}}
	if len(unset) > 0 {
		update = append(update, bson.E{Key: "$unset", Value: unset})
	}
	return update
}

// UpdatePassword applies a sparse patch to an entry owned by userID.
func (r *Repository) UpdatePassword(ctx context.Context, id, userID uuid.UUID, patch model.EntryPatch) (bool, error) {
	res, err := r.entries().UpdateOne(ctx, ownedFilter(id, userID), patchUpdate(patch))
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

// DeletePassword removes one entry owned by userID.
func (r *Repository) DeletePassword(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	res, err := r.entries().DeleteOne(ctx, ownedFilter(id, userID))
	if err != nil {
		return false, err
	}
	if res.DeletedCount == 0 {
		return false, nil
	}
	if err := r.releaseSlot(ctx, userID.String()); err != nil {
		r.log.Error("release entry slot", zap.String("user_id", userID.String()), zap.Error(err))
	}
	return true, nil
}

// GetPasswordCount returns how many entries the user owns.
func (r *Repository) GetPasswordCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	return r.entries().CountDocuments(ctx, bson.D{{Key: "user_id", Value: userID.String()}})
}
