// Package service contains application services for authentication and vault entries.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/and161185/passvault/internal/auth"
	"github.com/and161185/passvault/internal/crypto"
	"github.com/and161185/passvault/internal/errs"
	"github.com/and161185/passvault/internal/limiter"
	"github.com/and161185/passvault/internal/model"
	"github.com/and161185/passvault/internal/repository"
)

// AuthService defines account and session operations.
type AuthService interface {
	// Register creates a new user and returns it with a session token.
	Register(ctx context.Context, username, email, password string) (*model.User, string, error)
	// Login applies rate-limiting and authenticates the user.
	Login(ctx context.Context, username, password, ip string) (*model.User, string, error)
	// Authenticate decodes a session token. It performs no I/O.
	Authenticate(token string) (*model.Claims, error)
	// ChangePassword replaces the master password after verifying the current one.
	ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error
	// DeleteAccount removes the user and all of their entries.
	DeleteAccount(ctx context.Context, userID uuid.UUID, password string) error
	// Me returns the user's profile.
	Me(ctx context.Context, userID uuid.UUID) (*model.User, error)
}

const dummySalt = "0000000000000000000000000000000000000000000000000000000000000000"

type AuthServiceImpl struct {
	users  repository.UserRepository
	tokens *auth.TokenManager
	lim    limiter.Limiter
	log    *zap.Logger

	// hashing is memory-hard; sem caps how many run at once
	sem    *semaphore.Weighted
	hash   func(password, salt string) string
	verify func(password, salt, stored string) bool

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService constructs AuthService with required dependencies.
// hashConcurrency <= 0 falls back to 4.
func NewAuthService(users repository.UserRepository, tokens *auth.TokenManager, lim limiter.Limiter, hashConcurrency int, log *zap.Logger) *AuthServiceImpl {
	if hashConcurrency <= 0 {
		hashConcurrency = 4
	}
	if lim == nil {
		lim = limiter.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthServiceImpl{
		users:  users,
		tokens: tokens,
		lim:    lim,
		log:    log.Named("auth"),
		sem:    semaphore.NewWeighted(int64(hashConcurrency)),
		hash:   auth.HashMasterPassword,
		verify: auth.VerifyMasterPassword,
	}
}

func (s *AuthServiceImpl) hashPassword(ctx context.Context, password, salt string) (string, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer s.sem.Release(1)
	return s.hash(password, salt), nil
}

func (s *AuthServiceImpl) verifyPassword(ctx context.Context, password, salt, stored string) (bool, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer s.sem.Release(1)
	return s.verify(password, salt, stored), nil
}

// burnVerify performs a verification against a throwaway hash so that unknown
// usernames take as long to reject as wrong passwords.
func (s *AuthServiceImpl) burnVerify(ctx context.Context, password string) {
	s.dummyOnce.Do(func() { s.dummyHash = s.hash("not-a-real-password", dummySalt) })
	_, _ = s.verifyPassword(ctx, password, dummySalt, s.dummyHash)
}

func validateRegistration(username, email string) error {
	switch {
	case username == "" || email == "":
		return errs.Invalid("Username, email and master password are required")
	case utf8.RuneCountInString(username) > model.MaxUsernameLen:
		return errs.Invalid(fmt.Sprintf("Username must be at most %d characters", model.MaxUsernameLen))
	case utf8.RuneCountInString(email) > model.MaxEmailLen:
		return errs.Invalid(fmt.Sprintf("Email must be at most %d characters", model.MaxEmailLen))
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return errs.Invalid("Invalid email address")
	}
	return nil
}

// Register validates input, hashes the master password with a fresh salt and stores the user.
func (s *AuthServiceImpl) Register(ctx context.Context, username, email, password string) (*model.User, string, error) {
	username = crypto.SanitizeInput(username)
	email = crypto.SanitizeInput(email)
	if password == "" {
		return nil, "", errs.Invalid("Username, email and master password are required")
	}
	if err := validateRegistration(username, email); err != nil {
		return nil, "", err
	}
	if ok, msg := crypto.ValidatePasswordStrength(password); !ok {
		return nil, "", errs.Invalid(msg)
	}

	if _, err := s.users.GetUserByUsername(ctx, username); err == nil {
		return nil, "", &errs.ValidationError{Msg: "Username already exists", Cause: errs.ErrAlreadyExists}
	} else if !errors.Is(err, errs.ErrNotFound) {
		return nil, "", err
	}
	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return nil, "", &errs.ValidationError{Msg: "Email already exists", Cause: errs.ErrAlreadyExists}
	} else if !errors.Is(err, errs.ErrNotFound) {
		return nil, "", err
	}

	salt, err := auth.GenerateSalt()
	if err != nil {
		return nil, "", err
	}
	hash, err := s.hashPassword(ctx, password, salt)
	if err != nil {
		return nil, "", err
	}

	u, err := s.users.CreateUser(ctx, model.NewUser{Username: username, Email: email, PasswordHash: hash, Salt: salt})
	if err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			return nil, "", &errs.ValidationError{Msg: "Username or email already exists", Cause: err}
		}
		return nil, "", err
	}

	token, err := s.tokens.Issue(u.ID.String(), u.Username)
	if err != nil {
		return nil, "", err
	}
	s.log.Info("user registered", zap.String("user_id", u.ID.String()))
	return u, token, nil
}

// Login authenticates with rate limiting by (username, ip). Unknown users and
// wrong passwords are indistinguishable to the caller.
func (s *AuthServiceImpl) Login(ctx context.Context, username, password, ip string) (*model.User, string, error) {
	username = crypto.SanitizeInput(username)
	if username == "" || password == "" {
		return nil, "", errs.Invalid("Username and master password are required")
	}
	key := limiter.KeyFor(username, ip)

	allowed, retry, err := s.lim.Allow(ctx, key)
	if err != nil {
		return nil, "", err
	}
	if !allowed {
		return nil, "", fmt.Errorf("%w: retry in %s", errs.ErrRateLimited, retry.Round(time.Second))
	}

	u, err := s.users.GetUserByUsername(ctx, username)
	var ok bool
	switch {
	case err == nil:
		ok, err = s.verifyPassword(ctx, password, u.Salt, u.MasterPasswordHash)
		if err != nil {
			return nil, "", err
		}
	case errors.Is(err, errs.ErrNotFound):
		s.burnVerify(ctx, password)
	default:
		return nil, "", err
	}

	if !ok {
		blocked, d, ferr := s.lim.Failure(ctx, key)
		if ferr != nil {
			s.log.Warn("limiter failure bookkeeping", zap.Error(ferr))
		}
		if blocked {
			return nil, "", fmt.Errorf("%w: retry in %s", errs.ErrRateLimited, d.Round(time.Second))
		}
		return nil, "", errs.ErrUnauthorized
	}

	if err := s.lim.Success(ctx, key); err != nil {
		s.log.Warn("limiter success bookkeeping", zap.Error(err))
	}

	token, err := s.tokens.Issue(u.ID.String(), u.Username)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// Authenticate decodes and validates a session token.
func (s *AuthServiceImpl) Authenticate(token string) (*model.Claims, error) {
	return s.tokens.Decode(token)
}

// Me returns the account behind a session. A token that outlived its account
// is ErrUnauthorized, like any other bad token.
func (s *AuthServiceImpl) Me(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	return s.sessionUser(ctx, userID)
}

func (s *AuthServiceImpl) sessionUser(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	u, err := s.users.GetUserByID(ctx, userID)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.ErrUnauthorized
	}
	return u, err
}

// checkPassword loads the user and verifies password; a mismatch is ErrUnauthorized.
func (s *AuthServiceImpl) checkPassword(ctx context.Context, userID uuid.UUID, password string) (*model.User, error) {
	u, err := s.sessionUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ok, err := s.verifyPassword(ctx, password, u.Salt, u.MasterPasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.ErrUnauthorized
	}
	return u, nil
}

// ChangePassword rotates both salt and hash.
func (s *AuthServiceImpl) ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error {
	if current == "" || next == "" {
		return errs.Invalid("Current and new password are required")
	}
	if _, err := s.checkPassword(ctx, userID, current); err != nil {
		return err
	}
	if ok, msg := crypto.ValidatePasswordStrength(next); !ok {
		return errs.Invalid(msg)
	}

	salt, err := auth.GenerateSalt()
	if err != nil {
		return err
	}
	hash, err := s.hashPassword(ctx, next, salt)
	if err != nil {
		return err
	}
	if err := s.users.UpdateUserPassword(ctx, userID, hash, salt); err != nil {
		return err
	}
	s.log.Info("master password changed", zap.String("user_id", userID.String()))
	return nil
}

// DeleteAccount requires the master password.
func (s *AuthServiceImpl) DeleteAccount(ctx context.Context, userID uuid.UUID, password string) error {
	if password == "" {
		return errs.Invalid("Master password is required")
	}
	if _, err := s.checkPassword(ctx, userID, password); err != nil {
		return err
	}
	if err := s.users.DeleteUser(ctx, userID); err != nil {
		return err
	}
	s.log.Info("account deleted", zap.String("user_id", userID.String()))
	return nil
}
