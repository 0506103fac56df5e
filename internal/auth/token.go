package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/passvault/internal/crypto"
	"github.com/and161185/passvault/internal/errs"
	"github.com/and161185/passvault/internal/model"
)

// DefaultAlgorithm is used when no signing algorithm is configured.
const DefaultAlgorithm = "HS256"

// MaxExpiryHours caps session lifetime at one year.
const MaxExpiryHours = 24 * 365

// sessionClaims is the JWT payload of a session token.
type sessionClaims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// GenerateSessionToken issues a signed token for the user that expires expiryHours from now.
func GenerateSessionToken(userID, username, secret, algorithm string, expiryHours int) (string, error) {
	return generateSessionToken(userID, username, secret, algorithm, expiryHours, time.Now())
}

// DecodeSessionToken verifies signature and expiry and returns the embedded claims.
// Every failure is reported as errs.ErrUnauthorized.
func DecodeSessionToken(token, secret, algorithm string) (*model.Claims, error) {
	return decodeSessionToken(token, secret, algorithm, time.Now())
}

func generateSessionToken(userID, username, secret, algorithm string, expiryHours int, now time.Time) (string, error) {
	method, err := hmacMethod(algorithm)
	if err != nil {
		return "", err
	}
	if secret == "" {
		return "", fmt.Errorf("%w: empty signing secret", errs.ErrValidation)
	}
	if expiryHours <= 0 || expiryHours > MaxExpiryHours {
		return "", fmt.Errorf("%w: expiry must be between 1 and %d hours", errs.ErrValidation, MaxExpiryHours)
	}
	if userID == "" {
		return "", fmt.Errorf("%w: empty user id", errs.ErrValidation)
	}

	jti, err := crypto.GenerateSessionID()
	if err != nil {
		return "", err
	}

	claims := sessionClaims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(expiryHours) * time.Hour)),
		},
	}
	return jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
}

func decodeSessionToken(token, secret, algorithm string, now time.Time) (*model.Claims, error) {
	method, err := hmacMethod(algorithm)
	if err != nil || secret == "" || token == "" {
		return nil, errs.ErrUnauthorized
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)

	var c sessionClaims
	parsed, err := parser.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil || !parsed.Valid || c.UserID == "" || c.ExpiresAt == nil {
		return nil, errs.ErrUnauthorized
	}

	out := &model.Claims{
		SessionID: c.ID,
		UserID:    c.UserID,
		Username:  c.Username,
		ExpiresAt: c.ExpiresAt.Time,
	}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Time
	}
	return out, nil
}

func hmacMethod(algorithm string) (*jwt.SigningMethodHMAC, error) {
	if algorithm == "" {
		algorithm = DefaultAlgorithm
	}
	m, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported signing algorithm %q", errs.ErrValidation, algorithm)
	}
	return m, nil
}

// TokenManager binds a secret, algorithm and lifetime for issuing and decoding session tokens.
type TokenManager struct {
	secret      string
	algorithm   string
	expiryHours int
}

// NewTokenManager validates the settings and constructs a TokenManager.
func NewTokenManager(secret, algorithm string, expiryHours int) (*TokenManager, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: empty signing secret", errs.ErrConfiguration)
	}
	if expiryHours <= 0 || expiryHours > MaxExpiryHours {
		return nil, fmt.Errorf("%w: token expiry must be between 1 and %d hours", errs.ErrConfiguration, MaxExpiryHours)
	}
	if _, err := hmacMethod(algorithm); err != nil {
		return nil, errors.Join(errs.ErrConfiguration, err)
	}
	if algorithm == "" {
		algorithm = DefaultAlgorithm
	}
	return &TokenManager{secret: secret, algorithm: algorithm, expiryHours: expiryHours}, nil
}

// Issue returns a session token for the user.
func (m *TokenManager) Issue(userID, username string) (string, error) {
	return GenerateSessionToken(userID, username, m.secret, m.algorithm, m.expiryHours)
}

// Decode verifies a session token.
func (m *TokenManager) Decode(token string) (*model.Claims, error) {
	return DecodeSessionToken(token, m.secret, m.algorithm)
}
