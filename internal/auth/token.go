// Package auth issues and verifies signed credentials and resolves request
// identity. Credentials are stateless: revocation works by bumping the
// account's session version, which voids every previously issued token.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/snipvault/snipvault/internal/accounts"
)

// ErrInvalidToken covers malformed, mis-signed and expired credentials.
var ErrInvalidToken = errors.New("auth: invalid or expired token")

const issuer = "snipvault"

// Claims is the signed credential payload.
type Claims struct {
	UserID         int64  `json:"uid"`
	Username       string `json:"username"`
	Role           string `json:"role"`
	Status         string `json:"status"`
	SessionVersion int64  `json:"sv"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies credentials with a configurable expiry.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager constructs a TokenManager.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// SetClock overrides the time source. Intended for tests.
func (tm *TokenManager) SetClock(now func() time.Time) {
	tm.now = now
}

// Issue mints a credential embedding the user's id, role, status and
// current session version.
func (tm *TokenManager) Issue(u *accounts.User) (string, time.Time, error) {
	now := tm.now()
	expiresAt := now.Add(tm.ttl)
	claims := &Claims{
		UserID:         u.ID,
		Username:       u.Username,
		Role:           string(u.Role),
		Status:         string(u.Status),
		SessionVersion: u.SessionVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Parse verifies a credential's signature and expiry and returns its claims.
func (tm *TokenManager) Parse(raw string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return tm.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return tm.now() }))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
