// Package session holds the signed-in identity shared by the sync
// components. A Session is built once at startup and passed to whatever
// needs it.
package session

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nhle/taskboard/internal/credential"
	"github.com/nhle/taskboard/internal/store"
)

// TokenEnv overrides the stored token when set.
const TokenEnv = "TASKBOARD_TOKEN"

var (
	ErrNoToken      = errors.New("no session token")
	ErrInvalidToken = errors.New("invalid session token")
	ErrNoUserID     = errors.New("session token carries no user id")
)

// Session is the identity of the signed-in user for this process.
type Session struct {
	UserID string
	Token  string

	// ClientID identifies this process to the backend.
	ClientID string

	// ExpiresAt is zero when the token has no exp claim.
	ExpiresAt time.Time
}

// New builds a Session from a bearer token. The token is decoded without
// verification to read its claims; the server verifies it on every call.
// The user id comes from the userId claim, falling back to sub.
func New(token string) (*Session, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return nil, ErrNoToken
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	userID := claimString(claims["userId"])
	if userID == "" {
		userID, _ = claims.GetSubject()
	}
	if userID == "" {
		return nil, ErrNoUserID
	}

	s := &Session{
		UserID:   userID,
		Token:    token,
		ClientID: uuid.NewString(),
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		s.ExpiresAt = exp.Time
	}
	return s, nil
}

// Load builds a Session from TASKBOARD_TOKEN or, when unset, from the
// token stored in vault.
func Load(vault *credential.Vault) (*Session, error) {
	if token := os.Getenv(TokenEnv); token != "" {
		return New(token)
	}
	if vault == nil {
		return nil, ErrNoToken
	}
	token, err := vault.Get(credential.TokenKey)
	if errors.Is(err, credential.ErrNotFound) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, err
	}
	return New(token)
}

// Save validates token and stores it in vault.
func Save(vault *credential.Vault, token string) (*Session, error) {
	s, err := New(token)
	if err != nil {
		return nil, err
	}
	if err := vault.Set(credential.TokenKey, s.Token); err != nil {
		return nil, err
	}
	return s, nil
}

// Expired reports whether the token's exp claim is in the past.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// CacheKey is the durable cache key for this user's inbox.
func (s *Session) CacheKey() string {
	return store.NotificationsKey(s.UserID)
}

func claimString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}
