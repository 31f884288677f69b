// Package auth provides caller authentication types for the snippet API.
//
// Token issuance is deliberately minimal: the admission core only needs to
// resolve an optional authenticated user ID per request. Opaque bearer tokens
// held in a session store stand in at that interface boundary.
package auth

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidCredentials is returned when email/password verification fails.
// Callers must not distinguish unknown emails from wrong passwords.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrSessionNotFound is returned when a token resolves to no live session.
var ErrSessionNotFound = errors.New("session not found")

// User is a platform account able to authenticate.
type User struct {
	// ID is the unique user identifier.
	ID string

	// Email is the login email, stored lowercase.
	Email string

	// PasswordHash is the argon2id hash of the password.
	PasswordHash string
}

// Session is a live authenticated session keyed by an opaque bearer token.
type Session struct {
	Token     string
	UserID    string
	Email     string
	ExpiresAt time.Time
}

// IsExpired reports whether the session has passed its expiry.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// CredentialVerifier checks a claimed email/password pair.
type CredentialVerifier interface {
	// Verify returns the matching user, or ErrInvalidCredentials.
	Verify(ctx context.Context, email, password string) (User, error)
}

// SessionStore holds live sessions.
type SessionStore interface {
	Create(ctx context.Context, sess *Session) error
	// Get returns the session for token, or ErrSessionNotFound when the token
	// is unknown or expired.
	Get(ctx context.Context, token string) (*Session, error)
	Delete(ctx context.Context, token string) error
}
