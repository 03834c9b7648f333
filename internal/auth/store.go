package auth

import (
	"context"
	"time"
)

// UserStore persists user identities.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByLogin(ctx context.Context, login string) (*User, error)
}

// CredentialStore persists password hashes. Implementations never return
// the stored value anywhere but Get, and never log it.
type CredentialStore interface {
	// Set replaces any prior credential for the user atomically.
	Set(ctx context.Context, userID, encodedHash string) error
	Get(ctx context.Context, userID string) (string, error)
}

// SessionStore persists refresh sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, s *Session) error
	FindSession(ctx context.Context, id string) (*Session, error)
	// Rotate swaps the stored token hash in a single guarded update: it
	// succeeds only while the session is live and still holds oldHash.
	// A false return is the caller's reuse or lost-race signal.
	Rotate(ctx context.Context, id, oldHash, newHash string, expiresAt time.Time) (bool, error)
	Revoke(ctx context.Context, id string) error
	RevokeAllForUser(ctx context.Context, userID string) error
}
