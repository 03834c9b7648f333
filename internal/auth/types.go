package auth

import "time"

// User is a human account identified by a unique login and email.
type User struct {
	ID        string    `json:"id"`
	Login     string    `json:"login"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Session backs one refresh-token lineage. TokenHash holds the SHA-256 of
// the currently valid refresh secret; rotation replaces it atomically.
type Session struct {
	ID        string
	UserID    string
	TokenHash string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Revoked   bool
}

// Live reports whether the session can still be refreshed at t.
func (s Session) Live(t time.Time) bool {
	return !s.Revoked && t.Before(s.ExpiresAt)
}

// TokenPair is the access/refresh credential set returned to clients.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}
