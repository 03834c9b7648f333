package auth

import "errors"

var (
	// ErrInvalidCredential covers both an unknown user and a wrong secret so
	// callers cannot probe which logins exist.
	ErrInvalidCredential = errors.New("invalid credentials")

	ErrSessionInvalid = errors.New("session is revoked or expired")
	// ErrSessionReuse marks replay of an already-rotated refresh token. The
	// session is revoked before this is returned.
	ErrSessionReuse = errors.New("refresh token reuse detected")

	ErrTokenExpired = errors.New("access token expired")
	ErrTokenInvalid = errors.New("invalid access token")

	ErrValidation = errors.New("invalid input")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("already exists")
)
