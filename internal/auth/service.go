package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"hellai.org/internal/ids"
)

const (
	defaultIssuer     = "hellai-core"
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 30 * 24 * time.Hour
)

// Claims are the verified access-token claims. sid binds the token to the
// refresh session it was minted from.
type Claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Service owns the credential and session lifecycle: registration, password
// verification, token issuance, rotation and revocation.
type Service struct {
	users       UserStore
	credentials CredentialStore
	sessions    SessionStore

	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// Option configures Service behavior.
type Option func(*Service) error

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) Option {
	return func(s *Service) error {
		if v := strings.TrimSpace(issuer); v != "" {
			s.issuer = v
		}
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) Option {
	return func(s *Service) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh session lifetime.
func WithRefreshTTL(ttl time.Duration) Option {
	return func(s *Service) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs the auth service. The signing secret is required.
func NewService(users UserStore, credentials CredentialStore, sessions SessionStore, secret string, opts ...Option) (*Service, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	svc := &Service{
		users:       users,
		credentials: credentials,
		sessions:    sessions,
		secret:      []byte(secret),
		issuer:      defaultIssuer,
		accessTTL:   defaultAccessTTL,
		refreshTTL:  defaultRefreshTTL,
		now:         time.Now,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Register creates a user with a credential and opens their first session.
func (s *Service) Register(ctx context.Context, login, name, secret, email string) (*User, TokenPair, error) {
	login, err := ValidateLogin(login)
	if err != nil {
		return nil, TokenPair{}, err
	}
	email, err = ValidateEmail(email)
	if err != nil {
		return nil, TokenPair{}, err
	}
	if _, err := ValidatePassword(secret); err != nil {
		return nil, TokenPair{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = login
	}

	now := s.now().UTC()
	user := &User{
		ID:        ids.New(),
		Login:     login,
		Name:      name,
		Email:     email,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, TokenPair{}, err
	}
	if err := s.SetCredential(ctx, user.ID, secret); err != nil {
		return nil, TokenPair{}, err
	}
	pair, err := s.Issue(ctx, user.ID)
	if err != nil {
		return nil, TokenPair{}, err
	}
	return user, pair, nil
}

// Authenticate verifies a login/secret pair and opens a session. An unknown
// login, a disabled account and a wrong secret all return
// ErrInvalidCredential.
func (s *Service) Authenticate(ctx context.Context, login, secret string) (*User, TokenPair, error) {
	login = strings.TrimSpace(login)
	if login == "" || secret == "" {
		return nil, TokenPair{}, ErrInvalidCredential
	}
	user, err := s.users.FindByLogin(ctx, login)
	if err != nil {
		return nil, TokenPair{}, ErrInvalidCredential
	}
	if !user.Active {
		return nil, TokenPair{}, ErrInvalidCredential
	}
	if err := s.VerifyCredential(ctx, user.ID, secret); err != nil {
		return nil, TokenPair{}, err
	}
	pair, err := s.Issue(ctx, user.ID)
	if err != nil {
		return nil, TokenPair{}, err
	}
	return user, pair, nil
}

// Issue opens a new refresh session and mints the first token pair for it.
func (s *Service) Issue(ctx context.Context, userID string) (TokenPair, error) {
	now := s.now().UTC()
	secret, hash, err := newRefreshSecret()
	if err != nil {
		return TokenPair{}, err
	}
	session := &Session{
		ID:        ids.New(),
		UserID:    userID,
		TokenHash: hash,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.refreshTTL),
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return TokenPair{}, err
	}
	return s.mintPair(userID, session.ID, secret, session.ExpiresAt, now)
}

// Refresh rotates a refresh token and returns a fresh pair. Replay of a
// token that was already rotated away revokes the whole session and returns
// ErrSessionReuse; the check and the swap are one guarded update, so two
// concurrent calls with the same token cannot both win.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	sid, secret, err := splitRefreshToken(refreshToken)
	if err != nil {
		return TokenPair{}, ErrSessionInvalid
	}
	session, err := s.sessions.FindSession(ctx, sid)
	if err != nil {
		return TokenPair{}, ErrSessionInvalid
	}
	now := s.now().UTC()
	if !session.Live(now) {
		return TokenPair{}, ErrSessionInvalid
	}

	newSecret, newHash, err := newRefreshSecret()
	if err != nil {
		return TokenPair{}, err
	}
	expiresAt := now.Add(s.refreshTTL)
	ok, err := s.sessions.Rotate(ctx, sid, hashRefreshSecret(secret), newHash, expiresAt)
	if err != nil {
		return TokenPair{}, err
	}
	if !ok {
		// The presented token is not the current one for a live session:
		// token-theft evidence. Kill the lineage.
		if rerr := s.sessions.Revoke(ctx, sid); rerr != nil {
			return TokenPair{}, fmt.Errorf("%w: revoking session: %v", ErrSessionReuse, rerr)
		}
		return TokenPair{}, ErrSessionReuse
	}
	return s.mintPair(session.UserID, sid, newSecret, expiresAt, now)
}

// Validate verifies an access token's signature and expiry without touching
// storage. Refresh sessions are the sole revocation point; an access token
// rides out its TTL.
func (s *Service) Validate(accessToken string) (*Claims, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return nil, ErrTokenInvalid
	}
	parsed, err := jwt.ParseWithClaims(accessToken, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrTokenInvalid
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now().UTC() }))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Issuer != s.issuer || strings.TrimSpace(claims.Subject) == "" || claims.SessionID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// Logout revokes the refresh session behind the presented token.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	sid, secret, err := splitRefreshToken(refreshToken)
	if err != nil {
		return ErrSessionInvalid
	}
	session, err := s.sessions.FindSession(ctx, sid)
	if err != nil {
		return ErrSessionInvalid
	}
	if !secureCompareHash(session.TokenHash, secret) {
		return ErrSessionInvalid
	}
	return s.sessions.Revoke(ctx, sid)
}

// RevokeAll revokes every session of a user.
func (s *Service) RevokeAll(ctx context.Context, userID string) error {
	return s.sessions.RevokeAllForUser(ctx, userID)
}

// GetUser loads a user by id.
func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	return s.users.Find(ctx, id)
}

func (s *Service) mintPair(userID, sessionID, refreshSecret string, refreshExpiresAt, now time.Time) (TokenPair, error) {
	accessExp := now.Add(s.accessTTL)
	claims := Claims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExp),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign token: %w", err)
	}
	return TokenPair{
		AccessToken:      signed,
		RefreshToken:     sessionID + "." + refreshSecret,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExpiresAt,
	}, nil
}

func newRefreshSecret() (secret, hash string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	secret = base64.RawURLEncoding.EncodeToString(raw)
	return secret, hashRefreshSecret(secret), nil
}

func hashRefreshSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func secureCompareHash(expectedHash, secret string) bool {
	return subtle.ConstantTimeCompare([]byte(expectedHash), []byte(hashRefreshSecret(secret))) == 1
}

func splitRefreshToken(raw string) (id, secret string, err error) {
	id, secret, ok := strings.Cut(strings.TrimSpace(raw), ".")
	if !ok || id == "" || secret == "" {
		return "", "", errors.New("invalid refresh token format")
	}
	return id, secret, nil
}
