package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// InMemory implements UserStore, CredentialStore and SessionStore with
// process-local maps. It backs tests and single-node development runs.
type InMemory struct {
	mu          sync.RWMutex
	users       map[string]User
	byLogin     map[string]string
	byEmail     map[string]string
	credentials map[string]string
	sessions    map[string]Session
}

// NewInMemory returns an empty in-memory credential and session store.
func NewInMemory() *InMemory {
	return &InMemory{
		users:       make(map[string]User),
		byLogin:     make(map[string]string),
		byEmail:     make(map[string]string),
		credentials: make(map[string]string),
		sessions:    make(map[string]Session),
	}
}

func (m *InMemory) Create(ctx context.Context, user *User) error {
	if user == nil || strings.TrimSpace(user.ID) == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	loginKey := strings.ToLower(user.Login)
	emailKey := strings.ToLower(user.Email)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; ok {
		return fmt.Errorf("%w: user %s already exists", ErrConflict, user.ID)
	}
	if _, ok := m.byLogin[loginKey]; ok {
		return fmt.Errorf("%w: login %q is taken", ErrConflict, user.Login)
	}
	if _, ok := m.byEmail[emailKey]; ok {
		return fmt.Errorf("%w: email %q is taken", ErrConflict, user.Email)
	}
	m.users[user.ID] = *user
	m.byLogin[loginKey] = user.ID
	m.byEmail[emailKey] = user.ID
	return nil
}

func (m *InMemory) Find(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	out := user
	return &out, nil
}

func (m *InMemory) FindByLogin(ctx context.Context, login string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byLogin[strings.ToLower(strings.TrimSpace(login))]
	if !ok {
		return nil, fmt.Errorf("%w: login %q", ErrNotFound, login)
	}
	user := m.users[id]
	out := user
	return &out, nil
}

func (m *InMemory) Set(ctx context.Context, userID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		return fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	m.credentials[userID] = hash
	return nil
}

func (m *InMemory) Get(ctx context.Context, userID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	hash, ok := m.credentials[userID]
	if !ok {
		return "", fmt.Errorf("%w: credential for user %s", ErrNotFound, userID)
	}
	return hash, nil
}

func (m *InMemory) CreateSession(ctx context.Context, session *Session) error {
	if session == nil || strings.TrimSpace(session.ID) == "" {
		return fmt.Errorf("%w: session id is required", ErrValidation)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[session.ID]; ok {
		return fmt.Errorf("%w: session %s already exists", ErrConflict, session.ID)
	}
	m.sessions[session.ID] = *session
	return nil
}

func (m *InMemory) FindSession(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	out := session
	return &out, nil
}

// Rotate swaps the stored refresh hash only when the caller still holds the
// current one. The compare and the swap happen under one lock, mirroring the
// guarded UPDATE the SQL store runs.
func (m *InMemory) Rotate(ctx context.Context, id, oldHash, newHash string, expiresAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return false, fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	if session.Revoked || session.TokenHash != oldHash {
		return false, nil
	}
	session.TokenHash = newHash
	session.ExpiresAt = expiresAt
	m.sessions[id] = session
	return true, nil
}

func (m *InMemory) Revoke(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	session.Revoked = true
	m.sessions[id] = session
	return nil
}

func (m *InMemory) RevokeAllForUser(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, session := range m.sessions {
		if session.UserID == userID {
			session.Revoked = true
			m.sessions[id] = session
		}
	}
	return nil
}
