package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"hellai.org/internal/auth"
)

var (
	_ auth.UserStore       = (*Store)(nil)
	_ auth.CredentialStore = (*Store)(nil)
	_ auth.SessionStore    = (*Store)(nil)
)

func (s *Store) Create(ctx context.Context, u *auth.User) error {
	_, err := s.db.ExecContext(ctx, `
		insert into users (id, login, name, email, active, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7)
	`, u.ID, strings.ToLower(u.Login), u.Name, u.Email, u.Active, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			switch pgErr.ConstraintName {
			case "users_login_key":
				return fmt.Errorf("%w: login %q is taken", auth.ErrConflict, u.Login)
			case "users_email_key":
				return fmt.Errorf("%w: email %q is taken", auth.ErrConflict, u.Email)
			}
			return fmt.Errorf("%w: user already exists", auth.ErrConflict)
		}
		return err
	}
	return nil
}

func (s *Store) Find(ctx context.Context, id string) (*auth.User, error) {
	return s.findUser(ctx, `
		select id, login, name, email, active, created_at, updated_at
		from users where id=$1
	`, id)
}

func (s *Store) FindByLogin(ctx context.Context, login string) (*auth.User, error) {
	return s.findUser(ctx, `
		select id, login, name, email, active, created_at, updated_at
		from users where login=$1
	`, strings.ToLower(strings.TrimSpace(login)))
}

func (s *Store) findUser(ctx context.Context, query, arg string) (*auth.User, error) {
	var u auth.User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Login, &u.Name, &u.Email, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user", auth.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Set stores the encoded credential hash, replacing any prior one.
func (s *Store) Set(ctx context.Context, userID, encodedHash string) error {
	_, err := s.db.ExecContext(ctx, `
		insert into credentials (user_id, secret_hash, updated_at)
		values ($1,$2,now())
		on conflict (user_id) do update set secret_hash = excluded.secret_hash, updated_at = now()
	`, userID, encodedHash)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return fmt.Errorf("%w: user %s", auth.ErrNotFound, userID)
		}
		return err
	}
	return nil
}

func (s *Store) Get(ctx context.Context, userID string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `
		select secret_hash from credentials where user_id=$1
	`, userID).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: credential for user %s", auth.ErrNotFound, userID)
	}
	if err != nil {
		return "", err
	}
	return hash, nil
}

func (s *Store) CreateSession(ctx context.Context, sess *auth.Session) error {
	_, err := s.db.ExecContext(ctx, `
		insert into sessions (id, user_id, token_hash, issued_at, expires_at, revoked)
		values ($1,$2,$3,$4,$5,false)
	`, sess.ID, sess.UserID, sess.TokenHash, sess.IssuedAt, sess.ExpiresAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return fmt.Errorf("%w: user %s", auth.ErrNotFound, sess.UserID)
		}
		return err
	}
	return nil
}

func (s *Store) FindSession(ctx context.Context, id string) (*auth.Session, error) {
	var sess auth.Session
	err := s.db.QueryRowContext(ctx, `
		select id, user_id, token_hash, issued_at, expires_at, revoked
		from sessions where id=$1
	`, id).Scan(&sess.ID, &sess.UserID, &sess.TokenHash, &sess.IssuedAt, &sess.ExpiresAt, &sess.Revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: session %s", auth.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// Rotate is a single guarded update: it succeeds only while the session is
// live and still holds oldHash, so concurrent refreshes with the same token
// cannot both win.
func (s *Store) Rotate(ctx context.Context, id, oldHash, newHash string, expiresAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		update sessions
		set token_hash=$3, expires_at=$4
		where id=$1 and token_hash=$2 and not revoked and expires_at > now()
	`, id, oldHash, newHash, expiresAt)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (s *Store) Revoke(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		update sessions set revoked=true where id=$1
	`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: session %s", auth.ErrNotFound, id)
	}
	return nil
}

func (s *Store) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		update sessions set revoked=true where user_id=$1
	`, userID)
	return err
}
