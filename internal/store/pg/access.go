package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"hellai.org/internal/access"
)

var _ access.Store = (*Store)(nil)

// WithinTx runs fn inside one database transaction so that authorization
// reads and the mutation they guard see the same snapshot.
func (s *Store) WithinTx(ctx context.Context, fn func(tx access.Tx) error) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", access.ErrUnavailable, err)
	}
	defer func() { _ = dbTx.Rollback() }()

	if err := fn(&accessTx{tx: dbTx}); err != nil {
		if transient(err) {
			return fmt.Errorf("%w: %v", access.ErrUnavailable, err)
		}
		return err
	}
	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", access.ErrUnavailable, err)
	}
	return nil
}

type accessTx struct {
	tx *sql.Tx
}

var _ access.Tx = (*accessTx)(nil)

func (t *accessTx) Parent(ctx context.Context, ref access.EntityRef) (access.EntityRef, bool, error) {
	var parentID sql.NullString
	err := t.tx.QueryRowContext(ctx, `
		select parent_id from entities where id=$1 and kind=$2
	`, ref.ID, ref.Kind).Scan(&parentID)
	if errors.Is(err, sql.ErrNoRows) {
		return access.EntityRef{}, false, fmt.Errorf("%w: %s", access.ErrNotFound, ref)
	}
	if err != nil {
		return access.EntityRef{}, false, err
	}
	if !parentID.Valid || parentID.String == "" {
		return access.EntityRef{}, false, nil
	}
	parentKind, ok := ref.Kind.ParentKind()
	if !ok {
		return access.EntityRef{}, false, nil
	}
	return access.EntityRef{Kind: parentKind, ID: parentID.String}, true, nil
}

func (t *accessTx) Grant(ctx context.Context, userID string, ref access.EntityRef) (access.Role, bool, error) {
	var role int
	err := t.tx.QueryRowContext(ctx, `
		select g.role
		from access_grants g
		join entities e on e.id = g.entity_id
		where g.user_id=$1 and g.entity_id=$2 and e.kind=$3
	`, userID, ref.ID, ref.Kind).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return access.NoAccess, false, nil
	}
	if err != nil {
		return access.NoAccess, false, err
	}
	return access.Role(role), true, nil
}

func (t *accessTx) GetEntity(ctx context.Context, ref access.EntityRef) (access.Entity, error) {
	var (
		e        access.Entity
		parentID sql.NullString
	)
	err := t.tx.QueryRowContext(ctx, `
		select id, kind, parent_id, name, created_by, created_at, updated_at
		from entities where id=$1 and kind=$2
	`, ref.ID, ref.Kind).Scan(&e.ID, &e.Kind, &parentID, &e.Name, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return access.Entity{}, fmt.Errorf("%w: %s", access.ErrNotFound, ref)
	}
	if err != nil {
		return access.Entity{}, err
	}
	if parentID.Valid {
		e.ParentID = parentID.String
	}
	return e, nil
}

func (t *accessTx) InsertEntity(ctx context.Context, e *access.Entity) error {
	var parentID any
	if e.ParentID != "" {
		parentID = e.ParentID
	}
	_, err := t.tx.ExecContext(ctx, `
		insert into entities (id, kind, parent_id, name, created_by, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7)
	`, e.ID, e.Kind, parentID, e.Name, e.CreatedBy, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return fmt.Errorf("%w: %s %q already exists under this parent", access.ErrConflict, e.Kind, e.Name)
			case pgErrForeignKeyViolation:
				return fmt.Errorf("%w: parent of %s", access.ErrNotFound, e.Ref())
			}
		}
		return err
	}
	return nil
}

// DeleteEntity relies on the schema's on delete cascade foreign keys:
// removing the row takes every descendant, grant and attached note with it.
func (t *accessTx) DeleteEntity(ctx context.Context, ref access.EntityRef) error {
	res, err := t.tx.ExecContext(ctx, `
		delete from entities where id=$1 and kind=$2
	`, ref.ID, ref.Kind)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", access.ErrNotFound, ref)
	}
	return nil
}

func (t *accessTx) ListChildren(ctx context.Context, parent access.EntityRef) ([]access.Entity, error) {
	rows, err := t.tx.QueryContext(ctx, `
		select id, kind, parent_id, name, created_by, created_at, updated_at
		from entities where parent_id=$1 order by name asc
	`, parent.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntities(rows)
}

func (t *accessTx) ListUserOrganizations(ctx context.Context, userID string) ([]access.Entity, error) {
	rows, err := t.tx.QueryContext(ctx, `
		select e.id, e.kind, e.parent_id, e.name, e.created_by, e.created_at, e.updated_at
		from entities e
		join access_grants g on g.entity_id = e.id
		where g.user_id=$1 and e.kind=$2
		order by e.name asc
	`, userID, access.KindOrganization)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntities(rows)
}

func (t *accessTx) UpsertGrant(ctx context.Context, g access.Grant) error {
	_, err := t.tx.ExecContext(ctx, `
		insert into access_grants (user_id, entity_id, role, created_at)
		values ($1,$2,$3,$4)
		on conflict (user_id, entity_id) do update set role = excluded.role
	`, g.UserID, g.Entity.ID, int(g.Role), g.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return fmt.Errorf("%w: %s or user %s", access.ErrNotFound, g.Entity, g.UserID)
		}
		return err
	}
	return nil
}

func (t *accessTx) DeleteGrant(ctx context.Context, userID string, ref access.EntityRef) error {
	res, err := t.tx.ExecContext(ctx, `
		delete from access_grants where user_id=$1 and entity_id=$2
	`, userID, ref.ID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: grant for user %s at %s", access.ErrNotFound, userID, ref)
	}
	return nil
}

func (t *accessTx) CountGrantsWithRole(ctx context.Context, ref access.EntityRef, role access.Role) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `
		select count(*) from access_grants where entity_id=$1 and role=$2
	`, ref.ID, int(role)).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (t *accessTx) InsertNote(ctx context.Context, n *access.Note) error {
	var entityID any
	if n.Entity != nil {
		entityID = n.Entity.ID
	}
	_, err := t.tx.ExecContext(ctx, `
		insert into notes (id, author_id, entity_id, body, created_at)
		values ($1,$2,$3,$4,$5)
	`, n.ID, n.AuthorID, entityID, n.Body, n.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return fmt.Errorf("%w: note target", access.ErrNotFound)
		}
		return err
	}
	return nil
}

func (t *accessTx) GetNote(ctx context.Context, id string) (access.Note, error) {
	var (
		n        access.Note
		entityID sql.NullString
		kind     sql.NullString
	)
	err := t.tx.QueryRowContext(ctx, `
		select n.id, n.author_id, n.entity_id, e.kind, n.body, n.created_at
		from notes n
		left join entities e on e.id = n.entity_id
		where n.id=$1
	`, id).Scan(&n.ID, &n.AuthorID, &entityID, &kind, &n.Body, &n.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return access.Note{}, fmt.Errorf("%w: note %s", access.ErrNotFound, id)
	}
	if err != nil {
		return access.Note{}, err
	}
	if entityID.Valid && kind.Valid {
		n.Entity = &access.EntityRef{Kind: access.EntityKind(kind.String), ID: entityID.String}
	}
	return n, nil
}

func (t *accessTx) DeleteNote(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `delete from notes where id=$1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: note %s", access.ErrNotFound, id)
	}
	return nil
}

func scanEntities(rows *sql.Rows) ([]access.Entity, error) {
	var out []access.Entity
	for rows.Next() {
		var (
			e        access.Entity
			parentID sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Kind, &parentID, &e.Name, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		if parentID.Valid {
			e.ParentID = parentID.String
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
