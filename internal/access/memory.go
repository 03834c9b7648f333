package access

import (
	"context"
	"sync"
)

// InMemory implements Store with in-process maps. It backs the service and
// HTTP tests and keeps the same observable semantics as the Postgres store,
// including total cascade on delete.
type InMemory struct {
	mu       sync.Mutex
	entities map[EntityRef]Entity
	grants   map[EntityRef]map[string]Grant
	notes    map[string]Note
}

// NewInMemory creates an empty access graph.
func NewInMemory() *InMemory {
	return &InMemory{
		entities: make(map[EntityRef]Entity),
		grants:   make(map[EntityRef]map[string]Grant),
		notes:    make(map[string]Note),
	}
}

// WithinTx serializes all work under one lock; fn sees a consistent view
// and its effects become visible atomically with respect to other callers.
func (s *InMemory) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return ErrUnavailable
	}
	return fn((*memTx)(s))
}

type memTx InMemory

func (t *memTx) GetEntity(ctx context.Context, ref EntityRef) (Entity, error) {
	e, ok := t.entities[ref]
	if !ok {
		return Entity{}, ErrNotFound
	}
	return e, nil
}

func (t *memTx) Parent(ctx context.Context, ref EntityRef) (EntityRef, bool, error) {
	e, ok := t.entities[ref]
	if !ok {
		return EntityRef{}, false, ErrNotFound
	}
	parentKind, ok := e.Kind.ParentKind()
	if !ok {
		return EntityRef{}, false, nil
	}
	return EntityRef{Kind: parentKind, ID: e.ParentID}, true, nil
}

func (t *memTx) Grant(ctx context.Context, userID string, ref EntityRef) (Role, bool, error) {
	g, ok := t.grants[ref][userID]
	if !ok {
		return NoAccess, false, nil
	}
	return g.Role, true, nil
}

func (t *memTx) InsertEntity(ctx context.Context, e *Entity) error {
	ref := e.Ref()
	if _, exists := t.entities[ref]; exists {
		return ErrConflict
	}
	for other, existing := range t.entities {
		if other.Kind == e.Kind && existing.ParentID == e.ParentID && existing.Name == e.Name {
			return ErrConflict
		}
	}
	t.entities[ref] = *e
	return nil
}

func (t *memTx) DeleteEntity(ctx context.Context, ref EntityRef) error {
	if _, ok := t.entities[ref]; !ok {
		return ErrNotFound
	}
	t.deleteSubtree(ref)
	return nil
}

func (t *memTx) deleteSubtree(ref EntityRef) {
	for other, e := range t.entities {
		if parentKind, ok := other.Kind.ParentKind(); ok &&
			parentKind == ref.Kind && e.ParentID == ref.ID {
			t.deleteSubtree(other)
		}
	}
	delete(t.entities, ref)
	delete(t.grants, ref)
	for id, n := range t.notes {
		if n.Entity != nil && *n.Entity == ref {
			delete(t.notes, id)
		}
	}
}

func (t *memTx) ListChildren(ctx context.Context, parent EntityRef) ([]Entity, error) {
	var out []Entity
	for ref, e := range t.entities {
		if parentKind, ok := ref.Kind.ParentKind(); ok &&
			parentKind == parent.Kind && e.ParentID == parent.ID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (t *memTx) ListUserOrganizations(ctx context.Context, userID string) ([]Entity, error) {
	var out []Entity
	for ref, grants := range t.grants {
		if ref.Kind != KindOrganization {
			continue
		}
		if _, ok := grants[userID]; !ok {
			continue
		}
		if e, ok := t.entities[ref]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (t *memTx) UpsertGrant(ctx context.Context, g Grant) error {
	byUser, ok := t.grants[g.Entity]
	if !ok {
		byUser = make(map[string]Grant)
		t.grants[g.Entity] = byUser
	}
	byUser[g.UserID] = g
	return nil
}

func (t *memTx) DeleteGrant(ctx context.Context, userID string, ref EntityRef) error {
	if _, ok := t.grants[ref][userID]; !ok {
		return ErrNotFound
	}
	delete(t.grants[ref], userID)
	return nil
}

func (t *memTx) CountGrantsWithRole(ctx context.Context, ref EntityRef, role Role) (int, error) {
	n := 0
	for _, g := range t.grants[ref] {
		if g.Role == role {
			n++
		}
	}
	return n, nil
}

func (t *memTx) InsertNote(ctx context.Context, n *Note) error {
	if _, exists := t.notes[n.ID]; exists {
		return ErrConflict
	}
	t.notes[n.ID] = *n
	return nil
}

func (t *memTx) GetNote(ctx context.Context, id string) (Note, error) {
	n, ok := t.notes[id]
	if !ok {
		return Note{}, ErrNotFound
	}
	return n, nil
}

func (t *memTx) DeleteNote(ctx context.Context, id string) error {
	if _, ok := t.notes[id]; !ok {
		return ErrNotFound
	}
	delete(t.notes, id)
	return nil
}
