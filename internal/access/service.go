package access

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"hellai.org/internal/ids"
)

// minCreateRole is the role required at the parent node to create a child of
// the given kind. Organizations have no parent and no entry here: any
// authenticated user may create one.
var minCreateRole = map[EntityKind]Role{
	KindProject: RoleManager,
	KindTask:    RoleMember,
	KindSubtask: RoleMember,
}

const retryBackoff = 100 * time.Millisecond

// Service orchestrates entity lifecycle operations as atomic transactions
// that keep the access graph consistent.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService constructs the lifecycle service over a transactional store.
func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("access store is required")
	}
	return &Service{store: store, now: time.Now}, nil
}

// WithClock overrides the time source. Only intended for tests.
func (s *Service) WithClock(fn func() time.Time) *Service {
	if fn != nil {
		s.now = fn
	}
	return s
}

// ResolveRole computes the requester's effective role at an entity in a
// transaction of its own. Read-only, so a transient failure is retried once.
func (s *Service) ResolveRole(ctx context.Context, userID string, ref EntityRef) (Role, error) {
	var role Role
	err := s.readTx(ctx, func(tx Tx) error {
		if _, err := tx.GetEntity(ctx, ref); err != nil {
			return err
		}
		var err error
		role, err = Resolve(ctx, tx, userID, ref)
		return err
	})
	return role, err
}

// CreateEntity inserts a new node and an Owner grant for its creator in one
// transaction. For non-organization kinds the creator must hold the
// per-kind minimum role at the parent.
func (s *Service) CreateEntity(ctx context.Context, kind EntityKind, parentID, name, creatorID string) (Entity, error) {
	if !kind.Valid() {
		return Entity{}, fmt.Errorf("%w: unknown entity kind %q", ErrValidation, kind)
	}
	name, err := ValidateName(name)
	if err != nil {
		return Entity{}, err
	}
	creatorID = strings.TrimSpace(creatorID)
	if creatorID == "" {
		return Entity{}, fmt.Errorf("%w: creator is required", ErrValidation)
	}

	var parentRef EntityRef
	if parentKind, ok := kind.ParentKind(); ok {
		parentRef, err = NewRef(parentKind, parentID)
		if err != nil {
			return Entity{}, err
		}
	} else if strings.TrimSpace(parentID) != "" {
		return Entity{}, fmt.Errorf("%w: organizations have no parent", ErrValidation)
	}

	now := s.now().UTC()
	entity := Entity{
		ID:        ids.New(),
		Kind:      kind,
		ParentID:  parentRef.ID,
		Name:      name,
		CreatedBy: creatorID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.store.WithinTx(ctx, func(tx Tx) error {
		if !parentRef.IsZero() {
			if _, err := tx.GetEntity(ctx, parentRef); err != nil {
				return err
			}
			if _, err := Authorize(ctx, tx, creatorID, parentRef, minCreateRole[kind]); err != nil {
				return err
			}
		}
		if err := tx.InsertEntity(ctx, &entity); err != nil {
			return err
		}
		return tx.UpsertGrant(ctx, Grant{
			UserID:    creatorID,
			Entity:    entity.Ref(),
			Role:      RoleOwner,
			CreatedAt: now,
		})
	})
	if err != nil {
		return Entity{}, err
	}
	return entity, nil
}

// DeleteEntity removes a node and everything beneath it. Requires an
// Administrator-or-above role resolved at the node itself.
func (s *Service) DeleteEntity(ctx context.Context, kind EntityKind, id, requesterID string) error {
	ref, err := NewRef(kind, id)
	if err != nil {
		return err
	}
	return s.store.WithinTx(ctx, func(tx Tx) error {
		if _, err := tx.GetEntity(ctx, ref); err != nil {
			return err
		}
		if _, err := Authorize(ctx, tx, requesterID, ref, RoleAdministrator); err != nil {
			return err
		}
		return tx.DeleteEntity(ctx, ref)
	})
}

// AddMember upserts a grant at an entity. The requester's resolved role must
// be at least the role being granted and strictly above any grant being
// overwritten.
func (s *Service) AddMember(ctx context.Context, kind EntityKind, id, targetUserID string, role Role, requesterID string) (Grant, error) {
	ref, err := NewRef(kind, id)
	if err != nil {
		return Grant{}, err
	}
	if !role.Valid() {
		return Grant{}, fmt.Errorf("%w: role %d is not defined", ErrInvalidRole, role)
	}
	targetUserID = strings.TrimSpace(targetUserID)
	if targetUserID == "" {
		return Grant{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}

	grant := Grant{
		UserID:    targetUserID,
		Entity:    ref,
		Role:      role,
		CreatedAt: s.now().UTC(),
	}
	err = s.store.WithinTx(ctx, func(tx Tx) error {
		if _, err := tx.GetEntity(ctx, ref); err != nil {
			return err
		}
		requesterRole, err := Authorize(ctx, tx, requesterID, ref, role)
		if err != nil {
			return err
		}
		if existing, ok, err := tx.Grant(ctx, targetUserID, ref); err != nil {
			return err
		} else if ok {
			if requesterRole <= existing {
				return fmt.Errorf("%w: cannot override an equal or higher grant", ErrPermissionDenied)
			}
			if existing == RoleOwner {
				// Downgrading an Owner is subject to the same floor as
				// removing one.
				if err := s.ensureNotLastOwner(ctx, tx, ref); err != nil {
					return err
				}
			}
		}
		return tx.UpsertGrant(ctx, grant)
	})
	if err != nil {
		return Grant{}, err
	}
	return grant, nil
}

// RemoveMember deletes the target's grant at an entity. The requester must
// resolve to at least the target's current role, and the entity can never be
// left without an Owner-level grant.
func (s *Service) RemoveMember(ctx context.Context, kind EntityKind, id, targetUserID, requesterID string) error {
	ref, err := NewRef(kind, id)
	if err != nil {
		return err
	}
	return s.store.WithinTx(ctx, func(tx Tx) error {
		if _, err := tx.GetEntity(ctx, ref); err != nil {
			return err
		}
		targetRole, ok, err := tx.Grant(ctx, targetUserID, ref)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: no grant for user at this entity", ErrNotFound)
		}
		if _, err := Authorize(ctx, tx, requesterID, ref, targetRole); err != nil {
			return err
		}
		if targetRole == RoleOwner {
			if err := s.ensureNotLastOwner(ctx, tx, ref); err != nil {
				return err
			}
		}
		return tx.DeleteGrant(ctx, targetUserID, ref)
	})
}

func (s *Service) ensureNotLastOwner(ctx context.Context, tx Tx, ref EntityRef) error {
	owners, err := tx.CountGrantsWithRole(ctx, ref, RoleOwner)
	if err != nil {
		return err
	}
	if owners <= 1 {
		return ErrLastOwner
	}
	return nil
}

// CreateNote attaches free text to an entity the author can access, or
// stores a personal note when ref is nil.
func (s *Service) CreateNote(ctx context.Context, authorID string, ref *EntityRef, body string) (Note, error) {
	authorID = strings.TrimSpace(authorID)
	if authorID == "" {
		return Note{}, fmt.Errorf("%w: author is required", ErrValidation)
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return Note{}, fmt.Errorf("%w: note body is required", ErrValidation)
	}
	if ref != nil {
		validated, err := NewRef(ref.Kind, ref.ID)
		if err != nil {
			return Note{}, err
		}
		ref = &validated
	}

	note := Note{
		ID:        ids.New(),
		AuthorID:  authorID,
		Entity:    ref,
		Body:      body,
		CreatedAt: s.now().UTC(),
	}
	err := s.store.WithinTx(ctx, func(tx Tx) error {
		if ref != nil {
			if _, err := tx.GetEntity(ctx, *ref); err != nil {
				return err
			}
			if _, err := Authorize(ctx, tx, authorID, *ref, RoleGuest); err != nil {
				return err
			}
		}
		return tx.InsertNote(ctx, &note)
	})
	if err != nil {
		return Note{}, err
	}
	return note, nil
}

// DeleteNote removes a note. Authors always may; for attached notes an
// Administrator at the referenced entity may as well. Personal notes stay
// invisible to everyone but their author, so for those a foreign requester
// gets ErrNotFound rather than a hint the note exists.
func (s *Service) DeleteNote(ctx context.Context, noteID, requesterID string) error {
	noteID = strings.TrimSpace(noteID)
	if noteID == "" {
		return fmt.Errorf("%w: note id is required", ErrValidation)
	}
	return s.store.WithinTx(ctx, func(tx Tx) error {
		note, err := tx.GetNote(ctx, noteID)
		if err != nil {
			return err
		}
		if note.AuthorID != requesterID {
			if note.Entity == nil {
				return ErrNotFound
			}
			if _, err := Authorize(ctx, tx, requesterID, *note.Entity, RoleAdministrator); err != nil {
				return err
			}
		}
		return tx.DeleteNote(ctx, noteID)
	})
}

// UserData is the per-user overview returned by the read API.
type UserData struct {
	Organization  *Entity  `json:"organization,omitempty"`
	Organizations []Entity `json:"organizations,omitempty"`
	Projects      []Entity `json:"projects,omitempty"`
}

// UserOverview lists the organizations the user holds an organization-level
// grant on, and, when orgID is given, that organization plus the projects
// beneath it the user can resolve any role at.
func (s *Service) UserOverview(ctx context.Context, userID, orgID string) (UserData, error) {
	var data UserData
	err := s.readTx(ctx, func(tx Tx) error {
		data = UserData{}
		if strings.TrimSpace(orgID) == "" {
			orgs, err := tx.ListUserOrganizations(ctx, userID)
			if err != nil {
				return err
			}
			data.Organizations = orgs
			return nil
		}
		ref, err := NewRef(KindOrganization, orgID)
		if err != nil {
			return err
		}
		org, err := tx.GetEntity(ctx, ref)
		if err != nil {
			return err
		}
		if _, err := Authorize(ctx, tx, userID, ref, RoleGuest); err != nil {
			return err
		}
		projects, err := tx.ListChildren(ctx, ref)
		if err != nil {
			return err
		}
		visible := make([]Entity, 0, len(projects))
		for _, p := range projects {
			if _, err := Resolve(ctx, tx, userID, p.Ref()); err != nil {
				if errors.Is(err, ErrNoAccess) {
					continue
				}
				return err
			}
			visible = append(visible, p)
		}
		data.Organization = &org
		data.Projects = visible
		return nil
	})
	if err != nil {
		return UserData{}, err
	}
	return data, nil
}

// readTx runs a read-only transaction, retrying once on a transient storage
// failure. Mutations never retry: atomicity, not retries, prevents partial
// writes.
func (s *Service) readTx(ctx context.Context, fn func(tx Tx) error) error {
	err := s.store.WithinTx(ctx, fn)
	if errors.Is(err, ErrUnavailable) {
		select {
		case <-ctx.Done():
			return err
		case <-time.After(retryBackoff):
		}
		err = s.store.WithinTx(ctx, fn)
	}
	return err
}
