package access

import (
	"fmt"
	"strings"
	"time"
)

// EntityKind names one level of the four-level hierarchy.
type EntityKind string

const (
	KindOrganization EntityKind = "organization"
	KindProject      EntityKind = "project"
	KindTask         EntityKind = "task"
	KindSubtask      EntityKind = "subtask"
)

// parentKinds is the ordered ancestor lookup table the resolver walks.
var parentKinds = map[EntityKind]EntityKind{
	KindSubtask: KindTask,
	KindTask:    KindProject,
	KindProject: KindOrganization,
}

// Valid reports whether the kind names a hierarchy level.
func (k EntityKind) Valid() bool {
	switch k {
	case KindOrganization, KindProject, KindTask, KindSubtask:
		return true
	}
	return false
}

// ParentKind returns the hierarchy level above k, false for organizations.
func (k EntityKind) ParentKind() (EntityKind, bool) {
	p, ok := parentKinds[k]
	return p, ok
}

// EntityRef identifies exactly one node in exactly one hierarchy level.
// It replaces the four-nullable-column pattern of the source schema with a
// tagged pair validated once at construction.
type EntityRef struct {
	Kind EntityKind `json:"kind"`
	ID   string     `json:"id"`
}

// NewRef validates and builds an entity reference.
func NewRef(kind EntityKind, id string) (EntityRef, error) {
	id = strings.TrimSpace(id)
	if !kind.Valid() {
		return EntityRef{}, fmt.Errorf("%w: unknown entity kind %q", ErrValidation, kind)
	}
	if id == "" {
		return EntityRef{}, fmt.Errorf("%w: entity id is required", ErrValidation)
	}
	return EntityRef{Kind: kind, ID: id}, nil
}

// IsZero reports whether the reference is unset.
func (r EntityRef) IsZero() bool { return r.Kind == "" && r.ID == "" }

func (r EntityRef) String() string { return string(r.Kind) + "/" + r.ID }

// Entity is one node of the hierarchy. ParentID is empty for organizations.
type Entity struct {
	ID        string     `json:"id"`
	Kind      EntityKind `json:"kind"`
	ParentID  string     `json:"parent_id,omitempty"`
	Name      string     `json:"name"`
	CreatedBy string     `json:"created_by"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Ref returns the entity's reference.
func (e Entity) Ref() EntityRef { return EntityRef{Kind: e.Kind, ID: e.ID} }

// Note is free text attached to at most one entity. A note without an
// entity reference is personal and visible only to its author.
type Note struct {
	ID        string     `json:"id"`
	AuthorID  string     `json:"author_id"`
	Entity    *EntityRef `json:"entity,omitempty"`
	Body      string     `json:"body"`
	CreatedAt time.Time  `json:"created_at"`
}

// Grant ties a user to a role at exactly one entity.
type Grant struct {
	UserID    string    `json:"user_id"`
	Entity    EntityRef `json:"entity"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

const maxNameLength = 255

// ValidateName checks entity display names before any write.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", ErrValidation)
	}
	if len(name) > maxNameLength {
		return "", fmt.Errorf("%w: name exceeds %d characters", ErrValidation, maxNameLength)
	}
	return name, nil
}
