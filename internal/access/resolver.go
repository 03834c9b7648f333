package access

import (
	"context"
	"errors"
)

// Snapshot is a consistent read view of the access graph. Implementations
// back it with the same transaction that executes the mutation being
// authorized, so there is no window between check and effect.
type Snapshot interface {
	// Parent returns the reference one level up from ref. ok is false when
	// ref is a root organization. A missing entity is ErrNotFound.
	Parent(ctx context.Context, ref EntityRef) (parent EntityRef, ok bool, err error)
	// Grant returns the role granted to the user at exactly this node.
	Grant(ctx context.Context, userID string, ref EntityRef) (Role, bool, error)
}

// Resolve computes the user's effective role at ref by walking the ancestor
// chain from most specific to least specific. The nearest grant always wins,
// even when a farther grant would be higher: a Guest grant on one task
// deliberately downgrades a project-level Manager inside that task. Without
// a grant on any ancestor the result is NoAccess with ErrNoAccess.
func Resolve(ctx context.Context, snap Snapshot, userID string, ref EntityRef) (Role, error) {
	cur := ref
	for {
		role, ok, err := snap.Grant(ctx, userID, cur)
		if err != nil {
			return NoAccess, err
		}
		if ok {
			return role, nil
		}
		parent, ok, err := snap.Parent(ctx, cur)
		if err != nil {
			return NoAccess, err
		}
		if !ok {
			return NoAccess, ErrNoAccess
		}
		cur = parent
	}
}

// Authorize resolves the user's role at ref and compares it against the
// operation's minimum. Both an insufficient role and the absence of any
// grant surface as ErrPermissionDenied; a missing entity stays ErrNotFound.
func Authorize(ctx context.Context, snap Snapshot, userID string, ref EntityRef, min Role) (Role, error) {
	role, err := Resolve(ctx, snap, userID, ref)
	if err != nil {
		if errors.Is(err, ErrNoAccess) {
			return NoAccess, ErrPermissionDenied
		}
		return NoAccess, err
	}
	if !role.AtLeast(min) {
		return role, ErrPermissionDenied
	}
	return role, nil
}
