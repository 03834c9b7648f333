package access

import "context"

// Store runs access-graph work inside a single storage transaction.
// Authorization reads and the mutation they guard share one Tx.
type Store interface {
	// WithinTx executes fn in a read-committed (or stronger) transaction.
	// A non-nil error from fn aborts the transaction; no effect is visible.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the transactional view the lifecycle service operates on.
type Tx interface {
	Snapshot

	GetEntity(ctx context.Context, ref EntityRef) (Entity, error)
	InsertEntity(ctx context.Context, e *Entity) error
	// DeleteEntity removes the node and cascades to all descendants and to
	// every grant and note referencing any of them.
	DeleteEntity(ctx context.Context, ref EntityRef) error
	ListChildren(ctx context.Context, parent EntityRef) ([]Entity, error)
	ListUserOrganizations(ctx context.Context, userID string) ([]Entity, error)

	UpsertGrant(ctx context.Context, g Grant) error
	DeleteGrant(ctx context.Context, userID string, ref EntityRef) error
	CountGrantsWithRole(ctx context.Context, ref EntityRef, role Role) (int, error)

	InsertNote(ctx context.Context, n *Note) error
	GetNote(ctx context.Context, id string) (Note, error)
	DeleteNote(ctx context.Context, id string) error
}
