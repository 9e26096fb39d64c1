package rates

import (
	"context"
	"time"
)

// Repository defines persistence for exchange-rate snapshots.
// The table is append-only: snapshots are inserted and read, never updated
// or deleted.
type Repository interface {
	// Latest retrieves the most recent snapshot by effective timestamp.
	// Returns apperror.CodeNotFound when the store is empty.
	Latest(ctx context.Context) (*Snapshot, error)

	// Insert appends a new snapshot.
	Insert(ctx context.Context, snap *Snapshot) error

	// ByEffectiveAt retrieves the snapshot with the exact effective
	// timestamp (a rate version resolved back to its snapshot).
	ByEffectiveAt(ctx context.Context, at time.Time) (*Snapshot, error)

	// History lists snapshots newest-first, capped at limit.
	History(ctx context.Context, limit int) ([]*Snapshot, error)
}
