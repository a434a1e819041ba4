package planner

import (
	"context"
)

// UserDirectory is the external store that owns each user's free-form
// metadata bag. The planner document is one key inside it.
// This interface is implemented by the infrastructure layer.
type UserDirectory interface {
	// GetMetadata returns the user's metadata bag. A user with no record
	// yields an empty bag, not an error.
	GetMetadata(ctx context.Context, userID string) (map[string]any, error)

	// UpdateMetadata replaces the user's metadata bag with merged.
	// ok is false when the store did not confirm the write.
	UpdateMetadata(ctx context.Context, userID string, merged map[string]any) (ok bool, err error)
}

// Locker serializes planner read-modify-write cycles for one user.
// The returned unlock func must always be called.
type Locker interface {
	Lock(ctx context.Context, userID string) (unlock func(), err error)
}
