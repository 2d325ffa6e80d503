package usage

import "context"

// Store is durable per-user record persistence. Both backends implement the
// same contract so the fallback decorator can swap them per call.
type Store interface {
	// Get returns the record for userID, creating and persisting the default
	// record on first access.
	Get(ctx context.Context, userID string) (Record, error)

	// Update reads the current record (or the default), applies mutate,
	// stamps UpdatedAt, persists and returns the new value.
	Update(ctx context.Context, userID string, mutate func(*Record)) (Record, error)
}
