package driven

import (
	"context"
	"time"
)

// RunLock is a cross-process mutual exclusion lock keyed by name.
type RunLock interface {
	// Acquire takes the lock for ttl. It returns false if another owner holds it.
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)

	// Extend refreshes the ttl of a lock this owner holds.
	Extend(ctx context.Context, name string, ttl time.Duration) (bool, error)

	// Release drops the lock if this owner holds it.
	Release(ctx context.Context, name string) error
}
