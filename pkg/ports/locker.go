package ports

import (
	"context"
	"time"
)

// UnlockFunc releases a distributed lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker serializes work on one session across replicas, so a
// review checkpoint is never resumed twice.
type DistributedLocker interface {
	// Lock blocks until the lock for key is held or ctx is done. The lock
	// expires after ttl if the holder disappears.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
