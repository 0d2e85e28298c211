package repository

import (
	"context"
	"time"
)

// JobLocker serializes mutations of a single job record. Concurrent webhook
// deliveries for the same job must not interleave partial field updates, so
// every orchestrator mutation runs under this lock.
type JobLocker interface {
	// TryLock acquires the lock for key and returns an unlock token.
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}
