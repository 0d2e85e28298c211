package redis

import (
	"context"
	"time"

	"github.com/google/uuid"

	"photovault-import/internal/domain"
	"photovault-import/internal/domain/ports/repository"
)

var _ repository.JobLocker = (*Locker)(nil)

// Locker serializes per-job mutations across processes with a SETNX lock.
// The token guards against releasing a lock that expired and was re-acquired
// by someone else.
type Locker struct {
	client RedisClient
}

func NewLocker(client RedisClient) *Locker {
	return &Locker{client: client}
}

func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	for i := 0; i < 10; i++ {
		ok, err := l.client.SetNX(ctx, key, token, ttl)
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	return "", domain.ErrLockHeld
}

const luaUnlock = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`

func (l *Locker) Unlock(ctx context.Context, key, token string) error {
	_, err := l.client.Eval(ctx, luaUnlock, []string{key}, token)
	return err
}
