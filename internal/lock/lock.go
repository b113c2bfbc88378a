// Package lock provides the per-document exclusive lock that keeps two
// pipeline runs from racing on the same document.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrAlreadyLocked is returned when the document is held by another run.
var ErrAlreadyLocked = errors.New("document is already locked")

// releaseScript deletes the lock only if this holder still owns it, so an
// expired lock reacquired by another run is never released from here.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Locker acquires exclusive document locks backed by Redis.
type Locker struct {
	client *redis.Client
}

// New initializes a Locker and verifies connectivity.
func New(addr, password string, db int) (*Locker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return &Locker{client: client}, nil
}

// Close closes the underlying Redis connection.
func (l *Locker) Close() error { return l.client.Close() }

// Acquire takes the lock for docID with the given expiry. It fails fast with
// ErrAlreadyLocked on contention. The returned release function is safe to
// call on both success and failure paths.
func (l *Locker) Acquire(ctx context.Context, docID int64, ttl time.Duration) (func(context.Context) error, error) {
	key := lockKey(docID)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("lock %s: %w", key, ErrAlreadyLocked)
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("failed to release lock %s: %w", key, err)
		}
		return nil
	}
	return release, nil
}

func lockKey(docID int64) string {
	return fmt.Sprintf("doclock:%d", docID)
}
