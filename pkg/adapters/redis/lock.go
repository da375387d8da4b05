package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aretw0/parley/pkg/ports"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

// ErrLockAcquire wraps backend failures while taking a session lock.
var ErrLockAcquire = errors.New("failed to acquire session lock")

// DefaultRetryInterval is the polling period of a contended lock.
const DefaultRetryInterval = 100 * time.Millisecond

// releaseScript deletes the key only while it still holds the caller's token.
var releaseScript = backend.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Locker implements ports.DistributedLocker with SET NX PX keys named
// <prefix><session id>:lock.
type Locker struct {
	client *backend.Client
	prefix string
	retry  time.Duration
}

// LockerOption configures a Locker.
type LockerOption func(*Locker)

// WithRetryInterval sets how often a contended lock is polled.
func WithRetryInterval(d time.Duration) LockerOption {
	return func(l *Locker) {
		if d > 0 {
			l.retry = d
		}
	}
}

// NewLocker creates a locker sharing the store's client and key prefix.
func NewLocker(client *backend.Client, prefix string, opts ...LockerOption) *Locker {
	l := &Locker{client: client, prefix: prefix, retry: DefaultRetryInterval}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Key returns the redis key guarding sessionID.
func (l *Locker) Key(sessionID string) string {
	return l.prefix + sessionID + ":lock"
}

// Lock implements ports.DistributedLocker.
func (l *Locker) Lock(ctx context.Context, sessionID string, ttl time.Duration) (ports.UnlockFunc, error) {
	key := l.Key(sessionID)
	token := uuid.NewString()

	var ticker *time.Ticker
	for {
		ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			return nil, fmt.Errorf("%w '%s': %w", ErrLockAcquire, sessionID, err)
		case ok:
			return l.release(key, token), nil
		}

		if ticker == nil {
			ticker = time.NewTicker(l.retry)
			defer ticker.Stop()
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *Locker) release(key, token string) ports.UnlockFunc {
	var once sync.Once
	var err error
	return func(ctx context.Context) error {
		once.Do(func() {
			var n int64
			n, err = releaseScript.Run(ctx, l.client, []string{key}, token).Int64()
			if err == nil && n == 0 {
				err = ports.ErrLockLost
			}
		})
		return err
	}
}
