package ports

import (
	"context"
	"errors"
	"time"
)

// ErrLockLost is returned by an UnlockFunc when the lock expired before the
// release and may now belong to another replica.
var ErrLockLost = errors.New("session lock expired before release")

// UnlockFunc releases a session lock. Calling it more than once is harmless.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker serializes the turns of one session across replicas sharing
// a session store. The in-process lock of session.Manager is taken first.
type DistributedLocker interface {
	// Lock blocks until the session lock is held or ctx ends. The lock expires
	// after ttl even if the holder never releases it.
	Lock(ctx context.Context, sessionID string, ttl time.Duration) (UnlockFunc, error)
}
