package fileutil

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"
)

// LockSuffix is appended to an artifact path to form its lock file.
const LockSuffix = ".lock"

const lockRetryDelay = 50 * time.Millisecond

// ErrLockTimeout reports that another process held the artifact lock for the
// whole wait budget.
var ErrLockTimeout = errors.New("artifact lock timeout")

// Lock takes an exclusive advisory lock on "<path>.lock", waiting at most
// timeout. The returned release function unlocks and removes the lock file so
// synced folders hold no leftovers between runs.
func Lock(ctx context.Context, path string, timeout time.Duration) (func(), error) {
	lockPath := path + LockSuffix
	fileLock := flock.New(lockPath)

	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ok, err := fileLock.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("lock %s: %w", lockPath, err)
	}
	if !ok {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s", ErrLockTimeout, lockPath)
	}

	return func() {
		_ = fileLock.Unlock()
		_ = os.Remove(lockPath)
	}, nil
}
