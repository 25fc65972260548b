package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// LockFileName is the indexer lock inside the data directory.
const LockFileName = "index.lock"

const (
	// lockWait bounds how long Run waits out another holder of the lock.
	lockWait       = 500 * time.Millisecond
	lockRetryDelay = 20 * time.Millisecond
)

// FileLock is a cross-process lock held for the duration of an index run.
type FileLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewFileLock creates a lock at <dataDir>/index.lock.
func NewFileLock(dataDir string) *FileLock {
	lockPath := filepath.Join(dataDir, LockFileName)
	return &FileLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// TryLock attempts to acquire the lock without blocking.
// It returns false if another process holds it.
func (l *FileLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if acquired {
		l.locked = true
	}
	return acquired, nil
}

// TryLockWithin retries TryLock until wait elapses, so short shared holds
// such as a status check do not fail the caller.
func (l *FileLock) TryLockWithin(ctx context.Context, wait time.Duration) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	acquired, err := l.flock.TryLockContext(waitCtx, lockRetryDelay)
	switch {
	case acquired:
		l.locked = true
		return true, nil
	case ctx.Err() != nil:
		return false, ctx.Err()
	case err == nil, waitCtx.Err() != nil:
		return false, nil
	default:
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
}

// Held reports whether any process holds the lock exclusively. It takes a
// shared lock for the duration of the check only.
func (l *FileLock) Held() (bool, error) {
	if _, err := os.Stat(l.path); os.IsNotExist(err) {
		return false, nil
	}
	shared := flock.New(l.path, flock.SetFlag(os.O_RDONLY))
	ok, err := shared.TryRLock()
	if err != nil {
		return false, fmt.Errorf("failed to check lock: %w", err)
	}
	if ok {
		_ = shared.Unlock()
	}
	return !ok, nil
}

// Unlock releases the lock. Unlocking an unheld lock is a no-op.
func (l *FileLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *FileLock) Path() string {
	return l.path
}

// IsLocked reports whether this instance holds the lock.
func (l *FileLock) IsLocked() bool {
	return l.locked
}
