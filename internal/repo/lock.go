package repo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// ErrLockTimeout is returned when a lock stays held past the wait budget.
var ErrLockTimeout = errors.New("lock wait timed out")

const lockPollInterval = 25 * time.Millisecond

// FileLock is an exclusive advisory lock on a file. The kernel drops it when the
// holding process exits, so a crashed holder never blocks later writers.
type FileLock struct {
	path    string
	timeout time.Duration
}

// NewFileLock creates a lock at path.
func NewFileLock(path string, timeout time.Duration) *FileLock {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &FileLock{path: path, timeout: timeout}
}

// Path returns the lock file location.
func (l *FileLock) Path() string {
	return l.path
}

// Acquire blocks until the lock is held, ctx is done, or the timeout elapses.
// The returned function releases the lock.
func (l *FileLock) Acquire(ctx context.Context) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	// Each acquisition opens its own descriptor so goroutines of one process
	// exclude each other the same way separate processes do.
	fl := flock.New(l.path)
	waitCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	locked, err := fl.TryLockContext(waitCtx, lockPollInterval)
	if !locked {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err == nil || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s: %w", l.path, ErrLockTimeout)
		}
		return nil, fmt.Errorf("lock %s: %w", l.path, err)
	}
	return func() { _ = fl.Unlock() }, nil
}
