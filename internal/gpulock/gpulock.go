// Package gpulock serializes hardware-encoder use across every worker
// process on a host behind a single OS-level advisory file lock.
package gpulock

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/flock"

	"ripqueue/internal/xerrors"
)

// Lock wraps a host-wide advisory file lock. The entire
// hardware-encoder pipeline for one work item holds this lock,
// acquired before the first hardware attempt and released on every
// exit path out of the hardware states, including failure.
type Lock struct {
	fl *flock.Flock
}

// New opens (without acquiring) the lock file at path.
func New(path string) *Lock {
	return &Lock{fl: flock.New(path)}
}

// Acquire blocks until the lock is held or ctx is cancelled, retrying
// at retryInterval. Multiple cooperating worker processes are expected
// to queue here, so this deliberately does not fail fast like a
// single-instance daemon lock would.
func (l *Lock) Acquire(ctx context.Context, retryInterval time.Duration) error {
	if retryInterval <= 0 {
		retryInterval = 500 * time.Millisecond
	}
	for {
		ok, err := l.fl.TryLock()
		if err != nil {
			return fmt.Errorf("%w: acquire gpu lock: %v", xerrors.ErrTransient, err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}

// Release drops the lock. Safe to call even if Acquire was never
// called or already failed.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}
