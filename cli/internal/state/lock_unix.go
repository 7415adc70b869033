//go:build unix

package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// AcquireLock blocks until it holds an exclusive advisory lock on the lock
// file next to statePath, creating the parent directory if needed. The
// returned release function must be called (usually deferred).
func AcquireLock(statePath string) (release func(), err error) {
	return lock(lockPath(statePath), syscall.LOCK_EX)
}

// TryReviewLock takes the review-in-flight lock next to statePath without
// blocking. It returns ErrLocked while another process holds it. The lock is
// separate from the state lock so edits keep accumulating during a review.
func TryReviewLock(statePath string) (release func(), err error) {
	return lock(reviewLockPath(statePath), syscall.LOCK_EX|syscall.LOCK_NB)
}

func lock(path string, how int) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("lock: create state dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("lock: open %s: %w", path, err)
	}
	if err := syscall.Flock(int(f.Fd()), how); err != nil {
		_ = f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("lock: flock: %w", err)
	}
	return func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		_ = f.Close()
	}, nil
}
