//go:build windows

package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"unsafe"
)

const (
	_lockFileExclusive                     = 2
	_lockFileFailImmediately               = 1
	_lockViolation           syscall.Errno = 0x21
)

var (
	_modkernel32      = syscall.NewLazyDLL("kernel32.dll")
	_procLockFileEx   = _modkernel32.NewProc("LockFileEx")
	_procUnlockFileEx = _modkernel32.NewProc("UnlockFileEx")
)

// AcquireLock blocks until it holds an exclusive advisory lock on the lock
// file next to statePath, creating the parent directory if needed. The
// returned release function must be called (usually deferred).
func AcquireLock(statePath string) (release func(), err error) {
	return lock(lockPath(statePath), _lockFileExclusive)
}

// TryReviewLock takes the review-in-flight lock next to statePath without
// blocking. It returns ErrLocked while another process holds it. The lock is
// separate from the state lock so edits keep accumulating during a review.
func TryReviewLock(statePath string) (release func(), err error) {
	return lock(reviewLockPath(statePath), _lockFileExclusive|_lockFileFailImmediately)
}

func lock(path string, flags int) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("lock: create state dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("lock: open %s: %w", path, err)
	}
	handle := syscall.Handle(f.Fd())
	var overlapped syscall.Overlapped
	r1, _, err := _procLockFileEx.Call(
		uintptr(handle),
		uintptr(flags),
		0,
		1,
		0,
		uintptr(unsafe.Pointer(&overlapped)),
	)
	if r1 == 0 {
		_ = f.Close()
		if err != nil && errors.Is(err, _lockViolation) {
			return nil, ErrLocked
		}
		if err == nil {
			err = errors.New("LockFileEx failed")
		}
		return nil, fmt.Errorf("lock: LockFileEx: %w", err)
	}
	return func() {
		var overlapped syscall.Overlapped
		_, _, _ = _procUnlockFileEx.Call(
			uintptr(handle),
			0,
			1,
			0,
			uintptr(unsafe.Pointer(&overlapped)),
		)
		_ = f.Close()
	}, nil
}
