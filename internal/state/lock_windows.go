// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hookguard Contributors

//go:build windows

package state

import (
	"os"

	"golang.org/x/sys/windows"
)

// lockHandle is the open lock file; LockFileEx is released on close.
type lockHandle = *os.File

// tryLock acquires a non-blocking exclusive LockFileEx on path, creating the
// file if needed.
func tryLock(path string) (lockHandle, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	ol := new(windows.Overlapped)
	err = windows.LockFileEx(windows.Handle(f.Fd()),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0, 1, 0, ol)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

func unlock(h lockHandle) {
	ol := new(windows.Overlapped)
	_ = windows.UnlockFileEx(windows.Handle(h.Fd()), 0, 1, 0, ol)
	_ = h.Close()
}

// isLockContended reports whether err means another process holds the lock.
func isLockContended(err error) bool {
	return err == windows.ERROR_LOCK_VIOLATION
}
