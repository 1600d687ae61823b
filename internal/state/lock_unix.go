// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hookguard Contributors

//go:build unix

package state

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// lockHandle is the open lock file; the flock is released on close.
type lockHandle = *os.File

// tryLock acquires a non-blocking exclusive flock(2) on path, creating the
// file if needed. Advisory locks are released automatically on process exit,
// so a crashed hook cannot leave the state wedged.
func tryLock(path string) (lockHandle, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

func unlock(h lockHandle) {
	_ = unix.Flock(int(h.Fd()), unix.LOCK_UN)
	_ = h.Close()
}

// isLockContended reports whether err means another process holds the lock.
func isLockContended(err error) bool {
	return errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN)
}
