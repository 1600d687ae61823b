// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hookguard Contributors

package state

import (
	"time"

	hgerr "github.com/hookguard-dev/hookguard/pkg/errors"
)

// fileLock is an exclusive advisory lock on the sibling lock file. Exactly
// one writer holds it at a time; acquisition is bounded so a wedged peer can
// never hang the host agent.
type fileLock struct {
	path    string
	timeout time.Duration
	retry   time.Duration

	handle lockHandle
}

func newFileLock(path string, timeout, retry time.Duration) *fileLock {
	return &fileLock{path: path, timeout: timeout, retry: retry}
}

// acquire polls for the exclusive lock until the deadline. On timeout it
// returns CodeStateLockTimeout — the fail-open signal.
func (l *fileLock) acquire() error {
	deadline := time.Now().Add(l.timeout)
	for {
		handle, err := tryLock(l.path)
		if err == nil {
			l.handle = handle
			return nil
		}
		if !isLockContended(err) {
			return hgerr.Wrapf(err, hgerr.CodeStateLockFailure, "locking %s", l.path)
		}
		if time.Now().After(deadline) {
			return hgerr.Errorf(hgerr.CodeStateLockTimeout,
				"could not acquire state lock %s within %s", l.path, l.timeout)
		}
		time.Sleep(l.retry)
	}
}

func (l *fileLock) release() {
	if l.handle != nil {
		unlock(l.handle)
		l.handle = nil
	}
}
