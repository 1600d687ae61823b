// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hookguard Contributors

package state

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hookguard-dev/hookguard/internal/config"
	hgerr "github.com/hookguard-dev/hookguard/pkg/errors"
)

// Store is the lock-guarded API over the signed state record. Rule checks
// never open the state file directly; every mutation is a self-contained
// read-modify-write under the lock, and every write is temp-file-then-rename
// so no reader ever observes a half-written record.
type Store struct {
	path string
	lock *fileLock
	keys KeyProvider

	// OnTamper, when set, is called with a diagnostic whenever a persisted
	// record fails integrity verification. The event is security-relevant
	// and must reach the journal, not a debug log.
	OnTamper func(detail string)
}

// New creates a Store over the given state and lock paths.
func New(path, lockPath string, timeout, retry time.Duration, keys KeyProvider) *Store {
	return &Store{
		path: path,
		lock: newFileLock(lockPath, timeout, retry),
		keys: keys,
	}
}

// NewFromConfig creates a Store using the configured paths and lock bounds.
func NewFromConfig(cfg *config.Config, keys KeyProvider) *Store {
	return New(cfg.StateFile(), cfg.LockFile(), cfg.Lock.Timeout(), cfg.Lock.Retry(), keys)
}

// Update performs an atomic read-modify-write: lock, load-and-verify, apply
// fn, sign, write-temp-then-rename, unlock. On lock timeout it returns
// CodeStateLockTimeout and fn never runs — the caller fails open.
func (s *Store) Update(fn func(*SessionState) error) (*SessionState, error) {
	key, err := s.keys.Key()
	if err != nil {
		return nil, err
	}

	if err := s.lock.acquire(); err != nil {
		return nil, err
	}
	defer s.lock.release()

	st := s.loadLocked(key)
	if err := fn(st); err != nil {
		return nil, err
	}

	if err := s.saveLocked(st, key); err != nil {
		return nil, err
	}
	return st, nil
}

// View reads the state under the lock without writing. On lock timeout it
// returns CodeStateLockTimeout — callers treat that as fresh defaults.
func (s *Store) View(fn func(*SessionState)) error {
	key, err := s.keys.Key()
	if err != nil {
		return err
	}

	if err := s.lock.acquire(); err != nil {
		return err
	}
	defer s.lock.release()

	fn(s.loadLocked(key))
	return nil
}

// ResetSection restores one section to defaults, persisting the result.
func (s *Store) ResetSection(section Section) error {
	_, err := s.Update(func(st *SessionState) error {
		if !st.ResetSection(section) {
			return hgerr.Errorf(hgerr.CodeStateSectionUnknown, "unknown state section %q", section)
		}
		return nil
	})
	return err
}

// loadLocked reads and verifies the record. The caller holds the lock. A
// missing file is the lazy-create case; an unreadable or tampered record is
// discarded and replaced with defaults, with tampering surfaced via OnTamper.
func (s *Store) loadLocked(key []byte) *SessionState {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("state file unreadable, starting from defaults", "path", s.path, "error", err)
		}
		return Default()
	}

	st, err := decodeSigned(data, key)
	if err != nil {
		if hgerr.IsTampered(err) {
			slog.Error("state record failed integrity check, resetting to defaults",
				"path", s.path, "error", err)
			if s.OnTamper != nil {
				s.OnTamper(err.Error())
			}
		} else {
			slog.Warn("state record undecodable, starting from defaults", "path", s.path, "error", err)
		}
		return Default()
	}
	return st
}

// saveLocked signs and writes the record atomically. The temp file lives in
// the same directory as the target so the rename cannot cross filesystems.
func (s *Store) saveLocked(st *SessionState, key []byte) error {
	data, err := encodeSigned(st, key)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return hgerr.Wrapf(err, hgerr.CodeStateWriteFailure, "creating state directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return hgerr.Wrap(err, hgerr.CodeStateWriteFailure, "creating temp state file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return hgerr.Wrap(err, hgerr.CodeStateWriteFailure, "writing temp state file")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return hgerr.Wrap(err, hgerr.CodeStateWriteFailure, "closing temp state file")
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return hgerr.Wrapf(err, hgerr.CodeStateWriteFailure, "renaming state file into place")
	}
	return nil
}

// Path returns the state file location. The gate's state-file protection
// check uses this to refuse agent mutations of the record.
func (s *Store) Path() string { return s.path }
