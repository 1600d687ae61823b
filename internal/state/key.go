// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hookguard Contributors

package state

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	hgerr "github.com/hookguard-dev/hookguard/pkg/errors"
	"github.com/zalando/go-keyring"
)

const (
	keyringService = "hookguard"
	keyringEntry   = "state-mac"
	keyBytes       = 32
)

// KeyProvider supplies the HMAC key protecting the state record. The key must
// live outside the project tree so the enforced agent cannot read or forge it.
type KeyProvider interface {
	Key() ([]byte, error)
}

// KeyringProvider stores the key in the OS credential store (Keychain on
// macOS, secret-service on Linux, Credential Manager on Windows), generating
// it on first use. When the keyring is unavailable (headless CI, no D-Bus) it
// falls back to an owner-only key file under the user config directory.
type KeyringProvider struct {
	// FallbackPath overrides the default key-file location; used by tests.
	FallbackPath string
}

// NewKeyProvider returns the default keyring-backed provider.
func NewKeyProvider() *KeyringProvider {
	return &KeyringProvider{}
}

func (p *KeyringProvider) Key() ([]byte, error) {
	val, err := keyring.Get(keyringService, keyringEntry)
	switch {
	case err == nil:
		key, decErr := hex.DecodeString(val)
		if decErr != nil || len(key) != keyBytes {
			// A corrupted keyring entry is replaced rather than trusted.
			slog.Warn("keyring entry malformed, regenerating state key")
			return p.generateKeyring()
		}
		return key, nil
	case errors.Is(err, keyring.ErrNotFound):
		return p.generateKeyring()
	default:
		slog.Debug("keyring unavailable, using key file fallback", "error", err)
		return p.fileKey()
	}
}

func (p *KeyringProvider) generateKeyring() ([]byte, error) {
	key, err := randomKey()
	if err != nil {
		return nil, err
	}
	if err := keyring.Set(keyringService, keyringEntry, hex.EncodeToString(key)); err != nil {
		slog.Debug("keyring write failed, using key file fallback", "error", err)
		return p.fileKey()
	}
	return key, nil
}

// fileKey reads or creates the owner-only key file. The file lives under the
// user config directory, never the project tree.
func (p *KeyringProvider) fileKey() ([]byte, error) {
	path := p.FallbackPath
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, hgerr.Wrap(err, hgerr.CodeStateKeyUnavailable, "resolving user config dir for key file")
		}
		path = filepath.Join(dir, "hookguard", "state.key")
	}

	data, err := os.ReadFile(path)
	if err == nil {
		key, decErr := hex.DecodeString(string(data))
		if decErr == nil && len(key) == keyBytes {
			return key, nil
		}
		slog.Warn("key file malformed, regenerating", "path", path)
	} else if !os.IsNotExist(err) {
		return nil, hgerr.Wrapf(err, hgerr.CodeStateKeyUnavailable, "reading key file %s", path)
	}

	key, err := randomKey()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, hgerr.Wrapf(err, hgerr.CodeStateKeyGenerateFailed, "creating key directory for %s", path)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key)), 0o600); err != nil {
		return nil, hgerr.Wrapf(err, hgerr.CodeStateKeyGenerateFailed, "writing key file %s", path)
	}
	return key, nil
}

func randomKey() ([]byte, error) {
	key := make([]byte, keyBytes)
	if _, err := rand.Read(key); err != nil {
		return nil, hgerr.Wrap(err, hgerr.CodeStateKeyGenerateFailed, "generating state key")
	}
	return key, nil
}

// StaticKeyProvider returns a fixed key; test use only.
type StaticKeyProvider []byte

func (k StaticKeyProvider) Key() ([]byte, error) { return k, nil }
