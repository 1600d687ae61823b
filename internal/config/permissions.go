// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hookguard Contributors

//go:build !windows

package config

import (
	"io/fs"
	"log/slog"
	"os"
)

// WarnInsecurePermissions checks whether a sensitive file (config, state key)
// is group- or world-readable and logs a warning if so. Best-effort: it never
// fails the caller, it alerts the operator that the enforcement key or config
// may be readable by other users — and therefore forgeable by the agent.
func WarnInsecurePermissions(path string) {
	if path == "" {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		slog.Debug("could not stat file for permission check", "path", path, "error", err)
		return
	}

	mode := info.Mode()
	perm := mode.Perm()

	const groupRead fs.FileMode = 0o040
	const otherRead fs.FileMode = 0o004

	if perm&(groupRead|otherRead) != 0 {
		slog.Warn(
			"file has insecure permissions — integrity key material may be exposed",
			"path", path,
			"mode", mode,
			"recommended", "0600",
		)
	}
}
