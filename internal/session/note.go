// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hookguard Contributors

package session

import (
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/hookguard-dev/hookguard/internal/config"
)

// PendingNote is one deferred message for the next session. There is at most
// one; writing replaces any unread note.
type PendingNote struct {
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// WritePendingNote stores a note for the next session start. Failures are
// logged and swallowed; a lost note is not worth failing a hook over.
func WritePendingNote(cfg *config.Config, message string) {
	note := PendingNote{Message: message, CreatedAt: time.Now().UTC()}
	data, err := json.Marshal(note)
	if err != nil {
		return
	}
	if err := os.WriteFile(cfg.PendingNoteFile(), data, 0o600); err != nil {
		slog.Warn("pending note not written", "error", err)
	}
}

// TakePendingNote reads and clears the pending note, if any.
func TakePendingNote(cfg *config.Config) (PendingNote, bool) {
	path := cfg.PendingNoteFile()
	data, err := os.ReadFile(path)
	if err != nil {
		return PendingNote{}, false
	}

	var note PendingNote
	if err := json.Unmarshal(data, &note); err != nil {
		_ = os.Remove(path)
		return PendingNote{}, false
	}
	_ = os.Remove(path)
	return note, note.Message != ""
}
