// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hookguard Contributors

// Package journal is the append-only enforcement record: violations, blocks,
// resets, tamper and degraded-mode events. Each line is a self-contained JSON
// object, so concurrent appenders need no lock and a reader tolerates a
// truncated final line. Scores are always derived from this log on the read
// side, never stored as free-form claims.
package journal

import (
	"bufio"
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"
	hgerr "github.com/hookguard-dev/hookguard/pkg/errors"
)

// Kind classifies a journal entry.
type Kind string

const (
	KindViolation Kind = "violation"
	KindBlock     Kind = "block"
	KindWarn      Kind = "warn"
	KindTamper    Kind = "tamper"
	KindDegraded  Kind = "degraded"
	KindReset     Kind = "reset"
	KindHalt      Kind = "halt"
	KindSummary   Kind = "summary"
)

// Entry is one journal line.
type Entry struct {
	ID        string    `json:"id"`
	At        time.Time `json:"at"`
	SessionID string    `json:"session_id,omitempty"`
	Kind      Kind      `json:"kind"`
	Rule      string    `json:"rule,omitempty"`
	Tool      string    `json:"tool,omitempty"`
	Actor     string    `json:"actor,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Journal appends to and reads a JSONL file.
type Journal struct {
	path string
}

// New returns a Journal over path. The file is created on first append.
func New(path string) *Journal {
	return &Journal{path: path}
}

// Append writes one entry. ID and At are filled when empty. The entry is
// written with a single O_APPEND write so interleaved appenders never split
// a line.
func (j *Journal) Append(e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	line, err := json.Marshal(e)
	if err != nil {
		return hgerr.Wrap(err, hgerr.CodeJournalAppendFailure, "marshalling journal entry")
	}
	line = append(line, '\n')

	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return hgerr.Wrapf(err, hgerr.CodeJournalAppendFailure, "opening journal %s", j.path)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return hgerr.Wrap(err, hgerr.CodeJournalAppendFailure, "appending journal entry")
	}
	return nil
}

// Entries reads every well-formed entry. Unparseable lines (including a
// partial final line from an interrupted writer) are skipped, not fatal.
func (j *Journal) Entries() ([]Entry, error) {
	f, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, hgerr.Wrapf(err, hgerr.CodeJournalReadFailure, "opening journal %s", j.path)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, hgerr.Wrap(err, hgerr.CodeJournalReadFailure, "scanning journal")
	}
	return entries, nil
}

// Since returns entries at or after t.
func (j *Journal) Since(t time.Time) ([]Entry, error) {
	all, err := j.Entries()
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, e := range all {
		if !e.At.Before(t) {
			out = append(out, e)
		}
	}
	return out, nil
}

// ForSession returns entries for one session ID.
func (j *Journal) ForSession(sessionID string) ([]Entry, error) {
	all, err := j.Entries()
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, e := range all {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}
