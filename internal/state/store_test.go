// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hookguard Contributors

package state_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hookguard-dev/hookguard/internal/state"
	hgerr "github.com/hookguard-dev/hookguard/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = state.StaticKeyProvider([]byte("0123456789abcdef0123456789abcdef"))

func newTestStore(t *testing.T) *state.Store {
	t.Helper()

	dir := t.TempDir()
	return state.New(
		filepath.Join(dir, "state.json"),
		filepath.Join(dir, "state.lock"),
		2*time.Second, 5*time.Millisecond,
		testKey,
	)
}

func TestLazyCreateDefaults(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	err := store.View(func(st *state.SessionState) {
		assert.False(t, st.CircuitBreaker.Tripped)
		assert.Empty(t, st.Research)
		assert.NotNil(t, st.RefusalTracking)
	})
	require.NoError(t, err)
}

func TestUpdatePersists(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	_, err := store.Update(func(st *state.SessionState) error {
		st.Edits.RecordEdit("main.go")
		st.Edits.RecordEdit("main.go")
		st.Edits.RecordEdit("util.go")
		return nil
	})
	require.NoError(t, err)

	err = store.View(func(st *state.SessionState) {
		assert.Equal(t, uint(3), st.Edits.Count)
		assert.Equal(t, []string{"main.go", "util.go"}, st.Edits.UniqueFiles)
		assert.Equal(t, "util.go", st.Edits.LastFile)
	})
	require.NoError(t, err)
}

func TestResetSectionIdempotent(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	now := time.Now().UTC()
	_, err := store.Update(func(st *state.SessionState) error {
		st.CircuitBreaker.Tripped = true
		st.CircuitBreaker.FailureCount = 7
		st.Research["web"] = &state.ResearchRecord{Tool: "WebSearch", CompletedAt: now}
		st.Requirements.AddRequested("research")
		st.EditAttempts.Count = 2
		st.Enforcement.RecordBlock("sig", now, 10)
		st.SensitiveApprovals["/etc/hosts"] = true
		st.RefusalTracking["path"] = &state.RefusalRecord{Count: 2}
		st.MCPHealth["github"] = &state.CapabilityHealth{Verified: true}
		st.Bypass.Active = true
		st.SaneLoop.Active = true
		return nil
	})
	require.NoError(t, err)

	// Reset every section twice; the result must equal defaults either way.
	for _, section := range state.Sections {
		require.NoError(t, store.ResetSection(section))
		require.NoError(t, store.ResetSection(section))
	}

	want, err := json.Marshal(state.Default())
	require.NoError(t, err)
	err = store.View(func(st *state.SessionState) {
		got, merr := json.Marshal(st)
		require.NoError(t, merr)
		assert.JSONEq(t, string(want), string(got))
	})
	require.NoError(t, err)
}

func TestResetUnknownSection(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	err := store.ResetSection(state.Section("no_such_section"))
	require.Error(t, err)
	assert.Equal(t, hgerr.CodeStateSectionUnknown, hgerr.CodeOf(err))
}

func TestConcurrentUpdatesLoseNothing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	statePath := filepath.Join(dir, "state.json")
	lockPath := filepath.Join(dir, "state.lock")

	const writers = 16
	const perWriter = 5

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Each goroutine gets its own Store, modeling an
			// independent hook process contending on one file.
			store := state.New(statePath, lockPath, 10*time.Second, time.Millisecond, testKey)
			for j := 0; j < perWriter; j++ {
				_, err := store.Update(func(st *state.SessionState) error {
					st.Edits.Count++
					return nil
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	store := state.New(statePath, lockPath, 10*time.Second, time.Millisecond, testKey)
	err := store.View(func(st *state.SessionState) {
		assert.Equal(t, uint(writers*perWriter), st.Edits.Count)
	})
	require.NoError(t, err)
}

func TestTamperDetection(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	statePath := filepath.Join(dir, "state.json")
	store := state.New(statePath, filepath.Join(dir, "state.lock"),
		2*time.Second, 5*time.Millisecond, testKey)

	var tamperLogged string
	store.OnTamper = func(detail string) { tamperLogged = detail }

	_, err := store.Update(func(st *state.SessionState) error {
		st.CircuitBreaker.FailureCount = 2
		return nil
	})
	require.NoError(t, err)

	// Flip bytes in the persisted record without recomputing the MAC.
	data, err := os.ReadFile(statePath)
	require.NoError(t, err)
	mutated := []byte(string(data))
	idx := len(mutated) / 2
	mutated[idx] ^= 0xff
	require.NoError(t, os.WriteFile(statePath, mutated, 0o600))

	err = store.View(func(st *state.SessionState) {
		// Corrupted record is discarded, never used.
		assert.Equal(t, uint(0), st.CircuitBreaker.FailureCount)
	})
	require.NoError(t, err)
	assert.NotEmpty(t, tamperLogged, "tamper event must be surfaced, not swallowed")
}

func TestTamperedMACMismatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	statePath := filepath.Join(dir, "state.json")
	store := state.New(statePath, filepath.Join(dir, "state.lock"),
		2*time.Second, 5*time.Millisecond, testKey)

	_, err := store.Update(func(st *state.SessionState) error {
		st.Edits.Count = 1
		return nil
	})
	require.NoError(t, err)

	// Rewrite the payload keeping the envelope shape: valid JSON, wrong MAC.
	data, err := os.ReadFile(statePath)
	require.NoError(t, err)
	var env map[string]any
	require.NoError(t, json.Unmarshal(data, &env))
	inner, err := json.Marshal(state.Default())
	require.NoError(t, err)
	env["state"] = json.RawMessage(inner)
	forged, err := json.Marshal(env)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(statePath, forged, 0o600))

	tampered := false
	store.OnTamper = func(string) { tampered = true }
	err = store.View(func(*state.SessionState) {})
	require.NoError(t, err)
	assert.True(t, tampered)
}

func TestLockTimeoutFailsOpen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	lockPath := filepath.Join(dir, "state.lock")

	// Hold the lock from a "peer process" for longer than the timeout.
	blocker := state.New(filepath.Join(dir, "state.json"), lockPath,
		time.Second, time.Millisecond, testKey)
	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_, _ = blocker.Update(func(*state.SessionState) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	store := state.New(filepath.Join(dir, "state.json"), lockPath,
		50*time.Millisecond, 5*time.Millisecond, testKey)

	start := time.Now()
	_, err := store.Update(func(*state.SessionState) error { return nil })
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, hgerr.IsLockTimeout(err), "expected lock timeout, got %v", err)
	assert.Less(t, elapsed, time.Second, "timeout must be bounded, never hang")
}

func TestBreakerSurvivesReload(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	statePath := filepath.Join(dir, "state.json")
	lockPath := filepath.Join(dir, "state.lock")

	first := state.New(statePath, lockPath, 2*time.Second, 5*time.Millisecond, testKey)
	now := time.Now().UTC()
	_, err := first.Update(func(st *state.SessionState) error {
		st.CircuitBreaker.Tripped = true
		st.CircuitBreaker.TrippedAt = &now
		st.CircuitBreaker.LastError = "Bash: exit status 1"
		return nil
	})
	require.NoError(t, err)

	// A new Store models a fresh hook process after restart.
	second := state.New(statePath, lockPath, 2*time.Second, 5*time.Millisecond, testKey)
	err = second.View(func(st *state.SessionState) {
		assert.True(t, st.CircuitBreaker.Tripped)
		assert.Equal(t, "Bash: exit status 1", st.CircuitBreaker.LastError)
	})
	require.NoError(t, err)
}

// A record the store itself wrote must verify on every subsequent load: a
// false tamper alarm silently resets all enforcement state.
func TestWrittenRecordVerifiesOnReload(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	statePath := filepath.Join(dir, "state.json")
	lockPath := filepath.Join(dir, "state.lock")

	first := state.New(statePath, lockPath, 2*time.Second, 5*time.Millisecond, testKey)
	_, err := first.Update(func(st *state.SessionState) error {
		st.LastPrompt = "fix the login bug"
		st.Requirements.AddRequested("test")
		return nil
	})
	require.NoError(t, err)

	second := state.New(statePath, lockPath, 2*time.Second, 5*time.Millisecond, testKey)
	second.OnTamper = func(detail string) {
		t.Errorf("freshly written record flagged as tampered: %s", detail)
	}
	err = second.View(func(st *state.SessionState) {
		assert.Equal(t, "fix the login bug", st.LastPrompt)
		assert.Contains(t, st.Requirements.Outstanding(), "test")
	})
	require.NoError(t, err)
}
