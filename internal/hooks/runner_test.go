// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hookguard Contributors

package hooks_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookguard-dev/hookguard/internal/config"
	"github.com/hookguard-dev/hookguard/internal/gate"
	"github.com/hookguard-dev/hookguard/internal/history"
	"github.com/hookguard-dev/hookguard/internal/hooks"
	"github.com/hookguard-dev/hookguard/internal/journal"
	"github.com/hookguard-dev/hookguard/internal/session"
	"github.com/hookguard-dev/hookguard/internal/state"
	"github.com/hookguard-dev/hookguard/internal/track"
)

type testEnv struct {
	runner *hooks.Runner
	store  *state.Store
	cfg    *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	v := viper.New()
	config.SetDefaults(v)
	cfg, err := config.FromViper(v)
	require.NoError(t, err)

	cfg.DataDir = filepath.Join(t.TempDir(), ".hookguard")
	require.NoError(t, os.MkdirAll(cfg.DataDir, 0o700))

	store := state.New(cfg.StateFile(), cfg.LockFile(), cfg.Lock.Timeout(), cfg.Lock.Retry(),
		state.StaticKeyProvider("0123456789abcdef0123456789abcdef"))
	jnl := journal.New(cfg.JournalFile())

	hist, err := history.Open(cfg.HistoryDB())
	require.NoError(t, err)
	t.Cleanup(func() { hist.Close() })

	g := gate.New(cfg, store, jnl)
	tr := track.New(cfg, store, jnl)
	sm := session.New(cfg, store, jnl, hist)

	return &testEnv{
		runner: hooks.NewRunner(cfg, store, jnl, g, tr, sm),
		store:  store,
		cfg:    cfg,
	}
}

// run feeds one hook event through the runner and returns exit code, stdout,
// and stderr.
func (e *testEnv) run(t *testing.T, event string, payload map[string]any) (int, string, string) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	var stdout, stderr bytes.Buffer
	code := e.runner.Run(context.Background(), event, bytes.NewReader(raw), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func (e *testEnv) update(t *testing.T, fn func(*state.SessionState)) {
	t.Helper()
	_, err := e.store.Update(func(st *state.SessionState) error {
		fn(st)
		return nil
	})
	require.NoError(t, err)
}

func (e *testEnv) state(t *testing.T) *state.SessionState {
	t.Helper()
	var snapshot *state.SessionState
	require.NoError(t, e.store.View(func(st *state.SessionState) { snapshot = st }))
	return snapshot
}

func editPayload(path string) map[string]any {
	return map[string]any{
		"session_id": "sess-1",
		"tool_name":  "Edit",
		"tool_input": map[string]any{
			"file_path":  path,
			"old_string": "a",
			"new_string": "b",
		},
	}
}

// Scenario: a task prompt arms the research gate; edits stay blocked until
// local and web research genuinely complete.
func TestTaskPromptGatesEditsUntilResearched(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	code, _, _ := env.run(t, hooks.EventUserPrompt, map[string]any{
		"session_id": "sess-1",
		"prompt":     "fix the login bug",
	})
	require.Equal(t, hooks.ExitAllow, code)
	require.True(t, env.state(t).Requirements.IsTask)

	code, _, stderr := env.run(t, hooks.EventPreTool, editPayload("/srv/app/login.go"))
	require.Equal(t, hooks.ExitBlock, code)
	assert.Contains(t, stderr, "local")
	assert.Contains(t, stderr, "web")

	code, _, _ = env.run(t, hooks.EventPostTool, map[string]any{
		"session_id":    "sess-1",
		"tool_name":     "Grep",
		"tool_input":    map[string]any{"pattern": "login"},
		"tool_response": map[string]any{"content": "auth/login.go:12: func Login("},
	})
	require.Equal(t, hooks.ExitAllow, code)

	// Space the completions out so they read as genuine investigation.
	env.update(t, func(st *state.SessionState) {
		st.Research["local"].CompletedAt = st.Research["local"].CompletedAt.Add(-5 * time.Minute)
	})

	code, _, _ = env.run(t, hooks.EventPostTool, map[string]any{
		"session_id":    "sess-1",
		"tool_name":     "WebSearch",
		"tool_input":    map[string]any{"query": "session cookie SameSite"},
		"tool_response": map[string]any{"content": "Results: ..."},
	})
	require.Equal(t, hooks.ExitAllow, code)

	code, _, stderr = env.run(t, hooks.EventPreTool, editPayload("/srv/app/login.go"))
	assert.Equal(t, hooks.ExitAllow, code, "stderr: %s", stderr)
}

// Scenario: "start the loop" starts the structured loop and the requirement
// is satisfiable — after genuine research the edit goes through instead of
// being blocked on an unsatisfiable requirement.
func TestLoopRequestStartsLoopAndUnblocks(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	code, stdout, _ := env.run(t, hooks.EventUserPrompt, map[string]any{
		"session_id": "sess-1",
		"prompt":     "fix the login bug and start the loop",
	})
	require.Equal(t, hooks.ExitAllow, code)
	assert.Contains(t, stdout, "structured loop started")

	st := env.state(t)
	require.True(t, st.SaneLoop.Active)
	assert.Equal(t, uint(1), st.SaneLoop.Iteration)
	assert.NotContains(t, st.Requirements.Outstanding(), "loop")

	code, _, _ = env.run(t, hooks.EventPostTool, map[string]any{
		"session_id":    "sess-1",
		"tool_name":     "Grep",
		"tool_input":    map[string]any{"pattern": "login"},
		"tool_response": map[string]any{"content": "auth/login.go:12: func Login("},
	})
	require.Equal(t, hooks.ExitAllow, code)
	env.update(t, func(st *state.SessionState) {
		st.Research["local"].CompletedAt = st.Research["local"].CompletedAt.Add(-5 * time.Minute)
	})
	code, _, _ = env.run(t, hooks.EventPostTool, map[string]any{
		"session_id":    "sess-1",
		"tool_name":     "WebSearch",
		"tool_input":    map[string]any{"query": "login session handling"},
		"tool_response": map[string]any{"content": "Results: ..."},
	})
	require.Equal(t, hooks.ExitAllow, code)

	code, _, stderr := env.run(t, hooks.EventPreTool, editPayload("/srv/app/login.go"))
	assert.Equal(t, hooks.ExitAllow, code, "stderr: %s", stderr)
}

// Scenario: a fresh-start trigger replaces the requested-requirements set;
// requirements from the previous unit of work do not leak into the next one.
func TestFreshStartReplacesRequirements(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	code, _, _ := env.run(t, hooks.EventUserPrompt, map[string]any{
		"session_id": "sess-1",
		"prompt":     "fix the parser and make a plan first",
	})
	require.Equal(t, hooks.ExitAllow, code)
	require.Contains(t, env.state(t).Requirements.Outstanding(), "plan")

	code, _, _ = env.run(t, hooks.EventUserPrompt, map[string]any{
		"session_id": "sess-1",
		"prompt":     "update the changelog and commit",
	})
	require.Equal(t, hooks.ExitAllow, code)

	outstanding := env.state(t).Requirements.Outstanding()
	assert.NotContains(t, outstanding, "plan", "stale requirement survived a fresh start")
	assert.Contains(t, outstanding, "commit")
}

// Scenario: three consecutive Bash failures trip the breaker, the next edit
// is blocked, the user reset re-arms, and the edit goes through.
func TestBreakerTripBlockAndUserReset(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	for i := 0; i < 3; i++ {
		code, _, _ := env.run(t, hooks.EventPostTool, map[string]any{
			"session_id":    "sess-1",
			"tool_name":     "Bash",
			"tool_input":    map[string]any{"command": "make"},
			"tool_response": map[string]any{"stderr": "build failed", "exit_code": 2},
		})
		require.Equal(t, hooks.ExitAllow, code, "post-tool never blocks")
	}
	require.True(t, env.state(t).CircuitBreaker.Tripped)

	code, _, stderr := env.run(t, hooks.EventPreTool, editPayload("/srv/app/main.go"))
	require.Equal(t, hooks.ExitBlock, code)
	assert.Contains(t, stderr, "circuit breaker")

	code, stdout, _ := env.run(t, hooks.EventUserPrompt, map[string]any{
		"session_id": "sess-1",
		"prompt":     "hookguard reset breaker",
	})
	require.Equal(t, hooks.ExitAllow, code)
	assert.Contains(t, stdout, "breaker reset")
	require.False(t, env.state(t).CircuitBreaker.Tripped)

	code, _, stderr = env.run(t, hooks.EventPreTool, editPayload("/srv/app/main.go"))
	assert.Equal(t, hooks.ExitAllow, code, "stderr: %s", stderr)
}

// Scenario: the path deny list holds regardless of breaker or research
// state.
func TestSensitivePathBlockedUnconditionally(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	code, _, stderr := env.run(t, hooks.EventPreTool, editPayload("~/.ssh/id_rsa"))
	require.Equal(t, hooks.ExitBlock, code)
	assert.Contains(t, stderr, ".ssh")
}

func TestMalformedPayloadAllows(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	var stdout, stderr bytes.Buffer
	code := env.runner.Run(context.Background(), hooks.EventPreTool,
		strings.NewReader("{not json"), &stdout, &stderr)
	assert.Equal(t, hooks.ExitAllow, code)
}

func TestUnknownEventAllows(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	code, _, _ := env.run(t, "pre-flight", map[string]any{"session_id": "sess-1"})
	assert.Equal(t, hooks.ExitAllow, code)
}

func TestStopHookLoopGuard(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	code, stdout, _ := env.run(t, hooks.EventStop, map[string]any{
		"session_id":       "sess-1",
		"stop_hook_active": true,
	})
	assert.Equal(t, hooks.ExitAllow, code)
	assert.Empty(t, stdout, "a re-entrant stop hook must do nothing")
}

func TestStopEmitsDerivedSummary(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	// One real block on record.
	code, _, _ := env.run(t, hooks.EventPreTool, editPayload("~/.ssh/config"))
	require.Equal(t, hooks.ExitBlock, code)

	code, stdout, _ := env.run(t, hooks.EventStop, map[string]any{"session_id": "sess-1"})
	require.Equal(t, hooks.ExitAllow, code)
	assert.Contains(t, stdout, "session compliance: 90")
}

func TestBypassCommandRoundTrip(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	code, stdout, _ := env.run(t, hooks.EventUserPrompt, map[string]any{
		"session_id": "sess-1",
		"prompt":     "hookguard bypass on demo for the security review",
	})
	require.Equal(t, hooks.ExitAllow, code)
	assert.Contains(t, stdout, "bypass is ON")

	// Even a denied path sails through under bypass.
	code, _, _ = env.run(t, hooks.EventPreTool, editPayload("~/.ssh/id_rsa"))
	assert.Equal(t, hooks.ExitAllow, code)

	code, stdout, _ = env.run(t, hooks.EventUserPrompt, map[string]any{
		"session_id": "sess-1",
		"prompt":     "hookguard bypass status",
	})
	require.Equal(t, hooks.ExitAllow, code)
	assert.Contains(t, stdout, "ON")

	code, _, _ = env.run(t, hooks.EventUserPrompt, map[string]any{
		"session_id": "sess-1",
		"prompt":     "hookguard bypass off",
	})
	require.Equal(t, hooks.ExitAllow, code)

	code, _, _ = env.run(t, hooks.EventPreTool, editPayload("~/.ssh/id_rsa"))
	assert.Equal(t, hooks.ExitBlock, code)
}

func TestRefusalResetCommand(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.update(t, func(st *state.SessionState) {
		st.Enforcement.Halted = true
		st.Enforcement.HaltedReason = "3 identical blocks"
		st.RefusalTracking["blocked_path"] = &state.RefusalRecord{Count: 3}
	})

	code, stdout, _ := env.run(t, hooks.EventUserPrompt, map[string]any{
		"session_id": "sess-1",
		"prompt":     "hookguard reset refusals",
	})
	require.Equal(t, hooks.ExitAllow, code)
	assert.Contains(t, stdout, "refusals reset")

	st := env.state(t)
	assert.False(t, st.Enforcement.Halted)
	assert.Empty(t, st.RefusalTracking)
}

func TestTriggerWordsSurfaceWarnings(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	code, stdout, _ := env.run(t, hooks.EventUserPrompt, map[string]any{
		"session_id": "sess-1",
		"prompt":     "just add a quick fix, skip the tests",
	})
	require.Equal(t, hooks.ExitAllow, code)
	assert.Contains(t, stdout, "heads up")
}

func TestSessionStartSurfacesTrippedBreaker(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.update(t, func(st *state.SessionState) {
		st.CircuitBreaker.Tripped = true
		st.CircuitBreaker.FailureCount = 3
	})

	code, stdout, _ := env.run(t, hooks.EventSessionStart, map[string]any{"session_id": "sess-2"})
	require.Equal(t, hooks.ExitAllow, code)
	assert.Contains(t, stdout, "TRIPPED")
	assert.True(t, env.state(t).CircuitBreaker.Tripped)
}

// A control command embedded on its own line of a free-form prompt still
// executes; a prose mention of the command does not.
func TestEmbeddedCommandLine(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.update(t, func(st *state.SessionState) {
		st.CircuitBreaker.Tripped = true
		st.CircuitBreaker.FailureCount = 3
	})

	code, stdout, _ := env.run(t, hooks.EventUserPrompt, map[string]any{
		"session_id": "sess-1",
		"prompt":     "the build is fine now, the failures were stale.\nhookguard reset breaker\nthen pick the task back up",
	})
	require.Equal(t, hooks.ExitAllow, code)
	assert.Contains(t, stdout, "breaker reset")
	assert.False(t, env.state(t).CircuitBreaker.Tripped)
}

func TestCommandMentionInProseDoesNotExecute(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.update(t, func(st *state.SessionState) {
		st.CircuitBreaker.Tripped = true
	})

	code, _, _ := env.run(t, hooks.EventUserPrompt, map[string]any{
		"session_id": "sess-1",
		"prompt":     "do not run hookguard reset breaker until we understand the failures",
	})
	require.Equal(t, hooks.ExitAllow, code)
	assert.True(t, env.state(t).CircuitBreaker.Tripped)
}
