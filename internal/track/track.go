// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hookguard Contributors

// Package track observes completed tool calls and folds their outcomes into
// the session state: research-category attribution, failure counting toward
// the circuit breaker, edit tracking, and advisory test-quality scanning.
// Nothing in this package ever blocks a tool or propagates an error — a
// tracking bug must not be able to manufacture failures.
package track

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hookguard-dev/hookguard/internal/config"
	"github.com/hookguard-dev/hookguard/internal/gate"
	"github.com/hookguard-dev/hookguard/internal/journal"
	"github.com/hookguard-dev/hookguard/internal/state"
)

// outcomeHistoryLimit bounds the recent-outcome window kept for the gaming
// heuristics.
const outcomeHistoryLimit = 50

// Tracker folds tool outcomes into session state.
type Tracker struct {
	cfg     *config.Config
	store   *state.Store
	journal *journal.Journal

	now func() time.Time
}

// New creates a Tracker.
func New(cfg *config.Config, store *state.Store, jnl *journal.Journal) *Tracker {
	return &Tracker{
		cfg:     cfg,
		store:   store,
		journal: jnl,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Observe processes one completed tool call and returns human-readable
// reminders, if any. It swallows every internal error: a lock timeout or a
// panic here means the outcome goes unrecorded, nothing more.
func (t *Tracker) Observe(req gate.Request, rawResponse json.RawMessage) (reminders []string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("tracker panicked, outcome dropped", "tool", req.ToolName, "panic", r)
			reminders = nil
		}
	}()

	out := parseOutcome(rawResponse)
	now := t.now()

	_, err := t.store.Update(func(st *state.SessionState) error {
		st.Patterns.RecordOutcome(state.OutcomeEvent{
			Tool:    req.ToolName,
			Failure: out.failed,
			At:      now,
		}, outcomeHistoryLimit)

		if msg := t.updateBreaker(st, req.ToolName, out, now); msg != "" {
			reminders = append(reminders, msg)
			t.record(journal.Entry{
				SessionID: req.SessionID,
				Kind:      journal.KindViolation,
				Rule:      "circuit_breaker",
				Tool:      req.ToolName,
				Detail:    st.CircuitBreaker.LastError,
			})
		}

		t.attributeResearch(st, &req, out, now)

		if req.Capability().Mutating() && !out.failed {
			st.Edits.RecordEdit(req.FilePath())
		}

		t.satisfyRequirements(st, &req, out)

		if msg := t.trackLoop(st, &req, out); msg != "" {
			reminders = append(reminders, msg)
		}

		if msg := scanTestQuality(&req); msg != "" {
			reminders = append(reminders, msg)
			t.record(journal.Entry{
				SessionID: req.SessionID,
				Kind:      journal.KindWarn,
				Rule:      "tautological_test",
				Tool:      req.ToolName,
				Detail:    msg,
			})
		}
		return nil
	})
	if err != nil {
		slog.Warn("tracker state update failed, outcome dropped", "tool", req.ToolName, "error", err)
	}
	return reminders
}

// updateBreaker applies one outcome to the breaker and returns a reminder
// when this outcome trips it. Success clears the consecutive counter but
// never un-trips a tripped breaker.
func (t *Tracker) updateBreaker(st *state.SessionState, tool string, out outcome, now time.Time) string {
	if !out.failed {
		st.CircuitBreaker.FailureCount = 0
		return ""
	}

	sig := tool + ":" + out.class
	st.CircuitBreaker.FailureCount++
	st.CircuitBreaker.ErrorSignatures[sig]++
	st.CircuitBreaker.LastError = fmt.Sprintf("%s: %s", tool, out.summary())

	if st.CircuitBreaker.Tripped {
		return ""
	}
	consecutive := int(st.CircuitBreaker.FailureCount) >= t.cfg.Breaker.ConsecutiveFailures
	repeated := int(st.CircuitBreaker.ErrorSignatures[sig]) >= t.cfg.Breaker.SignatureFailures
	if !consecutive && !repeated {
		return ""
	}

	st.CircuitBreaker.Tripped = true
	st.CircuitBreaker.TrippedAt = &now
	return fmt.Sprintf("circuit breaker tripped (%s). Mutations are paused until the root cause is "+
		"understood; the user re-arms with: hookguard reset breaker", sig)
}

// attributeResearch marks research categories complete on genuinely useful
// results and invalidates previously completed categories whose fresh
// invocation came back empty.
func (t *Tracker) attributeResearch(st *state.SessionState, req *gate.Request, out outcome, now time.Time) {
	cat, viaTask := categoryOf(req)
	if cat == "" {
		return
	}

	if strings.HasPrefix(req.ToolName, "mcp__") {
		h := st.MCPHealth[cat]
		if h == nil {
			h = &state.CapabilityHealth{}
			st.MCPHealth[cat] = h
		}
		if out.failed {
			h.FailureCount++
		} else {
			h.Verified = true
			h.LastSuccess = &now
			h.FailureCount = 0
		}
	}

	switch {
	case out.failed:
		// An error is not research, but it does not erase earlier results.
	case out.empty:
		delete(st.Research, cat)
	default:
		st.Research[cat] = &state.ResearchRecord{Tool: req.ToolName, CompletedAt: now, ViaTask: viaTask}
	}
}

// satisfyRequirements marks user-stated requirements satisfied when the
// corresponding activity is observed.
func (t *Tracker) satisfyRequirements(st *state.SessionState, req *gate.Request, out outcome) {
	if out.failed {
		return
	}

	allDone := true
	for _, cat := range t.cfg.Research.Enabled() {
		if _, ok := st.Research[cat]; !ok {
			allDone = false
			break
		}
	}
	if allDone {
		st.Requirements.MarkSatisfied("research")
	}

	switch req.ToolName {
	case "TodoWrite":
		st.Requirements.MarkSatisfied("plan")
	case "Bash":
		cmd := req.Command()
		if isVerificationCommand(cmd) {
			st.Requirements.MarkSatisfied("test")
			st.EditAttempts.Count = 0
		}
		if isCommitCommand(cmd) {
			st.Requirements.MarkSatisfied("commit")
		}
	}
	if st.SaneLoop.Active {
		st.Requirements.MarkSatisfied("loop")
	}
}

// trackLoop advances the structured big-task loop: TodoWrite refreshes the
// acceptance criteria, and a successful verification command closes one
// iteration. Returns a reminder when the loop passes its iteration ceiling.
func (t *Tracker) trackLoop(st *state.SessionState, req *gate.Request, out outcome) string {
	if !st.SaneLoop.Active || out.failed {
		return ""
	}

	switch req.ToolName {
	case "TodoWrite":
		if crit := criteriaFromTodos(req.Input["todos"]); crit != nil {
			st.SaneLoop.AcceptanceCriteria = crit
		}
	case "Bash":
		if !isVerificationCommand(req.Command()) {
			return ""
		}
		st.SaneLoop.Iteration++
		if st.SaneLoop.Iteration > st.SaneLoop.MaxIterations {
			return fmt.Sprintf("loop %q has passed %d iterations without converging; stop and reassess the approach with the user",
				st.SaneLoop.Task, st.SaneLoop.MaxIterations)
		}
	}
	return ""
}

// criteriaFromTodos maps a TodoWrite item list onto loop acceptance criteria.
func criteriaFromTodos(raw any) []state.Criterion {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	var crit []state.Criterion
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		text, _ := m["content"].(string)
		if text == "" {
			continue
		}
		status, _ := m["status"].(string)
		crit = append(crit, state.Criterion{Text: text, Checked: status == "completed"})
	}
	return crit
}

func isVerificationCommand(cmd string) bool {
	for _, marker := range []string{
		"go test", "go vet", "pytest", "npm test", "npm run test",
		"make test", "cargo test", "mvn test", "bundle exec rspec",
	} {
		if strings.Contains(cmd, marker) {
			return true
		}
	}
	return false
}

func isCommitCommand(cmd string) bool {
	return strings.Contains(cmd, "git commit")
}

func (t *Tracker) record(e journal.Entry) {
	if t.journal == nil {
		return
	}
	if err := t.journal.Append(e); err != nil {
		slog.Warn("journal append failed", "kind", e.Kind, "error", err)
	}
}
