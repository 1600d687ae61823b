// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hookguard Contributors

// Package gate decides, per about-to-run tool call, whether to allow, warn,
// or block. Checks run as an ordered pipeline over a single read-modify-write
// of the state record; the first blocking check short-circuits, warnings
// accumulate, and any check that errors internally abstains rather than
// escalating a bug into a blanket denial.
package gate

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hookguard-dev/hookguard/internal/config"
	"github.com/hookguard-dev/hookguard/internal/journal"
	"github.com/hookguard-dev/hookguard/internal/state"
	hgerr "github.com/hookguard-dev/hookguard/pkg/errors"
)

// Action is the gate's verdict.
type Action string

const (
	ActionAllow Action = "allow"
	ActionWarn  Action = "warn"
	ActionBlock Action = "block"
)

// Decision carries the verdict, the rule that produced it, and a
// human-readable message with a specific remediation — never a bare
// "denied".
type Decision struct {
	Action  Action
	Rule    string
	Message string
}

// Gate evaluates tool invocations against the persisted session state.
type Gate struct {
	cfg     *config.Config
	store   *state.Store
	journal *journal.Journal
	paths   *PathGuard

	// now is swappable for tests.
	now func() time.Time
}

// New creates a Gate.
func New(cfg *config.Config, store *state.Store, jnl *journal.Journal) *Gate {
	return &Gate{
		cfg:     cfg,
		store:   store,
		journal: jnl,
		paths:   NewPathGuard(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// check is one pipeline entry. A nil return means "no objection".
type check struct {
	name string
	fn   func(*Gate, *Request, *state.SessionState) *Decision
}

// pipeline order is a contract: path and state-file protection run before —
// and independent of — research or breaker state, so a denied path is denied
// no matter how compliant the session otherwise is.
var pipeline = []check{
	{"blocked_path", (*Gate).checkBlockedPath},
	{"state_file", (*Gate).checkStateFile},
	{"sensitive_file", (*Gate).checkSensitiveFile},
	{"file_size", (*Gate).checkFileSize},
	{"shell_bypass", (*Gate).checkShellBypass},
	{"circuit_breaker", (*Gate).checkCircuitBreaker},
	{"research", (*Gate).checkResearch},
	{"requirements", (*Gate).checkRequirements},
	{"gaming", (*Gate).checkGaming},
	{"edit_attempts", (*Gate).checkEditAttempts},
}

// Evaluate runs the pipeline inside one atomic state update. Lock timeout or
// any store failure fails open: the decision defaults to allow and the
// degradation is journaled, because enforcement must never hang or wedge the
// host agent.
func (g *Gate) Evaluate(req Request) Decision {
	var decision Decision
	_, err := g.store.Update(func(st *state.SessionState) error {
		decision = g.evaluate(&req, st)
		return nil
	})
	if err != nil {
		if hgerr.IsLockTimeout(err) {
			slog.Warn("state lock timed out, failing open", "tool", req.ToolName)
			g.record(journal.Entry{
				SessionID: req.SessionID,
				Kind:      journal.KindDegraded,
				Tool:      req.ToolName,
				Detail:    "state lock timeout; decision defaulted to allow",
			})
		} else {
			slog.Error("state update failed, failing open", "tool", req.ToolName, "error", err)
		}
		return Decision{Action: ActionAllow}
	}

	switch decision.Action {
	case ActionBlock:
		g.record(journal.Entry{
			SessionID: req.SessionID,
			Kind:      journal.KindBlock,
			Rule:      decision.Rule,
			Tool:      req.ToolName,
			Detail:    decision.Message,
		})
	case ActionWarn:
		g.record(journal.Entry{
			SessionID: req.SessionID,
			Kind:      journal.KindWarn,
			Rule:      decision.Rule,
			Tool:      req.ToolName,
			Detail:    decision.Message,
		})
	}

	return decision
}

func (g *Gate) evaluate(req *Request, st *state.SessionState) Decision {
	// Explicit user bypass skips everything, including escalation tracking.
	if st.Bypass.Active {
		return Decision{
			Action:  ActionAllow,
			Message: "hookguard bypass active (disable with: hookguard bypass off)",
		}
	}

	var warns []string
	var warnRule string
	for _, c := range pipeline {
		d := g.runCheck(c, req, st)
		if d == nil {
			continue
		}
		if d.Action == ActionBlock {
			return g.escalate(req, st, *d)
		}
		warns = append(warns, d.Message)
		if warnRule == "" {
			warnRule = d.Rule
		}
	}

	// The allowed mutation still counts as an edit attempt until a
	// verification succeeds.
	if req.Capability() == CapLocalMutation {
		now := g.now()
		st.EditAttempts.Count++
		st.EditAttempts.LastAttempt = &now
	}

	if len(warns) > 0 {
		return Decision{Action: ActionWarn, Rule: warnRule, Message: strings.Join(warns, "\n")}
	}
	return Decision{Action: ActionAllow}
}

// runCheck isolates a single check: a panic inside one rule makes that rule
// abstain; it never escalates to denying all tool use.
func (g *Gate) runCheck(c check, req *Request, st *state.SessionState) (d *Decision) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("gate check panicked, abstaining", "check", c.name, "panic", r)
			d = nil
		}
	}()

	d = c.fn(g, req, st)
	if d != nil && d.Rule == "" {
		d.Rule = c.name
	}
	return d
}

// escalate applies refusal tracking to a block decision: the 2nd identical
// block gets a reminder, the 3rd halts enforcement pending an explicit user
// acknowledgment, and once halted all further blocks downgrade to warnings
// so an agent stuck in a refusal loop cannot wedge the session forever.
func (g *Gate) escalate(req *Request, st *state.SessionState, d Decision) Decision {
	now := g.now()
	signature := d.Rule + "|" + req.ToolName + "|" + req.FilePath()

	if st.Enforcement.Halted {
		return Decision{
			Action: ActionWarn,
			Rule:   d.Rule,
			Message: d.Message + "\n(enforcement halted after repeated identical blocks; " +
				"this would normally block — re-arm with: hookguard reset refusals)",
		}
	}

	st.Enforcement.RecordBlock(signature, now, g.cfg.Refusal.BlockHistory)
	run := st.Enforcement.TrailingIdenticalRun()

	st.RefusalTracking[d.Rule] = &state.RefusalRecord{
		Count:    uint(run),
		LastTool: req.ToolName,
		LastAt:   now,
	}

	switch {
	case run >= g.cfg.Refusal.HaltAt:
		st.Enforcement.Halted = true
		st.Enforcement.HaltedAt = &now
		st.Enforcement.HaltedReason = fmt.Sprintf("%d identical blocks (%s); root cause is not being addressed", run, d.Rule)
		g.record(journal.Entry{
			SessionID: req.SessionID,
			Kind:      journal.KindHalt,
			Rule:      d.Rule,
			Tool:      req.ToolName,
			Detail:    st.Enforcement.HaltedReason,
		})
		d.Message += fmt.Sprintf(
			"\nThis identical action has now been blocked %d times. Enforcement is halting: "+
				"read the message above and fix the root cause. Acknowledge with: hookguard reset refusals",
			run)
	case run >= g.cfg.Refusal.ReminderAt:
		d.Message += "\nYou were just told this. Retrying a cosmetically different version of the same action will not change the outcome."
	}

	return d
}

func (g *Gate) record(e journal.Entry) {
	if g.journal == nil {
		return
	}
	if err := g.journal.Append(e); err != nil {
		slog.Warn("journal append failed", "kind", e.Kind, "error", err)
	}
}
