// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hookguard Contributors

package hooks

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/hookguard-dev/hookguard/internal/journal"
	"github.com/hookguard-dev/hookguard/internal/state"
)

// commandLine matches a hookguard control command on any line of the prompt,
// so a command embedded in an otherwise free-form message still executes.
// Line-anchored on purpose: prose that merely mentions a command ("don't run
// hookguard reset breaker yet") must not trigger it.
var commandLine = regexp.MustCompile(`(?im)^\s*hookguard\s+(.+?)\s*$`)

const resetsHelp = `hookguard resets:
  hookguard reset breaker   re-arm the circuit breaker after fixing the root cause
  hookguard reset research  clear research progress (it must be re-earned)
  hookguard reset refusals  acknowledge repeated blocks and resume enforcement
  hookguard bypass on|off   disable/enable all checks (logged)
  hookguard bypass status   show whether bypass is active
  hookguard breaker status  show breaker state`

// runCommand executes a control command embedded in a user prompt. The
// second return is false when the prompt is not a command. Every
// state-changing command is journaled with the actor and the reason.
func (r *Runner) runCommand(sessionID, prompt string) (string, bool) {
	m := commandLine.FindStringSubmatch(prompt)
	if m == nil {
		return "", false
	}
	args := strings.Fields(strings.ToLower(m[1]))
	if len(args) == 0 {
		return resetsHelp, true
	}

	switch args[0] {
	case "bypass":
		if len(args) < 2 {
			return resetsHelp, true
		}
		return r.commandBypass(sessionID, args[1], m[1]), true
	case "reset":
		if len(args) < 2 {
			return resetsHelp, true
		}
		return r.commandReset(sessionID, args[1]), true
	case "breaker":
		if len(args) >= 2 && args[1] == "status" {
			return r.breakerStatus(), true
		}
		return resetsHelp, true
	case "help":
		return resetsHelp, true
	default:
		return resetsHelp, true
	}
}

func (r *Runner) commandBypass(sessionID, verb, raw string) string {
	switch verb {
	case "on":
		reason := strings.TrimSpace(strings.TrimPrefix(raw, "bypass on"))
		_, err := r.store.Update(func(st *state.SessionState) error {
			now := time.Now().UTC()
			st.Bypass = state.Bypass{Active: true, Reason: reason, EnabledAt: &now}
			return nil
		})
		if err != nil {
			return "bypass not enabled: " + err.Error()
		}
		r.record(journal.Entry{
			SessionID: sessionID, Kind: journal.KindReset, Rule: "bypass_on",
			Actor: "user", Detail: reason,
		})
		return "hookguard bypass is ON — all checks are skipped until: hookguard bypass off"
	case "off":
		_, err := r.store.Update(func(st *state.SessionState) error {
			st.Bypass = state.Bypass{}
			return nil
		})
		if err != nil {
			return "bypass not disabled: " + err.Error()
		}
		r.record(journal.Entry{
			SessionID: sessionID, Kind: journal.KindReset, Rule: "bypass_off", Actor: "user",
		})
		return "hookguard bypass is OFF — enforcement restored"
	case "status":
		status := "OFF"
		r.view(func(st *state.SessionState) {
			if st.Bypass.Active {
				status = "ON"
				if st.Bypass.Reason != "" {
					status += " (" + st.Bypass.Reason + ")"
				}
			}
		})
		return "hookguard bypass is " + status
	default:
		return resetsHelp
	}
}

func (r *Runner) commandReset(sessionID, target string) string {
	var sections []state.Section
	switch target {
	case "breaker":
		sections = []state.Section{state.SectionCircuitBreaker}
	case "research":
		sections = []state.Section{state.SectionResearch}
	case "refusals":
		sections = []state.Section{state.SectionRefusalTracking, state.SectionEnforcement}
	case "bypass":
		sections = []state.Section{state.SectionBypass}
	default:
		return resetsHelp
	}

	_, err := r.store.Update(func(st *state.SessionState) error {
		for _, s := range sections {
			st.ResetSection(s)
		}
		return nil
	})
	if err != nil {
		return fmt.Sprintf("reset %s failed: %v", target, err)
	}
	r.record(journal.Entry{
		SessionID: sessionID, Kind: journal.KindReset, Rule: "reset_" + target, Actor: "user",
	})
	return fmt.Sprintf("hookguard: %s reset", target)
}

func (r *Runner) breakerStatus() string {
	var out string
	r.view(func(st *state.SessionState) {
		cb := st.CircuitBreaker
		if !cb.Tripped {
			out = fmt.Sprintf("circuit breaker: armed (%d recent consecutive failures)", cb.FailureCount)
			return
		}
		out = fmt.Sprintf("circuit breaker: TRIPPED after %d failures", cb.FailureCount)
		if cb.LastError != "" {
			out += " — last: " + cb.LastError
		}
		out += "\nre-arm with: hookguard reset breaker"
	})
	return out
}

func (r *Runner) view(fn func(*state.SessionState)) {
	if err := r.store.View(fn); err != nil {
		slog.Warn("state view failed", "error", err)
	}
}
