// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hookguard Contributors

package gate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hookguard-dev/hookguard/internal/state"
)

// checkBlockedPath denies any tool, read or write, whose target matches the
// credential and system-file deny list.
func (g *Gate) checkBlockedPath(req *Request, _ *state.SessionState) *Decision {
	path := req.FilePath()
	if path == "" {
		return nil
	}
	rule, denied := g.paths.Denied(path)
	if !denied {
		return nil
	}
	return &Decision{
		Action: ActionBlock,
		Message: fmt.Sprintf("%q matches protected location %q. Credentials and system files are off limits. "+
			"If a value from there is genuinely needed, ask the user to provide it.", path, rule),
	}
}

// checkStateFile keeps the agent out of hookguard's own data directory.
// Reads are fine; mutations would let the agent erase its own breaker.
func (g *Gate) checkStateFile(req *Request, _ *state.SessionState) *Decision {
	if !req.Capability().Mutating() {
		return nil
	}
	path := req.FilePath()
	if path == "" {
		return nil
	}
	abs, err := filepath.Abs(os.ExpandEnv(path))
	if err != nil {
		return nil
	}
	dataDir, err := filepath.Abs(g.cfg.DataDir)
	if err != nil {
		return nil
	}
	if !underDir(filepath.Clean(abs), dataDir) {
		return nil
	}
	return &Decision{
		Action: ActionBlock,
		Message: fmt.Sprintf("%q is hookguard's own state and is not editable by the agent. "+
			"State is adjusted with explicit user commands (hookguard reset <section>).", path),
	}
}

// checkSensitiveFile requires a prior explicit user approval before touching
// files that commonly hold secrets (.env, private keys). Template and
// example variants are exempt.
func (g *Gate) checkSensitiveFile(req *Request, st *state.SessionState) *Decision {
	if !req.Capability().Mutating() {
		return nil
	}
	path := req.FilePath()
	if path == "" || !g.paths.Sensitive(path) {
		return nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if st.SensitiveApprovals[abs] {
		return nil
	}
	return &Decision{
		Action: ActionBlock,
		Message: fmt.Sprintf("%q looks like a secrets file and has not been approved for modification. "+
			"Ask the user to run: hookguard approve %s", path, abs),
	}
}

// checkFileSize projects the post-edit line count and warns past the soft
// limit, blocks past the hard limit. Markdown gets a larger budget.
func (g *Gate) checkFileSize(req *Request, _ *state.SessionState) *Decision {
	if req.Capability() != CapLocalMutation {
		return nil
	}
	path := req.FilePath()
	if path == "" {
		return nil
	}

	projected := g.projectedLines(req, path)
	if projected <= 0 {
		return nil
	}

	hard := g.cfg.Limits.HardLines
	if isMarkdown(path) {
		hard = g.cfg.Limits.MarkdownHardLines
	}

	if projected > hard {
		return &Decision{
			Action: ActionBlock,
			Message: fmt.Sprintf("%q would grow to ~%d lines (limit %d). "+
				"Split the file into focused units instead of growing it further.", path, projected, hard),
		}
	}
	if projected > g.cfg.Limits.SoftLines && !isMarkdown(path) {
		return &Decision{
			Action: ActionWarn,
			Message: fmt.Sprintf("%q is heading past %d lines (~%d projected). "+
				"Consider splitting before it gets harder.", path, g.cfg.Limits.SoftLines, projected),
		}
	}
	return nil
}

// projectedLines estimates the file's size after the pending mutation. A
// full-content write is exact; an edit is the current size plus the line
// delta of each replacement. Unreadable files project from new content only.
func (g *Gate) projectedLines(req *Request, path string) int {
	if content := req.Content(); content != "" {
		return countLines(content)
	}

	existing := 0
	if data, err := os.ReadFile(path); err == nil {
		existing = countLines(string(data))
	}

	delta := 0
	if old, newStr := req.OldString(), req.NewString(); old != "" || newStr != "" {
		delta += countLines(newStr) - countLines(old)
	}
	if raw, ok := req.Input["edits"].([]any); ok {
		for _, e := range raw {
			m, ok := e.(map[string]any)
			if !ok {
				continue
			}
			oldStr, _ := m["old_string"].(string)
			newStr, _ := m["new_string"].(string)
			delta += countLines(newStr) - countLines(oldStr)
		}
	}
	if existing == 0 && delta <= 0 {
		return 0
	}
	return existing + delta
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}

func isMarkdown(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".md" || ext == ".markdown"
}

// checkCircuitBreaker blocks mutating tools while the breaker is tripped.
// Read-only tools stay available so the agent can investigate its way out.
func (g *Gate) checkCircuitBreaker(req *Request, st *state.SessionState) *Decision {
	if !req.Capability().Mutating() || !st.CircuitBreaker.Tripped {
		return nil
	}
	msg := fmt.Sprintf("circuit breaker is tripped after %d failures", st.CircuitBreaker.FailureCount)
	if st.CircuitBreaker.LastError != "" {
		msg += fmt.Sprintf(" (last: %s)", st.CircuitBreaker.LastError)
	}
	msg += ". Mutations are paused. Investigate with read-only tools, explain the root cause to the user, " +
		"then have them run: hookguard reset breaker"
	return &Decision{Action: ActionBlock, Message: msg}
}

// checkResearch blocks mutations until every enabled research category has a
// completion record. Categories whose capability is known-unhealthy are
// skipped rather than demanded. A research-only instruction downgrades to a
// warning: the investigation is the task, but a mutation during it is
// probably not what the user asked for.
func (g *Gate) checkResearch(req *Request, st *state.SessionState) *Decision {
	if !req.Capability().Mutating() || !st.Requirements.IsTask {
		return nil
	}

	if st.Requirements.IsResearchOnly {
		return &Decision{
			Action:  ActionWarn,
			Message: "the current instruction asked for investigation only; confirm the user wants changes before modifying anything",
		}
	}

	var missing []string
	for _, cat := range g.cfg.Research.Enabled() {
		if _, done := st.Research[cat]; done {
			continue
		}
		if h, ok := st.MCPHealth[cat]; ok && !h.Verified && h.FailureCount > 0 {
			continue
		}
		missing = append(missing, cat)
	}
	if len(missing) == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "research is incomplete before modifying code. Missing: %s.\n", strings.Join(missing, ", "))
	for _, cat := range missing {
		fmt.Fprintf(&b, "  %s: %s\n", cat, researchHint(cat))
	}
	b.WriteString("Complete each category, then retry.")
	return &Decision{Action: ActionBlock, Message: strings.TrimRight(b.String(), "\n")}
}

func researchHint(category string) string {
	switch category {
	case "local":
		return "read the relevant code (Read/Grep/Glob) and confirm how it works today"
	case "web":
		return "search the web (WebSearch/WebFetch) for current behavior of the APIs involved"
	case "docs":
		return "query the documentation server for the libraries you are about to touch"
	case "github":
		return "search the code host for prior art and related issues"
	case "memory":
		return "check shared knowledge for notes from earlier sessions"
	default:
		return "complete this category"
	}
}

// checkRequirements blocks mutations while explicit user-stated requirements
// remain outstanding.
func (g *Gate) checkRequirements(req *Request, st *state.SessionState) *Decision {
	if !req.Capability().Mutating() {
		return nil
	}
	outstanding := st.Requirements.Outstanding()

	// Research has its own check with better remediation text.
	outstanding = slicesWithout(outstanding, "research")
	if len(outstanding) == 0 {
		return nil
	}
	return &Decision{
		Action: ActionBlock,
		Message: fmt.Sprintf("the user asked for %s and that has not happened yet. "+
			"Do it first, or tell the user why it should not apply.", strings.Join(outstanding, ", ")),
	}
}

func slicesWithout(items []string, drop string) []string {
	out := items[:0]
	for _, it := range items {
		if it != drop {
			out = append(out, it)
		}
	}
	return out
}

// checkGaming looks for research records that were produced to satisfy the
// checker rather than to learn: implausibly fast completion, batches of
// identical timestamps, or a failure burst capped by a sudden success.
func (g *Gate) checkGaming(req *Request, st *state.SessionState) *Decision {
	if !req.Capability().Mutating() || len(st.Research) == 0 {
		return nil
	}

	if reason := g.researchGamed(st); reason != "" {
		for cat := range st.Research {
			delete(st.Research, cat)
		}
		return &Decision{
			Action: ActionBlock,
			Message: "research records look fabricated (" + reason + ") and have been invalidated. " +
				"Re-do the research for real: read the code, run the searches, and let the results inform the change.",
		}
	}
	return nil
}

func (g *Gate) researchGamed(st *state.SessionState) string {
	records := make([]*state.ResearchRecord, 0, len(st.Research))
	for _, r := range st.Research {
		records = append(records, r)
	}

	// Completing several categories inside an implausibly narrow window.
	if len(records) >= 2 {
		first, last := records[0].CompletedAt, records[0].CompletedAt
		for _, r := range records[1:] {
			if r.CompletedAt.Before(first) {
				first = r.CompletedAt
			}
			if r.CompletedAt.After(last) {
				last = r.CompletedAt
			}
		}
		if span := last.Sub(first); span < g.cfg.Gaming.MinResearchWindow() {
			return fmt.Sprintf("%d categories completed within %s", len(records), span.Round(time.Second))
		}
	}

	// Exactly identical timestamps mean the records were written in one
	// shot, not produced by separate tool invocations.
	seen := map[int64]int{}
	for _, r := range records {
		ns := r.CompletedAt.UnixNano()
		seen[ns]++
		if seen[ns] > g.cfg.Gaming.IdenticalTimestampMax {
			return "multiple categories share an identical completion timestamp"
		}
	}

	// A burst of failures immediately resolved by a claimed success.
	window := g.cfg.Gaming.BurstWindow
	outcomes := st.Patterns.RecentOutcomes
	if window > 0 && len(outcomes) >= window {
		recent := outcomes[len(outcomes)-window:]
		failures := 0
		for _, ev := range recent[:len(recent)-1] {
			if ev.Failure {
				failures++
			}
		}
		ratio := float64(failures) / float64(window-1)
		if !recent[len(recent)-1].Failure && ratio >= g.cfg.Gaming.BurstFailureRatio {
			return fmt.Sprintf("a run of %d failures flipped to success with no intervening investigation", failures)
		}
	}
	return ""
}

// checkEditAttempts blocks after too many edits of the same problem with no
// successful verification in between, and invalidates research: at that
// point the working model of the code is wrong, not the typing.
func (g *Gate) checkEditAttempts(req *Request, st *state.SessionState) *Decision {
	if req.Capability() != CapLocalMutation {
		return nil
	}
	limit := g.cfg.Limits.EditAttempts
	if limit <= 0 || int(st.EditAttempts.Count) < limit {
		return nil
	}

	now := g.now()
	st.EditAttempts.Count = 0
	st.EditAttempts.ResetAt = &now
	for cat := range st.Research {
		delete(st.Research, cat)
	}

	return &Decision{
		Action: ActionBlock,
		Message: fmt.Sprintf("%d edit attempts without a passing verification. The current understanding of "+
			"this code is wrong; more edits will not fix that. Research has been reset — start over from reading "+
			"the code, and verify each hypothesis before editing.", limit),
	}
}
