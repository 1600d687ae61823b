// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hookguard Contributors

package hooks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/hookguard-dev/hookguard/internal/classify"
	"github.com/hookguard-dev/hookguard/internal/config"
	"github.com/hookguard-dev/hookguard/internal/gate"
	"github.com/hookguard-dev/hookguard/internal/journal"
	"github.com/hookguard-dev/hookguard/internal/session"
	"github.com/hookguard-dev/hookguard/internal/state"
	"github.com/hookguard-dev/hookguard/internal/track"
)

// Exit codes of the hook protocol.
const (
	ExitAllow = 0
	ExitBlock = 2
)

// Event names accepted by `hookguard hook <event>`.
const (
	EventUserPrompt   = "user-prompt"
	EventPreTool      = "pre-tool"
	EventPostTool     = "post-tool"
	EventSessionStart = "session-start"
	EventStop         = "stop"
)

// Runner dispatches one hook event through the enforcement pipeline.
type Runner struct {
	cfg      *config.Config
	store    *state.Store
	journal  *journal.Journal
	gate     *gate.Gate
	tracker  *track.Tracker
	sessions *session.Manager
}

// NewRunner wires a Runner.
func NewRunner(cfg *config.Config, store *state.Store, jnl *journal.Journal,
	g *gate.Gate, tr *track.Tracker, sm *session.Manager) *Runner {
	return &Runner{
		cfg:      cfg,
		store:    store,
		journal:  jnl,
		gate:     g,
		tracker:  tr,
		sessions: sm,
	}
}

// Run executes one hook event: payload on stdin, context for the agent on
// stdout, block reasons on stderr, verdict in the exit code. The outermost
// recover maps any internal panic to allow — enforcement bugs must never
// take the agent down with them.
func (r *Runner) Run(ctx context.Context, event string, stdin io.Reader, stdout, stderr io.Writer) (code int) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("hook runner panicked, allowing", "event", event, "panic", rec)
			code = ExitAllow
		}
	}()

	payload, ok := ParsePayload(stdin)
	if !ok {
		return ExitAllow
	}

	switch event {
	case EventUserPrompt:
		return r.userPrompt(payload, stdout)
	case EventPreTool:
		return r.preTool(payload, stdout, stderr)
	case EventPostTool:
		return r.postTool(payload, stdout)
	case EventSessionStart:
		return r.sessionStart(ctx, payload, stdout)
	case EventStop:
		return r.stop(ctx, payload, stdout)
	default:
		slog.Warn("unknown hook event, allowing", "event", event)
		return ExitAllow
	}
}

// userPrompt classifies the incoming instruction and arms the gates it
// implies. Control commands (hookguard ...) are executed here instead of
// reaching the agent.
func (r *Runner) userPrompt(p Payload, stdout io.Writer) int {
	if reply, handled := r.runCommand(p.SessionID, p.Prompt); handled {
		fmt.Fprintln(stdout, reply)
		return ExitAllow
	}

	var lastPrompt string
	r.view(func(st *state.SessionState) { lastPrompt = st.LastPrompt })

	res := classify.Classify(p.Prompt, lastPrompt)

	var loopStarted bool
	_, err := r.store.Update(func(st *state.SessionState) error {
		st.LastPrompt = p.Prompt

		switch res.Kind {
		case classify.KindTask, classify.KindBigTask:
			if res.FreshStart {
				// A fresh-start trigger begins a new unit of work: earlier
				// requirements are replaced, not merged.
				st.ResetSection(state.SectionRequirements)
				st.ResetSection(state.SectionResearch)
				st.ResetSection(state.SectionEditAttempts)
			}
			st.Requirements.IsTask = true
			st.Requirements.IsBigTask = res.Kind == classify.KindBigTask
			st.Requirements.IsResearchOnly = res.ResearchOnly
			for _, req := range res.Requirements {
				st.Requirements.AddRequested(req)
			}
			if slices.Contains(res.Requirements, classify.RequirementLoop) && !st.SaneLoop.Active {
				now := time.Now().UTC()
				st.SaneLoop = state.SaneLoop{
					Active:        true,
					Task:          promptSummary(p.Prompt),
					Iteration:     1,
					MaxIterations: uint(r.cfg.Limits.LoopIterations),
					StartedAt:     &now,
				}
				// Starting the loop is what the user asked for.
				st.Requirements.MarkSatisfied(classify.RequirementLoop)
				loopStarted = true
			}
		}
		return nil
	})
	if err != nil {
		slog.Warn("prompt classification not persisted", "error", err)
	}

	var lines []string
	for _, hit := range res.Triggers {
		lines = append(lines, fmt.Sprintf("heads up (%q): %s", hit.Word, hit.Warning))
	}
	if res.Frustration.Any() {
		lines = append(lines, "the user sounds frustrated; slow down, re-read their last message, and confirm the actual ask before acting")
	}
	if res.Kind == classify.KindBigTask {
		lines = append(lines, "this looks like a large task; break it into acceptance criteria and work them one at a time")
	}
	if loopStarted {
		lines = append(lines, fmt.Sprintf("structured loop started (max %d iterations); keep acceptance criteria in your todo list and verify each iteration", r.cfg.Limits.LoopIterations))
	}
	if len(lines) > 0 {
		fmt.Fprintln(stdout, strings.Join(lines, "\n"))
	}
	return ExitAllow
}

func (r *Runner) preTool(p Payload, stdout, stderr io.Writer) int {
	req := gate.ParseRequest(p.SessionID, p.ToolName, p.ToolInput)
	decision := r.gate.Evaluate(req)

	switch decision.Action {
	case gate.ActionBlock:
		fmt.Fprintln(stderr, decision.Message)
		return ExitBlock
	case gate.ActionWarn:
		fmt.Fprintln(stdout, decision.Message)
	}
	return ExitAllow
}

func (r *Runner) postTool(p Payload, stdout io.Writer) int {
	req := gate.ParseRequest(p.SessionID, p.ToolName, p.ToolInput)
	for _, reminder := range r.tracker.Observe(req, p.ToolResponse) {
		fmt.Fprintln(stdout, reminder)
	}
	return ExitAllow
}

func (r *Runner) sessionStart(ctx context.Context, p Payload, stdout io.Writer) int {
	for _, note := range r.sessions.Start(ctx, p.SessionID) {
		fmt.Fprintln(stdout, note)
	}
	return ExitAllow
}

func (r *Runner) stop(ctx context.Context, p Payload, stdout io.Writer) int {
	// A stop hook re-triggered by its own continuation must not loop.
	if p.StopHookActive {
		return ExitAllow
	}

	res, err := r.sessions.Stop(ctx, p.SessionID, p.SelfReported)
	if err != nil {
		slog.Error("session summary failed", "error", err)
		return ExitAllow
	}

	fmt.Fprintf(stdout, "session compliance: %d (unique violations: %d)\n",
		res.Score, len(res.UniqueViolations))
	for _, flag := range res.Flags {
		fmt.Fprintln(stdout, "flag: "+flag)
	}
	for _, a := range res.Anomalies {
		fmt.Fprintf(stdout, "rating anomaly (%s): %s\n", a.Kind, a.Detail)
	}
	return ExitAllow
}

func (r *Runner) record(e journal.Entry) {
	if r.journal == nil {
		return
	}
	if err := r.journal.Append(e); err != nil {
		slog.Warn("journal append failed", "kind", e.Kind, "error", err)
	}
}

// promptSummary reduces a prompt to a short single-line task label.
func promptSummary(prompt string) string {
	line := strings.TrimSpace(prompt)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = strings.TrimSpace(line[:idx])
	}
	if len(line) > 120 {
		line = line[:120] + "…"
	}
	return line
}
