// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hookguard Contributors

// Package session manages the per-session lifecycle: resetting transient
// gates at start, surfacing carried-over state, and deriving the compliance
// summary at stop. Scores are always computed from the journal — a score is
// evidence, never a claim.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hookguard-dev/hookguard/internal/config"
	"github.com/hookguard-dev/hookguard/internal/history"
	"github.com/hookguard-dev/hookguard/internal/journal"
	"github.com/hookguard-dev/hookguard/internal/state"
	hgerr "github.com/hookguard-dev/hookguard/pkg/errors"
)

// HistoryStore is the slice of the history store the lifecycle needs.
type HistoryStore interface {
	Append(ctx context.Context, sum *history.Summary) error
	DetectRatingAnomalies(ctx context.Context) ([]history.RatingAnomaly, error)
}

// Manager drives session start and stop.
type Manager struct {
	cfg     *config.Config
	store   *state.Store
	journal *journal.Journal
	history HistoryStore

	now func() time.Time
}

// New creates a Manager. history may be nil; summaries are then journaled
// but not persisted across sessions.
func New(cfg *config.Config, store *state.Store, jnl *journal.Journal, hist HistoryStore) *Manager {
	return &Manager{
		cfg:     cfg,
		store:   store,
		journal: jnl,
		history: hist,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Start prepares state for a new session and returns notes to surface to the
// agent. Transient sections reset; the circuit breaker and the enforcement
// halt latch survive, because a new session is not a reset button.
func (m *Manager) Start(ctx context.Context, sessionID string) []string {
	var notes []string

	if note, ok := TakePendingNote(m.cfg); ok {
		notes = append(notes, "note from a previous session: "+note.Message)
	}

	_, err := m.store.Update(func(st *state.SessionState) error {
		if st.SaneLoop.Active && st.SaneLoop.StartedAt != nil &&
			m.now().Sub(*st.SaneLoop.StartedAt) > m.cfg.Session.StaleLoopAge() {
			m.record(journal.Entry{
				SessionID: sessionID,
				Kind:      journal.KindReset,
				Rule:      "stale_loop",
				Actor:     "session-start",
				Detail:    fmt.Sprintf("archived abandoned loop %q (iteration %d)", st.SaneLoop.Task, st.SaneLoop.Iteration),
			})
			notes = append(notes, fmt.Sprintf(
				"an unfinished loop (%q, iteration %d) was abandoned and has been archived", st.SaneLoop.Task, st.SaneLoop.Iteration))
			st.ResetSection(state.SectionSaneLoop)
		}

		for _, section := range []state.Section{
			state.SectionRequirements,
			state.SectionResearch,
			state.SectionEditAttempts,
			state.SectionSensitiveApprovals,
			state.SectionRefusalTracking,
		} {
			st.ResetSection(section)
		}
		st.LastPrompt = ""

		if st.CircuitBreaker.Tripped {
			note := fmt.Sprintf("circuit breaker is TRIPPED from a previous session (%d failures", st.CircuitBreaker.FailureCount)
			if st.CircuitBreaker.LastError != "" {
				note += ", last: " + st.CircuitBreaker.LastError
			}
			note += "). Mutations stay blocked until the user runs: hookguard reset breaker"
			notes = append(notes, note)
		}
		if st.Enforcement.Halted {
			notes = append(notes, "enforcement is halted pending acknowledgment (hookguard reset refusals): "+
				st.Enforcement.HaltedReason)
		}
		return nil
	})
	if err != nil {
		// Fail open: a start that cannot touch state still starts.
		if hgerr.IsLockTimeout(err) {
			slog.Warn("session start could not acquire state lock")
		} else {
			slog.Error("session start state update failed", "error", err)
		}
	}

	return notes
}

// StopResult is the derived end-of-session summary.
type StopResult struct {
	Score            int
	UniqueViolations []string
	Flags            []string
	Anomalies        []history.RatingAnomaly
}

// Stop derives the compliance score for the session from its journal window,
// flags a self-reported score that disagrees, persists the summary, and
// clears task-scoped state. The breaker and long-horizon patterns survive.
func (m *Manager) Stop(ctx context.Context, sessionID string, selfReported *int) (*StopResult, error) {
	entries, err := m.journal.ForSession(sessionID)
	if err != nil {
		return nil, err
	}

	res := &StopResult{
		UniqueViolations: journal.UniqueViolationRules(entries),
	}
	res.Score = journal.ComplianceScore(len(res.UniqueViolations))

	if selfReported != nil && *selfReported != res.Score {
		res.Flags = append(res.Flags,
			fmt.Sprintf("self_report_mismatch: claimed %d, derived %d", *selfReported, res.Score))
	}

	now := m.now()
	startedAt := now
	if len(entries) > 0 {
		startedAt = entries[0].At
	}

	if m.history != nil {
		sum := &history.Summary{
			SessionID:        sessionID,
			StartedAt:        startedAt,
			EndedAt:          now,
			Score:            res.Score,
			UniqueViolations: len(res.UniqueViolations),
			Flags:            strings.Join(res.Flags, "; "),
		}
		if err := m.history.Append(ctx, sum); err != nil {
			slog.Warn("session summary not persisted", "error", err)
		}
		anomalies, err := m.history.DetectRatingAnomalies(ctx)
		if err != nil {
			slog.Warn("rating anomaly scan failed", "error", err)
		}
		res.Anomalies = anomalies
		if len(anomalies) > 0 {
			WritePendingNote(m.cfg, fmt.Sprintf(
				"compliance scores across recent sessions look suspicious (%s); review the history db", anomalies[0].Kind))
		}
	}

	m.record(journal.Entry{
		SessionID: sessionID,
		Kind:      journal.KindSummary,
		Detail: fmt.Sprintf("score=%d unique_violations=%d flags=%s",
			res.Score, len(res.UniqueViolations), strings.Join(res.Flags, ";")),
	})

	_, err = m.store.Update(func(st *state.SessionState) error {
		for _, section := range []state.Section{
			state.SectionRequirements,
			state.SectionResearch,
			state.SectionEditAttempts,
			state.SectionSaneLoop,
			state.SectionSensitiveApprovals,
			state.SectionRefusalTracking,
		} {
			st.ResetSection(section)
		}
		st.LastPrompt = ""
		return nil
	})
	if err != nil {
		slog.Warn("post-summary state cleanup failed", "error", err)
	}

	return res, nil
}

func (m *Manager) record(e journal.Entry) {
	if m.journal == nil {
		return
	}
	if err := m.journal.Append(e); err != nil {
		slog.Warn("journal append failed", "kind", e.Kind, "error", err)
	}
}
