// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hookguard Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/hookguard-dev/hookguard/internal/journal"
	"github.com/hookguard-dev/hookguard/internal/state"
)

// --- lipgloss styles ---

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	alertStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	sectionStyle = lipgloss.NewStyle().Bold(true)
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 1)
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show enforcement state",
		Long:  "Renders the current session state: breaker, research progress, outstanding requirements, and recent journal activity.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := buildRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			if watch, _ := cmd.Flags().GetBool("watch"); watch {
				return runStatusWatch(rt)
			}

			view, err := renderStatus(rt)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), view)
			return nil
		},
	}

	cmd.Flags().BoolP("watch", "w", false, "refresh the view continuously")

	return cmd
}

// renderStatus builds the full status view from state and journal.
func renderStatus(rt *runtime) (string, error) {
	var snapshot state.SessionState
	if err := rt.store.View(func(st *state.SessionState) {
		snapshot = *st
	}); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("hookguard") + dimStyle.Render("  "+rt.cfg.DataDir) + "\n\n")

	b.WriteString(sectionStyle.Render("circuit breaker") + "  ")
	cb := snapshot.CircuitBreaker
	switch {
	case cb.Tripped:
		b.WriteString(alertStyle.Render(fmt.Sprintf("TRIPPED (%d failures)", cb.FailureCount)))
		if cb.LastError != "" {
			b.WriteString(dimStyle.Render(" " + cb.LastError))
		}
	case cb.FailureCount > 0:
		b.WriteString(warnStyle.Render(fmt.Sprintf("armed, %d consecutive failures", cb.FailureCount)))
	default:
		b.WriteString(okStyle.Render("armed"))
	}
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render("research") + "        ")
	var cats []string
	for _, cat := range rt.cfg.Research.Enabled() {
		if rec, ok := snapshot.Research[cat]; ok {
			cats = append(cats, okStyle.Render(cat+" ✓ ("+rec.Tool+")"))
		} else {
			cats = append(cats, dimStyle.Render(cat+" –"))
		}
	}
	b.WriteString(strings.Join(cats, "  ") + "\n")

	if outstanding := snapshot.Requirements.Outstanding(); len(outstanding) > 0 {
		b.WriteString(sectionStyle.Render("requirements") + "    " +
			warnStyle.Render(strings.Join(outstanding, ", ")) + "\n")
	}

	if snapshot.EditAttempts.Count > 0 {
		b.WriteString(sectionStyle.Render("edit attempts") + "   " +
			fmt.Sprintf("%d of %d without verification\n", snapshot.EditAttempts.Count, rt.cfg.Limits.EditAttempts))
	}

	if snapshot.Enforcement.Halted {
		b.WriteString(sectionStyle.Render("enforcement") + "     " +
			alertStyle.Render("HALTED: "+snapshot.Enforcement.HaltedReason) + "\n")
	}

	if snapshot.Bypass.Active {
		line := "ACTIVE"
		if snapshot.Bypass.Reason != "" {
			line += " (" + snapshot.Bypass.Reason + ")"
		}
		b.WriteString(sectionStyle.Render("bypass") + "          " + alertStyle.Render(line) + "\n")
	}

	if loop := snapshot.SaneLoop; loop.Active {
		checked := 0
		for _, c := range loop.AcceptanceCriteria {
			if c.Checked {
				checked++
			}
		}
		b.WriteString(sectionStyle.Render("loop") + "            " +
			fmt.Sprintf("%q iteration %d, criteria %d/%d\n", loop.Task, loop.Iteration, checked, len(loop.AcceptanceCriteria)))
	}

	if tail := journalTail(rt.journal, 5); tail != "" {
		b.WriteString("\n" + sectionStyle.Render("recent journal") + "\n" + tail)
	}

	return boxStyle.Render(strings.TrimRight(b.String(), "\n")), nil
}

// journalTail renders the last n journal entries, oldest first.
func journalTail(jnl *journal.Journal, n int) string {
	entries, err := jnl.Entries()
	if err != nil || len(entries) == 0 {
		return ""
	}
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}

	var b strings.Builder
	for _, e := range entries {
		line := fmt.Sprintf("%s  %-9s %-16s %s",
			e.At.Format("15:04:05"), e.Kind, e.Rule, firstLine(e.Detail))
		switch e.Kind {
		case journal.KindBlock, journal.KindViolation, journal.KindHalt, journal.KindTamper:
			b.WriteString(alertStyle.Render(line))
		case journal.KindWarn, journal.KindDegraded:
			b.WriteString(warnStyle.Render(line))
		default:
			b.WriteString(dimStyle.Render(line))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	if len(s) > 80 {
		s = s[:80] + "…"
	}
	return s
}
