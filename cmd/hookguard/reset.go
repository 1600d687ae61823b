// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hookguard Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hookguard-dev/hookguard/internal/journal"
	"github.com/hookguard-dev/hookguard/internal/state"
)

// resetTargets maps CLI targets to the state sections they clear. "refusals"
// clears the halt latch along with the per-rule counters: acknowledging the
// blocks and re-arming enforcement is one act.
var resetTargets = map[string][]state.Section{
	"breaker":  {state.SectionCircuitBreaker},
	"research": {state.SectionResearch},
	"refusals": {state.SectionRefusalTracking, state.SectionEnforcement},
	"bypass":   {state.SectionBypass},
}

func newResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "reset <breaker|research|refusals|bypass>",
		Short:     "Reset a state section to its defaults",
		Long:      "Resets one enforcement section. Every reset is recorded in the violation journal with the acting user.",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"breaker", "research", "refusals", "bypass"},
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			target := args[0]
			_, err = rt.store.Update(func(st *state.SessionState) error {
				for _, section := range resetTargets[target] {
					st.ResetSection(section)
				}
				return nil
			})
			if err != nil {
				return err
			}

			if err := rt.journal.Append(journal.Entry{
				Kind:   journal.KindReset,
				Rule:   "reset_" + target,
				Actor:  "cli",
				Detail: "explicit reset via hookguard reset " + target,
			}); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s reset\n", target)
			return nil
		},
	}
	return cmd
}
