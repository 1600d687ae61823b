// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hookguard Contributors

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hookguard-dev/hookguard/internal/hooks"
)

// exitFunc is swappable so tests can observe the hook verdict without the
// process dying.
var exitFunc = os.Exit

var hookEvents = []string{
	hooks.EventUserPrompt,
	hooks.EventPreTool,
	hooks.EventPostTool,
	hooks.EventSessionStart,
	hooks.EventStop,
}

func newHookCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "hook <event>",
		Short:     "Run one hook event (payload on stdin)",
		Long:      "Reads a hook payload from stdin, runs the matching enforcement stage, and reports the verdict in the exit code: 0 allows, 2 blocks.",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: hookEvents,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime()
			if err != nil {
				// A broken installation must not wedge the agent: report
				// and allow.
				fmt.Fprintln(cmd.ErrOrStderr(), "hookguard disabled:", err)
				return nil
			}
			code := rt.runner.Run(cmd.Context(), strings.ToLower(args[0]),
				cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())

			// Close before exiting: exitFunc is os.Exit, which would skip
			// any deferred cleanup.
			rt.close()
			if code != hooks.ExitAllow {
				exitFunc(code)
			}
			return nil
		},
	}
}
