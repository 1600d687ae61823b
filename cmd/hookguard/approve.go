// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hookguard Contributors

package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hookguard-dev/hookguard/internal/journal"
	"github.com/hookguard-dev/hookguard/internal/state"
	hgerr "github.com/hookguard-dev/hookguard/pkg/errors"
)

func newApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <path>",
		Short: "Approve one sensitive file for modification this session",
		Long:  "Grants the agent permission to modify a secrets-like file (.env, private keys) for the rest of the session. Approvals are cleared at session start.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			abs, err := filepath.Abs(args[0])
			if err != nil {
				return hgerr.Wrapf(err, hgerr.CodeCLIInputInvalid, "resolving %s", args[0])
			}

			_, err = rt.store.Update(func(st *state.SessionState) error {
				st.SensitiveApprovals[abs] = true
				return nil
			})
			if err != nil {
				return err
			}

			if err := rt.journal.Append(journal.Entry{
				Kind:   journal.KindReset,
				Rule:   "sensitive_approval",
				Actor:  "cli",
				Detail: abs,
			}); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "approved for this session: %s\n", abs)
			return nil
		},
	}
}
