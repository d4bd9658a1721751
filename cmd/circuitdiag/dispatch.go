// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/spf13/cobra"
	"github.com/toeirei/circuitdiag/internal/credentials"
	"github.com/toeirei/circuitdiag/internal/dispatch"
)

// newDispatchCmd builds 'dispatch <circuit-id> --user <id>'.
func newDispatchCmd(a *app) *cobra.Command {
	var (
		userID string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "dispatch <circuit-id> --user <id>",
		Short: "Run a circuit's diagnostic commands on every mapped device",
		Long: `Looks up every device mapped to the circuit and runs its commands as the
given user, using that user's credential overrides or shared identity where
they apply. Results are printed in mapping order.

Examples:
  circuitdiag dispatch TEST-001 --user alice
  circuitdiag dispatch TEST-001 --user alice --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			circuitID := strings.TrimSpace(args[0])
			if circuitID == "" {
				return errors.New("circuit ID must not be empty")
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			coord := dispatch.New(st,
				credentials.NewResolver(st, a.log),
				dispatch.ConnectorOpener(a.connector(st)),
				a.cfg.DispatchConfig(),
				dispatch.WithLogger(a.log),
				dispatch.WithMetrics(a.metrics))

			rep, err := coord.Dispatch(cmd.Context(), circuitID, userID)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rep)
			}
			return newRenderer(cmd.OutOrStdout()).report(cmd.OutOrStdout(), rep)
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "ID of the user the commands run for")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
