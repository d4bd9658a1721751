// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/toeirei/circuitdiag/internal/i18n"
	"github.com/toeirei/circuitdiag/internal/mockdevice"
)

// newSeedCmd builds 'seed-test'.
func newSeedCmd(a *app) *cobra.Command {
	var (
		address string
		port    int
	)
	cmd := &cobra.Command{
		Use:   "seed-test",
		Short: "Add the mock device and the TEST-* demo circuits to the database",
		Long: `Records a device pointing at a running 'circuitdiag mock-device' with its
default login, and maps the demo circuits TEST-001, TEST-002 and TEST-MULTI to
it. Running it again adds nothing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			res, err := mockdevice.Seed(cmd.Context(), st, address, port)
			if err != nil {
				return err
			}
			for _, id := range res.Created {
				fmt.Fprintln(cmd.OutOrStdout(), i18n.T("seed.created", id, res.Device.Label(), res.Device.Addr()))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&address, "address", "127.0.0.1", "Address of the mock device")
	cmd.Flags().IntVar(&port, "port", 2222, "SSH port of the mock device")
	return cmd
}
