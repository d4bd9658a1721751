// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/toeirei/circuitdiag/internal/i18n"
	"github.com/toeirei/circuitdiag/internal/transfer"
)

// newMappingsCmd builds 'mappings export|import'.
func newMappingsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mappings",
		Short: "Export or import circuit mappings",
	}

	var filter string
	export := &cobra.Command{
		Use:   "export [output-file]",
		Short: "Write circuit mappings and their devices to a JSON file",
		Long: `Writes the circuit mappings and the devices they reference to a JSON
document. A file name ending in '.zst' is Zstandard-compressed. Without a file
the document is printed. Device secrets are never exported.

Examples:
  circuitdiag mappings export mappings.json.zst
  circuitdiag mappings export --filter olt`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			doc, err := transfer.Export(cmd.Context(), st, filter)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				return transfer.Write(cmd.OutOrStdout(), doc, false)
			}
			if err := transfer.WriteFile(args[0], doc); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("transfer.exported", len(doc.Devices), len(doc.Mappings), args[0]))
			return nil
		},
	}
	export.Flags().StringVar(&filter, "filter", "", "Only export mappings matching every search word")

	imp := &cobra.Command{
		Use:   "import <input-file>",
		Short: "Add circuit mappings from an exported file",
		Long: `Adds the devices and mappings of an exported document. Devices are matched
on name, address and port; mappings that already exist are skipped, so a file
can be imported more than once. Imported devices have no secret set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := transfer.ReadFile(args[0])
			if err != nil {
				return err
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			stats, err := transfer.Import(cmd.Context(), st, doc, a.log)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("transfer.imported", stats.DevicesCreated, stats.MappingsCreated, stats.MappingsSkipped))
			return nil
		},
	}

	cmd.AddCommand(export, imp)
	return cmd
}
