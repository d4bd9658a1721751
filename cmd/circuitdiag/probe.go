// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/toeirei/circuitdiag/internal/i18n"
	"github.com/toeirei/circuitdiag/internal/model"
)

// newProbeCmd builds 'probe <host[:port]>'.
func newProbeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <host[:port]>",
		Short: "Check that a device accepts TCP connections on its SSH port",
		Long: `Runs only the reachability phase of a session: up to ssh.probe_attempts
TCP connects spaced by ssh.probe_delay. No login is attempted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := withDefaultPort(args[0])
			attempts, err := a.connector(nil).Probe(cmd.Context(), addr)
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), i18n.T("probe.unreachable", addr, err))
				return errors.New("probe failed")
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("probe.reachable", addr, attempts, a.cfg.SSH.ProbeAttempts))
			return nil
		},
	}
}

// withDefaultPort appends the SSH port when addr has none.
func withDefaultPort(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, strconv.Itoa(model.DefaultSSHPort))
}
