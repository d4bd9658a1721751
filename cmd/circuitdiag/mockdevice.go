// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	cryptossh "github.com/toeirei/circuitdiag/internal/crypto/ssh"
	"github.com/toeirei/circuitdiag/internal/i18n"
	"github.com/toeirei/circuitdiag/internal/mockdevice"
	"golang.org/x/crypto/ssh"
)

// newMockDeviceCmd builds 'mock-device'.
func newMockDeviceCmd(a *app) *cobra.Command {
	var (
		listen         string
		mode           string
		username       string
		password       string
		hostKeyPath    string
		authorizedKeys string
		delays         []string
		hang           []string
		stall          []string
	)
	cmd := &cobra.Command{
		Use:   "mock-device",
		Short: "Run an SSH server that answers like a network device",
		Long: `Starts an in-process SSH server with canned answers to 'show version',
'show interface', 'show circuit id TEST-...' and 'show run'. Use it with
'seed-test' to try dispatches without real equipment.

Modes: password, keyboard-interactive (rejects password auth like OLT
equipment), publickey, all.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := mockdevice.Config{
				Username: username,
				Password: password,
				Mode:     mockdevice.AuthMode(mode),
				Hang:     hang,
				Stall:    stall,
				Log:      a.log,
			}
			if hostKeyPath != "" {
				signer, err := cryptossh.LoadOrCreateHostKey(hostKeyPath)
				if err != nil {
					return err
				}
				cfg.HostKey = signer
			}
			if authorizedKeys != "" {
				keys, err := readAuthorizedKeys(authorizedKeys)
				if err != nil {
					return err
				}
				cfg.AuthorizedKeys = keys
			}
			d, err := parseDelays(delays)
			if err != nil {
				return err
			}
			cfg.Delays = d

			srv, err := mockdevice.New(cfg)
			if err != nil {
				return err
			}
			addr, err := srv.Start(listen)
			if err != nil {
				return err
			}
			defer func() { _ = srv.Close() }()

			user := username
			if user == "" {
				user = mockdevice.DefaultUsername
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, i18n.T("mock.listening", addr, mode, user))
			fmt.Fprintln(out, cryptossh.Fingerprint(string(ssh.MarshalAuthorizedKey(srv.HostKey()))))

			<-cmd.Context().Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:2222", "Address to listen on")
	cmd.Flags().StringVar(&mode, "mode", string(mockdevice.ModePassword), "Authentication mode")
	cmd.Flags().StringVar(&username, "username", "", "Login name (default \""+mockdevice.DefaultUsername+"\")")
	cmd.Flags().StringVar(&password, "password", "", "Login password (default is the lab password)")
	cmd.Flags().StringVar(&hostKeyPath, "host-key", "", "Host key file, created if missing (default is a fresh key per run)")
	cmd.Flags().StringVar(&authorizedKeys, "authorized-keys", "", "authorized_keys file for publickey mode")
	cmd.Flags().StringSliceVar(&delays, "delay", nil, "Per-command delay as prefix=duration, e.g. 'show run=30s'")
	cmd.Flags().StringSliceVar(&hang, "hang", nil, "Command prefixes whose output never ends")
	cmd.Flags().StringSliceVar(&stall, "stall", nil, "Command prefixes after which the device stops answering")
	return cmd
}

func readAuthorizedKeys(path string) ([]ssh.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var keys []ssh.PublicKey
	for len(data) > 0 {
		key, _, _, rest, err := ssh.ParseAuthorizedKey(data)
		if err != nil {
			break
		}
		keys = append(keys, key)
		data = rest
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no public keys in %s", path)
	}
	return keys, nil
}

func parseDelays(specs []string) (map[string]time.Duration, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	out := make(map[string]time.Duration, len(specs))
	for _, s := range specs {
		prefix, dur, ok := strings.Cut(s, "=")
		if !ok || strings.TrimSpace(prefix) == "" {
			return nil, fmt.Errorf("invalid delay %q, want prefix=duration", s)
		}
		d, err := time.ParseDuration(strings.TrimSpace(dur))
		if err != nil {
			return nil, fmt.Errorf("invalid delay %q: %w", s, err)
		}
		out[strings.TrimSpace(prefix)] = d
	}
	return out, nil
}
