// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	cryptossh "github.com/toeirei/circuitdiag/internal/crypto/ssh"
	"golang.org/x/term"
)

// newKeygenCmd builds 'keygen <private-key-file>'.
func newKeygenCmd() *cobra.Command {
	var (
		comment        string
		passphraseFile string
		askPassphrase  bool
	)
	cmd := &cobra.Command{
		Use:   "keygen <private-key-file>",
		Short: "Create an ed25519 login key for key-based device credentials",
		Long: `Writes an OpenSSH private key to the given file (0600) and the public key
next to it with a '.pub' suffix. Reference the private key file as the key path
of a device or credential override, and install the public key on the device.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			passphrase, err := readPassphrase(passphraseFile, askPassphrase)
			if err != nil {
				return err
			}
			pub, priv, err := cryptossh.GenerateAndMarshalEd25519Key(comment, passphrase)
			if err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(priv), 0o600); err != nil {
				return err
			}
			if err := os.WriteFile(path+".pub", []byte(pub+"\n"), 0o644); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cryptossh.Fingerprint(pub))
			return nil
		},
	}
	cmd.Flags().StringVarP(&comment, "comment", "C", "circuitdiag", "Key comment")
	cmd.Flags().StringVar(&passphraseFile, "passphrase-file", "", "Read the key passphrase from this file")
	cmd.Flags().BoolVar(&askPassphrase, "ask-passphrase", false, "Prompt for a key passphrase")
	return cmd
}

// readPassphrase returns "" when neither source is requested.
func readPassphrase(file string, ask bool) (string, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", err
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}
	if !ask {
		return "", nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no terminal available for the passphrase prompt (use --passphrase-file)")
	}
	fmt.Fprint(os.Stderr, "Passphrase: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}
