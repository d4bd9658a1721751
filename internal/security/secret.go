// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

// Package security holds the login material of network devices: device
// passwords, shared identity passwords and private key passphrases. It is
// read from the inventory store and handed to the SSH authentication
// callbacks, and nowhere else shows up in clear text.
package security

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"io"
)

const redacted = "[SECRET]"

// Secret is device login material. Printing, zap fields, JSON and text
// encoding all yield "[SECRET]", so a secret that slips into a dispatch
// report, a log line or an export document is still not disclosed.
type Secret []byte

// String redacts the secret.
func (s Secret) String() string { return redacted }

// Format redacts the secret for every verb, `%#v` included.
func (s Secret) Format(f fmt.State, _ rune) {
	_, _ = io.WriteString(f, redacted)
}

// MarshalJSON redacts the secret.
func (s Secret) MarshalJSON() ([]byte, error) { return json.Marshal(redacted) }

// MarshalText redacts the secret.
func (s Secret) MarshalText() ([]byte, error) { return []byte(redacted), nil }

// Reveal returns the plaintext for an SSH password callback.
func (s Secret) Reveal() string { return string(s) }

// Answers returns the plaintext once per keyboard-interactive prompt. Devices
// like OLTs ask for the password through keyboard-interactive, sometimes
// with more than one prompt in a round.
func (s Secret) Answers(prompts int) []string {
	out := make([]string, prompts)
	for i := range out {
		out[i] = string(s)
	}
	return out
}

// Bytes returns a copy, e.g. a key passphrase for decryption. Callers clear
// the copy when done.
func (s Secret) Bytes() []byte {
	if s == nil {
		return nil
	}
	out := make([]byte, len(s))
	copy(out, s)
	return out
}

// IsEmpty reports whether no login material is held. Devices on shared
// authentication and imported devices have none.
func (s Secret) IsEmpty() bool { return len(s) == 0 }

// Value stores the secret as raw bytes in the inventory tables.
func (s Secret) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return []byte(s), nil
}

// Scan reads a secret column; NULL becomes an empty secret.
func (s *Secret) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = nil
	case []byte:
		*s = Secret(append([]byte(nil), v...))
	case string:
		*s = FromString(v)
	default:
		return fmt.Errorf("cannot scan %T into a secret", src)
	}
	return nil
}

// FromString wraps a password from configuration or seeding. The empty
// string yields an empty secret.
func FromString(in string) Secret {
	if in == "" {
		return nil
	}
	return Secret(in)
}
