// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

// Package commands turns a mapping's raw command string into the
// ordered list of commands sent to a device.
package commands

import "strings"

const (
	// Separator splits commands in a command string.
	Separator = ";"
	// EscapedSeparator is a literal semicolon inside a command.
	EscapedSeparator = `\;`

	// placeholder stands in for escaped separators while splitting. It uses a
	// private-use code point that cannot appear in device commands.
	placeholder = "\uE000"
)

// Parse splits raw on unescaped semicolons. Pieces are trimmed and empty
// pieces dropped. Order is preserved and duplicates are kept.
func Parse(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	protected := strings.ReplaceAll(raw, EscapedSeparator, placeholder)
	parts := strings.Split(protected, Separator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(strings.ReplaceAll(p, placeholder, Separator))
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Join is the inverse of Parse for display and export: literal semicolons
// are escaped and commands joined with "; ".
func Join(cmds []string) string {
	escaped := make([]string, 0, len(cmds))
	for _, c := range cmds {
		escaped = append(escaped, strings.ReplaceAll(c, Separator, EscapedSeparator))
	}
	return strings.Join(escaped, Separator+" ")
}
