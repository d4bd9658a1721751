// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"strings"

	"github.com/toeirei/circuitdiag/internal/model"
)

// TokenizeSearchQuery splits a query into lower-cased tokens, trimming whitespace.
// Returns nil for empty input.
func TokenizeSearchQuery(q string) []string {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil
	}
	parts := strings.Fields(q)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// FilterMappings keeps mappings where every token occurs in the circuit ID,
// description, command, contact name or the device label.
func FilterMappings(mappings []model.CommandMapping, devices map[int]model.Device, tokens []string) []model.CommandMapping {
	if len(tokens) == 0 {
		return mappings
	}
	var out []model.CommandMapping
	for _, m := range mappings {
		hay := strings.ToLower(strings.Join([]string{
			m.CircuitID, m.Description, m.Command, m.Contact.Name, devices[m.DeviceID].Label(),
		}, " "))
		match := true
		for _, tok := range tokens {
			if !strings.Contains(hay, tok) {
				match = false
				break
			}
		}
		if match {
			out = append(out, m)
		}
	}
	return out
}
