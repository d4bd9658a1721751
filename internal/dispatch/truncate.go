// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package dispatch

import (
	"fmt"
	"unicode/utf8"
)

// truncationMarker replaces the elided middle of an oversized output.
const truncationMarker = "\n\n... [%d characters truncated] ...\n\n"

// Truncate returns output unchanged when it has at most cfg.Ceiling
// characters. Otherwise it keeps the first cfg.Head and last cfg.Tail
// characters around a marker and reports true. cfg is normalized as in New.
func Truncate(output string, cfg Config) (string, bool) {
	cfg = cfg.withDefaults()
	n := utf8.RuneCountInString(output)
	if n <= cfg.Ceiling {
		return output, false
	}
	head, tail := cfg.Head, cfg.Tail

	runes := []rune(output)
	marker := fmt.Sprintf(truncationMarker, n-head-tail)
	return string(runes[:head]) + marker + string(runes[n-tail:]), true
}
