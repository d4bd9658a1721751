// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package dispatch

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	small := Config{Ceiling: 10, Head: 3, Tail: 2}
	tests := []struct {
		name      string
		in        string
		cfg       Config
		want      string
		truncated bool
	}{
		{"empty", "", small, "", false},
		{"at ceiling", "0123456789", small, "0123456789", false},
		{"over ceiling", "0123456789AB", small, "012" + fmt.Sprintf(truncationMarker, 7) + "AB", true},
		{"head and tail clamped to ceiling", "0123456789AB", Config{Ceiling: 10, Head: 6, Tail: 6},
			"012345" + fmt.Sprintf(truncationMarker, 2) + "89AB", true},
		{"head alone over ceiling", "0123456789AB", Config{Ceiling: 10, Head: 20},
			"0123456789" + fmt.Sprintf(truncationMarker, 2), true},
		{"zero head and tail split the ceiling", "0123456789AB", Config{Ceiling: 10},
			"01234" + fmt.Sprintf(truncationMarker, 2) + "789AB", true},
		{"counts characters not bytes", strings.Repeat("ü", 10), small, strings.Repeat("ü", 10), false},
		{"multibyte split on rune boundary", strings.Repeat("é", 12), small,
			"ééé" + fmt.Sprintf(truncationMarker, 7) + "éé", true},
		{"head only", "abcdefghijkl", Config{Ceiling: 10, Head: 4}, "abcd" + fmt.Sprintf(truncationMarker, 8), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, truncated := Truncate(tt.in, tt.cfg)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.truncated, truncated)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestTruncate_ProductionBounds(t *testing.T) {
	cfg := DefaultConfig()

	exact := strings.Repeat("x", cfg.Ceiling)
	got, truncated := Truncate(exact, cfg)
	assert.False(t, truncated)
	assert.Equal(t, exact, got)

	huge := strings.Repeat("h", 150000) + strings.Repeat("m", 100000) + strings.Repeat("t", 150000)
	got, truncated = Truncate(huge, cfg)
	assert.True(t, truncated)
	marker := fmt.Sprintf(truncationMarker, 200000)
	assert.Equal(t, cfg.Head+cfg.Tail+len(marker), len(got))
	assert.True(t, strings.HasPrefix(got, strings.Repeat("h", cfg.Head)+"\n"))
	assert.True(t, strings.HasSuffix(got, "\n"+strings.Repeat("t", cfg.Tail)))
	assert.Contains(t, got, "[200000 characters truncated]")
	assert.NotContains(t, got, "m")
}

func TestConfigWithDefaults_ClampsHeadAndTail(t *testing.T) {
	tests := []struct {
		name       string
		in         Config
		head, tail int
	}{
		{"defaults", Config{}, 100000, 100000},
		{"consistent kept", Config{Ceiling: 100, Head: 30, Tail: 20}, 30, 20},
		{"tail shortened", Config{Ceiling: 100, Head: 70, Tail: 70}, 70, 30},
		{"head capped", Config{Ceiling: 100, Head: 500, Tail: 5}, 100, 0},
		{"negative treated as zero", Config{Ceiling: 100, Head: -1, Tail: 40}, 0, 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.withDefaults()
			assert.Equal(t, tt.head, got.Head)
			assert.Equal(t, tt.tail, got.Tail)
			assert.LessOrEqual(t, got.Head+got.Tail, got.Ceiling)
		})
	}
}

func TestTruncate_AnyOutputOverCeilingIsShortened(t *testing.T) {
	configs := []Config{
		{Ceiling: 10, Head: 3, Tail: 2},
		{Ceiling: 10, Head: 9, Tail: 9},
		{Ceiling: 10, Head: 50},
		{Ceiling: 10},
	}
	for _, cfg := range configs {
		for n := 11; n <= 30; n++ {
			in := strings.Repeat("x", n)
			got, truncated := Truncate(in, cfg)
			assert.True(t, truncated, "cfg %+v len %d", cfg, n)
			assert.NotEqual(t, in, got)
		}
	}
}
