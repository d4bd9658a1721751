// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package dispatch

// Config bounds dispatch output and fan-out.
type Config struct {
	// Ceiling is the largest output, in characters, kept unchanged.
	Ceiling int
	// Head and Tail are the characters kept from each end of a longer output.
	// Both zero splits the ceiling evenly. Their sum is clamped to Ceiling,
	// taking from Tail first, so any output over the ceiling is shortened.
	Head int
	Tail int
	// Concurrency is how many mappings run at once; 1 is sequential.
	Concurrency int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{Ceiling: 200000, Head: 100000, Tail: 100000, Concurrency: 1}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Ceiling <= 0 {
		c.Ceiling = d.Ceiling
	}
	if c.Head < 0 {
		c.Head = 0
	}
	if c.Tail < 0 {
		c.Tail = 0
	}
	if c.Head == 0 && c.Tail == 0 {
		c.Head, c.Tail = c.Ceiling/2, c.Ceiling/2
	}
	c.Head = min(c.Head, c.Ceiling)
	c.Tail = min(c.Tail, c.Ceiling-c.Head)
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	return c
}
