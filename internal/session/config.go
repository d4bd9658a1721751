// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package session

import "time"

// HostKeyPolicy controls how presented host keys are verified.
type HostKeyPolicy string

const (
	// HostKeyInsecure accepts any host key.
	HostKeyInsecure HostKeyPolicy = "insecure"
	// HostKeyAcceptNew records the key on first contact and rejects
	// mismatches afterwards.
	HostKeyAcceptNew HostKeyPolicy = "accept-new"
	// HostKeyStrict only accepts keys already on record.
	HostKeyStrict HostKeyPolicy = "strict"
)

// Config holds the session tunables. Zero fields take the defaults of
// DefaultConfig.
type Config struct {
	ProbeAttempts     int
	ProbeDelay        time.Duration
	ProbeTimeout      time.Duration
	AuthTimeout       time.Duration
	CommandTimeout    time.Duration
	KeepaliveInterval time.Duration
	ReadChunkSize     int
	HostKeyPolicy     HostKeyPolicy
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ProbeAttempts:     3,
		ProbeDelay:        2 * time.Second,
		ProbeTimeout:      5 * time.Second,
		AuthTimeout:       10 * time.Second,
		CommandTimeout:    60 * time.Second,
		KeepaliveInterval: 30 * time.Second,
		ReadChunkSize:     4096,
		HostKeyPolicy:     HostKeyAcceptNew,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ProbeAttempts <= 0 {
		c.ProbeAttempts = d.ProbeAttempts
	}
	if c.ProbeDelay <= 0 {
		c.ProbeDelay = d.ProbeDelay
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = d.ProbeTimeout
	}
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = d.AuthTimeout
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = d.CommandTimeout
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = d.KeepaliveInterval
	}
	if c.ReadChunkSize <= 0 {
		c.ReadChunkSize = d.ReadChunkSize
	}
	if c.HostKeyPolicy == "" {
		c.HostKeyPolicy = d.HostKeyPolicy
	}
	return c
}
