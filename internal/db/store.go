// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"

	"github.com/toeirei/circuitdiag/internal/model"
)

// MappingReader loads the mappings for a circuit and the devices they point at.
type MappingReader interface {
	// MappingsForCircuit returns all mappings for circuitID ordered by ID.
	// No mappings is an empty slice and a nil error.
	MappingsForCircuit(ctx context.Context, circuitID string) ([]model.CommandMapping, error)
	// DeviceByID returns ErrNotFound when the device does not exist.
	DeviceByID(ctx context.Context, id int) (*model.Device, error)
}

// CredentialReader looks up per-user login material. Absent records are
// (nil, nil).
type CredentialReader interface {
	CredentialOverride(ctx context.Context, userID string, deviceID int) (*model.UserCredentialOverride, error)
	SharedIdentity(ctx context.Context, userID string) (*model.SharedAuthIdentity, error)
}

// HostKeyStore records trusted SSH host keys.
type HostKeyStore interface {
	// GetKnownHostKey returns "" when no key is recorded for hostname.
	GetKnownHostKey(ctx context.Context, hostname string) (string, error)
	AddKnownHostKey(ctx context.Context, hostname, key string) error
}

// Writer creates inventory records. It backs the import and seed commands;
// interactive editing happens elsewhere.
type Writer interface {
	AddDevice(ctx context.Context, d *model.Device) (int, error)
	AddMapping(ctx context.Context, m *model.CommandMapping) (int, error)
	SetCredentialOverride(ctx context.Context, o model.UserCredentialOverride) error
	SetSharedIdentity(ctx context.Context, id model.SharedAuthIdentity) error
	ListDevices(ctx context.Context) ([]model.Device, error)
	ListMappings(ctx context.Context) ([]model.CommandMapping, error)
	FindDevice(ctx context.Context, name, address string, port int) (*model.Device, error)
	HasMapping(ctx context.Context, circuitID string, deviceID int, command string) (bool, error)
}

// Store is the full data access surface.
type Store interface {
	MappingReader
	CredentialReader
	HostKeyStore
	Writer
	Close() error
}
