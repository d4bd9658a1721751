// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/toeirei/circuitdiag/internal/model"
	"github.com/toeirei/circuitdiag/internal/security"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"
	"go.uber.org/zap"
)

// DeviceModel maps the `devices` table for Bun queries.
type DeviceModel struct {
	bun.BaseModel `bun:"table:devices"`
	ID            int             `bun:"id,pk,autoincrement"`
	Name          string          `bun:"name"`
	Address       string          `bun:"address"`
	Port          int             `bun:"port"`
	Username      string          `bun:"username"`
	Secret        security.Secret `bun:"secret"`
	KeyPath       string          `bun:"key_path"`
	KeyPassphrase security.Secret `bun:"key_passphrase"`
}

// MappingModel maps the `circuit_mappings` table.
type MappingModel struct {
	bun.BaseModel `bun:"table:circuit_mappings"`
	ID            int    `bun:"id,pk,autoincrement"`
	CircuitID     string `bun:"circuit_id"`
	DeviceID      int    `bun:"device_id"`
	Command       string `bun:"command"`
	Description   string `bun:"description"`
	ContactName   string `bun:"contact_name"`
	ContactEmail  string `bun:"contact_email"`
	ContactPhone  string `bun:"contact_phone"`
	ContactNotes  string `bun:"contact_notes"`
}

// UserCredentialModel maps the `user_credentials` table.
type UserCredentialModel struct {
	bun.BaseModel `bun:"table:user_credentials"`
	ID            int             `bun:"id,pk,autoincrement"`
	UserID        string          `bun:"user_id"`
	DeviceID      int             `bun:"device_id"`
	Username      string          `bun:"username"`
	Secret        security.Secret `bun:"secret"`
	KeyPath       string          `bun:"key_path"`
	KeyPassphrase security.Secret `bun:"key_passphrase"`
}

// SharedIdentityModel maps the `shared_identities` table.
type SharedIdentityModel struct {
	bun.BaseModel `bun:"table:shared_identities"`
	UserID        string          `bun:"user_id,pk"`
	Username      string          `bun:"username"`
	Secret        security.Secret `bun:"secret"`
}

// KnownHostKeyModel maps the `known_host_keys` table.
type KnownHostKeyModel struct {
	bun.BaseModel `bun:"table:known_host_keys"`
	Hostname      string `bun:"hostname,pk"`
	Key           string `bun:"key"`
}

func deviceModelToModel(m DeviceModel) model.Device {
	return model.Device{
		ID:            m.ID,
		Name:          m.Name,
		Address:       m.Address,
		Port:          m.Port,
		Username:      m.Username,
		Secret:        m.Secret,
		KeyPath:       m.KeyPath,
		KeyPassphrase: m.KeyPassphrase,
	}
}

func mappingModelToModel(m MappingModel) model.CommandMapping {
	return model.CommandMapping{
		ID:          m.ID,
		CircuitID:   m.CircuitID,
		DeviceID:    m.DeviceID,
		Command:     m.Command,
		Description: m.Description,
		Contact: model.Contact{
			Name:  m.ContactName,
			Email: m.ContactEmail,
			Phone: m.ContactPhone,
			Notes: m.ContactNotes,
		},
	}
}

// BunStore implements Store for every supported dialect.
type BunStore struct {
	bun    *bun.DB
	dbType string
	log    *zap.Logger
}

var _ Store = (*BunStore)(nil)

// DB exposes the underlying Bun handle for maintenance and tests.
func (s *BunStore) DB() *bun.DB { return s.bun }

// Type returns the configured database type.
func (s *BunStore) Type() string { return s.dbType }

// Close closes the underlying connection pool.
func (s *BunStore) Close() error { return s.bun.Close() }

func (s *BunStore) insert(ctx context.Context, idb bun.IDB, m any) error {
	q := idb.NewInsert().Model(m)
	// MySQL fills the autoincrement key from LastInsertId instead.
	if s.bun.Dialect().Features().Has(feature.InsertReturning) {
		q = q.Returning("id")
	}
	_, err := q.Exec(ctx)
	return MapDBError(err)
}

// MappingsForCircuit returns every mapping for circuitID ordered by ID.
func (s *BunStore) MappingsForCircuit(ctx context.Context, circuitID string) ([]model.CommandMapping, error) {
	var rows []MappingModel
	err := s.bun.NewSelect().Model(&rows).Where("circuit_id = ?", circuitID).OrderExpr("id ASC").Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to load mappings for circuit %s: %w", circuitID, err)
	}
	out := make([]model.CommandMapping, 0, len(rows))
	for _, r := range rows {
		out = append(out, mappingModelToModel(r))
	}
	return out, nil
}

// DeviceByID returns the device with the given ID or ErrNotFound.
func (s *BunStore) DeviceByID(ctx context.Context, id int) (*model.Device, error) {
	var m DeviceModel
	err := s.bun.NewSelect().Model(&m).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("device %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load device %d: %w", id, err)
	}
	d := deviceModelToModel(m)
	return &d, nil
}

// CredentialOverride returns the user's override for a device, or nil.
func (s *BunStore) CredentialOverride(ctx context.Context, userID string, deviceID int) (*model.UserCredentialOverride, error) {
	var m UserCredentialModel
	err := s.bun.NewSelect().Model(&m).
		Where("user_id = ?", userID).
		Where("device_id = ?", deviceID).
		Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load credential override: %w", err)
	}
	return &model.UserCredentialOverride{
		UserID:        m.UserID,
		DeviceID:      m.DeviceID,
		Username:      m.Username,
		Secret:        m.Secret,
		KeyPath:       m.KeyPath,
		KeyPassphrase: m.KeyPassphrase,
	}, nil
}

// SharedIdentity returns the user's shared-auth identity, or nil.
func (s *BunStore) SharedIdentity(ctx context.Context, userID string) (*model.SharedAuthIdentity, error) {
	var m SharedIdentityModel
	err := s.bun.NewSelect().Model(&m).Where("user_id = ?", userID).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load shared identity: %w", err)
	}
	return &model.SharedAuthIdentity{UserID: m.UserID, Username: m.Username, Secret: m.Secret}, nil
}

// GetKnownHostKey returns the trusted key for hostname, or "".
func (s *BunStore) GetKnownHostKey(ctx context.Context, hostname string) (string, error) {
	var m KnownHostKeyModel
	err := s.bun.NewSelect().Model(&m).Where("hostname = ?", hostname).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return m.Key, nil
}

// AddKnownHostKey records or replaces the trusted key for hostname.
func (s *BunStore) AddKnownHostKey(ctx context.Context, hostname, key string) error {
	return WithTx(ctx, s.bun, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*KnownHostKeyModel)(nil)).Where("hostname = ?", hostname).Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(&KnownHostKeyModel{Hostname: hostname, Key: key}).Exec(ctx)
		return MapDBError(err)
	})
}

// AddDevice inserts d and returns its new ID (also stored in d.ID).
func (s *BunStore) AddDevice(ctx context.Context, d *model.Device) (int, error) {
	port := d.Port
	if port <= 0 {
		port = model.DefaultSSHPort
	}
	m := &DeviceModel{
		Name:          d.Name,
		Address:       d.Address,
		Port:          port,
		Username:      d.Username,
		Secret:        d.Secret,
		KeyPath:       d.KeyPath,
		KeyPassphrase: d.KeyPassphrase,
	}
	if err := s.insert(ctx, s.bun, m); err != nil {
		return 0, fmt.Errorf("failed to add device %s: %w", d.Name, err)
	}
	d.ID = m.ID
	d.Port = port
	s.log.Debug("added device", zap.Int("id", m.ID), zap.String("name", d.Name))
	return m.ID, nil
}

// AddMapping inserts m and returns its new ID (also stored in m.ID).
func (s *BunStore) AddMapping(ctx context.Context, m *model.CommandMapping) (int, error) {
	row := &MappingModel{
		CircuitID:    m.CircuitID,
		DeviceID:     m.DeviceID,
		Command:      m.Command,
		Description:  m.Description,
		ContactName:  m.Contact.Name,
		ContactEmail: m.Contact.Email,
		ContactPhone: m.Contact.Phone,
		ContactNotes: m.Contact.Notes,
	}
	if err := s.insert(ctx, s.bun, row); err != nil {
		return 0, fmt.Errorf("failed to add mapping for circuit %s: %w", m.CircuitID, err)
	}
	m.ID = row.ID
	return row.ID, nil
}

// SetCredentialOverride creates or replaces the (user, device) override.
func (s *BunStore) SetCredentialOverride(ctx context.Context, o model.UserCredentialOverride) error {
	return WithTx(ctx, s.bun, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*UserCredentialModel)(nil)).
			Where("user_id = ?", o.UserID).
			Where("device_id = ?", o.DeviceID).
			Exec(ctx); err != nil {
			return err
		}
		return s.insert(ctx, tx, &UserCredentialModel{
			UserID:        o.UserID,
			DeviceID:      o.DeviceID,
			Username:      o.Username,
			Secret:        o.Secret,
			KeyPath:       o.KeyPath,
			KeyPassphrase: o.KeyPassphrase,
		})
	})
}

// SetSharedIdentity creates or replaces the user's shared-auth identity.
func (s *BunStore) SetSharedIdentity(ctx context.Context, id model.SharedAuthIdentity) error {
	return WithTx(ctx, s.bun, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*SharedIdentityModel)(nil)).Where("user_id = ?", id.UserID).Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(&SharedIdentityModel{UserID: id.UserID, Username: id.Username, Secret: id.Secret}).Exec(ctx)
		return MapDBError(err)
	})
}

// ListDevices returns all devices ordered by ID.
func (s *BunStore) ListDevices(ctx context.Context) ([]model.Device, error) {
	var rows []DeviceModel
	if err := s.bun.NewSelect().Model(&rows).OrderExpr("id ASC").Scan(ctx); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	out := make([]model.Device, 0, len(rows))
	for _, r := range rows {
		out = append(out, deviceModelToModel(r))
	}
	return out, nil
}

// ListMappings returns all mappings ordered by circuit then ID.
func (s *BunStore) ListMappings(ctx context.Context) ([]model.CommandMapping, error) {
	var rows []MappingModel
	if err := s.bun.NewSelect().Model(&rows).OrderExpr("circuit_id ASC, id ASC").Scan(ctx); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	out := make([]model.CommandMapping, 0, len(rows))
	for _, r := range rows {
		out = append(out, mappingModelToModel(r))
	}
	return out, nil
}

// FindDevice looks a device up by its natural key, returning nil when absent.
func (s *BunStore) FindDevice(ctx context.Context, name, address string, port int) (*model.Device, error) {
	var m DeviceModel
	err := s.bun.NewSelect().Model(&m).
		Where("name = ?", name).
		Where("address = ?", address).
		Where("port = ?", port).
		OrderExpr("id ASC").
		Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	d := deviceModelToModel(m)
	return &d, nil
}

// HasMapping reports whether an identical mapping already exists.
func (s *BunStore) HasMapping(ctx context.Context, circuitID string, deviceID int, command string) (bool, error) {
	return s.bun.NewSelect().Model((*MappingModel)(nil)).
		Where("circuit_id = ?", circuitID).
		Where("device_id = ?", deviceID).
		Where("command = ?", command).
		Exists(ctx)
}
