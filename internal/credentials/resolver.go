// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package credentials

import (
	"context"
	"fmt"

	"github.com/toeirei/circuitdiag/internal/db"
	"github.com/toeirei/circuitdiag/internal/model"
	"github.com/toeirei/circuitdiag/internal/security"
	"go.uber.org/zap"
)

// Resolver picks the effective credential for (user, device).
type Resolver struct {
	store db.CredentialReader
	log   *zap.Logger
}

// NewResolver returns a Resolver reading from store.
func NewResolver(store db.CredentialReader, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{store: store, log: log.Named("credentials")}
}

// Resolve applies, in order: the shared identity for shared-auth devices,
// the user's override for the device, the device default. Store failures are
// returned wrapped; unusable records yield a *ConfigurationError.
func (r *Resolver) Resolve(ctx context.Context, userID string, device model.Device) (Credential, error) {
	if device.UsesSharedAuth() {
		id, err := r.store.SharedIdentity(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("loading shared identity for %q: %w", userID, err)
		}
		if id == nil {
			return nil, &ConfigurationError{Kind: MissingSharedIdentity, UserID: userID, Device: device.Label()}
		}
		r.log.Debug("using shared identity", zap.String("user", userID), zap.String("device", device.Label()))
		return checked(SharedAuth{Username: id.Username, Secret: id.Secret}, userID, device)
	}

	o, err := r.store.CredentialOverride(ctx, userID, device.ID)
	if err != nil {
		return nil, fmt.Errorf("loading credential override for %q on device %d: %w", userID, device.ID, err)
	}
	if o != nil {
		r.log.Debug("using credential override", zap.String("user", userID), zap.String("device", device.Label()))
		return checked(build(o.Username, o.Secret, o.KeyPath, o.KeyPassphrase), userID, device)
	}

	r.log.Debug("using device default credential", zap.String("device", device.Label()))
	return checked(build(device.Username, device.Secret, device.KeyPath, device.KeyPassphrase), userID, device)
}

func build(user string, secret security.Secret, keyPath string, passphrase security.Secret) Credential {
	if keyPath != "" {
		return KeyAuth{Username: user, KeyPath: keyPath, Passphrase: passphrase, Password: secret}
	}
	return PasswordAuth{Username: user, Secret: secret}
}

func checked(c Credential, userID string, device model.Device) (Credential, error) {
	if c.User() == "" {
		return nil, &ConfigurationError{Kind: EmptyIdentity, UserID: userID, Device: device.Label()}
	}
	return c, nil
}
