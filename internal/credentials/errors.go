// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package credentials

import (
	"errors"
	"fmt"
)

// ErrConfiguration matches every *ConfigurationError with errors.Is.
var ErrConfiguration = errors.New("credential configuration error")

// ConfigurationErrorKind tells the operator what needs fixing.
type ConfigurationErrorKind int

const (
	// MissingSharedIdentity: the device uses shared auth but the user has
	// no shared identity on record.
	MissingSharedIdentity ConfigurationErrorKind = iota + 1
	// EmptyIdentity: the resolved login has no username.
	EmptyIdentity
)

func (k ConfigurationErrorKind) String() string {
	switch k {
	case MissingSharedIdentity:
		return "missing shared identity"
	case EmptyIdentity:
		return "empty identity"
	default:
		return "unknown"
	}
}

// ConfigurationError is returned when the stored records cannot produce a
// usable login for a user on a device.
type ConfigurationError struct {
	Kind   ConfigurationErrorKind
	UserID string
	Device string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("credentials for user %q on %s: %s", e.UserID, e.Device, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }
