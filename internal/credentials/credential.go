// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

// package credentials decides which login a user gets on a device.
package credentials // import "github.com/toeirei/circuitdiag/internal/credentials"

import (
	"fmt"

	"github.com/toeirei/circuitdiag/internal/security"
)

// Method names the authentication variant a Credential resolved to.
type Method string

const (
	MethodKey      Method = "key"
	MethodPassword Method = "password"
	MethodShared   Method = "shared"
)

// Credential is one of KeyAuth, PasswordAuth or SharedAuth. The set is
// closed: only this package implements it.
type Credential interface {
	// User is the login name presented to the device.
	User() string
	Method() Method
	credential()
}

// KeyAuth logs in with a private key file. Password, when set, is tried
// after the key is rejected.
type KeyAuth struct {
	Username   string
	KeyPath    string
	Passphrase security.Secret
	Password   security.Secret
}

// PasswordAuth logs in with a per-device secret.
type PasswordAuth struct {
	Username string
	Secret   security.Secret
}

// SharedAuth logs in with the user's shared organizational identity. On
// the wire it authenticates like PasswordAuth.
type SharedAuth struct {
	Username string
	Secret   security.Secret
}

func (k KeyAuth) User() string      { return k.Username }
func (p PasswordAuth) User() string { return p.Username }
func (s SharedAuth) User() string   { return s.Username }

func (KeyAuth) Method() Method      { return MethodKey }
func (PasswordAuth) Method() Method { return MethodPassword }
func (SharedAuth) Method() Method   { return MethodShared }

func (KeyAuth) credential()      {}
func (PasswordAuth) credential() {}
func (SharedAuth) credential()   {}

func (k KeyAuth) String() string {
	return fmt.Sprintf("key(%s, %s)", k.Username, k.KeyPath)
}

func (p PasswordAuth) String() string {
	return fmt.Sprintf("password(%s)", p.Username)
}

func (s SharedAuth) String() string {
	return fmt.Sprintf("shared(%s)", s.Username)
}

// PasswordSecret returns the secret used for password and
// keyboard-interactive authentication, if the credential carries one.
func PasswordSecret(c Credential) security.Secret {
	switch v := c.(type) {
	case KeyAuth:
		return v.Password
	case PasswordAuth:
		return v.Secret
	case SharedAuth:
		return v.Secret
	default:
		return nil
	}
}
