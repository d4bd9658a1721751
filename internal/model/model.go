// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

// package model defines the records the dispatch core reads from the store
// and the results it produces.
package model // import "github.com/toeirei/circuitdiag/internal/model"

import (
	"fmt"
	"net"
	"strconv"

	"github.com/toeirei/circuitdiag/internal/security"
)

// SharedAuthSentinel is the reserved device username meaning "log in with the
// requesting user's shared organizational (TACACS) identity".
const SharedAuthSentinel = "TACACS"

// DefaultSSHPort is used when a device record carries no port.
const DefaultSSHPort = 22

// Device is a piece of network equipment reachable over SSH.
type Device struct {
	ID            int
	Name          string
	Address       string
	Port          int
	Username      string
	Secret        security.Secret
	KeyPath       string // optional private key file reference
	KeyPassphrase security.Secret
}

// UsesSharedAuth reports whether logins to the device must use the user's
// shared organizational identity.
func (d Device) UsesSharedAuth() bool {
	return d.Username == SharedAuthSentinel
}

// Addr returns host:port for dialing, defaulting the port to 22.
func (d Device) Addr() string {
	port := d.Port
	if port <= 0 {
		port = DefaultSSHPort
	}
	return net.JoinHostPort(d.Address, strconv.Itoa(port))
}

// Label is the display name used in results.
func (d Device) Label() string {
	if d.Name != "" {
		return d.Name
	}
	return d.Address
}

// String returns name (address:port).
func (d Device) String() string {
	return fmt.Sprintf("%s (%s)", d.Label(), d.Addr())
}

// UserCredentialOverride replaces a device's default login for one user.
type UserCredentialOverride struct {
	UserID        string
	DeviceID      int
	Username      string
	Secret        security.Secret
	KeyPath       string
	KeyPassphrase security.Secret
}

// SharedAuthIdentity is a user's personal login for shared-auth devices.
type SharedAuthIdentity struct {
	UserID   string
	Username string
	Secret   security.Secret
}

// Contact is optional escalation metadata attached to a mapping.
type Contact struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
	Notes string `json:"notes,omitempty"`
}

// IsEmpty reports whether no contact field is set.
func (c Contact) IsEmpty() bool {
	return c.Name == "" && c.Email == "" && c.Phone == "" && c.Notes == ""
}

// CommandMapping associates a circuit identifier with a device and the raw
// command string to run on it.
type CommandMapping struct {
	ID          int
	CircuitID   string
	DeviceID    int
	Command     string
	Description string
	Contact     Contact
}

// KnownHostKey is a trusted host key recorded for an address.
type KnownHostKey struct {
	Host string
	Key  string
}
