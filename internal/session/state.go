// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package session

// State is the lifecycle position of a Session.
type State int

const (
	Disconnected State = iota
	Probing
	Authenticating
	Connected
	Executing
	// Broken means a transport failure invalidated the connection; no
	// further commands can run on it.
	Broken
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Probing:
		return "probing"
	case Authenticating:
		return "authenticating"
	case Connected:
		return "connected"
	case Executing:
		return "executing"
	case Broken:
		return "broken"
	default:
		return "unknown"
	}
}
