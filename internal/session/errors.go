// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
	"time"
)

// Sentinels for errors.Is on the typed errors below.
var (
	ErrUnreachable    = errors.New("device unreachable")
	ErrAuthentication = errors.New("authentication failed")
	ErrCommandTimeout = errors.New("command timed out")
	ErrTransport      = errors.New("transport failure")
	// ErrNotConnected is wrapped when Execute is called on a session that
	// is closed or broken.
	ErrNotConnected = errors.New("session not connected")
)

// ReachabilityError means every probe attempt failed; no authentication was
// attempted.
type ReachabilityError struct {
	Addr     string
	Attempts int
	Err      error
}

func (e *ReachabilityError) Error() string {
	return fmt.Sprintf("%s unreachable after %d attempt(s): %v", e.Addr, e.Attempts, e.Err)
}

func (e *ReachabilityError) Unwrap() error        { return e.Err }
func (e *ReachabilityError) Is(target error) bool { return target == ErrUnreachable }

// AuthenticationError means every authentication method the credential
// allowed was rejected, or the handshake did not finish within the auth
// timeout.
type AuthenticationError struct {
	Addr    string
	User    string
	Methods []string
	Err     error
}

func (e *AuthenticationError) Error() string {
	methods := "none"
	if len(e.Methods) > 0 {
		methods = strings.Join(e.Methods, ", ")
	}
	return fmt.Sprintf("authentication as %q on %s failed (tried: %s): %v", e.User, e.Addr, methods, e.Err)
}

func (e *AuthenticationError) Unwrap() error        { return e.Err }
func (e *AuthenticationError) Is(target error) bool { return target == ErrAuthentication }

// CommandTimeoutError means the command was still running when the
// execution cap elapsed. Output gathered so far is returned alongside it.
type CommandTimeoutError struct {
	Command string
	Timeout time.Duration
}

func (e *CommandTimeoutError) Error() string {
	return fmt.Sprintf("command %q did not complete within %s", e.Command, e.Timeout)
}

func (e *CommandTimeoutError) Is(target error) bool { return target == ErrCommandTimeout }

// TransportError is a protocol or connection failure. The session that
// returned it is Broken.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("ssh %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error        { return e.Err }
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// IsAuthenticationFailure reports whether a handshake error came from the
// server rejecting every offered method.
func IsAuthenticationFailure(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "unable to authenticate") || strings.Contains(msg, "no supported methods remain")
}

// IsConnectionRefused reports whether err is a refused TCP connect.
func IsConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "connection refused")
}

// IsTimeout reports whether err is a deadline or i/o timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "i/o timeout")
}
