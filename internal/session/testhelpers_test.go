// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package session

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/toeirei/circuitdiag/internal/credentials"
	"github.com/toeirei/circuitdiag/internal/mockdevice"
	"github.com/toeirei/circuitdiag/internal/model"
	"github.com/toeirei/circuitdiag/internal/security"
)

func fastConfig() Config {
	return Config{
		ProbeAttempts:     3,
		ProbeDelay:        10 * time.Millisecond,
		ProbeTimeout:      time.Second,
		AuthTimeout:       5 * time.Second,
		CommandTimeout:    5 * time.Second,
		KeepaliveInterval: time.Minute,
		ReadChunkSize:     4096,
		HostKeyPolicy:     HostKeyInsecure,
	}
}

// startDevice runs a mock device and returns a Device record pointing at it.
func startDevice(t *testing.T, cfg mockdevice.Config) (*mockdevice.Server, model.Device) {
	t.Helper()
	srv, err := mockdevice.New(cfg)
	if err != nil {
		t.Fatalf("mockdevice.New: %v", err)
	}
	addr, err := srv.Start("127.0.0.1:0")
	if err != nil {
		t.Fatalf("mockdevice.Start: %v", err)
	}
	return srv, deviceAt(t, addr.String())
}

func deviceAt(t *testing.T, addr string) model.Device {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("SplitHostPort: %v", err)
	}
	port, _ := strconv.Atoi(portStr)
	return model.Device{ID: 1, Name: "mock", Address: host, Port: port}
}

// closedAddr returns an address nothing is listening on.
func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func testPassword() credentials.Credential {
	return credentials.PasswordAuth{Username: mockdevice.DefaultUsername, Secret: security.FromString(mockdevice.DefaultPassword)}
}

// countingDialer refuses the first failFirst dials and counts every call.
type countingDialer struct {
	calls     atomic.Int32
	failFirst int32
	d         net.Dialer
}

func (c *countingDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if n := c.calls.Add(1); n <= c.failFirst {
		return nil, &net.OpError{Op: "dial", Net: network, Err: syscall.ECONNREFUSED}
	}
	return c.d.DialContext(ctx, network, addr)
}

// memHostKeys is an in-memory HostKeyStore.
type memHostKeys struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemHostKeys() *memHostKeys { return &memHostKeys{keys: map[string]string{}} }

func (m *memHostKeys) GetKnownHostKey(_ context.Context, host string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[host], nil
}

func (m *memHostKeys) AddKnownHostKey(_ context.Context, host, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if host == "" {
		return fmt.Errorf("empty host")
	}
	m.keys[host] = key
	return nil
}
