// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/toeirei/circuitdiag/internal/credentials"
	"github.com/toeirei/circuitdiag/internal/db"
	"github.com/toeirei/circuitdiag/internal/model"
	"github.com/toeirei/circuitdiag/internal/session"
)

type fakeStore struct {
	mappings map[string][]model.CommandMapping
	devices  map[int]model.Device
	err      error
	devErr   error
}

func (f *fakeStore) MappingsForCircuit(_ context.Context, circuitID string) ([]model.CommandMapping, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.mappings[circuitID], nil
}

func (f *fakeStore) DeviceByID(_ context.Context, id int) (*model.Device, error) {
	if f.devErr != nil {
		return nil, f.devErr
	}
	d, ok := f.devices[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &d, nil
}

// staticResolver hands out a password credential for every device.
type staticResolver struct{}

func (staticResolver) Resolve(_ context.Context, userID string, d model.Device) (credentials.Credential, error) {
	if d.UsesSharedAuth() {
		return nil, &credentials.ConfigurationError{Kind: credentials.MissingSharedIdentity, UserID: userID, Device: d.Label()}
	}
	return credentials.PasswordAuth{Username: "admin"}, nil
}

type step struct {
	out    session.Output
	err    error
	breaks bool
}

type fakeSession struct {
	mu     sync.Mutex
	script map[string]step
	ran    []string
	broken bool
	closes *atomic.Int32
}

func (s *fakeSession) Execute(_ context.Context, cmd string) (session.Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ran = append(s.ran, cmd)
	st, ok := s.script[cmd]
	if !ok {
		code := 0
		return session.Output{Stdout: "output of " + cmd, ExitStatus: &code, Elapsed: time.Millisecond}, nil
	}
	if st.breaks {
		s.broken = true
	}
	return st.out, st.err
}

func (s *fakeSession) Broken() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.broken
}

func (s *fakeSession) Close() error {
	s.closes.Add(1)
	return nil
}

// fakeOpener fails devices listed in errs and scripts the others.
type fakeOpener struct {
	errs    map[int]error
	scripts map[int]map[string]step
	delays  map[int]time.Duration

	opens  atomic.Int32
	closes atomic.Int32
	mu     sync.Mutex
	byDev  map[int]*fakeSession
}

func (o *fakeOpener) Open(ctx context.Context, d model.Device, _ credentials.Credential) (RemoteSession, error) {
	if delay := o.delays[d.ID]; delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := o.errs[d.ID]; err != nil {
		return nil, err
	}
	o.opens.Add(1)
	s := &fakeSession{script: o.scripts[d.ID], closes: &o.closes}
	o.mu.Lock()
	if o.byDev == nil {
		o.byDev = map[int]*fakeSession{}
	}
	o.byDev[d.ID] = s
	o.mu.Unlock()
	return s, nil
}
