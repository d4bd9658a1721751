// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

// package session owns single SSH connections to network devices: a
// reachability probe with retries, an authentication cascade, a keepalive,
// and command execution with chunked reads under a wall-clock cap.
package session // import "github.com/toeirei/circuitdiag/internal/session"

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/toeirei/circuitdiag/internal/credentials"
	cryptossh "github.com/toeirei/circuitdiag/internal/crypto/ssh"
	"github.com/toeirei/circuitdiag/internal/db"
	"github.com/toeirei/circuitdiag/internal/metrics"
	"github.com/toeirei/circuitdiag/internal/model"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

// Connector opens sessions. It is safe for concurrent use; each Open
// creates an independent connection.
type Connector struct {
	cfg      Config
	dialer   Dialer
	hostKeys db.HostKeyStore
	log      *zap.Logger
	metrics  *metrics.Collectors
}

// Option configures a Connector.
type Option func(*Connector)

// WithDialer replaces the TCP dialer used by the probe.
func WithDialer(d Dialer) Option { return func(c *Connector) { c.dialer = d } }

// WithHostKeyStore sets where host keys are looked up and recorded.
func WithHostKeyStore(s db.HostKeyStore) Option { return func(c *Connector) { c.hostKeys = s } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(c *Connector) { c.log = l } }

// WithMetrics sets the collectors sessions report to.
func WithMetrics(m *metrics.Collectors) Option { return func(c *Connector) { c.metrics = m } }

// NewConnector returns a Connector using cfg, with zero fields defaulted.
func NewConnector(cfg Config, opts ...Option) *Connector {
	c := &Connector{cfg: cfg.withDefaults(), dialer: &net.Dialer{}, log: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.Named("session")
	return c
}

// Config returns the effective configuration.
func (c *Connector) Config() Config { return c.cfg }

// Probe runs only the reachability phase against addr and reports how many
// attempts it took.
func (c *Connector) Probe(ctx context.Context, addr string) (int, error) {
	conn, attempts, err := probe(ctx, c.dialer, addr, c.cfg, c.log)
	c.metrics.ObserveProbe(err == nil, attempts)
	if err != nil {
		return attempts, err
	}
	_ = conn.Close()
	return attempts, nil
}

// Output is what one command produced.
type Output struct {
	Stdout     string
	Stderr     string
	ExitStatus *int
	Elapsed    time.Duration
}

// Combined returns stdout followed by stderr.
func (o Output) Combined() string {
	if o.Stderr == "" {
		return o.Stdout
	}
	if o.Stdout == "" || o.Stdout[len(o.Stdout)-1] == '\n' {
		return o.Stdout + o.Stderr
	}
	return o.Stdout + "\n" + o.Stderr
}

// Session is one authenticated connection to one device. It is not pooled:
// open one per mapping and always Close it.
type Session struct {
	addr    string
	cfg     Config
	log     *zap.Logger
	metrics *metrics.Collectors

	mu     sync.Mutex
	state  State
	client *ssh.Client

	stop      chan struct{}
	kaDone    chan struct{}
	closeOnce sync.Once
}

// Open probes the device, authenticates with cred and arms the keepalive.
// It returns a *ReachabilityError, *AuthenticationError or *TransportError
// on failure; no connection is left open in that case.
func (c *Connector) Open(ctx context.Context, device model.Device, cred credentials.Credential) (*Session, error) {
	addr := device.Addr()
	log := c.log.With(zap.String("device", device.Label()), zap.String("addr", addr))
	s := &Session{addr: addr, cfg: c.cfg, log: log, metrics: c.metrics, state: Probing}

	log.Debug("probing")
	conn, attempts, err := probe(ctx, c.dialer, addr, c.cfg, log)
	c.metrics.ObserveProbe(err == nil, attempts)
	if err != nil {
		log.Warn("device unreachable", zap.Int("attempts", attempts), zap.Error(err))
		return nil, err
	}

	s.setState(Authenticating)
	client, err := c.authenticate(ctx, conn, addr, cred, log)
	c.metrics.ObserveAuth(string(cred.Method()), err == nil)
	if err != nil {
		_ = conn.Close()
		log.Warn("session setup failed", zap.Error(err))
		return nil, err
	}

	s.client = client
	s.stop = make(chan struct{})
	s.kaDone = make(chan struct{})
	s.setState(Connected)
	c.metrics.SessionOpened()
	go s.keepalive()
	log.Debug("connected", zap.String("user", cred.User()), zap.String("method", string(cred.Method())))
	return s, nil
}

func (c *Connector) authenticate(ctx context.Context, conn net.Conn, addr string, cred credentials.Credential, log *zap.Logger) (*ssh.Client, error) {
	var tried []string
	record := func(m string) {
		for _, t := range tried {
			if t == m {
				return
			}
		}
		tried = append(tried, m)
	}

	methods, err := authMethods(cred, record, log)
	if err != nil {
		return nil, &AuthenticationError{Addr: addr, User: cred.User(), Methods: []string{"publickey"}, Err: err}
	}
	if len(methods) == 0 {
		return nil, &AuthenticationError{Addr: addr, User: cred.User(), Err: errors.New("credential carries no usable secret or key")}
	}

	cfg := &ssh.ClientConfig{
		User:            cred.User(),
		Auth:            methods,
		HostKeyCallback: hostKeyCallback(ctx, c.cfg.HostKeyPolicy, c.hostKeys, log),
	}

	// The handshake is bounded by the auth timeout and aborted on cancel.
	_ = conn.SetDeadline(time.Now().Add(c.cfg.AuthTimeout))
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	stop()
	if err != nil {
		switch {
		case IsAuthenticationFailure(err):
			return nil, &AuthenticationError{Addr: addr, User: cred.User(), Methods: tried, Err: err}
		case ctx.Err() != nil:
			return nil, &TransportError{Op: "handshake", Err: ctx.Err()}
		case IsTimeout(err):
			return nil, &AuthenticationError{Addr: addr, User: cred.User(), Methods: tried,
				Err: fmt.Errorf("handshake did not finish within %s: %w", c.cfg.AuthTimeout, err)}
		default:
			return nil, &TransportError{Op: "handshake", Err: err}
		}
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(sshConn, chans, reqs), nil
}

// authMethods builds the cascade for cred: public key first for key
// credentials, then password, then a single keyboard-interactive round that
// answers every prompt with the same secret. record is called with the
// method name whenever the server lets the client try it.
func authMethods(cred credentials.Credential, record func(string), log *zap.Logger) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	secret := credentials.PasswordSecret(cred)

	if k, ok := cred.(credentials.KeyAuth); ok {
		passphrase := k.Passphrase.Bytes()
		signer, err := cryptossh.LoadSigner(k.KeyPath, passphrase)
		clear(passphrase)
		switch {
		case err == nil:
			methods = append(methods, ssh.PublicKeysCallback(func() ([]ssh.Signer, error) {
				record("publickey")
				return []ssh.Signer{signer}, nil
			}))
		case secret.IsEmpty():
			return nil, err
		default:
			log.Warn("private key unusable, falling back to password", zap.String("key_path", k.KeyPath), zap.Error(err))
		}
	}

	if !secret.IsEmpty() {
		pw := secret.Reveal()
		methods = append(methods,
			ssh.PasswordCallback(func() (string, error) {
				record("password")
				return pw, nil
			}),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				record("keyboard-interactive")
				return secret.Answers(len(questions)), nil
			}),
		)
	}
	return methods, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Broken reports whether a transport failure invalidated the session.
func (s *Session) Broken() bool { return s.State() == Broken }

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// markBroken moves the session to Broken unless it was already closed.
func (s *Session) markBroken() {
	s.mu.Lock()
	if s.state != Disconnected {
		s.state = Broken
	}
	s.mu.Unlock()
}

func (s *Session) keepalive() {
	defer close(s.kaDone)
	t := time.NewTicker(s.cfg.KeepaliveInterval)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			if err := s.ping(); err != nil {
				select {
				case <-s.stop:
					return
				default:
				}
				s.log.Warn("keepalive failed, session is broken", zap.Error(err))
				s.metrics.KeepaliveFailed()
				s.markBroken()
				_ = s.client.Close()
				return
			}
		}
	}
}

// ping sends one keepalive request and waits at most one keepalive interval
// for the reply. Closing the client releases the request goroutine.
func (s *Session) ping() error {
	reply := make(chan error, 1)
	go func() {
		_, _, err := s.client.SendRequest("keepalive@openssh.com", true, nil)
		reply <- err
	}()
	timer := time.NewTimer(s.cfg.KeepaliveInterval)
	defer timer.Stop()
	select {
	case err := <-reply:
		return err
	case <-timer.C:
		return fmt.Errorf("no keepalive reply within %s", s.cfg.KeepaliveInterval)
	case <-s.stop:
		return nil
	}
}

// Close tears the connection down. It is safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stop)
		err = s.client.Close()
		<-s.kaDone
		s.setState(Disconnected)
		s.metrics.SessionClosed()
		s.log.Debug("disconnected")
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
	})
	return err
}
