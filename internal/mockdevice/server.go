// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

// package mockdevice is an in-process SSH server that behaves like a small
// router or OLT: it answers a handful of show commands with canned output
// and can be configured to require specific authentication methods, delay
// commands, or never finish them.
package mockdevice // import "github.com/toeirei/circuitdiag/internal/mockdevice"

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	cryptossh "github.com/toeirei/circuitdiag/internal/crypto/ssh"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

// AuthMode selects which authentication methods the device offers.
type AuthMode string

const (
	// ModePassword offers password authentication only.
	ModePassword AuthMode = "password"
	// ModeKeyboardInteractive behaves like OLT equipment: password auth is
	// offered but always rejected, keyboard-interactive with the same secret
	// succeeds.
	ModeKeyboardInteractive AuthMode = "keyboard-interactive"
	// ModePublicKey accepts only the configured authorized keys.
	ModePublicKey AuthMode = "publickey"
	// ModeAll accepts any of the above.
	ModeAll AuthMode = "all"
)

// Default login, matching the lab device the test circuit is seeded with.
const (
	DefaultUsername = "test"
	DefaultPassword = "Ac0rN$"
)

// Config describes the device behavior.
type Config struct {
	Username string
	Password string
	Mode     AuthMode
	// AuthorizedKeys are accepted in ModePublicKey and ModeAll.
	AuthorizedKeys []ssh.PublicKey
	// HostKey defaults to a fresh ed25519 key.
	HostKey ssh.Signer
	// Delays holds per command-prefix processing delays.
	Delays map[string]time.Duration
	// Hang lists command prefixes whose channel is never closed by the
	// device; a partial line of output is written first. The device keeps
	// the channel open until the client closes it.
	Hang []string
	// Stall lists command prefixes after which the device stops answering
	// on the whole connection: a partial line is written, then every
	// further packet from the client, channel close included, is dropped.
	Stall []string
	Log  *zap.Logger
}

// Server is a running mock device.
type Server struct {
	cfg    Config
	sshCfg *ssh.ServerConfig
	log    *zap.Logger

	mu    sync.Mutex
	ln    net.Listener
	conns map[net.Conn]struct{}

	quit      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	connections atomic.Int64
	authTries   sync.Map // method -> *atomic.Int64
	commands    atomic.Int64
}

// New builds a Server; call Start or Serve to accept connections.
func New(cfg Config) (*Server, error) {
	if cfg.Username == "" {
		cfg.Username = DefaultUsername
	}
	if cfg.Password == "" {
		cfg.Password = DefaultPassword
	}
	if cfg.Mode == "" {
		cfg.Mode = ModePassword
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.HostKey == nil {
		signer, err := cryptossh.NewHostSigner()
		if err != nil {
			return nil, err
		}
		cfg.HostKey = signer
	}

	s := &Server{
		cfg:   cfg,
		log:   cfg.Log.Named("mockdevice"),
		conns: make(map[net.Conn]struct{}),
		quit:  make(chan struct{}),
	}

	sc := &ssh.ServerConfig{}
	switch cfg.Mode {
	case ModePassword:
		sc.PasswordCallback = s.checkPassword
	case ModeKeyboardInteractive:
		sc.PasswordCallback = s.rejectPassword
		sc.KeyboardInteractiveCallback = s.checkInteractive
	case ModePublicKey:
		sc.PublicKeyCallback = s.checkPublicKey
	case ModeAll:
		sc.PasswordCallback = s.checkPassword
		sc.KeyboardInteractiveCallback = s.checkInteractive
		sc.PublicKeyCallback = s.checkPublicKey
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
	sc.AddHostKey(cfg.HostKey)
	s.sshCfg = sc
	return s, nil
}

// HostKey returns the public host key presented to clients.
func (s *Server) HostKey() ssh.PublicKey { return s.cfg.HostKey.PublicKey() }

// Start listens on addr (e.g. "127.0.0.1:0") and serves in the background.
func (s *Server) Start(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.Serve(ln)
	}()
	return ln.Addr(), nil
}

// Serve accepts connections on ln until Close is called.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	select {
	case <-s.quit:
		s.mu.Unlock()
		return ln.Close()
	default:
	}
	s.ln = ln
	s.mu.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return nil
			default:
			}
			return err
		}
		if !s.track(conn) {
			_ = conn.Close()
			return nil
		}
		s.connections.Add(1)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handleConn(conn)
		}()
	}
}

// Close stops the listener, drops every connection and waits for all
// handlers to return.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		close(s.quit)
		s.mu.Lock()
		if s.ln != nil {
			_ = s.ln.Close()
		}
		for c := range s.conns {
			_ = c.Close()
		}
		s.mu.Unlock()
	})
	s.wg.Wait()
	return nil
}

// Connections reports how many TCP connections were accepted.
func (s *Server) Connections() int { return int(s.connections.Load()) }

// Commands reports how many exec requests were served.
func (s *Server) Commands() int { return int(s.commands.Load()) }

// AuthAttempts reports how many times method was tried by clients.
func (s *Server) AuthAttempts(method string) int {
	if v, ok := s.authTries.Load(method); ok {
		return int(v.(*atomic.Int64).Load())
	}
	return 0
}

func (s *Server) countAuth(method string) {
	v, _ := s.authTries.LoadOrStore(method, new(atomic.Int64))
	v.(*atomic.Int64).Add(1)
}

func (s *Server) track(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.quit:
		return false
	default:
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c net.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	_ = c.Close()
}

var errDenied = errors.New("access denied")

func (s *Server) checkPassword(md ssh.ConnMetadata, pw []byte) (*ssh.Permissions, error) {
	s.countAuth("password")
	if md.User() == s.cfg.Username && string(pw) == s.cfg.Password {
		return nil, nil
	}
	s.log.Debug("password rejected", zap.String("user", md.User()))
	return nil, errDenied
}

func (s *Server) rejectPassword(md ssh.ConnMetadata, _ []byte) (*ssh.Permissions, error) {
	s.countAuth("password")
	return nil, errDenied
}

func (s *Server) checkInteractive(md ssh.ConnMetadata, challenge ssh.KeyboardInteractiveChallenge) (*ssh.Permissions, error) {
	s.countAuth("keyboard-interactive")
	answers, err := challenge(md.User(), "", []string{"Password: "}, []bool{false})
	if err != nil {
		return nil, err
	}
	if md.User() == s.cfg.Username && len(answers) == 1 && answers[0] == s.cfg.Password {
		return nil, nil
	}
	return nil, errDenied
}

func (s *Server) checkPublicKey(md ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
	s.countAuth("publickey")
	if md.User() != s.cfg.Username {
		return nil, errDenied
	}
	for _, k := range s.cfg.AuthorizedKeys {
		if bytes.Equal(k.Marshal(), key.Marshal()) {
			return nil, nil
		}
	}
	return nil, errDenied
}

func (s *Server) handleConn(conn net.Conn) {
	sc := &stallConn{Conn: conn}
	sconn, chans, reqs, err := ssh.NewServerConn(sc, s.sshCfg)
	if err != nil {
		s.log.Debug("handshake failed", zap.Error(err))
		return
	}
	defer sconn.Close()
	s.log.Debug("client connected", zap.String("user", sconn.User()), zap.Stringer("remote", sconn.RemoteAddr()))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ssh.DiscardRequests(reqs)
	}()

	for nc := range chans {
		if nc.ChannelType() != "session" {
			_ = nc.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		ch, chReqs, err := nc.Accept()
		if err != nil {
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleSession(sc, ch, chReqs)
		}()
	}
}

func (s *Server) handleSession(conn *stallConn, ch ssh.Channel, reqs <-chan *ssh.Request) {
	defer ch.Close()
	for req := range reqs {
		switch req.Type {
		case "exec":
			var p struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &p); err != nil {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)
			s.commands.Add(1)
			s.exec(conn, ch, reqs, p.Command)
			// Drain remaining requests so the client side never blocks.
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				ssh.DiscardRequests(reqs)
			}()
			return
		case "pty-req", "env":
			_ = req.Reply(true, nil)
		default:
			_ = req.Reply(false, nil)
		}
	}
}

func (s *Server) exec(conn *stallConn, ch ssh.Channel, reqs <-chan *ssh.Request, command string) {
	log := s.log.With(zap.String("command", command))
	if d := s.delayFor(command); d > 0 {
		log.Debug("delaying command", zap.Duration("delay", d))
		if !s.sleep(d) {
			return
		}
	}

	switch {
	case matchPrefix(s.cfg.Stall, command):
		log.Debug("connection goes silent")
		_, _ = io.WriteString(ch, "Building configuration...\n")
		conn.stall()
		return
	case matchPrefix(s.cfg.Hang, command):
		log.Debug("command will never complete")
		_, _ = io.WriteString(ch, "Building configuration...\n")
		s.waitClosed(ch, reqs)
		return
	}

	out, ok := Respond(command)
	status := uint32(0)
	if ok {
		_, _ = io.WriteString(ch, out)
	} else {
		_, _ = io.WriteString(ch.Stderr(), out)
		status = 1
	}
	_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
	_ = ch.CloseWrite()
}

func (s *Server) delayFor(command string) time.Duration {
	for prefix, d := range s.cfg.Delays {
		if strings.HasPrefix(strings.TrimSpace(command), prefix) {
			return d
		}
	}
	return 0
}

func matchPrefix(prefixes []string, command string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(strings.TrimSpace(command), prefix) {
			return true
		}
	}
	return false
}

// sleep waits for d and reports false if the server closed first.
func (s *Server) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-s.quit:
		return false
	}
}

// waitClosed blocks until the client closes the channel or the server
// stops. Stdin EOF from the client does not end the wait.
func (s *Server) waitClosed(ch ssh.Channel, reqs <-chan *ssh.Request) {
	for {
		select {
		case req, ok := <-reqs:
			if !ok {
				return
			}
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		case <-s.quit:
			_ = ch.Close()
			return
		}
	}
}

// stallConn can be switched into a state where everything read from the
// peer is discarded and nothing is written back, like a device that froze
// mid-session. Reads still fail once the peer drops the connection.
type stallConn struct {
	net.Conn
	stalled atomic.Bool
}

func (c *stallConn) stall() { c.stalled.Store(true) }

func (c *stallConn) Read(p []byte) (int, error) {
	for {
		n, err := c.Conn.Read(p)
		if err != nil || !c.stalled.Load() {
			return n, err
		}
	}
}

func (c *stallConn) Write(p []byte) (int, error) {
	if c.stalled.Load() {
		return len(p), nil
	}
	return c.Conn.Write(p)
}
