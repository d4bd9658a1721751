// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

// closeGrace bounds how long Execute waits for readers to drain after it
// closed a timed-out channel before it gives up on the whole connection.
var closeGrace = 2 * time.Second

// Execute runs command on its own channel and collects stdout and stderr
// until the device closes the channel or the command timeout elapses. The
// cap is enforced by wall clock even if the device never signals the end of
// output. On timeout the partial output is returned with a
// *CommandTimeoutError and the session stays usable. A *TransportError
// marks the session Broken.
func (s *Session) Execute(ctx context.Context, command string) (Output, error) {
	s.mu.Lock()
	if s.state != Connected {
		st := s.state
		s.mu.Unlock()
		return Output{}, &TransportError{Op: "exec", Err: fmt.Errorf("%w (state %s)", ErrNotConnected, st)}
	}
	s.state = Executing
	s.mu.Unlock()

	start := time.Now()
	log := s.log.With(zap.String("command", command))
	out, status, err := s.run(ctx, command, log)
	out.Elapsed = time.Since(start)

	var te *TransportError
	if errors.As(err, &te) {
		s.markBroken()
	} else {
		s.mu.Lock()
		if s.state == Executing {
			s.state = Connected
		}
		s.mu.Unlock()
	}
	s.metrics.ObserveCommand(status, out.Elapsed)
	log.Debug("command finished",
		zap.String("status", status),
		zap.Duration("elapsed", out.Elapsed),
		zap.Int("stdout_bytes", len(out.Stdout)),
		zap.Int("stderr_bytes", len(out.Stderr)),
		zap.Error(err))
	return out, err
}

type waitResult struct {
	err error
}

func (s *Session) run(ctx context.Context, command string, log *zap.Logger) (Output, string, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return Output{}, "error", &TransportError{Op: "open channel", Err: err}
	}
	defer sess.Close()

	stdout, err := sess.StdoutPipe()
	if err != nil {
		return Output{}, "error", &TransportError{Op: "stdout", Err: err}
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		return Output{}, "error", &TransportError{Op: "stderr", Err: err}
	}
	if err := sess.Start(command); err != nil {
		return Output{}, "error", &TransportError{Op: "exec", Err: err}
	}

	var outBuf, errBuf bytes.Buffer
	var readers sync.WaitGroup
	readers.Add(2)
	go readChunks(stdout, &outBuf, s.cfg.ReadChunkSize, &readers)
	go readChunks(stderr, &errBuf, s.cfg.ReadChunkSize, &readers)

	done := make(chan waitResult, 1)
	go func() {
		err := sess.Wait()
		readers.Wait()
		done <- waitResult{err: err}
	}()

	timer := time.NewTimer(s.cfg.CommandTimeout)
	defer timer.Stop()

	var (
		res      waitResult
		finished bool
		cause    error
	)
	select {
	case res = <-done:
		finished = true
	case <-timer.C:
		cause = &CommandTimeoutError{Command: command, Timeout: s.cfg.CommandTimeout}
	case <-ctx.Done():
		cause = fmt.Errorf("command %q: %w", command, ctx.Err())
	}

	if !finished {
		log.Debug("closing unfinished command channel", zap.Error(cause))
		_ = sess.Close()
		grace := time.NewTimer(closeGrace)
		select {
		case <-done:
			grace.Stop()
		case <-grace.C:
			// The channel did not wind down; drop the connection so the
			// readers return.
			_ = s.client.Close()
			<-done
			out := collect(&outBuf, &errBuf, nil)
			return out, "error", &TransportError{Op: "close channel", Err: cause}
		}
		status := "error"
		if errors.Is(cause, ErrCommandTimeout) {
			status = "timeout"
		}
		return collect(&outBuf, &errBuf, nil), status, cause
	}

	var exit *int
	var exitErr *ssh.ExitError
	var missing *ssh.ExitMissingError
	switch {
	case res.err == nil:
		code := 0
		exit = &code
	case errors.As(res.err, &exitErr):
		code := exitErr.ExitStatus()
		exit = &code
	case errors.As(res.err, &missing):
		// Some devices close the channel without reporting a status.
	default:
		return collect(&outBuf, &errBuf, nil), "error", &TransportError{Op: "wait", Err: res.err}
	}
	return collect(&outBuf, &errBuf, exit), "ok", nil
}

// readChunks copies r into buf chunk bytes at a time until EOF or error.
func readChunks(r io.Reader, buf *bytes.Buffer, chunk int, wg *sync.WaitGroup) {
	defer wg.Done()
	p := make([]byte, chunk)
	for {
		n, err := r.Read(p)
		if n > 0 {
			buf.Write(p[:n])
		}
		if err != nil {
			return
		}
	}
}

func collect(stdout, stderr *bytes.Buffer, exit *int) Output {
	return Output{
		Stdout:     strings.ToValidUTF8(stdout.String(), "\uFFFD"),
		Stderr:     strings.ToValidUTF8(stderr.String(), "\uFFFD"),
		ExitStatus: exit,
	}
}
