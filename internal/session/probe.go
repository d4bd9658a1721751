// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package session

import (
	"context"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Dialer opens TCP connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// probe makes up to cfg.ProbeAttempts connection attempts to addr, waiting
// cfg.ProbeDelay between them. Each attempt is bounded by cfg.ProbeTimeout.
// The connection of the first successful attempt is returned open.
func probe(ctx context.Context, d Dialer, addr string, cfg Config, log *zap.Logger) (net.Conn, int, error) {
	var (
		conn     net.Conn
		attempts int
	)
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(cfg.ProbeDelay), uint64(cfg.ProbeAttempts-1)),
		ctx,
	)

	op := func() error {
		attempts++
		actx, cancel := context.WithTimeout(ctx, cfg.ProbeTimeout)
		defer cancel()
		c, err := d.DialContext(actx, "tcp", addr)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}
	notify := func(err error, next time.Duration) {
		log.Debug("probe attempt failed",
			zap.String("addr", addr),
			zap.Int("attempt", attempts),
			zap.Duration("retry_in", next),
			zap.Error(err))
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, attempts, &ReachabilityError{Addr: addr, Attempts: attempts, Err: err}
	}
	return conn, attempts, nil
}
