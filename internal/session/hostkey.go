// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package session

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/toeirei/circuitdiag/internal/db"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// hostKeyCallback verifies presented host keys against store according to
// policy. Keys are stored under the known_hosts form of the address
// ("host" for port 22, "[host]:port" otherwise).
func hostKeyCallback(ctx context.Context, policy HostKeyPolicy, store db.HostKeyStore, log *zap.Logger) ssh.HostKeyCallback {
	if policy == HostKeyInsecure {
		return ssh.InsecureIgnoreHostKey()
	}
	return func(hostname string, _ net.Addr, key ssh.PublicKey) error {
		host := knownhosts.Normalize(hostname)
		presented := string(ssh.MarshalAuthorizedKey(key))

		if store == nil {
			if policy == HostKeyStrict {
				return fmt.Errorf("unknown host key for %s: no host key store configured", host)
			}
			log.Warn("no host key store, accepting key without recording it",
				zap.String("host", host), zap.String("fingerprint", ssh.FingerprintSHA256(key)))
			return nil
		}

		known, err := store.GetKnownHostKey(ctx, host)
		if err != nil {
			return fmt.Errorf("failed to query known host keys: %w", err)
		}

		if known == "" {
			if policy == HostKeyStrict {
				return fmt.Errorf("unknown host key for %s (%s)", host, ssh.FingerprintSHA256(key))
			}
			if err := store.AddKnownHostKey(ctx, host, presented); err != nil {
				return fmt.Errorf("failed to record host key for %s: %w", host, err)
			}
			log.Info("recorded new host key",
				zap.String("host", host), zap.String("fingerprint", ssh.FingerprintSHA256(key)))
			return nil
		}

		if strings.TrimSpace(known) != strings.TrimSpace(presented) {
			return fmt.Errorf("host key mismatch for %s: presented %s", host, ssh.FingerprintSHA256(key))
		}
		return nil
	}
}
