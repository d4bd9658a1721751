// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

// package ssh holds key material helpers: loading client private keys for
// key authentication and creating host keys for the mock device.
package ssh // import "github.com/toeirei/circuitdiag/internal/crypto/ssh"

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
)

// GenerateAndMarshalEd25519Key creates a new ed25519 key pair and returns the
// public key in authorized_keys format (with comment) and the private key as
// an OpenSSH PEM block, encrypted when passphrase is non-empty.
func GenerateAndMarshalEd25519Key(comment string, passphrase string) (publicKeyString string, privateKeyString string, err error) {
	pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}

	sshPubKey, err := ssh.NewPublicKey(pubKey)
	if err != nil {
		return "", "", fmt.Errorf("failed to create SSH public key: %w", err)
	}
	publicKeyString = strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPubKey)))
	if comment != "" {
		publicKeyString += " " + comment
	}

	var pemBlock *pem.Block
	if passphrase == "" {
		pemBlock, err = ssh.MarshalPrivateKey(privKey, comment)
	} else {
		pemBlock, err = ssh.MarshalPrivateKeyWithPassphrase(privKey, comment, []byte(passphrase))
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal private key: %w", err)
	}

	return publicKeyString, string(pem.EncodeToMemory(pemBlock)), nil
}

// NewHostSigner returns a fresh in-memory ed25519 signer.
func NewHostSigner() (ssh.Signer, error) {
	_, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate host key: %w", err)
	}
	return ssh.NewSignerFromKey(privKey)
}

// LoadOrCreateHostKey reads an OpenSSH private key from path, creating a new
// ed25519 key there (mode 0600) when the file does not exist.
func LoadOrCreateHostKey(path string) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return ssh.ParsePrivateKey(data)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read host key %s: %w", path, err)
	}

	_, priv, err := GenerateAndMarshalEd25519Key("circuitdiag-mock-device", "")
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create host key directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(priv), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write host key %s: %w", path, err)
	}
	return ssh.ParsePrivateKey([]byte(priv))
}

// LoadSigner reads a client private key file. An empty passphrase means the
// key is expected to be unencrypted.
func LoadSigner(path string, passphrase []byte) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key %s: %w", path, err)
	}
	var signer ssh.Signer
	if len(passphrase) > 0 {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(data, passphrase)
	} else {
		signer, err = ssh.ParsePrivateKey(data)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to parse private key %s: %w", path, err)
	}
	return signer, nil
}

// Fingerprint returns the SHA256 fingerprint of an authorized_keys line, or
// "" if it cannot be parsed.
func Fingerprint(authorizedKey string) string {
	pk, _, _, _, err := ssh.ParseAuthorizedKey([]byte(authorizedKey))
	if err != nil {
		return ""
	}
	return ssh.FingerprintSHA256(pk)
}
