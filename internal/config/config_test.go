// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	cfg "github.com/toeirei/circuitdiag/internal/config"
	"github.com/toeirei/circuitdiag/internal/session"
)

// isolate points the user config dir at an empty temp dir and runs the test
// from another empty dir so no real circuitdiag.yaml is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmp, "xdg"))
	t.Setenv("HOME", tmp)
	t.Chdir(t.TempDir())
	return tmp
}

func TestLoadConfig_Defaults(t *testing.T) {
	isolate(t)

	got, err := cfg.LoadConfig[cfg.Config](&cobra.Command{}, cfg.Defaults(), nil)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if got.Database.Type != "sqlite" || got.Language != "en" {
		t.Fatalf("unexpected defaults: %+v", got)
	}
	if got.SSH.ProbeAttempts != 3 || got.SSH.ProbeDelay != 2*time.Second || got.SSH.CommandTimeout != 60*time.Second {
		t.Fatalf("unexpected ssh defaults: %+v", got.SSH)
	}
	if got.Dispatch.OutputCeiling != 200000 || got.Dispatch.OutputHead != 100000 || got.Dispatch.OutputTail != 100000 {
		t.Fatalf("unexpected dispatch defaults: %+v", got.Dispatch)
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadConfig_ReadsExplicitFile(t *testing.T) {
	tmp := isolate(t)
	yaml := "database:\n  type: postgres\n  dsn: postgresql://user@/db\nlanguage: de\nssh:\n  probe_delay: 500ms\n  host_key_policy: strict\n"
	file := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(file, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	got, err := cfg.LoadConfig[cfg.Config](&cobra.Command{}, cfg.Defaults(), &file)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if got.Database.Type != "postgres" {
		t.Fatalf("expected postgres, got %q", got.Database.Type)
	}
	if got.Language != "de" {
		t.Fatalf("expected de, got %q", got.Language)
	}
	sc := got.SessionConfig()
	if sc.ProbeDelay != 500*time.Millisecond || sc.HostKeyPolicy != session.HostKeyStrict {
		t.Fatalf("unexpected session config: %+v", sc)
	}
	// Untouched keys keep their defaults.
	if sc.ProbeAttempts != 3 {
		t.Fatalf("expected default probe attempts, got %d", sc.ProbeAttempts)
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	tmp := isolate(t)
	file := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(file, []byte("dispatch:\n  concurrency: 2\n"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	t.Setenv("CIRCUITDIAG_DISPATCH_CONCURRENCY", "4")

	got, err := cfg.LoadConfig[cfg.Config](&cobra.Command{}, cfg.Defaults(), &file)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if dc := got.DispatchConfig(); dc.Concurrency != 4 {
		t.Fatalf("expected env override 4, got %d", dc.Concurrency)
	}
}

func TestLoadConfig_FlagsOverrideEnv(t *testing.T) {
	isolate(t)
	t.Setenv("CIRCUITDIAG_DATABASE_DSN", "from-env.db")

	cmd := &cobra.Command{}
	cmd.Flags().String("db-dsn", "", "")
	if err := cmd.Flags().Set("db-dsn", "from-flag.db"); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	got, err := cfg.LoadConfig[cfg.Config](cmd, cfg.Defaults(), nil)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if got.Database.Dsn != "from-flag.db" {
		t.Fatalf("expected flag value, got %q", got.Database.Dsn)
	}
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	tmp := isolate(t)
	file := filepath.Join(tmp, "bad.yaml")
	if err := os.WriteFile(file, []byte("ssh: [unclosed\n"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := cfg.LoadConfig[cfg.Config](&cobra.Command{}, cfg.Defaults(), &file); err == nil {
		t.Fatal("expected parse error for malformed file")
	}
}

func TestWriteConfigFile_CreatesFile(t *testing.T) {
	tmp := isolate(t)

	c := cfg.Config{}
	c.Database.Type = "sqlite"
	c.Database.Dsn = "./circuitdiag.db"
	c.Language = "en"

	path, err := cfg.WriteConfigFile(&c, false)
	if err != nil {
		t.Fatalf("WriteConfigFile failed: %v", err)
	}
	if !strings.HasPrefix(path, tmp) {
		t.Fatalf("expected config under %s, got %s", tmp, path)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected config file at %s, stat error: %v", path, err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 permissions, got %v", info.Mode().Perm())
	}
}

func TestValidate(t *testing.T) {
	base := func() cfg.Config {
		c := cfg.Config{}
		c.SSH.ProbeAttempts = 3
		c.SSH.HostKeyPolicy = "accept-new"
		c.Dispatch.OutputCeiling = 200
		c.Dispatch.OutputHead = 100
		c.Dispatch.OutputTail = 100
		return c
	}
	cases := []struct {
		name    string
		mutate  func(*cfg.Config)
		wantErr string
	}{
		{"valid", func(*cfg.Config) {}, ""},
		{"bad policy", func(c *cfg.Config) { c.SSH.HostKeyPolicy = "yolo" }, "host_key_policy"},
		{"zero attempts", func(c *cfg.Config) { c.SSH.ProbeAttempts = 0 }, "probe_attempts"},
		{"head+tail over ceiling", func(c *cfg.Config) { c.Dispatch.OutputTail = 101 }, "output_ceiling"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base()
			tc.mutate(&c)
			err := c.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}
