// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/toeirei/circuitdiag/internal/mockdevice"
)

// isolate points every config search path at a fresh temp dir and returns
// it, so no config file from the developer's machine is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Chdir(dir)
	return dir
}

// executeCommand runs a fresh root command and returns its combined output.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	a := &app{}
	root := newRootCmd(a)
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	a.close()
	return buf.String(), err
}

// startMockDevice runs a mock device on a free port for the test.
func startMockDevice(t *testing.T, cfg mockdevice.Config) (host string, port int) {
	t.Helper()
	srv, err := mockdevice.New(cfg)
	if err != nil {
		t.Fatalf("mockdevice.New: %v", err)
	}
	addr, err := srv.Start("127.0.0.1:0")
	if err != nil {
		t.Fatalf("mockdevice.Start: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })
	h, p, _ := net.SplitHostPort(addr.String())
	port, _ = strconv.Atoi(p)
	return h, port
}

func TestSeedAndDispatch(t *testing.T) {
	dir := isolate(t)
	dsn := filepath.Join(dir, "circuitdiag.db")
	host, port := startMockDevice(t, mockdevice.Config{Mode: mockdevice.ModeKeyboardInteractive})

	out, err := executeCommand(t, "--db-dsn", dsn, "seed-test", "--address", host, "--port", strconv.Itoa(port))
	if err != nil {
		t.Fatalf("seed-test: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Seeded circuit TEST-001 on device "+mockdevice.SeedDeviceName) {
		t.Errorf("seed output = %q", out)
	}

	out, err = executeCommand(t, "--db-dsn", dsn, "dispatch", "TEST-001", "--user", "alice", "--json")
	if err != nil {
		t.Fatalf("dispatch: %v\n%s", err, out)
	}
	var rep struct {
		CircuitID string `json:"circuit_id"`
		NotFound  bool   `json:"not_found"`
		Contact   struct {
			Name string `json:"name"`
		} `json:"contact"`
		Results []struct {
			DeviceLabel string `json:"device_label"`
			Status      string `json:"status"`
			Output      string `json:"output"`
		} `json:"results"`
	}
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out)
	}
	if rep.CircuitID != "TEST-001" || rep.NotFound || rep.Contact.Name != "John Demo" {
		t.Errorf("report header = %+v", rep)
	}
	if len(rep.Results) != 1 || rep.Results[0].Status != "ok" || !strings.Contains(rep.Results[0].Output, "Circuit ID: TEST-001") {
		t.Fatalf("results = %+v", rep.Results)
	}

	out, err = executeCommand(t, "--db-dsn", dsn, "dispatch", "TEST-MULTI", "--user", "alice")
	if err != nil {
		t.Fatalf("dispatch TEST-MULTI: %v\n%s", err, out)
	}
	for _, want := range []string{"[OK]", "ACORN Mock Router", "Interface ge-0/0/0", "2 result(s) from 1 device(s)", "Contact: Alex Multi"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestDispatch_NotFoundAndUsage(t *testing.T) {
	dir := isolate(t)
	dsn := filepath.Join(dir, "circuitdiag.db")

	out, err := executeCommand(t, "--db-dsn", dsn, "dispatch", "NOPE-1", "--user", "alice")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !strings.Contains(out, "No equipment mappings found for circuit ID: NOPE-1") {
		t.Errorf("output = %q", out)
	}

	if _, err := executeCommand(t, "--db-dsn", dsn, "dispatch", "NOPE-1"); err == nil {
		t.Error("dispatch without --user must fail")
	}
	if _, err := executeCommand(t, "--db-dsn", dsn, "dispatch", "  ", "--user", "alice"); err == nil {
		t.Error("blank circuit ID must fail")
	}
}

func TestProbe(t *testing.T) {
	isolate(t)
	t.Setenv("CIRCUITDIAG_SSH_PROBE_DELAY", "5ms")
	host, port := startMockDevice(t, mockdevice.Config{})

	out, err := executeCommand(t, "probe", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if !strings.Contains(out, "is reachable (attempt 1 of 3)") {
		t.Errorf("output = %q", out)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	closed := ln.Addr().String()
	_ = ln.Close()
	out, err = executeCommand(t, "probe", closed)
	if err == nil {
		t.Fatalf("probe of closed port succeeded: %s", out)
	}
	if !strings.Contains(out, "unreachable after 3 attempt(s)") {
		t.Errorf("output = %q", out)
	}
}

func TestMappingsExportImport(t *testing.T) {
	dir := isolate(t)
	src := filepath.Join(dir, "src.db")
	dst := filepath.Join(dir, "dst.db")
	file := filepath.Join(dir, "mappings.json.zst")

	if out, err := executeCommand(t, "--db-dsn", src, "seed-test"); err != nil {
		t.Fatalf("seed-test: %v\n%s", err, out)
	}
	out, err := executeCommand(t, "--db-dsn", src, "mappings", "export", file)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(out, "Exported 1 device(s) and 3 mapping(s)") {
		t.Errorf("export output = %q", out)
	}

	out, err = executeCommand(t, "--db-dsn", dst, "mappings", "import", file)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out, "Imported 1 device(s) and 3 mapping(s), skipped 0") {
		t.Errorf("import output = %q", out)
	}
	out, err = executeCommand(t, "--db-dsn", dst, "mappings", "import", file)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if !strings.Contains(out, "Imported 0 device(s) and 0 mapping(s), skipped 3") {
		t.Errorf("second import output = %q", out)
	}

	out, err = executeCommand(t, "--db-dsn", dst, "mappings", "export", "--filter", "multi")
	if err != nil {
		t.Fatalf("filtered export: %v", err)
	}
	if !strings.Contains(out, `"circuit_id": "TEST-MULTI"`) || strings.Contains(out, "TEST-001") {
		t.Errorf("filtered export = %s", out)
	}
}

func TestConfigCommands(t *testing.T) {
	dir := isolate(t)

	out, err := executeCommand(t, "--lang", "de", "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, "language: de") || !strings.Contains(out, "host_key_policy: accept-new") {
		t.Errorf("config show = %s", out)
	}

	if _, err := executeCommand(t, "config", "init"); err != nil {
		t.Fatalf("config init: %v", err)
	}
	path := filepath.Join(dir, "config", "circuitdiag", "circuitdiag.yaml")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("config mode = %v, want 0600", info.Mode().Perm())
	}

	if _, err := executeCommand(t, "--config", filepath.Join(dir, "missing.yaml"), "config", "show"); err == nil {
		t.Error("missing --config file must fail")
	}

	t.Setenv("CIRCUITDIAG_SSH_HOST_KEY_POLICY", "yolo")
	if _, err := executeCommand(t, "config", "show"); err == nil {
		t.Error("invalid host key policy must fail")
	}
}

func TestKeygen(t *testing.T) {
	dir := isolate(t)
	key := filepath.Join(dir, "device_key")

	out, err := executeCommand(t, "keygen", key, "-C", "noc")
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	if !strings.HasPrefix(strings.TrimSpace(out), "SHA256:") {
		t.Errorf("output = %q, want a fingerprint", out)
	}
	pub, err := os.ReadFile(key + ".pub")
	if err != nil || !strings.HasPrefix(string(pub), "ssh-ed25519 ") {
		t.Fatalf("public key = %q, %v", pub, err)
	}
	if info, err := os.Stat(key); err != nil || info.Mode().Perm() != 0o600 {
		t.Fatalf("private key stat = %v, %v", info, err)
	}
	if _, err := executeCommand(t, "keygen", key); err == nil {
		t.Error("keygen must not overwrite an existing key")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	isolate(t)
	host, port := startMockDevice(t, mockdevice.Config{})

	a := &app{}
	root := newRootCmd(a)
	root.SetOut(io.Discard)
	root.SetArgs([]string{"--metrics-listen", "127.0.0.1:0", "probe", net.JoinHostPort(host, strconv.Itoa(port))})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("probe: %v", err)
	}
	defer a.close()

	resp, err := http.Get("http://" + a.metricsLn.Addr().String() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{"circuitdiag_session_probe_attempts_total", "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics missing %s", want)
		}
	}
}

func TestParseDelays(t *testing.T) {
	got, err := parseDelays([]string{"show run=30s", " show version = 1ms"})
	if err != nil {
		t.Fatalf("parseDelays: %v", err)
	}
	if got["show run"].String() != "30s" || got["show version"].String() != "1ms" {
		t.Errorf("delays = %v", got)
	}
	for _, bad := range []string{"nodelay", "=1s", "show run=soon"} {
		if _, err := parseDelays([]string{bad}); err == nil {
			t.Errorf("parseDelays(%q) succeeded", bad)
		}
	}
}

func TestWithDefaultPort(t *testing.T) {
	tests := map[string]string{
		"10.0.0.1":       "10.0.0.1:22",
		"10.0.0.1:2222":  "10.0.0.1:2222",
		"router.example": "router.example:22",
		"::1":            "[::1]:22",
		"[::1]:830":      "[::1]:830",
	}
	for in, want := range tests {
		if got := withDefaultPort(in); got != want {
			t.Errorf("withDefaultPort(%q) = %q, want %q", in, got, want)
		}
	}
}
