// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toeirei/circuitdiag/internal/credentials"
	"github.com/toeirei/circuitdiag/internal/metrics"
	"github.com/toeirei/circuitdiag/internal/model"
	"github.com/toeirei/circuitdiag/internal/session"
)

func threeDeviceStore() *fakeStore {
	return &fakeStore{
		devices: map[int]model.Device{
			1: {ID: 1, Name: "core-1", Address: "10.0.0.1", Username: "admin"},
			2: {ID: 2, Name: "edge-2", Address: "10.0.0.2", Username: "admin"},
			3: {ID: 3, Name: "olt-3", Address: "10.0.0.3", Username: "admin"},
		},
		mappings: map[string][]model.CommandMapping{
			"C-100": {
				{ID: 10, CircuitID: "C-100", DeviceID: 1, Command: "show version; show interface"},
				{ID: 11, CircuitID: "C-100", DeviceID: 2, Command: "show version",
					Contact: model.Contact{Name: "NOC", Email: "noc@example.com"}},
				{ID: 12, CircuitID: "C-100", DeviceID: 3, Command: "show pon",
					Contact: model.Contact{Name: "Other"}},
			},
		},
	}
}

func TestDispatch_NotFound(t *testing.T) {
	c := New(&fakeStore{}, staticResolver{}, &fakeOpener{}, Config{})
	rep, err := c.Dispatch(context.Background(), "NOPE", "alice")
	require.NoError(t, err)
	assert.True(t, rep.NotFound)
	assert.Empty(t, rep.Results())
	assert.Nil(t, rep.Contact)
	assert.NotEmpty(t, rep.RunID)
}

func TestDispatch_StoreFailureSurfaces(t *testing.T) {
	boom := errors.New("db down")
	_, err := New(&fakeStore{err: boom}, staticResolver{}, &fakeOpener{}, Config{}).Dispatch(context.Background(), "C-100", "alice")
	require.ErrorIs(t, err, boom)

	st := threeDeviceStore()
	st.devErr = boom
	_, err = New(st, staticResolver{}, &fakeOpener{}, Config{}).Dispatch(context.Background(), "C-100", "alice")
	require.ErrorIs(t, err, boom)
}

func TestDispatch_IsolatesUnreachableMapping(t *testing.T) {
	opener := &fakeOpener{errs: map[int]error{
		2: &session.ReachabilityError{Addr: "10.0.0.2:22", Attempts: 3, Err: errors.New("connection refused")},
	}}
	rep, err := New(threeDeviceStore(), staticResolver{}, opener, Config{}).Dispatch(context.Background(), "C-100", "alice")
	require.NoError(t, err)

	results := rep.Results()
	require.Len(t, results, 4)

	assert.Equal(t, "core-1", results[0].DeviceLabel)
	assert.Equal(t, "show version", results[0].Command)
	assert.Equal(t, "show interface", results[1].Command)
	assert.True(t, results[0].OK())
	assert.True(t, results[1].OK())

	assert.Equal(t, "edge-2", results[2].DeviceLabel)
	assert.Equal(t, model.StatusError, results[2].Status)
	assert.Contains(t, results[2].Output, "unreachable after 3 attempt(s)")

	assert.Equal(t, "olt-3", results[3].DeviceLabel)
	assert.True(t, results[3].OK())

	require.NotNil(t, rep.Contact)
	assert.Equal(t, "NOC", rep.Contact.Name)
	assert.Equal(t, 3, rep.Devices())
	assert.Equal(t, 1, rep.Failed())
	assert.Equal(t, opener.opens.Load(), opener.closes.Load(), "every opened session must be closed")
}

func TestDispatch_AuthenticationFailureMessage(t *testing.T) {
	opener := &fakeOpener{errs: map[int]error{
		1: &session.AuthenticationError{Addr: "10.0.0.1:22", User: "admin", Methods: []string{"password", "keyboard-interactive"}, Err: errors.New("denied")},
	}}
	st := threeDeviceStore()
	st.mappings["C-100"] = st.mappings["C-100"][:1]

	rep, err := New(st, staticResolver{}, opener, Config{}).Dispatch(context.Background(), "C-100", "alice")
	require.NoError(t, err)
	require.Len(t, rep.Results(), 1)
	res := rep.Results()[0]
	assert.Equal(t, model.StatusError, res.Status)
	assert.Contains(t, res.Output, "password, keyboard-interactive")
	assert.Equal(t, "show version; show interface", res.Command)
}

func TestDispatch_SharedAuthWithoutIdentity(t *testing.T) {
	st := threeDeviceStore()
	st.devices[2] = model.Device{ID: 2, Name: "edge-2", Address: "10.0.0.2", Username: model.SharedAuthSentinel}

	// The real resolver over a store that knows no shared identities.
	resolver := credentials.NewResolver(emptyCreds{}, nil)
	opener := &fakeOpener{}
	rep, err := New(st, resolver, opener, Config{}).Dispatch(context.Background(), "C-100", "alice")
	require.NoError(t, err)

	results := rep.Results()
	require.Len(t, results, 4)
	assert.Equal(t, model.StatusError, results[2].Status)
	assert.Contains(t, results[2].Output, "no shared-auth identity is configured")
	assert.Contains(t, results[2].Output, "edge-2")
	assert.True(t, results[3].OK(), "later mappings still run")
	assert.EqualValues(t, 2, opener.opens.Load(), "no session for the misconfigured device")
}

type emptyCreds struct{}

func (emptyCreds) CredentialOverride(context.Context, string, int) (*model.UserCredentialOverride, error) {
	return nil, nil
}

func (emptyCreds) SharedIdentity(context.Context, string) (*model.SharedAuthIdentity, error) {
	return nil, nil
}

func TestDispatch_ResolverStoreFailureSurfaces(t *testing.T) {
	boom := errors.New("credential table locked")
	_, err := New(threeDeviceStore(), failingResolver{boom}, &fakeOpener{}, Config{}).Dispatch(context.Background(), "C-100", "alice")
	require.ErrorIs(t, err, boom)
}

type failingResolver struct{ err error }

func (f failingResolver) Resolve(context.Context, string, model.Device) (credentials.Credential, error) {
	return nil, f.err
}

func TestDispatch_BrokenSessionSkipsRemainingCommands(t *testing.T) {
	st := &fakeStore{
		devices: map[int]model.Device{1: {ID: 1, Name: "core-1", Username: "admin"}},
		mappings: map[string][]model.CommandMapping{
			"C-1": {{ID: 1, DeviceID: 1, Command: "show a; show b; show c"}},
		},
	}
	opener := &fakeOpener{scripts: map[int]map[string]step{
		1: {"show b": {out: session.Output{Stdout: "partial"}, err: &session.TransportError{Op: "wait", Err: errors.New("EOF")}, breaks: true}},
	}}
	rep, err := New(st, staticResolver{}, opener, Config{}).Dispatch(context.Background(), "C-1", "alice")
	require.NoError(t, err)

	results := rep.Results()
	require.Len(t, results, 3)
	assert.True(t, results[0].OK())
	assert.Equal(t, model.StatusError, results[1].Status)
	assert.Contains(t, results[1].Output, "partial")
	assert.Equal(t, "show c", results[2].Command)
	assert.Equal(t, model.StatusError, results[2].Status)
	assert.Contains(t, results[2].Output, "Not executed")
	assert.Equal(t, []string{"show a", "show b"}, opener.byDev[1].ran)
	assert.EqualValues(t, 1, opener.closes.Load())
}

func TestDispatch_CommandTimeoutKeepsGoing(t *testing.T) {
	st := &fakeStore{
		devices: map[int]model.Device{1: {ID: 1, Name: "olt", Username: "admin"}},
		mappings: map[string][]model.CommandMapping{
			"C-1": {{ID: 1, DeviceID: 1, Command: `show run; show version`}},
		},
	}
	opener := &fakeOpener{scripts: map[int]map[string]step{
		1: {"show run": {out: session.Output{Stdout: "Building configuration..."}, err: &session.CommandTimeoutError{Command: "show run", Timeout: time.Minute}}},
	}}
	rep, err := New(st, staticResolver{}, opener, Config{}).Dispatch(context.Background(), "C-1", "alice")
	require.NoError(t, err)

	results := rep.Results()
	require.Len(t, results, 2)
	assert.Equal(t, model.StatusError, results[0].Status)
	assert.Contains(t, results[0].Output, "within 1m0s")
	assert.Contains(t, results[0].Output, "Building configuration...")
	assert.True(t, results[1].OK())
}

func TestDispatch_EmptyCommandSpecIsSkipped(t *testing.T) {
	st := threeDeviceStore()
	st.mappings["C-100"][0].Command = " ; ;"
	opener := &fakeOpener{}
	rep, err := New(st, staticResolver{}, opener, Config{}).Dispatch(context.Background(), "C-100", "alice")
	require.NoError(t, err)
	require.Len(t, rep.Groups, 3)
	assert.True(t, rep.Groups[0].Skipped)
	assert.Empty(t, rep.Groups[0].Results)
	assert.Len(t, rep.Results(), 2)
	assert.EqualValues(t, 2, opener.opens.Load())
}

func TestDispatch_MissingDevice(t *testing.T) {
	st := threeDeviceStore()
	delete(st.devices, 3)
	rep, err := New(st, staticResolver{}, &fakeOpener{}, Config{}).Dispatch(context.Background(), "C-100", "alice")
	require.NoError(t, err)
	last := rep.Results()[len(rep.Results())-1]
	assert.Equal(t, model.StatusError, last.Status)
	assert.Equal(t, "#3", last.DeviceLabel)
	assert.Contains(t, last.Output, "no longer exists")
}

func TestDispatch_TruncatesLargeOutput(t *testing.T) {
	st := &fakeStore{
		devices:  map[int]model.Device{1: {ID: 1, Name: "core", Username: "admin"}},
		mappings: map[string][]model.CommandMapping{"C-1": {{ID: 1, DeviceID: 1, Command: "show run"}}},
	}
	big := strings.Repeat("a", 600) + strings.Repeat("b", 600)
	opener := &fakeOpener{scripts: map[int]map[string]step{1: {"show run": {out: session.Output{Stdout: big}}}}}
	cfg := Config{Ceiling: 1000, Head: 100, Tail: 100}

	reg := prometheus.NewRegistry()
	rep, err := New(st, staticResolver{}, opener, cfg, WithMetrics(metrics.New(reg))).Dispatch(context.Background(), "C-1", "alice")
	require.NoError(t, err)
	res := rep.Results()[0]
	assert.True(t, res.Truncated)
	assert.True(t, strings.HasPrefix(res.Output, strings.Repeat("a", 100)))
	assert.True(t, strings.HasSuffix(res.Output, strings.Repeat("b", 100)))
	assert.Contains(t, res.Output, "1000 characters truncated")
}

func TestDispatch_ConcurrentFanOutKeepsOrder(t *testing.T) {
	st := threeDeviceStore()
	// Earlier mappings take longer so they finish last.
	opener := &fakeOpener{delays: map[int]time.Duration{1: 150 * time.Millisecond, 2: 75 * time.Millisecond}}
	rep, err := New(st, staticResolver{}, opener, Config{Concurrency: 3}).Dispatch(context.Background(), "C-100", "alice")
	require.NoError(t, err)

	var labels []string
	for _, r := range rep.Results() {
		labels = append(labels, r.DeviceLabel)
	}
	assert.Equal(t, []string{"core-1", "core-1", "edge-2", "olt-3"}, labels)
}

func TestDispatch_CancelledContextSkips(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := New(threeDeviceStore(), staticResolver{}, &fakeOpener{}, Config{}).Dispatch(ctx, "C-100", "alice")
	require.NoError(t, err)
	for _, r := range rep.Results() {
		assert.Equal(t, model.StatusError, r.Status)
		assert.Contains(t, r.Output, "cancelled")
	}
}

func TestReport_JSON(t *testing.T) {
	code := 0
	rep := &Report{
		RunID:     "run-1",
		CircuitID: "C-1",
		Elapsed:   1500 * time.Millisecond,
		Contact:   &model.Contact{Name: "NOC"},
		Groups: []Group{{Results: []model.ExecutionResult{{
			DeviceLabel: "core", Command: "show version", Output: "v1", Status: model.StatusOK,
			Elapsed: 20 * time.Millisecond, ExitStatus: &code,
		}}}},
	}
	data, err := json.Marshal(rep)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "run-1", got["run_id"])
	assert.EqualValues(t, 1500, got["elapsed_ms"])
	results := got["results"].([]any)
	require.Len(t, results, 1)
	first := results[0].(map[string]any)
	assert.Equal(t, "core", first["device_label"])
	assert.EqualValues(t, 20, first["elapsed_ms"])
	assert.EqualValues(t, 0, first["exit_status"])

	empty, err := json.Marshal(&Report{NotFound: true})
	require.NoError(t, err)
	assert.Contains(t, string(empty), `"results":[]`)
}

func TestConfigDefaults(t *testing.T) {
	assert.Equal(t, DefaultConfig(), Config{}.withDefaults())
	got := Config{Ceiling: 10}.withDefaults()
	assert.Equal(t, 5, got.Head)
	assert.Equal(t, 5, got.Tail)
	assert.Equal(t, 1, got.Concurrency)
}
