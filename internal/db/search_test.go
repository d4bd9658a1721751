// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"reflect"
	"testing"

	"github.com/toeirei/circuitdiag/internal/model"
)

func TestTokenizeSearchQuery(t *testing.T) {
	if TokenizeSearchQuery("   ") != nil {
		t.Fatal("expected nil for blank query")
	}
	got := TokenizeSearchQuery("  OLT  Test-001 ")
	if !reflect.DeepEqual(got, []string{"olt", "test-001"}) {
		t.Fatalf("unexpected tokens %q", got)
	}
}

func TestFilterMappings(t *testing.T) {
	devices := map[int]model.Device{1: {Name: "core-rtr"}, 2: {Name: "olt-east"}}
	ms := []model.CommandMapping{
		{ID: 1, CircuitID: "TEST-001", DeviceID: 1, Command: "show version"},
		{ID: 2, CircuitID: "TEST-002", DeviceID: 2, Command: "show pon", Description: "Fiber customer"},
	}
	if got := FilterMappings(ms, devices, nil); len(got) != 2 {
		t.Fatalf("no tokens should keep all, got %d", len(got))
	}
	got := FilterMappings(ms, devices, TokenizeSearchQuery("olt fiber"))
	if len(got) != 1 || got[0].ID != 2 {
		t.Fatalf("unexpected filter result %+v", got)
	}
	if got := FilterMappings(ms, devices, []string{"nothing"}); len(got) != 0 {
		t.Fatalf("expected no matches, got %+v", got)
	}
}
