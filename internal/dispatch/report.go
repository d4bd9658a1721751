// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package dispatch

import (
	"encoding/json"
	"time"

	"github.com/toeirei/circuitdiag/internal/model"
)

// Report is the outcome of one dispatch.
type Report struct {
	RunID     string
	CircuitID string
	UserID    string
	StartedAt time.Time
	Elapsed   time.Duration
	// NotFound is set when the circuit has no mappings. It is a normal
	// outcome, not an error.
	NotFound bool
	// Contact comes from the first mapping with any contact field set.
	Contact *model.Contact
	// Groups holds one entry per mapping, in mapping order.
	Groups []Group
}

// Group is the result set of one mapping.
type Group struct {
	Mapping     model.CommandMapping
	DeviceLabel string
	// Skipped is set when the mapping's command string held no
	// commands.
	Skipped bool
	Results []model.ExecutionResult
}

// Results flattens the groups, keeping mapping order then command order.
func (r *Report) Results() []model.ExecutionResult {
	var out []model.ExecutionResult
	for _, g := range r.Groups {
		out = append(out, g.Results...)
	}
	return out
}

// Devices counts the mappings that produced results.
func (r *Report) Devices() int {
	n := 0
	for _, g := range r.Groups {
		if len(g.Results) > 0 {
			n++
		}
	}
	return n
}

// Failed counts results with error status.
func (r *Report) Failed() int {
	n := 0
	for _, g := range r.Groups {
		for _, res := range g.Results {
			if !res.OK() {
				n++
			}
		}
	}
	return n
}

type reportJSON struct {
	RunID     string                  `json:"run_id"`
	CircuitID string                  `json:"circuit_id"`
	NotFound  bool                    `json:"not_found"`
	Contact   *model.Contact          `json:"contact,omitempty"`
	ElapsedMS int64                   `json:"elapsed_ms"`
	Results   []model.ExecutionResult `json:"results"`
}

// MarshalJSON renders the flattened report.
func (r *Report) MarshalJSON() ([]byte, error) {
	results := r.Results()
	if results == nil {
		results = []model.ExecutionResult{}
	}
	return json.Marshal(reportJSON{
		RunID:     r.RunID,
		CircuitID: r.CircuitID,
		NotFound:  r.NotFound,
		Contact:   r.Contact,
		ElapsedMS: r.Elapsed.Milliseconds(),
		Results:   results,
	})
}
