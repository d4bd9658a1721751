// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

package model

import (
	"encoding/json"
	"time"
)

// ResultStatus is the outcome of a single command execution.
type ResultStatus string

const (
	StatusOK    ResultStatus = "ok"
	StatusError ResultStatus = "error"
)

// ExecutionResult is one row of dispatch output. It is never persisted.
type ExecutionResult struct {
	MappingID   int
	DeviceLabel string
	Command     string
	Output      string
	Status      ResultStatus
	Elapsed     time.Duration
	Truncated   bool
	ExitStatus  *int
}

// OK reports whether the command succeeded.
func (r ExecutionResult) OK() bool { return r.Status == StatusOK }

type executionResultJSON struct {
	DeviceLabel string       `json:"device_label"`
	Command     string       `json:"command"`
	Output      string       `json:"output"`
	Status      ResultStatus `json:"status"`
	ElapsedMS   int64        `json:"elapsed_ms"`
	Truncated   bool         `json:"truncated"`
	ExitStatus  *int         `json:"exit_status,omitempty"`
}

// MarshalJSON renders the wire shape consumed by the presentation layer.
func (r ExecutionResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(executionResultJSON{
		DeviceLabel: r.DeviceLabel,
		Command:     r.Command,
		Output:      r.Output,
		Status:      r.Status,
		ElapsedMS:   r.Elapsed.Milliseconds(),
		Truncated:   r.Truncated,
		ExitStatus:  r.ExitStatus,
	})
}
