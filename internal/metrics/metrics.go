// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

// package metrics holds the Prometheus collectors for sessions and
// dispatches. A nil *Collectors is valid and records nothing.
package metrics // import "github.com/toeirei/circuitdiag/internal/metrics"

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "circuitdiag"

// Collectors groups every metric circuitdiag exports.
type Collectors struct {
	probeAttempts     *prometheus.CounterVec
	authResults       *prometheus.CounterVec
	commandDuration   *prometheus.HistogramVec
	keepaliveFailures prometheus.Counter
	sessionsOpen      prometheus.Gauge
	dispatchDuration  *prometheus.HistogramVec
	mappingResults    *prometheus.CounterVec
	truncations       prometheus.Counter
}

// New registers the collectors with reg. A nil reg creates unregistered
// collectors, which is handy in tests.
func New(reg prometheus.Registerer) *Collectors {
	f := promauto.With(reg)
	return &Collectors{
		// Labels: result (reachable, unreachable)
		probeAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "probe_attempts_total",
			Help:      "TCP reachability attempts by outcome of the whole probe",
		}, []string{"result"}),
		// Labels: method (key, password, shared), result (ok, failed)
		authResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "auth_total",
			Help:      "Authentication handshakes by credential method and result",
		}, []string{"method", "result"}),
		// Labels: status (ok, error, timeout)
		commandDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "command_duration_seconds",
			Help:      "Remote command execution time",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"status"}),
		keepaliveFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "keepalive_failures_total",
			Help:      "Keepalive requests that broke a session",
		}),
		sessionsOpen: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "open",
			Help:      "Currently open device sessions",
		}),
		// Labels: outcome (found, not_found)
		dispatchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Wall time of a whole circuit dispatch",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"outcome"}),
		// Labels: status (ok, error)
		mappingResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "results_total",
			Help:      "Execution results produced by dispatches",
		}, []string{"status"}),
		truncations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "truncated_outputs_total",
			Help:      "Command outputs cut down to head and tail",
		}),
	}
}

// ObserveProbe counts the attempts one probe needed.
func (c *Collectors) ObserveProbe(reachable bool, attempts int) {
	if c == nil {
		return
	}
	result := "reachable"
	if !reachable {
		result = "unreachable"
	}
	c.probeAttempts.WithLabelValues(result).Add(float64(attempts))
}

// ObserveAuth records one handshake.
func (c *Collectors) ObserveAuth(method string, ok bool) {
	if c == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	c.authResults.WithLabelValues(method, result).Inc()
}

// ObserveCommand records one command execution.
func (c *Collectors) ObserveCommand(status string, d time.Duration) {
	if c == nil {
		return
	}
	c.commandDuration.WithLabelValues(status).Observe(d.Seconds())
}

// KeepaliveFailed counts a session lost to a failed keepalive.
func (c *Collectors) KeepaliveFailed() {
	if c == nil {
		return
	}
	c.keepaliveFailures.Inc()
}

// SessionOpened and SessionClosed track the open session gauge.
func (c *Collectors) SessionOpened() {
	if c == nil {
		return
	}
	c.sessionsOpen.Inc()
}

func (c *Collectors) SessionClosed() {
	if c == nil {
		return
	}
	c.sessionsOpen.Dec()
}

// ObserveDispatch records a finished dispatch.
func (c *Collectors) ObserveDispatch(found bool, d time.Duration) {
	if c == nil {
		return
	}
	outcome := "found"
	if !found {
		outcome = "not_found"
	}
	c.dispatchDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveResult counts one execution result by status.
func (c *Collectors) ObserveResult(status string, truncated bool) {
	if c == nil {
		return
	}
	c.mappingResults.WithLabelValues(status).Inc()
	if truncated {
		c.truncations.Inc()
	}
}
