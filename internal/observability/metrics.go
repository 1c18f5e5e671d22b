// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package observability exports gatekeeper metrics and serves them with
// health probes over HTTP.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/holomush/gatekeeper/internal/auth"
)

// Metrics contains the gatekeeper Prometheus metrics. It implements
// auth.Recorder.
type Metrics struct {
	OperationsTotal *prometheus.CounterVec
	SweepsTotal     *prometheus.CounterVec
	LastSweep       prometheus.Gauge
}

// NewMetrics creates and registers the gatekeeper metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_auth_operations_total",
				Help: "Total number of auth operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		SweepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_session_sweeps_total",
				Help: "Total number of expired-session sweeps by outcome",
			},
			[]string{"outcome"},
		),
		LastSweep: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gatekeeper_session_last_sweep_timestamp_seconds",
				Help: "Unix time of the last successful expired-session sweep",
			},
		),
	}

	reg.MustRegister(m.OperationsTotal)
	reg.MustRegister(m.SweepsTotal)
	reg.MustRegister(m.LastSweep)

	return m
}

// ObserveOperation counts one orchestrator operation.
func (m *Metrics) ObserveOperation(operation, outcome string) {
	m.OperationsTotal.WithLabelValues(operation, outcome).Inc()
}

// ObserveSweep counts one sweep and stamps LastSweep on success.
func (m *Metrics) ObserveSweep(outcome string) {
	m.SweepsTotal.WithLabelValues(outcome).Inc()
	if outcome == auth.OutcomeSuccess {
		m.LastSweep.SetToCurrentTime()
	}
}

var _ auth.Recorder = (*Metrics)(nil)
