// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutcomeSuccess labels invocations that returned a payload. Failures are
// labelled with their Kind.
const OutcomeSuccess = "success"

// unknownToolLabel keeps arbitrary client input out of the label space.
const unknownToolLabel = "unknown"

// Metrics counts and times tool invocations.
type Metrics struct {
	Invocations *prometheus.CounterVec
	Duration    *prometheus.HistogramVec
}

// NewMetrics creates the tool metrics and registers them with reg.
// A nil reg leaves them unregistered, which tests and the CLI use.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agent",
			Name:      "tool_invocations_total",
			Help:      "Tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agent",
			Name:      "tool_duration_seconds",
			Help:      "Tool handler latency.",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.5, 1, 2.5, 10, 30, 120, 600},
		}, []string{"tool"}),
	}
	if reg != nil {
		reg.MustRegister(m.Invocations, m.Duration)
	}
	return m
}

func (m *Metrics) observe(tool, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Invocations.WithLabelValues(tool, outcome).Inc()
	m.Duration.WithLabelValues(tool).Observe(elapsed.Seconds())
}
