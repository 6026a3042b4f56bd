// Copyright (C) 2025 SpecVault Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/> for the full license text.

// Package telemetry exposes prometheus metrics and trace-export setup for
// the versioning service.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	publishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "specvault_publish_total",
		Help: "Publish attempts by outcome and bump type",
	}, []string{"outcome", "bump"})

	reviewTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "specvault_review_total",
		Help: "Approve/reject actions by action and outcome",
	}, []string{"action", "outcome"})

	diffDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "specvault_diff_duration_seconds",
		Help:    "Time to generate a snapshot diff",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	pendingVersions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "specvault_pending_versions",
		Help: "Number of versions currently awaiting review",
	})
)

// RecordPublish counts one publish attempt. Bump is empty for blocked or
// failed publishes.
func RecordPublish(outcome, bump string) {
	publishTotal.WithLabelValues(outcome, bump).Inc()
}

// RecordReview counts one approve/reject action.
func RecordReview(action, outcome string) {
	reviewTotal.WithLabelValues(action, outcome).Inc()
}

// RecordDiffDuration observes one diff generation.
func RecordDiffDuration(seconds float64) {
	diffDuration.Observe(seconds)
}

// PendingInc and PendingDec track the pending-version gauge around lifecycle
// transitions.
func PendingInc() { pendingVersions.Inc() }

// PendingDec decrements the pending-version gauge.
func PendingDec() { pendingVersions.Dec() }
