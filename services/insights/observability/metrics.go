// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the deep insight
// pipeline.
//
// # Description
//
// Metrics include:
//   - Request counters and latency by outcome
//   - Evidence pack cache lookups
//   - Budget gate rejections
//   - Generation duration, validation status and fallbacks by reason
//   - Evidence pack size
//
// Metrics are exposed via the /metrics endpoint.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
// Every Record method is a no-op on a nil *InsightMetrics.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "aleutian"

// Subsystem for deep insight metrics
const insightSubsystem = "insight"

// InsightMetrics holds all Prometheus metrics for the deep insight pipeline.
//
// # Fields
//
//   - RequestsTotal: Requests by outcome
//   - RequestDurationSeconds: End-to-end latency by outcome
//   - CacheLookupsTotal: Evidence pack cache lookups by result (hit, miss)
//   - BudgetRejectionsTotal: Budget gate rejections by reason
//   - GenerationDurationSeconds: Generation step latency by validation status
//   - ValidationTotal: Reports by validation status (ok, invalid, fallback)
//   - FallbacksTotal: Fallback reports by reason
//   - EvidenceBytes: Serialized evidence pack size
type InsightMetrics struct {
	RequestsTotal             *prometheus.CounterVec
	RequestDurationSeconds    *prometheus.HistogramVec
	CacheLookupsTotal         *prometheus.CounterVec
	BudgetRejectionsTotal     *prometheus.CounterVec
	GenerationDurationSeconds *prometheus.HistogramVec
	ValidationTotal           *prometheus.CounterVec
	FallbacksTotal            *prometheus.CounterVec
	EvidenceBytes             prometheus.Histogram
}

// NewInsightMetrics creates and registers all metrics on reg.
//
// # Inputs
//
//   - reg: Registry to register on. nil uses prometheus.DefaultRegisterer.
//
// # Limitations
//
//   - Panics if called twice against the same registry (duplicate
//     registration).
func NewInsightMetrics(reg prometheus.Registerer) *InsightMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &InsightMetrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: insightSubsystem,
				Name:      "requests_total",
				Help:      "Total deep insight requests by outcome",
			},
			[]string{"outcome"},
		),

		RequestDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: insightSubsystem,
				Name:      "request_duration_seconds",
				Help:      "Deep insight request duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"outcome"},
		),

		CacheLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: insightSubsystem,
				Name:      "cache_lookups_total",
				Help:      "Evidence pack cache lookups by result",
			},
			[]string{"result"},
		),

		BudgetRejectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: insightSubsystem,
				Name:      "budget_rejections_total",
				Help:      "Requests rejected by the budget gate by reason",
			},
			[]string{"reason"},
		),

		GenerationDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: insightSubsystem,
				Name:      "generation_duration_seconds",
				Help:      "Report generation duration in seconds by validation status",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"status"},
		),

		ValidationTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: insightSubsystem,
				Name:      "validation_total",
				Help:      "Reports by validation status",
			},
			[]string{"status"},
		),

		FallbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: insightSubsystem,
				Name:      "fallbacks_total",
				Help:      "Deterministic fallback reports by reason",
			},
			[]string{"reason"},
		),

		EvidenceBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: insightSubsystem,
				Name:      "evidence_bytes",
				Help:      "Serialized evidence pack size in bytes",
				Buckets:   prometheus.ExponentialBuckets(1024, 2, 8),
			},
		),
	}
}

// =============================================================================
// Outcomes
// =============================================================================

// Outcome categorizes a finished request.
type Outcome string

const (
	// OutcomeOK is a request answered with an accepted model report.
	OutcomeOK Outcome = "ok"

	// OutcomeFallback is a request answered with the fallback report.
	OutcomeFallback Outcome = "fallback"

	// OutcomeInvalidRequest is a request that failed validation.
	OutcomeInvalidRequest Outcome = "invalid_request"

	// OutcomeBudgetExceeded is a request rejected by the budget gate.
	OutcomeBudgetExceeded Outcome = "budget_exceeded"

	// OutcomeUpstreamError is a request whose collaborator call failed.
	OutcomeUpstreamError Outcome = "upstream_error"

	// OutcomeCancelled is a request abandoned by its caller.
	OutcomeCancelled Outcome = "cancelled"

	// OutcomeInternal is any other failure.
	OutcomeInternal Outcome = "internal"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordRequest records a finished request.
func (m *InsightMetrics) RecordRequest(outcome Outcome, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(string(outcome)).Inc()
	m.RequestDurationSeconds.WithLabelValues(string(outcome)).Observe(d.Seconds())
}

// RecordCacheLookup records an evidence pack cache lookup.
func (m *InsightMetrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordBudgetRejection records a budget gate rejection.
func (m *InsightMetrics) RecordBudgetRejection(reason string) {
	if m == nil {
		return
	}
	m.BudgetRejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordGeneration records the generation step.
//
// # Inputs
//
//   - status: ok, invalid or fallback.
//   - reason: Fallback reason; empty when the model report was accepted.
//   - d: Duration of the generation step.
func (m *InsightMetrics) RecordGeneration(status, reason string, d time.Duration) {
	if m == nil {
		return
	}
	m.GenerationDurationSeconds.WithLabelValues(status).Observe(d.Seconds())
	m.ValidationTotal.WithLabelValues(status).Inc()
	if reason != "" {
		m.FallbacksTotal.WithLabelValues(reason).Inc()
	}
}

// RecordEvidenceBytes records the serialized size of an evidence pack.
func (m *InsightMetrics) RecordEvidenceBytes(n int) {
	if m == nil {
		return
	}
	m.EvidenceBytes.Observe(float64(n))
}
