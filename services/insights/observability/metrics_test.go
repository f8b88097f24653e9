// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestMetrics creates metrics on a private registry so tests can run in
// parallel without touching the global registry.
func newTestMetrics(t *testing.T) (*InsightMetrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewInsightMetrics(reg), reg
}

func TestRecordRequest(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordRequest(OutcomeOK, 200*time.Millisecond)
	m.RecordRequest(OutcomeOK, time.Second)
	m.RecordRequest(OutcomeBudgetExceeded, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("budget_exceeded")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.RequestDurationSeconds))
}

func TestRecordCacheLookup(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordCacheLookup(true)
	m.RecordCacheLookup(false)
	m.RecordCacheLookup(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookupsTotal.WithLabelValues("miss")))
}

func TestRecordGeneration(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordGeneration("ok", "", time.Second)
	m.RecordGeneration("invalid", "unknown_evidence_ids", time.Second)
	m.RecordGeneration("fallback", "timeout", 45*time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ValidationTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ValidationTotal.WithLabelValues("invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FallbacksTotal.WithLabelValues("timeout")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.FallbacksTotal))
}

func TestRecordBudgetAndEvidence(t *testing.T) {
	m, reg := newTestMetrics(t)

	m.RecordBudgetRejection("rate_limit")
	m.RecordEvidenceBytes(4096)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BudgetRejectionsTotal.WithLabelValues("rate_limit")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "aleutian_insight_evidence_bytes")
	assert.Contains(t, names, "aleutian_insight_budget_rejections_total")
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *InsightMetrics
	assert.NotPanics(t, func() {
		m.RecordRequest(OutcomeOK, time.Second)
		m.RecordCacheLookup(true)
		m.RecordBudgetRejection("cooldown")
		m.RecordGeneration("ok", "", time.Second)
		m.RecordEvidenceBytes(1)
	})
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewInsightMetrics(reg)
	assert.Panics(t, func() { NewInsightMetrics(reg) })
}
