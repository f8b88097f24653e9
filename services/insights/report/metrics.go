// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package report

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level tracer and meter for report generation.
var (
	tracer = otel.Tracer("aleutian.insight.report")
	meter  = otel.Meter("aleutian.insight.report")
)

var (
	generationsTotal   metric.Int64Counter
	generationDuration metric.Float64Histogram
	rejectionsTotal    metric.Int64Counter
	unknownIDsTotal    metric.Int64Counter
	fallbacksTotal     metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		generationsTotal, err = meter.Int64Counter(
			"insight_report_generations_total",
			metric.WithDescription("Total report generations by validation status"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		generationDuration, err = meter.Float64Histogram(
			"insight_report_generation_duration_seconds",
			metric.WithDescription("Model generation duration"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		rejectionsTotal, err = meter.Int64Counter(
			"insight_report_rejections_total",
			metric.WithDescription("Total rejected model reports by reason"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		unknownIDsTotal, err = meter.Int64Counter(
			"insight_report_unknown_evidence_ids_total",
			metric.WithDescription("Total unknown evidence ids cited by rejected reports"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		fallbacksTotal, err = meter.Int64Counter(
			"insight_report_fallbacks_total",
			metric.WithDescription("Total deterministic fallback reports by reason"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordGeneration records one completed generation attempt.
//
// Thread Safety: Safe for concurrent use.
func recordGeneration(ctx context.Context, status string, duration time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	generationsTotal.Add(ctx, 1, attrs)
	generationDuration.Record(ctx, duration.Seconds(), attrs)
}

// recordRejection records a model report that failed parsing or validation.
func recordRejection(ctx context.Context, reason string, unknownIDs int) {
	if err := initMetrics(); err != nil {
		return
	}
	rejectionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	if unknownIDs > 0 {
		unknownIDsTotal.Add(ctx, int64(unknownIDs))
	}
}

func recordFallback(ctx context.Context, reason string) {
	if err := initMetrics(); err != nil {
		return
	}
	fallbacksTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
