// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package insights implements the deep insight request pipeline.
//
// # Description
//
// Service.Generate runs one request in a single synchronous pass:
//
//	validate -> budget gate -> profile and chart lookup -> pack cache
//	-> (miss) scenario simulation and evidence pack build
//	-> one generation and validation, or the fallback report
//	-> cache write -> response
//
// Only the generation call is network bound on the model side; it observes
// the caller context plus the generator timeout.
//
// # Thread Safety
//
// A Service is safe for concurrent use. The cache and the budget gate keep
// per-key critical sections.
package insights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianInsight/services/insights/budget"
	"github.com/AleutianAI/AleutianInsight/services/insights/datatypes"
	"github.com/AleutianAI/AleutianInsight/services/insights/evidence"
	"github.com/AleutianAI/AleutianInsight/services/insights/forecast"
	"github.com/AleutianAI/AleutianInsight/services/insights/observability"
	"github.com/AleutianAI/AleutianInsight/services/insights/report"
	"github.com/AleutianAI/AleutianInsight/services/insights/telemetry"
)

var tracer = otel.Tracer("aleutian.insight.service")

// DefaultEvidenceVersion tags packs built by this service.
const DefaultEvidenceVersion = "v1"

var (
	// ErrInternal marks failures of the pipeline itself, as opposed to
	// collaborator failures which are returned unchanged.
	ErrInternal = errors.New("internal insight error")

	// ErrScenarioUnavailable is returned for a scenario request when no
	// scenario collaborator is configured.
	ErrScenarioUnavailable = errors.New("scenario simulation is not configured")
)

// ChartService is the profiling and chart execution collaborator.
type ChartService interface {
	// Profile returns the schema profile of a dataset.
	Profile(ctx context.Context, datasetID string) (*datatypes.DatasetProfile, error)

	// ExecuteChart renders the recommended chart with the query overrides.
	ExecuteChart(ctx context.Context, q datatypes.ChartQuery) (*datatypes.ChartResult, error)
}

// ScenarioService is the what-if simulation collaborator.
type ScenarioService interface {
	Simulate(ctx context.Context, q datatypes.ChartQuery, s datatypes.Scenario) (*datatypes.ScenarioResult, error)
}

// Options configures a Service.
type Options struct {
	EvidenceVersion string
	DefaultHorizon  int
	MaxHorizon      int

	// Build carries the evidence pack limits. Its clock is overridden by Now.
	Build evidence.BuildOptions

	Logger  *slog.Logger
	Metrics *observability.InsightMetrics
	Now     func() time.Time
}

func (o Options) withDefaults() Options {
	if o.EvidenceVersion == "" {
		o.EvidenceVersion = DefaultEvidenceVersion
	}
	if o.DefaultHorizon <= 0 {
		o.DefaultHorizon = forecast.DefaultHorizon
	}
	if o.MaxHorizon <= 0 {
		o.MaxHorizon = forecast.MaxHorizon
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	o.Build.Now = o.Now
	return o
}

// Dependencies are the collaborators and stores of a Service.
type Dependencies struct {
	// Charts is required.
	Charts ChartService

	// Scenarios may be nil; scenario requests then fail with
	// ErrScenarioUnavailable.
	Scenarios ScenarioService

	// Generator defaults to a generator without a client (fallback only).
	Generator *report.Generator

	// Cache defaults to evidence.NewCache().
	Cache *evidence.Cache

	// Gate defaults to a gate with both checks disabled.
	Gate *budget.Gate
}

// Service is the deep insight pipeline.
type Service struct {
	charts    ChartService
	scenarios ScenarioService
	generator *report.Generator
	cache     *evidence.Cache
	gate      *budget.Gate
	opts      Options
}

// NewService wires a Service.
//
// # Outputs
//
//   - *Service: Ready to serve.
//   - error: Non-nil when deps.Charts is nil.
func NewService(deps Dependencies, opts Options) (*Service, error) {
	if deps.Charts == nil {
		return nil, errors.New("insights: chart service is required")
	}
	opts = opts.withDefaults()
	s := &Service{
		charts:    deps.Charts,
		scenarios: deps.Scenarios,
		generator: deps.Generator,
		cache:     deps.Cache,
		gate:      deps.Gate,
		opts:      opts,
	}
	if s.generator == nil {
		s.generator = report.NewGenerator(nil, report.WithLogger(opts.Logger), report.WithClock(opts.Now))
	}
	if s.cache == nil {
		s.cache = evidence.NewCache(evidence.WithClock(opts.Now))
	}
	if s.gate == nil {
		s.gate = budget.NewGate(budget.Options{Now: opts.Now})
	}
	return s, nil
}

// Cache returns the evidence pack cache.
func (s *Service) Cache() *evidence.Cache {
	return s.cache
}

// Generate answers one deep insight request.
//
// # Description
//
// See the package documentation for the pipeline. Generation and
// validation failures are logged at WARN and answered with the fallback
// report; they are never returned.
//
// # Outputs
//
//   - *datatypes.DeepInsightResponse: The report, metadata, explainability
//     and a copy of the evidence pack.
//   - error: datatypes.ErrInvalidRequest (wrapped), *budget.ExceededError,
//     a collaborator error unchanged, ErrScenarioUnavailable, ErrInternal
//     (wrapped) or the context error when the caller cancelled. Nothing is
//     cached on error.
func (s *Service) Generate(ctx context.Context, req *datatypes.DeepInsightRequest) (*datatypes.DeepInsightResponse, error) {
	start := s.opts.Now()
	requestID := uuid.NewString()

	ctx, span := tracer.Start(ctx, "insights.Service.Generate")
	defer span.End()
	logger := telemetry.RequestLogger(ctx, s.opts.Logger, requestID)
	span.SetAttributes(attribute.String("insight.request_id", requestID))

	resp, outcome, err := s.generate(ctx, req, requestID, logger)
	s.opts.Metrics.RecordRequest(outcome, s.opts.Now().Sub(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(outcome))
		return nil, err
	}
	resp.Meta.DurationMs = s.opts.Now().Sub(start).Milliseconds()
	logger.Info("Deep insight generated",
		"dataset_id", req.DatasetID,
		"recommendation_id", req.RecommendationID,
		"cache_hit", resp.Meta.CacheHit,
		"validation_status", resp.Meta.ValidationStatus,
		"fallback_reason", resp.Meta.FallbackReason,
		"duration_ms", resp.Meta.DurationMs,
	)
	return resp, nil
}

func (s *Service) generate(ctx context.Context, req *datatypes.DeepInsightRequest, requestID string, logger *slog.Logger) (*datatypes.DeepInsightResponse, observability.Outcome, error) {
	if req == nil {
		return nil, observability.OutcomeInvalidRequest, fmt.Errorf("%w: nil request", datatypes.ErrInvalidRequest)
	}
	if err := req.Validate(); err != nil {
		return nil, observability.OutcomeInvalidRequest, err
	}

	query := req.ChartQuery()
	decision := s.gate.Check(query.DatasetID, req.Requester())
	if !decision.Allowed {
		s.opts.Metrics.RecordBudgetRejection(decision.Kind)
		logger.Info("Deep insight request rejected by budget",
			"dataset_id", query.DatasetID, "reason", decision.Reason, "retry_after", decision.RetryAfter)
		return nil, observability.OutcomeBudgetExceeded, decision.Err()
	}

	profile, err := s.charts.Profile(ctx, query.DatasetID)
	if err != nil {
		return nil, upstreamOutcome(ctx), err
	}
	chart, err := s.charts.ExecuteChart(ctx, query)
	if err != nil {
		return nil, upstreamOutcome(ctx), err
	}

	horizon := forecast.ResolveHorizon(req.Horizon, s.opts.DefaultHorizon, s.opts.MaxHorizon)
	key := evidence.CacheKey{
		DatasetID:        query.DatasetID,
		RecommendationID: query.RecommendationID,
		QueryHash:        chart.QueryHash,
		ScenarioHash:     evidence.ScenarioHash(req.Scenario),
		Version:          s.opts.EvidenceVersion,
		Horizon:          horizon,
		Sensitive:        req.SensitiveMode,
	}

	pack, hit := s.cache.Get(key)
	s.opts.Metrics.RecordCacheLookup(hit)
	if !hit {
		var scenario *datatypes.ScenarioResult
		if req.Scenario != nil {
			if s.scenarios == nil {
				return nil, observability.OutcomeUpstreamError, ErrScenarioUnavailable
			}
			scenario, err = s.scenarios.Simulate(ctx, query, *req.Scenario)
			if err != nil {
				return nil, upstreamOutcome(ctx), err
			}
		}

		_, buildSpan := tracer.Start(ctx, "evidence.Build")
		pack, err = evidence.Build(evidence.BuildInput{
			Version:          s.opts.EvidenceVersion,
			DatasetID:        query.DatasetID,
			RecommendationID: query.RecommendationID,
			ScenarioHash:     key.ScenarioHash,
			Horizon:          horizon,
			Sensitive:        req.SensitiveMode,
			Profile:          profile,
			Chart:            chart,
			Scenario:         scenario,
		}, s.opts.Build)
		if err != nil {
			buildSpan.RecordError(err)
			buildSpan.End()
			return nil, observability.OutcomeInternal, fmt.Errorf("%w: build evidence pack: %w", ErrInternal, err)
		}
		buildSpan.SetAttributes(
			attribute.Int("insight.fact_count", len(pack.Facts)),
			attribute.Int("insight.evidence_bytes", pack.SerializedBytes),
			attribute.Bool("insight.truncated", pack.Truncated),
		)
		buildSpan.End()
		s.opts.Metrics.RecordEvidenceBytes(pack.SerializedBytes)
		if pack.RedactedLabels > 0 {
			logger.Info("Redacted sensitive chart labels", "dataset_id", query.DatasetID, "count", pack.RedactedLabels)
		}
	}

	genStart := s.opts.Now()
	out, err := s.generator.Generate(ctx, pack, req.Language)
	if err != nil {
		return nil, observability.OutcomeCancelled, err
	}
	s.opts.Metrics.RecordGeneration(out.Status, out.Reason, s.opts.Now().Sub(genStart))

	if ctx.Err() != nil {
		return nil, observability.OutcomeCancelled, ctx.Err()
	}
	if !hit {
		if err := s.cache.Put(key, pack); err != nil {
			logger.Warn("Failed to cache evidence pack", "dataset_id", query.DatasetID, "error", err)
		}
	}

	outputBytes := 0
	if data, err := json.Marshal(out.Report); err == nil {
		outputBytes = len(data)
	}
	meta := datatypes.ResponseMeta{
		RequestID:        requestID,
		Provider:         out.Report.Meta.Provider,
		Model:            out.Report.Meta.Model,
		CacheHit:         hit,
		ProviderCacheHit: out.Result != nil && out.Result.CacheHit,
		FallbackUsed:     out.FallbackUsed(),
		FallbackReason:   out.Reason,
		EvidenceBytes:    pack.SerializedBytes,
		OutputBytes:      outputBytes,
		ValidationStatus: out.Status,
	}

	outcome := observability.OutcomeOK
	if out.FallbackUsed() {
		outcome = observability.OutcomeFallback
	}
	return &datatypes.DeepInsightResponse{
		Report:         *out.Report,
		Meta:           meta,
		Explainability: out.Explainability,
		EvidencePack:   *pack,
	}, outcome, nil
}

// upstreamOutcome distinguishes a caller that went away from a failing
// collaborator.
func upstreamOutcome(ctx context.Context) observability.Outcome {
	if ctx.Err() != nil {
		return observability.OutcomeCancelled
	}
	return observability.OutcomeUpstreamError
}
