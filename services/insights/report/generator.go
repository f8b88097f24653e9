// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package report turns an evidence pack into a validated narrative report.
//
// # Description
//
// The Generator issues exactly one structured-generation call per pack,
// parses and normalizes the answer, and accepts it only when every evidence
// id it cites exists in the pack. Anything else (no client, timeout, open
// breaker, transport error, malformed or ungrounded output) resolves to the
// deterministic Fallback report, which is built from pack values alone.
package report

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianInsight/services/insights/datatypes"
	"github.com/AleutianAI/AleutianInsight/services/llm"
)

// DefaultGenerationTimeout bounds one generation call.
const DefaultGenerationTimeout = 45 * time.Second

// Reasons recorded when a model report is not used.
const (
	ReasonNoClient         = "no_client"
	ReasonTimeout          = "timeout"
	ReasonBreakerOpen      = "breaker_open"
	ReasonTransportError   = "transport_error"
	ReasonMalformedOutput  = "malformed_output"
	ReasonInvalidStructure = "invalid_structure"
	ReasonUnknownEvidence  = "unknown_evidence_ids"
)

// Outcome is the result of one generation attempt.
type Outcome struct {
	// Report is always set: either the accepted model report or the fallback.
	Report         *datatypes.DeepInsightReport
	Explainability datatypes.Explainability

	// Result is the raw model answer, nil when no call completed.
	Result *llm.StructuredResult

	// Status is one of datatypes.ValidationOK, ValidationInvalid or
	// ValidationFallback.
	Status string

	// Reason and Err describe why the fallback was used.
	Reason string
	Err    error
}

// FallbackUsed reports whether the outcome carries the fallback report.
func (o Outcome) FallbackUsed() bool {
	return o.Status != datatypes.ValidationOK
}

// Generator drives generation and validation for evidence packs.
type Generator struct {
	client  llm.StructuredClient
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) GeneratorOption {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithTimeout sets the per-call generation timeout.
func WithTimeout(d time.Duration) GeneratorOption {
	return func(g *Generator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithClock sets the time source used for report metadata.
func WithClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGenerator creates a generator. A nil client is allowed: every pack then
// resolves to the fallback report.
func NewGenerator(client llm.StructuredClient, opts ...GeneratorOption) *Generator {
	g := &Generator{
		client:  client,
		logger:  slog.Default(),
		timeout: DefaultGenerationTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate produces the report for a pack.
//
// # Description
//
// Issues one StructuredClient.Generate call bounded by the generator
// timeout. The answer is parsed, normalized and validated against
// pack.Facts. Failures are logged at WARN and resolved to the fallback
// report; they are never returned.
//
// # Inputs
//
//   - ctx: Caller context. Its cancellation aborts the call.
//   - pack: The evidence pack, with facts compiled.
//   - language: Report language; empty means DefaultLanguage.
//
// # Outputs
//
//   - Outcome: The report and how it was produced.
//   - error: Non-nil only when ctx was cancelled by the caller.
func (g *Generator) Generate(ctx context.Context, pack *datatypes.EvidencePack, language string) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "report.Generator.Generate")
	defer span.End()

	if strings.TrimSpace(language) == "" {
		language = DefaultLanguage
	}
	span.SetAttributes(
		attribute.String("insight.dataset_id", pack.DatasetID),
		attribute.Int("insight.fact_count", len(pack.Facts)),
	)

	if g.client == nil {
		return g.fallback(ctx, pack, language, datatypes.ValidationFallback, ReasonNoClient, nil, nil), nil
	}

	prompts := BuildPrompts(pack, language)
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	res, err := g.client.Generate(callCtx, llm.StructuredRequest{
		SystemPrompt: prompts.System,
		UserPrompt:   prompts.User,
		Context:      pack,
	})
	elapsed := time.Since(start)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			span.RecordError(ctxErr)
			span.SetStatus(codes.Error, "cancelled")
			return Outcome{}, ctxErr
		}
		recordGeneration(ctx, datatypes.ValidationFallback, elapsed)
		return g.fallback(ctx, pack, language, datatypes.ValidationFallback, transportReason(callCtx, err), err, nil), nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Outcome{}, ctxErr
	}

	report, reason, err := g.accept(res, pack)
	if err != nil {
		var unknown *UnknownEvidenceError
		unknownCount := 0
		if errors.As(err, &unknown) {
			unknownCount = len(unknown.IDs)
		}
		recordRejection(ctx, reason, unknownCount)
		recordGeneration(ctx, datatypes.ValidationInvalid, elapsed)
		return g.fallback(ctx, pack, language, datatypes.ValidationInvalid, reason, err, res), nil
	}

	report.Meta = datatypes.ReportMeta{
		Provider:        res.Provider,
		Model:           res.Model,
		Language:        language,
		EvidenceVersion: pack.Version,
		GeneratedAt:     g.now().UTC(),
	}
	recordGeneration(ctx, datatypes.ValidationOK, elapsed)
	span.SetAttributes(attribute.String("insight.validation_status", datatypes.ValidationOK))
	return Outcome{
		Report:         report,
		Explainability: Explain(report),
		Result:         res,
		Status:         datatypes.ValidationOK,
	}, nil
}

// accept parses, normalizes and validates a model answer. Evidence ids are
// checked on the unclamped answer too: an unknown id that Normalize would
// drop still rejects the report.
func (g *Generator) accept(res *llm.StructuredResult, pack *datatypes.EvidencePack) (*datatypes.DeepInsightReport, string, error) {
	report, err := Parse(res)
	if err != nil {
		return nil, ReasonMalformedOutput, err
	}
	unclamped := UnknownEvidenceIDs(report, pack.Facts)
	Normalize(report)
	if err := Validate(report, pack.Facts); err != nil {
		if errors.Is(err, ErrInvalidStructure) {
			return nil, ReasonInvalidStructure, err
		}
		return nil, ReasonUnknownEvidence, err
	}
	if len(unclamped) > 0 {
		return nil, ReasonUnknownEvidence, &UnknownEvidenceError{IDs: unclamped}
	}
	GroundCitations(report, pack.Facts)
	return report, "", nil
}

func (g *Generator) fallback(ctx context.Context, pack *datatypes.EvidencePack, language, status, reason string, cause error, res *llm.StructuredResult) Outcome {
	attrs := []any{"dataset_id", pack.DatasetID, "recommendation_id", pack.RecommendationID, "reason", reason}
	if cause != nil {
		attrs = append(attrs, "error", cause)
	}
	if reason == ReasonNoClient {
		g.logger.Debug("No generation client configured, using fallback report", attrs...)
	} else {
		g.logger.Warn("Report generation failed, using fallback report", attrs...)
	}
	recordFallback(ctx, reason)

	report := Fallback(pack, reason, language, g.now())
	return Outcome{
		Report:         report,
		Explainability: Explain(report),
		Result:         res,
		Status:         status,
		Reason:         reason,
		Err:            cause,
	}
}

// transportReason classifies a failed generation call.
func transportReason(callCtx context.Context, err error) string {
	switch {
	case errors.Is(err, llm.ErrBreakerOpen):
		return ReasonBreakerOpen
	case errors.Is(err, context.DeadlineExceeded), errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return ReasonTimeout
	default:
		return ReasonTransportError
	}
}
