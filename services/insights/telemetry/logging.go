// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// RequestLogger scopes base to one insight request.
//
// # Description
//
// Adds request_id when requestID is non-empty, and trace_id and span_id when
// ctx carries a valid span, so log lines join the trace in the collector. A
// nil base means slog.Default().
func RequestLogger(ctx context.Context, base *slog.Logger, requestID string) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	var attrs []any
	if requestID != "" {
		attrs = append(attrs, slog.String("request_id", requestID))
	}
	if ctx != nil {
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			attrs = append(attrs,
				slog.String("trace_id", sc.TraceID().String()),
				slog.String("span_id", sc.SpanID().String()))
		}
	}
	if len(attrs) == 0 {
		return base
	}
	return base.With(attrs...)
}

// InjectContext writes the trace context of ctx into the headers of an
// outgoing collaborator call.
func InjectContext(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
