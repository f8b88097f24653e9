// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianInsight/services/insights"
	"github.com/AleutianAI/AleutianInsight/services/insights/budget"
	"github.com/AleutianAI/AleutianInsight/services/insights/datatypes"
	"github.com/AleutianAI/AleutianInsight/services/insights/telemetry"
	"github.com/AleutianAI/AleutianInsight/services/insights/upstream"
)

// RequesterHeader carries the requester key when the body has none.
const RequesterHeader = "X-Requester-Key"

// StatusClientClosedRequest is the non-standard status logged when the
// caller went away before the response was ready.
const StatusClientClosedRequest = 499

// Error codes returned in the "code" field of error bodies.
const (
	CodeInvalidRequest      = "invalid_request"
	CodeBudgetExceeded      = "budget_exceeded"
	CodeScenarioUnavailable = "scenario_unavailable"
	CodeNotFound            = "not_found"
	CodeUpstreamError       = "upstream_error"
	CodeTimeout             = "timeout"
	CodeCancelled           = "cancelled"
	CodeInternal            = "internal_error"
)

// InsightGenerator is the pipeline behind the deep insight endpoint.
type InsightGenerator interface {
	Generate(ctx context.Context, req *datatypes.DeepInsightRequest) (*datatypes.DeepInsightResponse, error)
}

// HandleDeepInsight serves POST /v1/insights/deep.
//
// # Description
//
// Binds the JSON body, fills the requester key from RequesterHeader when the
// body has none and runs the pipeline. A generation failure never surfaces
// here: it is resolved inside the pipeline by the deterministic report.
//
// # Responses
//
//   - 200: datatypes.DeepInsightResponse
//   - 400: malformed body or failed validation
//   - 404: the dataset or recommendation does not exist upstream
//   - 422: a scenario was requested but simulation is not configured
//   - 429: budget exceeded, with Retry-After
//   - 499/504: caller cancelled or deadline exceeded
//   - 500: internal pipeline failure
//   - 502: chart or scenario collaborator failure
func HandleDeepInsight(gen InsightGenerator) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		logger := telemetry.RequestLogger(ctx, slog.Default(), "")

		var req datatypes.DeepInsightRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			logger.Warn("Invalid deep insight request body", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "code": CodeInvalidRequest})
			return
		}
		if strings.TrimSpace(req.RequesterKey) == "" {
			req.RequesterKey = strings.TrimSpace(c.GetHeader(RequesterHeader))
		}

		resp, err := gen.Generate(ctx, &req)
		if err != nil {
			status, body := errorResponse(err)
			var ee *budget.ExceededError
			if errors.As(err, &ee) {
				c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(ee)))
			}
			if status >= http.StatusInternalServerError {
				logger.Error("Deep insight request failed", "status", status, "error", err)
			} else {
				logger.Info("Deep insight request rejected", "status", status, "error", err)
			}
			c.JSON(status, body)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// errorResponse maps a pipeline error to a status and body.
func errorResponse(err error) (int, gin.H) {
	var exceeded *budget.ExceededError
	var upstreamErr *upstream.StatusError

	switch {
	case errors.Is(err, datatypes.ErrInvalidRequest):
		return http.StatusBadRequest, gin.H{"error": err.Error(), "code": CodeInvalidRequest}
	case errors.As(err, &exceeded):
		return http.StatusTooManyRequests, gin.H{
			"error":             exceeded.Error(),
			"code":              CodeBudgetExceeded,
			"kind":              exceeded.Kind,
			"retryAfterSeconds": retryAfterSeconds(exceeded),
		}
	case errors.Is(err, insights.ErrScenarioUnavailable):
		return http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "code": CodeScenarioUnavailable}
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest, gin.H{"error": "request cancelled", "code": CodeCancelled}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, gin.H{"error": "request timed out", "code": CodeTimeout}
	case errors.Is(err, insights.ErrInternal):
		return http.StatusInternalServerError, gin.H{"error": "internal error", "code": CodeInternal}
	case errors.As(err, &upstreamErr) && upstreamErr.NotFound():
		return http.StatusNotFound, gin.H{"error": upstreamErr.Body, "code": CodeNotFound}
	default:
		return http.StatusBadGateway, gin.H{"error": err.Error(), "code": CodeUpstreamError}
	}
}

func retryAfterSeconds(e *budget.ExceededError) int {
	secs := int(math.Ceil(e.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
