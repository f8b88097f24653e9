// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for the insight handlers

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianInsight/services/insights"
	"github.com/AleutianAI/AleutianInsight/services/insights/budget"
	"github.com/AleutianAI/AleutianInsight/services/insights/datatypes"
	"github.com/AleutianAI/AleutianInsight/services/insights/evidence"
	"github.com/AleutianAI/AleutianInsight/services/insights/upstream"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeGenerator struct {
	got  *datatypes.DeepInsightRequest
	resp *datatypes.DeepInsightResponse
	err  error
}

func (f *fakeGenerator) Generate(_ context.Context, req *datatypes.DeepInsightRequest) (*datatypes.DeepInsightResponse, error) {
	f.got = req
	return f.resp, f.err
}

func newRouter(gen InsightGenerator) *gin.Engine {
	r := gin.New()
	r.POST("/v1/insights/deep", HandleDeepInsight(gen))
	return r
}

func post(r *gin.Engine, body string, header map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/insights/deep", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

// =============================================================================
// HandleDeepInsight Tests
// =============================================================================

func TestHandleDeepInsight_OK(t *testing.T) {
	gen := &fakeGenerator{resp: &datatypes.DeepInsightResponse{
		Report: datatypes.DeepInsightReport{Headline: "Revenue is rising"},
		Meta:   datatypes.ResponseMeta{RequestID: "req-1", ValidationStatus: datatypes.ValidationOK},
	}}
	w := post(newRouter(gen), `{"datasetId": "sales", "recommendationId": "rec-1", "horizon": 14}`, nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp datatypes.DeepInsightResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Revenue is rising", resp.Report.Headline)
	assert.Equal(t, "req-1", resp.Meta.RequestID)

	require.NotNil(t, gen.got)
	assert.Equal(t, "sales", gen.got.DatasetID)
	require.NotNil(t, gen.got.Horizon)
	assert.Equal(t, 14, *gen.got.Horizon)
}

func TestHandleDeepInsight_RequesterHeader(t *testing.T) {
	gen := &fakeGenerator{resp: &datatypes.DeepInsightResponse{}}
	r := newRouter(gen)

	post(r, `{"datasetId": "d", "recommendationId": "r"}`, map[string]string{RequesterHeader: "team-a"})
	assert.Equal(t, "team-a", gen.got.RequesterKey)

	post(r, `{"datasetId": "d", "recommendationId": "r", "requesterKey": "body"}`, map[string]string{RequesterHeader: "team-a"})
	assert.Equal(t, "body", gen.got.RequesterKey)
}

func TestHandleDeepInsight_MalformedBody(t *testing.T) {
	gen := &fakeGenerator{}
	w := post(newRouter(gen), `{"datasetId":`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), CodeInvalidRequest)
	assert.Nil(t, gen.got)
}

func TestHandleDeepInsight_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid", fmt.Errorf("%w: datasetId required", datatypes.ErrInvalidRequest), http.StatusBadRequest, CodeInvalidRequest},
		{"budget", &budget.ExceededError{Kind: budget.KindRateLimit, Reason: "2 requests per minute", RetryAfter: 1500 * time.Millisecond}, http.StatusTooManyRequests, CodeBudgetExceeded},
		{"scenario", insights.ErrScenarioUnavailable, http.StatusUnprocessableEntity, CodeScenarioUnavailable},
		{"cancelled", context.Canceled, StatusClientClosedRequest, CodeCancelled},
		{"deadline", fmt.Errorf("chart service: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, CodeTimeout},
		{"internal", fmt.Errorf("%w: build evidence pack: boom", insights.ErrInternal), http.StatusInternalServerError, CodeInternal},
		{"not found", &upstream.StatusError{Service: "chart service", StatusCode: 404, Body: "no such dataset"}, http.StatusNotFound, CodeNotFound},
		{"upstream 500", &upstream.StatusError{Service: "chart service", StatusCode: 500, Body: "boom"}, http.StatusBadGateway, CodeUpstreamError},
		{"other", errors.New("connection refused"), http.StatusBadGateway, CodeUpstreamError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(newRouter(&fakeGenerator{err: tt.err}), `{"datasetId": "d", "recommendationId": "r"}`, nil)
			assert.Equal(t, tt.status, w.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body["code"])
		})
	}
}

func TestHandleDeepInsight_RetryAfter(t *testing.T) {
	err := &budget.ExceededError{Kind: budget.KindCooldown, Reason: "cooldown", RetryAfter: 1500 * time.Millisecond}
	w := post(newRouter(&fakeGenerator{err: err}), `{"datasetId": "d", "recommendationId": "r"}`, nil)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, budget.KindCooldown, body["kind"])
	assert.Equal(t, float64(2), body["retryAfterSeconds"])
}

// =============================================================================
// HandleHealth Tests
// =============================================================================

type stubBreaker string

func (s stubBreaker) State() string { return string(s) }

func TestHandleHealth(t *testing.T) {
	cache := evidence.NewCache()
	r := gin.New()
	r.GET("/health", HandleHealth(HealthInfo{LLMBackend: "openai", Cache: cache, Breaker: stubBreaker("closed")}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "openai", body["llm_backend"])
	assert.Equal(t, "closed", body["llm_breaker"])
	assert.Contains(t, body, "cache")
}

func TestHandleHealth_NoBackend(t *testing.T) {
	r := gin.New()
	r.GET("/health", HandleHealth(HealthInfo{LLMBackend: "none"}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotContains(t, body, "llm_breaker")
	assert.NotContains(t, body, "cache")
}
