// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianInsight/services/insights/config"
	"github.com/AleutianAI/AleutianInsight/services/insights/datatypes"
	"github.com/AleutianAI/AleutianInsight/services/insights/telemetry"
	"github.com/AleutianAI/AleutianInsight/services/insights/upstream"
	"github.com/AleutianAI/AleutianInsight/services/llm"
)

func testFixture(t *testing.T) *upstream.Fixture {
	t.Helper()
	var data strings.Builder
	for i := 0; i < 30; i++ {
		if i > 0 {
			data.WriteString(",")
		}
		d := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
		fmt.Fprintf(&data, `[%q, %d]`, d.Format("2006-01-02"), 200+5*i)
	}
	body := fmt.Sprintf(`{
	  "request": {"datasetId": "sales", "recommendationId": "rec-1"},
	  "profile": {"datasetId": "sales", "rowCount": 30, "columns": [{"name": "revenue", "nullRate": 0, "distinctCount": 30}]},
	  "chart": {"queryHash": "q1", "metricName": "Revenue", "series": [{"name": "revenue", "data": [%s]}]}
	}`, data.String())
	f, err := upstream.ParseFixture([]byte(body))
	require.NoError(t, err)
	return f
}

func testConfig() config.Config {
	return config.Config{
		Server:    config.ServerConfig{GinMode: "test"},
		Budget:    config.BudgetConfig{MaxRequestsPerMinute: 100, Cooldown: time.Millisecond},
		Telemetry: telemetry.Config{TraceExporter: telemetry.ExporterNone, MetricExporter: telemetry.ExporterPrometheus},
	}
}

type brokenLLM struct{}

func (brokenLLM) Generate(context.Context, llm.StructuredRequest) (*llm.StructuredResult, error) {
	return nil, errors.New("backend down")
}

func postDeep(t *testing.T, srv Service, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/insights/deep", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestNew_EndToEndFallback(t *testing.T) {
	f := testFixture(t)
	srv, err := New(context.Background(), testConfig(), &Options{Charts: f, Registry: prometheus.NewRegistry()})
	require.NoError(t, err)

	w := postDeep(t, srv, `{"datasetId": "sales", "recommendationId": "rec-1"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp datatypes.DeepInsightResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, datatypes.ValidationFallback, resp.Meta.ValidationStatus)
	assert.True(t, resp.Meta.FallbackUsed)
	assert.NotEmpty(t, resp.Report.Headline)
	assert.NotEmpty(t, resp.EvidencePack.Facts)

	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "aleutian_insight_requests_total")

	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"llm_backend":"none"`)
	assert.NotContains(t, w.Body.String(), "llm_breaker")

	assert.Equal(t, 1, srv.Insights().Cache().Len())
}

func TestNew_BreakerWrapsClient(t *testing.T) {
	f := testFixture(t)
	srv, err := New(context.Background(), testConfig(), &Options{Charts: f, LLMClient: brokenLLM{}, Registry: prometheus.NewRegistry()})
	require.NoError(t, err)

	w := postDeep(t, srv, `{"datasetId": "sales", "recommendationId": "rec-1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var resp datatypes.DeepInsightResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "transport_error", resp.Meta.FallbackReason)

	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Contains(t, w.Body.String(), `"llm_breaker":"closed"`)
}

func TestNew_ScenarioWithoutCollaborator(t *testing.T) {
	srv, err := New(context.Background(), testConfig(), &Options{Charts: testFixture(t), Registry: prometheus.NewRegistry()})
	require.NoError(t, err)

	w := postDeep(t, srv, `{"datasetId": "sales", "recommendationId": "rec-1",
		"scenario": {"operations": [{"type": "scale", "column": "revenue", "factor": 1.1}]}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestNew_Errors(t *testing.T) {
	_, err := New(context.Background(), testConfig(), &Options{Registry: prometheus.NewRegistry()})
	assert.ErrorIs(t, err, ErrNoChartService)

	cfg := testConfig()
	cfg.LLM.Backend = "gemini"
	_, err = New(context.Background(), cfg, &Options{Charts: testFixture(t), Registry: prometheus.NewRegistry()})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	cfg = testConfig()
	cfg.Telemetry.TraceExporter = "zipkin"
	_, err = New(context.Background(), cfg, &Options{Charts: testFixture(t), Registry: prometheus.NewRegistry()})
	assert.ErrorIs(t, err, telemetry.ErrUnknownExporter)
}

func TestNew_HTTPCollaborators(t *testing.T) {
	cfg := testConfig()
	cfg.Upstream.ChartServiceURL = "http://charts.internal:8080"
	cfg.Upstream.ScenarioServiceURL = "http://scenarios.internal:8080"

	srv, err := New(context.Background(), cfg, &Options{Registry: prometheus.NewRegistry()})
	require.NoError(t, err)
	s := srv.(*service)
	assert.IsType(t, &upstream.HTTPCharts{}, s.charts)
	assert.IsType(t, &upstream.HTTPScenarios{}, s.scenarios)
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestRun_GracefulShutdown(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Port = freePort(t)
	srv, err := New(context.Background(), cfg, &Options{Charts: testFixture(t), Registry: prometheus.NewRegistry()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
