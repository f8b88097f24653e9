// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianInsight/services/insights/datatypes"
)

func TestNewHTTPCharts_Validation(t *testing.T) {
	_, err := NewHTTPCharts(Config{})
	assert.ErrorIs(t, err, ErrNoBaseURL)

	_, err = NewHTTPCharts(Config{BaseURL: "not a url"})
	assert.Error(t, err)

	c, err := NewHTTPCharts(Config{BaseURL: "http://charts:8080/"})
	require.NoError(t, err)
	assert.Equal(t, "http://charts:8080", c.c.baseURL)
}

func TestHTTPCharts_Profile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/datasets/sales%2F2024/profile", r.URL.EscapedPath())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"rowCount": 365, "columns": [{"name": "revenue", "nullRate": 0.1, "distinctCount": 300}]}`))
	}))
	defer srv.Close()

	c, err := NewHTTPCharts(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	p, err := c.Profile(context.Background(), "sales/2024")
	require.NoError(t, err)
	assert.Equal(t, "sales/2024", p.DatasetID)
	assert.Equal(t, 365, p.RowCount)
	require.Len(t, p.Columns, 1)
	assert.InDelta(t, 0.1, p.Columns[0].NullRate, 1e-9)
}

func TestHTTPCharts_ExecuteChart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/charts/execute", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var q datatypes.ChartQuery
		require.NoError(t, json.NewDecoder(r.Body).Decode(&q))
		assert.Equal(t, "sales", q.DatasetID)
		assert.Equal(t, "rec-1", q.RecommendationID)
		assert.Equal(t, "week", q.TimeBin)

		_, _ = w.Write([]byte(`{"queryHash": "abc", "metricName": "Revenue", "series": [{"name": "Total", "data": [[1, 2], {"x": "a", "y": 3}]}]}`))
	}))
	defer srv.Close()

	c, err := NewHTTPCharts(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	res, err := c.ExecuteChart(context.Background(), datatypes.ChartQuery{DatasetID: "sales", RecommendationID: "rec-1", TimeBin: "week"})
	require.NoError(t, err)
	assert.Equal(t, "abc", res.QueryHash)
	assert.Equal(t, "Revenue", res.MetricName)
	require.Len(t, res.Series, 1)
	assert.Len(t, res.Series[0].Data, 2)
}

func TestHTTPCharts_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "dataset not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := NewHTTPCharts(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Profile(context.Background(), "missing")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.True(t, se.NotFound())
	assert.Equal(t, "chart service returned status 404: dataset not found", se.Error())
}

func TestHTTPCharts_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	c, err := NewHTTPCharts(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.ExecuteChart(context.Background(), datatypes.ChartQuery{DatasetID: "d"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestHTTPCharts_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c, err := NewHTTPCharts(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Profile(ctx, "d")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHTTPScenarios_Simulate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/scenarios/simulate", r.URL.Path)
		var body SimulateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "sales", body.Query.DatasetID)
		require.Len(t, body.Scenario.Operations, 1)
		assert.Equal(t, "scale", body.Scenario.Operations[0].Type)

		_, _ = w.Write([]byte(`{"baseline": [{"label": "a", "value": 1}], "simulated": [{"label": "a", "value": 2}]}`))
	}))
	defer srv.Close()

	s, err := NewHTTPScenarios(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	factor := 1.1
	res, err := s.Simulate(context.Background(),
		datatypes.ChartQuery{DatasetID: "sales"},
		datatypes.Scenario{Operations: []datatypes.ScenarioOperation{{Type: "scale", Column: "price", Factor: &factor}}})
	require.NoError(t, err)
	require.Len(t, res.Simulated, 1)
	assert.Equal(t, 2.0, res.Simulated[0].Value)
}

const fixtureJSON = `{
  "request": {"datasetId": "sales", "recommendationId": "rec-1"},
  "chart": {"queryHash": "q1", "metricName": "Revenue", "series": [{"name": "Total", "data": [[0, 1], [1, 2]]}]},
  "scenario": {"baseline": [{"label": "a", "value": 1}], "simulated": [{"label": "a", "value": 3}]}
}`

func TestFixture(t *testing.T) {
	f, err := ParseFixture([]byte(fixtureJSON))
	require.NoError(t, err)

	ctx := context.Background()
	p, err := f.Profile(ctx, "sales")
	require.NoError(t, err)
	assert.Equal(t, "sales", p.DatasetID)

	chart, err := f.ExecuteChart(ctx, f.Request.ChartQuery())
	require.NoError(t, err)
	assert.Equal(t, "q1", chart.QueryHash)

	sim, err := f.Simulate(ctx, f.Request.ChartQuery(), datatypes.Scenario{})
	require.NoError(t, err)
	assert.Equal(t, 3.0, sim.Simulated[0].Value)

	_, err = f.Profile(ctx, "other")
	assert.ErrorIs(t, err, ErrFixtureMismatch)
}

func TestParseFixture_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"malformed", `{`},
		{"no chart", `{"request": {"datasetId": "d"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFixture([]byte(tt.input))
			assert.Error(t, err)
		})
	}

	f, err := ParseFixture([]byte(`{"chart": {"queryHash": "q"}}`))
	require.NoError(t, err)
	_, err = f.Simulate(context.Background(), datatypes.ChartQuery{}, datatypes.Scenario{})
	assert.Error(t, err)
}
