// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package upstream holds the collaborator adapters of the insight service.
//
// # Description
//
// HTTPCharts and HTTPScenarios call the dataset profiling, chart execution
// and scenario simulation services over JSON/HTTP. Fixture serves the same
// interfaces from a JSON file for offline runs.
//
// # Endpoints
//
//   - GET  {charts}/v1/datasets/{datasetId}/profile
//   - POST {charts}/v1/charts/execute       body: datatypes.ChartQuery
//   - POST {scenarios}/v1/scenarios/simulate body: SimulateRequest
//
// Non-2xx responses become *StatusError. The trace context of the caller is
// propagated on every request.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianInsight/services/insights/datatypes"
	"github.com/AleutianAI/AleutianInsight/services/insights/telemetry"
)

// DefaultTimeout bounds one collaborator call.
const DefaultTimeout = 15 * time.Second

// maxErrorBody caps how much of an error body is kept.
const maxErrorBody = 512

// ErrNoBaseURL is returned by the constructors for an empty base URL.
var ErrNoBaseURL = errors.New("upstream base URL is required")

// StatusError is a non-2xx collaborator response.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.StatusCode, e.Body)
}

// NotFound reports a 404 from the collaborator.
func (e *StatusError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// Config configures an HTTP adapter.
type Config struct {
	BaseURL string

	// Timeout bounds each call. Default: DefaultTimeout
	Timeout time.Duration

	// HTTPClient overrides the transport.
	HTTPClient *http.Client
}

type jsonClient struct {
	service string
	baseURL string
	http    *http.Client
}

func newJSONClient(service string, cfg Config) (*jsonClient, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("%s: %w", service, ErrNoBaseURL)
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("%s: invalid base URL %q: %w", service, base, err)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &jsonClient{service: service, baseURL: base, http: hc}, nil
}

// do sends body (when non-nil) as JSON and decodes the response into out.
func (c *jsonClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", c.service, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", c.service, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	telemetry.InjectContext(ctx, req.Header)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", c.service, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", c.service, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(respBody))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return &StatusError{Service: c.service, StatusCode: resp.StatusCode, Body: msg}
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", c.service, err)
	}
	return nil
}

// HTTPCharts implements the chart collaborator over HTTP.
type HTTPCharts struct {
	c *jsonClient
}

// NewHTTPCharts creates a chart adapter for cfg.BaseURL.
func NewHTTPCharts(cfg Config) (*HTTPCharts, error) {
	c, err := newJSONClient("chart service", cfg)
	if err != nil {
		return nil, err
	}
	return &HTTPCharts{c: c}, nil
}

// Profile fetches the dataset profile.
func (h *HTTPCharts) Profile(ctx context.Context, datasetID string) (*datatypes.DatasetProfile, error) {
	var out datatypes.DatasetProfile
	path := "/v1/datasets/" + url.PathEscape(datasetID) + "/profile"
	if err := h.c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out.DatasetID == "" {
		out.DatasetID = datasetID
	}
	return &out, nil
}

// ExecuteChart renders the recommended chart.
func (h *HTTPCharts) ExecuteChart(ctx context.Context, q datatypes.ChartQuery) (*datatypes.ChartResult, error) {
	var out datatypes.ChartResult
	if err := h.c.do(ctx, http.MethodPost, "/v1/charts/execute", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SimulateRequest is the body of a simulation call.
type SimulateRequest struct {
	Query    datatypes.ChartQuery `json:"query"`
	Scenario datatypes.Scenario   `json:"scenario"`
}

// HTTPScenarios implements the scenario collaborator over HTTP.
type HTTPScenarios struct {
	c *jsonClient
}

// NewHTTPScenarios creates a scenario adapter for cfg.BaseURL.
func NewHTTPScenarios(cfg Config) (*HTTPScenarios, error) {
	c, err := newJSONClient("scenario service", cfg)
	if err != nil {
		return nil, err
	}
	return &HTTPScenarios{c: c}, nil
}

// Simulate runs a what-if scenario against the chart query.
func (h *HTTPScenarios) Simulate(ctx context.Context, q datatypes.ChartQuery, s datatypes.Scenario) (*datatypes.ScenarioResult, error) {
	var out datatypes.ScenarioResult
	if err := h.c.do(ctx, http.MethodPost, "/v1/scenarios/simulate", SimulateRequest{Query: q, Scenario: s}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
