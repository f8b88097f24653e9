// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/AleutianAI/AleutianInsight/services/insights/datatypes"
)

// ErrFixtureMismatch is returned when a call asks for a dataset the fixture
// does not hold.
var ErrFixtureMismatch = errors.New("fixture does not contain the requested dataset")

// Fixture is a recorded set of collaborator answers plus the request that
// goes with them. It satisfies both collaborator interfaces.
//
// # Example
//
//	{
//	  "request":  {"datasetId": "sales", "recommendationId": "rec-1"},
//	  "profile":  {"datasetId": "sales", "rowCount": 365, "columns": [...]},
//	  "chart":    {"queryHash": "q1", "metricName": "Revenue", "series": [...]},
//	  "scenario": {"baseline": [...], "simulated": [...]}
//	}
type Fixture struct {
	Request        datatypes.DeepInsightRequest `json:"request"`
	DatasetProfile *datatypes.DatasetProfile    `json:"profile"`
	Chart          *datatypes.ChartResult       `json:"chart"`
	ScenarioResult *datatypes.ScenarioResult    `json:"scenario,omitempty"`
}

// LoadFixture reads and decodes a fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture decodes a fixture. A chart is required.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	if f.Chart == nil {
		return nil, errors.New("fixture has no chart")
	}
	if f.DatasetProfile == nil {
		f.DatasetProfile = &datatypes.DatasetProfile{DatasetID: f.Request.DatasetID}
	}
	return &f, nil
}

func (f *Fixture) check(datasetID string) error {
	want := strings.TrimSpace(f.Request.DatasetID)
	if want != "" && strings.TrimSpace(datasetID) != want {
		return fmt.Errorf("%w: %s", ErrFixtureMismatch, datasetID)
	}
	return nil
}

// Profile returns the recorded profile.
func (f *Fixture) Profile(_ context.Context, datasetID string) (*datatypes.DatasetProfile, error) {
	if err := f.check(datasetID); err != nil {
		return nil, err
	}
	return f.DatasetProfile, nil
}

// ExecuteChart returns the recorded chart.
func (f *Fixture) ExecuteChart(_ context.Context, q datatypes.ChartQuery) (*datatypes.ChartResult, error) {
	if err := f.check(q.DatasetID); err != nil {
		return nil, err
	}
	return f.Chart, nil
}

// Simulate returns the recorded scenario result.
func (f *Fixture) Simulate(_ context.Context, q datatypes.ChartQuery, _ datatypes.Scenario) (*datatypes.ScenarioResult, error) {
	if err := f.check(q.DatasetID); err != nil {
		return nil, err
	}
	if f.ScenarioResult == nil {
		return nil, errors.New("fixture has no scenario result")
	}
	return f.ScenarioResult, nil
}
