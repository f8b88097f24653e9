// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestDeepInsightRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     DeepInsightRequest
		wantErr bool
	}{
		{"minimal", DeepInsightRequest{DatasetID: "ds1", RecommendationID: "rec1"}, false},
		{"missing dataset", DeepInsightRequest{RecommendationID: "rec1"}, true},
		{"blank recommendation", DeepInsightRequest{DatasetID: "ds1", RecommendationID: "   "}, true},
		{"bad aggregation", DeepInsightRequest{DatasetID: "ds1", RecommendationID: "r", Aggregation: "median"}, true},
		{"zero horizon is clamped later", DeepInsightRequest{DatasetID: "ds1", RecommendationID: "r", Horizon: intPtr(0)}, false},
		{"negative horizon is clamped later", DeepInsightRequest{DatasetID: "ds1", RecommendationID: "r", Horizon: intPtr(-3)}, false},
		{"large horizon is clamped later", DeepInsightRequest{DatasetID: "ds1", RecommendationID: "r", Horizon: intPtr(5000)}, false},
		{"filter without column", DeepInsightRequest{
			DatasetID: "ds1", RecommendationID: "r",
			Filters: []Filter{{Operator: "eq"}},
		}, true},
		{"empty scenario operations", DeepInsightRequest{
			DatasetID: "ds1", RecommendationID: "r",
			Scenario: &Scenario{},
		}, true},
		{"valid scenario", DeepInsightRequest{
			DatasetID: "ds1", RecommendationID: "r",
			Scenario: &Scenario{Operations: []ScenarioOperation{{Type: "multiply", Column: "price"}}},
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidRequest))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestDeepInsightRequest_Requester(t *testing.T) {
	assert.Equal(t, DefaultRequesterKey, (&DeepInsightRequest{}).Requester())
	assert.Equal(t, DefaultRequesterKey, (&DeepInsightRequest{RequesterKey: "  "}).Requester())
	assert.Equal(t, "alice", (&DeepInsightRequest{RequesterKey: " alice "}).Requester())
}

func TestEvidencePack_CloneIsIndependent(t *testing.T) {
	pack := &EvidencePack{
		DatasetID:    "ds1",
		Distribution: &DistributionStats{Metric: "revenue", Mean: 3},
		Segments:     []SegmentBreakdown{{Label: "north", SharePct: 60}},
		Facts:        []EvidenceFact{{EvidenceID: "DQ_ROW_COUNT", ShortClaim: "rows", Value: "10"}},
	}

	clone, err := pack.Clone()
	require.NoError(t, err)
	assert.Equal(t, pack.Facts, clone.Facts)

	clone.Distribution.Mean = 99
	clone.Segments[0].Label = "changed"
	clone.Facts[0].Value = "11"

	assert.Equal(t, 3.0, pack.Distribution.Mean)
	assert.Equal(t, "north", pack.Segments[0].Label)
	assert.Equal(t, "10", pack.Facts[0].Value)
}

func TestDeepInsightReport_EvidenceIDs(t *testing.T) {
	r := &DeepInsightReport{
		KeyFindings:        []KeyFinding{{EvidenceIDs: []string{"A", "B"}}},
		Drivers:            []Driver{{EvidenceIDs: []string{"C"}}},
		RisksAndCaveats:    []Risk{{EvidenceIDs: []string{"A"}}},
		Projections:        Projections{Methods: []ProjectionNarrative{{EvidenceIDs: []string{"D"}}}},
		RecommendedActions: []Action{{EvidenceIDs: []string{"E"}}},
		Citations:          []Citation{{EvidenceID: "F"}},
	}
	assert.Equal(t, []string{"A", "B", "C", "A", "D", "E", "F"}, r.EvidenceIDs())
}

func TestForecastPack_Method(t *testing.T) {
	f := ForecastPack{Methods: []ForecastMethod{{Method: MethodNaive, RMSE: 1}}}
	m, ok := f.Method(MethodNaive)
	require.True(t, ok)
	assert.Equal(t, 1.0, m.RMSE)
	_, ok = f.Method(MethodLinearRegression)
	assert.False(t, ok)
}
