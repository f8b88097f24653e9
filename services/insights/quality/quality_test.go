// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package quality

import (
	"testing"
	"time"

	"github.com/AleutianAI/AleutianInsight/services/insights/datatypes"
	"github.com/stretchr/testify/assert"
)

func TestScore(t *testing.T) {
	d1 := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	profile := &datatypes.DatasetProfile{
		DatasetID: "ds",
		RowCount:  100,
		Columns: []datatypes.ColumnProfile{
			{Name: "date", NullRate: 0, DistinctCount: 60},
			{Name: "region", NullRate: 0.3, DistinctCount: 4},
			{Name: "revenue", NullRate: 0.15, DistinctCount: 80},
		},
	}
	points := []datatypes.SeriesPoint{
		{XLabel: "2024-02-01", Y: 5, Date: &d1},
		{XLabel: "2024-01-15", Y: -2, Date: &d2},
		{XLabel: "2024-13-45", Y: 1, LooksLikeDate: true},
	}

	q := Score(profile, points, &datatypes.DistributionStats{SkewnessProxy: -1.5})

	assert.Equal(t, 100, q.RowCount)
	assert.Equal(t, 3, q.ColumnCount)
	assert.Equal(t, 3, q.PointCount)
	assert.InDelta(t, 0.15, q.AvgNullRate, 1e-12)
	assert.Equal(t, 0.3, q.MaxNullRate)
	assert.Equal(t, "region", q.WorstNullColumn)
	assert.InDelta(t, 0.2, q.DuplicateRateEstimate, 1e-12)
	assert.Equal(t, "2024-01-15..2024-02-01", q.TimeCoverage)
	assert.Equal(t, 1, q.UnparsedDateCount)
	assert.Equal(t, 1, q.NegativeValueCount)
	assert.True(t, q.ExtremeSkew)
}

func TestScore_NoProfile(t *testing.T) {
	q := Score(nil, []datatypes.SeriesPoint{{Y: 1}, {Y: 2}}, &datatypes.DistributionStats{SkewnessProxy: 0.4})
	assert.Equal(t, 2, q.PointCount)
	assert.Zero(t, q.RowCount)
	assert.Empty(t, q.TimeCoverage)
	assert.Empty(t, q.WorstNullColumn)
	assert.False(t, q.ExtremeSkew)
}

func TestScore_DuplicateRateNeverNegative(t *testing.T) {
	profile := &datatypes.DatasetProfile{
		RowCount: 10,
		Columns:  []datatypes.ColumnProfile{{Name: "id", DistinctCount: 12}},
	}
	assert.Equal(t, 0.0, Score(profile, nil, nil).DuplicateRateEstimate)
}
