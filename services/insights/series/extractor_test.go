// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package series

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianInsight/services/insights/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawSeries(name string, items ...string) datatypes.ChartSeries {
	data := make([]json.RawMessage, len(items))
	for i, it := range items {
		data[i] = json.RawMessage(it)
	}
	return datatypes.ChartSeries{Name: name, Data: data}
}

// =============================================================================
// Shape Matching Tests
// =============================================================================

func TestExtract_PointShapes(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantY     float64
		wantLabel string
		wantDate  bool
	}{
		{"pair with iso date", `["2024-03-01", 12.5]`, 12.5, "2024-03-01", true},
		{"pair with numeric string y", `["north", "7"]`, 7, "north", false},
		{"list takes last numeric after x", `["q1", null, 4, 9]`, 9, "q1", false},
		{"list skips trailing non-numeric", `["q2", 4, 9, "n/a", null]`, 9, "q2", false},
		{"three element list", `["2024-03-01", 2, 11]`, 11, "2024-03-01", true},
		{"keyed date/value", `{"date": "2024-01-15", "value": 3}`, 3, "2024-01-15", true},
		{"keyed label/count", `{"label": "web", "count": 42}`, 42, "web", false},
		{"keyed uppercase keys", `{"Category": "retail", "Total": 5}`, 5, "retail", false},
		{"value array", `{"value": ["2024-02-01", 8]}`, 8, "2024-02-01", true},
		{"epoch millis", `[1704067200000, 1]`, 1, "2024-01-01", true},
		{"epoch seconds", `[1704067200, 2]`, 2, "2024-01-01", true},
		{"bare scalar", `17`, 17, "#0", false},
		{"bare numeric string", `"3.5"`, 3.5, "#0", false},
		{"small numeric x is a label", `[2024, 5]`, 5, "2024", false},
		{"locale date", `["03/15/2024", 6]`, 6, "2024-03-15", true},
		{"day-first slash date", `["13/01/2024", 6]`, 6, "2024-01-13", true},
		{"day-first slash date end of year", `["31/12/2024", 6]`, 6, "2024-12-31", true},
		{"short day-first slash date", `["25/1/2024", 6]`, 6, "2024-01-25", true},
		{"ambiguous slash date is month-first", `["05/03/2024", 6]`, 6, "2024-05-03", true},
		{"month name date", `["Mar 5, 2024", 6]`, 6, "2024-03-05", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			points := Extract([]datatypes.ChartSeries{rawSeries("s", tt.raw)}, 100)
			require.Len(t, points, 1)
			p := points[0]
			assert.Equal(t, tt.wantY, p.Y)
			assert.Equal(t, tt.wantLabel, p.XLabel)
			assert.Equal(t, tt.wantDate, p.HasDate())
			assert.Equal(t, "s", p.Series)
		})
	}
}

func TestExtract_SkipsUnusablePoints(t *testing.T) {
	chart := []datatypes.ChartSeries{rawSeries("s",
		`{"label": "no value"}`,
		`"not a number"`,
		`[1]`,
		`true`,
		`{"x": "a", "y": "NaN"}`,
		`{"x": "b", "y": "Inf"}`,
		`not json`,
		`["ok", 1]`,
	)}

	points := Extract(chart, 0)
	require.Len(t, points, 1)
	assert.Equal(t, "ok", points[0].XLabel)
	assert.Equal(t, 0, points[0].Index)
}

func TestExtract_UnparsedDateLikeValues(t *testing.T) {
	points := Extract([]datatypes.ChartSeries{rawSeries("s",
		`["2024-13-45", 1]`,
		`["Foo 2024 Smarch", 1]`,
		`["region-a", 1]`,
	)}, 0)

	require.Len(t, points, 3)
	assert.True(t, points[0].LooksLikeDate)
	assert.Nil(t, points[0].Date)
	assert.False(t, points[2].LooksLikeDate)
}

func TestExtract_KeepsSeriesOrderAndIndexes(t *testing.T) {
	points := Extract([]datatypes.ChartSeries{
		rawSeries("a", `1`, `2`),
		rawSeries("b", `3`),
	}, 0)

	require.Len(t, points, 3)
	assert.Equal(t, []string{"a", "a", "b"}, []string{points[0].Series, points[1].Series, points[2].Series})
	assert.Equal(t, []int{0, 1, 2}, []int{points[0].Index, points[1].Index, points[2].Index})
	assert.Equal(t, "#2", points[2].XLabel)
}

// =============================================================================
// Downsampling Tests
// =============================================================================

func TestDownsample_Deterministic(t *testing.T) {
	src := make([]datatypes.SeriesPoint, 1000)
	for i := range src {
		src[i] = datatypes.SeriesPoint{Series: "s", XLabel: fmt.Sprintf("p%d", i), Y: float64(i), Index: i}
	}

	out := Downsample(src, 10)
	require.Len(t, out, 10)
	assert.Equal(t, src[0], out[0])
	assert.Equal(t, src[999], out[9])

	again := Downsample(src, 10)
	assert.Equal(t, out, again)

	for i := 1; i < len(out); i++ {
		assert.Greater(t, out[i].Index, out[i-1].Index)
	}
}

func TestDownsample_Bounds(t *testing.T) {
	src := []datatypes.SeriesPoint{{Y: 1}, {Y: 2}, {Y: 3}}

	assert.Len(t, Downsample(src, 5), 3)
	assert.Len(t, Downsample(src, 0), 0)
	assert.Equal(t, []datatypes.SeriesPoint{{Y: 1}}, Downsample(src, 1))
	assert.Len(t, Downsample(nil, 5), 0)

	copied := Downsample(src, 5)
	copied[0].Y = 100
	assert.Equal(t, 1.0, src[0].Y)
}

func TestStrideIndexes(t *testing.T) {
	assert.Equal(t, []int{0, 2, 4}, StrideIndexes(5, 3))
	assert.Equal(t, []int{0, 1}, StrideIndexes(2, 10))
	assert.Nil(t, StrideIndexes(0, 3))
}

func TestDateRange(t *testing.T) {
	d1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	points := []datatypes.SeriesPoint{{Date: &d2}, {}, {Date: &d1}}

	lo, hi, ok := DateRange(points)
	require.True(t, ok)
	assert.Equal(t, d1, lo)
	assert.Equal(t, d2, hi)
	assert.Equal(t, 2, DatedCount(points))

	_, _, ok = DateRange([]datatypes.SeriesPoint{{}})
	assert.False(t, ok)
}
