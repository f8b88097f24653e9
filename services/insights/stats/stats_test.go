// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stats

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianInsight/services/insights/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func datedPoints(values []float64) []datatypes.SeriesPoint {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]datatypes.SeriesPoint, len(values))
	for i, v := range values {
		d := start.AddDate(0, 0, i)
		out[i] = datatypes.SeriesPoint{
			Series: "revenue",
			XLabel: d.Format("2006-01-02"),
			Y:      v,
			Index:  i,
			Date:   &d,
		}
	}
	return out
}

// linearAround builds n values with the given mean and per-step slope,
// symmetric around the center so the mean is exact.
func linearAround(n int, mean, slope float64) []float64 {
	center := float64(n-1) / 2
	out := make([]float64, n)
	for i := range out {
		out[i] = mean + slope*(float64(i)-center)
	}
	return out
}

// =============================================================================
// Distribution Tests
// =============================================================================

func TestDistribution_OneToFive(t *testing.T) {
	d := Distribution("revenue", []float64{5, 3, 1, 4, 2})
	require.NotNil(t, d)

	assert.Equal(t, "revenue", d.Metric)
	assert.Equal(t, 5, d.Count)
	assert.InDelta(t, 3.0, d.Mean, 1e-12)
	assert.InDelta(t, 3.0, d.Median, 1e-12)
	assert.InDelta(t, 1.414, d.StdDev, 1e-3)
	assert.Equal(t, 0.0, d.SkewnessProxy)
	assert.Equal(t, 1.0, d.Min)
	assert.Equal(t, 5.0, d.Max)
	assert.InDelta(t, 2.0, d.P25, 1e-12)
	assert.InDelta(t, 4.0, d.P75, 1e-12)
	assert.InDelta(t, 2.0, d.IQR, 1e-12)
	assert.InDelta(t, 1.2, d.P05, 1e-12)
	assert.InDelta(t, 4.8, d.P95, 1e-12)
	assert.InDelta(t, math.Sqrt2/3, d.CoefficientOfVariation, 1e-12)
}

func TestDistribution_DegenerateInputs(t *testing.T) {
	assert.Nil(t, Distribution("x", nil))

	constant := Distribution("x", []float64{4, 4, 4})
	require.NotNil(t, constant)
	assert.Equal(t, 0.0, constant.StdDev)
	assert.Equal(t, 0.0, constant.SkewnessProxy)

	zeroMean := Distribution("x", []float64{-1, 1})
	require.NotNil(t, zeroMean)
	assert.Equal(t, 0.0, zeroMean.CoefficientOfVariation)
}

func TestDistribution_SkewedRight(t *testing.T) {
	d := Distribution("x", []float64{1, 1, 1, 1, 100})
	require.NotNil(t, d)
	assert.Greater(t, d.SkewnessProxy, 0.0)
}

func TestPercentile_Interpolation(t *testing.T) {
	sorted := []float64{10, 20, 30, 40}
	assert.Equal(t, 10.0, Percentile(sorted, 0))
	assert.Equal(t, 40.0, Percentile(sorted, 1))
	assert.InDelta(t, 25.0, Percentile(sorted, 0.5), 1e-12)
	assert.Equal(t, 0.0, Percentile(nil, 0.5))
	assert.Equal(t, 7.0, Percentile([]float64{7}, 0.9))
}

func TestCenteredSlope(t *testing.T) {
	assert.InDelta(t, 2.0, CenteredSlope([]float64{1, 3, 5, 7}), 1e-12)
	assert.Equal(t, 0.0, CenteredSlope([]float64{4}))
}

// =============================================================================
// Time Series Tests
// =============================================================================

func TestClassifyTrend_Boundaries(t *testing.T) {
	assert.Equal(t, datatypes.TrendRising, ClassifyTrend(0.011))
	assert.Equal(t, datatypes.TrendFlat, ClassifyTrend(0.009))
	assert.Equal(t, datatypes.TrendFalling, ClassifyTrend(-0.02))
	assert.Equal(t, datatypes.TrendFlat, ClassifyTrend(0.01))
	assert.Equal(t, datatypes.TrendFlat, ClassifyTrend(-0.01))
}

func TestTimeSeries_TrendFromSeries(t *testing.T) {
	tests := []struct {
		name       string
		normalized float64
		want       datatypes.TrendClass
	}{
		{"rising", 0.011, datatypes.TrendRising},
		{"flat", 0.009, datatypes.TrendFlat},
		{"falling", -0.02, datatypes.TrendFalling},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := linearAround(10, 100, tt.normalized*100)
			ts := TimeSeries(datedPoints(values))
			require.NotNil(t, ts)
			assert.InDelta(t, tt.normalized, ts.NormalizedSlope, 1e-9)
			assert.Equal(t, tt.want, ts.TrendClass)
			assert.Equal(t, 10, ts.PointCount)
		})
	}
}

func TestTimeSeries_RequiresSixDates(t *testing.T) {
	assert.Nil(t, TimeSeries(datedPoints([]float64{1, 2, 3, 4, 5})))
	assert.NotNil(t, TimeSeries(datedPoints([]float64{1, 2, 3, 4, 5, 6})))

	undated := []datatypes.SeriesPoint{{Y: 1}, {Y: 2}, {Y: 3}, {Y: 4}, {Y: 5}, {Y: 6}, {Y: 7}}
	assert.Nil(t, TimeSeries(undated))
}

func TestTimeSeries_SumsSeriesPerDate(t *testing.T) {
	a := datedPoints([]float64{1, 1, 1, 1, 1, 1})
	b := datedPoints([]float64{2, 2, 2, 2, 2, 2})
	for i := range b {
		b[i].Series = "other"
	}
	chrono := ChronologicalSeries(append(a, b...))
	require.Len(t, chrono, 6)
	for _, dv := range chrono {
		assert.Equal(t, 3.0, dv.Value)
	}
}

func TestTimeSeries_ChangePoints(t *testing.T) {
	values := make([]float64, 24)
	for i := range values {
		if i < 12 {
			values[i] = 10
		} else {
			values[i] = 50
		}
	}
	ts := TimeSeries(datedPoints(values))
	require.NotNil(t, ts)
	require.Len(t, ts.ChangePoints, 3)

	assert.Equal(t, 12, ts.ChangePoints[0].Position)
	assert.InDelta(t, 40.0, ts.ChangePoints[0].ShiftMagnitude, 1e-9)
	assert.Equal(t, "2024-01-13", ts.ChangePoints[0].Label)
	assert.Equal(t, 11, ts.ChangePoints[1].Position)
	assert.Equal(t, 13, ts.ChangePoints[2].Position)
	assert.Equal(t, datatypes.TrendRising, ts.TrendClass)
}

func TestTimeSeries_NoChangePointsBelowTwelve(t *testing.T) {
	ts := TimeSeries(datedPoints(linearAround(11, 50, 1)))
	require.NotNil(t, ts)
	assert.Empty(t, ts.ChangePoints)
}

func TestChangePointWindow(t *testing.T) {
	assert.Equal(t, 3, ChangePointWindow(12))
	assert.Equal(t, 5, ChangePointWindow(40))
	assert.Equal(t, 20, ChangePointWindow(500))
}

func TestPatternStrength(t *testing.T) {
	weekly := make([]float64, 28)
	for i := range weekly {
		// 2024-01-06 (index 5) is a Saturday.
		if i%7 == 5 || i%7 == 6 {
			weekly[i] = 100
		} else {
			weekly[i] = 10
		}
	}
	chrono := ChronologicalSeries(datedPoints(weekly))
	strength := PatternStrength(chrono, func(t time.Time) int { return int(t.Weekday()) })
	assert.Greater(t, strength, 0.9)

	flat := ChronologicalSeries(datedPoints([]float64{5, 5, 5, 5, 5, 5, 5, 5, 5}))
	assert.Equal(t, 0.0, PatternStrength(flat, func(t time.Time) int { return int(t.Weekday()) }))

	short := ChronologicalSeries(datedPoints([]float64{1, 9, 1, 9, 1, 9, 1}))
	assert.Equal(t, 0.0, PatternStrength(short, func(t time.Time) int { return int(t.Weekday()) }))

	oneBucket := ChronologicalSeries(datedPoints(linearAround(10, 5, 1)))
	assert.Equal(t, 0.0, PatternStrength(oneBucket, func(t time.Time) int { return int(t.Month()) }))
}

func TestClassifyVolatility(t *testing.T) {
	assert.Equal(t, datatypes.VolatilityLow, ClassifyVolatility(0.05))
	assert.Equal(t, datatypes.VolatilityMedium, ClassifyVolatility(0.2))
	assert.Equal(t, datatypes.VolatilityHigh, ClassifyVolatility(0.5))
}

// =============================================================================
// Segment Tests
// =============================================================================

func TestSegments_BySeries(t *testing.T) {
	points := []datatypes.SeriesPoint{
		{Series: "north", Y: 30}, {Series: "north", Y: 30},
		{Series: "south", Y: 10},
		{Series: "east", Y: 20}, {Series: "east", Y: 10},
	}
	segs := Segments(points, 5, false)
	require.Len(t, segs, 3)

	assert.Equal(t, "north", segs[0].Label)
	assert.Equal(t, 60.0, segs[0].Contribution)
	assert.InDelta(t, 60.0, segs[0].SharePct, 1e-9)
	assert.Equal(t, 1.0, segs[0].StabilityScore)
	assert.Equal(t, "east", segs[1].Label)
	assert.Equal(t, "south", segs[2].Label)
	for _, s := range segs {
		assert.False(t, s.IsOutlier)
	}
}

func TestSegments_ByLabelForSingleSeries(t *testing.T) {
	points := []datatypes.SeriesPoint{
		{Series: "sales", XLabel: "web", Y: 5},
		{Series: "sales", XLabel: "store", Y: 15},
		{Series: "sales", XLabel: "web", Y: 5},
	}
	segs := Segments(points, 3, false)
	require.Len(t, segs, 2)
	assert.Equal(t, "store", segs[0].Label)
	assert.Equal(t, "web", segs[1].Label)
	assert.InDelta(t, 40.0, segs[1].SharePct, 1e-9)
}

func TestSegments_CapAndOutlier(t *testing.T) {
	var points []datatypes.SeriesPoint
	points = append(points, datatypes.SeriesPoint{Series: "s", XLabel: "big", Y: 100})
	for i := 0; i < 30; i++ {
		points = append(points, datatypes.SeriesPoint{Series: "s", XLabel: fmt.Sprintf("small-%02d", i), Y: 1})
	}

	segs := Segments(points, 10, false)
	require.Len(t, segs, 10)
	assert.Equal(t, "big", segs[0].Label)
	assert.True(t, segs[0].IsOutlier)
	for _, s := range segs[1:] {
		assert.False(t, s.IsOutlier)
	}

	assert.Len(t, Segments(points, 1, false), MinSegments)
	assert.Len(t, Segments(points, 100, false), MaxSegments)
}

func TestSegments_SensitiveRedactsLabels(t *testing.T) {
	points := []datatypes.SeriesPoint{{Series: "alice", Y: 2}, {Series: "bob", Y: 1}}
	segs := Segments(points, 5, true)
	require.Len(t, segs, 2)
	assert.Equal(t, "Segment 1", segs[0].Label)
	assert.Equal(t, "Segment 2", segs[1].Label)
}

func TestSegments_Empty(t *testing.T) {
	segs := Segments(nil, 5, false)
	assert.NotNil(t, segs)
	assert.Empty(t, segs)
}

// =============================================================================
// What-If Tests
// =============================================================================

func TestWhatIf_Deltas(t *testing.T) {
	result := &datatypes.ScenarioResult{
		Baseline: []datatypes.LabeledValue{
			{Label: "jan", Value: 10}, {Label: "feb", Value: 20}, {Label: "mar", Value: 30},
		},
		Simulated: []datatypes.LabeledValue{
			{Label: "jan", Value: 12}, {Label: "feb", Value: 20}, {Label: "mar", Value: 45},
		},
	}
	c := WhatIf(result, false)
	require.NotNil(t, c)

	assert.InDelta(t, 17.0/3, c.DeltaMean, 1e-9)
	assert.InDelta(t, 17.0, c.DeltaSum, 1e-9)
	assert.InDelta(t, 15.0, c.DeltaMax, 1e-9)
	assert.Greater(t, c.DeltaVolatility, 0.0)
	assert.InDelta(t, 6.5, c.DeltaTrendSlope, 1e-9)
	assert.Equal(t, []string{"mar: +15", "jan: +2"}, c.TopDrivers)

	redacted := WhatIf(result, true)
	assert.Equal(t, []string{"Driver 1: +15", "Driver 2: +2"}, redacted.TopDrivers)

	assert.Nil(t, WhatIf(nil, false))
}

func TestWhatIf_UsesSuppliedDelta(t *testing.T) {
	result := &datatypes.ScenarioResult{
		Delta: []datatypes.LabeledValue{{Label: "a", Value: -4}, {Label: "b", Value: 1}, {Label: "c", Value: 9}, {Label: "d", Value: 2}},
	}
	c := WhatIf(result, false)
	assert.Equal(t, []string{"c: +9", "a: -4", "d: +2"}, c.TopDrivers)
}
