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
	"math"
	"sort"
	"time"

	"github.com/AleutianAI/AleutianInsight/services/insights/datatypes"
)

// Time series thresholds.
const (
	// MinTimeSeriesPoints is the number of distinct dates needed for
	// time-series statistics.
	MinTimeSeriesPoints = 6

	// MinChangePointPoints is the number of dated points needed for
	// change-point detection.
	MinChangePointPoints = 12

	// MinPatternPoints is the number of points needed for a pattern strength.
	MinPatternPoints = 8

	// TrendThreshold bounds the normalized slope of a Flat trend.
	TrendThreshold = 0.01

	maxChangePoints = 3
)

// DatedValue is one chronological observation.
type DatedValue struct {
	Date  time.Time
	Label string
	Value float64
}

// ChronologicalSeries sums dated points per date across series and returns
// them in chronological order. Undated points are ignored.
func ChronologicalSeries(points []datatypes.SeriesPoint) []DatedValue {
	byDate := make(map[int64]*DatedValue)
	for _, p := range points {
		if p.Date == nil {
			continue
		}
		key := p.Date.UnixNano()
		if dv, ok := byDate[key]; ok {
			dv.Value += p.Y
			continue
		}
		byDate[key] = &DatedValue{Date: *p.Date, Label: p.XLabel, Value: p.Y}
	}
	out := make([]DatedValue, 0, len(byDate))
	for _, dv := range byDate {
		out = append(out, *dv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// ClassifyTrend maps a slope normalized by |mean| to a trend class.
func ClassifyTrend(normalizedSlope float64) datatypes.TrendClass {
	switch {
	case normalizedSlope > TrendThreshold:
		return datatypes.TrendRising
	case normalizedSlope < -TrendThreshold:
		return datatypes.TrendFalling
	default:
		return datatypes.TrendFlat
	}
}

// ClassifyVolatility maps a volatility ratio to a band.
func ClassifyVolatility(ratio float64) datatypes.VolatilityBand {
	switch {
	case ratio < 0.1:
		return datatypes.VolatilityLow
	case ratio < 0.3:
		return datatypes.VolatilityMedium
	default:
		return datatypes.VolatilityHigh
	}
}

// TimeSeries computes trend, volatility, seasonality and change points.
//
// # Description
//
// Operates on the chronological series of dated points. The trend slope is
// a centered OLS fit against the ordinal position; the slope normalized by
// |mean| drives the Rising/Falling/Flat classification.
//
// # Outputs
//
//   - *datatypes.TimeSeriesStats: nil when fewer than MinTimeSeriesPoints
//     distinct dates exist.
func TimeSeries(points []datatypes.SeriesPoint) *datatypes.TimeSeriesStats {
	chrono := ChronologicalSeries(points)
	if len(chrono) < MinTimeSeriesPoints {
		return nil
	}
	values := make([]float64, len(chrono))
	for i, dv := range chrono {
		values[i] = dv.Value
	}

	mean := Mean(values)
	slope := CenteredSlope(values)
	normalized := slope
	if math.Abs(mean) > epsilon {
		normalized = slope / math.Abs(mean)
	}

	volatility := 0.0
	if math.Abs(mean) > epsilon {
		volatility = StdDev(Diffs(values)) / math.Abs(mean)
	}

	ts := &datatypes.TimeSeriesStats{
		PointCount:      len(chrono),
		TrendSlope:      slope,
		NormalizedSlope: normalized,
		TrendClass:      ClassifyTrend(normalized),
		VolatilityRatio: volatility,
		VolatilityBand:  ClassifyVolatility(volatility),
		WeeklyPatternStrength: PatternStrength(chrono, func(t time.Time) int {
			return int(t.Weekday())
		}),
		MonthlyPatternStrength: PatternStrength(chrono, func(t time.Time) int {
			return int(t.Month())
		}),
		ChangePoints: []datatypes.ChangePoint{},
	}
	if len(chrono) >= MinChangePointPoints {
		ts.ChangePoints = ChangePoints(chrono)
	}
	return ts
}

// PatternStrength is the ratio of the standard deviation of bucket means to
// the overall standard deviation. Returns 0 with fewer than
// MinPatternPoints points, fewer than two buckets, or no variation.
func PatternStrength(series []DatedValue, bucket func(time.Time) int) float64 {
	if len(series) < MinPatternPoints {
		return 0
	}
	values := make([]float64, len(series))
	sums := make(map[int]float64)
	counts := make(map[int]int)
	for i, dv := range series {
		values[i] = dv.Value
		b := bucket(dv.Date)
		sums[b] += dv.Value
		counts[b]++
	}
	if len(counts) < 2 {
		return 0
	}
	overall := StdDev(values)
	if overall < epsilon {
		return 0
	}
	keys := make([]int, 0, len(counts))
	for b := range counts {
		keys = append(keys, b)
	}
	sort.Ints(keys)
	means := make([]float64, 0, len(keys))
	for _, b := range keys {
		means = append(means, sums[b]/float64(counts[b]))
	}
	return StdDev(means) / overall
}

// ChangePointWindow returns the sliding window size for n points.
func ChangePointWindow(n int) int {
	w := n / 8
	if w < 3 {
		w = 3
	}
	if w > 20 {
		w = 20
	}
	return w
}

// ChangePoints slides a window over the series comparing the mean of the
// window ending at i with the window starting at i, and returns the three
// largest absolute shifts ordered by magnitude.
func ChangePoints(series []DatedValue) []datatypes.ChangePoint {
	n := len(series)
	w := ChangePointWindow(n)
	if n < 2*w {
		return []datatypes.ChangePoint{}
	}
	prefix := make([]float64, n+1)
	for i, dv := range series {
		prefix[i+1] = prefix[i] + dv.Value
	}
	windowMean := func(from, to int) float64 {
		return (prefix[to] - prefix[from]) / float64(to-from)
	}

	var candidates []datatypes.ChangePoint
	for i := w; i <= n-w; i++ {
		shift := windowMean(i, i+w) - windowMean(i-w, i)
		candidates = append(candidates, datatypes.ChangePoint{
			Position:       i,
			Label:          series[i].Label,
			ShiftMagnitude: shift,
		})
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		da, db := math.Abs(candidates[a].ShiftMagnitude), math.Abs(candidates[b].ShiftMagnitude)
		if da != db {
			return da > db
		}
		return candidates[a].Position < candidates[b].Position
	})
	if len(candidates) > maxChangePoints {
		candidates = candidates[:maxChangePoints]
	}
	return candidates
}
