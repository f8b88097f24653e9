// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stats computes the statistical sections of an evidence pack.
//
// # Description
//
// Everything here is a single synchronous pass over an already downsampled
// point list: distribution statistics over y values, time-series trend,
// volatility, seasonality and change points over dated points, segment
// contribution breakdowns, and what-if deltas against a scenario baseline.
//
// # Thread Safety
//
// All functions are pure and safe for concurrent use.
package stats

import (
	"math"
	"sort"

	"github.com/AleutianAI/AleutianInsight/services/insights/datatypes"
)

// epsilon is the tolerance below which a mean or deviation counts as zero.
const epsilon = 1e-9

// Distribution computes distribution statistics over values.
//
// # Inputs
//
//   - metric: Metric name carried into the result.
//   - values: The y values. Order does not matter.
//
// # Outputs
//
//   - *datatypes.DistributionStats: nil when values is empty.
func Distribution(metric string, values []float64) *datatypes.DistributionStats {
	if len(values) == 0 {
		return nil
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mean := Mean(values)
	std := StdDev(values)
	median := Percentile(sorted, 0.5)
	p25 := Percentile(sorted, 0.25)
	p75 := Percentile(sorted, 0.75)

	d := &datatypes.DistributionStats{
		Metric: metric,
		Count:  len(values),
		Mean:   mean,
		Median: median,
		StdDev: std,
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		P05:    Percentile(sorted, 0.05),
		P25:    p25,
		P75:    p75,
		P95:    Percentile(sorted, 0.95),
		IQR:    p75 - p25,
	}
	if std > epsilon {
		d.SkewnessProxy = (mean - median) / std
	}
	if math.Abs(mean) > epsilon {
		d.CoefficientOfVariation = std / math.Abs(mean)
	}
	return d
}

// Percentile returns the p-th percentile (0..1) of an ascending slice using
// linear interpolation between order statistics.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 || p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}
	rank := p * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Mean returns the arithmetic mean, 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Sum returns the sum of values.
func Sum(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum
}

// StdDev returns the population standard deviation.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	ss := 0.0
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)))
}

// Max returns the largest value, 0 for an empty slice.
func Max(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// Diffs returns the first differences of values.
func Diffs(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		out[i-1] = values[i] - values[i-1]
	}
	return out
}

// CenteredSlope fits y against the centered ordinal with ordinary least
// squares and returns the slope per step.
func CenteredSlope(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	center := float64(n-1) / 2
	mean := Mean(values)
	num, den := 0.0, 0.0
	for i, v := range values {
		x := float64(i) - center
		num += x * (v - mean)
		den += x * x
	}
	if den == 0 {
		return 0
	}
	return num / den
}
