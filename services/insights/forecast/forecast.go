// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package forecast projects a metric series forward with three simple,
// explainable methods: naive, moving average and linear regression.
//
// Each method reports its in-sample residual spread so that the projection
// bands and the confidence label can be cited as evidence.
package forecast

import (
	"math"

	"github.com/AleutianAI/AleutianInsight/services/insights/datatypes"
	"github.com/AleutianAI/AleutianInsight/services/insights/stats"
)

// Horizon bounds.
const (
	MinHorizon     = 7
	DefaultHorizon = 30
	MaxHorizon     = 90
)

// DefaultMovingAverageWindow is the requested window when none is configured.
const DefaultMovingAverageWindow = 7

const (
	// bandZ is the z-score of a two-sided 90% band.
	bandZ = 1.64

	maxMovingAverageWindow = 15
	epsilon                = 1e-9
)

// Options tunes Build.
type Options struct {
	// MovingAverageWindow is the requested window, clamped per series.
	MovingAverageWindow int

	// Label describes what the projected positions mean.
	Label string
}

// ResolveHorizon picks the forecast horizon for a request.
//
// # Description
//
// A nil request uses def. The result is clamped to [MinHorizon, limit].
// Non-positive def and limit fall back to DefaultHorizon and MaxHorizon.
//
// # Examples
//
//	ResolveHorizon(ptr(200), 30, 90) // 90
//	ResolveHorizon(ptr(2), 30, 90)   // 7
func ResolveHorizon(requested *int, def, limit int) int {
	if limit <= 0 {
		limit = MaxHorizon
	}
	if limit < MinHorizon {
		limit = MinHorizon
	}
	if def <= 0 {
		def = DefaultHorizon
	}
	h := def
	if requested != nil {
		h = *requested
	}
	if h < MinHorizon {
		h = MinHorizon
	}
	if h > limit {
		h = limit
	}
	return h
}

// Build runs every method that has enough history.
//
// # Inputs
//
//   - values: Observations in chronological (or ordinal) order.
//   - horizon: Steps to project, already resolved.
//   - opts: Window and label.
//
// # Outputs
//
//   - datatypes.ForecastPack: Methods in the order naive, moving average,
//     linear regression. Methods is empty when fewer than two values exist.
func Build(values []float64, horizon int, opts Options) datatypes.ForecastPack {
	pack := datatypes.ForecastPack{
		Horizon: horizon,
		Label:   opts.Label,
		Methods: []datatypes.ForecastMethod{},
	}
	if horizon <= 0 {
		return pack
	}
	mean := stats.Mean(values)

	if m, ok := naive(values, horizon); ok {
		pack.Methods = append(pack.Methods, finish(m, mean))
	}
	if m, ok := movingAverage(values, horizon, opts.MovingAverageWindow); ok {
		pack.Methods = append(pack.Methods, finish(m, mean))
	}
	if m, ok := linearRegression(values, horizon); ok {
		pack.Methods = append(pack.Methods, finish(m, mean))
	}
	return pack
}

// Confidence labels a method from its RMSE relative to the series mean.
func Confidence(rmse, mean float64) string {
	if math.Abs(mean) < epsilon {
		if rmse < epsilon {
			return "high"
		}
		return "low"
	}
	ratio := rmse / math.Abs(mean)
	switch {
	case ratio < 0.1:
		return "high"
	case ratio < 0.25:
		return "medium"
	default:
		return "low"
	}
}

// ClampWindow bounds the moving-average window to [2, min(15, n-1)].
func ClampWindow(requested, n int) int {
	if requested <= 0 {
		requested = DefaultMovingAverageWindow
	}
	upper := n - 1
	if upper > maxMovingAverageWindow {
		upper = maxMovingAverageWindow
	}
	if requested > upper {
		requested = upper
	}
	if requested < 2 {
		requested = 2
	}
	return requested
}

type projection struct {
	method    string
	residuals []float64
	values    []float64
}

func naive(values []float64, horizon int) (projection, bool) {
	if len(values) < 2 {
		return projection{}, false
	}
	last := values[len(values)-1]
	out := make([]float64, horizon)
	for i := range out {
		out[i] = last
	}
	return projection{
		method:    datatypes.MethodNaive,
		residuals: stats.Diffs(values),
		values:    out,
	}, true
}

func movingAverage(values []float64, horizon, window int) (projection, bool) {
	n := len(values)
	if n < 3 {
		return projection{}, false
	}
	w := ClampWindow(window, n)

	residuals := make([]float64, 0, n-w)
	for i := w; i < n; i++ {
		residuals = append(residuals, values[i]-stats.Mean(values[i-w:i]))
	}

	history := make([]float64, n, n+horizon)
	copy(history, values)
	out := make([]float64, horizon)
	for h := 0; h < horizon; h++ {
		next := stats.Mean(history[len(history)-w:])
		out[h] = next
		history = append(history, next)
	}
	return projection{
		method:    datatypes.MethodMovingAverage,
		residuals: residuals,
		values:    out,
	}, true
}

func linearRegression(values []float64, horizon int) (projection, bool) {
	n := len(values)
	if n < 3 {
		return projection{}, false
	}
	slope := stats.CenteredSlope(values)
	center := float64(n-1) / 2
	intercept := stats.Mean(values) - slope*center

	residuals := make([]float64, n)
	for i, v := range values {
		residuals[i] = v - (intercept + slope*float64(i))
	}
	out := make([]float64, horizon)
	for h := range out {
		out[h] = intercept + slope*float64(n+h)
	}
	return projection{
		method:    datatypes.MethodLinearRegression,
		residuals: residuals,
		values:    out,
	}, true
}

func finish(p projection, mean float64) datatypes.ForecastMethod {
	rmse := rootMeanSquare(p.residuals)
	std := stats.StdDev(p.residuals)
	band := bandZ * std

	points := make([]datatypes.ForecastPoint, len(p.values))
	for i, v := range p.values {
		points[i] = datatypes.ForecastPoint{
			Position:  i + 1,
			Value:     v,
			LowerBand: v - band,
			UpperBand: v + band,
		}
	}
	return datatypes.ForecastMethod{
		Method:         p.method,
		ResidualStdDev: std,
		RMSE:           rmse,
		Confidence:     Confidence(rmse, mean),
		Points:         points,
	}
}

func rootMeanSquare(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	ss := 0.0
	for _, v := range values {
		ss += v * v
	}
	return math.Sqrt(ss / float64(len(values)))
}
