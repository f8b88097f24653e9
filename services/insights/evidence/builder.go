// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package evidence builds, flattens, budgets and caches evidence packs.
//
// # Description
//
// An evidence pack is the complete set of computed numbers behind one
// insight request. Compile flattens it into facts with stable ids; those ids
// are the only vocabulary a generated report may cite. ApplyBudget keeps the
// serialized pack under a byte ceiling and Cache stores finished packs by
// their composite key.
package evidence

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/AleutianAI/AleutianInsight/services/insights/datatypes"
	"github.com/AleutianAI/AleutianInsight/services/insights/forecast"
	"github.com/AleutianAI/AleutianInsight/services/insights/quality"
	"github.com/AleutianAI/AleutianInsight/services/insights/series"
	"github.com/AleutianAI/AleutianInsight/services/insights/stats"
)

// Build defaults.
const (
	DefaultMaxPoints  = 2000
	DefaultSampleSize = 50
	DefaultMaxBytes   = 64 * 1024

	// minSegmentsAfterTrim is the segment count kept when the sample alone
	// cannot bring a pack under its byte budget.
	minSegmentsAfterTrim = 3
)

// BuildInput carries everything a pack is computed from.
type BuildInput struct {
	Version          string
	DatasetID        string
	RecommendationID string
	ScenarioHash     string
	Horizon          int
	Sensitive        bool
	Profile          *datatypes.DatasetProfile
	Chart            *datatypes.ChartResult
	Scenario         *datatypes.ScenarioResult
}

// BuildOptions tunes pack construction.
type BuildOptions struct {
	MaxPoints           int
	SampleSize          int
	MaxSegments         int
	MovingAverageWindow int
	MaxBytes            int
	Now                 func() time.Time

	// Scrubber rewrites series names and labels before any statistic sees
	// them. Nil leaves labels untouched.
	Scrubber LabelScrubber
}

// LabelScrubber replaces sensitive substrings of a label.
type LabelScrubber interface {
	Scrub(label string) (string, bool)
}

func (o BuildOptions) withDefaults() BuildOptions {
	if o.MaxPoints <= 0 {
		o.MaxPoints = DefaultMaxPoints
	}
	if o.SampleSize <= 0 {
		o.SampleSize = DefaultSampleSize
	}
	if o.MaxBytes == 0 {
		o.MaxBytes = DefaultMaxBytes
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Build computes a complete evidence pack.
//
// # Description
//
// Runs the pipeline in one synchronous pass: extract and downsample points,
// scrub labels when a Scrubber is set, distribution and time-series
// statistics, segments, quality, forecast, what-if deltas, fact compilation
// and finally the size budget.
//
// # Inputs
//
//   - in: Pack identity and collaborator results. Chart may be nil, which
//     yields a pack with quality facts only.
//   - opts: Limits. Zero values take package defaults; a negative MaxBytes
//     disables the size budget.
//
// # Outputs
//
//   - *datatypes.EvidencePack: A new pack owned by the caller.
//   - error: Non-nil only if the pack cannot be serialized.
func Build(in BuildInput, opts BuildOptions) (*datatypes.EvidencePack, error) {
	opts = opts.withDefaults()

	var points []datatypes.SeriesPoint
	metric := ""
	queryHash := ""
	if in.Chart != nil {
		points = series.Extract(in.Chart.Series, opts.MaxPoints)
		metric = in.Chart.MetricName
		queryHash = in.Chart.QueryHash
	}
	scenario := in.Scenario
	redacted := 0
	if opts.Scrubber != nil {
		redacted = scrubPoints(points, opts.Scrubber)
		var n int
		scenario, n = scrubScenario(scenario, opts.Scrubber)
		redacted += n
	}

	pack := &datatypes.EvidencePack{
		Version:          in.Version,
		DatasetID:        in.DatasetID,
		RecommendationID: in.RecommendationID,
		QueryHash:        queryHash,
		ScenarioHash:     in.ScenarioHash,
		Horizon:          in.Horizon,
		SensitiveMode:    in.Sensitive,
		RedactedLabels:   redacted,
		GeneratedAt:      opts.Now().UTC(),
	}

	values := series.Values(points)
	pack.Distribution = stats.Distribution(metric, values)
	pack.TimeSeries = stats.TimeSeries(points)
	pack.Segments = stats.Segments(points, opts.MaxSegments, in.Sensitive)
	pack.Quality = quality.Score(in.Profile, points, pack.Distribution)
	pack.Forecast = buildForecast(points, in.Horizon, opts.MovingAverageWindow)
	if scenario != nil {
		pack.WhatIf = stats.WhatIf(scenario, in.Sensitive)
	}
	pack.AggregatedSample = Sample(points, opts.SampleSize, in.Sensitive)
	pack.Facts = Compile(pack)

	if err := ApplyBudget(pack, opts.MaxBytes); err != nil {
		return nil, err
	}
	return pack, nil
}

// buildForecast projects the chronological series when enough dated points
// exist, otherwise the y values in ordinal order.
func buildForecast(points []datatypes.SeriesPoint, horizon, window int) datatypes.ForecastPack {
	chrono := stats.ChronologicalSeries(points)
	if len(chrono) >= 2 {
		values := make([]float64, len(chrono))
		for i, dv := range chrono {
			values[i] = dv.Value
		}
		last := chrono[len(chrono)-1].Date.Format("2006-01-02")
		label := fmt.Sprintf("next %d periods after %s", horizon, last)
		return forecast.Build(values, horizon, forecast.Options{MovingAverageWindow: window, Label: label})
	}
	label := fmt.Sprintf("next %d positions", horizon)
	return forecast.Build(series.Values(points), horizon, forecast.Options{MovingAverageWindow: window, Label: label})
}

// scrubPoints rewrites labels in place and returns how many changed.
func scrubPoints(points []datatypes.SeriesPoint, s LabelScrubber) int {
	n := 0
	for i := range points {
		if out, ok := s.Scrub(points[i].Series); ok {
			points[i].Series = out
			n++
		}
		if out, ok := s.Scrub(points[i].XLabel); ok {
			points[i].XLabel = out
			n++
		}
	}
	return n
}

// scrubScenario returns a scrubbed copy of result; the collaborator's value
// is never modified.
func scrubScenario(result *datatypes.ScenarioResult, s LabelScrubber) (*datatypes.ScenarioResult, int) {
	if result == nil {
		return nil, 0
	}
	n := 0
	scrub := func(in []datatypes.LabeledValue) []datatypes.LabeledValue {
		if in == nil {
			return nil
		}
		out := make([]datatypes.LabeledValue, len(in))
		for i, v := range in {
			if label, ok := s.Scrub(v.Label); ok {
				v.Label = label
				n++
			}
			out[i] = v
		}
		return out
	}
	out := &datatypes.ScenarioResult{
		Baseline:  scrub(result.Baseline),
		Simulated: scrub(result.Simulated),
		Delta:     scrub(result.Delta),
	}
	return out, n
}

// Sample picks up to size evenly strided points for the pack. Sensitive
// packs carry no sample.
func Sample(points []datatypes.SeriesPoint, size int, sensitive bool) []datatypes.SamplePoint {
	out := []datatypes.SamplePoint{}
	if sensitive || size <= 0 {
		return out
	}
	for _, i := range series.StrideIndexes(len(points), size) {
		p := points[i]
		out = append(out, datatypes.SamplePoint{Series: p.Series, X: p.XLabel, Y: p.Y})
	}
	return out
}

// ApplyBudget keeps the serialized pack at or under maxBytes.
//
// # Description
//
// The aggregated sample is halved until the pack fits or the sample is
// empty. If it still does not fit, segments are cut to three and facts are
// recompiled. Truncated records whether anything was dropped and
// SerializedBytes the final size. A non-positive maxBytes only measures.
func ApplyBudget(pack *datatypes.EvidencePack, maxBytes int) error {
	size, err := measure(pack)
	if err != nil {
		return err
	}
	if maxBytes > 0 {
		for size > maxBytes && len(pack.AggregatedSample) > 0 {
			pack.AggregatedSample = pack.AggregatedSample[:len(pack.AggregatedSample)/2]
			pack.Truncated = true
			if size, err = measure(pack); err != nil {
				return err
			}
		}
		if size > maxBytes && len(pack.Segments) > minSegmentsAfterTrim {
			pack.Segments = pack.Segments[:minSegmentsAfterTrim]
			pack.Facts = Compile(pack)
			pack.Truncated = true
			if size, err = measure(pack); err != nil {
				return err
			}
		}
	}
	pack.SerializedBytes = size
	return nil
}

func measure(pack *datatypes.EvidencePack) (int, error) {
	data, err := json.Marshal(pack)
	if err != nil {
		return 0, fmt.Errorf("measure evidence pack: %w", err)
	}
	return len(data), nil
}
