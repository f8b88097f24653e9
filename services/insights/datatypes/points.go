// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes holds the data model shared by the deep insight pipeline.
//
// # Description
//
// Types here cross package boundaries: the series extractor produces
// SeriesPoint values, the statistics, quality and forecast engines produce
// the typed sections of an EvidencePack, the fact compiler flattens the pack
// into EvidenceFact values, and the report package produces and validates
// DeepInsightReport values that may only reference those facts.
//
// # Thread Safety
//
// All types are plain values. An EvidencePack is never mutated once it has
// been cached; use EvidencePack.Clone to obtain an independent copy.
package datatypes

import (
	"encoding/json"
	"time"
)

// SeriesPoint is one normalized point of a rendered chart series.
//
// Produced by the series extractor; immutable once produced.
type SeriesPoint struct {
	// Series is the name of the chart series the point belongs to.
	Series string `json:"series"`

	// XLabel is the display label for the x value. Unparseable x values
	// become an index placeholder such as "#12".
	XLabel string `json:"xLabel"`

	// Y is the numeric value. NaN and infinities never reach this field.
	Y float64 `json:"y"`

	// Index is the ordinal position of the point in the extracted list.
	Index int `json:"index"`

	// Date is the parsed x value when it is a date, nil otherwise.
	Date *time.Time `json:"date,omitempty"`

	// LooksLikeDate reports whether the raw x value resembled a date.
	// A point with LooksLikeDate set and a nil Date failed to parse.
	LooksLikeDate bool `json:"looksLikeDate"`
}

// HasDate reports whether the point carries a parsed date.
func (p SeriesPoint) HasDate() bool {
	return p.Date != nil
}

// ChartSeries is one rendered chart series as returned by the chart
// execution collaborator. Data holds heterogeneous point encodings
// (pairs, lists, keyed objects or bare scalars).
type ChartSeries struct {
	Name string            `json:"name"`
	Data []json.RawMessage `json:"data"`
}

// ChartResult is the already-aggregated output of executing a chart
// recommendation.
type ChartResult struct {
	QueryHash  string        `json:"queryHash"`
	MetricName string        `json:"metricName"`
	ChartType  string        `json:"chartType,omitempty"`
	Series     []ChartSeries `json:"series"`
}

// ColumnProfile is the schema-profile view of one dataset column.
type ColumnProfile struct {
	Name          string  `json:"name"`
	Role          string  `json:"role,omitempty"`
	NullRate      float64 `json:"nullRate"`
	DistinctCount int     `json:"distinctCount"`
}

// DatasetProfile is the schema profile produced by the profiling step.
type DatasetProfile struct {
	DatasetID string          `json:"datasetId"`
	RowCount  int             `json:"rowCount"`
	Columns   []ColumnProfile `json:"columns"`
}

// LabeledValue is one labelled number of a scenario series.
type LabeledValue struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// ScenarioResult is the output of the scenario simulation collaborator.
type ScenarioResult struct {
	Baseline  []LabeledValue `json:"baseline"`
	Simulated []LabeledValue `json:"simulated"`
	Delta     []LabeledValue `json:"delta,omitempty"`
}
