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
	"encoding/json"
	"fmt"
	"time"
)

// EvidenceFact is the atomic unit of grounding.
//
// A generated report may only reference evidence ids that appear as facts in
// the EvidencePack it was generated from. Ids are unique within one pack.
type EvidenceFact struct {
	EvidenceID string `json:"evidenceId"`
	ShortClaim string `json:"shortClaim"`
	Value      string `json:"value"`
}

// TrendClass classifies the direction of a time series.
type TrendClass string

const (
	TrendRising  TrendClass = "Rising"
	TrendFalling TrendClass = "Falling"
	TrendFlat    TrendClass = "Flat"
)

// VolatilityBand buckets the volatility ratio.
type VolatilityBand string

const (
	VolatilityLow    VolatilityBand = "Low"
	VolatilityMedium VolatilityBand = "Medium"
	VolatilityHigh   VolatilityBand = "High"
)

// DistributionStats summarizes the y values of a chart.
type DistributionStats struct {
	Metric                 string  `json:"metric"`
	Count                  int     `json:"count"`
	Mean                   float64 `json:"mean"`
	Median                 float64 `json:"median"`
	StdDev                 float64 `json:"stdDev"`
	Min                    float64 `json:"min"`
	Max                    float64 `json:"max"`
	P05                    float64 `json:"p05"`
	P25                    float64 `json:"p25"`
	P75                    float64 `json:"p75"`
	P95                    float64 `json:"p95"`
	IQR                    float64 `json:"iqr"`
	CoefficientOfVariation float64 `json:"coefficientOfVariation"`
	SkewnessProxy          float64 `json:"skewnessProxy"`
}

// ChangePoint is a detected level shift in a time series.
type ChangePoint struct {
	Position       int     `json:"position"`
	Label          string  `json:"label"`
	ShiftMagnitude float64 `json:"shiftMagnitude"`
}

// TimeSeriesStats is only present when the chart has enough dated points.
type TimeSeriesStats struct {
	PointCount             int            `json:"pointCount"`
	TrendSlope             float64        `json:"trendSlope"`
	NormalizedSlope        float64        `json:"normalizedSlope"`
	TrendClass             TrendClass     `json:"trendClass"`
	VolatilityRatio        float64        `json:"volatilityRatio"`
	VolatilityBand         VolatilityBand `json:"volatilityBand"`
	WeeklyPatternStrength  float64        `json:"weeklyPatternStrength"`
	MonthlyPatternStrength float64        `json:"monthlyPatternStrength"`
	ChangePoints           []ChangePoint  `json:"changePoints"`
}

// SegmentBreakdown is the contribution of one series or category.
type SegmentBreakdown struct {
	Label          string  `json:"label"`
	Contribution   float64 `json:"contribution"`
	SharePct       float64 `json:"sharePct"`
	StabilityScore float64 `json:"stabilityScore"`
	IsOutlier      bool    `json:"isOutlier"`
}

// Forecast method names.
const (
	MethodNaive            = "naive"
	MethodMovingAverage    = "movingAverage"
	MethodLinearRegression = "linearRegression"
)

// ForecastPoint is one projected step with its uncertainty band.
type ForecastPoint struct {
	Position  int     `json:"position"`
	Value     float64 `json:"value"`
	LowerBand float64 `json:"lowerBand"`
	UpperBand float64 `json:"upperBand"`
}

// ForecastMethod is the projection of a single baseline method.
type ForecastMethod struct {
	Method         string          `json:"method"`
	ResidualStdDev float64         `json:"residualStdDev"`
	RMSE           float64         `json:"rmse"`
	Confidence     string          `json:"confidence"`
	Points         []ForecastPoint `json:"points"`
}

// ForecastPack groups the baseline projections for one horizon.
type ForecastPack struct {
	Horizon int              `json:"horizon"`
	Label   string           `json:"label"`
	Methods []ForecastMethod `json:"methods"`
}

// Method returns the named method and whether it exists.
func (f ForecastPack) Method(name string) (ForecastMethod, bool) {
	for _, m := range f.Methods {
		if m.Method == name {
			return m, true
		}
	}
	return ForecastMethod{}, false
}

// WhatIfConclusion summarizes a scenario simulation against its baseline.
type WhatIfConclusion struct {
	DeltaMean       float64  `json:"deltaMean"`
	DeltaSum        float64  `json:"deltaSum"`
	DeltaMax        float64  `json:"deltaMax"`
	DeltaVolatility float64  `json:"deltaVolatility"`
	DeltaTrendSlope float64  `json:"deltaTrendSlope"`
	TopDrivers      []string `json:"topDrivers"`
}

// DatasetQuality carries the data quality signals of the dataset and chart.
type DatasetQuality struct {
	RowCount              int     `json:"rowCount"`
	ColumnCount           int     `json:"columnCount"`
	PointCount            int     `json:"pointCount"`
	AvgNullRate           float64 `json:"avgNullRate"`
	MaxNullRate           float64 `json:"maxNullRate"`
	WorstNullColumn       string  `json:"worstNullColumn"`
	DuplicateRateEstimate float64 `json:"duplicateRateEstimate"`
	TimeCoverage          string  `json:"timeCoverage"`
	UnparsedDateCount     int     `json:"unparsedDateCount"`
	NegativeValueCount    int     `json:"negativeValueCount"`
	ExtremeSkew           bool    `json:"extremeSkew"`
}

// SamplePoint is one entry of the bounded aggregated sample.
type SamplePoint struct {
	Series string  `json:"series"`
	X      string  `json:"x"`
	Y      float64 `json:"y"`
}

// EvidencePack is everything the report generator may ground claims on.
//
// Built fresh per request and cached by composite key. A cached pack is
// never mutated in place; callers always receive a deep copy.
type EvidencePack struct {
	Version          string             `json:"version"`
	DatasetID        string             `json:"datasetId"`
	RecommendationID string             `json:"recommendationId"`
	QueryHash        string             `json:"queryHash"`
	ScenarioHash     string             `json:"scenarioHash"`
	Horizon          int                `json:"horizon"`
	SensitiveMode    bool               `json:"sensitiveMode"`
	RedactedLabels   int                `json:"redactedLabels,omitempty"`
	Quality          DatasetQuality     `json:"quality"`
	Distribution     *DistributionStats `json:"distribution,omitempty"`
	TimeSeries       *TimeSeriesStats   `json:"timeSeries,omitempty"`
	Segments         []SegmentBreakdown `json:"segments"`
	Forecast         ForecastPack       `json:"forecast"`
	WhatIf           *WhatIfConclusion  `json:"whatIf,omitempty"`
	AggregatedSample []SamplePoint      `json:"aggregatedSample"`
	Facts            []EvidenceFact     `json:"facts"`
	SerializedBytes  int                `json:"serializedBytes"`
	Truncated        bool               `json:"truncated"`
	GeneratedAt      time.Time          `json:"generatedAt"`
}

// FactIndex returns the set of evidence ids present in the pack.
func (p *EvidencePack) FactIndex() map[string]EvidenceFact {
	idx := make(map[string]EvidenceFact, len(p.Facts))
	for _, f := range p.Facts {
		idx[f.EvidenceID] = f
	}
	return idx
}

// Clone returns a deep copy of the pack.
//
// # Description
//
// Round-trips the pack through JSON so that no slice, map or pointer is
// shared between the copy and the original.
//
// # Outputs
//
//   - *EvidencePack: An independent copy.
//   - error: Non-nil if the pack could not be serialized.
func (p *EvidencePack) Clone() (*EvidencePack, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal evidence pack: %w", err)
	}
	var out EvidencePack
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal evidence pack: %w", err)
	}
	return &out, nil
}
