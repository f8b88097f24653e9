// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package evidence

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/AleutianAI/AleutianInsight/services/insights/datatypes"
)

// factList accumulates facts and drops duplicate ids, keeping the first.
type factList struct {
	facts []datatypes.EvidenceFact
	seen  map[string]struct{}
}

func (l *factList) add(id, claim, value string) {
	if _, dup := l.seen[id]; dup {
		return
	}
	l.seen[id] = struct{}{}
	l.facts = append(l.facts, datatypes.EvidenceFact{EvidenceID: id, ShortClaim: claim, Value: value})
}

func (l *factList) num(id, claim string, v float64) {
	l.add(id, claim, FormatNumber(v))
}

func (l *factList) count(id, claim string, v int) {
	l.add(id, claim, strconv.Itoa(v))
}

// Compile flattens an evidence pack into its fact list.
//
// # Description
//
// Walks the pack sections in a fixed order (quality, distribution, time
// series, segments, forecast, scenario) and emits one fact per number or
// classification. The same pack always yields the same facts in the same
// order. Segment labels are not emitted in sensitive mode.
//
// # Inputs
//
//   - pack: The pack to flatten. Its Facts field is ignored.
//
// # Outputs
//
//   - []datatypes.EvidenceFact: Facts with unique ids.
func Compile(pack *datatypes.EvidencePack) []datatypes.EvidenceFact {
	l := &factList{seen: make(map[string]struct{})}
	if pack == nil {
		return []datatypes.EvidenceFact{}
	}

	compileQuality(l, pack.Quality)
	if pack.Distribution != nil {
		compileDistribution(l, pack.Distribution)
	}
	if pack.TimeSeries != nil {
		compileTimeSeries(l, pack.TimeSeries)
	}
	compileSegments(l, pack.Segments, pack.SensitiveMode)
	compileForecast(l, pack.Forecast)
	if pack.WhatIf != nil {
		compileWhatIf(l, pack.WhatIf)
	}

	if l.facts == nil {
		return []datatypes.EvidenceFact{}
	}
	return l.facts
}

func compileQuality(l *factList, q datatypes.DatasetQuality) {
	l.count("DQ_ROW_COUNT", "Rows in the dataset", q.RowCount)
	l.count("DQ_COLUMN_COUNT", "Columns in the dataset", q.ColumnCount)
	l.count("DQ_POINT_COUNT", "Chart points analyzed", q.PointCount)
	l.num("DQ_AVG_NULL_RATE", "Average column null rate", q.AvgNullRate)
	l.num("DQ_MAX_NULL_RATE", "Highest column null rate", q.MaxNullRate)
	if q.WorstNullColumn != "" {
		l.add("DQ_WORST_NULL_COLUMN", "Column with the highest null rate", q.WorstNullColumn)
	}
	l.num("DQ_DUPLICATE_RATE_EST", "Estimated duplicate rate from the most distinct column", q.DuplicateRateEstimate)
	if q.TimeCoverage != "" {
		l.add("DQ_TIME_COVERAGE", "Date range covered by the chart", q.TimeCoverage)
	}
	l.count("DQ_UNPARSED_DATES", "Date-like labels that could not be parsed", q.UnparsedDateCount)
	l.count("DQ_NEGATIVE_VALUES", "Negative metric values", q.NegativeValueCount)
	l.add("DQ_EXTREME_SKEW", "Distribution is extremely skewed", strconv.FormatBool(q.ExtremeSkew))
}

func compileDistribution(l *factList, d *datatypes.DistributionStats) {
	m := MetricToken(d.Metric)
	name := d.Metric
	if name == "" {
		name = "value"
	}
	l.count("DIST_COUNT_"+m, "Number of "+name+" observations", d.Count)
	l.num("DIST_MEAN_"+m, "Mean "+name, d.Mean)
	l.num("DIST_MEDIAN_"+m, "Median "+name, d.Median)
	l.num("DIST_STDDEV_"+m, "Standard deviation of "+name, d.StdDev)
	l.num("DIST_MIN_"+m, "Minimum "+name, d.Min)
	l.num("DIST_MAX_"+m, "Maximum "+name, d.Max)
	l.num("DIST_P05_"+m, "5th percentile of "+name, d.P05)
	l.num("DIST_P25_"+m, "25th percentile of "+name, d.P25)
	l.num("DIST_P75_"+m, "75th percentile of "+name, d.P75)
	l.num("DIST_P95_"+m, "95th percentile of "+name, d.P95)
	l.num("DIST_IQR_"+m, "Interquartile range of "+name, d.IQR)
	l.num("DIST_CV_"+m, "Coefficient of variation of "+name, d.CoefficientOfVariation)
	l.num("DIST_SKEW_"+m, "Skewness proxy (mean minus median over std dev) of "+name, d.SkewnessProxy)
}

func compileTimeSeries(l *factList, ts *datatypes.TimeSeriesStats) {
	l.count("TS_POINT_COUNT", "Distinct dates in the time series", ts.PointCount)
	l.num("TS_TREND_SLOPE", "Trend slope per period", ts.TrendSlope)
	l.add("TS_TREND_CLASS", "Trend direction", string(ts.TrendClass))
	l.num("TS_VOLATILITY_RATIO", "Volatility of period-over-period changes relative to the mean", ts.VolatilityRatio)
	l.add("TS_VOLATILITY_BAND", "Volatility band", string(ts.VolatilityBand))
	l.num("TS_WEEKLY_STRENGTH", "Weekday pattern strength", ts.WeeklyPatternStrength)
	l.num("TS_MONTHLY_STRENGTH", "Monthly pattern strength", ts.MonthlyPatternStrength)
	for i, cp := range ts.ChangePoints {
		value := fmt.Sprintf("%s at position %d", signed(cp.ShiftMagnitude), cp.Position)
		if cp.Label != "" {
			value = fmt.Sprintf("%s at %s", signed(cp.ShiftMagnitude), cp.Label)
		}
		l.add(fmt.Sprintf("TS_CHANGE_POINT_%d", i+1), fmt.Sprintf("Level shift #%d", i+1), value)
	}
}

func compileSegments(l *factList, segs []datatypes.SegmentBreakdown, sensitive bool) {
	for i, s := range segs {
		n := i + 1
		if !sensitive {
			l.add(fmt.Sprintf("SEG_LABEL_%d", n), fmt.Sprintf("Segment #%d label", n), s.Label)
		}
		l.num(fmt.Sprintf("SEG_VALUE_%d", n), fmt.Sprintf("Segment #%d total contribution", n), s.Contribution)
		l.num(fmt.Sprintf("SEG_SHARE_%d", n), fmt.Sprintf("Segment #%d share of total (%%)", n), s.SharePct)
		l.num(fmt.Sprintf("SEG_STABILITY_%d", n), fmt.Sprintf("Segment #%d stability score", n), s.StabilityScore)
		l.add(fmt.Sprintf("SEG_OUTLIER_%d", n), fmt.Sprintf("Segment #%d share is an outlier", n), strconv.FormatBool(s.IsOutlier))
	}
}

func compileForecast(l *factList, f datatypes.ForecastPack) {
	if len(f.Methods) == 0 {
		return
	}
	l.count("FORECAST_HORIZON", "Forecast horizon in periods", f.Horizon)
	for _, m := range f.Methods {
		tok := MethodToken(m.Method)
		l.num("FORECAST_"+tok+"_RMSE", m.Method+" forecast in-sample RMSE", m.RMSE)
		l.num("FORECAST_"+tok+"_RESIDUAL_STD", m.Method+" forecast residual standard deviation", m.ResidualStdDev)
		l.add("FORECAST_"+tok+"_CONFIDENCE", m.Method+" forecast confidence", m.Confidence)
		if len(m.Points) > 0 {
			last := m.Points[len(m.Points)-1]
			l.num("FORECAST_"+tok+"_FINAL", m.Method+" projected value at the horizon", last.Value)
		}
	}
}

func compileWhatIf(l *factList, w *datatypes.WhatIfConclusion) {
	l.num("SCN_DELTA_MEAN", "Scenario change in mean", w.DeltaMean)
	l.num("SCN_DELTA_SUM", "Scenario change in total", w.DeltaSum)
	l.num("SCN_DELTA_MAX", "Scenario change in maximum", w.DeltaMax)
	l.num("SCN_DELTA_VOLATILITY", "Scenario change in standard deviation", w.DeltaVolatility)
	l.num("SCN_DELTA_TREND_SLOPE", "Scenario change in trend slope", w.DeltaTrendSlope)
	for i, d := range w.TopDrivers {
		l.add(fmt.Sprintf("SCN_DRIVER_%d", i+1), fmt.Sprintf("Scenario driver #%d", i+1), d)
	}
}

// MetricToken turns a metric name into the upper-snake token used in ids.
// An empty or symbol-only name becomes VALUE.
func MetricToken(metric string) string {
	var b strings.Builder
	underscore := false
	for _, r := range metric {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToUpper(r))
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	tok := strings.TrimRight(b.String(), "_")
	if tok == "" {
		return "VALUE"
	}
	return tok
}

// MethodToken maps a forecast method name to its id token.
func MethodToken(method string) string {
	switch method {
	case datatypes.MethodNaive:
		return "NAIVE"
	case datatypes.MethodMovingAverage:
		return "MOVING_AVERAGE"
	case datatypes.MethodLinearRegression:
		return "LINEAR_REGRESSION"
	default:
		return MetricToken(method)
	}
}

// FormatNumber renders v rounded to four decimals without trailing zeros.
func FormatNumber(v float64) string {
	r := math.Round(v*10000) / 10000
	if r == 0 {
		r = 0 // normalizes -0
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}

func signed(v float64) string {
	s := FormatNumber(v)
	if v > 0 && s != "0" {
		return "+" + s
	}
	return s
}
