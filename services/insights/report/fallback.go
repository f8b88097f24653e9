// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianInsight/services/insights/datatypes"
	"github.com/AleutianAI/AleutianInsight/services/insights/evidence"
)

// Fallback report metadata.
const (
	FallbackProvider = "fallback"
	FallbackModel    = "deterministic"
)

// highNullRate marks a column null rate worth a caveat.
const highNullRate = 0.2

// fallbackWriter collects report items while tracking which facts exist.
type fallbackWriter struct {
	pack  *datatypes.EvidencePack
	facts map[string]datatypes.EvidenceFact
	cited []string
	seen  map[string]struct{}
}

// cite keeps only ids present in the pack and remembers them for the
// citation list.
func (w *fallbackWriter) cite(ids ...string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := w.facts[id]; !ok {
			continue
		}
		out = append(out, id)
		if _, dup := w.seen[id]; !dup {
			w.seen[id] = struct{}{}
			w.cited = append(w.cited, id)
		}
	}
	return clamp(out, datatypes.MaxEvidenceIDsPerItem)
}

// value returns the published value of a fact, or v formatted when the fact
// is absent.
func (w *fallbackWriter) value(id string, v float64) string {
	if f, ok := w.facts[id]; ok {
		return f.Value
	}
	return evidence.FormatNumber(v)
}

func (w *fallbackWriter) metricName() string {
	if w.pack.Distribution != nil && strings.TrimSpace(w.pack.Distribution.Metric) != "" {
		return w.pack.Distribution.Metric
	}
	return "the metric"
}

// Fallback builds a report from pack values alone.
//
// # Description
//
// Findings cover the trend, the mean and P95, the best forecast method, the
// top segment and the scenario deltas, padded with data quality findings up
// to the minimum of three. Only ids present in pack.Facts are cited, so the
// result always passes Validate against the same pack. One risk states that
// fallback content is active.
//
// # Inputs
//
//   - pack: The evidence pack.
//   - reason: Why the model report is not used.
//   - language: Carried into the metadata; empty means DefaultLanguage.
//   - now: Generation timestamp.
//
// # Outputs
//
//   - *datatypes.DeepInsightReport: Never nil.
func Fallback(pack *datatypes.EvidencePack, reason, language string, now time.Time) *datatypes.DeepInsightReport {
	if strings.TrimSpace(language) == "" {
		language = DefaultLanguage
	}
	w := &fallbackWriter{
		pack:  pack,
		facts: pack.FactIndex(),
		seen:  make(map[string]struct{}),
	}

	r := &datatypes.DeepInsightReport{
		KeyFindings:        w.findings(),
		Drivers:            w.drivers(),
		RisksAndCaveats:    w.risks(reason),
		Projections:        w.projections(),
		RecommendedActions: w.actions(),
		NextQuestions:      w.questions(),
	}
	r.Headline = truncateRunes(w.headline(), datatypes.MaxHeadlineRunes)
	r.ExecutiveSummary = truncateRunes(w.summary(r), datatypes.MaxExecutiveSummaryRunes)

	citations := make([]datatypes.Citation, 0, len(w.cited))
	for _, id := range w.cited {
		citations = append(citations, datatypes.Citation{EvidenceID: id, ShortClaim: w.facts[id].ShortClaim})
	}
	r.Citations = clamp(citations, datatypes.MaxCitations)
	r.Meta = datatypes.ReportMeta{
		Provider:        FallbackProvider,
		Model:           FallbackModel,
		Language:        language,
		EvidenceVersion: pack.Version,
		GeneratedAt:     now.UTC(),
		Fallback:        true,
	}
	return r
}

func (w *fallbackWriter) headline() string {
	name := w.metricName()
	if ts := w.pack.TimeSeries; ts != nil {
		return fmt.Sprintf("%s is %s over %d periods", capitalize(name), strings.ToLower(string(ts.TrendClass)), ts.PointCount)
	}
	if d := w.pack.Distribution; d != nil {
		return fmt.Sprintf("%s averages %s across %d observations", capitalize(name), w.value("DIST_MEAN_"+evidence.MetricToken(d.Metric), d.Mean), d.Count)
	}
	return fmt.Sprintf("Summary of %s", name)
}

func (w *fallbackWriter) summary(r *datatypes.DeepInsightReport) string {
	parts := make([]string, 0, len(r.KeyFindings)+1)
	for _, f := range r.KeyFindings {
		parts = append(parts, f.Narrative)
	}
	parts = append(parts, "This summary was generated deterministically from the evidence pack.")
	return strings.Join(parts, " ")
}

func (w *fallbackWriter) findings() []datatypes.KeyFinding {
	var out []datatypes.KeyFinding
	name := w.metricName()

	if ts := w.pack.TimeSeries; ts != nil {
		severity := datatypes.SeverityLow
		if ts.TrendClass == datatypes.TrendFalling {
			severity = datatypes.SeverityMedium
		}
		out = append(out, datatypes.KeyFinding{
			Title: fmt.Sprintf("Trend is %s", strings.ToLower(string(ts.TrendClass))),
			Narrative: fmt.Sprintf("Across %d dates %s moves by %s per period.",
				ts.PointCount, name, w.value("TS_TREND_SLOPE", ts.TrendSlope)),
			Severity:    severity,
			EvidenceIDs: w.cite("TS_TREND_CLASS", "TS_TREND_SLOPE", "TS_POINT_COUNT"),
		})
	}

	if d := w.pack.Distribution; d != nil {
		tok := evidence.MetricToken(d.Metric)
		severity := datatypes.SeverityLow
		if w.pack.Quality.ExtremeSkew {
			severity = datatypes.SeverityMedium
		}
		out = append(out, datatypes.KeyFinding{
			Title: "Typical level and upper range",
			Narrative: fmt.Sprintf("The mean of %s is %s and the 95th percentile is %s.",
				name, w.value("DIST_MEAN_"+tok, d.Mean), w.value("DIST_P95_"+tok, d.P95)),
			Severity:    severity,
			EvidenceIDs: w.cite("DIST_MEAN_"+tok, "DIST_P95_"+tok, "DIST_COUNT_"+tok),
		})
	}

	if best, ok := bestMethod(w.pack.Forecast); ok {
		tok := evidence.MethodToken(best.Method)
		severity := datatypes.SeverityLow
		if best.Confidence == "low" {
			severity = datatypes.SeverityMedium
		}
		out = append(out, datatypes.KeyFinding{
			Title: fmt.Sprintf("Best fitting baseline is %s", best.Method),
			Narrative: fmt.Sprintf("The %s baseline has the lowest in-sample RMSE (%s) with %s confidence.",
				best.Method, w.value("FORECAST_"+tok+"_RMSE", best.RMSE), best.Confidence),
			Severity:    severity,
			EvidenceIDs: w.cite("FORECAST_"+tok+"_RMSE", "FORECAST_"+tok+"_CONFIDENCE", "FORECAST_"+tok+"_FINAL"),
		})
	}

	if len(w.pack.Segments) > 0 {
		top := w.pack.Segments[0]
		severity := datatypes.SeverityLow
		if top.IsOutlier {
			severity = datatypes.SeverityHigh
		}
		out = append(out, datatypes.KeyFinding{
			Title: "Largest contributing segment",
			Narrative: fmt.Sprintf("%s contributes %s%% of the total.",
				top.Label, w.value("SEG_SHARE_1", top.SharePct)),
			Severity:    severity,
			EvidenceIDs: w.cite("SEG_LABEL_1", "SEG_SHARE_1", "SEG_VALUE_1", "SEG_OUTLIER_1"),
		})
	}

	if s := w.pack.WhatIf; s != nil {
		out = append(out, datatypes.KeyFinding{
			Title: "Scenario impact",
			Narrative: fmt.Sprintf("The scenario changes the mean by %s and the total by %s.",
				w.value("SCN_DELTA_MEAN", s.DeltaMean), w.value("SCN_DELTA_SUM", s.DeltaSum)),
			Severity:    datatypes.SeverityMedium,
			EvidenceIDs: w.cite("SCN_DELTA_MEAN", "SCN_DELTA_SUM", "SCN_DRIVER_1"),
		})
	}

	q := w.pack.Quality
	padding := []datatypes.KeyFinding{
		{
			Title:       "Data volume",
			Narrative:   fmt.Sprintf("The dataset has %d rows and the chart %d points.", q.RowCount, q.PointCount),
			Severity:    datatypes.SeverityLow,
			EvidenceIDs: []string{"DQ_ROW_COUNT", "DQ_POINT_COUNT"},
		},
		{
			Title: "Missing values",
			Narrative: fmt.Sprintf("Average null rate is %s and the highest column null rate is %s.",
				w.value("DQ_AVG_NULL_RATE", q.AvgNullRate), w.value("DQ_MAX_NULL_RATE", q.MaxNullRate)),
			Severity:    nullSeverity(q.MaxNullRate),
			EvidenceIDs: []string{"DQ_AVG_NULL_RATE", "DQ_MAX_NULL_RATE"},
		},
		{
			Title:       "Duplicate estimate",
			Narrative:   fmt.Sprintf("Estimated duplicate rate is %s.", w.value("DQ_DUPLICATE_RATE_EST", q.DuplicateRateEstimate)),
			Severity:    datatypes.SeverityLow,
			EvidenceIDs: []string{"DQ_DUPLICATE_RATE_EST"},
		},
	}
	for _, p := range padding {
		if len(out) >= datatypes.MinFallbackKeyFindings {
			break
		}
		p.EvidenceIDs = w.cite(p.EvidenceIDs...)
		out = append(out, p)
	}
	return clamp(out, datatypes.MaxKeyFindings)
}

func (w *fallbackWriter) drivers() []datatypes.Driver {
	var out []datatypes.Driver
	for i, s := range w.pack.Segments {
		if i == 3 {
			break
		}
		n := i + 1
		out = append(out, datatypes.Driver{
			Title:     s.Label,
			Narrative: fmt.Sprintf("%s accounts for %s%% of the total.", s.Label, w.value(fmt.Sprintf("SEG_SHARE_%d", n), s.SharePct)),
			EvidenceIDs: w.cite(fmt.Sprintf("SEG_LABEL_%d", n), fmt.Sprintf("SEG_SHARE_%d", n),
				fmt.Sprintf("SEG_VALUE_%d", n)),
		})
	}
	if s := w.pack.WhatIf; s != nil {
		for i, d := range s.TopDrivers {
			if len(out) >= datatypes.MaxDrivers {
				break
			}
			out = append(out, datatypes.Driver{
				Title:       fmt.Sprintf("Scenario driver %d", i+1),
				Narrative:   fmt.Sprintf("Largest scenario change: %s.", d),
				EvidenceIDs: w.cite(fmt.Sprintf("SCN_DRIVER_%d", i+1)),
			})
		}
	}
	return clamp(out, datatypes.MaxDrivers)
}

func (w *fallbackWriter) risks(reason string) []datatypes.Risk {
	if reason == "" {
		reason = "unavailable"
	}
	out := []datatypes.Risk{{
		Title: "Fallback content is active",
		Narrative: fmt.Sprintf("The model report was not used (%s). This report is generated deterministically from the evidence pack.",
			reason),
		EvidenceIDs: []string{},
	}}

	q := w.pack.Quality
	if q.MaxNullRate >= highNullRate {
		narrative := fmt.Sprintf("Up to %s of values are missing in a column.", w.value("DQ_MAX_NULL_RATE", q.MaxNullRate))
		if q.WorstNullColumn != "" && !w.pack.SensitiveMode {
			narrative = fmt.Sprintf("Column %s is missing %s of its values.", q.WorstNullColumn, w.value("DQ_MAX_NULL_RATE", q.MaxNullRate))
		}
		out = append(out, datatypes.Risk{
			Title:       "Missing data",
			Narrative:   narrative,
			EvidenceIDs: w.cite("DQ_MAX_NULL_RATE", "DQ_WORST_NULL_COLUMN"),
		})
	}
	if q.ExtremeSkew {
		out = append(out, datatypes.Risk{
			Title:       "Skewed distribution",
			Narrative:   "The mean is pulled away from the median; prefer the median for typical values.",
			EvidenceIDs: w.cite("DQ_EXTREME_SKEW"),
		})
	}
	if q.UnparsedDateCount > 0 {
		out = append(out, datatypes.Risk{
			Title:       "Unparsed dates",
			Narrative:   fmt.Sprintf("%d date-like labels could not be parsed and are excluded from time analysis.", q.UnparsedDateCount),
			EvidenceIDs: w.cite("DQ_UNPARSED_DATES"),
		})
	}
	if ts := w.pack.TimeSeries; ts != nil && ts.VolatilityBand == datatypes.VolatilityHigh {
		out = append(out, datatypes.Risk{
			Title:       "High volatility",
			Narrative:   fmt.Sprintf("Period-over-period changes are large relative to the mean (ratio %s).", w.value("TS_VOLATILITY_RATIO", ts.VolatilityRatio)),
			EvidenceIDs: w.cite("TS_VOLATILITY_RATIO", "TS_VOLATILITY_BAND"),
		})
	}
	if w.pack.Truncated {
		out = append(out, datatypes.Risk{
			Title:       "Evidence truncated",
			Narrative:   "The evidence pack was reduced to fit its size budget.",
			EvidenceIDs: []string{},
		})
	}
	return clamp(out, datatypes.MaxRisks)
}

func (w *fallbackWriter) projections() datatypes.Projections {
	p := datatypes.Projections{Methods: []datatypes.ProjectionNarrative{}}
	f := w.pack.Forecast
	for _, m := range f.Methods {
		tok := evidence.MethodToken(m.Method)
		final := 0.0
		if len(m.Points) > 0 {
			final = m.Points[len(m.Points)-1].Value
		}
		p.Methods = append(p.Methods, datatypes.ProjectionNarrative{
			Method: m.Method,
			Narrative: fmt.Sprintf("Projects %s by the end of the %s (RMSE %s, %s confidence).",
				w.value("FORECAST_"+tok+"_FINAL", final), forecastLabel(f), w.value("FORECAST_"+tok+"_RMSE", m.RMSE), m.Confidence),
			EvidenceIDs: w.cite("FORECAST_"+tok+"_FINAL", "FORECAST_"+tok+"_RMSE", "FORECAST_"+tok+"_CONFIDENCE"),
		})
	}
	p.Methods = clamp(p.Methods, datatypes.MaxProjectionMethods)

	if best, ok := bestMethod(f); ok {
		p.Conclusion = fmt.Sprintf("The %s baseline fits the history best; treat all projections as baselines, not predictions.", best.Method)
	} else {
		p.Conclusion = "Not enough history for a forecast."
	}
	return p
}

func (w *fallbackWriter) actions() []datatypes.Action {
	out := []datatypes.Action{}
	if len(w.pack.Segments) > 0 {
		out = append(out, datatypes.Action{
			Title:       "Review the largest segment",
			Narrative:   "Check whether the leading segment's contribution is expected and sustainable.",
			EvidenceIDs: w.cite("SEG_SHARE_1"),
		})
	}
	if ts := w.pack.TimeSeries; ts != nil && len(ts.ChangePoints) > 0 {
		out = append(out, datatypes.Action{
			Title:       "Investigate the largest level shift",
			Narrative:   "Look for events around the first detected change point.",
			EvidenceIDs: w.cite("TS_CHANGE_POINT_1"),
		})
	}
	if _, ok := bestMethod(w.pack.Forecast); ok {
		out = append(out, datatypes.Action{
			Title:       "Track actuals against the baseline",
			Narrative:   "Compare upcoming values with the best fitting projection and its band.",
			EvidenceIDs: w.cite("FORECAST_HORIZON"),
		})
	}
	out = append(out, datatypes.Action{
		Title:       "Retry the narrative report",
		Narrative:   "Request the report again once the model backend is available.",
		EvidenceIDs: []string{},
	})
	return clamp(out, datatypes.MaxActions)
}

func (w *fallbackWriter) questions() []string {
	name := w.metricName()
	out := []string{
		fmt.Sprintf("What explains the recent movement in %s?", name),
		"Which segments drive the change over time?",
		"How does the picture change with a different time bin or filter?",
	}
	if w.pack.WhatIf == nil {
		out = append(out, "What happens under a what-if scenario on the largest driver?")
	}
	return clamp(out, datatypes.MaxNextQuestions)
}

// bestMethod returns the method with the lowest RMSE, first wins on ties.
func bestMethod(f datatypes.ForecastPack) (datatypes.ForecastMethod, bool) {
	if len(f.Methods) == 0 {
		return datatypes.ForecastMethod{}, false
	}
	best := f.Methods[0]
	for _, m := range f.Methods[1:] {
		if m.RMSE < best.RMSE {
			best = m
		}
	}
	return best, true
}

func forecastLabel(f datatypes.ForecastPack) string {
	if f.Label != "" {
		return f.Label
	}
	return fmt.Sprintf("next %d periods", f.Horizon)
}

func nullSeverity(rate float64) string {
	if rate >= highNullRate {
		return datatypes.SeverityMedium
	}
	return datatypes.SeverityLow
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	return strings.ToUpper(string(r[0])) + string(r[1:])
}

// truncateRunes shortens s to at most n runes, ending with an ellipsis when
// cut.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
