// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package quality scores the dataset and chart points behind an insight.
package quality

import (
	"math"

	"github.com/AleutianAI/AleutianInsight/services/insights/datatypes"
	"github.com/AleutianAI/AleutianInsight/services/insights/series"
)

// ExtremeSkewThreshold is the absolute skewness proxy at or above which the
// distribution is flagged as extremely skewed.
const ExtremeSkewThreshold = 1.5

// Score summarizes data quality signals.
//
// # Description
//
// Column signals come from the profile, point signals from the extracted
// chart points. The duplicate rate is estimated from the most distinct
// column as max(0, 1 - maxDistinct/rowCount). It is an approximation: a
// table whose widest column repeats values will look duplicated even when
// full rows are unique.
//
// # Inputs
//
//   - profile: Dataset profile. May be nil.
//   - points: Extracted chart points.
//   - dist: Distribution statistics of the points. May be nil.
func Score(profile *datatypes.DatasetProfile, points []datatypes.SeriesPoint, dist *datatypes.DistributionStats) datatypes.DatasetQuality {
	q := datatypes.DatasetQuality{PointCount: len(points)}

	if profile != nil {
		q.RowCount = profile.RowCount
		q.ColumnCount = len(profile.Columns)

		sum := 0.0
		maxDistinct := 0
		for i, c := range profile.Columns {
			sum += c.NullRate
			if i == 0 || c.NullRate > q.MaxNullRate {
				q.MaxNullRate = c.NullRate
				q.WorstNullColumn = c.Name
			}
			if c.DistinctCount > maxDistinct {
				maxDistinct = c.DistinctCount
			}
		}
		if q.ColumnCount > 0 {
			q.AvgNullRate = sum / float64(q.ColumnCount)
		}
		if profile.RowCount > 0 {
			q.DuplicateRateEstimate = math.Max(0, 1-float64(maxDistinct)/float64(profile.RowCount))
		}
	}

	for _, p := range points {
		if p.LooksLikeDate && p.Date == nil {
			q.UnparsedDateCount++
		}
		if p.Y < 0 {
			q.NegativeValueCount++
		}
	}

	if first, last, ok := series.DateRange(points); ok {
		q.TimeCoverage = first.Format("2006-01-02") + ".." + last.Format("2006-01-02")
	}
	if dist != nil {
		q.ExtremeSkew = math.Abs(dist.SkewnessProxy) >= ExtremeSkewThreshold
	}
	return q
}
