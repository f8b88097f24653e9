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
	"sort"

	"github.com/AleutianAI/AleutianInsight/services/insights/datatypes"
)

// Segment limits.
const (
	MinSegments     = 3
	MaxSegments     = 20
	DefaultSegments = 8

	outlierSigma = 2.0
)

// ClampSegments bounds a configured segment count to [MinSegments, MaxSegments].
func ClampSegments(n int) int {
	if n <= 0 {
		return DefaultSegments
	}
	if n < MinSegments {
		return MinSegments
	}
	if n > MaxSegments {
		return MaxSegments
	}
	return n
}

// RedactedSegmentLabel is the placeholder used for segment n in sensitive mode.
func RedactedSegmentLabel(n int) string {
	return fmt.Sprintf("Segment %d", n)
}

type segmentAcc struct {
	label  string
	order  int
	values []float64
}

// Segments ranks contributions per segment.
//
// # Description
//
// Points are grouped by series name when the chart has more than one
// series, otherwise by x label. Segments are ranked by absolute total
// contribution and the top maxSegments (clamped to 3..20) are kept. Share
// is the contribution over the sum of absolute contributions of all
// segments. A kept segment is an outlier when its share deviates from the
// mean kept share by more than two standard deviations.
//
// # Inputs
//
//   - points: Extracted chart points.
//   - maxSegments: Requested cap, clamped.
//   - sensitive: Replace labels with "Segment <n>".
//
// # Outputs
//
//   - []datatypes.SegmentBreakdown: Ranked segments, never nil.
func Segments(points []datatypes.SeriesPoint, maxSegments int, sensitive bool) []datatypes.SegmentBreakdown {
	out := []datatypes.SegmentBreakdown{}
	if len(points) == 0 {
		return out
	}
	bySeries := distinctSeries(points) > 1

	groups := make(map[string]*segmentAcc)
	for _, p := range points {
		label := p.XLabel
		if bySeries {
			label = p.Series
		}
		acc, ok := groups[label]
		if !ok {
			acc = &segmentAcc{label: label, order: len(groups)}
			groups[label] = acc
		}
		acc.values = append(acc.values, p.Y)
	}

	all := make([]*segmentAcc, 0, len(groups))
	grandAbs := 0.0
	for _, acc := range groups {
		all = append(all, acc)
		grandAbs += math.Abs(Sum(acc.values))
	}
	sort.SliceStable(all, func(i, j int) bool {
		ti, tj := math.Abs(Sum(all[i].values)), math.Abs(Sum(all[j].values))
		if ti != tj {
			return ti > tj
		}
		return all[i].order < all[j].order
	})

	limit := ClampSegments(maxSegments)
	if len(all) > limit {
		all = all[:limit]
	}

	shares := make([]float64, len(all))
	for i, acc := range all {
		total := Sum(acc.values)
		share := 0.0
		if grandAbs > epsilon {
			share = total / grandAbs * 100
		}
		shares[i] = share
		label := acc.label
		if sensitive {
			label = RedactedSegmentLabel(i + 1)
		}
		out = append(out, datatypes.SegmentBreakdown{
			Label:          label,
			Contribution:   total,
			SharePct:       share,
			StabilityScore: stability(acc.values),
		})
	}

	meanShare := Mean(shares)
	stdShare := StdDev(shares)
	if stdShare > epsilon {
		for i := range out {
			out[i].IsOutlier = math.Abs(shares[i]-meanShare) > outlierSigma*stdShare
		}
	}
	return out
}

// stability is 1 minus the coefficient of variation, bounded to [0, 1].
func stability(values []float64) float64 {
	if len(values) < 2 {
		return 1
	}
	mean := Mean(values)
	if math.Abs(mean) < epsilon {
		return 0
	}
	cv := StdDev(values) / math.Abs(mean)
	return 1 - math.Min(1, cv)
}

func distinctSeries(points []datatypes.SeriesPoint) int {
	seen := make(map[string]struct{})
	for _, p := range points {
		seen[p.Series] = struct{}{}
	}
	return len(seen)
}
