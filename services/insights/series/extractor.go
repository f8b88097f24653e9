// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package series normalizes rendered chart series into ordered points.
//
// # Description
//
// Chart payloads encode points in several shapes: [x, y] pairs, longer
// lists, keyed objects such as {"date": ..., "value": ...} and bare
// scalars. Each raw point is decoded by a small, closed list of shape
// matchers tried in order; the first matcher that accepts the point wins
// and anything no matcher accepts is skipped.
//
// After extraction the point list is downsampled by deterministic stride
// sampling that keeps the first and the last point, so identical inputs
// always produce identical evidence.
package series

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianInsight/services/insights/datatypes"
)

// rawPoint is the decoded form of one encoded chart point.
type rawPoint struct {
	x    any
	hasX bool
	y    float64
}

// shapeMatcher decodes one point shape. ok is false when the shape does
// not apply or the y value is unusable.
type shapeMatcher func(v any) (rawPoint, bool)

// matchers is the ordered, closed set of supported point encodings.
var matchers = []shapeMatcher{
	matchList,
	matchObject,
	matchScalar,
}

// Keys searched, in order, on keyed-object points.
var (
	yKeys = []string{"y", "value", "count", "total", "amount", "metric"}
	xKeys = []string{"x", "date", "time", "timestamp", "label", "name", "category", "key", "period"}
)

// Extract flattens every series into a uniform ordered point list and
// downsamples it to at most maxPoints.
//
// # Inputs
//
//   - chart: Rendered chart series with arbitrary point encodings.
//   - maxPoints: Upper bound on returned points. Values <= 0 disable the cap.
//
// # Outputs
//
//   - []datatypes.SeriesPoint: Points in series order, then point order.
func Extract(chart []datatypes.ChartSeries, maxPoints int) []datatypes.SeriesPoint {
	var points []datatypes.SeriesPoint
	for _, s := range chart {
		name := strings.TrimSpace(s.Name)
		for _, raw := range s.Data {
			rp, ok := decodePoint(raw)
			if !ok {
				continue
			}
			points = append(points, buildPoint(name, rp, len(points)))
		}
	}
	if maxPoints <= 0 {
		return points
	}
	return Downsample(points, maxPoints)
}

// Downsample returns at most limit points chosen by even stride, always
// keeping the first and last point.
func Downsample(points []datatypes.SeriesPoint, limit int) []datatypes.SeriesPoint {
	idx := StrideIndexes(len(points), limit)
	out := make([]datatypes.SeriesPoint, 0, len(idx))
	for _, i := range idx {
		out = append(out, points[i])
	}
	return out
}

// StrideIndexes returns the indexes Downsample would keep for n items.
// Used to sample any slice with the same deterministic rule.
func StrideIndexes(n, limit int) []int {
	if limit <= 0 || n == 0 {
		return nil
	}
	if n <= limit {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	if limit == 1 {
		return []int{0}
	}
	idx := make([]int, 0, limit)
	step := float64(n-1) / float64(limit-1)
	for i := 0; i < limit; i++ {
		j := int(math.Round(float64(i) * step))
		if j >= n {
			j = n - 1
		}
		idx = append(idx, j)
	}
	return idx
}

func decodePoint(raw json.RawMessage) (rawPoint, bool) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return rawPoint{}, false
	}
	for _, m := range matchers {
		if rp, ok := m(v); ok {
			return rp, true
		}
	}
	return rawPoint{}, false
}

// matchList accepts [x, y] pairs and longer lists. y is the last usable
// number after the x position.
func matchList(v any) (rawPoint, bool) {
	list, ok := v.([]any)
	if !ok || len(list) < 2 {
		return rawPoint{}, false
	}
	for i := len(list) - 1; i >= 1; i-- {
		if y, ok := coerceY(list[i]); ok {
			return rawPoint{x: list[0], hasX: list[0] != nil, y: y}, true
		}
	}
	return rawPoint{}, false
}

// matchObject accepts keyed objects. {"value": [x, y]} unwraps to a list.
func matchObject(v any) (rawPoint, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return rawPoint{}, false
	}
	if inner, ok := obj["value"].([]any); ok {
		if rp, ok := matchList(inner); ok {
			return rp, true
		}
	}
	var y float64
	found := false
	for _, k := range yKeys {
		if val, present := lookupKey(obj, k); present {
			if y, found = coerceY(val); found {
				break
			}
		}
	}
	if !found {
		return rawPoint{}, false
	}
	for _, k := range xKeys {
		if val, present := lookupKey(obj, k); present && val != nil {
			return rawPoint{x: val, hasX: true, y: y}, true
		}
	}
	return rawPoint{y: y}, true
}

// matchScalar accepts a bare number or numeric string as y.
func matchScalar(v any) (rawPoint, bool) {
	y, ok := coerceY(v)
	if !ok {
		return rawPoint{}, false
	}
	return rawPoint{y: y}, true
}

// lookupKey finds k in obj ignoring case.
func lookupKey(obj map[string]any, k string) (any, bool) {
	if val, ok := obj[k]; ok {
		return val, true
	}
	for key, val := range obj {
		if strings.EqualFold(key, k) {
			return val, true
		}
	}
	return nil, false
}

// coerceY converts v to a finite float64.
func coerceY(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// buildPoint turns a decoded point into a SeriesPoint, inferring dates.
func buildPoint(series string, rp rawPoint, index int) datatypes.SeriesPoint {
	p := datatypes.SeriesPoint{
		Series: series,
		Y:      rp.y,
		Index:  index,
		XLabel: "#" + strconv.Itoa(index),
	}
	if !rp.hasX {
		return p
	}
	switch x := rp.x.(type) {
	case float64:
		if t, ok := epochToTime(x); ok {
			p.Date = &t
			p.LooksLikeDate = true
			p.XLabel = formatDateLabel(t)
			return p
		}
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			p.XLabel = strconv.FormatFloat(x, 'f', -1, 64)
		}
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return p
		}
		p.XLabel = s
		if t, ok := parseDateString(s); ok {
			p.Date = &t
			p.LooksLikeDate = true
			p.XLabel = formatDateLabel(t)
			return p
		}
		p.LooksLikeDate = looksLikeDate(s)
	case bool:
		p.XLabel = strconv.FormatBool(x)
	}
	return p
}

// DatedCount returns how many points carry a parsed date.
func DatedCount(points []datatypes.SeriesPoint) int {
	n := 0
	for _, p := range points {
		if p.HasDate() {
			n++
		}
	}
	return n
}

// Values returns the y values of points in order.
func Values(points []datatypes.SeriesPoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Y
	}
	return out
}

// DateRange returns the earliest and latest parsed dates.
func DateRange(points []datatypes.SeriesPoint) (time.Time, time.Time, bool) {
	var lo, hi time.Time
	found := false
	for _, p := range points {
		if p.Date == nil {
			continue
		}
		if !found || p.Date.Before(lo) {
			lo = *p.Date
		}
		if !found || p.Date.After(hi) {
			hi = *p.Date
		}
		found = true
	}
	return lo, hi, found
}
