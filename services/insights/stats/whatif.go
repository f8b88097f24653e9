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
	"strconv"

	"github.com/AleutianAI/AleutianInsight/services/insights/datatypes"
)

const maxWhatIfDrivers = 3

// WhatIf compares a simulated series against its baseline.
//
// # Description
//
// Deltas are simulated minus baseline for the mean, sum, max, population
// standard deviation and centered OLS slope. Drivers are the labels with the
// largest absolute per-label delta. When the collaborator supplied a Delta
// series it is used directly; otherwise deltas are aligned by label.
//
// # Outputs
//
//   - *datatypes.WhatIfConclusion: nil when result is nil.
func WhatIf(result *datatypes.ScenarioResult, sensitive bool) *datatypes.WhatIfConclusion {
	if result == nil {
		return nil
	}
	base := labeledValues(result.Baseline)
	sim := labeledValues(result.Simulated)

	c := &datatypes.WhatIfConclusion{
		DeltaMean:       Mean(sim) - Mean(base),
		DeltaSum:        Sum(sim) - Sum(base),
		DeltaMax:        Max(sim) - Max(base),
		DeltaVolatility: StdDev(sim) - StdDev(base),
		DeltaTrendSlope: CenteredSlope(sim) - CenteredSlope(base),
		TopDrivers:      []string{},
	}

	deltas := result.Delta
	if len(deltas) == 0 {
		deltas = alignDeltas(result.Baseline, result.Simulated)
	}
	ranked := make([]datatypes.LabeledValue, len(deltas))
	copy(ranked, deltas)
	sort.SliceStable(ranked, func(i, j int) bool {
		return math.Abs(ranked[i].Value) > math.Abs(ranked[j].Value)
	})
	for i, d := range ranked {
		if i == maxWhatIfDrivers {
			break
		}
		if math.Abs(d.Value) < epsilon {
			break
		}
		label := d.Label
		if sensitive {
			label = fmt.Sprintf("Driver %d", i+1)
		}
		c.TopDrivers = append(c.TopDrivers, fmt.Sprintf("%s: %s", label, signed(d.Value)))
	}
	return c
}

func labeledValues(in []datatypes.LabeledValue) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = v.Value
	}
	return out
}

// alignDeltas pairs baseline and simulated values by label, keeping the
// simulated order.
func alignDeltas(base, sim []datatypes.LabeledValue) []datatypes.LabeledValue {
	baseByLabel := make(map[string]float64, len(base))
	for _, b := range base {
		baseByLabel[b.Label] += b.Value
	}
	out := make([]datatypes.LabeledValue, 0, len(sim))
	for _, s := range sim {
		out = append(out, datatypes.LabeledValue{Label: s.Label, Value: s.Value - baseByLabel[s.Label]})
	}
	return out
}

func signed(v float64) string {
	s := strconv.FormatFloat(math.Round(v*10000)/10000, 'f', -1, 64)
	if v > 0 {
		return "+" + s
	}
	return s
}
