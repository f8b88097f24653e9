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
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/AleutianInsight/services/insights/datatypes"
	"github.com/AleutianAI/AleutianInsight/services/llm"
)

// maxListedUnknownIDs bounds how many unknown ids an error message names.
const maxListedUnknownIDs = 5

var (
	// ErrMalformedOutput means the model output could not be decoded into a
	// report.
	ErrMalformedOutput = errors.New("malformed model output")

	// ErrInvalidStructure means the decoded report breaks a structural rule.
	ErrInvalidStructure = errors.New("invalid report structure")
)

// UnknownEvidenceError rejects a report that cites ids missing from the
// evidence pack.
type UnknownEvidenceError struct {
	IDs []string
}

func (e *UnknownEvidenceError) Error() string {
	listed := e.IDs
	if len(listed) > maxListedUnknownIDs {
		listed = listed[:maxListedUnknownIDs]
	}
	return "unknown evidence ids: " + strings.Join(listed, ", ")
}

// =============================================================================
// Parsing
// =============================================================================

// Parse decodes a structured-generation result into a report.
//
// # Description
//
// RawJSON is preferred. Otherwise the JSON document is extracted from
// RawText: the whole text, then a fenced code block, then the span from the
// first '{' to the last '}'. Any decode failure, including a panic in a
// decoder, is reported as ErrMalformedOutput.
func Parse(res *llm.StructuredResult) (report *datatypes.DeepInsightReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			report = nil
			err = fmt.Errorf("%w: %v", ErrMalformedOutput, r)
		}
	}()

	if res == nil {
		return nil, fmt.Errorf("%w: empty result", ErrMalformedOutput)
	}
	if len(res.RawJSON) > 0 {
		var r datatypes.DeepInsightReport
		if err := json.Unmarshal(res.RawJSON, &r); err == nil {
			return &r, nil
		}
	}

	text := strings.TrimSpace(res.RawText)
	var r datatypes.DeepInsightReport
	if err := json.Unmarshal([]byte(text), &r); err == nil {
		return &r, nil
	}
	if cleaned := extractJSON(text); cleaned != "" {
		if err := json.Unmarshal([]byte(cleaned), &r); err == nil {
			return &r, nil
		}
	}
	return nil, fmt.Errorf("%w: unable to parse as JSON", ErrMalformedOutput)
}

// extractJSON pulls a JSON object out of markdown fences or surrounding prose.
func extractJSON(response string) string {
	for _, startMarker := range []string{"```json\n", "```json\r\n", "```\n", "```\r\n"} {
		startIdx := strings.Index(response, startMarker)
		if startIdx == -1 {
			continue
		}
		remaining := response[startIdx+len(startMarker):]
		endIdx := strings.Index(remaining, "```")
		if endIdx == -1 {
			continue
		}
		return strings.TrimSpace(remaining[:endIdx])
	}

	startIdx := strings.Index(response, "{")
	endIdx := strings.LastIndex(response, "}")
	if startIdx != -1 && endIdx > startIdx {
		return response[startIdx : endIdx+1]
	}
	return ""
}

// =============================================================================
// Normalization
// =============================================================================

// Normalize trims every string, drops empty list entries, clamps lists to
// their maxima and maps severities onto low, medium and high. Headline and
// summary are trimmed but never shortened; oversize text fails validation.
func Normalize(r *datatypes.DeepInsightReport) {
	r.Headline = strings.TrimSpace(r.Headline)
	r.ExecutiveSummary = strings.TrimSpace(r.ExecutiveSummary)

	findings := r.KeyFindings[:0]
	for _, f := range r.KeyFindings {
		f.Title = strings.TrimSpace(f.Title)
		f.Narrative = strings.TrimSpace(f.Narrative)
		if f.Title == "" && f.Narrative == "" {
			continue
		}
		f.Severity = normalizeSeverity(f.Severity)
		f.EvidenceIDs = normalizeIDs(f.EvidenceIDs)
		findings = append(findings, f)
	}
	r.KeyFindings = clamp(findings, datatypes.MaxKeyFindings)

	drivers := r.Drivers[:0]
	for _, d := range r.Drivers {
		d.Title, d.Narrative = strings.TrimSpace(d.Title), strings.TrimSpace(d.Narrative)
		if d.Title == "" && d.Narrative == "" {
			continue
		}
		d.EvidenceIDs = normalizeIDs(d.EvidenceIDs)
		drivers = append(drivers, d)
	}
	r.Drivers = clamp(drivers, datatypes.MaxDrivers)

	risks := r.RisksAndCaveats[:0]
	for _, k := range r.RisksAndCaveats {
		k.Title, k.Narrative = strings.TrimSpace(k.Title), strings.TrimSpace(k.Narrative)
		if k.Title == "" && k.Narrative == "" {
			continue
		}
		k.EvidenceIDs = normalizeIDs(k.EvidenceIDs)
		risks = append(risks, k)
	}
	r.RisksAndCaveats = clamp(risks, datatypes.MaxRisks)

	methods := r.Projections.Methods[:0]
	for _, m := range r.Projections.Methods {
		m.Method, m.Narrative = strings.TrimSpace(m.Method), strings.TrimSpace(m.Narrative)
		if m.Narrative == "" {
			continue
		}
		m.EvidenceIDs = normalizeIDs(m.EvidenceIDs)
		methods = append(methods, m)
	}
	r.Projections.Methods = clamp(methods, datatypes.MaxProjectionMethods)
	r.Projections.Conclusion = strings.TrimSpace(r.Projections.Conclusion)

	actions := r.RecommendedActions[:0]
	for _, a := range r.RecommendedActions {
		a.Title, a.Narrative = strings.TrimSpace(a.Title), strings.TrimSpace(a.Narrative)
		if a.Title == "" && a.Narrative == "" {
			continue
		}
		a.EvidenceIDs = normalizeIDs(a.EvidenceIDs)
		actions = append(actions, a)
	}
	r.RecommendedActions = clamp(actions, datatypes.MaxActions)

	questions := r.NextQuestions[:0]
	for _, q := range r.NextQuestions {
		if q = strings.TrimSpace(q); q != "" {
			questions = append(questions, q)
		}
	}
	r.NextQuestions = clamp(questions, datatypes.MaxNextQuestions)

	citations := r.Citations[:0]
	for _, c := range r.Citations {
		c.EvidenceID, c.ShortClaim = strings.TrimSpace(c.EvidenceID), strings.TrimSpace(c.ShortClaim)
		if c.EvidenceID == "" {
			continue
		}
		citations = append(citations, c)
	}
	r.Citations = clamp(citations, datatypes.MaxCitations)
}

func clamp[T any](items []T, limit int) []T {
	if items == nil {
		return []T{}
	}
	if len(items) > limit {
		return items[:limit]
	}
	return items
}

func normalizeSeverity(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case datatypes.SeverityHigh, "critical", "severe":
		return datatypes.SeverityHigh
	case datatypes.SeverityLow, "info", "minor":
		return datatypes.SeverityLow
	default:
		return datatypes.SeverityMedium
	}
}

// normalizeIDs trims ids, drops blanks and duplicates, and clamps the list.
func normalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return clamp(out, datatypes.MaxEvidenceIDsPerItem)
}

// =============================================================================
// Validation
// =============================================================================

// Validate checks a normalized report against the facts of its pack.
//
// # Description
//
// Structural rules are checked first: headline and summary present and
// within their rune limits, at least one key finding. Then every evidence id
// referenced anywhere in the report must be present in facts. There is no
// partial acceptance: one unknown id rejects the whole report.
//
// # Outputs
//
//   - error: nil when accepted; wraps ErrInvalidStructure or is an
//     *UnknownEvidenceError otherwise.
func Validate(r *datatypes.DeepInsightReport, facts []datatypes.EvidenceFact) error {
	if r == nil {
		return fmt.Errorf("%w: nil report", ErrInvalidStructure)
	}
	if err := r.ValidateStructure(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidStructure, err)
	}

	if unknown := UnknownEvidenceIDs(r, facts); len(unknown) > 0 {
		return &UnknownEvidenceError{IDs: unknown}
	}
	return nil
}

// UnknownEvidenceIDs lists, in first-seen order and without duplicates, the
// ids r references that no fact carries. Ids are trimmed and blanks ignored,
// so it can run on a report before Normalize.
func UnknownEvidenceIDs(r *datatypes.DeepInsightReport, facts []datatypes.EvidenceFact) []string {
	known := make(map[string]struct{}, len(facts))
	for _, f := range facts {
		known[f.EvidenceID] = struct{}{}
	}
	var unknown []string
	reported := make(map[string]struct{})
	for _, id := range r.EvidenceIDs() {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := known[id]; ok {
			continue
		}
		if _, dup := reported[id]; dup {
			continue
		}
		reported[id] = struct{}{}
		unknown = append(unknown, id)
	}
	return unknown
}

// GroundCitations replaces every citation claim with the claim of the fact
// it cites. Call only on a validated report.
func GroundCitations(r *datatypes.DeepInsightReport, facts []datatypes.EvidenceFact) {
	claims := make(map[string]string, len(facts))
	for _, f := range facts {
		claims[f.EvidenceID] = f.ShortClaim
	}
	for i, c := range r.Citations {
		if claim, ok := claims[c.EvidenceID]; ok {
			r.Citations[i].ShortClaim = claim
		}
	}
}

// Explain counts the distinct evidence ids a report uses and lists the most
// cited ones, most frequent first with ties broken by id.
func Explain(r *datatypes.DeepInsightReport) datatypes.Explainability {
	counts := make(map[string]int)
	for _, id := range r.EvidenceIDs() {
		counts[id]++
	}
	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if counts[ids[i]] != counts[ids[j]] {
			return counts[ids[i]] > counts[ids[j]]
		}
		return ids[i] < ids[j]
	})
	top := ids
	if len(top) > datatypes.MaxTopEvidenceIDs {
		top = top[:datatypes.MaxTopEvidenceIDs]
	}
	return datatypes.Explainability{
		EvidenceUsedCount:  len(counts),
		TopEvidenceIDsUsed: top,
	}
}
