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
	"fmt"
	"time"
)

// Report size limits. Lists longer than these are clamped during
// normalization; headline and summary longer than these are rejected.
const (
	MaxHeadlineRunes         = 120
	MaxExecutiveSummaryRunes = 600
	MaxKeyFindings           = 7
	MinFallbackKeyFindings   = 3
	MaxDrivers               = 6
	MaxRisks                 = 6
	MaxProjectionMethods     = 3
	MaxActions               = 6
	MaxNextQuestions         = 8
	MaxCitations             = 20
	MaxEvidenceIDsPerItem    = 8
	MaxTopEvidenceIDs        = 10
)

// Finding severities.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// KeyFinding is one headline observation of the report.
type KeyFinding struct {
	Title       string   `json:"title"`
	Narrative   string   `json:"narrative"`
	Severity    string   `json:"severity" validate:"oneof=low medium high"`
	EvidenceIDs []string `json:"evidenceIds" validate:"max=8"`
}

// Driver explains what moves the metric.
type Driver struct {
	Title       string   `json:"title"`
	Narrative   string   `json:"narrative"`
	EvidenceIDs []string `json:"evidenceIds"`
}

// Risk is a caveat on the data or the analysis.
type Risk struct {
	Title       string   `json:"title"`
	Narrative   string   `json:"narrative"`
	EvidenceIDs []string `json:"evidenceIds"`
}

// Action is a recommended next step.
type Action struct {
	Title       string   `json:"title"`
	Narrative   string   `json:"narrative"`
	EvidenceIDs []string `json:"evidenceIds"`
}

// ProjectionNarrative describes one forecast method in prose.
type ProjectionNarrative struct {
	Method      string   `json:"method"`
	Narrative   string   `json:"narrative"`
	EvidenceIDs []string `json:"evidenceIds"`
}

// Projections groups the per-method narratives and an overall conclusion.
type Projections struct {
	Methods    []ProjectionNarrative `json:"methods"`
	Conclusion string                `json:"conclusion"`
}

// Citation pairs an evidence id with the claim it supports.
type Citation struct {
	EvidenceID string `json:"evidenceId"`
	ShortClaim string `json:"shortClaim"`
}

// ReportMeta describes how the report was produced.
type ReportMeta struct {
	Provider        string    `json:"provider"`
	Model           string    `json:"model"`
	Language        string    `json:"language"`
	EvidenceVersion string    `json:"evidenceVersion"`
	GeneratedAt     time.Time `json:"generatedAt"`
	Fallback        bool      `json:"fallback"`
}

// DeepInsightReport is the narrative report returned to callers.
//
// Invariant: every evidence id referenced anywhere in an accepted report is
// present in the facts of the EvidencePack it was produced from.
type DeepInsightReport struct {
	Headline           string       `json:"headline" validate:"required,max=120"`
	ExecutiveSummary   string       `json:"executiveSummary" validate:"required,max=600"`
	KeyFindings        []KeyFinding `json:"keyFindings" validate:"min=1,max=7,dive"`
	Drivers            []Driver     `json:"drivers" validate:"max=6"`
	RisksAndCaveats    []Risk       `json:"risksAndCaveats" validate:"max=6"`
	Projections        Projections  `json:"projections"`
	RecommendedActions []Action     `json:"recommendedActions" validate:"max=6"`
	NextQuestions      []string     `json:"nextQuestions" validate:"max=8"`
	Citations          []Citation   `json:"citations" validate:"max=20"`
	Meta               ReportMeta   `json:"meta"`
}

// ValidateStructure checks headline and summary presence and length, the
// key finding count, list sizes and severities. Lengths are in runes.
func (r *DeepInsightReport) ValidateStructure() error {
	if err := insightValidate.Struct(r); err != nil {
		return fmt.Errorf("report structure: %w", err)
	}
	return nil
}

// EvidenceIDs returns every evidence id referenced by the report in
// document order, duplicates included.
func (r *DeepInsightReport) EvidenceIDs() []string {
	var ids []string
	for _, f := range r.KeyFindings {
		ids = append(ids, f.EvidenceIDs...)
	}
	for _, d := range r.Drivers {
		ids = append(ids, d.EvidenceIDs...)
	}
	for _, k := range r.RisksAndCaveats {
		ids = append(ids, k.EvidenceIDs...)
	}
	for _, m := range r.Projections.Methods {
		ids = append(ids, m.EvidenceIDs...)
	}
	for _, a := range r.RecommendedActions {
		ids = append(ids, a.EvidenceIDs...)
	}
	for _, c := range r.Citations {
		ids = append(ids, c.EvidenceID)
	}
	return ids
}

// Explainability summarizes which evidence a report relied on.
type Explainability struct {
	EvidenceUsedCount  int      `json:"evidenceUsedCount"`
	TopEvidenceIDsUsed []string `json:"topEvidenceIdsUsed"`
}
