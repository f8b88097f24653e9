// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package classify detects credentials and personal data in chart labels.
//
// # Description
//
// Charts built from user uploads can carry customer emails, phone numbers
// or keys as series names and x labels. Those labels flow into statistics,
// facts and finally the model prompt. The Engine matches labels against a
// priority-ordered pattern set embedded in the binary and replaces every
// match with a classification placeholder.
//
// # Thread Safety
//
// An Engine is immutable after New and safe for concurrent use.
package classify

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Public is the classification of a label that matches no pattern.
const Public = "public"

//go:embed label_patterns.yaml
var labelPatterns []byte

// Engine classifies and scrubs labels.
type Engine struct {
	classifications []Classification
}

// New builds an Engine from the embedded pattern file.
func New() (*Engine, error) {
	return Parse(labelPatterns)
}

// Parse builds an Engine from a YAML pattern document.
//
// # Outputs
//
//   - *Engine: Classifications sorted from highest to lowest priority.
//   - error: Malformed YAML, an unknown confidence or an invalid regex.
func Parse(data []byte) (*Engine, error) {
	var file PatternFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the label patterns: %w", err)
	}
	if err := file.compile(); err != nil {
		return nil, err
	}
	file.sortByPriority()
	return &Engine{classifications: file.Classifications}, nil
}

// Classify returns the name of the highest priority classification that
// matches s, or Public.
func (e *Engine) Classify(s string) string {
	for _, c := range e.classifications {
		for _, p := range c.Patterns {
			if p.compiled.MatchString(s) {
				return c.Name
			}
		}
	}
	return Public
}

// Scan reports every pattern match in s.
func (e *Engine) Scan(s string) []Finding {
	var findings []Finding
	for _, c := range e.classifications {
		for _, p := range c.Patterns {
			for _, m := range p.compiled.FindAllString(s, -1) {
				findings = append(findings, Finding{
					Classification: c.Name,
					PatternID:      p.ID,
					Matched:        strings.TrimSpace(m),
					Confidence:     p.Confidence,
				})
			}
		}
	}
	return findings
}

// Scrub replaces every match in s with "[<classification>]".
//
// # Outputs
//
//   - string: The scrubbed label.
//   - bool: True when anything was replaced.
func (e *Engine) Scrub(s string) (string, bool) {
	if s == "" {
		return s, false
	}
	changed := false
	for _, c := range e.classifications {
		placeholder := "[" + c.Name + "]"
		for _, p := range c.Patterns {
			if !p.compiled.MatchString(s) {
				continue
			}
			s = p.compiled.ReplaceAllLiteralString(s, placeholder)
			changed = true
		}
	}
	return s, changed
}
