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

	"github.com/AleutianAI/AleutianInsight/services/insights/datatypes"
)

// DefaultLanguage is used when a request names no report language.
const DefaultLanguage = "en"

// Prompts is the instruction pair sent with an evidence pack.
type Prompts struct {
	System string
	User   string
}

const systemPrompt = `You are a senior data analyst writing an executive insight report.
You receive an evidence pack: statistics computed from one chart, each number
published as a fact with an evidenceId.

RESPONSE FORMAT (MANDATORY):
Respond with a single JSON object and nothing else:

{
  "headline": "One sentence, at most 120 characters",
  "executiveSummary": "At most 600 characters",
  "keyFindings": [
    {"title": "...", "narrative": "...", "severity": "low|medium|high", "evidenceIds": ["..."]}
  ],
  "drivers": [{"title": "...", "narrative": "...", "evidenceIds": ["..."]}],
  "risksAndCaveats": [{"title": "...", "narrative": "...", "evidenceIds": ["..."]}],
  "projections": {
    "methods": [{"method": "naive|movingAverage|linearRegression", "narrative": "...", "evidenceIds": ["..."]}],
    "conclusion": "..."
  },
  "recommendedActions": [{"title": "...", "narrative": "...", "evidenceIds": ["..."]}],
  "nextQuestions": ["..."],
  "citations": [{"evidenceId": "...", "shortClaim": "..."}]
}

RULES:
1. Cite ONLY evidenceIds that appear in the facts list. Never invent ids.
2. Every number you mention must come from a cited fact.
3. Write 3 to 7 key findings, at most 6 drivers, 6 risks, 6 actions,
   8 next questions and 20 citations, with at most 8 evidenceIds per item.
4. Projections describe uncertainty honestly; quote RMSE and confidence.
5. If the data is thin or low quality, say so in risksAndCaveats.`

// BuildPrompts renders the system and user prompts for a pack. The pack
// itself travels as the request context.
func BuildPrompts(pack *datatypes.EvidencePack, language string) Prompts {
	if strings.TrimSpace(language) == "" {
		language = DefaultLanguage
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Write the deep insight report in language %q.\n", language)
	fmt.Fprintf(&b, "Dataset: %s. Recommendation: %s. Forecast horizon: %d periods.\n",
		pack.DatasetID, pack.RecommendationID, pack.Horizon)
	if pack.SensitiveMode {
		b.WriteString("Sensitive mode is on: do not guess or reveal segment names or raw values.\n")
	}
	if pack.Truncated {
		b.WriteString("The evidence pack was truncated to fit its size budget.\n")
	}
	b.WriteString("\nAllowed evidenceIds:\n")
	for _, f := range pack.Facts {
		fmt.Fprintf(&b, "- %s: %s = %s\n", f.EvidenceID, f.ShortClaim, f.Value)
	}
	return Prompts{System: systemPrompt, User: b.String()}
}
