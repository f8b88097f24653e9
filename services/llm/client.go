// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides structured-generation clients for the supported model
// backends.
//
// Every backend implements StructuredClient: one request carrying a system
// prompt, a user prompt and a JSON context object, answered with the raw
// model text and, when the text is valid JSON, the same bytes as RawJSON.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoContent is returned when a backend answers without any text.
var ErrNoContent = errors.New("llm returned no content")

// StructuredRequest is one structured-generation call.
type StructuredRequest struct {
	SystemPrompt string
	UserPrompt   string

	// Context is serialized as JSON and appended to the user prompt.
	Context any

	MaxTokens   int
	Temperature *float32
}

// StructuredResult is the raw answer of a backend.
type StructuredResult struct {
	Provider   string
	Model      string
	DurationMs int64

	// CacheHit reports a provider-side prompt cache hit.
	CacheHit bool

	RawText string
	RawJSON json.RawMessage
}

// StructuredClient is implemented by every model backend.
type StructuredClient interface {
	Generate(ctx context.Context, req StructuredRequest) (*StructuredResult, error)
}

// defaultMaxTokens bounds a response when the request does not.
const defaultMaxTokens = 4096

// userContent renders the user prompt followed by the JSON context.
func userContent(req StructuredRequest) (string, error) {
	if req.Context == nil {
		return req.UserPrompt, nil
	}
	data, err := json.Marshal(req.Context)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(req.UserPrompt)
	b.WriteString("\n\nCONTEXT (JSON):\n")
	b.Write(data)
	return b.String(), nil
}

// rawJSON returns text as RawJSON when it is a valid JSON document.
func rawJSON(text string) json.RawMessage {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || !json.Valid([]byte(trimmed)) {
		return nil
	}
	return json.RawMessage(trimmed)
}

func maxTokens(req StructuredRequest) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return defaultMaxTokens
}
