// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"fmt"
	"log/slog"
	"strings"
)

// Backend names accepted by NewClient.
const (
	BackendNone      = "none"
	BackendOpenAI    = "openai"
	BackendOllama    = "ollama"
	BackendClaude    = "claude"
	BackendAnthropic = "anthropic"
)

// NewClient creates the client for a backend name, configured from the
// environment.
//
// # Description
//
// An empty name or "none" returns a nil client and no error; the insight
// service then answers every request with its deterministic report.
//
// # Inputs
//
//   - backend: One of none, openai, ollama, claude, anthropic.
//
// # Outputs
//
//   - StructuredClient: The client, or nil for none.
//   - error: Non-nil for an unknown backend or missing credentials.
func NewClient(backend string) (StructuredClient, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendNone:
		slog.Info("No LLM backend configured, deterministic reports only")
		return nil, nil
	case BackendOpenAI:
		slog.Info("Using OpenAI LLM backend")
		c, err := NewOpenAIClient(OpenAIConfig{})
		if err != nil {
			return nil, err
		}
		return c, nil
	case BackendOllama:
		slog.Info("Using Ollama LLM backend")
		c, err := NewOllamaClient(OllamaConfig{})
		if err != nil {
			return nil, err
		}
		return c, nil
	case BackendClaude, BackendAnthropic:
		slog.Info("Using Anthropic (Claude) LLM backend")
		c, err := NewAnthropicClient(AnthropicConfig{})
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown LLM backend %q", backend)
	}
}
