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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// ProviderAnthropic is the provider id reported by AnthropicClient.
const ProviderAnthropic = "anthropic"

const (
	anthropicAPIVersion = "2023-06-01"
	defaultAnthropicURL = "https://api.anthropic.com/v1/messages"

	// cacheablePromptBytes is the system prompt size above which the prompt
	// is marked for provider-side caching.
	cacheablePromptBytes = 1024
)

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      []systemBlock      `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float32           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type systemBlock struct {
	Type         string        `json:"type"`
	Text         string        `json:"text"`
	CacheControl *cacheControl `json:"cache_control,omitempty"`
}

type cacheControl struct {
	Type string `json:"type"`
}

type anthropicResponse struct {
	ID      string             `json:"id"`
	Model   string             `json:"model"`
	Content []anthropicContent `json:"content"`
	Usage   anthropicUsage     `json:"usage"`
	Error   *anthropicError    `json:"error,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens          int `json:"input_tokens"`
	OutputTokens         int `json:"output_tokens"`
	CacheReadInputTokens int `json:"cache_read_input_tokens"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// AnthropicConfig configures AnthropicClient. Empty fields are read from the
// environment (ANTHROPIC_API_KEY or /run/secrets/anthropic_api_key,
// CLAUDE_MODEL).
type AnthropicConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// AnthropicClient talks to the Messages API over plain HTTP.
type AnthropicClient struct {
	httpClient *http.Client
	key        *apiKey
	model      string
	url        string
}

// NewAnthropicClient creates an Anthropic client.
func NewAnthropicClient(cfg AnthropicConfig) (*AnthropicClient, error) {
	var key *apiKey
	if cfg.APIKey != "" {
		key = sealAPIKey(cfg.APIKey)
	} else {
		k, err := loadAPIKey("ANTHROPIC_API_KEY", "anthropic_api_key")
		if err != nil {
			slog.Warn("Anthropic API Key is missing.")
			return nil, err
		}
		key = k
	}
	if cfg.Model == "" {
		cfg.Model = os.Getenv("CLAUDE_MODEL")
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-sonnet-20240620"
		slog.Info("CLAUDE_MODEL not set, defaulting to", "model", cfg.Model)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultAnthropicURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &AnthropicClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		key:        key,
		model:      cfg.Model,
		url:        cfg.BaseURL,
	}, nil
}

// Generate implements StructuredClient.
func (a *AnthropicClient) Generate(ctx context.Context, req StructuredRequest) (*StructuredResult, error) {
	user, err := userContent(req)
	if err != nil {
		return nil, fmt.Errorf("marshal anthropic context: %w", err)
	}

	payload := anthropicRequest{
		Model:       a.model,
		Messages:    []anthropicMessage{{Role: "user", Content: user}},
		MaxTokens:   maxTokens(req),
		Temperature: req.Temperature,
	}
	if req.SystemPrompt != "" {
		block := systemBlock{Type: "text", Text: req.SystemPrompt}
		if len(req.SystemPrompt) > cacheablePromptBytes {
			block.CacheControl = &cacheControl{Type: "ephemeral"}
		}
		payload.System = []systemBlock{block}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)
	httpReq.Header.Set("content-type", "application/json")

	start := time.Now()
	var resp *http.Response
	err = a.key.use(func(key string) error {
		httpReq.Header.Set("x-api-key", key)
		var doErr error
		resp, doErr = a.httpClient.Do(httpReq)
		return doErr
	})
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("anthropic API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}
	if apiResp.Error != nil {
		return nil, fmt.Errorf("anthropic API error: %s - %s", apiResp.Error.Type, apiResp.Error.Message)
	}

	var text strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, ErrNoContent
	}

	model := apiResp.Model
	if model == "" {
		model = a.model
	}
	return &StructuredResult{
		Provider:   ProviderAnthropic,
		Model:      model,
		DurationMs: time.Since(start).Milliseconds(),
		CacheHit:   apiResp.Usage.CacheReadInputTokens > 0,
		RawText:    text.String(),
		RawJSON:    rawJSON(text.String()),
	}, nil
}
