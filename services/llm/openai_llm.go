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
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sashabaranov/go-openai"
)

// ProviderOpenAI is the provider id reported by OpenAIClient.
const ProviderOpenAI = "openai"

// OpenAIConfig configures OpenAIClient. Empty fields are read from the
// environment (OPENAI_API_KEY or /run/secrets/openai_api_key, OPENAI_MODEL,
// OPENAI_BASE_URL).
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// OpenAIClient generates JSON objects through the chat completions API.
type OpenAIClient struct {
	key     *apiKey
	model   string
	baseURL string
}

// NewOpenAIClient creates an OpenAI client.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	var key *apiKey
	if cfg.APIKey != "" {
		key = sealAPIKey(cfg.APIKey)
	} else {
		k, err := loadAPIKey("OPENAI_API_KEY", "openai_api_key")
		if err != nil {
			slog.Error("OpenAI API key not found")
			return nil, err
		}
		key = k
	}
	if cfg.Model == "" {
		cfg.Model = os.Getenv("OPENAI_MODEL")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
		slog.Warn("OPENAI_MODEL not set, defaulting to gpt-4o-mini")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv("OPENAI_BASE_URL")
	}
	slog.Info("Initializing OpenAI client", "model", cfg.Model)
	return &OpenAIClient{key: key, model: cfg.Model, baseURL: cfg.BaseURL}, nil
}

// Generate implements StructuredClient using JSON object response format.
func (o *OpenAIClient) Generate(ctx context.Context, req StructuredRequest) (*StructuredResult, error) {
	user, err := userContent(req)
	if err != nil {
		return nil, fmt.Errorf("marshal openai context: %w", err)
	}
	chatReq := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxCompletionTokens: maxTokens(req),
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}
	if req.Temperature != nil {
		chatReq.Temperature = *req.Temperature
	}

	start := time.Now()
	var resp openai.ChatCompletionResponse
	err = o.key.use(func(key string) error {
		config := openai.DefaultConfig(key)
		if o.baseURL != "" {
			config.BaseURL = o.baseURL
		}
		var callErr error
		resp, callErr = openai.NewClientWithConfig(config).CreateChatCompletion(ctx, chatReq)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("openai API call failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, ErrNoContent
	}
	slog.Debug("Received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)

	text := resp.Choices[0].Message.Content
	model := resp.Model
	if model == "" {
		model = o.model
	}
	cacheHit := resp.Usage.PromptTokensDetails != nil && resp.Usage.PromptTokensDetails.CachedTokens > 0
	return &StructuredResult{
		Provider:   ProviderOpenAI,
		Model:      model,
		DurationMs: time.Since(start).Milliseconds(),
		CacheHit:   cacheHit,
		RawText:    text,
		RawJSON:    rawJSON(text),
	}, nil
}
