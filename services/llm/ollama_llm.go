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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ProviderOllama is the provider id reported by OllamaClient.
const ProviderOllama = "ollama"

var tracer = otel.Tracer("aleutian.insight.llm")

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Model     string        `json:"model"`
	Message   ollamaMessage `json:"message"`
	CreatedAt string        `json:"created_at"`
	Done      bool          `json:"done"`
}

// OllamaConfig configures OllamaClient. Empty fields are read from
// OLLAMA_BASE_URL and OLLAMA_MODEL.
type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OllamaClient talks to a local Ollama server in JSON mode.
type OllamaClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

// NewOllamaClient creates an Ollama client.
func NewOllamaClient(cfg OllamaConfig) (*OllamaClient, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv("OLLAMA_BASE_URL")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("OLLAMA_BASE_URL environment variable not set")
	}
	if cfg.Model == "" {
		cfg.Model = os.Getenv("OLLAMA_MODEL")
	}
	if cfg.Model == "" {
		slog.Warn("OLLAMA_MODEL not set, defaulting to gpt-oss")
		cfg.Model = "gpt-oss"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	slog.Info("Initializing Ollama client", "base_url", baseURL, "model", cfg.Model)
	return &OllamaClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    baseURL,
		model:      cfg.Model,
	}, nil
}

// Generate implements StructuredClient through /api/chat with format=json.
func (o *OllamaClient) Generate(ctx context.Context, req StructuredRequest) (*StructuredResult, error) {
	ctx, span := tracer.Start(ctx, "OllamaClient.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", o.model))

	fail := func(err error) (*StructuredResult, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	user, err := userContent(req)
	if err != nil {
		return fail(fmt.Errorf("marshal ollama context: %w", err))
	}
	temperature := float32(0.2)
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	payload := ollamaChatRequest{
		Model: o.model,
		Messages: []ollamaMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: user},
		},
		Stream: false,
		Format: "json",
		Options: map[string]any{
			"temperature": temperature,
			"num_predict": maxTokens(req),
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fail(fmt.Errorf("failed to marshal chat request to Ollama: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return fail(fmt.Errorf("failed to create chat request to Ollama: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return fail(fmt.Errorf("ollama API call failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(fmt.Errorf("failed to read response body from Ollama: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusNotFound && strings.Contains(string(respBody), "not found") {
			return fail(fmt.Errorf("model '%s' not found. Please run: 'ollama pull %s'", o.model, o.model))
		}
		return fail(fmt.Errorf("ollama chat failed with status %d: %s", resp.StatusCode, string(respBody)))
	}

	var chatResp ollamaChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return fail(fmt.Errorf("failed to parse Ollama response: %w", err))
	}
	if chatResp.Message.Content == "" {
		return fail(ErrNoContent)
	}

	model := chatResp.Model
	if model == "" {
		model = o.model
	}
	return &StructuredResult{
		Provider:   ProviderOllama,
		Model:      model,
		DurationMs: time.Since(start).Milliseconds(),
		RawText:    chatResp.Message.Content,
		RawJSON:    rawJSON(chatResp.Message.Content),
	}, nil
}
