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
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// ErrBreakerOpen is returned while the breaker rejects calls.
var ErrBreakerOpen = errors.New("llm circuit breaker open")

// BreakerConfig configures BreakerClient.
type BreakerConfig struct {
	Name string

	// ConsecutiveFailures trips the breaker. Default: 3
	ConsecutiveFailures uint32

	// OpenTimeout is how long the breaker stays open. Default: 30s
	OpenTimeout time.Duration
}

// BreakerClient wraps a StructuredClient in a circuit breaker so that a
// failing backend is skipped quickly instead of timing out every request.
// Caller cancellations do not count as backend failures.
type BreakerClient struct {
	inner StructuredClient
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerClient wraps inner.
func NewBreakerClient(inner StructuredClient, cfg BreakerConfig) *BreakerClient {
	if cfg.Name == "" {
		cfg.Name = "llm"
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 3
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	threshold := cfg.ConsecutiveFailures

	st := gobreaker.Settings{Name: cfg.Name}
	st.Timeout = cfg.OpenTimeout
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= threshold
	}
	st.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, context.Canceled)
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		slog.Warn("LLM circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
	}
	return &BreakerClient{inner: inner, cb: gobreaker.NewCircuitBreaker(st)}
}

// Generate implements StructuredClient.
func (b *BreakerClient) Generate(ctx context.Context, req StructuredRequest) (*StructuredResult, error) {
	out, err := b.cb.Execute(func() (any, error) {
		return b.inner.Generate(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrBreakerOpen
	}
	if err != nil {
		return nil, err
	}
	return out.(*StructuredResult), nil
}

// State reports the breaker state, e.g. "closed" or "open".
func (b *BreakerClient) State() string {
	return b.cb.State().String()
}
