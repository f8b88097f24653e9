// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package budget limits how often one requester may ask for insights on one
// dataset.
//
// # Description
//
// The Gate keeps, per (dataset, requester) pair, the timestamps of accepted
// requests over the last minute plus the time of the last accepted request.
// A request is rejected while the cooldown since the last accept has not
// elapsed or when the minute window is already full. Rejection is a value,
// not a panic, and happens before any evidence is computed.
//
// # Thread Safety
//
// Each pair has its own lock; requests for unrelated pairs never contend.
package budget

import (
	"fmt"
	"sync"
	"time"
)

// Window is the sliding window over which MaxRequestsPerMinute applies.
const Window = time.Minute

// DefaultRequester is used when a request carries no requester key.
const DefaultRequester = "anonymous"

// Options configures a Gate. Zero values disable the respective check.
type Options struct {
	MaxRequestsPerMinute int
	Cooldown             time.Duration

	// Now is the clock. Default: time.Now
	Now func() time.Time
}

// Rejection kinds.
const (
	KindCooldown  = "cooldown"
	KindRateLimit = "rate_limit"
)

// Decision is the outcome of one Check.
type Decision struct {
	Allowed bool

	// Kind is KindCooldown or KindRateLimit for a rejection.
	Kind       string
	Reason     string
	RetryAfter time.Duration
}

// Err returns nil for an allowed decision and an *ExceededError otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &ExceededError{Kind: d.Kind, Reason: d.Reason, RetryAfter: d.RetryAfter}
}

// ExceededError reports a rejected request.
type ExceededError struct {
	Kind       string
	Reason     string
	RetryAfter time.Duration
}

func (e *ExceededError) Error() string {
	return "budget exceeded: " + e.Reason
}

// keyState is the per-pair state.
type keyState struct {
	mu           sync.Mutex
	accepted     []time.Time
	lastAccepted time.Time
}

// Gate enforces the per-pair budget.
type Gate struct {
	opts   Options
	states sync.Map // string -> *keyState
}

// NewGate creates a gate with no recorded history.
func NewGate(opts Options) *Gate {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Gate{opts: opts}
}

// Check decides whether a request may proceed and records it if so.
//
// # Inputs
//
//   - datasetID: The dataset being analyzed.
//   - requesterKey: Caller identity. Blank means DefaultRequester.
//
// # Outputs
//
//   - Decision: Allowed, or the rejection reason and a retry hint.
func (g *Gate) Check(datasetID, requesterKey string) Decision {
	if requesterKey == "" {
		requesterKey = DefaultRequester
	}
	v, _ := g.states.LoadOrStore(datasetID+"|"+requesterKey, &keyState{})
	st := v.(*keyState)

	st.mu.Lock()
	defer st.mu.Unlock()

	now := g.opts.Now()
	cutoff := now.Add(-Window)
	kept := st.accepted[:0]
	for _, ts := range st.accepted {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	st.accepted = kept

	if g.opts.Cooldown > 0 && !st.lastAccepted.IsZero() {
		if since := now.Sub(st.lastAccepted); since < g.opts.Cooldown {
			wait := g.opts.Cooldown - since
			return Decision{
				Kind:       KindCooldown,
				Reason:     fmt.Sprintf("cooldown active for dataset %s, retry in %s", datasetID, wait.Round(time.Second)),
				RetryAfter: wait,
			}
		}
	}

	if limit := g.opts.MaxRequestsPerMinute; limit > 0 && len(st.accepted) >= limit {
		wait := st.accepted[0].Add(Window).Sub(now)
		return Decision{
			Kind:       KindRateLimit,
			Reason:     fmt.Sprintf("limit of %d requests per minute reached for dataset %s", limit, datasetID),
			RetryAfter: wait,
		}
	}

	st.accepted = append(st.accepted, now)
	st.lastAccepted = now
	return Decision{Allowed: true}
}
