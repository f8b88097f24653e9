// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware holds gin middleware for the insight HTTP edge.
package middleware

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// ThrottleConfig configures Throttle.
type ThrottleConfig struct {
	// QPS is the sustained request rate per client. <= 0 disables throttling.
	QPS float64

	// Burst is the token bucket size. Default: 2*QPS, at least 1.
	Burst int

	// IdleTimeout drops limiters unused for this long. Default: 1 hour
	IdleTimeout time.Duration

	// Now is the clock. Default: time.Now
	Now func() time.Time
}

type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess atomic.Int64 // unix nanos
}

// Throttle is a token bucket per client IP.
//
// # Description
//
// This sits in front of the per dataset budget gate and protects the process
// itself: a client that floods the edge is turned away with 429 before any
// request body is parsed.
//
// # Thread Safety
//
// Safe for concurrent use.
type Throttle struct {
	cfg      ThrottleConfig
	limiters sync.Map // string -> *clientLimiter
	logger   *slog.Logger
}

// NewThrottle creates a throttle. A nil logger uses slog.Default().
func NewThrottle(cfg ThrottleConfig, logger *slog.Logger) *Throttle {
	if cfg.Burst <= 0 {
		cfg.Burst = int(math.Max(1, math.Ceil(cfg.QPS*2)))
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Throttle{cfg: cfg, logger: logger.With("component", "throttle")}
}

// Enabled reports whether requests are throttled at all.
func (t *Throttle) Enabled() bool {
	return t.cfg.QPS > 0
}

func (t *Throttle) limiterFor(key string) *rate.Limiter {
	now := t.cfg.Now()
	if existing, ok := t.limiters.Load(key); ok {
		cl := existing.(*clientLimiter)
		cl.lastAccess.Store(now.UnixNano())
		return cl.limiter
	}
	cl := &clientLimiter{limiter: rate.NewLimiter(rate.Limit(t.cfg.QPS), t.cfg.Burst)}
	cl.lastAccess.Store(now.UnixNano())
	actual, loaded := t.limiters.LoadOrStore(key, cl)
	if loaded {
		cl = actual.(*clientLimiter)
		cl.lastAccess.Store(now.UnixNano())
	}
	return cl.limiter
}

// Allow consumes one token for key.
func (t *Throttle) Allow(key string) (bool, time.Duration) {
	if !t.Enabled() {
		return true, 0
	}
	now := t.cfg.Now()
	r := t.limiterFor(key).ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second
	}
	delay := r.DelayFrom(now)
	if delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Sweep drops limiters idle for longer than IdleTimeout and returns how many
// were removed.
func (t *Throttle) Sweep() int {
	cutoff := t.cfg.Now().Add(-t.cfg.IdleTimeout).UnixNano()
	removed := 0
	t.limiters.Range(func(k, v any) bool {
		if v.(*clientLimiter).lastAccess.Load() < cutoff {
			t.limiters.Delete(k)
			removed++
		}
		return true
	})
	return removed
}

// Run sweeps every interval until ctx is done.
func (t *Throttle) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := t.Sweep(); n > 0 {
				t.logger.Debug("Dropped idle client limiters", "count", n)
			}
		}
	}
}

// Middleware rejects over-limit clients with 429 and a Retry-After header.
func (t *Throttle) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		ok, retry := t.Allow(key)
		if ok {
			c.Next()
			return
		}
		secs := int(math.Ceil(retry.Seconds()))
		if secs < 1 {
			secs = 1
		}
		t.logger.Warn("Client throttled", "client_ip", key, "path", c.FullPath(), "retry_after_s", secs)
		c.Header("Retry-After", strconv.Itoa(secs))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": "too many requests",
			"code":  "throttled",
		})
	}
}
