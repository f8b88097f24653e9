// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers holds the gin handlers of the insight HTTP edge.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianInsight/services/insights/evidence"
)

// BreakerState reports the generation circuit breaker state.
type BreakerState interface {
	State() string
}

// HealthInfo is what the health endpoint reports besides "ok".
type HealthInfo struct {
	LLMBackend string
	Cache      *evidence.Cache

	// Breaker is nil when no model backend is configured.
	Breaker BreakerState
}

// HandleHealth serves GET /health.
func HandleHealth(info HealthInfo) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{
			"status":      "ok",
			"llm_backend": info.LLMBackend,
		}
		if info.Cache != nil {
			st := info.Cache.Stats()
			body["cache"] = gin.H{
				"entries":   st.Entries,
				"hits":      st.Hits,
				"misses":    st.Misses,
				"evictions": st.Evictions,
			}
		}
		if info.Breaker != nil {
			body["llm_breaker"] = info.Breaker.State()
		}
		c.JSON(http.StatusOK, body)
	}
}
