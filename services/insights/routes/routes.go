// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianInsight/services/insights/handlers"
	"github.com/AleutianAI/AleutianInsight/services/insights/middleware"
)

// Dependencies are what the route table hands to the handlers.
type Dependencies struct {
	Insights handlers.InsightGenerator
	Health   handlers.HealthInfo

	// Gatherer backs GET /metrics. nil skips the route.
	Gatherer prometheus.Gatherer

	// Throttle guards the /v1 group. nil disables it.
	Throttle *middleware.Throttle
}

func SetupRoutes(router *gin.Engine, deps Dependencies) {
	router.GET("/health", handlers.HandleHealth(deps.Health))
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	// API version 1 group
	v1 := router.Group("/v1")
	if deps.Throttle != nil && deps.Throttle.Enabled() {
		v1.Use(deps.Throttle.Middleware())
	}
	{
		v1.POST("/insights/deep", handlers.HandleDeepInsight(deps.Insights))
	}
}
