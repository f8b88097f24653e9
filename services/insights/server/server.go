// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server assembles the insight HTTP service.
//
// New wires configuration into every component: telemetry, Prometheus
// metrics, the generation client behind its circuit breaker, the chart and
// scenario collaborators, the evidence cache, the budget gate, the throttle
// and the gin router. Run serves until its context ends.
//
// # Usage
//
//	cfg, err := config.Load(path)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	srv, err := server.New(ctx, cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(srv.Run(ctx))
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/AleutianInsight/services/insights"
	"github.com/AleutianAI/AleutianInsight/services/insights/budget"
	"github.com/AleutianAI/AleutianInsight/services/insights/config"
	"github.com/AleutianAI/AleutianInsight/services/insights/evidence"
	"github.com/AleutianAI/AleutianInsight/services/insights/handlers"
	"github.com/AleutianAI/AleutianInsight/services/insights/middleware"
	"github.com/AleutianAI/AleutianInsight/services/insights/observability"
	"github.com/AleutianAI/AleutianInsight/services/insights/report"
	"github.com/AleutianAI/AleutianInsight/services/insights/routes"
	"github.com/AleutianAI/AleutianInsight/services/insights/telemetry"
	"github.com/AleutianAI/AleutianInsight/services/insights/upstream"
	"github.com/AleutianAI/AleutianInsight/services/llm"
)

// ErrNoChartService is returned when neither a chart service URL nor a chart
// collaborator is configured.
var ErrNoChartService = errors.New("chart service is not configured")

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// =============================================================================
// Interface Definition
// =============================================================================

// Service is the insight HTTP service lifecycle.
type Service interface {
	// Run serves HTTP until ctx is done or the listener fails, then shuts
	// down gracefully and releases telemetry.
	Run(ctx context.Context) error

	// Router returns the configured gin engine for tests.
	Router() *gin.Engine

	// Insights returns the pipeline.
	Insights() *insights.Service
}

// Options overrides components New would otherwise build from the
// configuration. Every field is optional.
type Options struct {
	Charts    insights.ChartService
	Scenarios insights.ScenarioService

	// LLMClient replaces the backend named in the configuration. It is still
	// wrapped in the circuit breaker.
	LLMClient llm.StructuredClient

	// Registry receives every metric. Default: a new registry with the Go
	// and process collectors.
	Registry *prometheus.Registry

	Logger *slog.Logger
}

// =============================================================================
// Implementation
// =============================================================================

type service struct {
	config    config.Config
	logger    *slog.Logger
	registry  *prometheus.Registry
	router    *gin.Engine
	breaker   *llm.BreakerClient
	charts    insights.ChartService
	scenarios insights.ScenarioService
	insights  *insights.Service
	throttle  *middleware.Throttle

	telemetryShutdown func(context.Context) error
}

// New creates the service.
//
// # Description
//
// Initialization order:
//  1. telemetry (tracer and meter providers)
//  2. Prometheus metrics
//  3. generation client behind the circuit breaker
//  4. chart and scenario collaborators
//  5. the insight pipeline with its cache and budget gate
//  6. throttle and router
//
// # Inputs
//
//   - ctx: Context for telemetry setup.
//   - cfg: Configuration. Defaults are applied to zero values.
//   - opts: Component overrides. May be nil.
//
// # Outputs
//
//   - Service: Ready to Run.
//   - error: Non-nil if a component could not be built.
func New(ctx context.Context, cfg config.Config, opts *Options) (Service, error) {
	if opts == nil {
		opts = &Options{}
	}
	config.ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &service{
		config:    cfg,
		logger:    opts.Logger,
		registry:  opts.Registry,
		charts:    opts.Charts,
		scenarios: opts.Scenarios,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry, s.registry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	s.telemetryShutdown = shutdown

	metrics := observability.NewInsightMetrics(s.registry)

	client, err := s.initLLMClient(opts.LLMClient)
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	if err := s.initCollaborators(); err != nil {
		s.cleanup()
		return nil, err
	}

	scrubber, err := cfg.Insight.Scrubber()
	if err != nil {
		s.cleanup()
		return nil, err
	}

	s.insights, err = insights.NewService(insights.Dependencies{
		Charts:    s.charts,
		Scenarios: s.scenarios,
		Generator: report.NewGenerator(client,
			report.WithLogger(s.logger),
			report.WithTimeout(cfg.LLM.GenerationTimeout)),
		Cache: evidence.NewCache(
			evidence.WithTTL(cfg.Cache.TTL),
			evidence.WithMaxEntries(cfg.Cache.MaxEntries)),
		Gate: budget.NewGate(budget.Options{
			MaxRequestsPerMinute: cfg.Budget.MaxRequestsPerMinute,
			Cooldown:             cfg.Budget.Cooldown,
		}),
	}, insights.Options{
		EvidenceVersion: cfg.Insight.EvidenceVersion,
		DefaultHorizon:  cfg.Insight.DefaultHorizon,
		MaxHorizon:      cfg.Insight.MaxHorizon,
		Build:           cfg.Insight.BuildOptions(scrubber),
		Logger:          s.logger,
		Metrics:         metrics,
	})
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to create insight service: %w", err)
	}

	s.throttle = middleware.NewThrottle(middleware.ThrottleConfig{
		QPS:   cfg.Throttle.QPS,
		Burst: cfg.Throttle.Burst,
	}, s.logger)
	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

func (s *service) Run(ctx context.Context) error {
	defer s.cleanup()

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	go s.throttle.Run(ctx, 10*time.Minute)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting insight server", "port", s.config.Server.Port, "llm_backend", s.config.LLM.Backend)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down insight server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *service) Router() *gin.Engine {
	return s.router
}

func (s *service) Insights() *insights.Service {
	return s.insights
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// initLLMClient creates the configured backend, or uses override, and wraps
// it in the circuit breaker. A "none" backend yields a nil client.
func (s *service) initLLMClient(override llm.StructuredClient) (llm.StructuredClient, error) {
	inner := override
	if inner == nil {
		var err error
		inner, err = llm.NewClient(s.config.LLM.Backend)
		if err != nil {
			return nil, err
		}
	}
	if inner == nil {
		return nil, nil
	}
	s.breaker = llm.NewBreakerClient(inner, llm.BreakerConfig{
		Name:                "llm-" + s.config.LLM.Backend,
		ConsecutiveFailures: s.config.LLM.BreakerFailures,
		OpenTimeout:         s.config.LLM.BreakerOpenTimeout,
	})
	return s.breaker, nil
}

// initCollaborators builds HTTP adapters for the collaborator URLs that were
// not overridden.
func (s *service) initCollaborators() error {
	up := s.config.Upstream
	if s.charts == nil {
		if up.ChartServiceURL == "" {
			return ErrNoChartService
		}
		charts, err := upstream.NewHTTPCharts(upstream.Config{BaseURL: up.ChartServiceURL, Timeout: up.Timeout})
		if err != nil {
			return err
		}
		s.charts = charts
	}
	if s.scenarios == nil && up.ScenarioServiceURL != "" {
		scenarios, err := upstream.NewHTTPScenarios(upstream.Config{BaseURL: up.ScenarioServiceURL, Timeout: up.Timeout})
		if err != nil {
			return err
		}
		s.scenarios = scenarios
	}
	if s.scenarios == nil {
		s.logger.Info("Scenario service not configured, what-if requests will be rejected")
	}
	return nil
}

func (s *service) initRouter() {
	gin.SetMode(s.config.Server.GinMode)
	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(otelgin.Middleware(s.config.Telemetry.ServiceName))

	health := handlers.HealthInfo{
		LLMBackend: s.config.LLM.Backend,
		Cache:      s.insights.Cache(),
	}
	if s.breaker != nil {
		health.Breaker = s.breaker
	}
	routes.SetupRoutes(s.router, routes.Dependencies{
		Insights: s.insights,
		Health:   health,
		Gatherer: s.registry,
		Throttle: s.throttle,
	})
}

// cleanup flushes telemetry. Called when Run returns or New fails.
func (s *service) cleanup() {
	if s.telemetryShutdown == nil {
		return
	}
	if err := s.telemetryShutdown(context.Background()); err != nil {
		s.logger.Warn("Telemetry shutdown error", "error", err)
	}
	s.telemetryShutdown = nil
}
