// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the insight service configuration.
//
// # Description
//
// Load reads an optional YAML file, applies environment overrides and then
// fills defaults for every zero value. Validate rejects configurations the
// service cannot run with.
//
// # Environment Variables
//
//   - INSIGHT_PORT, GIN_MODE
//   - LLM_BACKEND_TYPE: none, openai, ollama, claude, anthropic
//   - INSIGHT_GENERATION_TIMEOUT (duration)
//   - INSIGHT_CHART_SERVICE_URL, INSIGHT_SCENARIO_SERVICE_URL
//   - INSIGHT_CACHE_TTL (duration), INSIGHT_CACHE_MAX_ENTRIES
//   - INSIGHT_BUDGET_MAX_RPM, INSIGHT_BUDGET_COOLDOWN (duration)
//   - INSIGHT_MAX_EVIDENCE_BYTES
//   - INSIGHT_THROTTLE_QPS, INSIGHT_THROTTLE_BURST
//   - INSIGHT_LOG_LEVEL, INSIGHT_LOG_DIR, INSIGHT_LOG_JSON
//   - OTEL_TRACES_EXPORTER, OTEL_METRICS_EXPORTER, OTEL_EXPORTER_OTLP_ENDPOINT
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianInsight/services/insights/classify"
	"github.com/AleutianAI/AleutianInsight/services/insights/evidence"
	"github.com/AleutianAI/AleutianInsight/services/insights/forecast"
	"github.com/AleutianAI/AleutianInsight/services/insights/report"
	"github.com/AleutianAI/AleutianInsight/services/insights/stats"
	"github.com/AleutianAI/AleutianInsight/services/insights/telemetry"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Defaults for values the rest of the tree does not already define.
const (
	DefaultPort                 = 12230
	DefaultGinMode              = "release"
	DefaultMaxRequestsPerMinute = 10
	DefaultCooldown             = 2 * time.Second
	DefaultBreakerFailures      = 3
	DefaultBreakerOpenTimeout   = 30 * time.Second
	DefaultThrottleQPS          = 5.0
	DefaultThrottleBurst        = 10
	DefaultUpstreamTimeout      = 15 * time.Second
	DefaultLogLevel             = "info"
)

// ServerConfig is the HTTP edge.
type ServerConfig struct {
	Port    int    `yaml:"port" validate:"gte=1,lte=65535"`
	GinMode string `yaml:"gin_mode" validate:"oneof=debug release test"`
}

// InsightConfig tunes the pipeline.
type InsightConfig struct {
	EvidenceVersion     string `yaml:"evidence_version" validate:"required,max=32"`
	DefaultHorizon      int    `yaml:"default_horizon" validate:"gte=1"`
	MaxHorizon          int    `yaml:"max_horizon" validate:"gtefield=DefaultHorizon"`
	MaxPoints           int    `yaml:"max_points" validate:"gte=10"`
	SampleSize          int    `yaml:"sample_size" validate:"gte=1"`
	MaxSegments         int    `yaml:"max_segments" validate:"gte=3,lte=20"`
	MovingAverageWindow int    `yaml:"moving_average_window" validate:"gte=2"`

	// MaxEvidenceBytes caps the serialized pack. Negative disables the cap.
	MaxEvidenceBytes int `yaml:"max_evidence_bytes"`

	// DisableLabelScrubbing lets labels that look like credentials or
	// personal data reach the pack unchanged.
	DisableLabelScrubbing bool `yaml:"disable_label_scrubbing"`
}

// Scrubber returns the label scrubber, or nil when scrubbing is disabled.
func (c InsightConfig) Scrubber() (evidence.LabelScrubber, error) {
	if c.DisableLabelScrubbing {
		return nil, nil
	}
	e, err := classify.New()
	if err != nil {
		return nil, fmt.Errorf("failed to load label patterns: %w", err)
	}
	return e, nil
}

// BuildOptions maps the pipeline limits onto evidence build options.
func (c InsightConfig) BuildOptions(scrubber evidence.LabelScrubber) evidence.BuildOptions {
	return evidence.BuildOptions{
		MaxPoints:           c.MaxPoints,
		SampleSize:          c.SampleSize,
		MaxSegments:         c.MaxSegments,
		MovingAverageWindow: c.MovingAverageWindow,
		MaxBytes:            c.MaxEvidenceBytes,
		Scrubber:            scrubber,
	}
}

// CacheConfig is the evidence pack cache.
type CacheConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries" validate:"gte=1"`
}

// BudgetConfig is the per dataset and requester budget gate.
type BudgetConfig struct {
	MaxRequestsPerMinute int           `yaml:"max_requests_per_minute" validate:"gte=0"`
	Cooldown             time.Duration `yaml:"cooldown" validate:"gte=0"`
}

// LLMConfig selects the generation backend.
type LLMConfig struct {
	Backend            string        `yaml:"backend" validate:"omitempty,oneof=none openai ollama claude anthropic"`
	GenerationTimeout  time.Duration `yaml:"generation_timeout" validate:"gt=0"`
	BreakerFailures    uint32        `yaml:"breaker_failures" validate:"gte=1"`
	BreakerOpenTimeout time.Duration `yaml:"breaker_open_timeout" validate:"gt=0"`
}

// ThrottleConfig is the per-client HTTP throttle. QPS <= 0 disables it.
type ThrottleConfig struct {
	QPS   float64 `yaml:"qps"`
	Burst int     `yaml:"burst" validate:"gte=0"`
}

// UpstreamConfig locates the collaborator services.
type UpstreamConfig struct {
	ChartServiceURL    string        `yaml:"chart_service_url" validate:"omitempty,url"`
	ScenarioServiceURL string        `yaml:"scenario_service_url" validate:"omitempty,url"`
	Timeout            time.Duration `yaml:"timeout" validate:"gt=0"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Insight   InsightConfig    `yaml:"insight"`
	Cache     CacheConfig      `yaml:"cache"`
	Budget    BudgetConfig     `yaml:"budget"`
	LLM       LLMConfig        `yaml:"llm"`
	Throttle  ThrottleConfig   `yaml:"throttle"`
	Upstream  UpstreamConfig   `yaml:"upstream"`
	Logging   LoggingConfig    `yaml:"logging"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// Load builds a Config from an optional YAML file overridden by the
// environment. Defaults fill whatever is still zero.
//
// # Inputs
//
//   - path: YAML file. Empty skips the file.
//
// # Outputs
//
//   - Config: Validated configuration.
//   - error: Read, parse or validation failure.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read the config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse the config file %s: %w", path, err)
		}
	}
	if err := ApplyEnv(&cfg); err != nil {
		return Config{}, err
	}
	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with any set environment variables.
func ApplyEnv(cfg *Config) error {
	var errs []error
	setInt := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	setString := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	setInt("INSIGHT_PORT", &cfg.Server.Port)
	setString("GIN_MODE", &cfg.Server.GinMode)
	setString("LLM_BACKEND_TYPE", &cfg.LLM.Backend)
	setDuration("INSIGHT_GENERATION_TIMEOUT", &cfg.LLM.GenerationTimeout)
	setString("INSIGHT_CHART_SERVICE_URL", &cfg.Upstream.ChartServiceURL)
	setString("INSIGHT_SCENARIO_SERVICE_URL", &cfg.Upstream.ScenarioServiceURL)
	setDuration("INSIGHT_CACHE_TTL", &cfg.Cache.TTL)
	setInt("INSIGHT_CACHE_MAX_ENTRIES", &cfg.Cache.MaxEntries)
	setInt("INSIGHT_BUDGET_MAX_RPM", &cfg.Budget.MaxRequestsPerMinute)
	setDuration("INSIGHT_BUDGET_COOLDOWN", &cfg.Budget.Cooldown)
	setInt("INSIGHT_MAX_EVIDENCE_BYTES", &cfg.Insight.MaxEvidenceBytes)
	setInt("INSIGHT_THROTTLE_BURST", &cfg.Throttle.Burst)
	setString("INSIGHT_LOG_LEVEL", &cfg.Logging.Level)
	setString("INSIGHT_LOG_DIR", &cfg.Logging.Dir)
	setString("OTEL_TRACES_EXPORTER", &cfg.Telemetry.TraceExporter)
	setString("OTEL_METRICS_EXPORTER", &cfg.Telemetry.MetricExporter)
	setString("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.Telemetry.OTLPEndpoint)

	setFloat := func(key string, dst *float64) {
		if v, ok := lookup(key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	setFloat("INSIGHT_THROTTLE_QPS", &cfg.Throttle.QPS)
	setFloat("OTEL_TRACES_SAMPLER_ARG", &cfg.Telemetry.SampleRatio)
	setBool := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	setBool("INSIGHT_LOG_JSON", &cfg.Logging.JSON)
	setBool("INSIGHT_DISABLE_LABEL_SCRUBBING", &cfg.Insight.DisableLabelScrubbing)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// ApplyDefaults fills every zero value.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Server.GinMode == "" {
		cfg.Server.GinMode = DefaultGinMode
	}

	in := &cfg.Insight
	if in.EvidenceVersion == "" {
		in.EvidenceVersion = "v1"
	}
	if in.DefaultHorizon == 0 {
		in.DefaultHorizon = forecast.DefaultHorizon
	}
	if in.MaxHorizon == 0 {
		in.MaxHorizon = forecast.MaxHorizon
	}
	if in.MaxPoints == 0 {
		in.MaxPoints = evidence.DefaultMaxPoints
	}
	if in.SampleSize == 0 {
		in.SampleSize = evidence.DefaultSampleSize
	}
	if in.MaxSegments == 0 {
		in.MaxSegments = stats.DefaultSegments
	}
	if in.MovingAverageWindow == 0 {
		in.MovingAverageWindow = forecast.DefaultMovingAverageWindow
	}
	if in.MaxEvidenceBytes == 0 {
		in.MaxEvidenceBytes = evidence.DefaultMaxBytes
	}

	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = evidence.DefaultCacheTTL
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = evidence.DefaultMaxEntries
	}
	if cfg.Budget.MaxRequestsPerMinute == 0 {
		cfg.Budget.MaxRequestsPerMinute = DefaultMaxRequestsPerMinute
	}
	if cfg.Budget.Cooldown == 0 {
		cfg.Budget.Cooldown = DefaultCooldown
	}

	if cfg.LLM.Backend == "" {
		cfg.LLM.Backend = "none"
	}
	cfg.LLM.Backend = strings.ToLower(strings.TrimSpace(cfg.LLM.Backend))
	if cfg.LLM.GenerationTimeout == 0 {
		cfg.LLM.GenerationTimeout = report.DefaultGenerationTimeout
	}
	if cfg.LLM.BreakerFailures == 0 {
		cfg.LLM.BreakerFailures = DefaultBreakerFailures
	}
	if cfg.LLM.BreakerOpenTimeout == 0 {
		cfg.LLM.BreakerOpenTimeout = DefaultBreakerOpenTimeout
	}

	if cfg.Throttle.QPS == 0 {
		cfg.Throttle.QPS = DefaultThrottleQPS
	}
	if cfg.Throttle.Burst == 0 {
		cfg.Throttle.Burst = DefaultThrottleBurst
	}
	if cfg.Upstream.Timeout == 0 {
		cfg.Upstream.Timeout = DefaultUpstreamTimeout
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}

	def := telemetry.DefaultConfig()
	t := &cfg.Telemetry
	if t.ServiceName == "" {
		t.ServiceName = def.ServiceName
	}
	if t.ServiceVersion == "" {
		t.ServiceVersion = def.ServiceVersion
	}
	if t.Environment == "" {
		t.Environment = def.Environment
	}
	if t.TraceExporter == "" {
		t.TraceExporter = def.TraceExporter
	}
	if t.MetricExporter == "" {
		t.MetricExporter = def.MetricExporter
	}
	if t.OTLPEndpoint == "" {
		t.OTLPEndpoint = def.OTLPEndpoint
	}
}

var configValidate = validator.New()

// Validate checks the configuration after defaults are applied.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Cache.TTL < evidence.MinCacheTTL {
		return fmt.Errorf("%w: cache ttl %s is below %s", ErrInvalidConfig, c.Cache.TTL, evidence.MinCacheTTL)
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}
