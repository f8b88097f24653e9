// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidRequest is returned when a deep insight request fails validation.
var ErrInvalidRequest = errors.New("invalid deep insight request")

// DefaultRequesterKey is used when a request carries no requester key.
const DefaultRequesterKey = "anonymous"

// Validation status values reported in ResponseMeta.
const (
	ValidationOK       = "ok"
	ValidationInvalid  = "invalid"
	ValidationFallback = "fallback"
)

// insightValidate is the validator instance for insight datatypes.
var insightValidate *validator.Validate

func init() {
	insightValidate = validator.New()
	_ = insightValidate.RegisterValidation("notblank", validateNotBlank)
}

// validateNotBlank rejects strings that are empty after trimming whitespace.
func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// Filter narrows the rows a chart is computed over.
type Filter struct {
	Column   string   `json:"column" validate:"required"`
	Operator string   `json:"operator" validate:"required,oneof=eq neq in nin gt gte lt lte between contains"`
	Values   []string `json:"values"`
}

// ScenarioOperation is one what-if transformation.
type ScenarioOperation struct {
	Type     string   `json:"type" validate:"required"`
	Column   string   `json:"column" validate:"required"`
	Values   []string `json:"values,omitempty"`
	Factor   *float64 `json:"factor,omitempty"`
	Constant *float64 `json:"constant,omitempty"`
}

// Scenario is a what-if definition forwarded to the simulation service.
type Scenario struct {
	TargetMetric string              `json:"targetMetric,omitempty"`
	Operations   []ScenarioOperation `json:"operations" validate:"required,min=1,max=10,dive"`
}

// DeepInsightRequest is the input of the deep insight pipeline.
type DeepInsightRequest struct {
	DatasetID        string    `json:"datasetId" validate:"required,notblank,max=128"`
	RecommendationID string    `json:"recommendationId" validate:"required,notblank,max=128"`
	Aggregation      string    `json:"aggregation,omitempty" validate:"omitempty,oneof=sum avg count min max"`
	TimeBin          string    `json:"timeBin,omitempty" validate:"omitempty,oneof=day week month quarter year"`
	MetricY          string    `json:"metricY,omitempty"`
	GroupBy          string    `json:"groupBy,omitempty"`
	Filters          []Filter  `json:"filters,omitempty" validate:"omitempty,max=20,dive"`
	Scenario         *Scenario `json:"scenario,omitempty" validate:"omitempty"`
	Horizon          *int      `json:"horizon,omitempty"`
	SensitiveMode    bool      `json:"sensitiveMode,omitempty"`
	RequesterKey     string    `json:"requesterKey,omitempty" validate:"max=128"`
	Language         string    `json:"language,omitempty" validate:"omitempty,max=16"`
}

// Validate checks the request against its validation tags.
//
// # Outputs
//
//   - error: nil when valid, otherwise wraps ErrInvalidRequest.
func (r *DeepInsightRequest) Validate() error {
	if err := insightValidate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// Requester returns the requester key, defaulting to DefaultRequesterKey.
func (r *DeepInsightRequest) Requester() string {
	key := strings.TrimSpace(r.RequesterKey)
	if key == "" {
		return DefaultRequesterKey
	}
	return key
}

// ResponseMeta reports how a response was produced.
type ResponseMeta struct {
	RequestID        string `json:"requestId"`
	Provider         string `json:"provider"`
	Model            string `json:"model"`
	DurationMs       int64  `json:"durationMs"`
	CacheHit         bool   `json:"cacheHit"`
	ProviderCacheHit bool   `json:"providerCacheHit"`
	FallbackUsed     bool   `json:"fallbackUsed"`
	FallbackReason   string `json:"fallbackReason,omitempty"`
	EvidenceBytes    int    `json:"evidenceBytes"`
	OutputBytes      int    `json:"outputBytes"`
	ValidationStatus string `json:"validationStatus"`
}

// DeepInsightResponse is the output of the deep insight pipeline.
type DeepInsightResponse struct {
	Report         DeepInsightReport `json:"report"`
	Meta           ResponseMeta      `json:"meta"`
	Explainability Explainability    `json:"explainability"`
	EvidencePack   EvidencePack      `json:"evidencePack"`
}

// ChartQuery is what the chart execution collaborator needs to render the
// recommended chart with the caller's overrides.
type ChartQuery struct {
	DatasetID        string   `json:"datasetId"`
	RecommendationID string   `json:"recommendationId"`
	Aggregation      string   `json:"aggregation,omitempty"`
	TimeBin          string   `json:"timeBin,omitempty"`
	MetricY          string   `json:"metricY,omitempty"`
	GroupBy          string   `json:"groupBy,omitempty"`
	Filters          []Filter `json:"filters,omitempty"`
}

// ChartQuery returns the chart query of the request.
func (r *DeepInsightRequest) ChartQuery() ChartQuery {
	return ChartQuery{
		DatasetID:        strings.TrimSpace(r.DatasetID),
		RecommendationID: strings.TrimSpace(r.RecommendationID),
		Aggregation:      r.Aggregation,
		TimeBin:          r.TimeBin,
		MetricY:          r.MetricY,
		GroupBy:          r.GroupBy,
		Filters:          r.Filters,
	}
}
