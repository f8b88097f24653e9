// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianInsight/services/insights"
	"github.com/AleutianAI/AleutianInsight/services/insights/config"
	"github.com/AleutianAI/AleutianInsight/services/insights/report"
	"github.com/AleutianAI/AleutianInsight/services/insights/upstream"
	"github.com/AleutianAI/AleutianInsight/services/llm"
)

var (
	explainInput   string
	explainOutput  string
	explainPretty  bool
	explainTimeout time.Duration
)

var explainCmd = &cobra.Command{
	Use:   "explain",
	Short: "Run the insight pipeline offline against a recorded fixture",
	Long: `Reads a JSON fixture holding a request, a dataset profile, a chart
result and optionally a scenario result, builds the evidence pack and prints
the full response. With LLM_BACKEND_TYPE=none the deterministic report is
produced.`,
	Args: cobra.NoArgs,
	RunE: runExplainCommand,
}

func init() {
	explainCmd.Flags().StringVarP(&explainInput, "input", "i", "", "Fixture JSON file (required)")
	explainCmd.Flags().StringVarP(&explainOutput, "output", "o", "-", "Output file, - for stdout")
	explainCmd.Flags().BoolVar(&explainPretty, "pretty", false, "Indent the JSON (default when stdout is a terminal)")
	explainCmd.Flags().DurationVar(&explainTimeout, "timeout", 2*time.Minute, "Overall timeout")
	_ = explainCmd.MarkFlagRequired("input")
}

func runExplainCommand(cmd *cobra.Command, _ []string) error {
	fixture, err := upstream.LoadFixture(explainInput)
	if err != nil {
		return err
	}
	client, err := llm.NewClient(cfg.LLM.Backend)
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	pretty := explainPretty
	if explainOutput != "-" {
		f, err := os.Create(explainOutput)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	} else if !cmd.Flags().Changed("pretty") {
		pretty = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), explainTimeout)
	defer cancel()
	return runExplain(ctx, cfg, fixture, client, logger.Slog(), out, pretty)
}

// runExplain runs one request from fixture and writes the response as JSON.
// The budget gate is disabled; the cache only lives for this call.
func runExplain(ctx context.Context, cfg config.Config, fixture *upstream.Fixture, client llm.StructuredClient, logger *slog.Logger, w io.Writer, pretty bool) error {
	if client != nil {
		client = llm.NewBreakerClient(client, llm.BreakerConfig{
			Name:                "llm-explain",
			ConsecutiveFailures: cfg.LLM.BreakerFailures,
			OpenTimeout:         cfg.LLM.BreakerOpenTimeout,
		})
	}
	scrubber, err := cfg.Insight.Scrubber()
	if err != nil {
		return err
	}
	deps := insights.Dependencies{
		Charts:    fixture,
		Generator: report.NewGenerator(client, report.WithLogger(logger), report.WithTimeout(cfg.LLM.GenerationTimeout)),
	}
	if fixture.ScenarioResult != nil {
		deps.Scenarios = fixture
	}
	svc, err := insights.NewService(deps, insights.Options{
		EvidenceVersion: cfg.Insight.EvidenceVersion,
		DefaultHorizon:  cfg.Insight.DefaultHorizon,
		MaxHorizon:      cfg.Insight.MaxHorizon,
		Build:           cfg.Insight.BuildOptions(scrubber),
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	req := fixture.Request
	resp, err := svc.Generate(ctx, &req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(resp)
}
