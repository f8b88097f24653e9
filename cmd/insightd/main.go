// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command insightd serves evidence-grounded deep insights over HTTP and runs
// the same pipeline offline against recorded fixtures.
//
// # Usage
//
//	insightd serve --config insight.yaml
//	insightd explain --input fixture.json
//
// # Environment Variables
//
// See package services/insights/config. LLM_BACKEND_TYPE selects the model
// backend; OPENAI_API_KEY, ANTHROPIC_API_KEY and OLLAMA_BASE_URL configure
// it.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianInsight/pkg/logging"
	"github.com/AleutianAI/AleutianInsight/services/insights/config"
)

var (
	configPath string
	logLevel   string

	cfg    config.Config
	logger *logging.Logger

	rootCmd = &cobra.Command{
		Use:           "insightd",
		Short:         "Evidence-grounded deep insights for chart recommendations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}
			level, err := logging.ParseLevel(cfg.Logging.Level)
			if err != nil {
				return err
			}
			format := logging.FormatAuto
			if cfg.Logging.JSON {
				format = logging.FormatJSON
			}
			logger = logging.New(logging.Config{
				Level:   level,
				Service: cfg.Telemetry.ServiceName,
				Format:  format,
				LogDir:  cfg.Logging.Dir,
			})
			slog.SetDefault(logger.Slog())
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Close()
			}
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd, explainCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
