//
// Tencent is pleased to support the open source community by making tRPC available.
//
// Copyright (C) 2025 Tencent.
// All rights reserved.
//
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the  Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.
//
//

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"trpc.group/trpc-go/trpc-agent-workflow/config"
	"trpc.group/trpc-go/trpc-agent-workflow/graph"
	"trpc.group/trpc-go/trpc-agent-workflow/log"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "agentflow",
		Short:         "Run LLM workflow graphs with sandboxed code execution",
		SilenceUsage:  true,
		SilenceErrors: false,
		Version:       version,
	}
	root.PersistentFlags().StringP("config", "c", "", "config file (default $AGENTFLOW_CONFIG or ./agentflow.yaml)")
	root.PersistentFlags().String("log-level", "", "override the configured log level")

	root.AddCommand(
		newRunCmd(),
		newValidateCmd(),
		newGraphCmd(),
		newExecCmd(),
		newServeCmd(),
	)
	return root
}

// loadConfig applies the persistent flags on top of the layered config.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	cfg.ApplyLogging()
	return cfg, nil
}

// loadGraph builds the workflow at path against the configured models and
// tools.
func loadGraph(reg *graph.Registry, path string) (*graph.Graph, error) {
	def, err := graph.LoadDefinition(path)
	if err != nil {
		return nil, err
	}
	g, err := graph.Build(def, reg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// closeTools releases the tool sessions opened by cfg.NewRegistry.
func closeTools(closeFn func() error) {
	if err := closeFn(); err != nil {
		log.Warnf("closing tools: %v", err)
	}
}
