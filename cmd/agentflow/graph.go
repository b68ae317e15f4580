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

	"trpc.group/trpc-go/trpc-agent-workflow/graph"
)

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph <workflow.yaml>",
		Short: "Render a workflow as Mermaid, Graphviz DOT or normalized YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			rankdir, _ := cmd.Flags().GetString("rankdir")
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			reg, closeFn, err := cfg.NewRegistry(cmd.Context())
			if err != nil {
				return err
			}
			defer closeTools(closeFn)
			g, err := loadGraph(reg, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch format {
			case "mermaid":
				fmt.Fprintln(out, g.Mermaid(graph.WithRankDir(rankdir)))
			case "dot":
				fmt.Fprintln(out, g.DOT(graph.WithRankDir(rankdir)))
			case "yaml":
				data, err := g.Definition().Marshal()
				if err != nil {
					return err
				}
				_, err = out.Write(data)
				return err
			default:
				return fmt.Errorf("unknown format %q, want mermaid, dot or yaml", format)
			}
			return nil
		},
	}
	cmd.Flags().StringP("format", "f", "mermaid", "output format: mermaid, dot or yaml")
	cmd.Flags().String("rankdir", graph.RankDirLR, "layout direction: TB or LR")
	return cmd
}
