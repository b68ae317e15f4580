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
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"trpc.group/trpc-go/trpc-agent-workflow/graph"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <workflow.yaml>...",
		Short: "Check workflow definitions and report every problem",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			reg, closeFn, err := cfg.NewRegistry(cmd.Context())
			if err != nil {
				return err
			}
			defer closeTools(closeFn)
			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				g, err := loadGraph(reg, path)
				if err != nil {
					failed++
					var verr *graph.ValidationError
					if errors.As(err, &verr) {
						fmt.Fprintf(out, "FAIL %s\n", path)
						for _, p := range verr.Problems {
							fmt.Fprintf(out, "  - %s\n", p)
						}
						continue
					}
					fmt.Fprintf(out, "FAIL %s: %v\n", path, err)
					continue
				}
				def := g.Definition()
				fmt.Fprintf(out, "ok   %s (%s: %d nodes, entry %s)\n", path, def.Name, len(def.Nodes), def.Entry)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d workflow(s) invalid", failed, len(args))
			}
			return nil
		},
	}
}
