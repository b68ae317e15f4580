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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"trpc.group/trpc-go/trpc-agent-workflow/event"
	"trpc.group/trpc-go/trpc-agent-workflow/graph"
	"trpc.group/trpc-go/trpc-agent-workflow/model"
	"trpc.group/trpc-go/trpc-agent-workflow/runner"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <workflow.yaml>",
		Short: "Run a workflow once and print its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			query, _ := flags.GetString("query")
			files, _ := flags.GetStringSlice("file")
			outputDir, _ := flags.GetString("output-dir")
			maxSteps, _ := flags.GetInt("max-steps")
			asJSON, _ := flags.GetBool("json")
			verbose, _ := flags.GetBool("verbose")
			showPath, _ := flags.GetBool("mermaid")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if query == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				query = strings.TrimSpace(string(data))
			}
			if outputDir == "" {
				outputDir = cfg.Runner.OutputDir
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			clean, err := cfg.StartTelemetry(ctx)
			if err != nil {
				return err
			}
			defer clean()

			reg, closeFn, err := cfg.NewRegistry(ctx)
			if err != nil {
				return err
			}
			defer closeTools(closeFn)
			g, err := loadGraph(reg, args[0])
			if err != nil {
				return err
			}
			opts, err := cfg.RunnerOptions(nil)
			if err != nil {
				return err
			}
			if maxSteps > 0 {
				opts = append(opts, runner.WithMaxSteps(maxSteps))
			}
			out := cmd.OutOrStdout()
			errOut := cmd.ErrOrStderr()
			if verbose {
				opts = append(opts, runner.WithEventHandler(func(ev *event.Event) {
					printEvent(errOut, ev)
				}))
			}
			rn, err := runner.New("", g, opts...)
			if err != nil {
				return err
			}

			res, runErr := rn.Run(ctx, runner.Input{Query: query, Files: files, OutputDir: outputDir})
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
				return runErr
			}
			if res != nil {
				printResult(out, res)
				if showPath {
					fmt.Fprintln(out, g.Mermaid(graph.WithVisited(res.Path)))
				}
			}
			return runErr
		},
	}
	f := cmd.Flags()
	f.StringP("query", "q", "", "user input for the run, - reads stdin")
	f.StringSlice("file", nil, "host file or glob to copy into the sandbox workspace (repeatable)")
	f.StringP("output-dir", "o", "", "directory receiving the files the run creates")
	f.Int("max-steps", 0, "step budget, overriding the workflow and config")
	f.Bool("json", false, "print the full run record as JSON")
	f.BoolP("verbose", "v", false, "print step events to stderr")
	f.Bool("mermaid", false, "print the graph with the executed path highlighted")
	return cmd
}

func printEvent(w io.Writer, ev *event.Event) {
	switch {
	case ev.Object == event.ObjectTypeRunComplete:
		fmt.Fprintf(w, "[%s] halted: %s after %d steps\n", ev.Branch, ev.HaltReason, ev.Step)
	case ev.Object == model.ObjectTypeChatCompletionChunk:
		if len(ev.Choices) > 0 {
			fmt.Fprint(w, ev.Choices[0].Delta.Content)
		}
	default:
		keys := make([]string, 0, len(ev.StateDelta))
		for k := range ev.StateDelta {
			keys = append(keys, k)
		}
		fmt.Fprintf(w, "[%s] step %d %s (%s) %v\n", ev.Branch, ev.Step, ev.Author, ev.NodeType, keys)
	}
}

func printResult(w io.Writer, res *runner.Result) {
	fmt.Fprintf(w, "run:       %s\n", res.RunID)
	fmt.Fprintf(w, "status:    %s (%d steps)\n", res.Status, res.Steps)
	if res.Degraded {
		fmt.Fprintln(w, "sandbox:   degraded, code ran on the host")
	}
	for _, ex := range res.Executions {
		fmt.Fprintf(w, "execution: #%d %s exit=%d %s peak=%dB cpu=%.2fs", ex.ID, ex.Language, ex.ExitCode,
			ex.Elapsed, ex.PeakMemoryBytes, ex.CPUSeconds)
		if ex.ResourceLimitExceeded() {
			fmt.Fprintf(w, " killed=%s", ex.Termination)
		}
		fmt.Fprintln(w)
	}
	for _, a := range res.Artifacts {
		fmt.Fprintf(w, "artifact:  %s\n", a)
	}
	if ne := res.NodeError(); ne != nil {
		fmt.Fprintf(w, "error:     %s\n", ne)
	}
	if res.Error != "" {
		fmt.Fprintf(w, "error:     %s\n", res.Error)
	}
	if res.Conclusion != "" {
		fmt.Fprintf(w, "\n%s\n", res.Conclusion)
	}
}
