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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"trpc.group/trpc-go/trpc-agent-workflow/codeexecutor"
	"trpc.group/trpc-go/trpc-agent-workflow/log"
	"trpc.group/trpc-go/trpc-agent-workflow/sandbox"
)

func newExecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec [file|-]",
		Short: "Execute code in a fresh sandbox session",
		Long: `Execute code in a fresh sandbox session and print the result with its
resource usage. Markdown input is reduced to its fenced code blocks, which run
in order in the same workspace.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			lang, _ := flags.GetString("lang")
			code, _ := flags.GetString("code")
			timeout, _ := flags.GetDuration("timeout")
			files, _ := flags.GetStringSlice("file")
			outputDir, _ := flags.GetString("output-dir")
			asJSON, _ := flags.GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			blocks, err := readBlocks(cmd.InOrStdin(), args, code, lang)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			sess := sandbox.New(cfg.SandboxOptions()...)
			defer func() {
				tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
				defer cancel()
				if err := sess.Teardown(tctx); err != nil {
					log.Warnf("teardown: %v", err)
				}
			}()
			if len(files) > 0 {
				if _, err := sess.RegisterWorkspace(ctx, files); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			var results []codeexecutor.ExecutionResult
			for _, b := range blocks {
				res, err := sess.Execute(ctx, codeexecutor.ExecutionRequest{
					Language: b.Language,
					Code:     b.Code,
					Timeout:  timeout,
				})
				if err != nil {
					return err
				}
				results = append(results, res)
				if !asJSON {
					fmt.Fprint(out, res.String())
					fmt.Fprintf(out, "elapsed: %s peak_memory: %dB cpu: %.2fs backend: %s\n",
						res.Elapsed, res.PeakMemoryBytes, res.CPUSeconds, res.Backend)
				}
			}
			if sess.Degraded() {
				log.Warnf("sandbox degraded: code ran on the host")
			}
			if outputDir != "" {
				paths, err := sess.DownloadArtifacts(ctx, outputDir)
				if err != nil {
					return err
				}
				for _, p := range paths {
					fmt.Fprintf(cmd.ErrOrStderr(), "artifact: %s\n", p)
				}
			}
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringP("lang", "l", "", "language: python, bash or sh (default from the file extension, else python)")
	f.StringP("code", "e", "", "code to run instead of a file")
	f.Duration("timeout", 0, "per execution timeout (default from config)")
	f.StringSlice("file", nil, "host file or glob to copy into the workspace (repeatable)")
	f.StringP("output-dir", "o", "", "directory receiving created files")
	f.Bool("json", false, "print the execution results as JSON")
	return cmd
}

// readBlocks returns the code to run. Markdown sources yield their fenced
// blocks; anything else is one block.
func readBlocks(stdin io.Reader, args []string, code, lang string) ([]codeexecutor.CodeBlock, error) {
	src := code
	name := ""
	if src == "" {
		if len(args) == 0 {
			return nil, fmt.Errorf("nothing to execute: pass a file, - or --code")
		}
		name = args[0]
		var data []byte
		var err error
		if name == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(name)
		}
		if err != nil {
			return nil, err
		}
		src = string(data)
	}
	if lang == "" {
		lang = languageOf(name)
	}
	if lang == "" || lang == "markdown" {
		if blocks := codeexecutor.ExtractCodeBlock(src, codeexecutor.DefaultDelimiter); len(blocks) > 0 {
			return blocks, nil
		}
	}
	if lang == "markdown" {
		return nil, fmt.Errorf("%s holds no fenced code blocks", name)
	}
	return []codeexecutor.CodeBlock{{Code: src, Language: lang}}, nil
}

func languageOf(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".py":
		return "python"
	case ".sh":
		return "sh"
	case ".bash":
		return "bash"
	case ".md", ".markdown":
		return "markdown"
	}
	return ""
}
