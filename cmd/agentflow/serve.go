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
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"trpc.group/trpc-go/trpc-agent-workflow/log"
	"trpc.group/trpc-go/trpc-agent-workflow/runner"
	"trpc.group/trpc-go/trpc-agent-workflow/server"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve <workflow.yaml>...",
		Short: "Serve workflows over HTTP",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			clean, err := cfg.StartTelemetry(ctx)
			if err != nil {
				return err
			}
			defer clean()

			st, err := cfg.OpenStore()
			if err != nil {
				return err
			}
			opts, err := cfg.RunnerOptions(st)
			if err != nil {
				return err
			}
			reg, closeFn, err := cfg.NewRegistry(ctx)
			if err != nil {
				return err
			}
			defer closeTools(closeFn)
			runners := make([]*runner.Runner, 0, len(args))
			seen := map[string]string{}
			for _, path := range args {
				g, err := loadGraph(reg, path)
				if err != nil {
					return err
				}
				rn, err := runner.New("", g, opts...)
				if err != nil {
					return err
				}
				if prev, ok := seen[rn.Name()]; ok {
					return fmt.Errorf("workflow %q is defined by both %s and %s", rn.Name(), prev, path)
				}
				seen[rn.Name()] = path
				runners = append(runners, rn)
			}

			s := server.New(runners, server.WithStore(st), server.WithCORSOrigins(cfg.Server.CORSOrigins...))
			srv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           s.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			serverErrors := make(chan error, 1)
			go func() {
				log.Infof("agentflow serving %d workflow(s) on %s", len(runners), srv.Addr)
				serverErrors <- srv.ListenAndServe()
			}()

			select {
			case err := <-serverErrors:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case <-ctx.Done():
				log.Infof("shutting down")
				sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(sctx); err != nil {
					log.Warnf("graceful shutdown did not complete: %v", err)
					_ = srv.Close()
				}
				s.Close()
			}
			return nil
		},
	}
	cmd.Flags().String("addr", "", "listen address (default from config)")
	return cmd
}
