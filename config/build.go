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

package config

import (
	"context"
	"errors"
	"fmt"
	"os"

	"trpc.group/trpc-go/trpc-agent-workflow/artifact"
	"trpc.group/trpc-go/trpc-agent-workflow/artifact/cos"
	"trpc.group/trpc-go/trpc-agent-workflow/artifact/inmemory"
	"trpc.group/trpc-go/trpc-agent-workflow/codeexecutor/container"
	"trpc.group/trpc-go/trpc-agent-workflow/codeexecutor/local"
	"trpc.group/trpc-go/trpc-agent-workflow/graph"
	"trpc.group/trpc-go/trpc-agent-workflow/log"
	"trpc.group/trpc-go/trpc-agent-workflow/model"
	"trpc.group/trpc-go/trpc-agent-workflow/model/gemini"
	"trpc.group/trpc-go/trpc-agent-workflow/model/openai"
	"trpc.group/trpc-go/trpc-agent-workflow/runner"
	"trpc.group/trpc-go/trpc-agent-workflow/runner/store"
	storeinmemory "trpc.group/trpc-go/trpc-agent-workflow/runner/store/inmemory"
	storeredis "trpc.group/trpc-go/trpc-agent-workflow/runner/store/redis"
	"trpc.group/trpc-go/trpc-agent-workflow/sandbox"
	rstorage "trpc.group/trpc-go/trpc-agent-workflow/storage/redis"
	"trpc.group/trpc-go/trpc-agent-workflow/telemetry/metric"
	"trpc.group/trpc-go/trpc-agent-workflow/telemetry/trace"
	"trpc.group/trpc-go/trpc-agent-workflow/tool"
	"trpc.group/trpc-go/trpc-agent-workflow/tool/codeexec"
	"trpc.group/trpc-go/trpc-agent-workflow/tool/mcp"
)

// ApplyLogging sets the global log level.
func (c *Config) ApplyLogging() {
	log.SetLevel(c.Log.Level)
}

// NewModel creates the provider client. The API key is read from the
// variable named by APIKeyEnv; an unset variable leaves the provider
// default in place.
func (m ModelConfig) NewModel(ctx context.Context) (model.Model, error) {
	id := m.Model
	if id == "" {
		id = m.Name
	}
	key := ""
	if m.APIKeyEnv != "" {
		key = os.Getenv(m.APIKeyEnv)
	}
	switch m.Provider {
	case ProviderOpenAI:
		var opts []openai.Option
		if key != "" {
			opts = append(opts, openai.WithAPIKey(key))
		}
		if m.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(m.BaseURL))
		}
		return openai.New(id, opts...), nil
	case ProviderGemini:
		var opts []gemini.Option
		if key != "" {
			opts = append(opts, gemini.WithAPIKey(key))
		}
		if m.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(m.BaseURL))
		}
		return gemini.New(ctx, id, opts...)
	default:
		return nil, fmt.Errorf("unknown model provider %q", m.Provider)
	}
}

// InvokerOptions turns the retry settings into invoker options. Zero
// values keep the retry defaults.
func (m ModelConfig) InvokerOptions() []model.InvokerOption {
	var opts []model.InvokerOption
	if m.MaxAttempts > 0 {
		opts = append(opts, model.WithMaxAttempts(m.MaxAttempts))
	}
	if m.InitialBackoff > 0 || m.MaxBackoff > 0 {
		p := model.DefaultRetryPolicy()
		initial, maxInterval := p.InitialInterval, p.MaxInterval
		if m.InitialBackoff > 0 {
			initial = m.InitialBackoff
		}
		if m.MaxBackoff > 0 {
			maxInterval = m.MaxBackoff
		}
		opts = append(opts, model.WithBackoff(initial, maxInterval))
	}
	if m.AttemptTimeout > 0 {
		opts = append(opts, model.WithAttemptTimeout(m.AttemptTimeout))
	}
	return opts
}

// Connection resolves the MCP connection, reading header values from the
// environment.
func (t ToolSetConfig) Connection() mcp.ConnectionConfig {
	conn := mcp.ConnectionConfig{
		Transport: t.Transport,
		ServerURL: t.ServerURL,
		Command:   t.Command,
		Args:      t.Args,
		Timeout:   t.Timeout,
	}
	if len(t.HeadersEnv) > 0 {
		conn.Headers = make(map[string]string, len(t.HeadersEnv))
		for header, env := range t.HeadersEnv {
			conn.Headers[header] = os.Getenv(env)
		}
	}
	return conn
}

// NewToolSet creates the MCP tool set. It does not connect.
func (t ToolSetConfig) NewToolSet() *mcp.ToolSet {
	opts := []mcp.ToolSetOption{mcp.WithName(t.Name)}
	if len(t.Include) > 0 || len(t.Exclude) > 0 {
		opts = append(opts, mcp.WithToolFilter(mcp.Chain(
			mcp.NewIncludeFilter(t.Include...),
			mcp.NewExcludeFilter(t.Exclude...),
		)))
	}
	return mcp.NewToolSet(t.Connection(), opts...)
}

// NewRegistry registers every configured model, the code execution tool,
// which runs on the session of the calling run, and the tools of every
// configured MCP server. Tool names must be unique across all of them.
// The returned function closes the MCP sessions.
func (c *Config) NewRegistry(ctx context.Context) (*graph.Registry, func() error, error) {
	reg := graph.NewRegistry()
	for _, m := range c.Models {
		mdl, err := m.NewModel(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("model %s: %w", m.Name, err)
		}
		reg.RegisterModel(m.Name, model.NewInvoker(mdl, m.InvokerOptions()...))
	}

	var sets []*mcp.ToolSet
	closeAll := func() error {
		var errs []error
		for _, ts := range sets {
			errs = append(errs, ts.Close())
		}
		return errors.Join(errs...)
	}
	builtin := codeexec.New()
	owner := map[string]string{builtin.Declaration().Name: "builtin"}
	tools := []tool.Tool{builtin}
	for _, tc := range c.Tools {
		ts := tc.NewToolSet()
		sets = append(sets, ts)
		listed, err := ts.Tools(ctx)
		if err != nil {
			return nil, nil, errors.Join(fmt.Errorf("tools %s: %w", tc.Name, err), closeAll())
		}
		for _, t := range listed {
			name := t.Declaration().Name
			if prev, ok := owner[name]; ok {
				err := fmt.Errorf("tools %s: tool %q is already provided by %s", tc.Name, name, prev)
				return nil, nil, errors.Join(err, closeAll())
			}
			owner[name] = tc.Name
			tools = append(tools, t)
		}
		log.Infof("tools %s: registered %d tool(s)", tc.Name, len(listed))
	}
	reg.RegisterTool(tools...)
	return reg, closeAll, nil
}

// SandboxOptions configures the session of every run.
func (c *Config) SandboxOptions() []sandbox.Option {
	s := c.Sandbox
	opts := []sandbox.Option{
		sandbox.WithDefaultTimeout(s.Timeout),
		sandbox.WithMemoryLimit(s.MemoryLimit),
		sandbox.WithCPULimit(s.CPULimit),
		sandbox.WithSampleInterval(s.SampleInterval),
	}
	if s.OutputLimit > 0 {
		opts = append(opts, sandbox.WithOutputLimit(s.OutputLimit))
	}
	switch s.Backend {
	case BackendDocker:
		copts := []container.Option{container.WithImage(s.Image)}
		if s.DockerHost != "" {
			copts = append(copts, container.WithHost(s.DockerHost))
		}
		if s.MemoryLimit > 0 {
			copts = append(copts, container.WithMemoryLimit(int64(s.MemoryLimit)))
		}
		opts = append(opts, sandbox.WithBackend(container.New(copts...)))
	case BackendLocal:
		opts = append(opts, sandbox.WithBackend(local.New()))
	}
	return opts
}

// OpenStore opens the run record store.
func (c *Config) OpenStore() (store.Store, error) {
	switch c.Store.Type {
	case KindRedis:
		url := os.Getenv(c.Store.RedisURLEnv)
		if url == "" {
			return nil, fmt.Errorf("store: %s is not set", c.Store.RedisURLEnv)
		}
		var opts []storeredis.Option
		if c.Store.Prefix != "" {
			opts = append(opts, storeredis.WithPrefix(c.Store.Prefix))
		}
		if c.Store.TTL > 0 {
			opts = append(opts, storeredis.WithTTL(c.Store.TTL))
		}
		return storeredis.New([]rstorage.Option{rstorage.WithURL(url)}, opts...)
	default:
		return storeinmemory.New(storeinmemory.WithMaxRuns(c.Store.MaxRuns)), nil
	}
}

// OpenArtifacts opens the artifact service, or returns nil when artifacts
// are not persisted.
func (c *Config) OpenArtifacts() (artifact.Service, error) {
	switch c.Artifacts.Type {
	case KindMemory:
		return inmemory.NewService(), nil
	case KindCOS:
		var opts []cos.Option
		if c.Artifacts.COSTimeout > 0 {
			opts = append(opts, cos.WithTimeout(c.Artifacts.COSTimeout))
		}
		return cos.NewService(c.Artifacts.COSBucketURL, opts...)
	default:
		return nil, nil
	}
}

// RunnerOptions wires the sandbox, budget, pool, artifacts and store into
// runner options.
func (c *Config) RunnerOptions(st store.Store) ([]runner.Option, error) {
	opts := []runner.Option{
		runner.WithSandboxOptions(c.SandboxOptions()...),
		runner.WithParallelism(c.Runner.Parallelism),
	}
	if c.Runner.MaxSteps > 0 {
		opts = append(opts, runner.WithMaxSteps(c.Runner.MaxSteps))
	}
	svc, err := c.OpenArtifacts()
	if err != nil {
		return nil, err
	}
	if svc != nil {
		opts = append(opts, runner.WithArtifactService(svc))
	}
	if st != nil {
		opts = append(opts, runner.WithSaver(st))
	}
	return opts, nil
}

// StartTelemetry starts the enabled exporters. The returned function flushes
// and stops them.
func (c *Config) StartTelemetry(ctx context.Context) (func() error, error) {
	var cleanups []func() error
	stop := func() error {
		var errs []error
		for _, fn := range cleanups {
			errs = append(errs, fn())
		}
		return errors.Join(errs...)
	}
	if t := c.Telemetry.Traces; t.Enabled {
		opts := []trace.Option{trace.WithProtocol(t.Protocol)}
		if t.Endpoint != "" {
			opts = append(opts, trace.WithEndpoint(t.Endpoint))
		}
		clean, err := trace.Start(ctx, opts...)
		if err != nil {
			return stop, fmt.Errorf("start tracing: %w", err)
		}
		cleanups = append(cleanups, clean)
	}
	if m := c.Telemetry.Metrics; m.Enabled {
		opts := []metric.Option{metric.WithProtocol(m.Protocol)}
		if m.Endpoint != "" {
			opts = append(opts, metric.WithEndpoint(m.Endpoint))
		}
		clean, err := metric.Start(ctx, opts...)
		if err != nil {
			return stop, fmt.Errorf("start metrics: %w", err)
		}
		cleanups = append(cleanups, clean)
	}
	return stop, nil
}
