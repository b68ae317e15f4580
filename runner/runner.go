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

// Package runner executes workflow graphs on behalf of callers. Every run
// gets its own sandbox session, reachable by tools through the context, and
// ends with a Result record.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"trpc.group/trpc-go/trpc-agent-workflow/artifact"
	"trpc.group/trpc-go/trpc-agent-workflow/event"
	"trpc.group/trpc-go/trpc-agent-workflow/graph"
	itelemetry "trpc.group/trpc-go/trpc-agent-workflow/internal/telemetry"
	"trpc.group/trpc-go/trpc-agent-workflow/log"
	"trpc.group/trpc-go/trpc-agent-workflow/model"
	"trpc.group/trpc-go/trpc-agent-workflow/sandbox"
	"trpc.group/trpc-go/trpc-agent-workflow/telemetry/metric"
	"trpc.group/trpc-go/trpc-agent-workflow/telemetry/trace"
)

// Saver persists run records. Save is called once when a run starts and
// again with the final record.
type Saver interface {
	Save(ctx context.Context, result *Result) error
}

// Runner runs one graph. It is safe for concurrent use; runs share only the
// read-only graph.
type Runner struct {
	name  string
	graph *graph.Graph
	opts  Options
}

// New creates a Runner for g. An empty name falls back to the graph name.
func New(name string, g *graph.Graph, opts ...Option) (*Runner, error) {
	if g == nil {
		return nil, errors.New("runner: graph is nil")
	}
	if name == "" {
		name = g.Name()
	}
	o := Options{
		parallelism:     defaultParallelism,
		teardownTimeout: defaultTeardownTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.newSession == nil {
		sbOpts := o.sandboxOptions
		o.newSession = func() *sandbox.Session { return sandbox.New(sbOpts...) }
	}
	return &Runner{name: name, graph: g, opts: o}, nil
}

// Name is the workflow name used in records and artifact paths.
func (r *Runner) Name() string {
	return r.name
}

// Graph returns the executed graph.
func (r *Runner) Graph() *graph.Graph {
	return r.graph
}

// Run executes one run to completion. A run that exhausts its budget is not
// an error. On error the partial record is returned alongside.
func (r *Runner) Run(ctx context.Context, in Input) (*Result, error) {
	if in.RunID == "" {
		in.RunID = uuid.New().String()
	}
	ctx, span := trace.Tracer.Start(ctx, itelemetry.SpanNameInvocation)
	defer span.End()
	span.SetAttributes(
		attribute.String(itelemetry.KeyWorkflow, r.name),
		attribute.String(itelemetry.KeyRunID, in.RunID),
	)

	res := &Result{
		RunID:     in.RunID,
		Workflow:  r.name,
		Status:    StatusRunning,
		Query:     in.Query,
		StartedAt: time.Now(),
	}
	r.save(ctx, res)

	sess := r.opts.newSession()
	res.Sandbox = sess.ID()
	defer r.teardown(ctx, sess)
	ctx = sandbox.NewContext(ctx, sess)

	runResult, err := r.execute(ctx, sess, in)
	if runResult != nil {
		res.HaltReason = runResult.HaltReason
		res.Steps = runResult.Steps
		res.Path = runResult.Path
		res.Messages = graph.Messages(runResult.State)
		res.Conclusion = conclusion(runResult.State)
		res.State = runResult.State.Clone()
		delete(res.State, graph.StateKeyMessages)
	}
	res.Executions = sess.Results()
	res.Degraded = sess.Degraded()

	if ferr := r.collectArtifacts(ctx, sess, in, res); ferr != nil && err == nil {
		err = ferr
	}

	res.Status = statusOf(res.HaltReason, err)
	if err != nil {
		res.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Errorf("run %s of %s failed after %d steps: %v", res.RunID, r.name, res.Steps, err)
	} else {
		log.Infof("run %s of %s: %s after %d steps", res.RunID, r.name, res.Status, res.Steps)
	}
	res.FinishedAt = time.Now()
	span.SetAttributes(attribute.String(itelemetry.KeyStatus, string(res.Status)))
	metric.Count(ctx, itelemetry.MetricInvocations,
		attribute.String(itelemetry.KeyWorkflow, r.name),
		attribute.String(itelemetry.KeyStatus, string(res.Status)),
	)
	r.save(ctx, res)
	return res, err
}

func (r *Runner) execute(ctx context.Context, sess *sandbox.Session, in Input) (*graph.RunResult, error) {
	if len(in.Files) > 0 {
		isolated, err := sess.RegisterWorkspace(ctx, in.Files)
		if err != nil {
			return nil, fmt.Errorf("register workspace: %w", err)
		}
		if !isolated {
			log.Warnf("run %s: input files registered in a degraded local workspace", in.RunID)
		}
	}

	execOpts := append([]graph.ExecutorOption{graph.WithRunID(in.RunID)}, r.opts.executorOptions...)
	if cb := r.stepCallback(in.OnEvent); cb != nil {
		execOpts = append(execOpts, graph.WithStepCallback(cb))
	}
	exec, err := graph.NewExecutor(r.graph, execOpts...)
	if err != nil {
		return nil, err
	}
	return exec.Run(ctx, initialState(in))
}

func (r *Runner) stepCallback(onEvent func(*event.Event)) graph.StepCallback {
	shared := r.opts.eventHandler
	switch {
	case shared == nil && onEvent == nil:
		return nil
	case shared == nil:
		return onEvent
	case onEvent == nil:
		return shared
	}
	return func(ev *event.Event) {
		shared(ev)
		onEvent(ev)
	}
}

func initialState(in Input) graph.State {
	state := graph.State{}
	for k, v := range in.State {
		state[k] = v
	}
	if in.Query != "" {
		state[graph.StateKeyUserInput] = in.Query
	}
	if len(in.Messages) > 0 {
		msgs := append([]model.Message(nil), in.Messages...)
		if in.Query != "" {
			msgs = append(msgs, model.NewUserMessage(in.Query))
		}
		state[graph.StateKeyMessages] = msgs
	}
	return state
}

// collectArtifacts downloads the files the run produced and stores them in
// the artifact service when one is configured.
func (r *Runner) collectArtifacts(ctx context.Context, sess *sandbox.Session, in Input, res *Result) error {
	if in.OutputDir == "" && r.opts.artifactService == nil {
		return nil
	}
	ctx = context.WithoutCancel(ctx)
	dir := in.OutputDir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "agentflow-artifacts-")
		if err != nil {
			return fmt.Errorf("create artifact dir: %w", err)
		}
		defer os.RemoveAll(tmp)
		dir = tmp
	}
	paths, err := sess.DownloadArtifacts(ctx, dir)
	if err != nil && !errors.Is(err, sandbox.ErrSessionClosed) {
		return fmt.Errorf("download artifacts: %w", err)
	}
	if in.OutputDir != "" {
		res.Artifacts = paths
	}
	if r.opts.artifactService == nil || len(paths) == 0 {
		return nil
	}
	names := make([]string, 0, len(paths))
	for _, p := range paths {
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return fmt.Errorf("artifact %s: %w", p, err)
		}
		names = append(names, filepath.ToSlash(rel))
	}
	info := artifact.RunInfo{Workflow: r.name, RunID: res.RunID}
	res.StoredArtifacts, err = artifact.SaveFiles(ctx, r.opts.artifactService, info, dir, names)
	return err
}

func (r *Runner) teardown(ctx context.Context, sess *sandbox.Session) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.teardownTimeout)
	defer cancel()
	if err := sess.Teardown(ctx); err != nil {
		log.Warnf("sandbox %s teardown: %v", sess.ID(), err)
	}
}

func (r *Runner) save(ctx context.Context, res *Result) {
	if r.opts.saver == nil {
		return
	}
	snapshot := *res
	if err := r.opts.saver.Save(context.WithoutCancel(ctx), &snapshot); err != nil {
		log.Warnf("save run %s: %v", res.RunID, err)
	}
}

// RunBatch executes the inputs concurrently on a bounded worker pool. The
// results line up with the inputs; a run that failed before producing a
// record leaves a nil entry. The returned error joins every run error.
func (r *Runner) RunBatch(ctx context.Context, inputs []Input) ([]*Result, error) {
	pool, err := ants.NewPool(r.opts.parallelism)
	if err != nil {
		return nil, fmt.Errorf("failed to create run worker pool: %w", err)
	}
	defer pool.Release()

	results := make([]*Result, len(inputs))
	errs := make([]error, len(inputs))
	var wg sync.WaitGroup
	for i := range inputs {
		idx := i
		wg.Add(1)
		task := func() {
			defer wg.Done()
			res, err := r.Run(ctx, inputs[idx])
			results[idx] = res
			if err != nil {
				errs[idx] = fmt.Errorf("run %d: %w", idx, err)
			}
		}
		if err := pool.Submit(task); err != nil {
			wg.Done()
			errs[idx] = fmt.Errorf("submit run %d: %w", idx, err)
		}
	}
	wg.Wait()
	return results, errors.Join(errs...)
}
