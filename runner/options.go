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

package runner

import (
	"time"

	"trpc.group/trpc-go/trpc-agent-workflow/artifact"
	"trpc.group/trpc-go/trpc-agent-workflow/event"
	"trpc.group/trpc-go/trpc-agent-workflow/graph"
	"trpc.group/trpc-go/trpc-agent-workflow/sandbox"
)

const (
	defaultParallelism     = 4
	defaultTeardownTimeout = 30 * time.Second
)

// Option configures a Runner.
type Option func(*Options)

// Options is the configuration of a Runner.
type Options struct {
	newSession      func() *sandbox.Session
	sandboxOptions  []sandbox.Option
	executorOptions []graph.ExecutorOption
	artifactService artifact.Service
	saver           Saver
	eventHandler    func(*event.Event)
	parallelism     int
	teardownTimeout time.Duration
}

// WithSandboxOptions configures the sandbox session each run gets.
func WithSandboxOptions(opts ...sandbox.Option) Option {
	return func(o *Options) {
		o.sandboxOptions = append(o.sandboxOptions, opts...)
	}
}

// WithSessionFactory replaces how run sessions are created. The factory must
// return a new session on every call.
func WithSessionFactory(newSession func() *sandbox.Session) Option {
	return func(o *Options) {
		o.newSession = newSession
	}
}

// WithMaxSteps sets the step budget of every run.
func WithMaxSteps(n int) Option {
	return func(o *Options) {
		o.executorOptions = append(o.executorOptions, graph.WithMaxSteps(n))
	}
}

// WithArtifactService stores the artifacts of every run.
func WithArtifactService(svc artifact.Service) Option {
	return func(o *Options) {
		o.artifactService = svc
	}
}

// WithSaver records every run when it starts and when it finishes.
func WithSaver(s Saver) Option {
	return func(o *Options) {
		o.saver = s
	}
}

// WithEventHandler receives the step events of every run. It is called from
// the run's goroutine and must be safe for concurrent runs.
func WithEventHandler(h func(*event.Event)) Option {
	return func(o *Options) {
		o.eventHandler = h
	}
}

// WithParallelism bounds the runs RunBatch executes at once.
func WithParallelism(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.parallelism = n
		}
	}
}

// WithTeardownTimeout bounds sandbox teardown after a run.
func WithTeardownTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.teardownTimeout = d
		}
	}
}
