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

package sandbox

import (
	"time"

	"trpc.group/trpc-go/trpc-agent-workflow/codeexecutor"
	"trpc.group/trpc-go/trpc-agent-workflow/codeexecutor/local"
)

// DefaultTimeout applies when neither the request nor the session sets one.
const DefaultTimeout = 60 * time.Second

// Option configures a Session.
type Option func(*Session)

// WithBackend sets the isolated backing context. When it cannot start the
// session falls back to local execution.
func WithBackend(b codeexecutor.Backend) Option {
	return func(s *Session) {
		s.backend = b
	}
}

// WithFallback replaces the constructor of the local fallback backend.
func WithFallback(newFallback func() codeexecutor.Backend) Option {
	return func(s *Session) {
		s.newFallback = newFallback
	}
}

// WithDefaultTimeout sets the per execution timeout used when a request
// carries none.
func WithDefaultTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.limits.Timeout = d
		}
	}
}

// WithMemoryLimit kills executions whose resident memory exceeds bytes.
func WithMemoryLimit(bytes uint64) Option {
	return func(s *Session) {
		s.limits.MaxMemoryBytes = bytes
	}
}

// WithCPULimit kills executions that consume more than seconds of CPU.
func WithCPULimit(seconds float64) Option {
	return func(s *Session) {
		s.limits.MaxCPUSeconds = seconds
	}
}

// WithOutputLimit caps stdout and stderr, each, to n bytes.
func WithOutputLimit(n int) Option {
	return func(s *Session) {
		s.outputLimit = n
	}
}

// WithSampleInterval sets the resource sampling period.
func WithSampleInterval(d time.Duration) Option {
	return func(s *Session) {
		s.sampleInterval = d
	}
}

func defaultFallback() codeexecutor.Backend {
	return local.New()
}
