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

// Package monitor watches a running process, samples its resource usage and
// kills it when a limit is crossed.
package monitor

import (
	"context"
	"sync"
	"time"

	"trpc.group/trpc-go/trpc-agent-workflow/codeexecutor"
	"trpc.group/trpc-go/trpc-agent-workflow/log"
)

// DefaultInterval is the sampling period.
const DefaultInterval = 200 * time.Millisecond

// Limits bounds one execution. Zero fields are unlimited.
type Limits struct {
	Timeout        time.Duration
	MaxMemoryBytes uint64
	MaxCPUSeconds  float64
}

// Target is what a Watch observes.
type Target interface {
	Usage(ctx context.Context) (codeexecutor.Usage, error)
	Kill() error
}

// Observed is the summary produced when a Watch stops.
type Observed struct {
	Elapsed         time.Duration
	PeakMemoryBytes uint64
	CPUSeconds      float64
	Samples         int
	Termination     codeexecutor.Termination
}

// Option configures a Watch.
type Option func(*Watch)

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(w *Watch) {
		if d > 0 {
			w.interval = d
		}
	}
}

// Watch is an active observation of one Target.
type Watch struct {
	target   Target
	limits   Limits
	interval time.Duration
	started  time.Time

	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	observed Observed
	stopped  bool
	result   Observed
}

// Start begins watching t. The first sample is taken immediately. Stop
// must be called once the process has exited.
func Start(t Target, limits Limits, opts ...Option) *Watch {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Watch{
		target:   t,
		limits:   limits,
		interval: DefaultInterval,
		started:  time.Now(),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	go w.loop(ctx)
	return w
}

func (w *Watch) loop(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var timeout <-chan time.Time
	if w.limits.Timeout > 0 {
		timer := time.NewTimer(w.limits.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	if w.sample(ctx) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-timeout:
			w.terminate(codeexecutor.TerminationTimeout)
			return
		case <-ticker.C:
			if w.sample(ctx) {
				return
			}
		}
	}
}

// sample records one usage reading and reports whether the target was
// killed because of it.
func (w *Watch) sample(ctx context.Context) bool {
	u, err := w.target.Usage(ctx)
	if err != nil {
		// The process may have exited between ticks.
		log.Debugf("monitor: usage sample failed: %v", err)
		return false
	}
	w.mu.Lock()
	w.observed.Samples++
	if u.MemoryBytes > w.observed.PeakMemoryBytes {
		w.observed.PeakMemoryBytes = u.MemoryBytes
	}
	if u.CPUSeconds > w.observed.CPUSeconds {
		w.observed.CPUSeconds = u.CPUSeconds
	}
	w.mu.Unlock()

	switch {
	case w.limits.MaxMemoryBytes > 0 && u.MemoryBytes > w.limits.MaxMemoryBytes:
		w.terminate(codeexecutor.TerminationMemory)
		return true
	case w.limits.MaxCPUSeconds > 0 && u.CPUSeconds > w.limits.MaxCPUSeconds:
		w.terminate(codeexecutor.TerminationCPU)
		return true
	}
	return false
}

// terminate kills the target. The first reason recorded wins.
func (w *Watch) terminate(reason codeexecutor.Termination) {
	w.mu.Lock()
	if w.stopped || w.observed.Termination != codeexecutor.TerminationNone {
		w.mu.Unlock()
		return
	}
	w.observed.Termination = reason
	w.mu.Unlock()

	if err := w.target.Kill(); err != nil {
		log.Warnf("monitor: kill after %s limit failed: %v", reason, err)
	}
}

// Killed reports whether the watch has terminated the target.
func (w *Watch) Killed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.observed.Termination != codeexecutor.TerminationNone
}

// Stop ends the observation and returns the summary. Calling it again
// returns the same summary.
func (w *Watch) Stop() Observed {
	w.cancel()
	<-w.done

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.stopped {
		w.stopped = true
		w.result = w.observed
		w.result.Elapsed = time.Since(w.started)
	}
	return w.result
}
