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

// Package sandbox manages the lifetime of one isolated code execution
// context on behalf of a workflow run.
//
// A Session is created lazily on first use, executes requests one at a time
// against a shared workspace, reports resource usage for every execution and
// is destroyed by Teardown. When the isolated backend cannot be started the
// session degrades to running code on the host and says so.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"trpc.group/trpc-go/trpc-agent-workflow/codeexecutor"
	"trpc.group/trpc-go/trpc-agent-workflow/codeexecutor/monitor"
	itelemetry "trpc.group/trpc-go/trpc-agent-workflow/internal/telemetry"
	"trpc.group/trpc-go/trpc-agent-workflow/log"
	"trpc.group/trpc-go/trpc-agent-workflow/telemetry/metric"
	"trpc.group/trpc-go/trpc-agent-workflow/telemetry/trace"
)

// ErrSessionClosed is returned by operations on a torn down session.
var ErrSessionClosed = errors.New("sandbox session closed")

// State is the lifecycle state of a Session.
type State int

// Session states.
const (
	StateUninitialized State = iota
	StateReady
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateTornDown:
		return "torn_down"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type stamp struct {
	size    int64
	modTime time.Time
}

func stampOf(f codeexecutor.FileInfo) stamp {
	return stamp{size: f.Size, modTime: f.ModTime}
}

// Session is one sandbox. Methods are safe for concurrent use; executions
// are serialized.
type Session struct {
	id             string
	backend        codeexecutor.Backend
	newFallback    func() codeexecutor.Backend
	limits         monitor.Limits
	outputLimit    int
	sampleInterval time.Duration

	mu       sync.Mutex
	state    State
	active   codeexecutor.Backend
	degraded bool
	calls    int64
	results  []codeexecutor.ExecutionResult
	// inputs holds registered files as they were copied in.
	inputs map[string]stamp
	// downloaded holds files as they were at the last download.
	downloaded map[string]stamp
}

// New creates a session. No backing context exists until the first call
// that needs one.
func New(opts ...Option) *Session {
	s := &Session{
		id:          uuid.New().String(),
		newFallback: defaultFallback,
		limits:      monitor.Limits{Timeout: DefaultTimeout},
		outputLimit: codeexecutor.DefaultOutputLimit,
		inputs:      make(map[string]stamp),
		downloaded:  make(map[string]stamp),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID identifies the session.
func (s *Session) ID() string {
	return s.id
}

// State reports the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Degraded reports whether code runs on the host instead of an isolated
// backing context.
func (s *Session) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// BackendName names the active backing context, or "" before start.
func (s *Session) BackendName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return ""
	}
	return s.active.Name()
}

// Results returns every execution result in call order.
func (s *Session) Results() []codeexecutor.ExecutionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]codeexecutor.ExecutionResult(nil), s.results...)
}

// ensureStarted brings the session to StateReady. s.mu must be held.
func (s *Session) ensureStarted(ctx context.Context) error {
	switch s.state {
	case StateTornDown:
		return ErrSessionClosed
	case StateReady:
		return nil
	}

	if s.backend != nil {
		err := s.backend.Start(ctx)
		if err == nil {
			s.active = s.backend
			s.state = StateReady
			log.Debugf("sandbox %s ready on %s", s.id, s.backend.Name())
			return nil
		}
		log.Warnf("sandbox %s: %s backend unavailable, falling back to local execution: %v",
			s.id, s.backend.Name(), err)
	}

	fallback := s.newFallback()
	if err := fallback.Start(ctx); err != nil {
		return fmt.Errorf("start local sandbox: %w", err)
	}
	s.active = fallback
	s.degraded = true
	s.state = StateReady
	return nil
}

// RegisterWorkspace copies files into the workspace. Entries may be paths
// or doublestar glob patterns; directories are copied recursively. It
// reports whether the files landed in an isolated backing context, false
// meaning they went to the local fallback workspace.
func (s *Session) RegisterWorkspace(ctx context.Context, files []string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureStarted(ctx); err != nil {
		return false, err
	}

	copied := make(map[string]bool)
	for _, entry := range files {
		matches, err := expand(entry)
		if err != nil {
			return !s.degraded, err
		}
		for _, m := range matches {
			if err := s.active.CopyIn(ctx, m.host, m.name); err != nil {
				return !s.degraded, s.checkBackend(ctx, fmt.Errorf("register %s: %w", m.host, err))
			}
			copied[m.name] = true
		}
	}

	listing, err := s.active.List(ctx)
	if err != nil {
		return !s.degraded, s.checkBackend(ctx, fmt.Errorf("list workspace: %w", err))
	}
	for _, f := range listing {
		if copied[f.Name] {
			s.inputs[f.Name] = stampOf(f)
		}
	}
	return !s.degraded, nil
}

type workspaceFile struct {
	host string
	name string
}

func expand(entry string) ([]workspaceFile, error) {
	var roots []string
	if strings.ContainsAny(entry, "*?[{") {
		matches, err := doublestar.FilepathGlob(entry)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", entry, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("pattern %q matched no files", entry)
		}
		roots = matches
	} else {
		roots = []string{entry}
	}

	var out []workspaceFile
	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, workspaceFile{host: root, name: filepath.Base(root)})
			continue
		}
		base := filepath.Base(filepath.Clean(root))
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || !d.Type().IsRegular() {
				return err
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			out = append(out, workspaceFile{host: path, name: filepath.ToSlash(filepath.Join(base, rel))})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Execute runs one request. Failures of the code itself, including limit
// kills and unsupported languages, are reported in the result; the error is
// reserved for a closed session or a broken backing context.
func (s *Session) Execute(ctx context.Context, req codeexecutor.ExecutionRequest) (codeexecutor.ExecutionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureStarted(ctx); err != nil {
		return codeexecutor.ExecutionResult{}, err
	}

	s.calls++
	result := codeexecutor.ExecutionResult{
		ID:       s.calls,
		Language: req.Language,
		Backend:  s.active.Name(),
	}

	ctx, span := trace.Tracer.Start(ctx, itelemetry.SpanNameSandboxExec)
	defer span.End()
	span.SetAttributes(
		attribute.String(itelemetry.KeySessionID, s.id),
		attribute.String(itelemetry.KeyBackend, result.Backend),
		attribute.String(itelemetry.KeyLanguage, req.Language),
	)

	lang, ok := codeexecutor.NormalizeLanguage(req.Language)
	if !ok {
		result.ExitCode = -1
		result.Stderr = fmt.Sprintf("unsupported language: %s", req.Language)
		s.record(ctx, result)
		return result, nil
	}
	result.Language = string(lang)

	before, err := s.active.List(ctx)
	if err != nil {
		return codeexecutor.ExecutionResult{}, s.checkBackend(ctx, fmt.Errorf("list workspace: %w", err))
	}

	limits := s.limits
	if req.Timeout > 0 {
		limits.Timeout = req.Timeout
	}
	stdout := codeexecutor.NewLimitedBuffer(s.outputLimit)
	stderr := codeexecutor.NewLimitedBuffer(s.outputLimit)
	proc, err := s.active.Exec(ctx, codeexecutor.Command{
		Args:   lang.Command(req.Code),
		Stdout: stdout,
		Stderr: stderr,
	})
	if err != nil {
		if errors.Is(err, codeexecutor.ErrBackendUnavailable) {
			return codeexecutor.ExecutionResult{}, s.checkBackend(ctx, err)
		}
		result.ExitCode = -1
		result.Stderr = err.Error()
		s.record(ctx, result)
		return result, nil
	}

	var opts []monitor.Option
	if s.sampleInterval > 0 {
		opts = append(opts, monitor.WithInterval(s.sampleInterval))
	}
	watch := monitor.Start(proc, limits, opts...)
	exited := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = proc.Kill()
		case <-exited:
		}
	}()
	exitCode, waitErr := proc.Wait()
	close(exited)
	observed := watch.Stop()

	result.ExitCode = exitCode
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	result.StdoutTruncated = stdout.Truncated()
	result.StderrTruncated = stderr.Truncated()
	result.Elapsed = observed.Elapsed
	result.PeakMemoryBytes = observed.PeakMemoryBytes
	result.CPUSeconds = observed.CPUSeconds
	result.Termination = observed.Termination
	if waitErr != nil {
		if errors.Is(waitErr, codeexecutor.ErrBackendUnavailable) {
			return codeexecutor.ExecutionResult{}, s.checkBackend(ctx, waitErr)
		}
		log.Warnf("sandbox %s: wait for execution %d: %v", s.id, result.ID, waitErr)
	}

	after, err := s.active.List(ctx)
	if err != nil {
		log.Warnf("sandbox %s: list workspace after execution %d: %v", s.id, result.ID, err)
	} else {
		result.Artifacts = changedFiles(before, after)
	}

	s.record(ctx, result)
	if result.ResourceLimitExceeded() {
		span.SetStatus(codes.Error, "resource limit exceeded: "+string(result.Termination))
	}
	span.SetAttributes(
		attribute.Int(itelemetry.KeyExitCode, result.ExitCode),
		attribute.String(itelemetry.KeyTermination, string(result.Termination)),
	)
	return result, nil
}

func (s *Session) record(ctx context.Context, result codeexecutor.ExecutionResult) {
	s.results = append(s.results, result)
	attrs := []attribute.KeyValue{
		attribute.String(itelemetry.KeyBackend, result.Backend),
		attribute.String(itelemetry.KeyTermination, string(result.Termination)),
	}
	metric.Count(ctx, itelemetry.MetricSandboxExecutions, attrs...)
	metric.Duration(ctx, itelemetry.MetricSandboxDuration, result.Elapsed, attrs...)
	log.Debugf("sandbox %s: execution %d exited %d in %s", s.id, result.ID, result.ExitCode, result.Elapsed)
}

// changedFiles returns files in after that are new or differ from before.
func changedFiles(before, after []codeexecutor.FileInfo) []codeexecutor.Artifact {
	prev := make(map[string]stamp, len(before))
	for _, f := range before {
		prev[f.Name] = stampOf(f)
	}
	var out []codeexecutor.Artifact
	for _, f := range after {
		if st, ok := prev[f.Name]; ok && st == stampOf(f) {
			continue
		}
		out = append(out, codeexecutor.Artifact{
			Name:    f.Name,
			Size:    f.Size,
			ModTime: f.ModTime,
			Handle:  f.Name,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DownloadArtifacts copies every workspace file created or modified since
// the previous download into outputDir and returns the host paths.
// Registered inputs are skipped unless the code changed them.
func (s *Session) DownloadArtifacts(ctx context.Context, outputDir string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateTornDown:
		return nil, ErrSessionClosed
	case StateUninitialized:
		return nil, nil
	}

	listing, err := s.active.List(ctx)
	if err != nil {
		return nil, s.checkBackend(ctx, fmt.Errorf("list workspace: %w", err))
	}
	sort.Slice(listing, func(i, j int) bool { return listing[i].Name < listing[j].Name })

	var paths []string
	for _, f := range listing {
		st := stampOf(f)
		if prev, ok := s.downloaded[f.Name]; ok && prev == st {
			continue
		}
		if in, ok := s.inputs[f.Name]; ok && in == st {
			continue
		}
		dst := filepath.Join(outputDir, filepath.FromSlash(f.Name))
		if err := s.active.CopyOut(ctx, f.Name, dst); err != nil {
			return paths, s.checkBackend(ctx, fmt.Errorf("download %s: %w", f.Name, err))
		}
		s.downloaded[f.Name] = st
		paths = append(paths, dst)
	}
	return paths, nil
}

// Teardown destroys the backing context. It is safe to call repeatedly.
func (s *Session) Teardown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.teardown(ctx)
}

func (s *Session) teardown(ctx context.Context) error {
	if s.state == StateTornDown {
		return nil
	}
	prev := s.state
	s.state = StateTornDown
	if prev != StateReady || s.active == nil {
		return nil
	}
	if err := s.active.Stop(ctx); err != nil {
		return fmt.Errorf("stop %s sandbox: %w", s.active.Name(), err)
	}
	log.Debugf("sandbox %s torn down after %d execution(s)", s.id, s.calls)
	return nil
}

// checkBackend tears the session down when err says the backing context is
// gone, and returns err.
func (s *Session) checkBackend(ctx context.Context, err error) error {
	if errors.Is(err, codeexecutor.ErrBackendUnavailable) {
		log.Errorf("sandbox %s: backing context lost: %v", s.id, err)
		if terr := s.teardown(ctx); terr != nil {
			log.Warnf("sandbox %s: %v", s.id, terr)
		}
	}
	return err
}
