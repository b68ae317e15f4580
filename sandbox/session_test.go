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
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-agent-workflow/codeexecutor"
	"trpc.group/trpc-go/trpc-agent-workflow/codeexecutor/local"
)

func requireInterpreter(t *testing.T, name string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("posix host required")
	}
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not found", name)
	}
}

// isolatedBackend is a local backend that claims to be isolated.
type isolatedBackend struct {
	*local.Backend
}

func (isolatedBackend) Name() string { return "isolated" }

type unavailableBackend struct {
	isolatedBackend
	startErr error
	lost     bool
}

func (b *unavailableBackend) Start(ctx context.Context) error {
	if b.startErr != nil {
		return b.startErr
	}
	return b.isolatedBackend.Start(ctx)
}

func (b *unavailableBackend) List(ctx context.Context) ([]codeexecutor.FileInfo, error) {
	if b.lost {
		return nil, fmt.Errorf("%w: container vanished", codeexecutor.ErrBackendUnavailable)
	}
	return b.isolatedBackend.List(ctx)
}

func newIsolated(t *testing.T, opts ...Option) *Session {
	t.Helper()
	s := New(append([]Option{WithBackend(isolatedBackend{local.New()})}, opts...)...)
	t.Cleanup(func() { _ = s.Teardown(context.Background()) })
	return s
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLifecycle(t *testing.T) {
	requireInterpreter(t, "sh")
	ctx := context.Background()
	s := New(WithBackend(isolatedBackend{local.New()}))
	assert.Equal(t, StateUninitialized, s.State())
	assert.Equal(t, "", s.BackendName())

	res, err := s.Execute(ctx, codeexecutor.ExecutionRequest{Language: "sh", Code: "echo hi"})
	require.NoError(t, err)
	assert.Equal(t, StateReady, s.State())
	assert.Equal(t, "isolated", s.BackendName())
	assert.False(t, s.Degraded())
	assert.EqualValues(t, 1, res.ID)
	assert.Equal(t, "hi\n", res.Stdout)
	assert.Equal(t, "isolated", res.Backend)

	require.NoError(t, s.Teardown(ctx))
	require.NoError(t, s.Teardown(ctx))
	assert.Equal(t, StateTornDown, s.State())

	_, err = s.Execute(ctx, codeexecutor.ExecutionRequest{Language: "sh", Code: "echo again"})
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = s.DownloadArtifacts(ctx, t.TempDir())
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = s.RegisterWorkspace(ctx, nil)
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestTeardownBeforeStart(t *testing.T) {
	s := New()
	require.NoError(t, s.Teardown(context.Background()))
	assert.Equal(t, StateTornDown, s.State())
}

func TestCallCounterAndResults(t *testing.T) {
	requireInterpreter(t, "sh")
	s := newIsolated(t)
	for i := 1; i <= 3; i++ {
		res, err := s.Execute(context.Background(), codeexecutor.ExecutionRequest{
			Language: "sh", Code: fmt.Sprintf("exit %d", i),
		})
		require.NoError(t, err)
		assert.EqualValues(t, i, res.ID)
		assert.Equal(t, i, res.ExitCode)
	}
	results := s.Results()
	require.Len(t, results, 3)
	assert.EqualValues(t, 3, results[2].ID)
}

func TestTimeoutKillsSleepingPython(t *testing.T) {
	requireInterpreter(t, "python3")
	s := newIsolated(t, WithSampleInterval(50*time.Millisecond))

	start := time.Now()
	res, err := s.Execute(context.Background(), codeexecutor.ExecutionRequest{
		Language: "python",
		Code:     "import time\nprint('started', flush=True)\ntime.sleep(10)\nprint('finished')",
		Timeout:  time.Second,
	})
	require.NoError(t, err)
	elapsed := time.Since(start)

	assert.Equal(t, codeexecutor.TerminationTimeout, res.Termination)
	assert.True(t, res.ResourceLimitExceeded())
	assert.NotEqual(t, 0, res.ExitCode)
	assert.Contains(t, res.Stdout, "started")
	assert.NotContains(t, res.Stdout, "finished")
	assert.GreaterOrEqual(t, res.Elapsed, time.Second)
	assert.Less(t, elapsed, 5*time.Second)
	assert.Greater(t, res.PeakMemoryBytes, uint64(0))
}

func TestOutputIsTruncatedWithMarker(t *testing.T) {
	requireInterpreter(t, "sh")
	s := newIsolated(t, WithOutputLimit(100))
	res, err := s.Execute(context.Background(), codeexecutor.ExecutionRequest{
		Language: "sh",
		Code:     "i=0; while [ $i -lt 100 ]; do echo 0123456789; i=$((i+1)); done",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.True(t, res.StdoutTruncated)
	assert.False(t, res.StderrTruncated)
	assert.True(t, strings.HasPrefix(res.Stdout, "0123456789\n"))
	assert.Contains(t, res.Stdout, codeexecutor.TruncationMarker)
	assert.Contains(t, res.Stdout, "1000 bytes omitted")
}

func TestUnsupportedLanguageIsData(t *testing.T) {
	s := newIsolated(t)
	res, err := s.Execute(context.Background(), codeexecutor.ExecutionRequest{Language: "cobol", Code: "DISPLAY 'X'"})
	require.NoError(t, err)
	assert.Equal(t, -1, res.ExitCode)
	assert.Contains(t, res.Stderr, "unsupported language")
	assert.Len(t, s.Results(), 1)
}

func TestDegradedRegistration(t *testing.T) {
	requireInterpreter(t, "sh")
	ctx := context.Background()
	src := t.TempDir()
	writeFile(t, src, "data.csv", "a,b\n1,2\n")

	s := New(WithBackend(&unavailableBackend{startErr: errors.New("no docker")}))
	defer s.Teardown(ctx)

	isolated, err := s.RegisterWorkspace(ctx, []string{filepath.Join(src, "data.csv")})
	require.NoError(t, err)
	assert.False(t, isolated)
	assert.True(t, s.Degraded())
	assert.Equal(t, local.BackendName, s.BackendName())

	res, err := s.Execute(ctx, codeexecutor.ExecutionRequest{Language: "sh", Code: "cat data.csv"})
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", res.Stdout)
	assert.Equal(t, local.BackendName, res.Backend)
}

func TestRegisterGlobAndDirectory(t *testing.T) {
	requireInterpreter(t, "sh")
	ctx := context.Background()
	src := t.TempDir()
	writeFile(t, src, "a.txt", "a")
	writeFile(t, src, "b.txt", "b")
	writeFile(t, src, "skip.md", "x")
	writeFile(t, src, "nested/deep/c.txt", "c")

	s := newIsolated(t)
	isolated, err := s.RegisterWorkspace(ctx, []string{
		filepath.Join(src, "*.txt"),
		filepath.Join(src, "nested"),
	})
	require.NoError(t, err)
	assert.True(t, isolated)

	res, err := s.Execute(ctx, codeexecutor.ExecutionRequest{Language: "sh", Code: "cat a.txt b.txt nested/deep/c.txt; ls"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Stdout, "abc"))
	assert.NotContains(t, res.Stdout, "skip.md")

	_, err = s.RegisterWorkspace(ctx, []string{filepath.Join(src, "*.none")})
	assert.Error(t, err)
	_, err = s.RegisterWorkspace(ctx, []string{filepath.Join(src, "missing.txt")})
	assert.Error(t, err)
}

func TestArtifactsAndIncrementalDownload(t *testing.T) {
	requireInterpreter(t, "sh")
	ctx := context.Background()
	src := t.TempDir()
	input := writeFile(t, src, "input.txt", "in")

	s := newIsolated(t)
	_, err := s.RegisterWorkspace(ctx, []string{input})
	require.NoError(t, err)

	res, err := s.Execute(ctx, codeexecutor.ExecutionRequest{Language: "sh", Code: "echo one > one.txt; mkdir -p out; echo two > out/two.txt"})
	require.NoError(t, err)
	require.Len(t, res.Artifacts, 2)
	assert.Equal(t, "one.txt", res.Artifacts[0].Name)
	assert.Equal(t, "out/two.txt", res.Artifacts[1].Name)

	out := t.TempDir()
	paths, err := s.DownloadArtifacts(ctx, out)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(out, "one.txt"), filepath.Join(out, "out", "two.txt")}, paths)
	data, err := os.ReadFile(filepath.Join(out, "out", "two.txt"))
	require.NoError(t, err)
	assert.Equal(t, "two\n", string(data))

	paths, err = s.DownloadArtifacts(ctx, out)
	require.NoError(t, err)
	assert.Empty(t, paths)

	res, err = s.Execute(ctx, codeexecutor.ExecutionRequest{Language: "sh", Code: "echo three > three.txt"})
	require.NoError(t, err)
	require.Len(t, res.Artifacts, 1)

	paths, err = s.DownloadArtifacts(ctx, out)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(out, "three.txt")}, paths)
}

func TestBackendLossTearsDown(t *testing.T) {
	requireInterpreter(t, "sh")
	ctx := context.Background()
	b := &unavailableBackend{isolatedBackend: isolatedBackend{local.New()}}
	s := New(WithBackend(b))
	_, err := s.Execute(ctx, codeexecutor.ExecutionRequest{Language: "sh", Code: "true"})
	require.NoError(t, err)

	b.lost = true
	_, err = s.Execute(ctx, codeexecutor.ExecutionRequest{Language: "sh", Code: "true"})
	require.ErrorIs(t, err, codeexecutor.ErrBackendUnavailable)
	assert.Equal(t, StateTornDown, s.State())

	_, err = s.Execute(ctx, codeexecutor.ExecutionRequest{Language: "sh", Code: "true"})
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestContextRoundTrip(t *testing.T) {
	s := New()
	got, ok := FromContext(NewContext(context.Background(), s))
	require.True(t, ok)
	assert.Same(t, s, got)
	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}
