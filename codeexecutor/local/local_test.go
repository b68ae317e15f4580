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

package local_test

import (
	"bytes"
	"context"
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

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("posix shell required")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found")
	}
}

func startBackend(t *testing.T, opts ...local.Option) *local.Backend {
	t.Helper()
	b := local.New(opts...)
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() { _ = b.Stop(context.Background()) })
	return b
}

func TestExecCapturesOutputAndExitCode(t *testing.T) {
	requireShell(t)
	b := startBackend(t)
	assert.Equal(t, "local", b.Name())

	var stdout, stderr bytes.Buffer
	p, err := b.Exec(context.Background(), codeexecutor.Command{
		Args:   []string{"sh", "-c", "echo out; echo err >&2; pwd; exit 3"},
		Stdout: &stdout,
		Stderr: &stderr,
	})
	require.NoError(t, err)
	code, err := p.Wait()
	require.NoError(t, err)
	assert.Equal(t, 3, code)
	assert.Contains(t, stdout.String(), "out")
	assert.Contains(t, stderr.String(), "err")

	ws, err := filepath.EvalSymlinks(b.Workspace())
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), ws)
}

func TestKillTerminatesProcessGroup(t *testing.T) {
	requireShell(t)
	b := startBackend(t)
	p, err := b.Exec(context.Background(), codeexecutor.Command{
		Args: []string{"sh", "-c", "sleep 30 & sleep 30"},
	})
	require.NoError(t, err)

	u, err := p.Usage(context.Background())
	require.NoError(t, err)
	assert.Greater(t, u.MemoryBytes, uint64(0))

	start := time.Now()
	require.NoError(t, p.Kill())
	code, err := p.Wait()
	require.NoError(t, err)
	assert.Equal(t, -1, code)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestCopyAndList(t *testing.T) {
	b := startBackend(t)
	src := filepath.Join(t.TempDir(), "in.txt")
	require.NoError(t, os.WriteFile(src, []byte("data"), 0o644))

	require.NoError(t, b.CopyIn(context.Background(), src, "inputs/in.txt"))
	files, err := b.List(context.Background())
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "inputs/in.txt", files[0].Name)
	assert.EqualValues(t, 4, files[0].Size)

	dst := filepath.Join(t.TempDir(), "out", "copy.txt")
	require.NoError(t, b.CopyOut(context.Background(), "inputs/in.txt", dst))
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "data", string(got))

	err = b.CopyIn(context.Background(), src, "../escape.txt")
	assert.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "escapes"))
}

func TestStopRemovesOwnedWorkspaceOnly(t *testing.T) {
	b := local.New()
	require.NoError(t, b.Start(context.Background()))
	ws := b.Workspace()
	require.NoError(t, b.Stop(context.Background()))
	_, err := os.Stat(ws)
	assert.True(t, os.IsNotExist(err))
	require.NoError(t, b.Stop(context.Background()))

	dir := t.TempDir()
	kept := local.New(local.WithWorkDir(dir))
	require.NoError(t, kept.Start(context.Background()))
	require.NoError(t, kept.Stop(context.Background()))
	_, err = os.Stat(dir)
	assert.NoError(t, err)
}

func TestExecRejectsEmptyCommand(t *testing.T) {
	b := startBackend(t)
	_, err := b.Exec(context.Background(), codeexecutor.Command{})
	assert.Error(t, err)
}
