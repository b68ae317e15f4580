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

// Package local provides a backing context that runs code directly on the
// host, inside a private temporary directory. It offers no isolation and is
// the fallback when no container runtime is reachable.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"trpc.group/trpc-go/trpc-agent-workflow/codeexecutor"
	"trpc.group/trpc-go/trpc-agent-workflow/log"
)

// BackendName is reported in execution results.
const BackendName = "local"

const waitDelay = 2 * time.Second

// Backend runs processes on the host.
type Backend struct {
	workDir string
	owned   bool

	mu      sync.Mutex
	started bool
}

// Option configures a Backend.
type Option func(*Backend)

// WithWorkDir uses dir as the workspace instead of a fresh temp directory.
// The directory is left in place on Stop.
func WithWorkDir(dir string) Option {
	return func(b *Backend) {
		b.workDir = dir
	}
}

// New creates a local backend.
func New(opts ...Option) *Backend {
	b := &Backend{}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements codeexecutor.Backend.
func (b *Backend) Name() string {
	return BackendName
}

// Start implements codeexecutor.Backend.
func (b *Backend) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil
	}
	if b.workDir == "" {
		dir, err := os.MkdirTemp("", "agentflow-sandbox-")
		if err != nil {
			return fmt.Errorf("create workspace: %w", err)
		}
		b.workDir = dir
		b.owned = true
	} else if err := os.MkdirAll(b.workDir, 0o755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}
	b.started = true
	log.Debugf("local backend workspace at %s", b.workDir)
	return nil
}

// Workspace implements codeexecutor.Backend.
func (b *Backend) Workspace() string {
	return b.workDir
}

// Exec implements codeexecutor.Backend.
func (b *Backend) Exec(ctx context.Context, c codeexecutor.Command) (codeexecutor.Process, error) {
	if len(c.Args) == 0 {
		return nil, errors.New("empty command")
	}
	dir, err := b.resolve(c.Dir)
	if err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, c.Args[0], c.Args[1:]...)
	cmd.Dir = dir
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		return killProcessGroup(cmd.Process)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", c.Args[0], err)
	}
	return &proc{cmd: cmd}, nil
}

type proc struct {
	cmd *exec.Cmd
}

// Wait implements codeexecutor.Process.
func (p *proc) Wait() (int, error) {
	err := p.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// ExitCode is -1 for signalled processes.
		return exitErr.ExitCode(), nil
	}
	if errors.Is(err, exec.ErrWaitDelay) {
		return p.cmd.ProcessState.ExitCode(), nil
	}
	return -1, err
}

// Kill implements codeexecutor.Process.
func (p *proc) Kill() error {
	return killProcessGroup(p.cmd.Process)
}

// Usage sums resident memory and CPU time over the process and its
// children.
func (p *proc) Usage(ctx context.Context) (codeexecutor.Usage, error) {
	root, err := process.NewProcessWithContext(ctx, int32(p.cmd.Process.Pid))
	if err != nil {
		return codeexecutor.Usage{}, err
	}
	var u codeexecutor.Usage
	accumulate(ctx, root, &u, 0)
	return u, nil
}

const maxTreeDepth = 8

func accumulate(ctx context.Context, p *process.Process, u *codeexecutor.Usage, depth int) {
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		u.MemoryBytes += mem.RSS
	}
	if times, err := p.TimesWithContext(ctx); err == nil && times != nil {
		u.CPUSeconds += times.User + times.System
	}
	if depth >= maxTreeDepth {
		return
	}
	children, err := p.ChildrenWithContext(ctx)
	if err != nil {
		return
	}
	for _, child := range children {
		accumulate(ctx, child, u, depth+1)
	}
}

// CopyIn implements codeexecutor.Backend.
func (b *Backend) CopyIn(ctx context.Context, hostPath, name string) error {
	dst, err := b.resolve(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return copyFile(hostPath, dst)
}

// CopyOut implements codeexecutor.Backend.
func (b *Backend) CopyOut(ctx context.Context, name, hostPath string) error {
	src, err := b.resolve(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(hostPath), 0o755); err != nil {
		return err
	}
	return copyFile(src, hostPath)
}

// List implements codeexecutor.Backend.
func (b *Backend) List(ctx context.Context) ([]codeexecutor.FileInfo, error) {
	var files []codeexecutor.FileInfo
	err := filepath.WalkDir(b.workDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(b.workDir, path)
		if err != nil {
			return err
		}
		files = append(files, codeexecutor.FileInfo{
			Name:    filepath.ToSlash(rel),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	return files, err
}

// Stop removes the workspace when this backend created it.
func (b *Backend) Stop(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started {
		return nil
	}
	b.started = false
	if b.owned {
		return os.RemoveAll(b.workDir)
	}
	return nil
}

// resolve maps a workspace relative name to a host path, rejecting names
// that escape the workspace.
func (b *Backend) resolve(name string) (string, error) {
	if b.workDir == "" {
		return "", errors.New("backend not started")
	}
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the workspace", name)
	}
	return filepath.Join(b.workDir, clean), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
