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

// Package container provides a backing context that runs code inside a
// Docker container with networking disabled.
package container

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	archive "github.com/moby/go-archive"

	"trpc.group/trpc-go/trpc-agent-workflow/codeexecutor"
	"trpc.group/trpc-go/trpc-agent-workflow/log"
)

const (
	// BackendName is reported in execution results.
	BackendName = "docker"

	defaultImage               = "python:3.12-slim"
	defaultContainerWorkingDir = "/workspace"
	defaultContainerNamePrefix = "agentflow-sandbox-"
	defaultReadyTimeout        = 60 * time.Second
	pidDir                     = "/tmp"
)

// Backend runs code in a dedicated Docker container.
type Backend struct {
	host            string
	dockerFilePath  string
	containerName   string
	hostConfig      container.HostConfig
	containerConfig container.Config
	readyTimeout    time.Duration

	client      *client.Client
	containerID string
	execSeq     atomic.Int64
	mu          sync.Mutex
}

// Option configures a Backend.
type Option func(*Backend)

// WithHost sets the Docker daemon address. The environment is used
// otherwise.
func WithHost(host string) Option {
	return func(b *Backend) {
		b.host = host
	}
}

// WithImage sets the container image.
func WithImage(image string) Option {
	return func(b *Backend) {
		b.containerConfig.Image = image
	}
}

// WithDockerFilePath builds the image from the Dockerfile in path before
// starting.
func WithDockerFilePath(path string) Option {
	return func(b *Backend) {
		b.dockerFilePath = path
	}
}

// WithContainerName fixes the container name.
func WithContainerName(name string) Option {
	return func(b *Backend) {
		b.containerName = name
	}
}

// WithHostConfig replaces the host configuration.
func WithHostConfig(hostConfig container.HostConfig) Option {
	return func(b *Backend) {
		b.hostConfig = hostConfig
	}
}

// WithMemoryLimit sets a hard cgroup memory cap on the container.
func WithMemoryLimit(bytes int64) Option {
	return func(b *Backend) {
		b.hostConfig.Resources.Memory = bytes
	}
}

// WithReadyTimeout bounds how long Start waits for the container to run.
func WithReadyTimeout(d time.Duration) Option {
	return func(b *Backend) {
		b.readyTimeout = d
	}
}

// New creates a Docker backend. Nothing is contacted until Start.
func New(opts ...Option) *Backend {
	// An init process reaps the orphans of killed process groups.
	withInit := true
	b := &Backend{
		hostConfig: container.HostConfig{
			AutoRemove:  true,
			Privileged:  false,
			NetworkMode: "none",
			Init:        &withInit,
		},
		containerConfig: container.Config{
			Image:      defaultImage,
			WorkingDir: defaultContainerWorkingDir,
			Cmd:        []string{"tail", "-f", "/dev/null"},
			Tty:        false,
		},
		readyTimeout: defaultReadyTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.containerName == "" {
		b.containerName = defaultContainerNamePrefix + uuid.New().String()
	}
	return b
}

// Name implements codeexecutor.Backend.
func (b *Backend) Name() string {
	return BackendName
}

// Workspace implements codeexecutor.Backend.
func (b *Backend) Workspace() string {
	return b.containerConfig.WorkingDir
}

// Start connects to the daemon, prepares the image and starts the
// container. Any failure leaves nothing running.
func (b *Backend) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.containerID != "" {
		return nil
	}

	var err error
	if b.host != "" {
		b.client, err = client.NewClientWithOpts(client.WithHost(b.host), client.WithAPIVersionNegotiation())
	} else {
		b.client, err = client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	}
	if err != nil {
		return fmt.Errorf("%w: create docker client: %v", codeexecutor.ErrBackendUnavailable, err)
	}
	if _, err := b.client.Ping(ctx); err != nil {
		b.client.Close()
		return fmt.Errorf("%w: ping docker daemon: %v", codeexecutor.ErrBackendUnavailable, err)
	}

	if b.dockerFilePath != "" {
		if err := b.buildImage(ctx); err != nil {
			b.client.Close()
			return err
		}
	}
	if err := b.ensureImageExists(ctx); err != nil {
		b.client.Close()
		return err
	}

	resp, err := b.client.ContainerCreate(ctx, &b.containerConfig, &b.hostConfig, nil, nil, b.containerName)
	if err != nil {
		b.client.Close()
		return fmt.Errorf("create container: %w", err)
	}
	if err := b.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		b.removeContainer(resp.ID)
		b.client.Close()
		return fmt.Errorf("start container: %w", err)
	}
	if err := b.waitForContainerReady(ctx, resp.ID); err != nil {
		b.removeContainer(resp.ID)
		b.client.Close()
		return err
	}
	b.containerID = resp.ID
	log.Infof("sandbox container %s started from %s", shortID(resp.ID), b.containerConfig.Image)
	return nil
}

func (b *Backend) ensureImageExists(ctx context.Context) error {
	images, err := b.client.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return fmt.Errorf("list images: %w", err)
	}
	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == b.containerConfig.Image {
				return nil
			}
		}
	}

	log.Infof("image %s not found locally, pulling", b.containerConfig.Image)
	reader, err := b.client.ImagePull(ctx, b.containerConfig.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", b.containerConfig.Image, err)
	}
	defer reader.Close()
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("read image pull output: %w", err)
	}
	return nil
}

func (b *Backend) buildImage(ctx context.Context) error {
	abs, err := filepath.Abs(b.dockerFilePath)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", b.dockerFilePath, err)
	}
	buildContext, err := archive.TarWithOptions(abs, &archive.TarOptions{})
	if err != nil {
		return fmt.Errorf("create build context: %w", err)
	}
	defer buildContext.Close()

	rsp, err := b.client.ImageBuild(ctx, buildContext, build.ImageBuildOptions{
		Tags:   []string{b.containerConfig.Image},
		Remove: true,
	})
	if err != nil {
		return fmt.Errorf("build image: %w", err)
	}
	defer rsp.Body.Close()
	if _, err := io.Copy(io.Discard, rsp.Body); err != nil {
		log.Warnf("reading image build output: %v", err)
	}
	return nil
}

func (b *Backend) waitForContainerReady(ctx context.Context, id string) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(b.readyTimeout)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("container %s not running after %s", shortID(id), b.readyTimeout)
		case <-ticker.C:
			info, err := b.client.ContainerInspect(ctx, id)
			if err != nil {
				return fmt.Errorf("inspect container: %w", err)
			}
			if info.State.Running {
				return nil
			}
			if info.State.Status == "exited" {
				return fmt.Errorf("container exited unexpectedly with code %d", info.State.ExitCode)
			}
		}
	}
}

// execWrapper starts the command as a job of its own process group, records
// the group id in the file named by $0 and waits for it. Kill signals the
// whole group so background children die with the command.
const execWrapper = `set -m
"$@" &
pid=$!
echo "$pid" > "$0"
wait "$pid"`

// killScript waits briefly for the pid file, then kills the process group
// recorded in it.
const killScript = `i=0
while [ ! -s "$0" ] && [ $i -lt 50 ]; do sleep 0.02; i=$((i+1)); done
pid=$(cat "$0" 2>/dev/null) || exit 1
kill -9 -- -"$pid" 2>/dev/null || kill -9 "$pid"`

// Exec runs cmd through a small shell wrapper that puts it in its own
// process group so Kill can reach it and its children inside the container.
func (b *Backend) Exec(ctx context.Context, c codeexecutor.Command) (codeexecutor.Process, error) {
	if b.containerID == "" {
		return nil, fmt.Errorf("%w: container not started", codeexecutor.ErrBackendUnavailable)
	}
	if len(c.Args) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	pidFile := path.Join(pidDir, fmt.Sprintf("agentflow-exec-%d.pid", b.execSeq.Add(1)))
	wrapped := append([]string{"sh", "-c", execWrapper, pidFile}, c.Args...)

	workDir := b.Workspace()
	if c.Dir != "" {
		workDir = path.Join(workDir, c.Dir)
	}
	p := &execProc{
		backend: b,
		pidFile: pidFile,
		done:    make(chan struct{}),
	}
	p.cpuBase = b.containerCPU(ctx)

	created, err := b.client.ContainerExecCreate(ctx, b.containerID, container.ExecOptions{
		Cmd:          wrapped,
		Env:          c.Env,
		WorkingDir:   workDir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, b.wrapErr("create exec", err)
	}
	hijacked, err := b.client.ContainerExecAttach(ctx, created.ID, container.ExecStartOptions{})
	if err != nil {
		return nil, b.wrapErr("attach exec", err)
	}
	p.execID = created.ID
	p.conn = hijacked

	stdout, stderr := c.Stdout, c.Stderr
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	go func() {
		defer close(p.done)
		_, p.copyErr = stdcopy.StdCopy(stdout, stderr, hijacked.Reader)
	}()
	return p, nil
}

type execProc struct {
	backend *Backend
	execID  string
	pidFile string
	conn    types.HijackedResponse
	cpuBase uint64

	done    chan struct{}
	copyErr error
	killed  atomic.Bool
	once    sync.Once
}

// Wait implements codeexecutor.Process.
func (p *execProc) Wait() (int, error) {
	<-p.done
	p.once.Do(p.conn.Close)
	if p.killed.Load() {
		return -1, nil
	}
	ctx := context.Background()
	for range 50 {
		info, err := p.backend.client.ContainerExecInspect(ctx, p.execID)
		if err != nil {
			return -1, p.backend.wrapErr("inspect exec", err)
		}
		if !info.Running {
			return info.ExitCode, nil
		}
		time.Sleep(20 * time.Millisecond)
	}
	return -1, fmt.Errorf("exec %s still running after output closed", p.execID)
}

// Kill implements codeexecutor.Process.
func (p *execProc) Kill() error {
	p.killed.Store(true)
	_, code, err := p.backend.run(context.Background(), []string{"sh", "-c", killScript, p.pidFile})
	p.once.Do(p.conn.Close)
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("kill exec %s: exit code %d", p.execID, code)
	}
	return nil
}

// Usage reports container wide memory and the CPU time consumed since the
// exec started.
func (p *execProc) Usage(ctx context.Context) (codeexecutor.Usage, error) {
	stats, err := p.backend.stats(ctx)
	if err != nil {
		return codeexecutor.Usage{}, err
	}
	cpu := stats.CPUStats.CPUUsage.TotalUsage
	if cpu > p.cpuBase {
		cpu -= p.cpuBase
	} else {
		cpu = 0
	}
	return codeexecutor.Usage{
		MemoryBytes: stats.MemoryStats.Usage,
		CPUSeconds:  float64(cpu) / float64(time.Second),
	}, nil
}

func (b *Backend) stats(ctx context.Context) (*container.StatsResponse, error) {
	rsp, err := b.client.ContainerStatsOneShot(ctx, b.containerID)
	if err != nil {
		return nil, b.wrapErr("container stats", err)
	}
	defer rsp.Body.Close()
	var stats container.StatsResponse
	if err := json.NewDecoder(rsp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("decode container stats: %w", err)
	}
	return &stats, nil
}

func (b *Backend) containerCPU(ctx context.Context) uint64 {
	stats, err := b.stats(ctx)
	if err != nil {
		return 0
	}
	return stats.CPUStats.CPUUsage.TotalUsage
}

// run executes a helper command to completion and returns its stdout.
func (b *Backend) run(ctx context.Context, args []string) (string, int, error) {
	created, err := b.client.ContainerExecCreate(ctx, b.containerID, container.ExecOptions{
		Cmd:          args,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", -1, b.wrapErr("create exec", err)
	}
	hijacked, err := b.client.ContainerExecAttach(ctx, created.ID, container.ExecStartOptions{})
	if err != nil {
		return "", -1, b.wrapErr("attach exec", err)
	}
	defer hijacked.Close()
	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, hijacked.Reader); err != nil {
		return "", -1, fmt.Errorf("read exec output: %w", err)
	}
	info, err := b.client.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return "", -1, b.wrapErr("inspect exec", err)
	}
	return stdout.String(), info.ExitCode, nil
}

// CopyIn implements codeexecutor.Backend.
func (b *Backend) CopyIn(ctx context.Context, hostPath, name string) error {
	clean, err := cleanName(name)
	if err != nil {
		return err
	}
	base := filepath.Base(hostPath)
	tarball, err := archive.TarWithOptions(filepath.Dir(hostPath), &archive.TarOptions{
		IncludeFiles: []string{base},
		RebaseNames:  map[string]string{base: clean},
	})
	if err != nil {
		return fmt.Errorf("archive %s: %w", hostPath, err)
	}
	defer tarball.Close()
	if err := b.client.CopyToContainer(ctx, b.containerID, b.Workspace(), tarball,
		container.CopyToContainerOptions{}); err != nil {
		return b.wrapErr("copy to container", err)
	}
	return nil
}

// CopyOut implements codeexecutor.Backend.
func (b *Backend) CopyOut(ctx context.Context, name, hostPath string) error {
	clean, err := cleanName(name)
	if err != nil {
		return err
	}
	reader, _, err := b.client.CopyFromContainer(ctx, b.containerID, path.Join(b.Workspace(), clean))
	if err != nil {
		return b.wrapErr("copy from container", err)
	}
	defer reader.Close()

	if err := os.MkdirAll(filepath.Dir(hostPath), 0o755); err != nil {
		return err
	}
	staging, err := os.MkdirTemp(filepath.Dir(hostPath), ".agentflow-copy-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(staging)
	if err := archive.Untar(reader, staging, &archive.TarOptions{NoLchown: true}); err != nil {
		return fmt.Errorf("extract %s: %w", name, err)
	}
	return os.Rename(filepath.Join(staging, path.Base(clean)), hostPath)
}

// List implements codeexecutor.Backend.
func (b *Backend) List(ctx context.Context) ([]codeexecutor.FileInfo, error) {
	out, code, err := b.run(ctx, []string{"find", b.Workspace(), "-type", "f", "-printf", `%P\t%s\t%T@\n`})
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, fmt.Errorf("list workspace: find exited with %d", code)
	}
	return parseListing(out), nil
}

func parseListing(out string) []codeexecutor.FileInfo {
	var files []codeexecutor.FileInfo
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(line, "\t")
		if len(fields) != 3 || fields[0] == "" {
			continue
		}
		size, _ := strconv.ParseInt(fields[1], 10, 64)
		secs, _ := strconv.ParseFloat(fields[2], 64)
		files = append(files, codeexecutor.FileInfo{
			Name:    fields[0],
			Size:    size,
			ModTime: time.Unix(0, int64(secs*float64(time.Second))),
		})
	}
	return files
}

// Stop stops and removes the container and closes the client.
func (b *Backend) Stop(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client == nil {
		return nil
	}
	if b.containerID != "" {
		b.removeContainer(b.containerID)
		log.Infof("sandbox container %s removed", shortID(b.containerID))
		b.containerID = ""
	}
	err := b.client.Close()
	b.client = nil
	return err
}

func (b *Backend) removeContainer(id string) {
	ctx := context.Background()
	timeout := 0
	if err := b.client.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
		log.Debugf("stop container %s: %v", shortID(id), err)
	}
	if err := b.client.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil &&
		!client.IsErrNotFound(err) {
		log.Debugf("remove container %s: %v", shortID(id), err)
	}
}

// wrapErr marks errors that mean the container is gone.
func (b *Backend) wrapErr(op string, err error) error {
	if client.IsErrNotFound(err) || client.IsErrConnectionFailed(err) {
		return fmt.Errorf("%w: %s: %v", codeexecutor.ErrBackendUnavailable, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func cleanName(name string) (string, error) {
	clean := path.Clean(strings.ReplaceAll(name, "\\", "/"))
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") || clean == "." {
		return "", fmt.Errorf("path %q escapes the workspace", name)
	}
	return clean, nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
