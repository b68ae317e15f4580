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

package codeexecutor

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrBackendUnavailable reports that a backing context cannot be reached
// any more. Sessions tear down when they see it.
var ErrBackendUnavailable = errors.New("backing context unavailable")

// Backend is a backing context: an isolated (or local) place where code
// runs against a private workspace directory.
type Backend interface {
	// Name identifies the backend kind, e.g. "docker" or "local".
	Name() string
	// Start creates the backing context. It is called once.
	Start(ctx context.Context) error
	// Exec starts cmd inside the context. The returned Process must be
	// waited on.
	Exec(ctx context.Context, cmd Command) (Process, error)
	// CopyIn copies a host file into the workspace under name.
	CopyIn(ctx context.Context, hostPath, name string) error
	// CopyOut copies workspace file name to hostPath.
	CopyOut(ctx context.Context, name, hostPath string) error
	// List returns every regular file in the workspace.
	List(ctx context.Context) ([]FileInfo, error)
	// Workspace is the workspace root as seen inside the context.
	Workspace() string
	// Stop destroys the backing context.
	Stop(ctx context.Context) error
}

// Command is a process to start in a backing context.
type Command struct {
	Args []string
	// Dir is relative to the workspace root.
	Dir    string
	Env    []string
	Stdout io.Writer
	Stderr io.Writer
}

// Process is a running command.
type Process interface {
	// Wait blocks until the process exits and returns its exit code.
	// A killed process reports -1.
	Wait() (int, error)
	// Kill terminates the process and its children.
	Kill() error
	// Usage samples current resource consumption.
	Usage(ctx context.Context) (Usage, error)
}

// Usage is one resource sample.
type Usage struct {
	MemoryBytes uint64
	CPUSeconds  float64
}

// FileInfo describes a workspace file. Name is slash separated and
// relative to the workspace root.
type FileInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}
