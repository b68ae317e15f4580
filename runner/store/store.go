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

// Package store keeps run records so they can be looked up after the run.
package store

import (
	"context"
	"errors"

	"trpc.group/trpc-go/trpc-agent-workflow/runner"
)

// Errors.
var (
	// ErrNotFound is returned by Get for an unknown run id.
	ErrNotFound = errors.New("run not found")
	// ErrExists is returned by Create for a run id that is already stored.
	ErrExists = errors.New("run already exists")
)

// DefaultListLimit applies when List is called with a non-positive limit.
const DefaultListLimit = 100

// Store persists run records. Saving a record with a known run id replaces
// it. Create stores a record only if its run id is unknown, atomically, and
// returns ErrExists otherwise. List returns the most recently started runs
// first.
type Store interface {
	runner.Saver
	Create(ctx context.Context, r *runner.Result) error
	Get(ctx context.Context, runID string) (*runner.Result, error)
	List(ctx context.Context, limit int) ([]*runner.Result, error)
	Delete(ctx context.Context, runID string) error
}
