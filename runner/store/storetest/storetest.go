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

// Package storetest checks store.Store implementations against the shared
// contract.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-agent-workflow/codeexecutor"
	"trpc.group/trpc-go/trpc-agent-workflow/graph"
	"trpc.group/trpc-go/trpc-agent-workflow/model"
	"trpc.group/trpc-go/trpc-agent-workflow/runner"
	"trpc.group/trpc-go/trpc-agent-workflow/runner/store"
)

// Record builds a finished record started at start.
func Record(id string, start time.Time) *runner.Result {
	return &runner.Result{
		RunID:      id,
		Workflow:   "contract",
		Status:     runner.StatusCompleted,
		HaltReason: graph.HaltCompleted,
		Steps:      2,
		Path:       []string{"plan", "answer"},
		Query:      "what is 6*7",
		State:      graph.State{"topic": "math"},
		Messages: []model.Message{
			model.NewUserMessage("what is 6*7"),
			model.NewAssistantMessage("42"),
		},
		Executions: []codeexecutor.ExecutionResult{{ID: 1, Language: "python", Stdout: "42\n", Elapsed: time.Second}},
		Conclusion: "42",
		StartedAt:  start,
		FinishedAt: start.Add(2 * time.Second),
	}
}

// Run exercises s. It expects an empty store.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	_, err := s.Get(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	list, err := s.List(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, list)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Save(ctx, Record(id, base.Add(time.Duration(i)*time.Minute))))
	}

	got, err := s.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "b", got.RunID)
	assert.Equal(t, runner.StatusCompleted, got.Status)
	assert.Equal(t, "42", got.Conclusion)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, model.RoleAssistant, got.Messages[1].Role)
	require.Len(t, got.Executions, 1)
	assert.Equal(t, time.Second, got.Executions[0].Elapsed)
	assert.Equal(t, "math", got.State["topic"])
	assert.Equal(t, 2*time.Second, got.Duration())

	list, err = s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"c", "b", "a"}, ids(list))

	list, err = s.List(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, ids(list))

	update := Record("a", base)
	update.Status = runner.StatusFailed
	update.Error = "boom"
	require.NoError(t, s.Save(ctx, update))
	got, err = s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, runner.StatusFailed, got.Status)
	assert.Equal(t, "boom", got.Error)
	list, err = s.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	err = s.Create(ctx, Record("a", base))
	require.ErrorIs(t, err, store.ErrExists)
	got, err = s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, runner.StatusFailed, got.Status)

	require.NoError(t, s.Create(ctx, Record("d", base.Add(-time.Minute))))
	got, err = s.Get(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, "d", got.RunID)
	require.NoError(t, s.Delete(ctx, "d"))
	require.NoError(t, s.Delete(ctx, "b"))
	_, err = s.Get(ctx, "b")
	require.ErrorIs(t, err, store.ErrNotFound)
	list, err = s.List(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, ids(list))
}

// RunConcurrentCreate checks that only one of many concurrent Create calls
// for the same run id succeeds. It expects an empty store.
func RunConcurrentCreate(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()
	const callers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Create(ctx, Record("same", time.Now()))
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, store.ErrExists)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
}

func ids(list []*runner.Result) []string {
	out := make([]string, len(list))
	for i, r := range list {
		out[i] = r.RunID
	}
	return out
}
