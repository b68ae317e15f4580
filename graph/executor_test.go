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

package graph

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-agent-workflow/event"
	"trpc.group/trpc-go/trpc-agent-workflow/model"
)

func linearGraph(t *testing.T) *Graph {
	t.Helper()
	g, err := NewStateGraph(traceSchema()).
		AddNode("a", appendNode("a")).
		AddNode("b", appendNode("b")).
		AddNode("c", appendNode("c")).
		AddEdge("a", "b").
		AddEdge("b", "c").
		SetEntryPoint("a").
		SetFinishPoint("c").
		Compile()
	require.NoError(t, err)
	return g
}

func selfLoop(t *testing.T) *Graph {
	t.Helper()
	g, err := NewStateGraph(traceSchema()).
		AddNode("a", appendNode("a")).
		AddEdge("a", "a").
		SetEntryPoint("a").
		Compile()
	require.NoError(t, err)
	return g
}

func TestRun_Linear(t *testing.T) {
	exec, err := NewExecutor(linearGraph(t))
	require.NoError(t, err)

	res, err := exec.Run(context.Background(), State{})
	require.NoError(t, err)
	assert.Equal(t, HaltCompleted, res.HaltReason)
	assert.Equal(t, 3, res.Steps)
	assert.Equal(t, []string{"a", "b", "c"}, res.Path)
	assert.Equal(t, []string{"a", "b", "c"}, res.State["trace"])
}

func TestRun_SelfLoopExhaustsBudget(t *testing.T) {
	exec, err := NewExecutor(selfLoop(t), WithMaxSteps(5))
	require.NoError(t, err)

	res, err := exec.Run(context.Background(), State{})
	require.NoError(t, err)
	assert.Equal(t, HaltBudgetExhausted, res.HaltReason)
	assert.Equal(t, 5, res.Steps)
	assert.Len(t, res.State["trace"], 5)
}

func TestRun_StepsNeverExceedBudget(t *testing.T) {
	for budget := 0; budget <= 6; budget++ {
		for _, g := range []*Graph{selfLoop(t), linearGraph(t)} {
			exec, err := NewExecutor(g, WithMaxSteps(budget))
			require.NoError(t, err)
			res, err := exec.Run(context.Background(), State{})
			require.NoError(t, err)
			assert.LessOrEqual(t, res.Steps, budget)
			if res.HaltReason == HaltCompleted {
				assert.Equal(t, 3, res.Steps)
			} else {
				assert.Equal(t, budget, res.Steps)
			}
		}
	}
}

func TestNewExecutor_Errors(t *testing.T) {
	_, err := NewExecutor(nil)
	assert.Error(t, err)
	_, err = NewExecutor(selfLoop(t), WithMaxSteps(-1))
	assert.Error(t, err)
}

func TestRun_AppendedListsOnlyGrow(t *testing.T) {
	adder := func(k int) NodeFunc {
		return func(_ context.Context, _ State) (State, error) {
			msgs := make([]model.Message, k)
			for i := range msgs {
				msgs[i] = model.NewUserMessage(fmt.Sprintf("m%d", i))
			}
			return State{StateKeyMessages: msgs}, nil
		}
	}
	g, err := NewStateGraph(nil).
		AddNode("one", adder(1)).
		AddNode("three", adder(3)).
		AddNode("none", adder(0)).
		AddEdge("one", "three").
		AddEdge("three", "none").
		SetEntryPoint("one").
		SetFinishPoint("none").
		Compile()
	require.NoError(t, err)

	var steps []int
	exec, err := NewExecutor(g, WithStepCallback(func(ev *event.Event) {
		if ev.Object == event.ObjectTypeNodeComplete {
			steps = append(steps, ev.Step)
		}
	}))
	require.NoError(t, err)

	initial := State{StateKeyMessages: []model.Message{model.NewSystemMessage("sys"), model.NewUserMessage("hi")}}
	res, err := exec.Run(context.Background(), initial)
	require.NoError(t, err)
	assert.Len(t, Messages(res.State), 2+1+3+0)
	assert.Equal(t, []int{1, 2, 3}, steps)
	assert.Len(t, Messages(initial), 2, "caller state must not change")
}

func TestRun_UndeclaredKeysReplace(t *testing.T) {
	set := func(v int) NodeFunc {
		return func(_ context.Context, _ State) (State, error) { return State{"counter": v}, nil }
	}
	g := NewStateGraph(nil).
		AddNode("a", set(1)).
		AddNode("b", set(2)).
		AddEdge("a", "b").
		SetEntryPoint("a").
		SetFinishPoint("b").
		MustCompile()
	exec, err := NewExecutor(g)
	require.NoError(t, err)
	res, err := exec.Run(context.Background(), State{"counter": 0})
	require.NoError(t, err)
	assert.Equal(t, 2, res.State["counter"])
}

func TestRun_NodesSeeSnapshots(t *testing.T) {
	g := NewStateGraph(nil).
		AddNode("mutator", func(_ context.Context, s State) (State, error) {
			meta := s[StateKeyMetadata].(map[string]any)
			meta["leaked"] = true
			return State{}, nil
		}).
		SetEntryPoint("mutator").
		SetFinishPoint("mutator").
		MustCompile()
	exec, err := NewExecutor(g)
	require.NoError(t, err)
	res, err := exec.Run(context.Background(), State{})
	require.NoError(t, err)
	assert.NotContains(t, res.State[StateKeyMetadata], "leaked")
}

func TestRun_RoutingErrorOnUnknownLabel(t *testing.T) {
	g := NewStateGraph(nil).
		AddNode("a", noop).
		AddConditionalEdges("a", func(context.Context, State) (string, error) { return "elsewhere", nil },
			map[string]string{"done": End}).
		SetEntryPoint("a").
		MustCompile()
	exec, err := NewExecutor(g)
	require.NoError(t, err)

	res, err := exec.Run(context.Background(), State{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRouting))
	var re *RoutingError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "a", re.Node)
	assert.Equal(t, "elsewhere", re.Label)
	assert.Equal(t, []string{"done"}, re.Labels)
	require.NotNil(t, res)
	assert.Equal(t, 1, res.Steps)
}

func TestRun_ConditionFailureIsRoutingError(t *testing.T) {
	boom := errors.New("boom")
	g := NewStateGraph(nil).
		AddNode("a", noop).
		AddConditionalEdges("a", func(context.Context, State) (string, error) { return "", boom },
			map[string]string{"done": End}).
		SetEntryPoint("a").
		MustCompile()
	exec, err := NewExecutor(g)
	require.NoError(t, err)
	_, err = exec.Run(context.Background(), State{})
	assert.ErrorIs(t, err, ErrRouting)
	assert.ErrorIs(t, err, boom)
}

func TestRun_ConditionalRouting(t *testing.T) {
	g := NewStateGraph(traceSchema()).
		AddNode("check", appendNode("check")).
		AddNode("big", appendNode("big")).
		AddNode("small", appendNode("small")).
		AddConditionalEdges("check", func(_ context.Context, s State) (string, error) {
			if s["n"].(int) > 10 {
				return "big", nil
			}
			return "small", nil
		}, map[string]string{"big": "big", "small": "small"}).
		SetFinishPoint("big").
		SetFinishPoint("small").
		SetEntryPoint("check").
		MustCompile()
	exec, err := NewExecutor(g)
	require.NoError(t, err)

	res, err := exec.Run(context.Background(), State{"n": 42})
	require.NoError(t, err)
	assert.Equal(t, []string{"check", "big"}, res.Path)

	res, err = exec.Run(context.Background(), State{"n": 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"check", "small"}, res.Path)
}

func TestRun_FunctionErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	g := NewStateGraph(traceSchema()).
		AddNode("ok", appendNode("ok")).
		AddNode("bad", func(context.Context, State) (State, error) { return nil, boom }).
		AddEdge("ok", "bad").
		SetEntryPoint("ok").
		SetFinishPoint("bad").
		MustCompile()
	exec, err := NewExecutor(g)
	require.NoError(t, err)

	res, err := exec.Run(context.Background(), State{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "node bad")
	assert.Equal(t, 1, res.Steps)
	assert.Equal(t, []string{"ok"}, res.State["trace"])
}

func TestRun_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g := NewStateGraph(nil).
		AddNode("a", func(context.Context, State) (State, error) {
			cancel()
			return State{}, nil
		}).
		AddEdge("a", "a").
		SetEntryPoint("a").
		MustCompile()
	exec, err := NewExecutor(g)
	require.NoError(t, err)
	res, err := exec.Run(ctx, State{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, res.Steps)
}

func TestRun_ConcurrentRunsAreIsolated(t *testing.T) {
	exec, err := NewExecutor(linearGraph(t))
	require.NoError(t, err)

	const n = 8
	results := make(chan *RunResult, n)
	for i := 0; i < n; i++ {
		go func() {
			res, err := exec.Run(context.Background(), State{})
			if err != nil {
				results <- nil
				return
			}
			results <- res
		}()
	}
	for i := 0; i < n; i++ {
		res := <-results
		require.NotNil(t, res)
		assert.Equal(t, []string{"a", "b", "c"}, res.State["trace"])
	}
}

func TestStream_Events(t *testing.T) {
	exec, err := NewExecutor(linearGraph(t), WithRunID("run-42"))
	require.NoError(t, err)

	ch, err := exec.Stream(context.Background(), State{})
	require.NoError(t, err)
	var events []*event.Event
	for ev := range ch {
		events = append(events, ev)
	}
	require.Len(t, events, 4)
	for i, ev := range events[:3] {
		assert.Equal(t, event.ObjectTypeNodeComplete, ev.Object)
		assert.Equal(t, i+1, ev.Step)
		assert.Equal(t, "run-42", ev.InvocationID)
		assert.Equal(t, string(NodeTypeFunction), ev.NodeType)
		assert.JSONEq(t, fmt.Sprintf(`[%q]`, ev.Author), string(ev.StateDelta["trace"]))
	}
	last := events[3]
	assert.True(t, last.IsFinal())
	assert.Equal(t, string(HaltCompleted), last.HaltReason)
	assert.Equal(t, 3, last.Step)
}

func TestStream_ErrorEvent(t *testing.T) {
	g := NewStateGraph(nil).
		AddNode("a", noop).
		AddConditionalEdges("a", func(context.Context, State) (string, error) { return "?", nil },
			map[string]string{"done": End}).
		SetEntryPoint("a").
		MustCompile()
	exec, err := NewExecutor(g)
	require.NoError(t, err)
	ch, err := exec.Stream(context.Background(), State{})
	require.NoError(t, err)
	var last *event.Event
	for ev := range ch {
		last = ev
	}
	require.NotNil(t, last)
	require.NotNil(t, last.Error)
	assert.Equal(t, ErrorTypeRouting, last.Error.Type)
	assert.Equal(t, event.ObjectTypeError, last.Object)
}
