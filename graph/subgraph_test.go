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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-agent-workflow/event"
	"trpc.group/trpc-go/trpc-agent-workflow/model"
)

// echoChild answers with the content of its latest message after three
// steps.
func echoChild(t *testing.T) *Graph {
	t.Helper()
	reply := func(_ context.Context, s State) (State, error) {
		last, _ := LastMessage(s)
		return State{StateKeyMessages: []model.Message{model.NewAssistantMessage("echo: " + last.Content)}}, nil
	}
	g, err := NewStateGraph(traceSchema()).
		SetName("echo").
		AddNode("read", appendNode("read")).
		AddNode("think", appendNode("think")).
		AddNode("reply", reply).
		AddEdge("read", "think").
		AddEdge("think", "reply").
		SetEntryPoint("read").
		SetFinishPoint("reply").
		Compile()
	require.NoError(t, err)
	return g
}

func TestSubGraph_FoldsIntoOneStep(t *testing.T) {
	parent := NewStateGraph(nil).
		AddSubGraphNode("research", echoChild(t)).
		SetEntryPoint("research").
		SetFinishPoint("research").
		MustCompile()
	exec, err := NewExecutor(parent)
	require.NoError(t, err)

	res, err := exec.Run(context.Background(), State{
		StateKeyUserInput: "topic",
		StateKeyMessages:  []model.Message{model.NewUserMessage("find things")},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Steps)

	msgs := Messages(res.State)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "echo: find things", msgs[1].Content)
	assert.Equal(t, "echo: find things", res.State[StateKeyLastResponse])
	assert.NotContains(t, res.State, "trace", "child fields stay in the child")

	meta := res.State[StateKeyMetadata].(map[string]any)
	rec, ok := meta[SubGraphMetadataKey("research")].(SubGraphRecord)
	require.True(t, ok)
	assert.Equal(t, "echo", rec.Graph)
	assert.Equal(t, HaltCompleted, rec.HaltReason)
	assert.Equal(t, 3, rec.Steps)
}

func TestSubGraph_IndependentBudget(t *testing.T) {
	parent := NewStateGraph(nil).
		AddSubGraphNode("loop", selfLoop(t), WithSubGraphMaxSteps(4)).
		SetEntryPoint("loop").
		SetFinishPoint("loop").
		MustCompile()
	exec, err := NewExecutor(parent, WithMaxSteps(2))
	require.NoError(t, err)

	res, err := exec.Run(context.Background(), State{})
	require.NoError(t, err)
	assert.Equal(t, HaltCompleted, res.HaltReason)
	assert.Equal(t, 1, res.Steps)

	rec := res.State[StateKeyMetadata].(map[string]any)[SubGraphMetadataKey("loop")].(SubGraphRecord)
	assert.Equal(t, HaltBudgetExhausted, rec.HaltReason)
	assert.Equal(t, 4, rec.Steps)
}

func TestSubGraph_AnswersPendingToolCalls(t *testing.T) {
	parent := NewStateGraph(nil).
		AddSubGraphNode("delegate", echoChild(t)).
		SetEntryPoint("delegate").
		SetFinishPoint("delegate").
		MustCompile()
	exec, err := NewExecutor(parent)
	require.NoError(t, err)

	res, err := exec.Run(context.Background(), State{StateKeyMessages: []model.Message{
		toolCallMessage(call("c1", "research", `{"q":"go"}`), call("c2", "research", `{"q":"rust"}`)),
	}})
	require.NoError(t, err)
	msgs := Messages(res.State)
	require.Len(t, msgs, 3)
	for i, id := range []string{"c1", "c2"} {
		assert.Equal(t, model.RoleTool, msgs[i+1].Role)
		assert.Equal(t, id, msgs[i+1].ToolID)
		assert.Equal(t, `echo: {"q":"go"}`, msgs[i+1].Content)
	}
}

func TestSubGraph_CustomMappers(t *testing.T) {
	var childInput State
	child := NewStateGraph(nil).
		AddNode("capture", func(_ context.Context, s State) (State, error) {
			childInput = s
			return State{"answer": 42}, nil
		}).
		SetEntryPoint("capture").
		SetFinishPoint("capture").
		MustCompile()
	parent := NewStateGraph(nil).
		AddSubGraphNode("calc", child,
			WithInputMapper(func(p State) State { return State{"question": p["question"]} }),
			WithOutputMapper(func(_ State, r *RunResult) State { return State{"result": r.State["answer"]} }),
		).
		SetEntryPoint("calc").
		SetFinishPoint("calc").
		MustCompile()
	exec, err := NewExecutor(parent)
	require.NoError(t, err)

	res, err := exec.Run(context.Background(), State{"question": "life"})
	require.NoError(t, err)
	assert.Equal(t, "life", childInput["question"])
	assert.Equal(t, 42, res.State["result"])
}

func TestSubGraph_ForwardsEventsWithBranch(t *testing.T) {
	parent := NewStateGraph(nil).
		AddSubGraphNode("research", echoChild(t)).
		SetEntryPoint("research").
		SetFinishPoint("research").
		MustCompile()

	var events []*event.Event
	exec, err := NewExecutor(parent, WithStepCallback(func(ev *event.Event) { events = append(events, ev) }))
	require.NoError(t, err)
	_, err = exec.Run(context.Background(), State{StateKeyUserInput: "x"})
	require.NoError(t, err)

	var branches []string
	finals := 0
	for _, ev := range events {
		if ev.IsFinal() {
			finals++
			continue
		}
		branches = append(branches, ev.Branch)
	}
	assert.Equal(t, 1, finals)
	assert.Equal(t, []string{"research/read", "research/think", "research/reply", "research"}, branches)
}

func TestSubGraph_ChildFailurePropagates(t *testing.T) {
	boom := errors.New("boom")
	child := NewStateGraph(nil).
		AddNode("bad", func(context.Context, State) (State, error) { return nil, boom }).
		SetEntryPoint("bad").
		SetFinishPoint("bad").
		MustCompile()
	parent := NewStateGraph(nil).
		AddSubGraphNode("nested", child).
		SetEntryPoint("nested").
		SetFinishPoint("nested").
		MustCompile()
	exec, err := NewExecutor(parent)
	require.NoError(t, err)
	res, err := exec.Run(context.Background(), State{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, res.Steps)
}

func TestDefaultInputMapper(t *testing.T) {
	assert.Equal(t, State{}, DefaultInputMapper(State{}))
	in := DefaultInputMapper(State{
		StateKeyUserInput: "q",
		StateKeyMessages:  []model.Message{model.NewUserMessage("a"), model.NewUserMessage("b")},
	})
	assert.Equal(t, "q", in[StateKeyUserInput])
	assert.Equal(t, []model.Message{model.NewUserMessage("b")}, in[StateKeyMessages])
}
