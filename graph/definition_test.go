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

	"trpc.group/trpc-go/trpc-agent-workflow/model"
)

const supportYAML = `name: support
description: answers with tools, then hands over to research
entry: classify
max_steps: 12
state:
  - name: trace
    merge: append
nodes:
  - id: classify
    kind: function
    function: mark
  - id: agent
    kind: agent
    model: fake
    instruction: help the user
    tools: [add]
  - id: tools
    kind: tool
    tools: [add]
  - id: research
    kind: subgraph
    graph: echo
    max_steps: 5
edges:
  - from: classify
    to: agent
  - from: tools
    to: agent
  - from: research
    to: __end__
conditional_edges:
  - from: agent
    router: tool_calls
    routes:
      tools: tools
      done: research
graphs:
  - name: echo
    entry: reply
    nodes:
      - id: reply
        kind: function
        function: mark
    edges:
      - from: reply
        to: __end__
`

func supportRegistry(m model.Model) *Registry {
	mark := func(_ context.Context, _ State) (State, error) {
		return State{"trace": []string{"mark"}}, nil
	}
	return NewRegistry().
		RegisterModel("fake", newInvoker(m)).
		RegisterTool(addTool()).
		RegisterFunction("mark", mark)
}

func TestBuild_RunsDefinition(t *testing.T) {
	def, err := ParseDefinition([]byte(supportYAML))
	require.NoError(t, err)
	m := &fakeModel{replies: []model.Message{
		toolCallMessage(call("c1", "add", `{"a":20,"b":22}`)),
		model.NewAssistantMessage("42"),
	}}
	g, err := Build(def, supportRegistry(m))
	require.NoError(t, err)
	assert.Equal(t, "support", g.Name())
	assert.Equal(t, 12, g.MaxSteps())

	exec, err := NewExecutor(g)
	require.NoError(t, err)
	res, err := exec.Run(context.Background(), State{StateKeyUserInput: "20+22?"})
	require.NoError(t, err)
	assert.Equal(t, []string{"classify", "agent", "tools", "agent", "research"}, res.Path)
	assert.Equal(t, []string{"mark"}, res.State["trace"])

	rec := res.State[StateKeyMetadata].(map[string]any)[SubGraphMetadataKey("research")].(SubGraphRecord)
	assert.Equal(t, "echo", rec.Graph)
	assert.Equal(t, 1, rec.Steps)

	research, ok := g.Node("research")
	require.True(t, ok)
	assert.Equal(t, 5, research.SubGraph.MaxSteps)
}

func TestBuild_BudgetFromDefinition(t *testing.T) {
	def := &Definition{
		Name:     "spin",
		Entry:    "a",
		MaxSteps: 3,
		Nodes:    []NodeDefinition{{ID: "a", Kind: NodeTypeFunction, Function: "noop"}},
		Edges:    []EdgeDefinition{{From: "a", To: "a"}},
	}
	g, err := Build(def, NewRegistry().RegisterFunction("noop", noop))
	require.NoError(t, err)
	exec, err := NewExecutor(g)
	require.NoError(t, err)
	res, err := exec.Run(context.Background(), State{})
	require.NoError(t, err)
	assert.Equal(t, HaltBudgetExhausted, res.HaltReason)
	assert.Equal(t, 3, res.Steps)
}

func TestDefinition_RoundTrip(t *testing.T) {
	def, err := ParseDefinition([]byte(supportYAML))
	require.NoError(t, err)
	g, err := Build(def, supportRegistry(&fakeModel{}))
	require.NoError(t, err)

	first, err := g.Definition().Marshal()
	require.NoError(t, err)
	reparsed, err := ParseDefinition(first)
	require.NoError(t, err)
	assert.Equal(t, def, reparsed)

	g2, err := Build(reparsed, supportRegistry(&fakeModel{}))
	require.NoError(t, err)
	second, err := g2.Definition().Marshal()
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestDefinition_FromCodeBuiltGraph(t *testing.T) {
	m := &fakeModel{}
	g := NewStateGraph(traceSchema()).
		SetName("coded").
		AddNode("prep", appendNode("prep")).
		AddAgentNode("agent", newInvoker(m), "answer", nil).
		AddSubGraphNode("nested", echoChild(t), WithSubGraphMaxSteps(7)).
		AddEdge("prep", "agent").
		AddConditionalEdges("agent", NodeErrorRouter, map[string]string{LabelError: End, LabelOK: "nested"}).
		SetEntryPoint("prep").
		SetFinishPoint("nested").
		MustCompile()

	def := g.Definition()
	assert.Equal(t, "coded", def.Name)
	assert.Equal(t, "prep", def.Entry)
	assert.Equal(t, []FieldDefinition{{Name: "trace", Merge: MergeAppend}}, def.State)
	require.Len(t, def.Nodes, 3)
	assert.Equal(t, NodeDefinition{ID: "prep", Kind: NodeTypeFunction, Function: "prep"}, def.Nodes[0])
	assert.Equal(t, "agent", def.Nodes[1].Model)
	assert.Equal(t, "echo", def.Nodes[2].Graph)
	assert.Equal(t, 7, def.Nodes[2].MaxSteps)
	require.Len(t, def.Graphs, 1)
	assert.Equal(t, "read", def.Graphs[0].Entry)
	require.Len(t, def.ConditionalEdges, 1)
	assert.Equal(t, "agent", def.ConditionalEdges[0].Router)

	a, err := def.Marshal()
	require.NoError(t, err)
	b, err := g.Definition().Marshal()
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))

	reg := NewRegistry().
		RegisterFunction("prep", appendNode("prep")).
		RegisterFunction("read", noop).
		RegisterFunction("think", noop).
		RegisterFunction("reply", noop).
		RegisterRouter("agent", NodeErrorRouter).
		RegisterModel("agent", newInvoker(m))
	rebuilt, err := Build(def, reg)
	require.NoError(t, err)
	c, err := rebuilt.Definition().Marshal()
	require.NoError(t, err)
	assert.Equal(t, string(a), string(c))
}

func TestBuild_ReportsUnknownNames(t *testing.T) {
	def := &Definition{
		Name:  "broken",
		Entry: "a",
		State: []FieldDefinition{{Name: "x", Merge: "sum"}},
		Nodes: []NodeDefinition{
			{ID: "a", Kind: NodeTypeAgent, Model: "nope", Tools: []string{"ghost"}},
			{ID: "b", Kind: NodeTypeFunction, Function: "missing"},
			{ID: "c", Kind: NodeTypeSubGraph, Graph: "elsewhere"},
			{ID: "d", Kind: "wizard"},
		},
		ConditionalEdges: []ConditionalEdgeDefinition{{From: "a", Router: "coin", Routes: map[string]string{"x": End}}},
	}
	_, err := Build(def, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGraphValidation))
	for _, want := range []string{
		`unknown merge policy "sum"`,
		`unknown model "nope"`,
		"unknown tool ghost",
		`unknown function "missing"`,
		`unknown graph "elsewhere"`,
		`unknown kind "wizard"`,
		`unknown router "coin"`,
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestBuild_DetectsSubGraphCycles(t *testing.T) {
	def := &Definition{
		Name:  "outer",
		Entry: "x",
		Nodes: []NodeDefinition{{ID: "x", Kind: NodeTypeSubGraph, Graph: "left"}},
		Edges: []EdgeDefinition{{From: "x", To: End}},
		Graphs: []*Definition{
			{
				Name:  "left",
				Entry: "l",
				Nodes: []NodeDefinition{{ID: "l", Kind: NodeTypeSubGraph, Graph: "right"}},
				Edges: []EdgeDefinition{{From: "l", To: End}},
			},
			{
				Name:  "right",
				Entry: "r",
				Nodes: []NodeDefinition{{ID: "r", Kind: NodeTypeSubGraph, Graph: "left"}},
				Edges: []EdgeDefinition{{From: "r", To: End}},
			},
		},
	}
	_, err := Build(def, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sub-graph cycle left -> right -> left")
}

func TestParseDefinition_RejectsUnknownFields(t *testing.T) {
	_, err := ParseDefinition([]byte("name: x\nentry: a\nnodez: []\n"))
	assert.Error(t, err)
}
