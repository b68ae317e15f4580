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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-agent-workflow/model"
)

func TestAppendReducer(t *testing.T) {
	existing := make([]int, 2, 10)
	existing[0], existing[1] = 1, 2

	out := AppendReducer(existing, []int{3}).([]int)
	assert.Equal(t, []int{1, 2, 3}, out)
	out[0] = 99
	assert.Equal(t, 1, existing[0], "result must not alias existing")

	assert.Equal(t, []int{1, 2, 4}, AppendReducer(existing, 4))
	assert.Equal(t, []string{"a"}, AppendReducer(nil, "a"))
	assert.Equal(t, existing, AppendReducer(existing, nil))
	assert.Equal(t, "x", AppendReducer(existing, "x"))
}

func TestMessageReducer(t *testing.T) {
	base := []model.Message{model.NewUserMessage("a")}
	out := MessageReducer(base, model.NewAssistantMessage("b")).([]model.Message)
	assert.Len(t, out, 2)
	assert.Len(t, base, 1)
	assert.Equal(t, base, MessageReducer(base, 42))
}

func TestMergeReducer(t *testing.T) {
	out := MergeReducer(map[string]any{"a": 1, "b": 1}, map[string]any{"b": 2}).(map[string]any)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, out)
	assert.Equal(t, "scalar", MergeReducer(map[string]any{}, "scalar"))
}

func TestStateSchema_ApplyUpdate(t *testing.T) {
	schema := MessagesStateSchema().AddField("count", StateField{})
	current := schema.Initial()
	require.Contains(t, current, StateKeyMessages)

	next := schema.ApplyUpdate(current, State{
		StateKeyMessages: []model.Message{model.NewUserMessage("hi")},
		StateKeyMetadata: map[string]any{"k": "v"},
		"count":          3,
		"free":           true,
	})
	assert.Len(t, Messages(next), 1)
	assert.Empty(t, Messages(current))
	assert.Equal(t, 3, next["count"])
	assert.Equal(t, true, next["free"])
	assert.Equal(t, "v", next[StateKeyMetadata].(map[string]any)["k"])
}

func TestStateSchema_Validate(t *testing.T) {
	schema := MessagesStateSchema()
	schema.AddField("id", StateField{Required: true})
	assert.Error(t, schema.Validate(State{}))
	assert.NoError(t, schema.Validate(State{"id": 1}))
	assert.Error(t, schema.Validate(State{"id": 1, StateKeyUserInput: 5}))
}

func TestStateClone(t *testing.T) {
	s := State{
		"list": []string{"a"},
		"map":  map[string]any{"k": 1},
	}
	c := s.Clone()
	c["list"].([]string)[0] = "changed"
	c["map"].(map[string]any)["k"] = 2
	assert.Equal(t, "a", s["list"].([]string)[0])
	assert.Equal(t, 1, s["map"].(map[string]any)["k"])
}

func TestLastMessageAndUserInput(t *testing.T) {
	_, ok := LastMessage(State{})
	assert.False(t, ok)
	s := State{
		StateKeyMessages:  []model.Message{model.NewUserMessage("a"), model.NewAssistantMessage("b")},
		StateKeyUserInput: "q",
	}
	last, ok := LastMessage(s)
	require.True(t, ok)
	assert.Equal(t, "b", last.Content)
	assert.Equal(t, "q", UserInput(s))
}
