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

package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-agent-workflow/model"
)

func TestNew(t *testing.T) {
	rsp := &model.Response{Choices: []model.Choice{{Message: model.NewAssistantMessage("hi")}}}
	e := New("run-1", "planner",
		WithBranch("outer/planner"),
		WithObject(ObjectTypeNodeComplete),
		WithStep(3, "agent"),
		WithResponse(rsp),
		WithStateDelta(map[string]any{"count": 2, "bad": func() {}}),
	)
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, "run-1", e.InvocationID)
	assert.Equal(t, "planner", e.Author)
	assert.Equal(t, "outer/planner", e.Branch)
	assert.Equal(t, 3, e.Step)
	assert.Equal(t, "agent", e.NodeType)
	assert.Equal(t, "hi", e.Message().Content)
	assert.Equal(t, "2", string(e.StateDelta["count"]))
	assert.Equal(t, "null", string(e.StateDelta["bad"]))
	assert.False(t, e.IsFinal())
	assert.NotEqual(t, e.ID, New("run-1", "planner").ID)
}

func TestErrorAndFinal(t *testing.T) {
	e := NewErrorEvent("run", "n", "routing_error", "no route")
	require.NotNil(t, e.Error)
	assert.Equal(t, ObjectTypeError, e.Object)
	assert.True(t, e.Done)
	assert.Equal(t, "no route", e.Error.Message)

	final := New("run", "", WithObject(ObjectTypeRunComplete), WithHaltReason("completed"))
	assert.True(t, final.IsFinal())
	assert.Equal(t, "completed", final.HaltReason)
	var nilEvent *Event
	assert.False(t, nilEvent.IsFinal())
}

func TestClone(t *testing.T) {
	e := New("run", "n", WithStateDelta(map[string]any{"k": "v"}))
	e.Usage = &model.Usage{TotalTokens: 1}
	c := e.Clone()
	c.StateDelta["k"][0] = 'x'
	c.Usage.TotalTokens = 9
	assert.Equal(t, `"v"`, string(e.StateDelta["k"]))
	assert.Equal(t, 1, e.Usage.TotalTokens)
	assert.Nil(t, (*Event)(nil).Clone())
}
