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

package function_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-agent-workflow/tool"
	"trpc.group/trpc-go/trpc-agent-workflow/tool/function"
)

type sumArgs struct {
	A    int     `json:"a" description:"first operand"`
	B    int     `json:"b"`
	Note *string `json:"note"`
	Tag  string  `json:"tag,omitempty"`
}

type sumResult struct {
	Result int `json:"result"`
}

func TestFunctionTool_Call(t *testing.T) {
	ft := function.NewFunctionTool(func(_ context.Context, in sumArgs) (sumResult, error) {
		return sumResult{Result: in.A + in.B}, nil
	}, function.WithName("sum"), function.WithDescription("adds"))

	var _ tool.CallableTool = ft
	out, err := ft.Call(context.Background(), []byte(`{"a":2,"b":3}`))
	require.NoError(t, err)
	assert.Equal(t, sumResult{Result: 5}, out)

	decl := ft.Declaration()
	assert.Equal(t, "sum", decl.Name)
	assert.Equal(t, "adds", decl.Description)
	require.NotNil(t, decl.InputSchema)
	assert.Equal(t, "object", decl.InputSchema.Type)
	assert.ElementsMatch(t, []string{"a", "b"}, decl.InputSchema.Required)
	assert.Equal(t, "first operand", decl.InputSchema.Properties["a"].Description)
	assert.Equal(t, "integer", decl.OutputSchema.Properties["result"].Type)
}

func TestFunctionTool_BadArguments(t *testing.T) {
	ft := function.NewFunctionTool(func(_ context.Context, in sumArgs) (int, error) {
		return in.A, nil
	}, function.WithName("sum"))
	_, err := ft.Call(context.Background(), []byte(`{not json`))
	require.Error(t, err)
}

func TestFunctionTool_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	ft := function.NewFunctionTool(func(_ context.Context, _ struct{}) (string, error) {
		return "", boom
	}, function.WithName("fail"))
	_, err := ft.Call(context.Background(), nil)
	assert.ErrorIs(t, err, boom)
}

func TestSet(t *testing.T) {
	a := function.NewFunctionTool(func(_ context.Context, _ struct{}) (int, error) { return 1, nil },
		function.WithName("b_tool"))
	b := function.NewFunctionTool(func(_ context.Context, _ struct{}) (int, error) { return 2, nil },
		function.WithName("a_tool"))
	s := tool.NewSet(a, b)
	assert.Equal(t, []string{"a_tool", "b_tool"}, s.Names())
	ct, ok := s.Callable("a_tool")
	require.True(t, ok)
	v, err := ct.Call(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	_, ok = s.Callable("missing")
	assert.False(t, ok)
}
