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

package codeexec

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-agent-workflow/codeexecutor"
	"trpc.group/trpc-go/trpc-agent-workflow/sandbox"
	"trpc.group/trpc-go/trpc-agent-workflow/tool"
)

func TestDeclaration(t *testing.T) {
	d := New(WithName("run")).Declaration()
	assert.Equal(t, "run", d.Name)
	assert.Equal(t, []string{"code"}, d.InputSchema.Required)
	var _ tool.CallableTool = New()
}

func TestRequestUnwrapsFence(t *testing.T) {
	req := Request(Args{Code: "```bash\necho hi\n```", TimeoutSeconds: 3})
	assert.Equal(t, "bash", req.Language)
	assert.Equal(t, "echo hi\n", req.Code)
	assert.Equal(t, 3*time.Second, req.Timeout)

	req = Request(Args{Language: "sh", Code: "```python\nprint(1)\n```"})
	assert.Equal(t, "sh", req.Language)
}

func TestCallErrors(t *testing.T) {
	_, err := New().Call(context.Background(), []byte(`{`))
	assert.Error(t, err)
	_, err = New().Call(context.Background(), []byte(`{"code":" "}`))
	assert.Error(t, err)
	_, err = New().Call(context.Background(), []byte(`{"code":"print(1)"}`))
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestCallUsesContextSession(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found")
	}
	bound := sandbox.New()
	defer bound.Teardown(context.Background())
	run := sandbox.New()
	defer run.Teardown(context.Background())

	ctx := sandbox.NewContext(context.Background(), run)
	out, err := New(WithSession(bound)).Call(ctx, []byte(`{"language":"sh","code":"echo ctx"}`))
	require.NoError(t, err)
	res, ok := out.(codeexecutor.ExecutionResult)
	require.True(t, ok)
	assert.Equal(t, "ctx\n", res.Stdout)
	assert.Len(t, run.Results(), 1)
	assert.Empty(t, bound.Results())
}
