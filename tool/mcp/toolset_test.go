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

package mcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	mcp "trpc.group/trpc-go/trpc-mcp-go"

	"trpc.group/trpc-go/trpc-agent-workflow/tool"
)

// startServer runs a streamable MCP server on a loopback port for the rest
// of the test binary and returns its endpoint.
func startServer(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	srv := mcp.NewServer("test-server", "1.0.0", mcp.WithServerAddress(addr))
	srv.RegisterTool(mcp.NewTool("echo",
		mcp.WithDescription("Echo the message back"),
		mcp.WithString("message", mcp.Required(), mcp.Description("Message to echo")),
	), handleEcho)
	srv.RegisterTool(mcp.NewTool("add",
		mcp.WithDescription("Add two numbers"),
		mcp.WithNumber("a", mcp.Required(), mcp.Description("First number")),
		mcp.WithNumber("b", mcp.Required(), mcp.Description("Second number")),
	), handleAdd)
	go func() {
		_ = srv.Start()
	}()

	require.Eventually(t, func() bool {
		c, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		_ = c.Close()
		return true
	}, 5*time.Second, 20*time.Millisecond)
	return "http://" + addr + "/mcp"
}

func handleEcho(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	msg, _ := req.Params.Arguments["message"].(string)
	if msg == "" {
		return nil, errors.New("missing required parameter: message")
	}
	return mcp.NewTextResult("Echo: " + msg), nil
}

func handleAdd(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a, _ := req.Params.Arguments["a"].(float64)
	b, _ := req.Params.Arguments["b"].(float64)
	return mcp.NewTextResult(fmt.Sprintf("%.2f + %.2f = %.2f", a, b, a+b)), nil
}

func callable(t *testing.T, tools []tool.Tool, name string) tool.CallableTool {
	t.Helper()
	ct, ok := tool.NewSet(tools...).Callable(name)
	require.True(t, ok, "tool %s", name)
	return ct
}

func TestToolSetListsAndCallsServerTools(t *testing.T) {
	url := startServer(t)
	ts := NewToolSet(ConnectionConfig{
		Transport: TransportStreamable,
		ServerURL: url,
		Timeout:   5 * time.Second,
	}, WithName("calc"))
	defer ts.Close()
	assert.Equal(t, "calc", ts.Name())

	ctx := context.Background()
	tools, err := ts.Tools(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"echo", "add"}, tool.NewSet(tools...).Names())

	echo := callable(t, tools, "echo")
	decl := echo.Declaration()
	assert.Equal(t, "Echo the message back", decl.Description)
	require.NotNil(t, decl.InputSchema)
	assert.Equal(t, "object", decl.InputSchema.Type)
	assert.Contains(t, decl.InputSchema.Properties, "message")
	assert.Contains(t, decl.InputSchema.Required, "message")

	out, err := echo.Call(ctx, []byte(`{"message":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, "Echo: hi", out)

	out, err = callable(t, tools, "add").Call(ctx, []byte(`{"a":2,"b":3}`))
	require.NoError(t, err)
	assert.Equal(t, "2.00 + 3.00 = 5.00", out)

	_, err = echo.Call(ctx, []byte(`{not json`))
	assert.ErrorContains(t, err, "parse arguments")
}

func TestToolSetSharesOneSessionAcrossListings(t *testing.T) {
	url := startServer(t)
	ts := NewToolSet(ConnectionConfig{Transport: TransportStreamable, ServerURL: url})
	defer ts.Close()

	_, err := ts.Tools(context.Background())
	require.NoError(t, err)
	first := ts.session.client
	_, err = ts.Tools(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, ts.session.client)
}

func TestToolSetFilter(t *testing.T) {
	url := startServer(t)
	conn := ConnectionConfig{Transport: TransportStreamable, ServerURL: url}

	inc := NewToolSet(conn, WithToolFilter(NewIncludeFilter("ec*")))
	defer inc.Close()
	tools, err := inc.Tools(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"echo"}, tool.NewSet(tools...).Names())

	exc := NewToolSet(conn, WithToolFilter(NewExcludeFilter("echo")))
	defer exc.Close()
	tools, err = exc.Tools(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"add"}, tool.NewSet(tools...).Names())
}

func TestToolSetClosed(t *testing.T) {
	url := startServer(t)
	ts := NewToolSet(ConnectionConfig{Transport: TransportStreamable, ServerURL: url})
	tools, err := ts.Tools(context.Background())
	require.NoError(t, err)
	require.NoError(t, ts.Close())
	require.NoError(t, ts.Close())

	_, err = callable(t, tools, "echo").Call(context.Background(), []byte(`{"message":"hi"}`))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = ts.Tools(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestToolSetConnectErrors(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ts := NewToolSet(ConnectionConfig{
		Transport: TransportStreamable,
		ServerURL: "http://" + addr + "/mcp",
		Timeout:   2 * time.Second,
	})
	_, err = ts.Tools(context.Background())
	assert.Error(t, err)

	ts = NewToolSet(ConnectionConfig{Transport: "carrier-pigeon"})
	_, err = ts.Tools(context.Background())
	assert.ErrorContains(t, err, "unsupported transport")
}

func TestNewToolSetDefaults(t *testing.T) {
	ts := NewToolSet(ConnectionConfig{Transport: TransportStdio, Command: "true"})
	assert.Equal(t, "mcp", ts.Name())
	assert.Equal(t, defaultClientInfo, ts.session.config.ClientInfo)
	assert.NoError(t, ts.Close())
}

func TestShouldReconnect(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("session_expired: gone"), true},
		{errors.New("transport is closed"), true},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("unexpected EOF"), true},
		{errors.New("HTTP 404 Not Found"), true},
		{errors.New("invalid params"), false},
		{ErrClosed, false},
		{context.DeadlineExceeded, false},
		{fmt.Errorf("wrapped: %w", context.Canceled), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, shouldReconnect(tt.err), "%v", tt.err)
	}
}
