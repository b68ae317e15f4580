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
	"net/http"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
	mcp "trpc.group/trpc-go/trpc-mcp-go"

	"trpc.group/trpc-go/trpc-agent-workflow/log"
	"trpc.group/trpc-go/trpc-agent-workflow/tool"
)

// ErrClosed is returned by a ToolSet, and the tools it handed out, after
// Close.
var ErrClosed = errors.New("mcp tool set is closed")

// Errors that mean the session is gone and a fresh one may succeed.
var reconnectErrorPatterns = []string{
	"session_expired:",
	"session not found",
	"transport is closed",
	"not initialized",
	"connection refused",
	"connection reset",
	"broken pipe",
	"EOF",
	"HTTP 404",
}

// ToolSet lists and calls the tools of one MCP server over a shared
// session. It connects lazily and reconnects once when a request fails
// because the session was lost.
type ToolSet struct {
	name    string
	filter  ToolFilter
	session *session
}

// NewToolSet creates a tool set. Nothing is dialled until Tools is called.
func NewToolSet(conn ConnectionConfig, opts ...ToolSetOption) *ToolSet {
	cfg := toolSetConfig{name: "mcp"}
	for _, opt := range opts {
		opt(&cfg)
	}
	if conn.ClientInfo.Name == "" {
		conn.ClientInfo = defaultClientInfo
	}
	return &ToolSet{
		name:    cfg.name,
		filter:  cfg.filter,
		session: &session{config: conn, mcpOptions: cfg.mcpOptions},
	}
}

// Name returns the tool set name.
func (ts *ToolSet) Name() string {
	return ts.name
}

// Tools lists the server tools that pass the filter, sorted as the server
// returned them.
func (ts *ToolSet) Tools(ctx context.Context) ([]tool.Tool, error) {
	listed, err := ts.session.listTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcp %s: list tools: %w", ts.name, err)
	}
	byName := make(map[string]mcp.Tool, len(listed))
	infos := make([]ToolInfo, 0, len(listed))
	for _, t := range listed {
		byName[t.Name] = t
		infos = append(infos, ToolInfo{Name: t.Name, Description: t.Description})
	}
	if ts.filter != nil {
		infos = ts.filter.Filter(ctx, infos)
	}
	tools := make([]tool.Tool, 0, len(infos))
	for _, info := range infos {
		tools = append(tools, newRemoteTool(byName[info.Name], ts.session))
	}
	log.Debugf("mcp %s: %d of %d tools exposed", ts.name, len(tools), len(listed))
	return tools, nil
}

// Close ends the session. Tools handed out earlier fail with ErrClosed.
func (ts *ToolSet) Close() error {
	if err := ts.session.close(); err != nil {
		return fmt.Errorf("mcp %s: close: %w", ts.name, err)
	}
	return nil
}

type session struct {
	config     ConnectionConfig
	mcpOptions []mcp.ClientOption

	mu     sync.RWMutex
	client mcp.Connector
	closed bool

	reconnects singleflight.Group
}

func (s *session) connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.client != nil {
		return nil
	}
	client, err := s.newClient()
	if err != nil {
		return err
	}
	ictx, cancel := s.withTimeout(ctx)
	defer cancel()
	resp, err := client.Initialize(ictx, &mcp.InitializeRequest{})
	if err != nil {
		if cerr := client.Close(); cerr != nil {
			log.Warnf("mcp: close after failed initialize: %v", cerr)
		}
		return fmt.Errorf("initialize: %w", err)
	}
	log.Debugf("mcp: connected to %s %s (protocol %s)",
		resp.ServerInfo.Name, resp.ServerInfo.Version, resp.ProtocolVersion)
	s.client = client
	return nil
}

func (s *session) newClient() (mcp.Connector, error) {
	t, err := parseTransport(s.config.Transport)
	if err != nil {
		return nil, err
	}
	if t == TransportStdio {
		return mcp.NewStdioClient(mcp.StdioTransportConfig{
			ServerParams: mcp.StdioServerParameters{
				Command: s.config.Command,
				Args:    s.config.Args,
			},
			Timeout: s.config.Timeout,
		}, s.config.ClientInfo)
	}
	var opts []mcp.ClientOption
	if len(s.config.Headers) > 0 {
		h := http.Header{}
		for k, v := range s.config.Headers {
			h.Set(k, v)
		}
		opts = append(opts, mcp.WithHTTPHeaders(h))
	}
	opts = append(opts, s.mcpOptions...)
	if t == TransportSSE {
		return mcp.NewSSEClient(s.config.ServerURL, s.config.ClientInfo, opts...)
	}
	return mcp.NewClient(s.config.ServerURL, s.config.ClientInfo, opts...)
}

func (s *session) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.Timeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			return context.WithTimeout(ctx, s.config.Timeout)
		}
	}
	return ctx, func() {}
}

// do runs op on a connected client, reconnecting once if op fails
// because the session was lost.
func (s *session) do(ctx context.Context, op func(context.Context, mcp.Connector) error) error {
	if err := s.connect(ctx); err != nil {
		return err
	}
	err := s.run(ctx, op)
	if err == nil || !shouldReconnect(err) {
		return err
	}
	log.Warnf("mcp: session lost, reconnecting: %v", err)
	if rerr := s.reconnect(ctx); rerr != nil {
		return fmt.Errorf("%w (reconnect: %v)", err, rerr)
	}
	return s.run(ctx, op)
}

func (s *session) run(ctx context.Context, op func(context.Context, mcp.Connector) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	if s.client == nil {
		return errors.New("transport is closed")
	}
	octx, cancel := s.withTimeout(ctx)
	defer cancel()
	return op(octx, s.client)
}

// reconnect drops the client and dials again. Concurrent callers share
// one attempt.
func (s *session) reconnect(ctx context.Context) error {
	_, err, _ := s.reconnects.Do("reconnect", func() (any, error) {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, ErrClosed
		}
		if s.client != nil {
			if err := s.client.Close(); err != nil {
				log.Debugf("mcp: close stale client: %v", err)
			}
			s.client = nil
		}
		s.mu.Unlock()
		return nil, s.connect(ctx)
	})
	return err
}

func (s *session) listTools(ctx context.Context) ([]mcp.Tool, error) {
	var tools []mcp.Tool
	err := s.do(ctx, func(ctx context.Context, c mcp.Connector) error {
		resp, err := c.ListTools(ctx, &mcp.ListToolsRequest{})
		if err != nil {
			return err
		}
		tools = resp.Tools
		return nil
	})
	return tools, err
}

func (s *session) callTool(ctx context.Context, name string, args map[string]any) ([]mcp.Content, error) {
	var content []mcp.Content
	err := s.do(ctx, func(ctx context.Context, c mcp.Connector) error {
		req := &mcp.CallToolRequest{}
		req.Params.Name = name
		req.Params.Arguments = args
		resp, err := c.CallTool(ctx, req)
		if err != nil {
			return err
		}
		content = resp.Content
		return nil
	})
	return content, err
}

func (s *session) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

func shouldReconnect(err error) bool {
	if err == nil || errors.Is(err, ErrClosed) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := err.Error()
	for _, p := range reconnectErrorPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
