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

// Package codeexec exposes the sandbox as a tool a model can call.
package codeexec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"trpc.group/trpc-go/trpc-agent-workflow/codeexecutor"
	"trpc.group/trpc-go/trpc-agent-workflow/sandbox"
	"trpc.group/trpc-go/trpc-agent-workflow/tool"
)

// DefaultName is the tool name advertised to models.
const DefaultName = "execute_code"

// ErrNoSession is returned when neither the context nor the tool carries a
// sandbox session.
var ErrNoSession = errors.New("no sandbox session available")

// Args are the arguments a model passes to the tool.
type Args struct {
	Language       string `json:"language,omitempty"`
	Code           string `json:"code"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// Tool runs code on the sandbox session of the current run.
type Tool struct {
	name    string
	session *sandbox.Session
}

// Option configures a Tool.
type Option func(*Tool)

// WithName overrides DefaultName.
func WithName(name string) Option {
	return func(t *Tool) {
		t.name = name
	}
}

// WithSession binds a session used when the call context carries none.
func WithSession(s *sandbox.Session) Option {
	return func(t *Tool) {
		t.session = s
	}
}

// New creates the tool.
func New(opts ...Option) *Tool {
	t := &Tool{name: DefaultName}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Declaration implements tool.Tool.
func (t *Tool) Declaration() *tool.Declaration {
	return &tool.Declaration{
		Name: t.name,
		Description: "Execute code in an isolated sandbox and return its exit code, output and " +
			"the files it produced. Files persist between calls within one run.",
		InputSchema: &tool.Schema{
			Type:     "object",
			Required: []string{"code"},
			Properties: map[string]*tool.Schema{
				"language": {
					Type:        "string",
					Description: "Interpreter to use.",
					Enum:        []any{"python", "bash", "sh"},
				},
				"code": {
					Type:        "string",
					Description: "Source code to run. A fenced markdown block is accepted.",
				},
				"timeout_seconds": {
					Type:        "integer",
					Description: "Optional wall clock limit in seconds.",
				},
			},
		},
	}
}

// Call implements tool.CallableTool. It returns a codeexecutor.ExecutionResult.
func (t *Tool) Call(ctx context.Context, jsonArgs []byte) (any, error) {
	var args Args
	if err := json.Unmarshal(jsonArgs, &args); err != nil {
		return nil, fmt.Errorf("invalid %s arguments: %w", t.name, err)
	}
	req := Request(args)
	if strings.TrimSpace(req.Code) == "" {
		return nil, fmt.Errorf("%s: code is required", t.name)
	}

	session, ok := sandbox.FromContext(ctx)
	if !ok {
		session = t.session
	}
	if session == nil {
		return nil, ErrNoSession
	}
	return session.Execute(ctx, req)
}

// Request turns tool arguments into an execution request, unwrapping a
// fenced code block when present.
func Request(args Args) codeexecutor.ExecutionRequest {
	req := codeexecutor.ExecutionRequest{
		Language: args.Language,
		Code:     args.Code,
	}
	if args.TimeoutSeconds > 0 {
		req.Timeout = time.Duration(args.TimeoutSeconds) * time.Second
	}
	if blocks := codeexecutor.ExtractCodeBlock(args.Code, codeexecutor.DefaultDelimiter); len(blocks) > 0 {
		req.Code = blocks[0].Code
		if req.Language == "" {
			req.Language = blocks[0].Language
		}
	}
	return req
}
