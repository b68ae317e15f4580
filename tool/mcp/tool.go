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
	"encoding/json"
	"fmt"
	"strings"

	mcp "trpc.group/trpc-go/trpc-mcp-go"

	"trpc.group/trpc-go/trpc-agent-workflow/log"
	"trpc.group/trpc-go/trpc-agent-workflow/tool"
)

// remoteTool calls one server tool over the tool set session.
type remoteTool struct {
	decl    *tool.Declaration
	session *session
}

func newRemoteTool(t mcp.Tool, s *session) *remoteTool {
	return &remoteTool{
		decl: &tool.Declaration{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: convertSchema(t.InputSchema),
		},
		session: s,
	}
}

// Declaration implements tool.Tool.
func (t *remoteTool) Declaration() *tool.Declaration {
	return t.decl
}

// Call implements tool.CallableTool. The text parts of the reply are
// joined by newlines.
func (t *remoteTool) Call(ctx context.Context, jsonArgs []byte) (any, error) {
	args := map[string]any{}
	if len(jsonArgs) > 0 {
		if err := json.Unmarshal(jsonArgs, &args); err != nil {
			return nil, fmt.Errorf("%s: parse arguments: %w", t.decl.Name, err)
		}
	}
	content, err := t.session.callTool(ctx, t.decl.Name, args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.decl.Name, err)
	}
	log.Debugf("mcp tool %s returned %d content part(s)", t.decl.Name, len(content))
	return contentText(content), nil
}

func contentText(content []mcp.Content) string {
	parts := make([]string, 0, len(content))
	for _, c := range content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		}
	}
	return strings.Join(parts, "\n")
}
