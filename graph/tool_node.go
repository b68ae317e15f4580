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
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	itelemetry "trpc.group/trpc-go/trpc-agent-workflow/internal/telemetry"
	"trpc.group/trpc-go/trpc-agent-workflow/log"
	"trpc.group/trpc-go/trpc-agent-workflow/model"
	"trpc.group/trpc-go/trpc-agent-workflow/telemetry/trace"
	"trpc.group/trpc-go/trpc-agent-workflow/tool"
)

// ToolResult is the outcome of one tool call made by a tool node.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Output     any    `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
}

// runTools answers every tool call of the latest assistant message with a
// tool message. Failing calls are answered with the error text and the
// first failure is recorded as the node error.
func runTools(ctx context.Context, node *Node, state State) (State, error) {
	last, ok := LastMessage(state)
	if !ok || last.Role != model.RoleAssistant || !last.HasToolCalls() {
		return State{
			StateKeyNodeError:   newNodeError(node, errors.New("latest message requests no tool calls")),
			StateKeyToolResults: []ToolResult{},
		}, nil
	}

	messages := make([]model.Message, 0, len(last.ToolCalls))
	results := make([]ToolResult, 0, len(last.ToolCalls))
	var firstErr error
	for _, call := range last.ToolCalls {
		out, err := runTool(ctx, node.Tools, call)
		if err != nil && ctx.Err() != nil {
			return nil, err
		}
		result := ToolResult{ToolCallID: call.ID, Name: call.Function.Name, Output: out}
		content := formatToolOutput(out)
		if err != nil {
			log.Warnf("tool node %s: %v", node.ID, err)
			result.Error = err.Error()
			content = "error: " + err.Error()
			if firstErr == nil {
				firstErr = err
			}
		}
		results = append(results, result)
		messages = append(messages, model.NewToolMessage(call.ID, call.Function.Name, content))
	}

	delta := State{
		StateKeyMessages:    messages,
		StateKeyToolResults: results,
		StateKeyNodeError:   nil,
	}
	if firstErr != nil {
		delta[StateKeyNodeError] = newNodeError(node, firstErr)
	}
	return delta, nil
}

func runTool(ctx context.Context, tools tool.Set, call model.ToolCall) (any, error) {
	name := call.Function.Name
	ctx, span := trace.Tracer.Start(ctx, itelemetry.NewExecuteToolSpanName(name))
	defer span.End()
	span.SetAttributes(
		attribute.String("trpc.agent.workflow.tool_name", name),
		attribute.String("trpc.agent.workflow.tool_id", call.ID),
	)

	callable, ok := tools.Callable(name)
	if !ok {
		err := fmt.Errorf("tool %s not found or not callable", name)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	out, err := callable.Call(ctx, call.Function.Arguments)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("tool %s call failed: %w", name, err)
	}
	return out, nil
}

// formatToolOutput renders a tool result for the model: strings and
// Stringers as text, anything else as JSON.
func formatToolOutput(out any) string {
	switch v := out.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}
	b, err := json.Marshal(out)
	if err != nil {
		return fmt.Sprintf("%v", out)
	}
	return string(b)
}
