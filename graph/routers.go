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

	"trpc.group/trpc-go/trpc-agent-workflow/model"
)

// Built-in router names and their labels.
const (
	RouterToolCalls = "tool_calls"
	LabelTools      = "tools"
	LabelDone       = "done"

	RouterNodeError = "node_error"
	LabelError      = "error"
	LabelOK         = "ok"
)

// ToolCallsRouter returns LabelTools when the latest message is an
// assistant message requesting tool calls and LabelDone otherwise.
func ToolCallsRouter(_ context.Context, state State) (string, error) {
	last, ok := LastMessage(state)
	if ok && last.Role == model.RoleAssistant && last.HasToolCalls() {
		return LabelTools, nil
	}
	return LabelDone, nil
}

// NodeErrorRouter returns LabelError when the latest agent or tool step
// failed and LabelOK otherwise.
func NodeErrorRouter(_ context.Context, state State) (string, error) {
	if LastNodeError(state) != nil {
		return LabelError, nil
	}
	return LabelOK, nil
}

func builtinRouters() map[string]ConditionFunc {
	return map[string]ConditionFunc{
		RouterToolCalls: ToolCallsRouter,
		RouterNodeError: NodeErrorRouter,
	}
}
