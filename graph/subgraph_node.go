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
	"fmt"

	"trpc.group/trpc-go/trpc-agent-workflow/event"
	"trpc.group/trpc-go/trpc-agent-workflow/model"
)

// SubGraphRecord is stored in the metadata under "subgraph.<node id>" after
// a nested run.
type SubGraphRecord struct {
	Graph      string     `json:"graph,omitempty"`
	HaltReason HaltReason `json:"halt_reason"`
	Steps      int        `json:"steps"`
}

// SubGraphMetadataKey is the metadata key of a sub-graph node's record.
func SubGraphMetadataKey(nodeID string) string {
	return "subgraph." + nodeID
}

// runSubGraph runs the nested graph to completion under its own budget and
// folds its final state back into a single delta.
func runSubGraph(ctx context.Context, node *Node, state State, x *execution) (State, error) {
	cfg := node.SubGraph
	input := cfg.Input
	if input == nil {
		input = DefaultInputMapper
	}
	output := cfg.Output
	if output == nil {
		output = DefaultOutputMapper
	}
	opts := []ExecutorOption{
		WithRunID(x.runID),
		WithBranch(x.branchOf(node.ID)),
	}
	if cfg.MaxSteps > 0 {
		opts = append(opts, WithMaxSteps(cfg.MaxSteps))
	}
	if x.emit != nil {
		opts = append(opts, WithStepCallback(func(ev *event.Event) {
			if ev.Object == event.ObjectTypeRunComplete {
				return
			}
			x.emit(ev)
		}))
	}
	child, err := NewExecutor(cfg.Graph, opts...)
	if err != nil {
		return nil, err
	}
	result, err := child.Run(ctx, input(state))
	if err != nil {
		return nil, fmt.Errorf("sub-graph %s: %w", node.ID, err)
	}

	delta := output(state, result)
	if delta == nil {
		delta = State{}
	}
	meta, _ := delta[StateKeyMetadata].(map[string]any)
	merged := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		merged[k] = v
	}
	merged[SubGraphMetadataKey(node.ID)] = SubGraphRecord{
		Graph:      cfg.Graph.Name(),
		HaltReason: result.HaltReason,
		Steps:      result.Steps,
	}
	delta[StateKeyMetadata] = merged
	return delta, nil
}

// DefaultInputMapper seeds a nested run with the user input and the latest
// outer message. A latest message that requests tool calls is handed over
// as a user message holding the call arguments.
func DefaultInputMapper(parent State) State {
	child := State{}
	if in := UserInput(parent); in != "" {
		child[StateKeyUserInput] = in
	}
	last, ok := LastMessage(parent)
	if !ok {
		return child
	}
	if last.Role == model.RoleAssistant && last.HasToolCalls() {
		last = model.NewUserMessage(string(last.ToolCalls[0].Function.Arguments))
	}
	child[StateKeyMessages] = []model.Message{last}
	return child
}

// DefaultOutputMapper turns the nested run's last message into one outer
// message. When the outer conversation is waiting on tool calls every
// pending call is answered with that content, otherwise it becomes an
// assistant message.
func DefaultOutputMapper(parent State, result *RunResult) State {
	last, ok := LastMessage(result.State)
	if !ok {
		return State{}
	}
	content := last.Content
	var messages []model.Message
	if pending, ok := LastMessage(parent); ok && pending.Role == model.RoleAssistant && pending.HasToolCalls() {
		for _, call := range pending.ToolCalls {
			messages = append(messages, model.NewToolMessage(call.ID, call.Function.Name, content))
		}
	} else {
		messages = []model.Message{model.NewAssistantMessage(content)}
	}
	return State{
		StateKeyMessages:     messages,
		StateKeyLastResponse: content,
	}
}
