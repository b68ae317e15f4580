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

	"trpc.group/trpc-go/trpc-agent-workflow/event"
	"trpc.group/trpc-go/trpc-agent-workflow/log"
	"trpc.group/trpc-go/trpc-agent-workflow/model"
)

// runAgent asks the model for the next assistant message. A failed model
// call is recorded as a node error instead of failing the run, unless the
// run itself was cancelled.
func runAgent(ctx context.Context, node *Node, state State, x *execution) (State, *model.Response, error) {
	cfg := node.Agent
	messages := Messages(state)

	// The first agent of a run may see only the user input.
	var added []model.Message
	if len(messages) == 0 {
		if in := UserInput(state); in != "" {
			um := model.NewUserMessage(in)
			messages = []model.Message{um}
			added = append(added, um)
		}
	}

	reqMessages := messages
	if cfg.Instruction != "" && (len(messages) == 0 || messages[0].Role != model.RoleSystem) {
		reqMessages = make([]model.Message, 0, len(messages)+1)
		reqMessages = append(reqMessages, model.NewSystemMessage(cfg.Instruction))
		reqMessages = append(reqMessages, messages...)
	}
	request := &model.Request{
		Messages:         reqMessages,
		GenerationConfig: cfg.GenerationConfig,
		Tools:            cfg.Tools,
	}

	var onPartial func(*model.Response)
	if x.emit != nil && cfg.GenerationConfig.Stream {
		onPartial = func(rsp *model.Response) {
			x.emit(event.New(x.runID, node.ID,
				event.WithResponse(rsp),
				event.WithObject(model.ObjectTypeChatCompletionChunk),
				event.WithBranch(x.branchOf(node.ID)),
				event.WithStep(x.step, string(node.Type)),
			))
		}
	}

	rsp, err := cfg.Invoker.InvokeStream(ctx, request, onPartial)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, err
		}
		log.Warnf("agent node %s: %v", node.ID, err)
		delta := State{StateKeyNodeError: newNodeError(node, err)}
		if len(added) > 0 {
			delta[StateKeyMessages] = added
		}
		return delta, nil, nil
	}

	reply := rsp.Message()
	reply.Role = model.RoleAssistant
	added = append(added, reply)
	return State{
		StateKeyMessages:     added,
		StateKeyLastResponse: reply.Content,
		StateKeyNodeError:    nil,
	}, rsp, nil
}
