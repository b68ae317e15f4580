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
	"errors"
	"sync"

	"trpc.group/trpc-go/trpc-agent-workflow/model"
)

// fakeModel replays scripted replies. Once the script runs out the last
// reply repeats.
type fakeModel struct {
	mu       sync.Mutex
	replies  []model.Message
	partials []string
	fail     bool
	requests []*model.Request
}

func (m *fakeModel) Info() model.Info { return model.Info{Name: "fake"} }

func (m *fakeModel) GenerateContent(_ context.Context, req *model.Request) (<-chan *model.Response, error) {
	m.mu.Lock()
	n := len(m.requests)
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.fail {
		return nil, errors.New("model unavailable")
	}
	reply := model.NewAssistantMessage("")
	if len(m.replies) > 0 {
		if n >= len(m.replies) {
			n = len(m.replies) - 1
		}
		reply = m.replies[n]
	}
	ch := make(chan *model.Response, len(m.partials)+1)
	for _, p := range m.partials {
		ch <- &model.Response{IsPartial: true, Choices: []model.Choice{{Delta: model.Message{Role: model.RoleAssistant, Content: p}}}}
	}
	ch <- &model.Response{Done: true, Choices: []model.Choice{{Message: reply}}}
	close(ch)
	return ch, nil
}

func (m *fakeModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *fakeModel) lastRequest() *model.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

func newInvoker(m model.Model) *model.Invoker {
	return model.NewInvoker(m, model.WithBackoff(0, 0), model.WithMaxAttempts(2))
}

func toolCallMessage(calls ...model.ToolCall) model.Message {
	return model.Message{Role: model.RoleAssistant, ToolCalls: calls}
}

func call(id, name, args string) model.ToolCall {
	return model.ToolCall{
		ID:       id,
		Type:     "function",
		Function: model.FunctionDefinitionParam{Name: name, Arguments: []byte(args)},
	}
}

// appendNode adds its own id to the "trace" field.
func appendNode(id string) NodeFunc {
	return func(_ context.Context, _ State) (State, error) {
		return State{"trace": []string{id}}, nil
	}
}

func traceSchema() *StateSchema {
	return MessagesStateSchema().AddField("trace", StateField{Reducer: AppendReducer})
}
