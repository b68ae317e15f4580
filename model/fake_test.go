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

package model

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// scriptedModel fails the first `failures` calls, then answers with text.
type scriptedModel struct {
	failures int32
	calls    atomic.Int32
	delay    time.Duration // per call, ignores ctx when hang is set
	hang     bool
	partials []string
	text     string
	apiError bool
}

func (m *scriptedModel) Info() Info { return Info{Name: "scripted"} }

func (m *scriptedModel) GenerateContent(ctx context.Context, _ *Request) (<-chan *Response, error) {
	n := m.calls.Add(1)
	if n <= m.failures && !m.apiError {
		return nil, errors.New("transient")
	}
	ch := make(chan *Response, len(m.partials)+1)
	go func() {
		defer close(ch)
		if m.delay > 0 {
			if m.hang {
				time.Sleep(m.delay)
			} else {
				select {
				case <-time.After(m.delay):
				case <-ctx.Done():
					return
				}
			}
		}
		if n <= m.failures && m.apiError {
			ch <- &Response{Error: &ResponseError{Type: ErrorTypeAPIError, Message: "rate limited"}}
			return
		}
		for _, p := range m.partials {
			ch <- &Response{IsPartial: true, Choices: []Choice{{Delta: Message{Role: RoleAssistant, Content: p}}}}
		}
		ch <- &Response{Done: true, Choices: []Choice{{Message: NewAssistantMessage(m.text)}}}
	}()
	return ch, nil
}
