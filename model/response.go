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
	"time"
)

// Error types carried by ResponseError.
const (
	ErrorTypeStreamError = "stream_error"
	ErrorTypeAPIError    = "api_error"
)

// Object types set on responses.
const (
	ObjectTypeChatCompletionChunk = "chat.completion.chunk"
	ObjectTypeChatCompletion      = "chat.completion"
)

// Choice is one completion alternative.
type Choice struct {
	Index int `json:"index"`
	// Message is the full message, set on final responses.
	Message Message `json:"message,omitempty"`
	// Delta is the incremental content, set on partial responses.
	Delta Message `json:"delta,omitempty"`
	// FinishReason is "stop", "length", "tool_calls", etc.
	FinishReason *string `json:"finish_reason,omitempty"`
}

// Usage reports token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (possibly partial) model output.
type Response struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`

	// Error contains API-level error information if the request failed.
	// It differs from the error returned by GenerateContent, which reports
	// that the call could not be made at all.
	Error *ResponseError `json:"error,omitempty"`

	Timestamp time.Time `json:"timestamp"`
	Done      bool      `json:"done"`
	IsPartial bool      `json:"is_partial"`
}

// ResponseError is an API-level error reported inside a Response.
type ResponseError struct {
	Message string  `json:"message"`
	Type    string  `json:"type"`
	Param   *string `json:"param,omitempty"`
	Code    *string `json:"code,omitempty"`
}

func (e *ResponseError) Error() string {
	if e.Type == "" {
		return e.Message
	}
	return e.Type + ": " + e.Message
}

// Clone returns a deep copy of rsp.
func (rsp *Response) Clone() *Response {
	if rsp == nil {
		return nil
	}
	clone := *rsp
	clone.Choices = make([]Choice, len(rsp.Choices))
	copy(clone.Choices, rsp.Choices)
	if rsp.Usage != nil {
		u := *rsp.Usage
		clone.Usage = &u
	}
	if rsp.Error != nil {
		e := *rsp.Error
		clone.Error = &e
	}
	return &clone
}

// Message returns the first choice's message, or the zero message.
func (rsp *Response) Message() Message {
	if rsp == nil || len(rsp.Choices) == 0 {
		return Message{}
	}
	return rsp.Choices[0].Message
}

// IsToolCallResponse reports whether the response requests tool calls.
func (rsp *Response) IsToolCallResponse() bool {
	return rsp != nil && len(rsp.Choices) > 0 && len(rsp.Choices[0].Message.ToolCalls) > 0
}
