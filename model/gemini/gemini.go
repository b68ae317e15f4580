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

// Package gemini implements model.Model with the Google Gen AI SDK.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"google.golang.org/genai"

	"trpc.group/trpc-go/trpc-agent-workflow/model"
	"trpc.group/trpc-go/trpc-agent-workflow/tool"
)

const defaultChannelBufferSize = 256

// Model is a Gemini backed model.
type Model struct {
	client            *genai.Client
	name              string
	channelBufferSize int
}

type options struct {
	clientConfig      *genai.ClientConfig
	channelBufferSize int
}

// Option configures a Model.
type Option func(*options)

// WithAPIKey sets the Gemini API key.
func WithAPIKey(key string) Option {
	return func(o *options) {
		o.clientConfig.APIKey = key
	}
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) Option {
	return func(o *options) {
		o.clientConfig.HTTPOptions.BaseURL = url
	}
}

// WithClientConfig replaces the whole client configuration.
func WithClientConfig(cfg *genai.ClientConfig) Option {
	return func(o *options) {
		if cfg != nil {
			o.clientConfig = cfg
		}
	}
}

// New creates a model. The client is created eagerly so configuration errors
// surface here rather than on the first call.
func New(ctx context.Context, name string, opts ...Option) (*Model, error) {
	o := &options{
		clientConfig:      &genai.ClientConfig{Backend: genai.BackendGeminiAPI},
		channelBufferSize: defaultChannelBufferSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	client, err := genai.NewClient(ctx, o.clientConfig)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Model{client: client, name: name, channelBufferSize: o.channelBufferSize}, nil
}

// Info implements model.Model.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.name}
}

// GenerateContent implements model.Model.
func (m *Model) GenerateContent(ctx context.Context, request *model.Request) (<-chan *model.Response, error) {
	if request == nil {
		return nil, errors.New("request cannot be nil")
	}
	contents, system := convertMessages(request.Messages)
	config := &genai.GenerateContentConfig{
		SystemInstruction: system,
		Tools:             convertTools(request.Tools),
		StopSequences:     request.Stop,
	}
	if request.Temperature != nil {
		t := float32(*request.Temperature)
		config.Temperature = &t
	}
	if request.TopP != nil {
		p := float32(*request.TopP)
		config.TopP = &p
	}
	if request.MaxTokens != nil {
		config.MaxOutputTokens = int32(*request.MaxTokens)
	}

	responseChan := make(chan *model.Response, m.channelBufferSize)
	go func() {
		defer close(responseChan)
		if request.Stream {
			m.stream(ctx, contents, config, responseChan)
			return
		}
		rsp, err := m.client.Models.GenerateContent(ctx, m.name, contents, config)
		if err != nil {
			send(ctx, responseChan, errorResponse(err, model.ErrorTypeAPIError))
			return
		}
		send(ctx, responseChan, convertResponse(rsp, m.name, false))
	}()
	return responseChan, nil
}

func (m *Model) stream(
	ctx context.Context,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
	responseChan chan<- *model.Response,
) {
	var (
		text  strings.Builder
		calls []model.ToolCall
		usage *model.Usage
	)
	for chunk, err := range m.client.Models.GenerateContentStream(ctx, m.name, contents, config) {
		if err != nil {
			send(ctx, responseChan, errorResponse(err, model.ErrorTypeStreamError))
			return
		}
		partial := convertResponse(chunk, m.name, true)
		msg := partial.Choices[0].Delta
		text.WriteString(msg.Content)
		calls = append(calls, msg.ToolCalls...)
		if partial.Usage != nil {
			usage = partial.Usage
		}
		if msg.Content == "" {
			continue
		}
		if !send(ctx, responseChan, partial) {
			return
		}
	}
	for i := range calls {
		calls[i].ID = toolCallID(calls[i].ID, i)
	}
	send(ctx, responseChan, &model.Response{
		Object:    model.ObjectTypeChatCompletion,
		Model:     m.name,
		Timestamp: time.Now(),
		Done:      true,
		Usage:     usage,
		Choices: []model.Choice{{
			Message: model.Message{Role: model.RoleAssistant, Content: text.String(), ToolCalls: calls},
		}},
	})
}

func convertMessages(messages []model.Message) ([]*genai.Content, *genai.Content) {
	var (
		contents []*genai.Content
		system   []string
	)
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			system = append(system, msg.Content)
		case model.RoleAssistant:
			c := &genai.Content{Role: string(genai.RoleModel)}
			if msg.Content != "" {
				c.Parts = append(c.Parts, &genai.Part{Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				args := map[string]any{}
				if len(call.Function.Arguments) > 0 {
					_ = json.Unmarshal(call.Function.Arguments, &args)
				}
				c.Parts = append(c.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID: call.ID, Name: call.Function.Name, Args: args,
				}})
			}
			contents = append(contents, c)
		case model.RoleTool:
			contents = append(contents, &genai.Content{
				Role: string(genai.RoleUser),
				Parts: []*genai.Part{{FunctionResponse: &genai.FunctionResponse{
					ID:       msg.ToolID,
					Name:     msg.ToolName,
					Response: map[string]any{"output": msg.Content},
				}}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  string(genai.RoleUser),
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		}
	}
	if len(system) == 0 {
		return contents, nil
	}
	return contents, &genai.Content{Parts: []*genai.Part{{Text: strings.Join(system, "\n\n")}}}
}

func convertTools(tools map[string]tool.Tool) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)
	decls := make([]*genai.FunctionDeclaration, 0, len(names))
	for _, name := range names {
		d := tools[name].Declaration()
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  convertSchema(d.InputSchema),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func convertSchema(s *tool.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        genai.Type(strings.ToUpper(strings.TrimSuffix(s.Type, ",null"))),
		Description: s.Description,
		Required:    s.Required,
		Items:       convertSchema(s.Items),
	}
	for _, e := range s.Enum {
		out.Enum = append(out.Enum, fmt.Sprint(e))
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for k, v := range s.Properties {
			out.Properties[k] = convertSchema(v)
		}
	}
	return out
}

func convertResponse(rsp *genai.GenerateContentResponse, name string, partial bool) *model.Response {
	msg := model.Message{Role: model.RoleAssistant}
	var finish *string
	if len(rsp.Candidates) > 0 && rsp.Candidates[0].Content != nil {
		cand := rsp.Candidates[0]
		for _, part := range cand.Content.Parts {
			if part == nil {
				continue
			}
			if part.FunctionCall != nil {
				args, _ := json.Marshal(part.FunctionCall.Args)
				msg.ToolCalls = append(msg.ToolCalls, model.ToolCall{
					Type: "function",
					ID:   part.FunctionCall.ID,
					Function: model.FunctionDefinitionParam{
						Name:      part.FunctionCall.Name,
						Arguments: args,
					},
				})
				continue
			}
			msg.Content += part.Text
		}
		if cand.FinishReason != "" {
			reason := strings.ToLower(string(cand.FinishReason))
			finish = &reason
		}
	}
	out := &model.Response{
		Model:     name,
		Timestamp: time.Now(),
		IsPartial: partial,
		Done:      !partial,
	}
	if rsp.UsageMetadata != nil {
		out.Usage = &model.Usage{
			PromptTokens:     int(rsp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(rsp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(rsp.UsageMetadata.TotalTokenCount),
		}
	}
	if partial {
		out.Object = model.ObjectTypeChatCompletionChunk
		out.Choices = []model.Choice{{Delta: msg, FinishReason: finish}}
		return out
	}
	for i := range msg.ToolCalls {
		msg.ToolCalls[i].ID = toolCallID(msg.ToolCalls[i].ID, i)
	}
	out.Object = model.ObjectTypeChatCompletion
	out.Choices = []model.Choice{{Message: msg, FinishReason: finish}}
	return out
}

func toolCallID(id string, index int) string {
	if id != "" {
		return id
	}
	return fmt.Sprintf("auto_call_%d", index)
}

func errorResponse(err error, typ string) *model.Response {
	return &model.Response{
		Error:     &model.ResponseError{Message: err.Error(), Type: typ},
		Timestamp: time.Now(),
		Done:      true,
	}
}

func send(ctx context.Context, ch chan<- *model.Response, rsp *model.Response) bool {
	select {
	case ch <- rsp:
		return true
	case <-ctx.Done():
		return false
	}
}
