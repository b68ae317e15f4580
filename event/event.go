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

// Package event defines the step events emitted while a workflow runs.
package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"trpc.group/trpc-go/trpc-agent-workflow/model"
)

// Object types carried in Event.Object.
const (
	ObjectTypeNodeStart    = "workflow.node.start"
	ObjectTypeNodeComplete = "workflow.node.complete"
	ObjectTypeRunComplete  = "workflow.run.complete"
	ObjectTypeError        = "error"
)

// Event reports progress of one workflow run.
type Event struct {
	// Response carries the model output produced by the step, if any.
	*model.Response

	// InvocationID is the id of the run that produced the event.
	InvocationID string `json:"invocationId"`

	// Author is the node that produced the event.
	Author string `json:"author"`

	// ID is the unique identifier of the event.
	ID string `json:"id"`

	// Timestamp is the timestamp of the event.
	Timestamp time.Time `json:"timestamp"`

	// Branch locates the event inside nested sub-graphs, e.g. "outer/inner".
	Branch string `json:"branch,omitempty"`

	// NodeType is the kind of node that ran.
	NodeType string `json:"nodeType,omitempty"`

	// Step is the number of steps completed when the event was emitted.
	Step int `json:"step"`

	// StateDelta holds the JSON encoded values the step merged into state.
	StateDelta map[string][]byte `json:"stateDelta,omitempty"`

	// HaltReason is set on the final event of a run.
	HaltReason string `json:"haltReason,omitempty"`
}

// Option configures an Event.
type Option func(*Event)

// WithBranch sets the branch.
func WithBranch(branch string) Option {
	return func(e *Event) {
		e.Branch = branch
	}
}

// WithResponse sets a copy of the response. Options applied after it may
// override its fields.
func WithResponse(response *model.Response) Option {
	return func(e *Event) {
		if response != nil {
			e.Response = response.Clone()
		}
	}
}

// WithObject sets the object type.
func WithObject(o string) Option {
	return func(e *Event) {
		e.Object = o
	}
}

// WithStep sets the step counter and node type.
func WithStep(step int, nodeType string) Option {
	return func(e *Event) {
		e.Step = step
		e.NodeType = nodeType
	}
}

// WithStateDelta encodes delta values as JSON. Values that cannot be
// encoded are recorded as null.
func WithStateDelta(delta map[string]any) Option {
	return func(e *Event) {
		if len(delta) == 0 {
			return
		}
		e.StateDelta = make(map[string][]byte, len(delta))
		for k, v := range delta {
			b, err := json.Marshal(v)
			if err != nil {
				b = []byte("null")
			}
			e.StateDelta[k] = b
		}
	}
}

// WithHaltReason sets the halt reason.
func WithHaltReason(reason string) Option {
	return func(e *Event) {
		e.HaltReason = reason
	}
}

// New creates an Event with a generated ID and timestamp.
func New(invocationID, author string, opts ...Option) *Event {
	e := &Event{
		Response:     &model.Response{},
		ID:           uuid.New().String(),
		Timestamp:    time.Now(),
		InvocationID: invocationID,
		Author:       author,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewErrorEvent creates an error Event.
func NewErrorEvent(invocationID, author, errorType, errorMessage string, opts ...Option) *Event {
	e := New(invocationID, author, opts...)
	e.Object = ObjectTypeError
	e.Done = true
	e.Error = &model.ResponseError{Type: errorType, Message: errorMessage}
	return e
}

// IsFinal reports whether e closes a run.
func (e *Event) IsFinal() bool {
	return e != nil && e.Response != nil && e.Object == ObjectTypeRunComplete
}

// Clone creates a deep copy of the event.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Response = e.Response.Clone()
	if e.StateDelta != nil {
		clone.StateDelta = make(map[string][]byte, len(e.StateDelta))
		for k, v := range e.StateDelta {
			clone.StateDelta[k] = append([]byte(nil), v...)
		}
	}
	return &clone
}
