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
	"fmt"
	"reflect"
	"sort"
	"sync"

	"trpc.group/trpc-go/trpc-agent-workflow/model"
)

const (
	// StateKeyMessages is the ordered conversation. It always appends.
	StateKeyMessages = "messages"
	// StateKeyUserInput is the user request that started the run.
	StateKeyUserInput = "user_input"
	// StateKeyLastResponse is the content of the most recent model reply.
	StateKeyLastResponse = "last_response"
	// StateKeyNodeError holds the *NodeError of the most recent agent or
	// tool step, or nil when that step succeeded.
	StateKeyNodeError = "node_error"
	// StateKeyToolResults holds the []ToolResult of the most recent tool
	// step.
	StateKeyToolResults = "tool_results"
	// StateKeyMetadata is a map merged across steps.
	StateKeyMetadata = "metadata"
)

// State is the data flowing through a graph run.
type State map[string]any

// Clone returns a copy of s. Slices and maps held at the top level are
// copied too, so a node cannot change the caller's state through the
// snapshot it receives.
func (s State) Clone() State {
	clone := make(State, len(s))
	for k, v := range s {
		clone[k] = copyValue(v)
	}
	return clone
}

func copyValue(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return v
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		reflect.Copy(out, rv)
		return out.Interface()
	case reflect.Map:
		if rv.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), iter.Value())
		}
		return out.Interface()
	default:
		return v
	}
}

// Messages returns the conversation held in s.
func Messages(s State) []model.Message {
	msgs, _ := s[StateKeyMessages].([]model.Message)
	return msgs
}

// LastMessage returns the latest message and whether there is one.
func LastMessage(s State) (model.Message, bool) {
	msgs := Messages(s)
	if len(msgs) == 0 {
		return model.Message{}, false
	}
	return msgs[len(msgs)-1], true
}

// UserInput returns the run's user request.
func UserInput(s State) string {
	in, _ := s[StateKeyUserInput].(string)
	return in
}

// StateReducer merges an update into the existing value of a field.
type StateReducer func(existing, update any) any

// StateField declares one state field.
type StateField struct {
	Type     reflect.Type
	Reducer  StateReducer
	Default  func() any
	Required bool
}

// StateSchema declares the fields of a graph's state and how updates to
// each are merged. Keys without a declaration are replaced.
type StateSchema struct {
	mu     sync.RWMutex
	Fields map[string]StateField
}

// NewStateSchema creates an empty schema.
func NewStateSchema() *StateSchema {
	return &StateSchema{
		Fields: make(map[string]StateField),
	}
}

// Clone returns an independent copy of the schema.
func (s *StateSchema) Clone() *StateSchema {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := &StateSchema{Fields: make(map[string]StateField, len(s.Fields))}
	for name, f := range s.Fields {
		c.Fields[name] = f
	}
	return c
}

// AddField declares a field. A nil reducer means replace.
func (s *StateSchema) AddField(name string, field StateField) *StateSchema {
	s.mu.Lock()
	defer s.mu.Unlock()
	if field.Reducer == nil {
		field.Reducer = ReplaceReducer
	}
	s.Fields[name] = field
	return s
}

// Field returns the declaration of name.
func (s *StateSchema) Field(name string) (StateField, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.Fields[name]
	return f, ok
}

// FieldNames returns the declared names in sorted order.
func (s *StateSchema) FieldNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.Fields))
	for name := range s.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Initial returns the defaults of every field that has one.
func (s *StateSchema) Initial() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state := make(State)
	for name, f := range s.Fields {
		if f.Default != nil {
			state[name] = f.Default()
		}
	}
	return state
}

// ApplyUpdate merges update into current and returns the new state.
// current is not modified.
func (s *StateSchema) ApplyUpdate(current State, update State) State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(State, len(current)+len(update))
	for k, v := range current {
		result[k] = v
	}
	for key, value := range update {
		field, ok := s.Fields[key]
		if !ok {
			result[key] = value
			continue
		}
		existing, has := result[key]
		if !has && field.Default != nil {
			existing = field.Default()
		}
		result[key] = field.Reducer(existing, value)
	}
	return result
}

// Validate checks required fields and declared types.
func (s *StateSchema) Validate(state State) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for name, field := range s.Fields {
		value, exists := state[name]
		if field.Required && !exists {
			return fmt.Errorf("required field %s is missing", name)
		}
		if exists && value != nil && field.Type != nil {
			if vt := reflect.TypeOf(value); !vt.AssignableTo(field.Type) {
				return fmt.Errorf("field %s has wrong type: expected %v, got %v", name, field.Type, vt)
			}
		}
	}
	return nil
}

// ReplaceReducer overwrites the existing value.
func ReplaceReducer(existing, update any) any {
	return update
}

// DefaultReducer is ReplaceReducer.
var DefaultReducer StateReducer = ReplaceReducer

// AppendReducer concatenates slices, preserving order and duplicates. The
// result never shares backing storage with existing. A single element is
// appended when update is not a slice of the same type. Anything else is
// replaced.
func AppendReducer(existing, update any) any {
	if update == nil {
		return existing
	}
	uv := reflect.ValueOf(update)
	if existing == nil {
		if uv.Kind() == reflect.Slice {
			return copyValue(update)
		}
		out := reflect.MakeSlice(reflect.SliceOf(uv.Type()), 0, 1)
		return reflect.Append(out, uv).Interface()
	}
	ev := reflect.ValueOf(existing)
	if ev.Kind() != reflect.Slice {
		return update
	}
	switch {
	case uv.Type() == ev.Type():
		out := reflect.MakeSlice(ev.Type(), 0, ev.Len()+uv.Len())
		out = reflect.AppendSlice(out, ev)
		return reflect.AppendSlice(out, uv).Interface()
	case uv.Type().AssignableTo(ev.Type().Elem()):
		out := reflect.MakeSlice(ev.Type(), 0, ev.Len()+1)
		out = reflect.AppendSlice(out, ev)
		return reflect.Append(out, uv).Interface()
	default:
		return update
	}
}

// MessageReducer appends messages. A single model.Message is accepted.
func MessageReducer(existing, update any) any {
	existingMsgs, _ := existing.([]model.Message)
	var updateMsgs []model.Message
	switch u := update.(type) {
	case []model.Message:
		updateMsgs = u
	case model.Message:
		updateMsgs = []model.Message{u}
	default:
		return existing
	}
	out := make([]model.Message, 0, len(existingMsgs)+len(updateMsgs))
	out = append(out, existingMsgs...)
	return append(out, updateMsgs...)
}

// MergeReducer merges map updates key by key.
func MergeReducer(existing, update any) any {
	updateMap, ok := update.(map[string]any)
	if !ok {
		return update
	}
	existingMap, _ := existing.(map[string]any)
	result := make(map[string]any, len(existingMap)+len(updateMap))
	for k, v := range existingMap {
		result[k] = v
	}
	for k, v := range updateMap {
		result[k] = v
	}
	return result
}

// MessagesStateSchema declares the fields every workflow uses: appended
// messages, replaced user input and last response, merged metadata.
func MessagesStateSchema() *StateSchema {
	return NewStateSchema().
		AddField(StateKeyMessages, StateField{
			Type:    reflect.TypeOf([]model.Message{}),
			Reducer: MessageReducer,
			Default: func() any { return []model.Message{} },
		}).
		AddField(StateKeyUserInput, StateField{
			Type:    reflect.TypeOf(""),
			Reducer: ReplaceReducer,
		}).
		AddField(StateKeyLastResponse, StateField{
			Type:    reflect.TypeOf(""),
			Reducer: ReplaceReducer,
		}).
		AddField(StateKeyMetadata, StateField{
			Type:    reflect.TypeOf(map[string]any{}),
			Reducer: MergeReducer,
			Default: func() any { return map[string]any{} },
		})
}
