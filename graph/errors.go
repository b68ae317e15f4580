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
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Errors.
var (
	// ErrGraphValidation matches every *ValidationError.
	ErrGraphValidation = errors.New("graph validation failed")
	// ErrRouting matches every *RoutingError.
	ErrRouting = errors.New("routing failed")
)

// ValidationError lists every structural problem found by Compile.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrGraphValidation, strings.Join(e.Problems, "; "))
}

// Is implements errors.Is.
func (e *ValidationError) Is(target error) bool {
	return target == ErrGraphValidation
}

// RoutingError reports a routing label with no declared target, or a
// failing routing function.
type RoutingError struct {
	Node   string
	Label  string
	Labels []string
	Err    error
}

func (e *RoutingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: condition on node %s: %v", ErrRouting, e.Node, e.Err)
	}
	return fmt.Sprintf("%s: node %s returned label %q, declared labels are %v",
		ErrRouting, e.Node, e.Label, e.Labels)
}

// Is implements errors.Is.
func (e *RoutingError) Is(target error) bool {
	return target == ErrRouting
}

// Unwrap returns the condition's own error.
func (e *RoutingError) Unwrap() error {
	return e.Err
}

func newRoutingError(node, label string, pathMap map[string]string) *RoutingError {
	labels := make([]string, 0, len(pathMap))
	for l := range pathMap {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return &RoutingError{Node: node, Label: label, Labels: labels}
}

// NodeError is the failure of an agent or tool step recorded in state.
type NodeError struct {
	NodeID   string   `json:"node_id"`
	NodeType NodeType `json:"node_type"`
	Message  string   `json:"message"`
	Err      error    `json:"-"`
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s (%s): %s", e.NodeID, e.NodeType, e.Message)
}

// Unwrap returns the underlying failure.
func (e *NodeError) Unwrap() error {
	return e.Err
}

func newNodeError(node *Node, err error) *NodeError {
	return &NodeError{NodeID: node.ID, NodeType: node.Type, Message: err.Error(), Err: err}
}

// LastNodeError returns the failure recorded by the most recent agent or
// tool step, or nil.
func LastNodeError(s State) *NodeError {
	ne, _ := s[StateKeyNodeError].(*NodeError)
	return ne
}
