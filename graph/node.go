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
	"trpc.group/trpc-go/trpc-agent-workflow/tool"
)

// NodeType is the kind of a node.
type NodeType string

// Node kinds.
const (
	NodeTypeFunction NodeType = "function"
	NodeTypeAgent    NodeType = "agent"
	NodeTypeTool     NodeType = "tool"
	NodeTypeSubGraph NodeType = "subgraph"
)

// NodeFunc runs a function node. It receives a snapshot and returns the
// delta to merge. An error fails the run.
type NodeFunc func(ctx context.Context, state State) (State, error)

// InputMapper builds the initial state of a nested run from the outer
// state.
type InputMapper func(parent State) State

// OutputMapper folds a finished nested run into one outer delta.
type OutputMapper func(parent State, result *RunResult) State

// AgentConfig configures an agent node.
type AgentConfig struct {
	Invoker          *model.Invoker
	Instruction      string
	Tools            tool.Set
	GenerationConfig model.GenerationConfig
}

// SubGraphConfig configures a sub-graph node.
type SubGraphConfig struct {
	Graph *Graph
	// MaxSteps is the nested run's own budget. Zero selects the nested
	// graph's declared budget, then DefaultMaxSteps.
	MaxSteps int
	Input    InputMapper
	Output   OutputMapper
}

// Node is one step of a graph. Nodes hold no mutable state.
type Node struct {
	ID          string
	Name        string
	Description string
	Type        NodeType

	Function NodeFunc
	Agent    *AgentConfig
	Tools    tool.Set
	SubGraph *SubGraphConfig

	// ref is the registry name the node was built from, if any.
	ref string
}

// Option configures a Node.
type Option func(*Node)

// WithName sets the display name.
func WithName(name string) Option {
	return func(n *Node) {
		n.Name = name
	}
}

// WithDescription sets the description.
func WithDescription(description string) Option {
	return func(n *Node) {
		n.Description = description
	}
}

// WithGenerationConfig sets the generation parameters of an agent node.
func WithGenerationConfig(cfg model.GenerationConfig) Option {
	return func(n *Node) {
		if n.Agent != nil {
			n.Agent.GenerationConfig = cfg
		}
	}
}

// WithSubGraphMaxSteps sets the budget of a sub-graph node's nested run.
func WithSubGraphMaxSteps(steps int) Option {
	return func(n *Node) {
		if n.SubGraph != nil {
			n.SubGraph.MaxSteps = steps
		}
	}
}

// WithInputMapper replaces the default input projection of a sub-graph
// node.
func WithInputMapper(m InputMapper) Option {
	return func(n *Node) {
		if n.SubGraph != nil {
			n.SubGraph.Input = m
		}
	}
}

// WithOutputMapper replaces the default output projection of a sub-graph
// node.
func WithOutputMapper(m OutputMapper) Option {
	return func(n *Node) {
		if n.SubGraph != nil {
			n.SubGraph.Output = m
		}
	}
}

// clone copies the node and its configuration. Invokers, tools and nested
// graphs are shared; they are safe for concurrent use.
func (n *Node) clone() *Node {
	c := *n
	c.Tools = n.Tools.Clone()
	if n.Agent != nil {
		agent := *n.Agent
		agent.Tools = n.Agent.Tools.Clone()
		c.Agent = &agent
	}
	if n.SubGraph != nil {
		sub := *n.SubGraph
		c.SubGraph = &sub
	}
	return &c
}

func withRef(ref string) Option {
	return func(n *Node) {
		n.ref = ref
	}
}
