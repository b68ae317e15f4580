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

// Package graph builds and interprets workflow graphs: directed graphs of
// agent, tool, function and nested sub-graph steps that share one state.
package graph

import (
	"context"
)

// Special node identifiers for routing.
const (
	// Start is the virtual node preceding the entry point.
	Start = "__start__"
	// End is the terminal marker. Routing to it completes a run.
	End = "__end__"
)

// ConditionFunc picks a routing label from the post step state. It must not
// modify the state.
type ConditionFunc func(ctx context.Context, state State) (string, error)

// Edge is an unconditional transition.
type Edge struct {
	From string
	To   string
}

// ConditionalEdge routes through a label table.
type ConditionalEdge struct {
	From      string
	Condition ConditionFunc
	// PathMap maps every label Condition may return to a node id or End.
	PathMap map[string]string

	// router is the registry name of Condition, if any.
	router string
}

func (ce *ConditionalEdge) clone() *ConditionalEdge {
	c := *ce
	c.PathMap = make(map[string]string, len(ce.PathMap))
	for k, v := range ce.PathMap {
		c.PathMap[k] = v
	}
	return &c
}

// Graph is a compiled, immutable workflow. It is safe to share across
// concurrent runs. Accessors return copies.
type Graph struct {
	name             string
	schema           *StateSchema
	nodes            map[string]*Node
	order            []string
	edges            map[string]string
	conditionalEdges map[string]*ConditionalEdge
	entryPoint       string
	definition       *Definition
}

// Name returns the graph name, which may be empty.
func (g *Graph) Name() string {
	return g.name
}

// Node returns a copy of a node by id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, false
	}
	return n.clone(), true
}

// Nodes returns copies of the nodes in declaration order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id].clone())
	}
	return out
}

// Edge returns the unconditional successor of a node.
func (g *Graph) Edge(from string) (string, bool) {
	to, ok := g.edges[from]
	return to, ok
}

// ConditionalEdge returns a copy of the conditional edge leaving a node.
func (g *Graph) ConditionalEdge(from string) (*ConditionalEdge, bool) {
	ce, ok := g.conditionalEdges[from]
	if !ok {
		return nil, false
	}
	return ce.clone(), true
}

// EntryPoint returns the entry node id.
func (g *Graph) EntryPoint() string {
	return g.entryPoint
}

// Schema returns a copy of the state schema.
func (g *Graph) Schema() *StateSchema {
	return g.schema.Clone()
}

// successors lists the possible next nodes of id.
func (g *Graph) successors(id string) []string {
	if to, ok := g.edges[id]; ok {
		return []string{to}
	}
	if ce, ok := g.conditionalEdges[id]; ok {
		out := make([]string, 0, len(ce.PathMap))
		for _, label := range sortedKeys(ce.PathMap) {
			out = append(out, ce.PathMap[label])
		}
		return out
	}
	return nil
}
