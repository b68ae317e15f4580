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
	"sort"

	"trpc.group/trpc-go/trpc-agent-workflow/model"
	"trpc.group/trpc-go/trpc-agent-workflow/tool"
)

// StateGraph declares a graph and compiles it.
//
// Example usage:
//
//	g, err := NewStateGraph(MessagesStateSchema()).
//	  AddAgentNode("assistant", invoker, "Be helpful.", tools).
//	  AddToolsNode("tools", tools).
//	  AddToolsConditionalEdges("assistant", "tools", End).
//	  AddEdge("tools", "assistant").
//	  SetEntryPoint("assistant").
//	  Compile()
//
// Declarations are recorded as given; every structural check happens in
// Compile.
type StateGraph struct {
	name             string
	schema           *StateSchema
	nodes            []*Node
	edges            []*Edge
	conditionalEdges []*ConditionalEdge
	entryPoint       string
	finishPoints     []string
}

// NewStateGraph creates a builder. A nil schema selects
// MessagesStateSchema.
func NewStateGraph(schema *StateSchema) *StateGraph {
	if schema == nil {
		schema = MessagesStateSchema()
	}
	return &StateGraph{schema: schema}
}

// SetName names the graph.
func (sg *StateGraph) SetName(name string) *StateGraph {
	sg.name = name
	return sg
}

func (sg *StateGraph) addNode(node *Node, opts []Option) *StateGraph {
	if node.Name == "" {
		node.Name = node.ID
	}
	for _, opt := range opts {
		opt(node)
	}
	sg.nodes = append(sg.nodes, node)
	return sg
}

// AddNode adds a function node.
func (sg *StateGraph) AddNode(id string, fn NodeFunc, opts ...Option) *StateGraph {
	return sg.addNode(&Node{ID: id, Type: NodeTypeFunction, Function: fn}, opts)
}

// AddAgentNode adds a node that calls a model through invoker and appends
// its reply to the messages.
func (sg *StateGraph) AddAgentNode(
	id string,
	invoker *model.Invoker,
	instruction string,
	tools tool.Set,
	opts ...Option,
) *StateGraph {
	return sg.addNode(&Node{
		ID:   id,
		Type: NodeTypeAgent,
		Agent: &AgentConfig{
			Invoker:     invoker,
			Instruction: instruction,
			Tools:       tools,
		},
	}, opts)
}

// AddToolsNode adds a node that executes the tool calls of the latest
// assistant message.
func (sg *StateGraph) AddToolsNode(id string, tools tool.Set, opts ...Option) *StateGraph {
	return sg.addNode(&Node{ID: id, Type: NodeTypeTool, Tools: tools}, opts)
}

// AddSubGraphNode adds a node that runs sub to completion as one step.
func (sg *StateGraph) AddSubGraphNode(id string, sub *Graph, opts ...Option) *StateGraph {
	return sg.addNode(&Node{ID: id, Type: NodeTypeSubGraph, SubGraph: &SubGraphConfig{Graph: sub}}, opts)
}

// AddEdge adds an unconditional edge. to may be End.
func (sg *StateGraph) AddEdge(from, to string) *StateGraph {
	sg.edges = append(sg.edges, &Edge{From: from, To: to})
	return sg
}

// AddConditionalEdges routes from a node through condition and pathMap.
func (sg *StateGraph) AddConditionalEdges(
	from string,
	condition ConditionFunc,
	pathMap map[string]string,
) *StateGraph {
	sg.conditionalEdges = append(sg.conditionalEdges, &ConditionalEdge{
		From:      from,
		Condition: condition,
		PathMap:   pathMap,
	})
	return sg
}

func (sg *StateGraph) addNamedConditionalEdges(from, router string, condition ConditionFunc, pathMap map[string]string) {
	sg.conditionalEdges = append(sg.conditionalEdges, &ConditionalEdge{
		From:      from,
		Condition: condition,
		PathMap:   pathMap,
		router:    router,
	})
}

// AddToolsConditionalEdges routes from an agent node to toolsNode when its
// reply requests tool calls and to fallback otherwise.
func (sg *StateGraph) AddToolsConditionalEdges(from, toolsNode, fallback string) *StateGraph {
	sg.addNamedConditionalEdges(from, RouterToolCalls, ToolCallsRouter, map[string]string{
		LabelTools: toolsNode,
		LabelDone:  fallback,
	})
	return sg
}

// SetEntryPoint sets the first node.
func (sg *StateGraph) SetEntryPoint(nodeID string) *StateGraph {
	sg.entryPoint = nodeID
	return sg
}

// SetFinishPoint makes a node terminal. It is AddEdge(nodeID, End).
func (sg *StateGraph) SetFinishPoint(nodeID string) *StateGraph {
	return sg.AddEdge(nodeID, End)
}

// MustCompile is Compile that panics on error.
func (sg *StateGraph) MustCompile() *Graph {
	g, err := sg.Compile()
	if err != nil {
		panic(err)
	}
	return g
}

// Compile validates the declarations and returns the immutable graph. All
// problems are reported together in a *ValidationError.
func (sg *StateGraph) Compile() (*Graph, error) {
	var problems []string
	report := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	g := &Graph{
		name:             sg.name,
		schema:           sg.schema.Clone(),
		nodes:            make(map[string]*Node, len(sg.nodes)),
		edges:            make(map[string]string),
		conditionalEdges: make(map[string]*ConditionalEdge),
		entryPoint:       sg.entryPoint,
	}

	for _, n := range sg.nodes {
		switch {
		case n.ID == "":
			report("node with empty id")
			continue
		case n.ID == Start || n.ID == End:
			report("node id %s is reserved", n.ID)
			continue
		}
		if _, dup := g.nodes[n.ID]; dup {
			report("duplicate node id %s", n.ID)
			continue
		}
		if p := checkNode(n); p != "" {
			report("node %s: %s", n.ID, p)
		}
		g.nodes[n.ID] = n.clone()
		g.order = append(g.order, n.ID)
	}

	declared := func(id string) bool {
		_, ok := g.nodes[id]
		return ok
	}

	switch {
	case sg.entryPoint == "":
		report("no entry point")
	case !declared(sg.entryPoint):
		report("entry point %s is not a declared node", sg.entryPoint)
	}

	for _, e := range sg.edges {
		if !declared(e.From) {
			report("edge %s -> %s: source is not a declared node", e.From, e.To)
			continue
		}
		if e.To != End && !declared(e.To) {
			report("edge %s -> %s: target is not a declared node", e.From, e.To)
			continue
		}
		if prev, ok := g.edges[e.From]; ok {
			if prev != e.To {
				report("node %s has more than one unconditional edge", e.From)
			}
			continue
		}
		g.edges[e.From] = e.To
	}

	for _, ce := range sg.conditionalEdges {
		if !declared(ce.From) {
			report("conditional edge from %s: source is not a declared node", ce.From)
			continue
		}
		if _, dup := g.conditionalEdges[ce.From]; dup {
			report("node %s has more than one conditional edge", ce.From)
			continue
		}
		if ce.Condition == nil {
			report("conditional edge from %s has no condition", ce.From)
		}
		if len(ce.PathMap) == 0 {
			report("conditional edge from %s declares no labels", ce.From)
		}
		for _, label := range sortedKeys(ce.PathMap) {
			if to := ce.PathMap[label]; to != End && !declared(to) {
				report("conditional edge from %s: label %q targets undeclared node %s", ce.From, label, to)
			}
		}
		if _, ok := g.edges[ce.From]; ok {
			report("node %s has both conditional and unconditional edges", ce.From)
		}
		g.conditionalEdges[ce.From] = ce.clone()
	}

	if declared(sg.entryPoint) {
		for _, id := range g.reachable() {
			if len(g.successors(id)) == 0 {
				report("node %s is reachable but has no outgoing edge", id)
			}
		}
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return g, nil
}

func checkNode(n *Node) string {
	switch n.Type {
	case NodeTypeFunction:
		if n.Function == nil {
			return "function node without a function"
		}
	case NodeTypeAgent:
		if n.Agent == nil || n.Agent.Invoker == nil {
			return "agent node without a model"
		}
	case NodeTypeTool:
	case NodeTypeSubGraph:
		if n.SubGraph == nil || n.SubGraph.Graph == nil {
			return "sub-graph node without a graph"
		}
	default:
		return fmt.Sprintf("unknown node type %q", n.Type)
	}
	return ""
}

// reachable returns the nodes reachable from the entry point in breadth
// first order.
func (g *Graph) reachable() []string {
	seen := map[string]bool{g.entryPoint: true}
	queue := []string{g.entryPoint}
	var out []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		out = append(out, id)
		for _, next := range g.successors(id) {
			if next == End || seen[next] {
				continue
			}
			if _, ok := g.nodes[next]; !ok {
				continue
			}
			seen[next] = true
			queue = append(queue, next)
		}
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
