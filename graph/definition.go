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
	"bytes"
	"fmt"
	"os"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"

	"trpc.group/trpc-go/trpc-agent-workflow/model"
	"trpc.group/trpc-go/trpc-agent-workflow/tool"
)

// Merge policies of declared state fields.
const (
	MergeReplace = "replace"
	MergeAppend  = "append"
	MergeMerge   = "merge"
)

// Definition is the declarative form of a graph, read from YAML or JSON.
type Definition struct {
	Name             string                      `yaml:"name" json:"name"`
	Description      string                      `yaml:"description,omitempty" json:"description,omitempty"`
	Entry            string                      `yaml:"entry" json:"entry"`
	MaxSteps         int                         `yaml:"max_steps,omitempty" json:"max_steps,omitempty"`
	State            []FieldDefinition           `yaml:"state,omitempty" json:"state,omitempty"`
	Nodes            []NodeDefinition            `yaml:"nodes" json:"nodes"`
	Edges            []EdgeDefinition            `yaml:"edges,omitempty" json:"edges,omitempty"`
	ConditionalEdges []ConditionalEdgeDefinition `yaml:"conditional_edges,omitempty" json:"conditional_edges,omitempty"`
	// Graphs declares nested graphs referenced by sub-graph nodes.
	Graphs []*Definition `yaml:"graphs,omitempty" json:"graphs,omitempty"`
}

// FieldDefinition declares a state field and its merge policy.
type FieldDefinition struct {
	Name  string `yaml:"name" json:"name"`
	Merge string `yaml:"merge" json:"merge"`
}

// NodeDefinition declares one node. Which fields apply depends on Kind.
type NodeDefinition struct {
	ID          string   `yaml:"id" json:"id"`
	Kind        NodeType `yaml:"kind" json:"kind"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	// Model names a registered invoker (agent).
	Model       string   `yaml:"model,omitempty" json:"model,omitempty"`
	Instruction string   `yaml:"instruction,omitempty" json:"instruction,omitempty"`
	Stream      bool     `yaml:"stream,omitempty" json:"stream,omitempty"`
	// Tools names registered tools (agent, tool).
	Tools []string `yaml:"tools,omitempty" json:"tools,omitempty"`
	// Function names a registered NodeFunc (function).
	Function string `yaml:"function,omitempty" json:"function,omitempty"`
	// Graph names a nested graph (subgraph).
	Graph    string `yaml:"graph,omitempty" json:"graph,omitempty"`
	MaxSteps int    `yaml:"max_steps,omitempty" json:"max_steps,omitempty"`
}

// EdgeDefinition declares an unconditional edge. To may be End.
type EdgeDefinition struct {
	From string `yaml:"from" json:"from"`
	To   string `yaml:"to" json:"to"`
}

// ConditionalEdgeDefinition routes through a registered router.
type ConditionalEdgeDefinition struct {
	From   string            `yaml:"from" json:"from"`
	Router string            `yaml:"router" json:"router"`
	Routes map[string]string `yaml:"routes" json:"routes"`
}

// ParseDefinition decodes a YAML or JSON definition. Unknown fields are
// rejected.
func ParseDefinition(data []byte) (*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var def Definition
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("parse graph definition: %w", err)
	}
	return &def, nil
}

// LoadDefinition reads a definition file.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseDefinition(data)
}

// Marshal encodes the definition as YAML. Equal definitions encode to equal
// bytes.
func (d *Definition) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Clone returns a deep copy.
func (d *Definition) Clone() *Definition {
	if d == nil {
		return nil
	}
	c := *d
	c.State = append([]FieldDefinition(nil), d.State...)
	c.Nodes = make([]NodeDefinition, len(d.Nodes))
	for i, n := range d.Nodes {
		n.Tools = append([]string(nil), n.Tools...)
		c.Nodes[i] = n
	}
	c.Edges = append([]EdgeDefinition(nil), d.Edges...)
	c.ConditionalEdges = make([]ConditionalEdgeDefinition, len(d.ConditionalEdges))
	for i, ce := range d.ConditionalEdges {
		routes := make(map[string]string, len(ce.Routes))
		for k, v := range ce.Routes {
			routes[k] = v
		}
		ce.Routes = routes
		c.ConditionalEdges[i] = ce
	}
	c.Graphs = nil
	for _, g := range d.Graphs {
		c.Graphs = append(c.Graphs, g.Clone())
	}
	if len(d.State) == 0 {
		c.State = nil
	}
	if len(d.Edges) == 0 {
		c.Edges = nil
	}
	if len(d.ConditionalEdges) == 0 {
		c.ConditionalEdges = nil
	}
	return &c
}

// Registry resolves the names used by definitions.
type Registry struct {
	models    map[string]*model.Invoker
	tools     map[string]tool.Tool
	functions map[string]NodeFunc
	routers   map[string]ConditionFunc
	graphs    map[string]*Definition
}

// NewRegistry returns a registry holding the built-in routers.
func NewRegistry() *Registry {
	return &Registry{
		models:    make(map[string]*model.Invoker),
		tools:     make(map[string]tool.Tool),
		functions: make(map[string]NodeFunc),
		routers:   builtinRouters(),
		graphs:    make(map[string]*Definition),
	}
}

// RegisterModel registers an invoker under name.
func (r *Registry) RegisterModel(name string, inv *model.Invoker) *Registry {
	r.models[name] = inv
	return r
}

// RegisterTool registers tools under their declared names.
func (r *Registry) RegisterTool(tools ...tool.Tool) *Registry {
	for _, t := range tools {
		r.tools[t.Declaration().Name] = t
	}
	return r
}

// RegisterFunction registers a function node implementation.
func (r *Registry) RegisterFunction(name string, fn NodeFunc) *Registry {
	r.functions[name] = fn
	return r
}

// RegisterRouter registers a routing function.
func (r *Registry) RegisterRouter(name string, fn ConditionFunc) *Registry {
	r.routers[name] = fn
	return r
}

// RegisterGraph registers a definition for sub-graph nodes to reference.
func (r *Registry) RegisterGraph(def *Definition) *Registry {
	r.graphs[def.Name] = def
	return r
}

// Tools returns the registered tools.
func (r *Registry) Tools() tool.Set {
	s := make(tool.Set, len(r.tools))
	for k, v := range r.tools {
		s[k] = v
	}
	return s
}

// Build compiles a definition against a registry. Unknown names and
// structural problems are reported together as a *ValidationError.
func Build(def *Definition, reg *Registry) (*Graph, error) {
	if reg == nil {
		reg = NewRegistry()
	}
	b := &builder{reg: reg, inline: make(map[string]*Definition)}
	return b.build(def, nil)
}

type builder struct {
	reg    *Registry
	inline map[string]*Definition
	built  map[string]*Graph
}

func (b *builder) lookupGraph(name string) (*Definition, bool) {
	if d, ok := b.inline[name]; ok {
		return d, true
	}
	d, ok := b.reg.graphs[name]
	return d, ok
}

func (b *builder) build(def *Definition, stack []string) (*Graph, error) {
	if def == nil {
		return nil, &ValidationError{Problems: []string{"definition is nil"}}
	}
	for _, g := range def.Graphs {
		if g != nil {
			b.inline[g.Name] = g
		}
	}
	var problems []string
	report := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	schema := MessagesStateSchema()
	for _, f := range def.State {
		var reducer StateReducer
		switch f.Merge {
		case MergeReplace, "":
			reducer = ReplaceReducer
		case MergeAppend:
			reducer = AppendReducer
		case MergeMerge:
			reducer = MergeReducer
		default:
			report("state field %s: unknown merge policy %q", f.Name, f.Merge)
			continue
		}
		schema.AddField(f.Name, StateField{Reducer: reducer})
	}

	sg := NewStateGraph(schema).SetName(def.Name).SetEntryPoint(def.Entry)
	for _, nd := range def.Nodes {
		opts := []Option{WithDescription(nd.Description)}
		tools := make(tool.Set, len(nd.Tools))
		for _, name := range nd.Tools {
			t, ok := b.reg.tools[name]
			if !ok {
				report("node %s: unknown tool %s", nd.ID, name)
				continue
			}
			tools[name] = t
		}
		switch nd.Kind {
		case NodeTypeAgent:
			inv, ok := b.reg.models[nd.Model]
			if !ok {
				report("node %s: unknown model %q", nd.ID, nd.Model)
			}
			opts = append(opts, withRef(nd.Model))
			if nd.Stream {
				opts = append(opts, WithGenerationConfig(model.GenerationConfig{Stream: true}))
			}
			sg.AddAgentNode(nd.ID, inv, nd.Instruction, tools, opts...)
		case NodeTypeTool:
			sg.AddToolsNode(nd.ID, tools, opts...)
		case NodeTypeFunction:
			fn, ok := b.reg.functions[nd.Function]
			if !ok {
				report("node %s: unknown function %q", nd.ID, nd.Function)
			}
			sg.AddNode(nd.ID, fn, append(opts, withRef(nd.Function))...)
		case NodeTypeSubGraph:
			sub, err := b.buildNested(nd, stack)
			if err != nil {
				report("node %s: %v", nd.ID, err)
			}
			opts = append(opts, withRef(nd.Graph), WithSubGraphMaxSteps(nd.MaxSteps))
			sg.AddSubGraphNode(nd.ID, sub, opts...)
		default:
			report("node %s: unknown kind %q", nd.ID, nd.Kind)
		}
	}
	for _, e := range def.Edges {
		sg.AddEdge(e.From, e.To)
	}
	for _, ce := range def.ConditionalEdges {
		fn, ok := b.reg.routers[ce.Router]
		if !ok {
			report("conditional edge from %s: unknown router %q", ce.From, ce.Router)
		}
		sg.addNamedConditionalEdges(ce.From, ce.Router, fn, ce.Routes)
	}

	g, err := sg.Compile()
	if err != nil {
		var ve *ValidationError
		if asValidation(err, &ve) {
			problems = append(problems, ve.Problems...)
		} else {
			problems = append(problems, err.Error())
		}
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: dedupe(problems)}
	}
	g.definition = def.Clone()
	return g, nil
}

func (b *builder) buildNested(nd NodeDefinition, stack []string) (*Graph, error) {
	for _, name := range stack {
		if name == nd.Graph {
			return nil, fmt.Errorf("sub-graph cycle %s -> %s", strings.Join(stack, " -> "), nd.Graph)
		}
	}
	sub, ok := b.lookupGraph(nd.Graph)
	if !ok {
		return nil, fmt.Errorf("unknown graph %q", nd.Graph)
	}
	if b.built == nil {
		b.built = make(map[string]*Graph)
	}
	if g, ok := b.built[nd.Graph]; ok {
		return g, nil
	}
	g, err := b.build(sub, append(stack, nd.Graph))
	if err != nil {
		return nil, err
	}
	b.built[nd.Graph] = g
	return g, nil
}

func asValidation(err error, target **ValidationError) bool {
	ve, ok := err.(*ValidationError)
	if ok {
		*target = ve
	}
	return ok
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// Definition exports the graph. A graph built from a definition returns a
// copy of it; a graph built in code is described from its structure, with
// registry names falling back to node ids.
func (g *Graph) Definition() *Definition {
	if g.definition != nil {
		return g.definition.Clone()
	}
	def := &Definition{Name: g.name, Entry: g.entryPoint}
	for _, name := range g.schema.FieldNames() {
		if isBuiltinField(name) {
			continue
		}
		f, _ := g.schema.Field(name)
		def.State = append(def.State, FieldDefinition{Name: name, Merge: reducerName(f.Reducer)})
	}
	seenGraphs := make(map[string]bool)
	for _, n := range g.Nodes() {
		nd := NodeDefinition{ID: n.ID, Kind: n.Type, Description: n.Description}
		ref := n.ref
		if ref == "" {
			ref = n.ID
		}
		switch n.Type {
		case NodeTypeAgent:
			nd.Model = ref
			nd.Instruction = n.Agent.Instruction
			nd.Stream = n.Agent.GenerationConfig.Stream
			nd.Tools = n.Agent.Tools.Names()
		case NodeTypeTool:
			nd.Tools = n.Tools.Names()
		case NodeTypeFunction:
			nd.Function = ref
		case NodeTypeSubGraph:
			sub := n.SubGraph.Graph.Definition()
			if n.ref != "" {
				sub.Name = n.ref
			} else if sub.Name == "" {
				sub.Name = n.ID
			}
			nd.Graph = sub.Name
			nd.MaxSteps = n.SubGraph.MaxSteps
			if !seenGraphs[sub.Name] {
				seenGraphs[sub.Name] = true
				def.Graphs = append(def.Graphs, sub)
			}
		}
		if len(nd.Tools) == 0 {
			nd.Tools = nil
		}
		def.Nodes = append(def.Nodes, nd)
	}
	for _, id := range g.order {
		if to, ok := g.edges[id]; ok {
			def.Edges = append(def.Edges, EdgeDefinition{From: id, To: to})
		}
		if ce, ok := g.conditionalEdges[id]; ok {
			router := ce.router
			if router == "" {
				router = id
			}
			routes := make(map[string]string, len(ce.PathMap))
			for k, v := range ce.PathMap {
				routes[k] = v
			}
			def.ConditionalEdges = append(def.ConditionalEdges, ConditionalEdgeDefinition{
				From: id, Router: router, Routes: routes,
			})
		}
	}
	return def
}

func isBuiltinField(name string) bool {
	switch name {
	case StateKeyMessages, StateKeyUserInput, StateKeyLastResponse, StateKeyMetadata:
		return true
	}
	return false
}

func reducerName(r StateReducer) string {
	p := reflect.ValueOf(r).Pointer()
	switch p {
	case reflect.ValueOf(AppendReducer).Pointer(), reflect.ValueOf(MessageReducer).Pointer():
		return MergeAppend
	case reflect.ValueOf(MergeReducer).Pointer():
		return MergeMerge
	default:
		return MergeReplace
	}
}

// MaxSteps returns the budget declared by the graph's definition, or zero.
func (g *Graph) MaxSteps() int {
	if g.definition == nil {
		return 0
	}
	return g.definition.MaxSteps
}
