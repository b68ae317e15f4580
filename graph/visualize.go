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
	"strings"
)

// Graphviz layout directions.
const (
	RankDirLR = "LR"
	RankDirTB = "TB"
)

const (
	colorAgentFill   = "#e3f2fd"
	colorAgentBorder = "#2196f3"
	colorToolFill    = "#fff3e0"
	colorToolBorder  = "#ff9800"
	colorSubFill     = "#e8f5e9"
	colorSubBorder   = "#4caf50"
	colorFuncFill    = "#f3e5f5"
	colorFuncBorder  = "#9c27b0"
	colorEndFill     = "#ffe1e1"
	colorEndBorder   = "#f44336"
	colorConditional = "#999999"
	colorVisitedFill = "#e1f5fe"
	colorVisitedLine = "#01579b"
)

// VizOptions configures rendering.
type VizOptions struct {
	RankDir string
	// Visited highlights the nodes of a run path.
	Visited []string
}

// VizOption mutates VizOptions.
type VizOption func(*VizOptions)

// WithRankDir sets the layout direction. Unknown values are ignored.
func WithRankDir(dir string) VizOption {
	return func(o *VizOptions) {
		if dir == RankDirLR || dir == RankDirTB {
			o.RankDir = dir
		}
	}
}

// WithVisited highlights the given nodes, usually RunResult.Path.
func WithVisited(path []string) VizOption {
	return func(o *VizOptions) { o.Visited = path }
}

func vizOptions(opts []VizOption) *VizOptions {
	o := &VizOptions{RankDir: RankDirLR}
	for _, fn := range opts {
		fn(o)
	}
	return o
}

// DOT returns a Graphviz representation. Conditional edges are dashed and
// labelled.
func (g *Graph) DOT(opts ...VizOption) string {
	o := vizOptions(opts)
	visited := toSet(o.Visited)

	var b strings.Builder
	b.WriteString("digraph G {\n")
	fmt.Fprintf(&b, "  rankdir=%s;\n", o.RankDir)
	b.WriteString("  node [fontname=\"Helvetica\"];\n")
	if g.name != "" {
		fmt.Fprintf(&b, "  label=\"%s\";\n  labelloc=t;\n", escapeLabel(g.name))
	}
	fmt.Fprintf(&b, "  \"%s\" [label=\"start\", shape=oval];\n", Start)
	fmt.Fprintf(&b, "  \"%s\" [label=\"end\", shape=oval, style=filled, fillcolor=\"%s\", color=\"%s\"];\n",
		End, colorEndFill, colorEndBorder)
	for _, n := range g.Nodes() {
		fill, border := styleFor(n.Type)
		if visited[n.ID] {
			fill, border = colorVisitedFill, colorVisitedLine
		}
		fmt.Fprintf(&b, "  \"%s\" [label=\"%s\\n(%s)\", shape=box, style=\"rounded,filled\", fillcolor=\"%s\", color=\"%s\"];\n",
			escapeLabel(n.ID), escapeLabel(n.Name), n.Type, fill, border)
	}
	fmt.Fprintf(&b, "  \"%s\" -> \"%s\";\n", Start, escapeLabel(g.entryPoint))
	for _, id := range g.order {
		if to, ok := g.edges[id]; ok {
			fmt.Fprintf(&b, "  \"%s\" -> \"%s\";\n", escapeLabel(id), escapeLabel(to))
		}
		if ce, ok := g.conditionalEdges[id]; ok {
			for _, label := range sortedKeys(ce.PathMap) {
				fmt.Fprintf(&b, "  \"%s\" -> \"%s\" [label=\"%s\", style=dashed, color=\"%s\"];\n",
					escapeLabel(id), escapeLabel(ce.PathMap[label]), escapeLabel(label), colorConditional)
			}
		}
	}
	b.WriteString("}\n")
	return b.String()
}

// Mermaid returns a flowchart. Agent nodes are rounded, tool nodes are
// subroutines and sub-graph nodes are hexagons.
func (g *Graph) Mermaid(opts ...VizOption) string {
	o := vizOptions(opts)
	dir := "LR"
	if o.RankDir == RankDirTB {
		dir = "TD"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "flowchart %s\n", dir)
	fmt.Fprintf(&b, "    %s((start))\n", mermaidID(Start))
	fmt.Fprintf(&b, "    %s((end))\n", mermaidID(End))
	for _, n := range g.Nodes() {
		open, closing := "[", "]"
		switch n.Type {
		case NodeTypeAgent:
			open, closing = "(", ")"
		case NodeTypeTool:
			open, closing = "[[", "]]"
		case NodeTypeSubGraph:
			open, closing = "{{", "}}"
		}
		label := strings.ReplaceAll(n.Name, "\"", "'")
		fmt.Fprintf(&b, "    %s%s\"%s\"%s\n", mermaidID(n.ID), open, label, closing)
	}
	fmt.Fprintf(&b, "    %s --> %s\n", mermaidID(Start), mermaidID(g.entryPoint))
	for _, id := range g.order {
		if to, ok := g.edges[id]; ok {
			fmt.Fprintf(&b, "    %s --> %s\n", mermaidID(id), mermaidID(to))
		}
		if ce, ok := g.conditionalEdges[id]; ok {
			for _, label := range sortedKeys(ce.PathMap) {
				fmt.Fprintf(&b, "    %s -. \"%s\" .-> %s\n",
					mermaidID(id), strings.ReplaceAll(label, "\"", "'"), mermaidID(ce.PathMap[label]))
			}
		}
	}
	if len(o.Visited) > 0 {
		fmt.Fprintf(&b, "    classDef visited fill:%s,stroke:%s,stroke-width:2px,color:#000;\n",
			colorVisitedFill, colorVisitedLine)
		seen := make(map[string]bool)
		for _, id := range o.Visited {
			if seen[id] {
				continue
			}
			seen[id] = true
			fmt.Fprintf(&b, "    class %s visited;\n", mermaidID(id))
		}
	}
	return b.String()
}

func styleFor(t NodeType) (fill, border string) {
	switch t {
	case NodeTypeAgent:
		return colorAgentFill, colorAgentBorder
	case NodeTypeTool:
		return colorToolFill, colorToolBorder
	case NodeTypeSubGraph:
		return colorSubFill, colorSubBorder
	default:
		return colorFuncFill, colorFuncBorder
	}
}

func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	return strings.ReplaceAll(s, "\"", "\\\"")
}

var mermaidReplacer = strings.NewReplacer(".", "_", "-", "_", "/", "_", " ", "_", "\\", "_")

func mermaidID(id string) string {
	return mermaidReplacer.Replace(id)
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
