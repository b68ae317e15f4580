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

package mcp

import (
	"context"

	"github.com/bmatcuk/doublestar/v4"
)

// ToolInfo is what a filter sees of a server tool.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ToolFilter selects the server tools a ToolSet exposes.
type ToolFilter interface {
	Filter(ctx context.Context, tools []ToolInfo) []ToolInfo
}

// ToolFilterFunc adapts a function to ToolFilter.
type ToolFilterFunc func(ctx context.Context, tools []ToolInfo) []ToolInfo

// Filter implements ToolFilter.
func (f ToolFilterFunc) Filter(ctx context.Context, tools []ToolInfo) []ToolInfo {
	return f(ctx, tools)
}

type nameFilter struct {
	patterns []string
	include  bool
}

// NewIncludeFilter keeps the tools whose name matches one of patterns.
// Patterns use glob syntax, so a plain name matches only itself. No
// patterns keeps every tool.
func NewIncludeFilter(patterns ...string) ToolFilter {
	return &nameFilter{patterns: patterns, include: true}
}

// NewExcludeFilter drops the tools whose name matches one of patterns.
func NewExcludeFilter(patterns ...string) ToolFilter {
	return &nameFilter{patterns: patterns}
}

func (f *nameFilter) Filter(_ context.Context, tools []ToolInfo) []ToolInfo {
	if len(f.patterns) == 0 {
		return tools
	}
	var out []ToolInfo
	for _, t := range tools {
		if f.matches(t.Name) == f.include {
			out = append(out, t)
		}
	}
	return out
}

func (f *nameFilter) matches(name string) bool {
	for _, p := range f.patterns {
		if ok, err := doublestar.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}

// Chain applies filters in order.
func Chain(filters ...ToolFilter) ToolFilter {
	return ToolFilterFunc(func(ctx context.Context, tools []ToolInfo) []ToolInfo {
		for _, f := range filters {
			if f != nil {
				tools = f.Filter(ctx, tools)
			}
		}
		return tools
	})
}
