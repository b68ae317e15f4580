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
	"testing"

	"github.com/stretchr/testify/assert"
)

var sampleTools = []ToolInfo{
	{Name: "fs_read", Description: "Read a file"},
	{Name: "fs_write", Description: "Write a file"},
	{Name: "search", Description: "Search the web"},
}

func names(infos []ToolInfo) []string {
	out := make([]string, 0, len(infos))
	for _, i := range infos {
		out = append(out, i.Name)
	}
	return out
}

func TestNameFilters(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, []string{"search"}, names(NewIncludeFilter("search").Filter(ctx, sampleTools)))
	assert.Equal(t, []string{"fs_read", "fs_write"}, names(NewIncludeFilter("fs_*").Filter(ctx, sampleTools)))
	assert.Equal(t, []string{"fs_read", "search"}, names(NewExcludeFilter("*_write").Filter(ctx, sampleTools)))
	assert.Equal(t, sampleTools, NewIncludeFilter().Filter(ctx, sampleTools))
	assert.Equal(t, sampleTools, NewExcludeFilter().Filter(ctx, sampleTools))
	assert.Empty(t, NewIncludeFilter("nothing").Filter(ctx, sampleTools))
}

func TestChain(t *testing.T) {
	ctx := context.Background()
	f := Chain(NewIncludeFilter("fs_*"), nil, NewExcludeFilter("fs_write"))
	assert.Equal(t, []string{"fs_read"}, names(f.Filter(ctx, sampleTools)))

	byDesc := ToolFilterFunc(func(_ context.Context, tools []ToolInfo) []ToolInfo {
		var out []ToolInfo
		for _, t := range tools {
			if t.Description == "Search the web" {
				out = append(out, t)
			}
		}
		return out
	})
	assert.Equal(t, []string{"search"}, names(Chain(byDesc).Filter(ctx, sampleTools)))
}
