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
	"encoding/json"

	"trpc.group/trpc-go/trpc-agent-workflow/tool"
)

// convertSchema maps the JSON schema a server advertises onto tool.Schema.
// Anything that does not decode becomes an untyped object.
func convertSchema(in any) *tool.Schema {
	out := &tool.Schema{Type: "object"}
	if in == nil {
		return out
	}
	data, err := json.Marshal(in)
	if err != nil {
		return out
	}
	var s tool.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return out
	}
	if s.Type == "" {
		s.Type = "object"
	}
	return &s
}
