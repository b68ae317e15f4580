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

// Package mcp exposes the tools of a Model Context Protocol server as
// workflow tools.
package mcp

import (
	"fmt"
	"time"

	mcp "trpc.group/trpc-go/trpc-mcp-go"
)

// Transports.
const (
	TransportStdio      = "stdio"
	TransportSSE        = "sse"
	TransportStreamable = "streamable"
)

var defaultClientInfo = mcp.Implementation{
	Name:    "agentflow",
	Version: "1.0.0",
}

// ConnectionConfig says how to reach an MCP server.
type ConnectionConfig struct {
	// Transport is one of stdio, sse or streamable.
	Transport string `json:"transport"`

	// ServerURL and Headers apply to the sse and streamable transports.
	ServerURL string            `json:"server_url,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`

	// Command and Args start the server for the stdio transport.
	Command string   `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`

	// Timeout bounds every request that has no deadline of its own.
	Timeout time.Duration `json:"timeout,omitempty"`

	ClientInfo mcp.Implementation `json:"client_info,omitempty"`
}

// Validate checks the transport and its required fields.
func (c ConnectionConfig) Validate() error {
	t, err := parseTransport(c.Transport)
	if err != nil {
		return err
	}
	switch t {
	case TransportStdio:
		if c.Command == "" {
			return fmt.Errorf("command is required for the %s transport", t)
		}
	default:
		if c.ServerURL == "" {
			return fmt.Errorf("server_url is required for the %s transport", t)
		}
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	return nil
}

func parseTransport(t string) (string, error) {
	switch t {
	case TransportStdio:
		return TransportStdio, nil
	case TransportSSE:
		return TransportSSE, nil
	case TransportStreamable, "streamable_http":
		return TransportStreamable, nil
	default:
		return "", fmt.Errorf("unsupported transport %q, want stdio, sse or streamable", t)
	}
}

type toolSetConfig struct {
	name       string
	filter     ToolFilter
	mcpOptions []mcp.ClientOption
}

// ToolSetOption configures a ToolSet.
type ToolSetOption func(*toolSetConfig)

// WithName names the tool set in logs and errors.
func WithName(name string) ToolSetOption {
	return func(c *toolSetConfig) {
		c.name = name
	}
}

// WithToolFilter limits which server tools are exposed.
func WithToolFilter(filter ToolFilter) ToolSetOption {
	return func(c *toolSetConfig) {
		c.filter = filter
	}
}

// WithMCPOptions passes client options through to trpc-mcp-go.
func WithMCPOptions(options ...mcp.ClientOption) ToolSetOption {
	return func(c *toolSetConfig) {
		c.mcpOptions = append(c.mcpOptions, options...)
	}
}
