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

// Package telemetry holds names and helpers shared by the public tracing and
// metrics packages.
package telemetry

import (
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Resource and instrumentation names.
const (
	ServiceName      = "agentflow"
	ServiceVersion   = "v0.1.0"
	ServiceNamespace = "trpc-agent-workflow"
	InstrumentName   = "trpc.agent.workflow"
)

// OTLP exporter protocols.
const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http"
)

// Span names.
const (
	SpanNameRun           = "workflow_run"
	SpanPrefixExecuteNode = "execute_node"
	SpanPrefixExecuteTool = "execute_tool"
	SpanNameModelAttempt  = "model_attempt"
	SpanNameSandboxExec   = "sandbox_execute"
	SpanNameInvocation    = "workflow_invocation"
)

// Attribute keys.
const (
	KeyRunID       = "trpc.agent.workflow.run_id"
	KeyNodeID      = "trpc.agent.workflow.node_id"
	KeyNodeType    = "trpc.agent.workflow.node_type"
	KeyStep        = "trpc.agent.workflow.step"
	KeyHaltReason  = "trpc.agent.workflow.halt_reason"
	KeyModelName   = "gen_ai.request.model"
	KeyAttempt     = "trpc.agent.workflow.attempt"
	KeySessionID   = "trpc.agent.workflow.sandbox_session"
	KeyLanguage    = "trpc.agent.workflow.language"
	KeyExitCode    = "trpc.agent.workflow.exit_code"
	KeyTermination = "trpc.agent.workflow.termination"
	KeyBackend     = "trpc.agent.workflow.backend"
	KeyOutcome     = "trpc.agent.workflow.outcome"
	KeyWorkflow    = "trpc.agent.workflow.name"
	KeyStatus      = "trpc.agent.workflow.status"
)

// Metric instrument names.
const (
	MetricNodeExecutions    = "workflow.node.executions"
	MetricModelAttempts     = "workflow.model.attempts"
	MetricSandboxExecutions = "workflow.sandbox.executions"
	MetricSandboxDuration   = "workflow.sandbox.duration"
	MetricRuns              = "workflow.runs"
	MetricInvocations       = "workflow.invocations"
)

// NewGRPCConn connects to an OpenTelemetry collector over plaintext gRPC.
func NewGRPCConn(endpoint string) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection to collector: %w", err)
	}
	return conn, nil
}

// NewExecuteNodeSpanName names the span of one node execution.
func NewExecuteNodeSpanName(nodeID string) string {
	return SpanPrefixExecuteNode + " " + nodeID
}

// NewExecuteToolSpanName names the span of one tool call.
func NewExecuteToolSpanName(toolName string) string {
	if toolName == "" {
		return SpanPrefixExecuteTool
	}
	return SpanPrefixExecuteTool + " " + toolName
}
