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

package runner

import (
	"time"

	"trpc.group/trpc-go/trpc-agent-workflow/codeexecutor"
	"trpc.group/trpc-go/trpc-agent-workflow/event"
	"trpc.group/trpc-go/trpc-agent-workflow/graph"
	"trpc.group/trpc-go/trpc-agent-workflow/model"
)

// Status is the outcome of a run as a whole.
type Status string

// Run statuses.
const (
	StatusRunning         Status = "running"
	StatusCompleted       Status = "completed"
	StatusBudgetExhausted Status = "budget_exhausted"
	StatusFailed          Status = "failed"
)

// Input starts one run.
type Input struct {
	// RunID is generated when empty.
	RunID string `json:"run_id,omitempty"`
	// Query becomes the user input and, after Messages, a user message.
	Query    string          `json:"query,omitempty"`
	Messages []model.Message `json:"messages,omitempty"`
	// State seeds author declared fields.
	State graph.State `json:"state,omitempty"`
	// Files are host paths or glob patterns copied into the sandbox
	// workspace before the first step.
	Files []string `json:"files,omitempty"`
	// OutputDir receives the files the run created or changed.
	OutputDir string `json:"output_dir,omitempty"`
	// OnEvent receives this run's step events after the runner wide
	// handler.
	OnEvent func(*event.Event) `json:"-"`
}

// Result is the record of a finished run.
type Result struct {
	RunID      string           `json:"run_id"`
	Workflow   string           `json:"workflow"`
	Status     Status           `json:"status"`
	HaltReason graph.HaltReason `json:"halt_reason,omitempty"`
	Steps      int              `json:"steps"`
	Path       []string         `json:"path,omitempty"`
	Query      string           `json:"query,omitempty"`
	// State is the final state without the message list.
	State      graph.State                    `json:"state,omitempty"`
	Messages   []model.Message                `json:"messages,omitempty"`
	Executions []codeexecutor.ExecutionResult `json:"executions,omitempty"`
	// Conclusion is the last model response of the run.
	Conclusion string `json:"conclusion,omitempty"`
	// Artifacts are host paths under the input's OutputDir.
	Artifacts []string `json:"artifacts,omitempty"`
	// StoredArtifacts maps artifact names to their stored version.
	StoredArtifacts map[string]int `json:"stored_artifacts,omitempty"`
	Sandbox         string         `json:"sandbox,omitempty"`
	Degraded        bool           `json:"degraded,omitempty"`
	Error           string         `json:"error,omitempty"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      time.Time      `json:"finished_at,omitempty"`
}

// Duration is the wall time of the run.
func (r *Result) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// NodeError returns the failure recorded by the last agent or tool step.
func (r *Result) NodeError() *graph.NodeError {
	return graph.LastNodeError(r.State)
}

func statusOf(halt graph.HaltReason, err error) Status {
	switch {
	case err != nil:
		return StatusFailed
	case halt == graph.HaltBudgetExhausted:
		return StatusBudgetExhausted
	default:
		return StatusCompleted
	}
}

// conclusion prefers the recorded last response and falls back to the last
// assistant message.
func conclusion(state graph.State) string {
	if s, ok := state[graph.StateKeyLastResponse].(string); ok && s != "" {
		return s
	}
	msgs := graph.Messages(state)
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == model.RoleAssistant && msgs[i].Content != "" {
			return msgs[i].Content
		}
	}
	return ""
}
