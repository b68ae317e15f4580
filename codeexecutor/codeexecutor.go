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

// Package codeexecutor defines code execution requests and results together
// with the Backend contract implemented by isolated and local backing
// contexts.
package codeexecutor

import (
	"fmt"
	"strings"
	"time"
)

// Language is a normalized interpreter name.
type Language string

// Supported languages.
const (
	LanguagePython Language = "python"
	LanguageBash   Language = "bash"
	LanguageShell  Language = "sh"
)

// NormalizeLanguage maps common aliases onto a supported Language.
// An empty name selects Python.
func NormalizeLanguage(name string) (Language, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "python", "py", "python3":
		return LanguagePython, true
	case "bash":
		return LanguageBash, true
	case "sh", "shell":
		return LanguageShell, true
	default:
		return "", false
	}
}

// Command returns the argv running code under lang's interpreter.
func (l Language) Command(code string) []string {
	switch l {
	case LanguageBash:
		return []string{"bash", "-c", code}
	case LanguageShell:
		return []string{"sh", "-c", code}
	default:
		return []string{"python3", "-c", code}
	}
}

// ExecutionRequest asks a sandbox session to run one piece of code.
type ExecutionRequest struct {
	Language string `json:"language"`
	Code     string `json:"code"`
	// Timeout overrides the session default when positive.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// Termination records why the sandbox killed a process.
type Termination string

// Termination reasons. The zero value means the process ended on its own.
const (
	TerminationNone    Termination = ""
	TerminationTimeout Termination = "timeout"
	TerminationMemory  Termination = "memory"
	TerminationCPU     Termination = "cpu"
)

// Artifact is a file produced in the workspace by an execution.
type Artifact struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
	// Handle locates the file inside the backing context.
	Handle string `json:"handle"`
}

// ExecutionResult is the immutable outcome of one execution. Failures of
// the executed code, including limit kills, are reported here rather than
// as Go errors.
type ExecutionResult struct {
	ID              int64         `json:"id"`
	Language        string        `json:"language"`
	Backend         string        `json:"backend"`
	ExitCode        int           `json:"exit_code"`
	Stdout          string        `json:"stdout"`
	Stderr          string        `json:"stderr"`
	StdoutTruncated bool          `json:"stdout_truncated,omitempty"`
	StderrTruncated bool          `json:"stderr_truncated,omitempty"`
	Artifacts       []Artifact    `json:"artifacts,omitempty"`
	Elapsed         time.Duration `json:"elapsed"`
	PeakMemoryBytes uint64        `json:"peak_memory_bytes"`
	CPUSeconds      float64       `json:"cpu_seconds"`
	Termination     Termination   `json:"termination,omitempty"`
}

// ResourceLimitExceeded reports whether the process was killed for crossing
// a resource limit.
func (r ExecutionResult) ResourceLimitExceeded() bool {
	return r.Termination != TerminationNone
}

// Succeeded reports a zero exit without intervention.
func (r ExecutionResult) Succeeded() bool {
	return r.ExitCode == 0 && !r.ResourceLimitExceeded()
}

// String renders the result for a model to read.
func (r ExecutionResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "exit_code: %d\n", r.ExitCode)
	if r.ResourceLimitExceeded() {
		fmt.Fprintf(&b, "resource_limit_exceeded: %s\n", r.Termination)
	}
	if r.Stdout != "" {
		fmt.Fprintf(&b, "stdout:\n%s\n", r.Stdout)
	}
	if r.Stderr != "" {
		fmt.Fprintf(&b, "stderr:\n%s\n", r.Stderr)
	}
	if len(r.Artifacts) > 0 {
		names := make([]string, 0, len(r.Artifacts))
		for _, a := range r.Artifacts {
			names = append(names, a.Name)
		}
		fmt.Fprintf(&b, "artifacts: %s\n", strings.Join(names, ", "))
	}
	return b.String()
}
