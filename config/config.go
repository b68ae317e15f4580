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

// Package config loads the agentflow configuration: built-in defaults, then
// a YAML file, then AGENTFLOW_* environment variables, then validation.
//
// Secrets never appear in the file. Model API keys and store URLs are
// referenced by the name of the environment variable that holds them.
package config

import (
	"time"

	"trpc.group/trpc-go/trpc-agent-workflow/codeexecutor"
	"trpc.group/trpc-go/trpc-agent-workflow/graph"
	"trpc.group/trpc-go/trpc-agent-workflow/model"
	"trpc.group/trpc-go/trpc-agent-workflow/sandbox"
)

// Model providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Sandbox backends.
const (
	BackendDocker = "docker"
	BackendLocal  = "local"
)

// Store and artifact kinds.
const (
	KindNone   = "none"
	KindMemory = "memory"
	KindRedis  = "redis"
	KindCOS    = "cos"
)

// Config is the whole configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Models    []ModelConfig   `yaml:"models"`
	Tools     []ToolSetConfig `yaml:"tools"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	Runner    RunnerConfig    `yaml:"runner"`
	Store     StoreConfig     `yaml:"store"`
	Artifacts ArtifactConfig  `yaml:"artifacts"`
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// LogConfig sets the log level: debug, info, warn, error or fatal.
type LogConfig struct {
	Level string `yaml:"level"`
}

// ModelConfig declares a model that workflow definitions refer to by Name.
type ModelConfig struct {
	Name     string `yaml:"name"`
	Provider string `yaml:"provider"`
	// Model is the provider's model id. It defaults to Name.
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv      string        `yaml:"api_key_env"`
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
}

// ToolSetConfig declares an MCP server whose tools workflow definitions
// may refer to by name.
type ToolSetConfig struct {
	Name string `yaml:"name"`
	// Transport is stdio, sse or streamable.
	Transport string `yaml:"transport"`
	ServerURL string `yaml:"server_url"`
	// HeadersEnv maps a request header to the environment variable holding
	// its value.
	HeadersEnv map[string]string `yaml:"headers_env"`
	Command    string            `yaml:"command"`
	Args       []string          `yaml:"args"`
	Timeout    time.Duration     `yaml:"timeout"`
	// Include and Exclude are glob patterns over the server's tool names.
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// SandboxConfig configures the session every run gets.
type SandboxConfig struct {
	Backend        string        `yaml:"backend"`
	Image          string        `yaml:"image"`
	DockerHost     string        `yaml:"docker_host"`
	Timeout        time.Duration `yaml:"timeout"`
	MemoryLimit    uint64        `yaml:"memory_limit"`
	CPULimit       float64       `yaml:"cpu_limit"`
	OutputLimit    int           `yaml:"output_limit"`
	SampleInterval time.Duration `yaml:"sample_interval"`
}

// RunnerConfig configures run execution.
type RunnerConfig struct {
	MaxSteps    int    `yaml:"max_steps"`
	Parallelism int    `yaml:"parallelism"`
	OutputDir   string `yaml:"output_dir"`
}

// StoreConfig selects where run records go.
type StoreConfig struct {
	Type string `yaml:"type"`
	// RedisURLEnv names the environment variable holding the Redis URL.
	RedisURLEnv string        `yaml:"redis_url_env"`
	Prefix      string        `yaml:"prefix"`
	TTL         time.Duration `yaml:"ttl"`
	MaxRuns     int           `yaml:"max_runs"`
}

// ArtifactConfig selects where run artifacts are persisted.
type ArtifactConfig struct {
	Type         string        `yaml:"type"`
	COSBucketURL string        `yaml:"cos_bucket_url"`
	COSTimeout   time.Duration `yaml:"cos_timeout"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// TelemetryConfig configures the OpenTelemetry exporters.
type TelemetryConfig struct {
	Traces  ExporterConfig `yaml:"traces"`
	Metrics ExporterConfig `yaml:"metrics"`
}

// ExporterConfig configures one OTLP exporter.
type ExporterConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Protocol string `yaml:"protocol"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	policy := model.DefaultRetryPolicy()
	return Config{
		Log: LogConfig{Level: "info"},
		Models: []ModelConfig{{
			Name:           "default",
			Provider:       ProviderOpenAI,
			Model:          "gpt-4o-mini",
			APIKeyEnv:      "OPENAI_API_KEY",
			MaxAttempts:    policy.MaxAttempts,
			InitialBackoff: policy.InitialInterval,
			MaxBackoff:     policy.MaxInterval,
			AttemptTimeout: policy.PerAttemptTimeout,
		}},
		Sandbox: SandboxConfig{
			Backend:        BackendDocker,
			Image:          "python:3.12-slim",
			Timeout:        sandbox.DefaultTimeout,
			OutputLimit:    codeexecutor.DefaultOutputLimit,
			SampleInterval: 200 * time.Millisecond,
		},
		Runner: RunnerConfig{
			MaxSteps:    graph.DefaultMaxSteps,
			Parallelism: 4,
		},
		Store: StoreConfig{
			Type:        KindMemory,
			RedisURLEnv: "AGENTFLOW_REDIS_URL",
			MaxRuns:     1000,
		},
		Artifacts: ArtifactConfig{Type: KindNone},
		Server: ServerConfig{
			Addr:        ":8080",
			CORSOrigins: []string{"*"},
		},
		Telemetry: TelemetryConfig{
			Traces:  ExporterConfig{Protocol: "grpc"},
			Metrics: ExporterConfig{Protocol: "grpc"},
		},
	}
}

// Model returns the model declared under name.
func (c *Config) Model(name string) (ModelConfig, bool) {
	for _, m := range c.Models {
		if m.Name == name {
			return m, true
		}
	}
	return ModelConfig{}, false
}
