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

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables read by Load.
const (
	EnvConfig            = "AGENTFLOW_CONFIG"
	EnvLogLevel          = "AGENTFLOW_LOG_LEVEL"
	EnvSandboxBackend    = "AGENTFLOW_SANDBOX_BACKEND"
	EnvSandboxImage      = "AGENTFLOW_SANDBOX_IMAGE"
	EnvSandboxTimeout    = "AGENTFLOW_SANDBOX_TIMEOUT"
	EnvDockerHost        = "AGENTFLOW_DOCKER_HOST"
	EnvMaxSteps          = "AGENTFLOW_MAX_STEPS"
	EnvParallelism       = "AGENTFLOW_PARALLELISM"
	EnvOutputDir         = "AGENTFLOW_OUTPUT_DIR"
	EnvStore             = "AGENTFLOW_STORE"
	EnvArtifacts         = "AGENTFLOW_ARTIFACTS"
	EnvCOSBucketURL      = "AGENTFLOW_COS_BUCKET_URL"
	EnvServerAddr        = "AGENTFLOW_SERVER_ADDR"
	EnvOTLPEndpoint      = "AGENTFLOW_OTLP_ENDPOINT"
	EnvModelBaseURL      = "AGENTFLOW_MODEL_BASE_URL"
	defaultConfigFile    = "agentflow.yaml"
	defaultSystemConfigs = "/etc/agentflow/agentflow.yaml"
)

// Load builds the configuration from the defaults, the YAML file found by
// discovery, and the environment, then validates it.
//
// The file is configPath when set, else $AGENTFLOW_CONFIG, else
// ./agentflow.yaml or /etc/agentflow/agentflow.yaml when present. No file at
// all is fine.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()
	if path := discoverConfigFile(configPath); path != "" {
		if err := loadYAMLFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

// Parse decodes YAML on top of the defaults without reading the
// environment.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := decode(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	for _, p := range []string{defaultConfigFile, defaultSystemConfigs} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return decode(data, cfg)
}

// decode rejects unknown keys. Keys absent from data keep their value.
func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	var errs []error
	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	integer := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = n
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v := os.Getenv(name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = d
		}
	}

	str(EnvLogLevel, &cfg.Log.Level)
	str(EnvSandboxBackend, &cfg.Sandbox.Backend)
	str(EnvSandboxImage, &cfg.Sandbox.Image)
	str(EnvDockerHost, &cfg.Sandbox.DockerHost)
	duration(EnvSandboxTimeout, &cfg.Sandbox.Timeout)
	integer(EnvMaxSteps, &cfg.Runner.MaxSteps)
	integer(EnvParallelism, &cfg.Runner.Parallelism)
	str(EnvOutputDir, &cfg.Runner.OutputDir)
	str(EnvStore, &cfg.Store.Type)
	str(EnvArtifacts, &cfg.Artifacts.Type)
	str(EnvCOSBucketURL, &cfg.Artifacts.COSBucketURL)
	str(EnvServerAddr, &cfg.Server.Addr)
	if v := os.Getenv(EnvOTLPEndpoint); v != "" {
		cfg.Telemetry.Traces.Enabled = true
		cfg.Telemetry.Traces.Endpoint = v
		cfg.Telemetry.Metrics.Enabled = true
		cfg.Telemetry.Metrics.Endpoint = v
	}
	if v := os.Getenv(EnvModelBaseURL); v != "" {
		for i := range cfg.Models {
			cfg.Models[i].BaseURL = v
		}
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	return errors.Join(errs...)
}
