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
	"errors"
	"fmt"
)

// Validate reports every invalid setting with its field path.
func (c *Config) Validate() error {
	var errs []error

	switch c.Log.Level {
	case "debug", "info", "warn", "error", "fatal":
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error, fatal, got %q", c.Log.Level))
	}

	seen := map[string]bool{}
	for i, m := range c.Models {
		if m.Name == "" {
			errs = append(errs, fmt.Errorf("models[%d].name is required", i))
		} else if seen[m.Name] {
			errs = append(errs, fmt.Errorf("models[%d].name %q is declared twice", i, m.Name))
		}
		seen[m.Name] = true
		switch m.Provider {
		case ProviderOpenAI, ProviderGemini:
		default:
			errs = append(errs, fmt.Errorf("models[%d].provider must be %q or %q, got %q", i, ProviderOpenAI, ProviderGemini, m.Provider))
		}
		if m.MaxAttempts < 0 {
			errs = append(errs, fmt.Errorf("models[%d].max_attempts must be >= 0, got %d", i, m.MaxAttempts))
		}
		if m.MaxBackoff > 0 && m.InitialBackoff > m.MaxBackoff {
			errs = append(errs, fmt.Errorf("models[%d].initial_backoff exceeds max_backoff", i))
		}
	}

	seen = map[string]bool{}
	for i, ts := range c.Tools {
		if ts.Name == "" {
			errs = append(errs, fmt.Errorf("tools[%d].name is required", i))
		} else if seen[ts.Name] {
			errs = append(errs, fmt.Errorf("tools[%d].name %q is declared twice", i, ts.Name))
		}
		seen[ts.Name] = true
		if err := ts.Connection().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("tools[%d]: %w", i, err))
		}
	}

	switch c.Sandbox.Backend {
	case BackendDocker, BackendLocal:
	default:
		errs = append(errs, fmt.Errorf("sandbox.backend must be %q or %q, got %q", BackendDocker, BackendLocal, c.Sandbox.Backend))
	}
	if c.Sandbox.Backend == BackendDocker && c.Sandbox.Image == "" {
		errs = append(errs, errors.New("sandbox.image is required for the docker backend"))
	}
	if c.Sandbox.Timeout < 0 {
		errs = append(errs, fmt.Errorf("sandbox.timeout must not be negative, got %s", c.Sandbox.Timeout))
	}
	if c.Sandbox.CPULimit < 0 {
		errs = append(errs, fmt.Errorf("sandbox.cpu_limit must not be negative, got %v", c.Sandbox.CPULimit))
	}

	if c.Runner.MaxSteps < 0 {
		errs = append(errs, fmt.Errorf("runner.max_steps must not be negative, got %d", c.Runner.MaxSteps))
	}
	if c.Runner.Parallelism <= 0 {
		errs = append(errs, fmt.Errorf("runner.parallelism must be > 0, got %d", c.Runner.Parallelism))
	}

	switch c.Store.Type {
	case KindMemory:
	case KindRedis:
		if c.Store.RedisURLEnv == "" {
			errs = append(errs, errors.New("store.redis_url_env is required when store.type is \"redis\""))
		}
	default:
		errs = append(errs, fmt.Errorf("store.type must be %q or %q, got %q", KindMemory, KindRedis, c.Store.Type))
	}

	switch c.Artifacts.Type {
	case KindNone, KindMemory:
	case KindCOS:
		if c.Artifacts.COSBucketURL == "" {
			errs = append(errs, errors.New("artifacts.cos_bucket_url is required when artifacts.type is \"cos\""))
		}
	default:
		errs = append(errs, fmt.Errorf("artifacts.type must be %q, %q or %q, got %q", KindNone, KindMemory, KindCOS, c.Artifacts.Type))
	}

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	for _, e := range []struct {
		name string
		cfg  ExporterConfig
	}{{"telemetry.traces", c.Telemetry.Traces}, {"telemetry.metrics", c.Telemetry.Metrics}} {
		switch e.cfg.Protocol {
		case "grpc", "http":
		default:
			errs = append(errs, fmt.Errorf("%s.protocol must be \"grpc\" or \"http\", got %q", e.name, e.cfg.Protocol))
		}
	}

	return errors.Join(errs...)
}
