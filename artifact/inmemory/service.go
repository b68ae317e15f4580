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

// Package inmemory keeps artifacts in process memory.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"trpc.group/trpc-go/trpc-agent-workflow/artifact"
	iartifact "trpc.group/trpc-go/trpc-agent-workflow/internal/artifact"
)

// Service is an in-memory artifact.Service.
type Service struct {
	mu sync.RWMutex
	// artifacts maps an artifact path to its versions.
	artifacts map[string][]*artifact.Artifact
}

// NewService creates an empty service.
func NewService() *Service {
	return &Service{artifacts: make(map[string][]*artifact.Artifact)}
}

// SaveArtifact implements artifact.Service.
func (s *Service) SaveArtifact(_ context.Context, info artifact.RunInfo, filename string, art *artifact.Artifact) (int, error) {
	if art == nil {
		return 0, fmt.Errorf("artifact %s is nil", filename)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path := iartifact.BuildArtifactPath(info, filename)
	stored := *art
	stored.Data = append([]byte(nil), art.Data...)
	s.artifacts[path] = append(s.artifacts[path], &stored)
	return len(s.artifacts[path]) - 1, nil
}

// LoadArtifact implements artifact.Service.
func (s *Service) LoadArtifact(_ context.Context, info artifact.RunInfo, filename string, version *int) (*artifact.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.artifacts[iartifact.BuildArtifactPath(info, filename)]
	if len(versions) == 0 {
		return nil, nil
	}
	idx := len(versions) - 1
	if version != nil {
		idx = *version
		if idx < 0 || idx >= len(versions) {
			return nil, fmt.Errorf("version %d of %s does not exist", idx, filename)
		}
	}
	out := *versions[idx]
	out.Data = append([]byte(nil), out.Data...)
	return &out, nil
}

// ListArtifactKeys implements artifact.Service.
func (s *Service) ListArtifactKeys(_ context.Context, info artifact.RunInfo) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runPrefix := iartifact.BuildRunPrefix(info)
	sharedPrefix := iartifact.BuildSharedPrefix(info)
	var names []string
	for path := range s.artifacts {
		switch {
		case strings.HasPrefix(path, runPrefix):
			names = append(names, strings.TrimPrefix(path, runPrefix))
		case strings.HasPrefix(path, sharedPrefix):
			names = append(names, strings.TrimPrefix(path, sharedPrefix))
		}
	}
	sort.Strings(names)
	return names, nil
}

// DeleteArtifact implements artifact.Service. Deleting a missing artifact
// is not an error.
func (s *Service) DeleteArtifact(_ context.Context, info artifact.RunInfo, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.artifacts, iartifact.BuildArtifactPath(info, filename))
	return nil
}

// ListVersions implements artifact.Service.
func (s *Service) ListVersions(_ context.Context, info artifact.RunInfo, filename string) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.artifacts[iartifact.BuildArtifactPath(info, filename)]
	out := make([]int, len(versions))
	for i := range versions {
		out[i] = i
	}
	return out, nil
}
