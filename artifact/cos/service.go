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

// Package cos stores artifacts in Tencent Cloud Object Storage. Every
// version is one object named <artifact path>/<version>.
package cos

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	cos "github.com/tencentyun/cos-go-sdk-v5"

	"trpc.group/trpc-go/trpc-agent-workflow/artifact"
	iartifact "trpc.group/trpc-go/trpc-agent-workflow/internal/artifact"
)

// Service is a COS backed artifact.Service.
type Service struct {
	store objectStore
}

// NewService creates a service for the bucket at bucketURL, e.g.
// https://bucket-1250000000.cos.ap-guangzhou.myqcloud.com.
func NewService(bucketURL string, opts ...Option) (*Service, error) {
	c, err := buildStore(bucketURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("cos artifact service: %w", err)
	}
	return &Service{store: c}, nil
}

// SaveArtifact implements artifact.Service.
func (s *Service) SaveArtifact(ctx context.Context, info artifact.RunInfo, filename string, art *artifact.Artifact) (int, error) {
	versions, err := s.ListVersions(ctx, info, filename)
	if err != nil {
		return 0, err
	}
	version := 0
	if n := len(versions); n > 0 {
		version = versions[n-1] + 1
	}
	name := iartifact.BuildObjectName(info, filename, version)
	if err := s.store.Upload(ctx, name, art.Data, art.MimeType); err != nil {
		return 0, fmt.Errorf("upload artifact %s: %w", filename, err)
	}
	return version, nil
}

// LoadArtifact implements artifact.Service.
func (s *Service) LoadArtifact(ctx context.Context, info artifact.RunInfo, filename string, version *int) (*artifact.Artifact, error) {
	var target int
	if version != nil {
		target = *version
	} else {
		versions, err := s.ListVersions(ctx, info, filename)
		if err != nil {
			return nil, err
		}
		if len(versions) == 0 {
			return nil, nil
		}
		target = versions[len(versions)-1]
	}

	data, mimeType, err := s.store.Download(ctx, iartifact.BuildObjectName(info, filename, target))
	if err != nil {
		if cos.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("download artifact %s: %w", filename, err)
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return &artifact.Artifact{Data: data, MimeType: mimeType, Name: filename}, nil
}

// ListArtifactKeys implements artifact.Service.
func (s *Service) ListArtifactKeys(ctx context.Context, info artifact.RunInfo) ([]string, error) {
	names := make(map[string]bool)
	for _, prefix := range []string{iartifact.BuildRunPrefix(info), iartifact.BuildSharedPrefix(info)} {
		keys, err := s.store.Keys(ctx, prefix)
		if err != nil && !cos.IsNotFoundError(err) {
			return nil, fmt.Errorf("list artifacts under %s: %w", prefix, err)
		}
		for _, key := range keys {
			if name, _, ok := iartifact.FilenameFromObject(prefix, key); ok {
				names[name] = true
			}
		}
	}
	out := make([]string, 0, len(names))
	for name := range names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// DeleteArtifact implements artifact.Service.
func (s *Service) DeleteArtifact(ctx context.Context, info artifact.RunInfo, filename string) error {
	versions, err := s.ListVersions(ctx, info, filename)
	if err != nil {
		return err
	}
	for _, v := range versions {
		err := s.store.Remove(ctx, iartifact.BuildObjectName(info, filename, v))
		if err != nil && !cos.IsNotFoundError(err) {
			return fmt.Errorf("delete artifact %s version %d: %w", filename, v, err)
		}
	}
	return nil
}

// ListVersions implements artifact.Service. Versions are sorted.
func (s *Service) ListVersions(ctx context.Context, info artifact.RunInfo, filename string) ([]int, error) {
	prefix := iartifact.BuildObjectNamePrefix(info, filename)
	keys, err := s.store.Keys(ctx, prefix)
	if err != nil {
		if cos.IsNotFoundError(err) {
			return []int{}, nil
		}
		return nil, fmt.Errorf("list versions of %s: %w", filename, err)
	}
	versions := []int{}
	for _, key := range keys {
		rest, ok := strings.CutPrefix(key, prefix)
		if !ok {
			continue
		}
		if v, err := strconv.Atoi(rest); err == nil {
			versions = append(versions, v)
		}
	}
	sort.Ints(versions)
	return versions, nil
}
