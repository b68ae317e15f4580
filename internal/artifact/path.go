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

// Package artifact builds the storage keys shared by artifact backends.
package artifact

import (
	"fmt"
	"strings"

	"trpc.group/trpc-go/trpc-agent-workflow/artifact"
)

// IsShared reports whether filename lives in the workflow namespace.
func IsShared(filename string) bool {
	return strings.HasPrefix(filename, artifact.SharedPrefix)
}

// BuildArtifactPath returns the key of all versions of filename.
func BuildArtifactPath(info artifact.RunInfo, filename string) string {
	if IsShared(filename) {
		return fmt.Sprintf("%s/shared/%s", info.Workflow, filename)
	}
	return fmt.Sprintf("%s/runs/%s/%s", info.Workflow, info.RunID, filename)
}

// BuildObjectName returns the object key of one version.
func BuildObjectName(info artifact.RunInfo, filename string, version int) string {
	return fmt.Sprintf("%s/%d", BuildArtifactPath(info, filename), version)
}

// BuildObjectNamePrefix returns the prefix shared by every version of
// filename.
func BuildObjectNamePrefix(info artifact.RunInfo, filename string) string {
	return BuildArtifactPath(info, filename) + "/"
}

// BuildRunPrefix returns the prefix of every run scoped artifact.
func BuildRunPrefix(info artifact.RunInfo) string {
	return fmt.Sprintf("%s/runs/%s/", info.Workflow, info.RunID)
}

// BuildSharedPrefix returns the prefix of every shared artifact.
func BuildSharedPrefix(info artifact.RunInfo) string {
	return fmt.Sprintf("%s/shared/", info.Workflow)
}

// FilenameFromObject recovers the file name from an object key under
// prefix. ok is false for keys that are not versioned objects.
func FilenameFromObject(prefix, key string) (filename string, version string, ok bool) {
	rest := strings.TrimPrefix(key, prefix)
	if rest == key {
		return "", "", false
	}
	i := strings.LastIndex(rest, "/")
	if i <= 0 {
		return "", "", false
	}
	return rest[:i], rest[i+1:], true
}
