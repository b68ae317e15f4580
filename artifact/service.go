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

package artifact

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
)

// Service persists artifacts.
type Service interface {
	// SaveArtifact stores a new version of filename and returns its version.
	// The first version is 0.
	SaveArtifact(ctx context.Context, info RunInfo, filename string, artifact *Artifact) (int, error)

	// LoadArtifact returns the given version, or the latest when version is
	// nil. A missing artifact is (nil, nil).
	LoadArtifact(ctx context.Context, info RunInfo, filename string, version *int) (*Artifact, error)

	// ListArtifactKeys lists the file names of a run, shared ones included.
	ListArtifactKeys(ctx context.Context, info RunInfo) ([]string, error)

	// DeleteArtifact removes every version of filename.
	DeleteArtifact(ctx context.Context, info RunInfo, filename string) error

	// ListVersions lists the stored versions of filename.
	ListVersions(ctx context.Context, info RunInfo, filename string) ([]int, error)
}

// SaveFiles stores the files at root/<name> for every name and returns the
// saved version of each. The media type is guessed from the extension.
func SaveFiles(ctx context.Context, svc Service, info RunInfo, root string, names []string) (map[string]int, error) {
	versions := make(map[string]int, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(name)))
		if err != nil {
			return versions, fmt.Errorf("read artifact %s: %w", name, err)
		}
		v, err := svc.SaveArtifact(ctx, info, name, &Artifact{
			Data:     data,
			MimeType: MimeType(name),
			Name:     name,
		})
		if err != nil {
			return versions, fmt.Errorf("save artifact %s: %w", name, err)
		}
		versions[name] = v
	}
	return versions, nil
}

// MimeType guesses the media type of a file name.
func MimeType(name string) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}
