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

// Package artifact stores the files a workflow run produced, versioned per
// run.
package artifact

// Artifact is one stored file version.
type Artifact struct {
	// Data contains the raw bytes.
	Data []byte `json:"data,omitempty"`
	// MimeType is the IANA media type of Data.
	MimeType string `json:"mime_type,omitempty"`
	// URL is where the artifact can be fetched, if the backend exposes one.
	URL string `json:"url,omitempty"`
	// Name is the file name the artifact was saved under.
	Name string `json:"name,omitempty"`
}

// RunInfo scopes artifacts to one run of one workflow.
type RunInfo struct {
	// Workflow is the graph name.
	Workflow string
	// RunID identifies the run.
	RunID string
}

// SharedPrefix marks file names stored at workflow level, visible to every
// run of the workflow.
const SharedPrefix = "shared:"
