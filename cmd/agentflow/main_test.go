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

package main

import (
	"bytes"
	"encoding/json"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-agent-workflow/codeexecutor"
	"trpc.group/trpc-go/trpc-agent-workflow/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.EnvConfig, "")
	t.Setenv(config.EnvSandboxBackend, config.BackendLocal)
	t.Setenv(config.EnvLogLevel, "error")
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidate(t *testing.T) {
	out, err := execute(t, "validate", "testdata/analyst.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "ok   testdata/analyst.yaml (analyst: 2 nodes, entry analyst)")

	out, err = execute(t, "validate", "testdata/analyst.yaml", "testdata/broken.yaml")
	require.Error(t, err)
	assert.Contains(t, out, "FAIL testdata/broken.yaml")
	assert.Contains(t, out, `unknown model "nobody"`)
	assert.Contains(t, err.Error(), "1 of 2")
}

func TestValidateExampleWorkflows(t *testing.T) {
	paths, err := filepath.Glob("../../examples/workflows/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)
	out, err := execute(t, append([]string{"validate"}, paths...)...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "(research: 3 nodes, entry planner)")
}

func TestGraphFormats(t *testing.T) {
	out, err := execute(t, "graph", "testdata/analyst.yaml")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "flowchart LR"))

	out, err = execute(t, "graph", "-f", "dot", "--rankdir", "TB", "testdata/analyst.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "digraph G {")
	assert.Contains(t, out, "rankdir=TB")

	out, err = execute(t, "graph", "-f", "yaml", "testdata/analyst.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "name: analyst")

	_, err = execute(t, "graph", "-f", "png", "testdata/analyst.yaml")
	require.Error(t, err)
}

func TestExec(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix host required")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found")
	}
	outDir := t.TempDir()
	out, err := execute(t, "exec", "--lang", "sh", "--code", "echo hello; echo data > made.txt", "--json", "-o", outDir)
	require.NoError(t, err)
	jsonPart := out[strings.Index(out, "["):strings.LastIndex(out, "]")+1]
	var results []codeexecutor.ExecutionResult
	require.NoError(t, json.Unmarshal([]byte(jsonPart), &results))
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].ExitCode)
	assert.Equal(t, "hello\n", results[0].Stdout)
	assert.Contains(t, out, filepath.Join(outDir, "made.txt"))
}

func TestReadBlocks(t *testing.T) {
	blocks, err := readBlocks(strings.NewReader("intro\n```sh\necho a\n```\n```python\nprint(1)\n```\n"), []string{"-"}, "", "markdown")
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, "sh", blocks[0].Language)

	blocks, err = readBlocks(nil, nil, "print(2)", "")
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "print(2)", blocks[0].Code)

	_, err = readBlocks(nil, nil, "", "")
	require.Error(t, err)

	assert.Equal(t, "python", languageOf("job.py"))
	assert.Equal(t, "markdown", languageOf("README.md"))
}
