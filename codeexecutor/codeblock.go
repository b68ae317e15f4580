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

package codeexecutor

import (
	"regexp"
	"strings"
)

// CodeBlock is a fenced block found in model output.
type CodeBlock struct {
	Code     string
	Language string
}

// CodeBlockDelimiter marks the start and end of a block.
type CodeBlockDelimiter struct {
	Start string
	End   string
}

// DefaultDelimiter is the markdown triple backtick fence.
var DefaultDelimiter = CodeBlockDelimiter{Start: "```", End: "```"}

// ExtractCodeBlock returns every block in input. The text following the
// start delimiter on the same line is the language.
func ExtractCodeBlock(input string, delimiter CodeBlockDelimiter) []CodeBlock {
	start := regexp.QuoteMeta(delimiter.Start)
	end := regexp.QuoteMeta(delimiter.End)
	pattern := regexp.MustCompile(`(?s)` + start + `([^\n]*)\n(.*?)` + end)

	var blocks []CodeBlock
	for _, match := range pattern.FindAllStringSubmatch(input, -1) {
		blocks = append(blocks, CodeBlock{
			Language: strings.TrimSpace(match[1]),
			Code:     match[2],
		})
	}
	return blocks
}
