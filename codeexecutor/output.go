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
	"bytes"
	"fmt"
	"strings"
	"sync"
)

// DefaultOutputLimit caps stdout and stderr independently.
const DefaultOutputLimit = 64 * 1024

// TruncationMarker prefixes the note appended to truncated output.
const TruncationMarker = "...[output truncated"

// LimitedBuffer keeps the first limit bytes written to it and counts the
// rest. Writes never fail so the producing process is not disturbed.
type LimitedBuffer struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	limit   int
	dropped int64
}

// NewLimitedBuffer returns a buffer capped at limit bytes. A non-positive
// limit selects DefaultOutputLimit.
func NewLimitedBuffer(limit int) *LimitedBuffer {
	if limit <= 0 {
		limit = DefaultOutputLimit
	}
	return &LimitedBuffer{limit: limit}
}

// Write implements io.Writer.
func (b *LimitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	room := b.limit - b.buf.Len()
	if room >= len(p) {
		b.buf.Write(p)
		return len(p), nil
	}
	if room > 0 {
		b.buf.Write(p[:room])
	}
	b.dropped += int64(len(p) - max(room, 0))
	return len(p), nil
}

// Truncated reports whether anything was dropped.
func (b *LimitedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped > 0
}

// String returns the kept output, followed by a marker line when bytes were
// dropped.
func (b *LimitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := strings.ToValidUTF8(b.buf.String(), "")
	if b.dropped == 0 {
		return s
	}
	return fmt.Sprintf("%s\n%s: %d bytes omitted]", s, TruncationMarker, b.dropped)
}
