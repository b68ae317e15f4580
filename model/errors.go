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

package model

import (
	"errors"
	"fmt"
)

var (
	// ErrModelCall matches every *CallError.
	ErrModelCall = errors.New("model call failed")
	// ErrAttemptTimeout marks an attempt abandoned after PerAttemptTimeout.
	ErrAttemptTimeout = errors.New("model attempt timed out")
	// ErrEmptyResponse is returned when a model closes its stream without a
	// final response.
	ErrEmptyResponse = errors.New("model returned no response")
)

// CallError is returned by the Invoker once retries are exhausted or the
// caller's context ends.
type CallError struct {
	Model    string
	Attempts int
	Err      error // last attempt's failure
}

func (e *CallError) Error() string {
	return fmt.Sprintf("model %s: call failed after %d attempt(s): %v", e.Model, e.Attempts, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrModelCall) hold for every CallError.
func (e *CallError) Is(target error) bool {
	return target == ErrModelCall
}
