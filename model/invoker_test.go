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
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastInvoker(m Model, opts ...InvokerOption) *Invoker {
	base := []InvokerOption{WithBackoff(time.Millisecond, 2*time.Millisecond)}
	return NewInvoker(m, append(base, opts...)...)
}

func TestInvoker_SucceedsAfterTransientFailures(t *testing.T) {
	m := &scriptedModel{failures: 3, text: "hello"}
	rsp, err := fastInvoker(m).Invoke(context.Background(), &Request{})
	require.NoError(t, err)
	assert.Equal(t, "hello", rsp.Message().Content)
	assert.Equal(t, int32(4), m.calls.Load())
}

func TestInvoker_ExhaustsDefaultAttempts(t *testing.T) {
	m := &scriptedModel{failures: 100}
	_, err := fastInvoker(m).Invoke(context.Background(), &Request{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrModelCall))

	var callErr *CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, DefaultMaxAttempts, callErr.Attempts)
	assert.Equal(t, "scripted", callErr.Model)
	assert.Equal(t, int32(DefaultMaxAttempts), m.calls.Load())
}

func TestInvoker_ResponseErrorIsRetried(t *testing.T) {
	m := &scriptedModel{failures: 2, apiError: true, text: "ok"}
	rsp, err := fastInvoker(m).Invoke(context.Background(), &Request{})
	require.NoError(t, err)
	assert.Equal(t, "ok", rsp.Message().Content)
	assert.Equal(t, int32(3), m.calls.Load())
}

func TestInvoker_PerAttemptTimeoutAbandonsHungCall(t *testing.T) {
	m := &scriptedModel{delay: time.Second, hang: true, text: "late"}
	inv := fastInvoker(m, WithMaxAttempts(2), WithAttemptTimeout(30*time.Millisecond))

	start := time.Now()
	_, err := inv.Invoke(context.Background(), &Request{})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAttemptTimeout)
	assert.Less(t, elapsed, 500*time.Millisecond)
	assert.Equal(t, int32(2), m.calls.Load())
}

func TestInvoker_ParentCancellationStopsRetrying(t *testing.T) {
	m := &scriptedModel{failures: 100}
	inv := NewInvoker(m, WithBackoff(time.Second, time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := inv.Invoke(ctx, &Request{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelCall)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), m.calls.Load())
}

func TestInvoker_StreamsPartials(t *testing.T) {
	m := &scriptedModel{partials: []string{"he", "llo"}, text: "hello"}
	var got []string
	rsp, err := fastInvoker(m).InvokeStream(context.Background(), &Request{}, func(r *Response) {
		got = append(got, r.Choices[0].Delta.Content)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"he", "llo"}, got)
	assert.Equal(t, "hello", rsp.Message().Content)
}

func TestInvoker_EmptyStreamIsFailure(t *testing.T) {
	_, err := fastInvoker(emptyModel{}, WithMaxAttempts(1)).Invoke(context.Background(), &Request{})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

type emptyModel struct{}

func (emptyModel) Info() Info { return Info{Name: "empty"} }

func (emptyModel) GenerateContent(context.Context, *Request) (<-chan *Response, error) {
	ch := make(chan *Response)
	close(ch)
	return ch, nil
}

func TestRetryPolicy_NextDelay(t *testing.T) {
	p := RetryPolicy{InitialInterval: 100 * time.Millisecond, BackoffFactor: 2, MaxInterval: time.Second}
	assert.Equal(t, 100*time.Millisecond, p.NextDelay(1))
	assert.Equal(t, 200*time.Millisecond, p.NextDelay(2))
	assert.Equal(t, 400*time.Millisecond, p.NextDelay(3))
	assert.Equal(t, time.Second, p.NextDelay(10))

	p.Jitter = true
	for attempt := 1; attempt <= 5; attempt++ {
		base := RetryPolicy{InitialInterval: p.InitialInterval, BackoffFactor: 2, MaxInterval: time.Second}.NextDelay(attempt)
		d := p.NextDelay(attempt)
		assert.GreaterOrEqual(t, d, base)
		assert.Less(t, d, 2*base)
	}
}

func TestRetryPolicy_Defaults(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 5, p.MaxAttempts)
	assert.True(t, p.Jitter)
	assert.Equal(t, 1, RetryPolicy{}.attempts())
}
