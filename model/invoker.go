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
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	itelemetry "trpc.group/trpc-go/trpc-agent-workflow/internal/telemetry"
	"trpc.group/trpc-go/trpc-agent-workflow/log"
	"trpc.group/trpc-go/trpc-agent-workflow/telemetry/metric"
	"trpc.group/trpc-go/trpc-agent-workflow/telemetry/trace"
)

// Invoker calls a Model with retries. It holds no per-call state and is safe
// for concurrent use.
type Invoker struct {
	model  Model
	policy RetryPolicy
}

// InvokerOption configures an Invoker.
type InvokerOption func(*Invoker)

// WithRetryPolicy replaces the whole retry policy.
func WithRetryPolicy(p RetryPolicy) InvokerOption {
	return func(i *Invoker) {
		i.policy = p
	}
}

// WithMaxAttempts sets the number of attempts, the first one included.
func WithMaxAttempts(n int) InvokerOption {
	return func(i *Invoker) {
		i.policy.MaxAttempts = n
	}
}

// WithAttemptTimeout bounds every single attempt.
func WithAttemptTimeout(d time.Duration) InvokerOption {
	return func(i *Invoker) {
		i.policy.PerAttemptTimeout = d
	}
}

// WithBackoff sets the initial and maximum backoff intervals.
func WithBackoff(initial, maxInterval time.Duration) InvokerOption {
	return func(i *Invoker) {
		i.policy.InitialInterval = initial
		i.policy.MaxInterval = maxInterval
	}
}

// NewInvoker wraps m with DefaultRetryPolicy, adjusted by opts.
func NewInvoker(m Model, opts ...InvokerOption) *Invoker {
	i := &Invoker{model: m, policy: DefaultRetryPolicy()}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Model returns the wrapped model.
func (i *Invoker) Model() Model {
	return i.model
}

// Policy returns the effective retry policy.
func (i *Invoker) Policy() RetryPolicy {
	return i.policy
}

// Invoke performs a non-streaming call and returns the final response.
func (i *Invoker) Invoke(ctx context.Context, req *Request) (*Response, error) {
	return i.InvokeStream(ctx, req, nil)
}

// InvokeStream performs the call and hands every partial response of the
// current attempt to onPartial. A failed attempt restarts the stream from
// scratch, so consumers may see the same prefix more than once.
//
// The caller's context is honoured between and during attempts: once it is
// done no further attempt starts and a *CallError wrapping ctx.Err() is
// returned.
func (i *Invoker) InvokeStream(
	ctx context.Context,
	req *Request,
	onPartial func(*Response),
) (*Response, error) {
	name := i.model.Info().Name
	maxAttempts := i.policy.attempts()
	start := time.Now()

	var lastErr error
	attempt := 0
	for attempt < maxAttempts {
		if err := ctx.Err(); err != nil {
			return nil, &CallError{Model: name, Attempts: attempt, Err: err}
		}
		attempt++
		rsp, err := i.attempt(ctx, req, attempt, onPartial)
		if err == nil {
			return rsp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, &CallError{Model: name, Attempts: attempt, Err: ctx.Err()}
		}
		if attempt == maxAttempts {
			break
		}
		if i.policy.MaxElapsedTime > 0 && time.Since(start) >= i.policy.MaxElapsedTime {
			log.Debugf("model %s: retry budget of %s spent after %d attempt(s)",
				name, i.policy.MaxElapsedTime, attempt)
			break
		}
		delay := i.policy.NextDelay(attempt)
		log.Debugf("model %s: attempt %d/%d failed: %v; retrying in %s",
			name, attempt, maxAttempts, err, delay)
		if err := sleepContext(ctx, delay); err != nil {
			return nil, &CallError{Model: name, Attempts: attempt, Err: err}
		}
	}
	log.Warnf("model %s: giving up after %d attempt(s): %v", name, attempt, lastErr)
	return nil, &CallError{Model: name, Attempts: attempt, Err: lastErr}
}

type outcome struct {
	rsp *Response
	err error
}

// attempt runs one model call on its own goroutine so that an elapsed
// per-attempt timeout returns immediately even if the backend ignores its
// context. The abandoned goroutine sees a cancelled context and its result
// is dropped into a buffered channel.
func (i *Invoker) attempt(
	ctx context.Context,
	req *Request,
	n int,
	onPartial func(*Response),
) (*Response, error) {
	ctx, span := trace.Tracer.Start(ctx, itelemetry.SpanNameModelAttempt)
	defer span.End()
	span.SetAttributes(
		attribute.String(itelemetry.KeyModelName, i.model.Info().Name),
		attribute.Int(itelemetry.KeyAttempt, n),
	)

	var (
		actx   context.Context
		cancel context.CancelFunc
	)
	if i.policy.PerAttemptTimeout > 0 {
		actx, cancel = context.WithTimeout(ctx, i.policy.PerAttemptTimeout)
	} else {
		actx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		rsp, err := collect(actx, i.model, req, onPartial)
		done <- outcome{rsp: rsp, err: err}
	}()

	var o outcome
	select {
	case o = <-done:
	case <-actx.Done():
		if ctx.Err() != nil {
			o.err = ctx.Err()
		} else {
			o.err = fmt.Errorf("%w after %s", ErrAttemptTimeout, i.policy.PerAttemptTimeout)
		}
	}

	result := "ok"
	if o.err != nil {
		result = "error"
		span.RecordError(o.err)
		span.SetStatus(codes.Error, o.err.Error())
	}
	metric.Count(ctx, itelemetry.MetricModelAttempts,
		attribute.String(itelemetry.KeyModelName, i.model.Info().Name),
		attribute.String(itelemetry.KeyOutcome, result),
	)
	return o.rsp, o.err
}

// collect drains one GenerateContent stream. Partial responses go to
// onPartial; the last complete response is returned. A response carrying
// an Error fails the attempt.
func collect(ctx context.Context, m Model, req *Request, onPartial func(*Response)) (*Response, error) {
	ch, err := m.GenerateContent(ctx, req)
	if err != nil {
		return nil, err
	}
	var final *Response
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case rsp, ok := <-ch:
			if !ok {
				if final == nil {
					return nil, ErrEmptyResponse
				}
				return final, nil
			}
			if rsp == nil {
				continue
			}
			if rsp.Error != nil {
				return nil, rsp.Error
			}
			if rsp.IsPartial {
				if onPartial != nil && ctx.Err() == nil {
					onPartial(rsp)
				}
				continue
			}
			final = rsp
		}
	}
}
