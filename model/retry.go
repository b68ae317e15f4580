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
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// Retry defaults.
const (
	DefaultMaxAttempts       = 5
	DefaultInitialInterval   = 500 * time.Millisecond
	DefaultBackoffFactor     = 2.0
	DefaultMaxInterval       = 30 * time.Second
	DefaultPerAttemptTimeout = 120 * time.Second
)

// RetryPolicy controls how the Invoker retries a failed model call.
// Every failure is retried; there is no error classification.
type RetryPolicy struct {
	// MaxAttempts counts the first call. Values below 1 mean 1.
	MaxAttempts     int
	InitialInterval time.Duration
	BackoffFactor   float64
	// MaxInterval caps the backoff before jitter. 0 means InitialInterval.
	MaxInterval time.Duration
	// Jitter adds a random duration in [0, delay) to each backoff.
	Jitter bool

	// PerAttemptTimeout bounds a single attempt; 0 disables it.
	PerAttemptTimeout time.Duration
	// MaxElapsedTime bounds the whole retry loop; 0 disables it.
	MaxElapsedTime time.Duration
}

// DefaultRetryPolicy returns five attempts with jittered exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       DefaultMaxAttempts,
		InitialInterval:   DefaultInitialInterval,
		BackoffFactor:     DefaultBackoffFactor,
		MaxInterval:       DefaultMaxInterval,
		Jitter:            true,
		PerAttemptTimeout: DefaultPerAttemptTimeout,
	}
}

// NextDelay returns the wait after the given failed attempt (1-based).
func (p RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	factor := p.BackoffFactor
	if factor <= 0 {
		factor = 1.0
	}
	delay := float64(p.InitialInterval) * math.Pow(factor, float64(attempt-1))
	maxInt := p.MaxInterval
	if maxInt <= 0 {
		maxInt = p.InitialInterval
	}
	if maxInt > 0 {
		delay = math.Min(delay, float64(maxInt))
	}
	d := time.Duration(delay)
	if p.Jitter && d > 0 {
		// crypto/rand keeps gosec quiet about G404.
		if n, err := rand.Int(rand.Reader, big.NewInt(int64(d))); err == nil {
			d += time.Duration(n.Int64())
		}
	}
	if d < 0 {
		d = 0
	}
	return d
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
