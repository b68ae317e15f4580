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

package redis

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultBuilder_EmptyURL(t *testing.T) {
	_, err := DefaultBuilder()
	require.ErrorIs(t, err, ErrEmptyURL)
}

func TestDefaultBuilder_InvalidURL(t *testing.T) {
	_, err := DefaultBuilder(WithURL("127.0.0.1:6379"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: parse url 127.0.0.1:6379")
}

func TestDefaultBuilder_Ping(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := DefaultBuilder(WithURL("redis://"+mr.Addr()+"/0"), WithPoolSize(4))
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Ping(t.Context()).Err())
}

func TestInstanceRegistry(t *testing.T) {
	mr := miniredis.RunT(t)
	RegisterInstance("results", WithURL("redis://"+mr.Addr()))
	RegisterInstance("results", WithPoolSize(2))

	opts, ok := Instance("results")
	require.True(t, ok)
	assert.Len(t, opts, 2)

	_, ok = Instance("missing")
	assert.False(t, ok)

	client, err := NewClient(WithInstance("results"))
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Ping(t.Context()).Err())
}

func TestSetBuilder(t *testing.T) {
	defer SetBuilder(DefaultBuilder)
	invoked := false
	SetBuilder(func(opts ...Option) (redis.UniversalClient, error) {
		invoked = true
		return nil, nil
	})
	_, err := NewClient(WithURL("redis://localhost:6379"))
	require.NoError(t, err)
	assert.True(t, invoked)
}
