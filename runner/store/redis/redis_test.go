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
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-agent-workflow/runner/store"
	"trpc.group/trpc-go/trpc-agent-workflow/runner/store/storetest"
	rstorage "trpc.group/trpc-go/trpc-agent-workflow/storage/redis"
)

func newStore(t *testing.T, opts ...Option) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := New([]rstorage.Option{rstorage.WithURL("redis://" + mr.Addr())}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestContract(t *testing.T) {
	s, _ := newStore(t)
	storetest.Run(t, s)
}

func TestConcurrentCreate(t *testing.T) {
	s, mr := newStore(t)
	storetest.RunConcurrentCreate(t, s)
	assert.True(t, mr.Exists(defaultPrefix+"same"))
}

func TestNewRequiresURL(t *testing.T) {
	_, err := New(nil)
	require.ErrorIs(t, err, rstorage.ErrEmptyURL)
}

func TestPrefixAndTTL(t *testing.T) {
	s, mr := newStore(t, WithPrefix("test:"), WithTTL(time.Minute))
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, storetest.Record("r1", time.Now())))

	assert.True(t, mr.Exists("test:r1"))
	assert.Equal(t, time.Minute, mr.TTL("test:r1"))

	mr.FastForward(2 * time.Minute)
	_, err := s.Get(ctx, "r1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	list, err := s.List(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
	members, err := mr.ZMembers("test:index")
	if err == nil {
		assert.Empty(t, members)
	}
}

func TestNewFromClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	s := NewFromClient(client)
	defer s.Close()
	storetest.Run(t, s)
}
