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

// Package redis stores run records in Redis as JSON values with a sorted
// set index ordered by start time.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"trpc.group/trpc-go/trpc-agent-workflow/runner"
	"trpc.group/trpc-go/trpc-agent-workflow/runner/store"
	rstorage "trpc.group/trpc-go/trpc-agent-workflow/storage/redis"
)

const defaultPrefix = "agentflow:run:"

var _ store.Store = (*Store)(nil)

// Store is a Redis backed store.Store.
type Store struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithTTL expires records after ttl. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// New connects with the storage/redis builder options, e.g. a URL or a
// registered instance name.
func New(clientOpts []rstorage.Option, opts ...Option) (*Store, error) {
	client, err := rstorage.NewClient(clientOpts...)
	if err != nil {
		return nil, err
	}
	return NewFromClient(client, opts...), nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client goredis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, prefix: defaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(runID string) string {
	return s.prefix + runID
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Save implements store.Store.
func (s *Store) Save(ctx context.Context, r *runner.Result) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", r.RunID, err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(r.RunID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), goredis.Z{
		Score:  float64(r.StartedAt.UnixMilli()),
		Member: r.RunID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save run %s: %w", r.RunID, err)
	}
	return nil
}

// Create implements store.Store. SETNX on the record key reserves the run
// id.
func (s *Store) Create(ctx context.Context, r *runner.Result) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", r.RunID, err)
	}
	ok, err := s.client.SetNX(ctx, s.key(r.RunID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("create run %s: %w", r.RunID, err)
	}
	if !ok {
		return fmt.Errorf("run %s: %w", r.RunID, store.ErrExists)
	}
	err = s.client.ZAdd(ctx, s.indexKey(), goredis.Z{
		Score:  float64(r.StartedAt.UnixMilli()),
		Member: r.RunID,
	}).Err()
	if err != nil {
		return fmt.Errorf("index run %s: %w", r.RunID, err)
	}
	return nil
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, runID string) (*runner.Result, error) {
	data, err := s.client.Get(ctx, s.key(runID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return decode(data)
}

// List implements store.Store. Index entries whose record expired are
// removed on the way.
func (s *Store) List(ctx context.Context, limit int) ([]*runner.Result, error) {
	if limit <= 0 {
		limit = store.DefaultListLimit
	}
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	out := make([]*runner.Result, 0, len(values))
	var stale []any
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		r, err := decode([]byte(str))
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if len(stale) > 0 {
		if err := s.client.ZRem(ctx, s.indexKey(), stale...).Err(); err != nil {
			return out, fmt.Errorf("prune run index: %w", err)
		}
	}
	return out, nil
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, runID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(runID))
	pipe.ZRem(ctx, s.indexKey(), runID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	return nil
}

func decode(data []byte) (*runner.Result, error) {
	var r runner.Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal run: %w", err)
	}
	return &r, nil
}
