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

// Package inmemory is a process local run store.
package inmemory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"trpc.group/trpc-go/trpc-agent-workflow/runner"
	"trpc.group/trpc-go/trpc-agent-workflow/runner/store"
)

var _ store.Store = (*Store)(nil)

// Store keeps records in a map. Records are stored encoded so callers never
// share memory with the store.
type Store struct {
	mu      sync.RWMutex
	records map[string][]byte
	order   map[string]int64
	maxRuns int
}

// Option configures a Store.
type Option func(*Store)

// WithMaxRuns evicts the oldest records beyond n.
func WithMaxRuns(n int) Option {
	return func(s *Store) {
		s.maxRuns = n
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		records: make(map[string][]byte),
		order:   make(map[string]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save implements store.Store.
func (s *Store) Save(_ context.Context, r *runner.Result) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", r.RunID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(r, data)
	return nil
}

// Create implements store.Store.
func (s *Store) Create(_ context.Context, r *runner.Result) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", r.RunID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[r.RunID]; ok {
		return fmt.Errorf("run %s: %w", r.RunID, store.ErrExists)
	}
	s.put(r, data)
	return nil
}

// put stores an encoded record and evicts beyond maxRuns. s.mu must be
// held.
func (s *Store) put(r *runner.Result, data []byte) {
	s.records[r.RunID] = data
	s.order[r.RunID] = r.StartedAt.UnixNano()
	if s.maxRuns > 0 && len(s.records) > s.maxRuns {
		ids := s.sortedIDs()
		for _, id := range ids[s.maxRuns:] {
			delete(s.records, id)
			delete(s.order, id)
		}
	}
}

// Get implements store.Store.
func (s *Store) Get(_ context.Context, runID string) (*runner.Result, error) {
	s.mu.RLock()
	data, ok := s.records[runID]
	s.mu.RUnlock()
	if !ok {
		return nil, store.ErrNotFound
	}
	return decode(data)
}

// List implements store.Store.
func (s *Store) List(_ context.Context, limit int) ([]*runner.Result, error) {
	if limit <= 0 {
		limit = store.DefaultListLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.sortedIDs()
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]*runner.Result, 0, len(ids))
	for _, id := range ids {
		r, err := decode(s.records[id])
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Delete implements store.Store.
func (s *Store) Delete(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, runID)
	delete(s.order, runID)
	return nil
}

// sortedIDs orders run ids newest first. s.mu must be held.
func (s *Store) sortedIDs() []string {
	ids := make([]string, 0, len(s.order))
	for id := range s.order {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if s.order[ids[i]] != s.order[ids[j]] {
			return s.order[ids[i]] > s.order[ids[j]]
		}
		return ids[i] < ids[j]
	})
	return ids
}

func decode(data []byte) (*runner.Result, error) {
	var r runner.Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal run: %w", err)
	}
	return &r, nil
}
