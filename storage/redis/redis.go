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

// Package redis builds go-redis clients from URLs and keeps named
// connection settings that the rest of the module refers to by name.
package redis

import (
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// ErrEmptyURL is returned when neither a URL nor a known instance is given.
var ErrEmptyURL = errors.New("redis: url is empty")

// Builder creates a client from options.
type Builder func(opts ...Option) (redis.UniversalClient, error)

var (
	mu       sync.RWMutex
	builder  Builder = DefaultBuilder
	registry         = map[string][]Option{}
)

// SetBuilder replaces the client builder. Tests use it to hand out clients
// bound to an in-process server.
func SetBuilder(b Builder) {
	mu.Lock()
	defer mu.Unlock()
	builder = b
}

// NewClient builds a client with the current builder.
func NewClient(opts ...Option) (redis.UniversalClient, error) {
	mu.RLock()
	b := builder
	mu.RUnlock()
	return b(opts...)
}

// Options configure a client.
type Options struct {
	URL      string
	PoolSize int
}

// Option sets one client setting.
type Option func(*Options)

// WithURL sets the server URL,
// redis://<user>:<password>@<host>:<port>/<db>?<options>.
func WithURL(url string) Option {
	return func(o *Options) {
		o.URL = url
	}
}

// WithPoolSize overrides the connection pool size.
func WithPoolSize(n int) Option {
	return func(o *Options) {
		o.PoolSize = n
	}
}

// WithInstance applies the options registered under name.
func WithInstance(name string) Option {
	return func(o *Options) {
		opts, _ := Instance(name)
		for _, opt := range opts {
			opt(o)
		}
	}
}

// DefaultBuilder parses the URL into universal options.
func DefaultBuilder(opts ...Option) (redis.UniversalClient, error) {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.URL == "" {
		return nil, ErrEmptyURL
	}
	parsed, err := redis.ParseURL(o.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url %s: %w", o.URL, err)
	}
	uo := &redis.UniversalOptions{
		Addrs:           []string{parsed.Addr},
		DB:              parsed.DB,
		Username:        parsed.Username,
		Password:        parsed.Password,
		Protocol:        parsed.Protocol,
		ClientName:      parsed.ClientName,
		TLSConfig:       parsed.TLSConfig,
		MaxRetries:      parsed.MaxRetries,
		MinRetryBackoff: parsed.MinRetryBackoff,
		MaxRetryBackoff: parsed.MaxRetryBackoff,
		DialTimeout:     parsed.DialTimeout,
		ReadTimeout:     parsed.ReadTimeout,
		WriteTimeout:    parsed.WriteTimeout,
		PoolSize:        parsed.PoolSize,
		PoolTimeout:     parsed.PoolTimeout,
		MinIdleConns:    parsed.MinIdleConns,
		MaxIdleConns:    parsed.MaxIdleConns,
		ConnMaxIdleTime: parsed.ConnMaxIdleTime,
		ConnMaxLifetime: parsed.ConnMaxLifetime,
	}
	if o.PoolSize > 0 {
		uo.PoolSize = o.PoolSize
	}
	return redis.NewUniversalClient(uo), nil
}

// RegisterInstance stores options under name. Registering the same name
// again appends to its options.
func RegisterInstance(name string, opts ...Option) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = append(registry[name], opts...)
}

// Instance returns the options registered under name.
func Instance(name string) ([]Option, bool) {
	mu.RLock()
	defer mu.RUnlock()
	opts, ok := registry[name]
	return opts, ok
}
