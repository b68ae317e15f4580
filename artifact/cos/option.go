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

package cos

import (
	"net/http"
	"net/url"
	"os"
	"time"

	cos "github.com/tencentyun/cos-go-sdk-v5"
)

// Environment variables holding the default credentials.
const (
	EnvSecretID  = "COS_SECRETID"
	EnvSecretKey = "COS_SECRETKEY"
)

const defaultTimeout = 60 * time.Second

// Option configures the COS service.
type Option func(*options)

type options struct {
	store      objectStore
	httpClient *http.Client
	timeout    time.Duration
	secretID   string
	secretKey  string
}

// WithClient uses a preconfigured COS client. The bucket URL is ignored.
func WithClient(c *cos.Client) Option {
	return func(o *options) {
		o.store = newBucket(c)
	}
}

// WithHTTPClient sets the HTTP client used to reach COS.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.timeout = timeout
	}
}

// WithSecretID sets the secret id. It defaults to $COS_SECRETID.
func WithSecretID(id string) Option {
	return func(o *options) {
		o.secretID = id
	}
}

// WithSecretKey sets the secret key. It defaults to $COS_SECRETKEY.
func WithSecretKey(key string) Option {
	return func(o *options) {
		o.secretKey = key
	}
}

func buildStore(bucketURL string, opts ...Option) (objectStore, error) {
	o := &options{
		timeout:   defaultTimeout,
		secretID:  os.Getenv(EnvSecretID),
		secretKey: os.Getenv(EnvSecretKey),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.store != nil {
		return o.store, nil
	}

	u, err := url.Parse(bucketURL)
	if err != nil {
		return nil, err
	}
	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &cos.AuthorizationTransport{
				SecretID:  o.secretID,
				SecretKey: o.secretKey,
			},
		}
	}
	if o.timeout > 0 {
		httpClient.Timeout = o.timeout
	}
	return newBucket(cos.NewClient(&cos.BaseURL{BucketURL: u}, httpClient)), nil
}
