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
	"bytes"
	"context"
	"io"

	cos "github.com/tencentyun/cos-go-sdk-v5"
)

// objectStore is the part of a COS bucket the artifact service uses to
// upload, fetch and enumerate the versioned objects of a run.
type objectStore interface {
	// Keys lists every object key under prefix, following pagination.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	// Download returns the object body and its content type.
	Download(ctx context.Context, key string) ([]byte, string, error)
	Remove(ctx context.Context, key string) error
}

// bucket adapts a cos.Client to objectStore.
type bucket struct {
	c *cos.Client
}

func newBucket(c *cos.Client) objectStore {
	return &bucket{c: c}
}

func (b *bucket) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	marker := ""
	for {
		result, _, err := b.c.Bucket.Get(ctx, &cos.BucketGetOptions{Prefix: prefix, Marker: marker})
		if err != nil {
			return keys, err
		}
		for _, obj := range result.Contents {
			keys = append(keys, obj.Key)
		}
		if !result.IsTruncated || result.NextMarker == "" {
			return keys, nil
		}
		marker = result.NextMarker
	}
}

func (b *bucket) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := b.c.Object.Put(ctx, key, bytes.NewReader(data), &cos.ObjectPutOptions{
		ObjectPutHeaderOptions: &cos.ObjectPutHeaderOptions{ContentType: contentType},
	})
	return err
}

func (b *bucket) Download(ctx context.Context, key string) ([]byte, string, error) {
	resp, err := b.c.Object.Get(ctx, key, nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (b *bucket) Remove(ctx context.Context, key string) error {
	_, err := b.c.Object.Delete(ctx, key)
	return err
}
