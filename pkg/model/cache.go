// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is used when a non-positive size is given.
const DefaultCacheSize = 256

// CachedResolver keeps recently resolved descriptors in an LRU cache in front
// of another resolver. Failed lookups are not cached.
type CachedResolver struct {
	next  Resolver
	cache *lru.Cache[string, Descriptor]
}

// NewCachedResolver wraps next with an LRU cache of the given size.
func NewCachedResolver(next Resolver, size int) (*CachedResolver, error) {
	if next == nil {
		return nil, fmt.Errorf("cached resolver: next resolver is nil")
	}
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, Descriptor](size)
	if err != nil {
		return nil, fmt.Errorf("cached resolver: %w", err)
	}
	return &CachedResolver{next: next, cache: cache}, nil
}

func (r *CachedResolver) Resolve(ctx context.Context, key string) (Descriptor, error) {
	if d, ok := r.cache.Get(key); ok {
		return d, nil
	}
	d, err := r.next.Resolve(ctx, key)
	if err != nil {
		return Descriptor{}, err
	}
	r.cache.Add(key, d)
	return d, nil
}

// Purge drops every cached entry.
func (r *CachedResolver) Purge() {
	r.cache.Purge()
}

// Len reports the number of cached descriptors.
func (r *CachedResolver) Len() int {
	return r.cache.Len()
}
