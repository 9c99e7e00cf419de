// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"strconv"

	"github.com/google/uuid"
)

// IDAllocator hands out node ids that are unique for one build session.
type IDAllocator interface {
	Allocate(prefix string) string
}

// SequentialAllocator numbers ids per prefix: noise_1, noise_2, ...
// Suffixes never contain "_", so ids from different prefixes cannot collide.
type SequentialAllocator struct {
	next map[string]int
}

// NewSequentialAllocator returns an allocator starting at 1 for every prefix.
func NewSequentialAllocator() *SequentialAllocator {
	return &SequentialAllocator{next: make(map[string]int)}
}

func (a *SequentialAllocator) Allocate(prefix string) string {
	a.next[prefix]++
	return prefix + "_" + strconv.Itoa(a.next[prefix])
}

// UUIDAllocator suffixes ids with a random UUID.
type UUIDAllocator struct{}

func (UUIDAllocator) Allocate(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

// NewAllocator returns the allocator for a strategy name: "uuid" or
// "sequential" (the default).
func NewAllocator(strategy string) IDAllocator {
	if strategy == "uuid" {
		return UUIDAllocator{}
	}
	return NewSequentialAllocator()
}
