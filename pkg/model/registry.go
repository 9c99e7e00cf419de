// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// MemoryResolver serves descriptors from an in-process registry.
type MemoryResolver struct {
	mu     sync.RWMutex
	models map[string]Descriptor
}

// NewMemoryResolver returns a resolver holding the given descriptors.
func NewMemoryResolver(models ...Descriptor) *MemoryResolver {
	r := &MemoryResolver{models: make(map[string]Descriptor, len(models))}
	for _, d := range models {
		r.models[d.Key] = d
	}
	return r
}

// Register adds or replaces a descriptor.
func (r *MemoryResolver) Register(d Descriptor) error {
	if err := validateDescriptor(d); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[d.Key] = d
	return nil
}

// Resolve returns the descriptor registered under key.
func (r *MemoryResolver) Resolve(ctx context.Context, key string) (Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return Descriptor{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.models[key]
	if !ok {
		return Descriptor{}, NotFound(key)
	}
	return d, nil
}

// List returns all descriptors sorted by key.
func (r *MemoryResolver) List(_ context.Context) ([]Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.models))
	for _, d := range r.models {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b Descriptor) int {
		return cmp.Compare(a.Key, b.Key)
	})
	return out, nil
}

type registryFile struct {
	Models []Descriptor `yaml:"models"`
}

// ParseRegistry decodes a YAML model registry:
//
//	models:
//	  - key: sd15
//	    name: Stable Diffusion 1.5
//	    base: sd-1
//	    type: main
func ParseRegistry(data []byte) (*MemoryResolver, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse model registry: %w", err)
	}
	r := NewMemoryResolver()
	for i, d := range file.Models {
		if err := r.Register(d); err != nil {
			return nil, fmt.Errorf("model registry entry %d: %w", i, err)
		}
	}
	return r, nil
}

// LoadRegistry reads a YAML model registry from disk.
func LoadRegistry(path string) (*MemoryResolver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model registry: %w", err)
	}
	return ParseRegistry(data)
}
