// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package model describes model identifiers, their base families and the
// capabilities the graph builder checks before wiring optional subsystems.
package model

import (
	"context"
	"fmt"

	"github.com/jllopis/canvasgraph/pkg/errors"
	"github.com/jllopis/canvasgraph/pkg/graph"
)

// BaseModel is the architecture family a model belongs to.
type BaseModel string

const (
	BaseSD1         BaseModel = "sd-1"
	BaseSD2         BaseModel = "sd-2"
	BaseSDXL        BaseModel = "sdxl"
	BaseSDXLRefiner BaseModel = "sdxl-refiner"
	BaseSD3         BaseModel = "sd-3"
	BaseFlux        BaseModel = "flux"
	BaseAny         BaseModel = "any"
)

// Type is the role of a model in a pipeline.
type Type string

const (
	TypeMain       Type = "main"
	TypeVAE        Type = "vae"
	TypeLoRA       Type = "lora"
	TypeControlNet Type = "controlnet"
	TypeT2IAdapter Type = "t2i_adapter"
	TypeIPAdapter  Type = "ip_adapter"
	TypeCLIPVision Type = "clip_vision"
	TypeEmbedding  Type = "embedding"
)

// Identifier references a model by key plus the descriptive fields the
// execution engine echoes back.
type Identifier struct {
	Key  string    `json:"key" yaml:"key"`
	Hash string    `json:"hash,omitempty" yaml:"hash,omitempty"`
	Name string    `json:"name,omitempty" yaml:"name,omitempty"`
	Base BaseModel `json:"base" yaml:"base"`
	Type Type      `json:"type" yaml:"type"`
}

// Field converts the identifier into the node-level model field.
func (id Identifier) Field() graph.ModelField {
	return graph.ModelField{
		Key:  id.Key,
		Hash: id.Hash,
		Name: id.Name,
		Base: string(id.Base),
		Type: string(id.Type),
	}
}

// IsZero reports whether no model is referenced.
func (id Identifier) IsZero() bool {
	return id.Key == ""
}

func (id Identifier) String() string {
	if id.Name != "" {
		return fmt.Sprintf("%s (%s, %s)", id.Name, id.Base, id.Key)
	}
	return fmt.Sprintf("%s (%s)", id.Key, id.Base)
}

// Capabilities lists the adapter variants a base family can host.
type Capabilities struct {
	ControlNet bool `json:"controlnet" yaml:"controlnet"`
	T2IAdapter bool `json:"t2i_adapter" yaml:"t2i_adapter"`
	IPAdapter  bool `json:"ip_adapter" yaml:"ip_adapter"`
}

// Descriptor is what a Resolver returns for a model key.
type Descriptor struct {
	Identifier   `yaml:",inline"`
	Description  string        `json:"description,omitempty" yaml:"description,omitempty"`
	Capabilities *Capabilities `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
}

// Supports returns the effective capabilities: the descriptor's own flags
// when present, otherwise the defaults for its base family.
func (d Descriptor) Supports() Capabilities {
	if d.Capabilities != nil {
		return *d.Capabilities
	}
	return DefaultCapabilities(d.Base)
}

var baseCapabilities = map[BaseModel]Capabilities{
	BaseSD1:  {ControlNet: true, T2IAdapter: true, IPAdapter: true},
	BaseSD2:  {ControlNet: true},
	BaseSDXL: {ControlNet: true, T2IAdapter: true, IPAdapter: true},
}

// DefaultCapabilities returns the adapter support of a base family. Unknown
// families support nothing.
func DefaultCapabilities(base BaseModel) Capabilities {
	return baseCapabilities[base]
}

// Resolver maps a model key to its descriptor. Implementations return an
// error with code MODEL_NOT_FOUND for unknown keys.
type Resolver interface {
	Resolve(ctx context.Context, key string) (Descriptor, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, key string) (Descriptor, error)

func (f ResolverFunc) Resolve(ctx context.Context, key string) (Descriptor, error) {
	return f(ctx, key)
}

// NotFound builds the error resolvers return for unknown keys.
func NotFound(key string) *errors.Error {
	return errors.Newf(errors.CodeModelNotFound, "model %q not found", key).
		WithContext("model", key)
}

func validateDescriptor(d Descriptor) error {
	if d.Key == "" {
		return errors.Newf(errors.CodeConfiguration, "model descriptor without key")
	}
	if d.Base == "" {
		return errors.Newf(errors.CodeConfiguration, "model %q has no base", d.Key)
	}
	if d.Type == "" {
		return errors.Newf(errors.CodeConfiguration, "model %q has no type", d.Key)
	}
	return nil
}
