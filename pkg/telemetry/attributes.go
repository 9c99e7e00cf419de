// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys for graph build telemetry.
const (
	// Build attributes
	AttrBuildID     = "canvasgraph.build.id"
	AttrBuildMode   = "canvasgraph.build.mode"
	AttrBuildStatus = "canvasgraph.build.status"
	AttrBuildStep   = "canvasgraph.build.step"

	// Model attributes
	AttrModelKey  = "canvasgraph.model.key"
	AttrModelBase = "canvasgraph.model.base"

	// Graph attributes
	AttrGraphID         = "canvasgraph.graph.id"
	AttrGraphNodes      = "canvasgraph.graph.nodes"
	AttrGraphEdges      = "canvasgraph.graph.edges"
	AttrGraphNodesAdded = "canvasgraph.graph.nodes_added"

	// Capability attributes
	AttrCapability       = "canvasgraph.capability"
	AttrCapabilityEntity = "canvasgraph.capability.entity"
	AttrCapabilityReason = "canvasgraph.capability.reason"
)

// BuildAttributes returns the attributes shared by a build span and its
// metrics. Empty values are left out.
func BuildAttributes(buildID, mode, base, modelKey string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrBuildID, buildID),
	}
	if mode != "" {
		attrs = append(attrs, attribute.String(AttrBuildMode, mode))
	}
	if base != "" {
		attrs = append(attrs, attribute.String(AttrModelBase, base))
	}
	if modelKey != "" {
		attrs = append(attrs, attribute.String(AttrModelKey, modelKey))
	}
	return attrs
}

// GraphAttributes returns size attributes of a finished graph.
func GraphAttributes(graphID string, nodes, edges int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrGraphID, graphID),
		attribute.Int(AttrGraphNodes, nodes),
		attribute.Int(AttrGraphEdges, edges),
	}
}

// StepAttributes returns attributes for an assembly step span.
func StepAttributes(step string, added int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrBuildStep, step),
		attribute.Int(AttrGraphNodesAdded, added),
	}
}

// SkipAttributes returns attributes for a skipped capability event.
func SkipAttributes(capability, entity, reason string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrCapability, capability),
	}
	if entity != "" {
		attrs = append(attrs, attribute.String(AttrCapabilityEntity, entity))
	}
	if reason != "" {
		attrs = append(attrs, attribute.String(AttrCapabilityReason, TruncateString(reason, 256)))
	}
	return attrs
}

// TruncateString truncates a string to maxLen, adding "..." if truncated.
func TruncateString(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
