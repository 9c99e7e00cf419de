// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"encoding/json"
	"strings"
	"testing"

	cgerrors "github.com/jllopis/canvasgraph/pkg/errors"
)

func TestNodeMarshalFlattensParams(t *testing.T) {
	n := &Node{ID: "noise", IsIntermediate: true, UseCache: true, Params: &Noise{Seed: 7, Width: 512, Height: 768}}
	data, err := json.Marshal(n)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["type"] != "noise" || got["id"] != "noise" {
		t.Fatalf("missing header fields: %s", data)
	}
	if got["seed"] != float64(7) || got["height"] != float64(768) {
		t.Fatalf("missing params: %s", data)
	}
}

func TestNodeMarshalEmptyParams(t *testing.T) {
	data, err := json.Marshal(&Node{ID: "c", Params: &Collect{}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !json.Valid(data) {
		t.Fatalf("invalid json: %s", data)
	}
}

func TestGraphJSONRoundTrip(t *testing.T) {
	g := validTinyGraph(t)
	g.UpsertMetadata(map[string]any{"seed": 42, "generation_mode": "txt2img"})
	if err := g.SetMetadataReceivingNode("l2i"); err != nil {
		t.Fatalf("receiver: %v", err)
	}

	payload, err := MarshalJSON(g, true)
	if err != nil {
		t.Fatalf("marshal json: %v", err)
	}
	if !strings.Contains(string(payload), `"core_metadata"`) {
		t.Fatalf("expected metadata node in %s", payload)
	}
	if strings.Index(string(payload), `"loader"`) > strings.Index(string(payload), `"l2i"`) {
		t.Fatalf("node order not preserved")
	}

	parsed, err := ParseJSON(payload)
	if err != nil {
		t.Fatalf("parse json: %v", err)
	}
	if parsed.ID() != "tiny" {
		t.Fatalf("unexpected graph id: %q", parsed.ID())
	}
	if parsed.NodeCount() != g.NodeCount() || len(parsed.Edges()) != len(g.Edges()) {
		t.Fatalf("round-trip changed shape: %d/%d nodes, %d/%d edges",
			parsed.NodeCount(), g.NodeCount(), len(parsed.Edges()), len(g.Edges()))
	}
	if parsed.MetadataReceivingNode() != "l2i" {
		t.Fatalf("receiver lost: %q", parsed.MetadataReceivingNode())
	}
	if parsed.Metadata()["generation_mode"] != "txt2img" {
		t.Fatalf("metadata lost: %v", parsed.Metadata())
	}
	n, _ := parsed.Node("denoise")
	if p := n.Params.(*DenoiseLatents); p.Scheduler != "euler" || p.CFGScale != 7.5 {
		t.Fatalf("params lost: %+v", p)
	}
	first := parsed.Nodes()[0]
	if first.ID != "loader" {
		t.Fatalf("order lost, first node %q", first.ID)
	}
}

func TestMarshalRejectsReservedMetadataKeys(t *testing.T) {
	for _, key := range []string{"id", "type", "is_intermediate", "use_cache", "board"} {
		t.Run(key, func(t *testing.T) {
			g := validTinyGraph(t)
			g.UpsertMetadata(map[string]any{"seed": 1, key: "x"})
			if err := g.SetMetadataReceivingNode("l2i"); err != nil {
				t.Fatalf("receiver: %v", err)
			}
			payload, err := MarshalJSON(g, false)
			if err == nil {
				t.Fatalf("expected error, got %s", payload)
			}
			if code := cgerrors.CodeOf(err); code != cgerrors.CodeInvalidGraph {
				t.Fatalf("code = %s, want %s (%v)", code, cgerrors.CodeInvalidGraph, err)
			}
		})
	}
}

func TestGraphWithMetadataRoundTripsEveryNode(t *testing.T) {
	g := validTinyGraph(t)
	g.UpsertMetadata(map[string]any{"seed": 3})
	payload, err := MarshalJSON(g, false)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	parsed, err := ParseJSON(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	for _, n := range g.Nodes() {
		got, ok := parsed.Node(n.ID)
		if !ok || got.Kind() != n.Kind() {
			t.Fatalf("node %q (%s) did not survive serialization", n.ID, n.Kind())
		}
	}
}

func TestGraphYAMLRoundTrip(t *testing.T) {
	g := validTinyGraph(t)
	payload, err := MarshalYAML(g)
	if err != nil {
		t.Fatalf("marshal yaml: %v", err)
	}
	if strings.Contains(string(payload), "{") {
		t.Fatalf("expected block style yaml:\n%s", payload)
	}
	parsed, err := ParseYAML(payload)
	if err != nil {
		t.Fatalf("parse yaml: %v", err)
	}
	n, ok := parsed.Node("pos")
	if !ok || n.Params.(*Compel).Prompt != "a cat" {
		t.Fatalf("prompt lost")
	}
	neg, _ := parsed.Node("neg")
	if neg.Params.(*Compel).Prompt != "" {
		t.Fatalf("empty prompt changed: %q", neg.Params.(*Compel).Prompt)
	}
}

func TestParseJSONRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"empty", ""},
		{"unknown type", `{"id":"g","nodes":{"a":{"id":"a","type":"nope"}},"edges":[]}`},
		{"unknown edge node", `{"id":"g","nodes":{"a":{"id":"a","type":"img_nsfw"}},"edges":[{"source":{"node_id":"x","field":"image"},"destination":{"node_id":"a","field":"image"}}]}`},
		{"missing required input", `{"id":"g","nodes":{"a":{"id":"a","type":"img_nsfw"}},"edges":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseJSON([]byte(tt.payload)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
