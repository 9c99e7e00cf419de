// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"gopkg.in/yaml.v3"

	"github.com/jllopis/canvasgraph/pkg/errors"
)

// MetadataNodeID is the id of the node that carries the metadata record in
// serialized graphs.
const MetadataNodeID = "core_metadata"

type wireGraph struct {
	ID    string                                `json:"id"`
	Nodes *orderedmap.OrderedMap[string, *Node] `json:"nodes"`
	Edges []Edge                                `json:"edges"`
}

type nodeHeader struct {
	ID             string      `json:"id"`
	Type           Kind        `json:"type"`
	IsIntermediate *bool       `json:"is_intermediate,omitempty"`
	UseCache       *bool       `json:"use_cache,omitempty"`
	Board          *BoardField `json:"board,omitempty"`
}

// headerKeys are the node fields written by the header. Params must not
// reuse them.
var headerKeys = []string{"id", "type", "is_intermediate", "use_cache", "board"}

func checkMetadataKeys(md map[string]any) error {
	for _, key := range headerKeys {
		if _, clash := md[key]; clash {
			return errors.Newf(errors.CodeInvalidGraph, "metadata key %q is reserved", key).
				WithContext("key", key)
		}
	}
	return nil
}

// MarshalJSON flattens the node into the execution engine's invocation shape:
// id, type and flags next to the kind-specific fields.
func (n *Node) MarshalJSON() ([]byte, error) {
	if md, ok := n.Params.(CoreMetadata); ok {
		if err := checkMetadataKeys(md); err != nil {
			return nil, err
		}
	}
	header, err := json.Marshal(nodeHeader{
		ID:             n.ID,
		Type:           n.Kind(),
		IsIntermediate: &n.IsIntermediate,
		UseCache:       &n.UseCache,
		Board:          n.Board,
	})
	if err != nil {
		return nil, err
	}
	params, err := json.Marshal(n.Params)
	if err != nil {
		return nil, fmt.Errorf("marshal %s params: %w", n.ID, err)
	}
	if len(params) <= 2 || params[0] != '{' {
		return header, nil
	}
	out := make([]byte, 0, len(header)+len(params))
	out = append(out, header[:len(header)-1]...)
	out = append(out, ',')
	return append(out, params[1:]...), nil
}

// UnmarshalJSON reverses MarshalJSON, picking the payload type from "type".
func (n *Node) UnmarshalJSON(data []byte) error {
	var header nodeHeader
	if err := json.Unmarshal(data, &header); err != nil {
		return err
	}
	p, err := newParams(header.Type)
	if err != nil {
		return err
	}
	if header.Type == KindCoreMetadata {
		fields := make(map[string]any)
		if err := json.Unmarshal(data, &fields); err != nil {
			return err
		}
		for _, key := range headerKeys {
			delete(fields, key)
		}
		p = CoreMetadata(fields)
	} else if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("decode %s params: %w", header.Type, err)
	}
	n.ID = header.ID
	n.Params = p
	n.IsIntermediate = header.IsIntermediate == nil || *header.IsIntermediate
	n.UseCache = header.UseCache == nil || *header.UseCache
	n.Board = header.Board
	return nil
}

// MarshalJSON serializes the graph in execution-engine form. A non-empty
// metadata record becomes a core_metadata node wired into the receiving node.
func (g *Graph) MarshalJSON() ([]byte, error) {
	w := wireGraph{
		ID:    g.id,
		Nodes: orderedmap.New[string, *Node](g.nodes.Len() + 1),
		Edges: append([]Edge{}, g.edges...),
	}
	for pair := g.nodes.Oldest(); pair != nil; pair = pair.Next() {
		w.Nodes.Set(pair.Key, pair.Value)
	}
	if len(g.metadata) > 0 {
		w.Nodes.Set(MetadataNodeID, &Node{
			ID:             MetadataNodeID,
			IsIntermediate: true,
			UseCache:       true,
			Params:         CoreMetadata(maps.Clone(g.metadata)),
		})
		if g.receiver != "" {
			w.Edges = append(w.Edges, Edge{
				Source:      EdgeEndpoint{NodeID: MetadataNodeID, Field: PortMetadata},
				Destination: EdgeEndpoint{NodeID: g.receiver, Field: PortMetadata},
			})
		}
	}
	return json.Marshal(w)
}

func decodeGraph(data []byte) (*Graph, error) {
	w := wireGraph{Nodes: orderedmap.New[string, *Node]()}
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	g := New(w.ID)
	metadataID := ""
	for pair := w.Nodes.Oldest(); pair != nil; pair = pair.Next() {
		n := pair.Value
		if n == nil {
			return nil, fmt.Errorf("node %q is empty", pair.Key)
		}
		if n.ID == "" {
			n.ID = pair.Key
		}
		if md, ok := n.Params.(CoreMetadata); ok {
			metadataID = n.ID
			g.UpsertMetadata(md)
			continue
		}
		if _, err := g.addDecodedNode(n); err != nil {
			return nil, err
		}
	}
	for _, e := range w.Edges {
		if metadataID != "" && e.Source.NodeID == metadataID {
			g.receiver = e.Destination.NodeID
			continue
		}
		if err := g.AddEdge(e.Source.NodeID, e.Source.Field, e.Destination.NodeID, e.Destination.Field); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (g *Graph) addDecodedNode(n *Node) (*Node, error) {
	added, err := g.AddNode(n.ID, n.Params)
	if err != nil {
		return nil, err
	}
	added.IsIntermediate = n.IsIntermediate
	added.UseCache = n.UseCache
	added.Board = n.Board
	return added, nil
}

// ParseJSON loads a graph from JSON and validates it.
func ParseJSON(data []byte) (*Graph, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON payload")
	}
	g, err := decodeGraph(data)
	if err != nil {
		return nil, fmt.Errorf("parse json graph: %w", err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// ParseYAML loads a graph from YAML and validates it. Node order is kept.
func ParseYAML(data []byte) (*Graph, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty YAML payload")
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml graph: %w", err)
	}
	var buf bytes.Buffer
	if err := yamlToJSON(&buf, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml graph: %w", err)
	}
	return ParseJSON(buf.Bytes())
}

// MarshalJSON serializes a graph to JSON. Use pretty for indented output.
func MarshalJSON(g *Graph, pretty bool) ([]byte, error) {
	if g == nil {
		return nil, fmt.Errorf("graph is nil")
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if err := checkMetadataKeys(g.metadata); err != nil {
		return nil, err
	}
	if pretty {
		return json.MarshalIndent(g, "", "  ")
	}
	return json.Marshal(g)
}

// MarshalYAML serializes a graph to block-style YAML in the same shape and
// order as the JSON form.
func MarshalYAML(g *Graph) ([]byte, error) {
	data, err := MarshalJSON(g, false)
	if err != nil {
		return nil, err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	blockStyle(&doc)
	return yaml.Marshal(&doc)
}

// blockStyle drops the flow and quoting styles inherited from JSON; the
// encoder re-quotes strings that would otherwise change type.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}

func yamlToJSON(buf *bytes.Buffer, n *yaml.Node) error {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			buf.WriteString("null")
			return nil
		}
		return yamlToJSON(buf, n.Content[0])
	case yaml.AliasNode:
		return yamlToJSON(buf, n.Alias)
	case yaml.MappingNode:
		buf.WriteByte('{')
		for i := 0; i+1 < len(n.Content); i += 2 {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(n.Content[i].Value)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := yamlToJSON(buf, n.Content[i+1]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, c := range n.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := yamlToJSON(buf, c); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		var v any
		if err := n.Decode(&v); err != nil {
			return err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(data)
	}
	return nil
}
