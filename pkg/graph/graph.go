// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"maps"
	"slices"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/jllopis/canvasgraph/pkg/errors"
)

// Graph is an ordered set of typed nodes and the edges between their ports.
//
// A Graph is owned by the build that creates it and is not safe for
// concurrent mutation.
type Graph struct {
	id       string
	nodes    *orderedmap.OrderedMap[string, *Node]
	edges    []Edge
	metadata map[string]any
	receiver string
	ids      IDAllocator
}

// Node is a single invocation in the graph.
type Node struct {
	ID             string
	IsIntermediate bool
	UseCache       bool
	Board          *BoardField
	Params         Params
}

// Kind returns the node's invocation type.
func (n *Node) Kind() Kind {
	return n.Params.Kind()
}

// NodeUpdate is a partial replacement for a node. Nil fields are left as is.
type NodeUpdate struct {
	Params         Params
	IsIntermediate *bool
	UseCache       *bool
	Board          *BoardField
}

// EdgeEndpoint is one side of an edge.
type EdgeEndpoint struct {
	NodeID string `json:"node_id" yaml:"node_id"`
	Field  string `json:"field" yaml:"field"`
}

// Edge connects an output port to an input port.
type Edge struct {
	Source      EdgeEndpoint `json:"source" yaml:"source"`
	Destination EdgeEndpoint `json:"destination" yaml:"destination"`
}

// Option configures a Graph.
type Option func(*Graph)

// WithIDAllocator sets the allocator used for nodes added without an id.
func WithIDAllocator(a IDAllocator) Option {
	return func(g *Graph) {
		if a != nil {
			g.ids = a
		}
	}
}

// New creates an empty graph.
func New(id string, opts ...Option) *Graph {
	g := &Graph{
		id:       id,
		nodes:    orderedmap.New[string, *Node](),
		metadata: make(map[string]any),
		ids:      NewSequentialAllocator(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ID returns the graph id.
func (g *Graph) ID() string {
	return g.id
}

// AddNode inserts a node. An empty id is replaced by one allocated with the
// node kind as prefix. New nodes are intermediate and cacheable.
func (g *Graph) AddNode(id string, p Params) (*Node, error) {
	if p == nil {
		return nil, errors.Newf(errors.CodeInternal, "node %q has no params", id)
	}
	if id == "" {
		id = g.AllocateID(string(p.Kind()))
	}
	if id == MetadataNodeID {
		return nil, reservedID(id)
	}
	if _, ok := g.nodes.Get(id); ok {
		return nil, errors.Newf(errors.CodeDuplicateID, "node %q already exists", id).
			WithContext("node", id)
	}
	n := &Node{ID: id, IsIntermediate: true, UseCache: true, Params: p}
	g.nodes.Set(id, n)
	return n, nil
}

// AllocateID returns a fresh id with the given prefix that no node uses yet.
func (g *Graph) AllocateID(prefix string) string {
	id := g.ids.Allocate(prefix)
	for g.HasNode(id) {
		id = g.ids.Allocate(prefix)
	}
	return id
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*Node, bool) {
	return g.nodes.Get(id)
}

// HasNode reports whether id is in the graph.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes.Get(id)
	return ok
}

// Nodes returns the nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, g.nodes.Len())
	for pair := g.nodes.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// NodesOfKind returns the nodes of the given kind in insertion order.
func (g *Graph) NodesOfKind(kind Kind) []*Node {
	var out []*Node
	for pair := g.nodes.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.Kind() == kind {
			out = append(out, pair.Value)
		}
	}
	return out
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	return g.nodes.Len()
}

// Edges returns a copy of the edges in insertion order.
func (g *Graph) Edges() []Edge {
	return slices.Clone(g.edges)
}

// UpdateNode replaces parts of a node in place. The id and position are kept.
func (g *Graph) UpdateNode(id string, u NodeUpdate) error {
	n, ok := g.nodes.Get(id)
	if !ok {
		return unknownNode(id)
	}
	if u.Params != nil {
		if u.Params.Kind() != n.Kind() {
			return errors.Newf(errors.CodeInvalidGraph, "node %q is %s, cannot take %s params", id, n.Kind(), u.Params.Kind())
		}
		n.Params = u.Params
	}
	if u.IsIntermediate != nil {
		n.IsIntermediate = *u.IsIntermediate
	}
	if u.UseCache != nil {
		n.UseCache = *u.UseCache
	}
	if u.Board != nil {
		b := *u.Board
		n.Board = &b
	}
	return nil
}

// RenameNode changes a node id, keeping its position and rewriting its edges
// and the metadata receiver.
func (g *Graph) RenameNode(id, newID string) error {
	if id == newID {
		if !g.HasNode(id) {
			return unknownNode(id)
		}
		return nil
	}
	n, ok := g.nodes.Get(id)
	if !ok {
		return unknownNode(id)
	}
	if newID == MetadataNodeID {
		return reservedID(newID)
	}
	if g.HasNode(newID) {
		return errors.Newf(errors.CodeDuplicateID, "node %q already exists", newID).
			WithContext("node", newID)
	}
	n.ID = newID
	g.nodes.Set(newID, n)
	if err := g.nodes.MoveBefore(newID, id); err != nil {
		return errors.New(errors.CodeInternal, "reorder renamed node", err)
	}
	g.nodes.Delete(id)
	for i := range g.edges {
		if g.edges[i].Source.NodeID == id {
			g.edges[i].Source.NodeID = newID
		}
		if g.edges[i].Destination.NodeID == id {
			g.edges[i].Destination.NodeID = newID
		}
	}
	if g.receiver == id {
		g.receiver = newID
	}
	return nil
}

// DeleteNode removes a node and every edge touching it. Deleting an absent
// node is a no-op.
func (g *Graph) DeleteNode(id string) {
	if _, ok := g.nodes.Delete(id); !ok {
		return
	}
	g.edges = slices.DeleteFunc(g.edges, func(e Edge) bool {
		return e.Source.NodeID == id || e.Destination.NodeID == id
	})
	if g.receiver == id {
		g.receiver = ""
	}
}

// AddEdge connects src.srcPort to dst.dstPort. Every input port takes at most
// one edge, except the item port of a collector.
func (g *Graph) AddEdge(src, srcPort, dst, dstPort string) error {
	if !g.HasNode(src) {
		return unknownNode(src)
	}
	dn, ok := g.nodes.Get(dst)
	if !ok {
		return unknownNode(dst)
	}
	if !(dn.Kind() == KindCollect && dstPort == PortItem) {
		for _, e := range g.edges {
			if e.Destination.NodeID == dst && e.Destination.Field == dstPort {
				return errors.Newf(errors.CodePortConflict, "input %s.%s already connected from %s.%s",
					dst, dstPort, e.Source.NodeID, e.Source.Field).
					WithContext("node", dst).
					WithContext("port", dstPort)
			}
		}
	}
	g.edges = append(g.edges, Edge{
		Source:      EdgeEndpoint{NodeID: src, Field: srcPort},
		Destination: EdgeEndpoint{NodeID: dst, Field: dstPort},
	})
	return nil
}

// EdgesTo returns the edges into id, limited to ports when any are given.
func (g *Graph) EdgesTo(id string, ports ...string) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.Destination.NodeID == id && (len(ports) == 0 || slices.Contains(ports, e.Destination.Field)) {
			out = append(out, e)
		}
	}
	return out
}

// EdgesFrom returns the edges out of id, limited to ports when any are given.
func (g *Graph) EdgesFrom(id string, ports ...string) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.Source.NodeID == id && (len(ports) == 0 || slices.Contains(ports, e.Source.Field)) {
			out = append(out, e)
		}
	}
	return out
}

// DeleteEdgesTo removes the edges into id, limited to ports when any are given.
func (g *Graph) DeleteEdgesTo(id string, ports ...string) {
	g.edges = slices.DeleteFunc(g.edges, func(e Edge) bool {
		return e.Destination.NodeID == id && (len(ports) == 0 || slices.Contains(ports, e.Destination.Field))
	})
}

// DeleteEdgesFrom removes the edges out of id, limited to ports when any are given.
func (g *Graph) DeleteEdgesFrom(id string, ports ...string) {
	g.edges = slices.DeleteFunc(g.edges, func(e Edge) bool {
		return e.Source.NodeID == id && (len(ports) == 0 || slices.Contains(ports, e.Source.Field))
	})
}

// UpsertMetadata merges fields into the metadata record. Later writes win.
func (g *Graph) UpsertMetadata(fields map[string]any) {
	maps.Copy(g.metadata, fields)
}

// Metadata returns a copy of the metadata record.
func (g *Graph) Metadata() map[string]any {
	return maps.Clone(g.metadata)
}

// SetMetadataReceivingNode records the node that receives the metadata at
// execution time. The last call wins.
func (g *Graph) SetMetadataReceivingNode(id string) error {
	if !g.HasNode(id) {
		return unknownNode(id)
	}
	g.receiver = id
	return nil
}

// MetadataReceivingNode returns the metadata sink, or "" when unset.
func (g *Graph) MetadataReceivingNode() string {
	return g.receiver
}

// reservedID rejects the id the serializer uses for the metadata node.
func reservedID(id string) *errors.Error {
	return errors.Newf(errors.CodeDuplicateID, "node id %q is reserved for graph metadata", id).
		WithContext("node", id)
}

func unknownNode(id string) *errors.Error {
	return errors.Newf(errors.CodeUnknownNode, "node %q not found", id).WithContext("node", id)
}
