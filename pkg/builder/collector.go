// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package builder

import (
	"github.com/jllopis/canvasgraph/pkg/errors"
	"github.com/jllopis/canvasgraph/pkg/graph"
)

// CollectorState is the lifecycle stage of a speculative collector.
type CollectorState int

const (
	// Provisional collectors accept items and have no outgoing edge yet.
	Provisional CollectorState = iota
	// Committed collectors are wired into their consumer port.
	Committed
	// Deleted collectors were empty and have been removed from the graph.
	Deleted
)

func (s CollectorState) String() string {
	switch s {
	case Provisional:
		return "provisional"
	case Committed:
		return "committed"
	case Deleted:
		return "deleted"
	}
	return "unknown"
}

// Collector is a fan-in node created before its contributors run. Resolve
// either connects it to its consumer or deletes it, exactly once.
type Collector struct {
	node   *graph.Node
	target *graph.Node
	port   string
	items  int
	state  CollectorState
}

// newCollector adds a provisional collect node whose aggregate output is
// meant for target.port.
func newCollector(g *graph.Graph, prefix string, target *graph.Node, port string) (*Collector, error) {
	n, err := g.AddNode(g.AllocateID(prefix), &graph.Collect{})
	if err != nil {
		return nil, err
	}
	return &Collector{node: n, target: target, port: port}, nil
}

// ID returns the collector node id.
func (c *Collector) ID() string { return c.node.ID }

// State returns the lifecycle stage.
func (c *Collector) State() CollectorState { return c.state }

// Items returns the number of contributions received.
func (c *Collector) Items() int { return c.items }

// Add connects src.srcPort as one more item.
func (c *Collector) Add(g *graph.Graph, src *graph.Node, srcPort string) error {
	if c.state != Provisional {
		return errors.Newf(errors.CodeInvalidGraph, "collector %q is %s", c.node.ID, c.state)
	}
	if err := g.AddEdge(src.ID, srcPort, c.node.ID, graph.PortItem); err != nil {
		return err
	}
	c.items++
	return nil
}

// Resolve commits a collector that received items and deletes an empty one.
func (c *Collector) Resolve(g *graph.Graph) error {
	if c.state != Provisional {
		return errors.Newf(errors.CodeInvalidGraph, "collector %q already %s", c.node.ID, c.state)
	}
	if c.items == 0 {
		g.DeleteNode(c.node.ID)
		c.state = Deleted
		return nil
	}
	if err := g.AddEdge(c.node.ID, graph.PortCollection, c.target.ID, c.port); err != nil {
		return err
	}
	c.state = Committed
	return nil
}

// collect adds src as an item of c within a wiring sequence.
func (w *wiring) collect(c *Collector, src *graph.Node, srcPort string) {
	if w.err != nil {
		return
	}
	w.err = c.Add(w.g, src, srcPort)
}
