// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"strings"

	"github.com/jllopis/canvasgraph/pkg/errors"
)

// Validate ensures the graph is well-formed for submission: every edge
// references existing nodes, no input port has two writers, there are no
// cycles, required inputs are connected and every collector has at least one
// item and exactly one consumer.
func (g *Graph) Validate() error {
	if g == nil {
		return errors.Newf(errors.CodeInvalidGraph, "graph is nil")
	}
	if g.nodes.Len() == 0 {
		return errors.Newf(errors.CodeInvalidGraph, "graph %q has no nodes", g.id)
	}

	var problems []string
	writers := make(map[EdgeEndpoint]int)
	for _, e := range g.edges {
		if !g.HasNode(e.Source.NodeID) {
			problems = append(problems, fmt.Sprintf("edge source %q not found", e.Source.NodeID))
		}
		dn, ok := g.nodes.Get(e.Destination.NodeID)
		if !ok {
			problems = append(problems, fmt.Sprintf("edge destination %q not found", e.Destination.NodeID))
			continue
		}
		if dn.Kind() == KindCollect && e.Destination.Field == PortItem {
			continue
		}
		writers[e.Destination]++
		if writers[e.Destination] == 2 {
			problems = append(problems, fmt.Sprintf("input %s.%s has more than one writer",
				e.Destination.NodeID, e.Destination.Field))
		}
	}

	for pair := g.nodes.Oldest(); pair != nil; pair = pair.Next() {
		n := pair.Value
		for _, port := range requiredInputs(n.Kind()) {
			if len(g.EdgesTo(n.ID, port)) == 0 {
				problems = append(problems, fmt.Sprintf("node %q (%s) input %q is not connected", n.ID, n.Kind(), port))
			}
		}
		if n.Kind() == KindCollect {
			if len(g.EdgesTo(n.ID, PortItem)) == 0 {
				problems = append(problems, fmt.Sprintf("collector %q has no items", n.ID))
			}
			if out := len(g.EdgesFrom(n.ID)); out != 1 {
				problems = append(problems, fmt.Sprintf("collector %q has %d consumers, want 1", n.ID, out))
			}
		}
	}

	if cycle := g.findCycle(); cycle != "" {
		problems = append(problems, fmt.Sprintf("cycle through node %q", cycle))
	}
	if g.receiver != "" && !g.HasNode(g.receiver) {
		problems = append(problems, fmt.Sprintf("metadata receiver %q not found", g.receiver))
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.Newf(errors.CodeInvalidGraph, "graph %q is invalid: %s", g.id, strings.Join(problems, "; ")).
		WithContext("problems", problems)
}

// findCycle runs Kahn's algorithm and returns a node left on a cycle, or "".
func (g *Graph) findCycle() string {
	indegree := make(map[string]int, g.nodes.Len())
	adjacency := make(map[string][]string, g.nodes.Len())
	for pair := g.nodes.Oldest(); pair != nil; pair = pair.Next() {
		indegree[pair.Key] = 0
	}
	for _, e := range g.edges {
		if _, ok := indegree[e.Source.NodeID]; !ok {
			continue
		}
		if _, ok := indegree[e.Destination.NodeID]; !ok {
			continue
		}
		adjacency[e.Source.NodeID] = append(adjacency[e.Source.NodeID], e.Destination.NodeID)
		indegree[e.Destination.NodeID]++
	}

	var queue []string
	for pair := g.nodes.Oldest(); pair != nil; pair = pair.Next() {
		if indegree[pair.Key] == 0 {
			queue = append(queue, pair.Key)
		}
	}
	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range adjacency[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if visited == g.nodes.Len() {
		return ""
	}
	for pair := g.nodes.Oldest(); pair != nil; pair = pair.Next() {
		if indegree[pair.Key] > 0 {
			return pair.Key
		}
	}
	return ""
}

// TopologicalOrder returns node ids so that every edge points forward.
// Ties keep insertion order.
func (g *Graph) TopologicalOrder() ([]string, error) {
	if cycle := g.findCycle(); cycle != "" {
		return nil, errors.Newf(errors.CodeInvalidGraph, "cycle through node %q", cycle)
	}
	placed := make(map[string]bool, g.nodes.Len())
	order := make([]string, 0, g.nodes.Len())
	for len(order) < g.nodes.Len() {
		for pair := g.nodes.Oldest(); pair != nil; pair = pair.Next() {
			if placed[pair.Key] {
				continue
			}
			ready := true
			for _, e := range g.EdgesTo(pair.Key) {
				if g.HasNode(e.Source.NodeID) && !placed[e.Source.NodeID] {
					ready = false
					break
				}
			}
			if ready {
				placed[pair.Key] = true
				order = append(order, pair.Key)
			}
		}
	}
	return order, nil
}
