// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jllopis/canvasgraph/pkg/builder"
	"github.com/jllopis/canvasgraph/pkg/graph"
)

type graphResult struct {
	Format  string `json:"format"`
	Content string `json:"content"`
	GraphID string `json:"graph_id,omitempty"`
	Nodes   int    `json:"nodes"`
	Edges   int    `json:"edges"`
}

func runGraph(global globalFlags, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("graph", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	output := fs.String("output", "mermaid", "Output format: mermaid, dot, json")
	graphPath := fs.String("path", "", "Path to graph YAML/JSON file")
	if err := fs.Parse(args); err != nil {
		return NewInvalidArgumentError("graph", err.Error())
	}

	path := *graphPath
	if path == "" && fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	if path == "" {
		return NewInvalidArgumentError("--path", "no graph path specified; use --path <file>")
	}

	g, err := loadGraph(path)
	if err != nil {
		return err
	}

	result := graphResult{
		Format:  *output,
		GraphID: g.ID(),
		Nodes:   g.NodeCount(),
		Edges:   len(g.Edges()),
	}

	switch *output {
	case "mermaid":
		result.Content = toMermaid(g)
	case "dot":
		result.Content = toDot(g)
	case "json":
		jsonBytes, err := graph.MarshalJSON(g, true)
		if err != nil {
			return err
		}
		result.Content = string(jsonBytes)
	default:
		return NewInvalidArgumentError("--output", fmt.Sprintf("unknown output format %q; use mermaid, dot, or json", *output))
	}

	if global.JSON {
		return printJSON(stdout, result)
	}

	_, err = fmt.Fprintln(stdout, result.Content)
	return err
}

func loadGraph(path string) (*graph.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return graph.ParseYAML(data)
	case ".json":
		return graph.ParseJSON(data)
	default:
		// Try JSON first, then YAML
		g, err := graph.ParseJSON(data)
		if err == nil {
			return g, nil
		}
		return graph.ParseYAML(data)
	}
}

func mermaidID(id string) string {
	return strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(id)
}

func toMermaid(g *graph.Graph) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, node := range g.Nodes() {
		sb.WriteString(fmt.Sprintf("    %s[%s: %s]\n", mermaidID(node.ID), node.ID, node.Kind()))
	}

	for _, edge := range g.Edges() {
		sb.WriteString(fmt.Sprintf("    %s -->|%s→%s| %s\n",
			mermaidID(edge.Source.NodeID), edge.Source.Field, edge.Destination.Field, mermaidID(edge.Destination.NodeID)))
	}

	if g.HasNode(builder.CanvasOutputID) {
		sb.WriteString(fmt.Sprintf("    style %s fill:#90EE90\n", builder.CanvasOutputID))
	}

	return sb.String()
}

func toDot(g *graph.Graph) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("digraph %q {\n", g.ID()))
	sb.WriteString("    rankdir=LR;\n")
	sb.WriteString("    node [shape=box, style=rounded];\n")

	for _, node := range g.Nodes() {
		attrs := fmt.Sprintf("label=\"%s\\n(%s)\"", node.ID, node.Kind())
		if node.ID == builder.CanvasOutputID {
			attrs += ", style=\"rounded,filled\", fillcolor=\"#90EE90\""
		}
		sb.WriteString(fmt.Sprintf("    %q [%s];\n", node.ID, attrs))
	}

	for _, edge := range g.Edges() {
		sb.WriteString(fmt.Sprintf("    %q -> %q [label=\"%s:%s\"];\n",
			edge.Source.NodeID, edge.Destination.NodeID, edge.Source.Field, edge.Destination.Field))
	}

	sb.WriteString("}\n")
	return sb.String()
}
