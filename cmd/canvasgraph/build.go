// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/jllopis/canvasgraph/pkg/builder"
	"github.com/jllopis/canvasgraph/pkg/canvas"
	"github.com/jllopis/canvasgraph/pkg/config"
	"github.com/jllopis/canvasgraph/pkg/graph"
	cgmcp "github.com/jllopis/canvasgraph/pkg/mcp"
)

type buildResult struct {
	BuildID     string               `json:"build_id"`
	Mode        string               `json:"mode"`
	Base        string               `json:"base"`
	Nodes       int                  `json:"nodes"`
	Edges       int                  `json:"edges"`
	Output      string               `json:"output,omitempty"`
	Diagnostics []builder.Diagnostic `json:"diagnostics,omitempty"`
}

func runBuild(ctx context.Context, global globalFlags, cfg *config.Config, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	statePath := fs.String("state", "", "Canvas state file (YAML or JSON), - for stdin")
	out := fs.String("out", "", "Write the graph to this file instead of stdout")
	format := fs.String("format", "json", "Graph format: json, yaml")
	pretty := fs.Bool("pretty", false, "Indent JSON output")
	mode := fs.String("mode", "", "Override the generation mode")
	if err := fs.Parse(args); err != nil {
		return NewInvalidArgumentError("build", err.Error())
	}
	if *statePath == "" {
		return NewInvalidArgumentError("--state", "no canvas state specified; use --state <file>")
	}
	if *format != "json" && *format != "yaml" {
		return NewInvalidArgumentError("--format", fmt.Sprintf("unknown format %q; use json or yaml", *format))
	}

	state, err := readState(*statePath, os.Stdin)
	if err != nil {
		return err
	}
	if *mode != "" {
		state.Mode = canvas.Mode(*mode)
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.newBuilder().Build(ctx, state)
	if err != nil {
		return err
	}

	var data []byte
	if *format == "yaml" {
		data, err = graph.MarshalYAML(res.Graph)
	} else {
		data, err = graph.MarshalJSON(res.Graph, *pretty)
	}
	if err != nil {
		return err
	}

	summary := buildResult{
		BuildID:     res.BuildID,
		Mode:        string(res.Mode),
		Base:        string(res.Base),
		Nodes:       res.Graph.NodeCount(),
		Edges:       len(res.Graph.Edges()),
		Diagnostics: res.Diagnostics,
	}
	if res.Output != nil {
		summary.Output = res.Output.ID
	}

	if *out != "" {
		if err := os.WriteFile(*out, append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("write graph: %w", err)
		}
		if global.JSON {
			return printJSON(stdout, summary)
		}
		fmt.Fprintf(stdout, "wrote %s (%d nodes, %d edges, mode %s)\n", *out, summary.Nodes, summary.Edges, summary.Mode)
		printDiagnostics(stdout, res.Diagnostics)
		return nil
	}

	// Skipped capabilities are already logged to stderr by the builder.
	_, err = fmt.Fprintln(stdout, string(data))
	return err
}

func readState(path string, stdin io.Reader) (*canvas.State, error) {
	if path != "-" {
		return canvas.LoadState(path)
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return nil, fmt.Errorf("read canvas state: %w", err)
	}
	return cgmcp.ParseState(string(data))
}

func printDiagnostics(w io.Writer, diags []builder.Diagnostic) {
	if len(diags) == 0 {
		return
	}
	writer := newTabWriter(w)
	writeRow(writer, "CAPABILITY", "ENTITY", "REASON")
	for _, d := range diags {
		writeRow(writer, string(d.Capability), d.Entity, d.Reason)
	}
	_ = writer.Flush()
}
