// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jllopis/canvasgraph/pkg/builder"
	"github.com/jllopis/canvasgraph/pkg/config"
)

type auditRow struct {
	BuildID    string               `json:"build_id"`
	GraphID    string               `json:"graph_id,omitempty"`
	Mode       string               `json:"mode"`
	Base       string               `json:"base,omitempty"`
	Model      string               `json:"model,omitempty"`
	Status     string               `json:"status"`
	Nodes      int                  `json:"nodes"`
	Edges      int                  `json:"edges"`
	Skipped    []builder.Diagnostic `json:"skipped,omitempty"`
	Error      string               `json:"error,omitempty"`
	StartedAt  time.Time            `json:"started_at"`
	DurationMS int64                `json:"duration_ms"`
}

func runAudit(ctx context.Context, global globalFlags, cfg *config.Config, args []string, stdout io.Writer) error {
	if len(args) == 0 || args[0] != "list" {
		return NewInvalidArgumentError("audit", "usage: canvasgraph audit list [--build <id>] [--model <key>] [--status ok|failed] [--limit N]")
	}

	fs := flag.NewFlagSet("audit list", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	buildID := fs.String("build", "", "Filter by build id")
	modelKey := fs.String("model", "", "Filter by main model key")
	status := fs.String("status", "", "Filter by status: ok, failed")
	limit := fs.Int("limit", 50, "Maximum number of events")
	if err := fs.Parse(args[1:]); err != nil {
		return NewInvalidArgumentError("audit list", err.Error())
	}
	if *status != "" && *status != builder.AuditStatusOK && *status != builder.AuditStatusFailed {
		return NewInvalidArgumentError("--status", fmt.Sprintf("unknown status %q; use ok or failed", *status))
	}
	if *limit < 0 {
		return NewInvalidArgumentError("--limit", "limit must be >= 0")
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	events, err := a.audit.List(ctx, builder.AuditFilter{
		BuildID: *buildID,
		Model:   *modelKey,
		Status:  *status,
		Limit:   *limit,
	})
	if err != nil {
		return err
	}

	rows := make([]auditRow, 0, len(events))
	for _, ev := range events {
		rows = append(rows, auditRow{
			BuildID:    ev.BuildID,
			GraphID:    ev.GraphID,
			Mode:       ev.Mode,
			Base:       ev.Base,
			Model:      ev.Model,
			Status:     ev.Status,
			Nodes:      ev.Nodes,
			Edges:      ev.Edges,
			Skipped:    ev.Skipped,
			Error:      ev.Error,
			StartedAt:  ev.StartedAt,
			DurationMS: ev.FinishedAt.Sub(ev.StartedAt).Milliseconds(),
		})
	}
	if global.JSON {
		return printJSON(stdout, rows)
	}

	writer := newTabWriter(stdout)
	writeRow(writer, "BUILD", "STARTED", "MODE", "MODEL", "STATUS", "NODES", "SKIPPED", "ERROR")
	for _, r := range rows {
		writeRow(writer,
			r.BuildID,
			r.StartedAt.Format(time.RFC3339),
			r.Mode,
			r.Model,
			r.Status,
			strconv.Itoa(r.Nodes),
			strconv.Itoa(len(r.Skipped)),
			r.Error,
		)
	}
	return writer.Flush()
}
