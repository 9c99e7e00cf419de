// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jllopis/canvasgraph/pkg/errors"
	cgmcp "github.com/jllopis/canvasgraph/pkg/mcp"
)

func runValidate(global globalFlags, args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return NewInvalidArgumentError("validate", "usage: canvasgraph validate <graph file>")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read graph: %w", err)
	}

	result := cgmcp.ValidateGraph(data)
	if global.JSON {
		if err := printJSON(stdout, result); err != nil {
			return err
		}
	} else if result.Valid {
		fmt.Fprintf(stdout, "%s: ok (%d nodes, %d edges)\n", args[0], result.Nodes, result.Edges)
		fmt.Fprintf(stdout, "order: %s\n", strings.Join(result.Order, " -> "))
	}
	if !result.Valid {
		return errors.New(errors.CodeInvalidGraph, result.Error, nil).WithContext("path", args[0])
	}
	return nil
}
