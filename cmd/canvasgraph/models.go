// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/jllopis/canvasgraph/pkg/config"
	"github.com/jllopis/canvasgraph/pkg/errors"
	"github.com/jllopis/canvasgraph/pkg/model"
)

type importResult struct {
	Imported int    `json:"imported"`
	Source   string `json:"source"`
	Store    string `json:"store"`
}

func runModels(ctx context.Context, global globalFlags, cfg *config.Config, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return NewInvalidArgumentError("models", "expected list, show or import")
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	switch args[0] {
	case "list":
		return modelsList(ctx, global, a, args[1:], stdout)
	case "show":
		if len(args) != 2 {
			return NewInvalidArgumentError("models show", "usage: canvasgraph models show <key>")
		}
		return modelsShow(ctx, global, a, args[1], stdout)
	case "import":
		if len(args) != 2 {
			return NewInvalidArgumentError("models import", "usage: canvasgraph models import <registry.yaml>")
		}
		return modelsImport(ctx, global, a, args[1], stdout)
	default:
		return NewInvalidArgumentError("models", fmt.Sprintf("unknown subcommand %q", args[0]))
	}
}

func modelsList(ctx context.Context, global globalFlags, a *app, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("models list", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	base := fs.String("base", "", "Filter by base family")
	if err := fs.Parse(args); err != nil {
		return NewInvalidArgumentError("models list", err.Error())
	}

	models, err := a.lister.List(ctx, model.BaseModel(*base))
	if err != nil {
		return err
	}
	if global.JSON {
		return printJSON(stdout, models)
	}

	writer := newTabWriter(stdout)
	writeRow(writer, "KEY", "NAME", "BASE", "TYPE")
	for _, d := range models {
		writeRow(writer, d.Key, d.Name, string(d.Base), string(d.Type))
	}
	return writer.Flush()
}

func modelsShow(ctx context.Context, global globalFlags, a *app, key string, stdout io.Writer) error {
	d, err := a.resolver.Resolve(ctx, key)
	if err != nil {
		return err
	}
	if global.JSON {
		return printJSON(stdout, d)
	}

	caps := d.Supports()
	writer := newTabWriter(stdout)
	writeRow(writer, "Key:", d.Key)
	writeRow(writer, "Name:", d.Name)
	writeRow(writer, "Base:", string(d.Base))
	writeRow(writer, "Type:", string(d.Type))
	writeRow(writer, "Hash:", d.Hash)
	writeRow(writer, "Description:", d.Description)
	writeRow(writer, "ControlNet:", yesNo(caps.ControlNet))
	writeRow(writer, "T2I-Adapter:", yesNo(caps.T2IAdapter))
	writeRow(writer, "IP-Adapter:", yesNo(caps.IPAdapter))
	return writer.Flush()
}

func modelsImport(ctx context.Context, global globalFlags, a *app, path string, stdout io.Writer) error {
	if a.store == nil {
		return NewCLIError(
			errors.New(errors.CodeConfiguration, "models import needs a sqlite model store", nil).
				WithContext("models.source", a.cfg.Models.Source),
			"run with --set models.source=sqlite --set models.path=<db>",
		)
	}

	reg, err := model.LoadRegistry(path)
	if err != nil {
		return errors.New(errors.CodeModelResolution, "load model registry", err).WithContext("path", path)
	}
	models, err := reg.List(ctx)
	if err != nil {
		return err
	}
	for _, d := range models {
		if err := a.store.Upsert(ctx, d); err != nil {
			return errors.New(errors.CodeModelResolution, "import model", err).WithContext("model", d.Key)
		}
	}

	result := importResult{Imported: len(models), Source: path, Store: a.cfg.Models.Path}
	if global.JSON {
		return printJSON(stdout, result)
	}
	_, err = fmt.Fprintf(stdout, "imported %d models from %s into %s\n", result.Imported, result.Source, result.Store)
	return err
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
