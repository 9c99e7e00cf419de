// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/jllopis/canvasgraph/pkg/config"
	"github.com/jllopis/canvasgraph/pkg/telemetry"
)

// version is set at link time with -ldflags "-X main.version=...".
var version = "dev"

type globalFlags struct {
	ConfigArgs []string
	Timeout    time.Duration
	JSON       bool
	Help       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	global, args, err := parseGlobalFlags(os.Args[1:])
	if err != nil {
		exitWith(NewInvalidArgumentError("flags", err.Error()), false)
	}
	if global.Help || len(args) == 0 {
		printUsage(os.Stdout)
		return
	}

	switch args[0] {
	case "help":
		printUsage(os.Stdout)
		return
	case "version":
		printVersion(os.Stdout)
		return
	}

	cfg, err := config.LoadWithCLI(global.ConfigArgs)
	if err != nil {
		exitWith(NewConfigError(err, configPath(global.ConfigArgs)), global.JSON)
	}

	telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	shutdown, err := telemetry.InitWithConfig("canvasgraph", version, telemetry.Config{
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
		OTLPTimeout:  time.Duration(cfg.Telemetry.OTLPTimeoutSeconds) * time.Second,
	})
	if err != nil {
		exitWith(NewConfigError(err, configPath(global.ConfigArgs)), global.JSON)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(ctx)
	}()

	if err := run(ctx, global, cfg, args); err != nil {
		stop()
		exitWith(err, global.JSON)
	}
}

func run(ctx context.Context, global globalFlags, cfg *config.Config, args []string) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "build":
		return runBuild(ctx, global, cfg, rest, os.Stdout)
	case "validate":
		return runValidate(global, rest, os.Stdout)
	case "graph":
		return runGraph(global, rest, os.Stdout)
	case "models":
		return runModels(ctx, global, cfg, rest, os.Stdout)
	case "audit":
		return runAudit(ctx, global, cfg, rest, os.Stdout)
	case "mcp":
		return runMCP(ctx, global, cfg, rest, os.Stdout)
	default:
		return NewInvalidArgumentError(cmd, fmt.Sprintf("unknown command %q", cmd))
	}
}

func parseGlobalFlags(args []string) (globalFlags, []string, error) {
	flags := globalFlags{
		Timeout: 30 * time.Second,
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return flags, args[i+1:], nil
		}
		if !strings.HasPrefix(arg, "-") {
			return flags, args[i:], nil
		}
		switch {
		case arg == "-h" || arg == "--help":
			flags.Help = true
			return flags, nil, nil
		case arg == "--json":
			flags.JSON = true
		case arg == "--config" || arg == "--set" || arg == "--profile":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for %s", arg)
			}
			flags.ConfigArgs = append(flags.ConfigArgs, arg, args[i+1])
			i++
		case strings.HasPrefix(arg, "--config="), strings.HasPrefix(arg, "--set="), strings.HasPrefix(arg, "--profile="):
			flags.ConfigArgs = append(flags.ConfigArgs, arg)
		case arg == "--timeout":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --timeout")
			}
			value, err := time.ParseDuration(args[i+1])
			if err != nil {
				return flags, nil, fmt.Errorf("invalid --timeout: %w", err)
			}
			flags.Timeout = value
			i++
		case strings.HasPrefix(arg, "--timeout="):
			value, err := time.ParseDuration(strings.TrimPrefix(arg, "--timeout="))
			if err != nil {
				return flags, nil, fmt.Errorf("invalid --timeout: %w", err)
			}
			flags.Timeout = value
		default:
			return flags, nil, fmt.Errorf("unknown global flag %q", arg)
		}
	}
	return flags, nil, nil
}

func configPath(args []string) string {
	for i, arg := range args {
		if arg == "--config" && i+1 < len(args) {
			return args[i+1]
		}
		if value, ok := strings.CutPrefix(arg, "--config="); ok {
			return value
		}
	}
	return ""
}

func printVersion(w io.Writer) {
	fmt.Fprintln(w, version)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `canvasgraph builds generation graphs from canvas state.

Usage:
  canvasgraph [global flags] <command> [args]

Global flags:
  --config <path>      Path to a YAML or JSON config file
  --profile <name>     Merge config.<name>.yaml next to --config
  --set key=value      Override config (repeatable)
  --timeout <dur>      Timeout for remote calls (default 30s)
  --json               JSON output

Commands:
  build --state <file|-> [--out <path>] [--format json|yaml] [--pretty] [--mode <mode>]
  validate <graph file>
  graph --path <file> [--output mermaid|dot|json]
  models list [--base <base>]
  models show <key>
  models import <registry.yaml>
  audit list [--build <id>] [--model <key>] [--status ok|failed] [--limit N]
  mcp serve [--http <addr>]
  mcp call <build|validate> --url <endpoint> [--pretty] <file>
  version`)
}

func exitWith(err error, asJSON bool) {
	WrapError(err).PrintError(os.Stderr, asJSON)
	os.Exit(1)
}

func printJSON(w io.Writer, value any) error {
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(payload))
	return err
}

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
}

func writeRow(writer *tabwriter.Writer, cols ...string) {
	for i, col := range cols {
		cols[i] = normalizeCell(col)
	}
	fmt.Fprintln(writer, strings.Join(cols, "\t"))
}

func normalizeCell(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	return strings.Join(strings.Fields(value), " ")
}
