// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jllopis/canvasgraph/pkg/builder"
	"github.com/jllopis/canvasgraph/pkg/canvas"
	"github.com/jllopis/canvasgraph/pkg/config"
	"github.com/jllopis/canvasgraph/pkg/errors"
	cgmcp "github.com/jllopis/canvasgraph/pkg/mcp"
)

func runMCP(ctx context.Context, global globalFlags, cfg *config.Config, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return NewInvalidArgumentError("mcp", "expected serve or call")
	}
	switch args[0] {
	case "serve":
		return mcpServe(ctx, global, cfg, args[1:], stdout)
	case "call":
		return mcpCall(ctx, global, args[1:], stdout)
	default:
		return NewInvalidArgumentError("mcp", fmt.Sprintf("unknown subcommand %q", args[0]))
	}
}

// drainTimeout bounds how long a replaced app waits for its builds before
// its stores are closed.
const drainTimeout = 30 * time.Second

// appBuilder routes each build to the current app and holds that app open
// until the build returns, so a config reload never closes a store under a
// running build.
type appBuilder struct {
	mu     sync.RWMutex
	cur    *app
	b      *builder.Builder
	closed bool
}

func newAppBuilder(a *app) *appBuilder {
	return &appBuilder{cur: a, b: a.newBuilder()}
}

func (r *appBuilder) Build(ctx context.Context, s *canvas.State) (*builder.Result, error) {
	for {
		r.mu.RLock()
		a, b, closed := r.cur, r.b, r.closed
		r.mu.RUnlock()
		if closed {
			return nil, errors.New(errors.CodeInternal, "graph builder is shutting down", nil)
		}
		// A failed acquire means a reload retired a between the read and
		// now; the next read sees its replacement.
		if a.acquire() {
			defer a.release()
			return b.Build(ctx, s)
		}
	}
}

// swap installs fresh and returns the app it replaced. It reports false once
// the builder is closed.
func (r *appBuilder) swap(fresh *app) (*app, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, false
	}
	old := r.cur
	r.cur, r.b = fresh, fresh.newBuilder()
	return old, true
}

func (r *appBuilder) current() *app {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cur
}

// close rejects new builds and retires the current app.
func (r *appBuilder) close(grace time.Duration) <-chan struct{} {
	r.mu.Lock()
	r.closed = true
	a := r.cur
	r.mu.Unlock()
	return a.retire(grace)
}

func mcpServe(ctx context.Context, global globalFlags, cfg *config.Config, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("mcp serve", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	httpAddr := fs.String("http", "", "Serve streamable HTTP on this address instead of stdio")
	if err := fs.Parse(args); err != nil {
		return NewInvalidArgumentError("mcp serve", err.Error())
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	live := newAppBuilder(a)
	defer func() { <-live.close(drainTimeout) }()

	logger := a.logger
	srv := cgmcp.NewServer(cfg.MCP.Name, version, live, cgmcp.WithServerLogger(logger))

	if cfg.MCP.Watch {
		path := configPath(global.ConfigArgs)
		watcher, _, err := config.WatchConfig(ctx, path,
			config.WithLoader(func() (*config.Config, error) { return config.LoadWithCLI(global.ConfigArgs) }),
			config.WithWatchLogger(logger),
		)
		if err != nil {
			return NewConfigError(err, path)
		}
		defer watcher.Stop()

		watcher.OnChange(func(next *config.Config) {
			fresh, err := newApp(ctx, next)
			if err != nil {
				logger.Error("rebuild after config change failed", slog.Any("error", err))
				return
			}
			old, ok := live.swap(fresh)
			if !ok {
				fresh.Close()
				return
			}
			old.retire(drainTimeout)
			logger.Info("graph builder reloaded",
				slog.String("models.source", next.Models.Source),
				slog.String("models.path", next.Models.Path))
		})
	}

	if *httpAddr == "" {
		logger.Info("serving MCP on stdio", slog.String("name", cfg.MCP.Name))
		return srv.ServeStdio()
	}

	httpServer := srv.NewHTTPServer()
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start(*httpAddr)
	}()
	fmt.Fprintf(stdout, "serving MCP on http://%s/mcp\n", *httpAddr)

	select {
	case err := <-errCh:
		if err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

func mcpCall(ctx context.Context, global globalFlags, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return NewInvalidArgumentError("mcp call", "expected build or validate")
	}
	tool := args[0]
	if tool != "build" && tool != "validate" {
		return NewInvalidArgumentError("mcp call", fmt.Sprintf("unknown tool %q; use build or validate", tool))
	}

	fs := flag.NewFlagSet("mcp call", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	url := fs.String("url", "http://localhost:8080/mcp", "Streamable HTTP endpoint")
	pretty := fs.Bool("pretty", false, "Indent the returned graph")
	if err := fs.Parse(args[1:]); err != nil {
		return NewInvalidArgumentError("mcp call", err.Error())
	}
	if fs.NArg() != 1 {
		return NewInvalidArgumentError("mcp call", "expected exactly one input file")
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	client, err := cgmcp.NewClientWithStreamableHTTP(*url, cgmcp.WithTimeout(global.Timeout))
	if err != nil {
		return WrapConnectionError(err, *url)
	}
	defer client.Close()

	if tool == "validate" {
		resp, err := client.ValidateGraph(ctx, string(data))
		if err != nil {
			return err
		}
		if global.JSON {
			return printJSON(stdout, resp)
		}
		if !resp.Valid {
			return errors.New(errors.CodeInvalidGraph, resp.Error, nil).WithContext("path", fs.Arg(0))
		}
		_, err = fmt.Fprintf(stdout, "%s: ok (%d nodes, %d edges)\norder: %s\n",
			fs.Arg(0), resp.Nodes, resp.Edges, strings.Join(resp.Order, " -> "))
		return err
	}

	resp, err := client.BuildGraph(ctx, string(data), *pretty)
	if err != nil {
		return err
	}
	if global.JSON {
		return printJSON(stdout, resp)
	}
	_, err = fmt.Fprintln(stdout, string(resp.Graph))
	return err
}
