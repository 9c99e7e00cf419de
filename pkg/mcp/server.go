// Package mcp exposes graph building over the Model Context Protocol.
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jllopis/canvasgraph/pkg/builder"
	"github.com/jllopis/canvasgraph/pkg/canvas"
	"github.com/jllopis/canvasgraph/pkg/errors"
	"github.com/jllopis/canvasgraph/pkg/graph"
)

// Tool names served by Server.
const (
	ToolBuildGraph    = "build_graph"
	ToolValidateGraph = "validate_graph"
)

// GraphBuilder builds a graph from a canvas state. *builder.Builder
// satisfies it.
type GraphBuilder interface {
	Build(ctx context.Context, s *canvas.State) (*builder.Result, error)
}

// BuildResponse is the structured result of build_graph.
type BuildResponse struct {
	BuildID     string               `json:"build_id"`
	Mode        string               `json:"mode"`
	Base        string               `json:"base"`
	Output      string               `json:"output"`
	Graph       json.RawMessage      `json:"graph"`
	Diagnostics []builder.Diagnostic `json:"diagnostics,omitempty"`
}

// ValidateResponse is the structured result of validate_graph.
type ValidateResponse struct {
	Valid bool     `json:"valid"`
	ID    string   `json:"id,omitempty"`
	Nodes int      `json:"nodes"`
	Edges int      `json:"edges"`
	Order []string `json:"order,omitempty"`
	Error string   `json:"error,omitempty"`
}

// Server wraps the mcp-go server with the graph tools.
type Server struct {
	mcpServer *server.MCPServer
	logger    *slog.Logger

	mu      sync.RWMutex
	builder GraphBuilder
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the logger used for tool calls.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates an MCP server that builds graphs with b.
func NewServer(name, version string, b GraphBuilder, opts ...ServerOption) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(name, version, server.WithToolCapabilities(false)),
		logger:    slog.Default(),
		builder:   b,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcpServer.AddTool(mcp.NewTool(ToolBuildGraph,
		mcp.WithDescription("Build a generation graph from a canvas state (JSON or YAML)."),
		mcp.WithString("state", mcp.Required(), mcp.Description("Canvas state document")),
		mcp.WithBoolean("pretty", mcp.Description("Indent the returned graph")),
	), s.handleBuild)

	s.mcpServer.AddTool(mcp.NewTool(ToolValidateGraph,
		mcp.WithDescription("Check a serialized graph for dangling edges, port conflicts and cycles."),
		mcp.WithString("graph", mcp.Required(), mcp.Description("Graph document, JSON or YAML")),
	), s.handleValidate)

	return s
}

// SetBuilder swaps the builder used by later tool calls.
func (s *Server) SetBuilder(b GraphBuilder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.builder = b
}

func (s *Server) currentBuilder() GraphBuilder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.builder
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdio.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// NewHTTPServer returns a streamable HTTP transport for the server.
func (s *Server) NewHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(s.mcpServer)
}

func (s *Server) handleBuild(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := request.RequireString("state")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	state, err := ParseState(raw)
	if err != nil {
		return toolError(err), nil
	}

	b := s.currentBuilder()
	if b == nil {
		return mcp.NewToolResultError("no graph builder configured"), nil
	}
	res, err := b.Build(ctx, state)
	if err != nil {
		s.logger.WarnContext(ctx, "build_graph failed", slog.String("code", string(errors.CodeOf(err))), slog.Any("error", err))
		return toolError(err), nil
	}

	data, err := graph.MarshalJSON(res.Graph, request.GetBool("pretty", false))
	if err != nil {
		return toolError(err), nil
	}
	resp := BuildResponse{
		BuildID:     res.BuildID,
		Mode:        string(res.Mode),
		Base:        string(res.Base),
		Output:      res.Output.ID,
		Graph:       data,
		Diagnostics: res.Diagnostics,
	}
	return mcp.NewToolResultStructured(resp, string(data)), nil
}

func (s *Server) handleValidate(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := request.RequireString("graph")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	resp := ValidateGraph([]byte(raw))
	text := "graph is valid"
	if !resp.Valid {
		text = resp.Error
	}
	result := mcp.NewToolResultStructured(resp, text)
	result.IsError = !resp.Valid
	return result, nil
}

// ParseState decodes a canvas state, choosing JSON when the document starts
// with an object brace and YAML otherwise.
func ParseState(raw string) (*canvas.State, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.New(errors.CodeConfiguration, "canvas state is empty", nil)
	}
	if strings.HasPrefix(trimmed, "{") {
		return canvas.ParseJSON([]byte(trimmed))
	}
	return canvas.ParseYAML([]byte(trimmed))
}

// ValidateGraph parses and validates a graph document, JSON or YAML.
func ValidateGraph(data []byte) ValidateResponse {
	parse := graph.ParseYAML
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		parse = graph.ParseJSON
	}
	g, err := parse(data)
	if err != nil {
		return ValidateResponse{Error: err.Error()}
	}
	resp := ValidateResponse{ID: g.ID(), Nodes: g.NodeCount(), Edges: len(g.Edges())}
	order, err := g.TopologicalOrder()
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	resp.Valid = true
	resp.Order = order
	return resp
}

func toolError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", errors.CodeOf(err), err))
}
