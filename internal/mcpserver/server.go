// Package mcpserver exposes the cheatsheet loop over the Model Context
// Protocol for clients that run generation on their own model. Transport
// is SSE; tool results carry JSON-encoded text payloads.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/OneChainTech/dynamic-cheatsheet/internal/session"
)

const serverName = "dynamic-cheatsheet-service"

// Server hosts the MCP tool surface over SSE.
type Server struct {
	sessions *session.Manager
	logger   *slog.Logger

	mcp  *server.MCPServer
	sse  *server.SSEServer
	addr string
}

// New builds the server and registers both tools. version is reported in
// the MCP handshake.
func New(sessions *session.Manager, host string, port int, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		sessions: sessions,
		logger:   logger,
		addr:     fmt.Sprintf("%s:%d", host, port),
	}
	s.mcp = server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(
			"Test-time learning with a persistent cheatsheet. Before answering a task, "+
				"call prepare_solve_context and render the returned generator template with "+
				"the task and cheatsheet. After answering, call update_cheatsheet with the "+
				"question and the raw model output so the cheatsheet absorbs the solution.",
		),
	)
	s.mcp.AddTool(prepareToolDef(), s.handlePrepare)
	s.mcp.AddTool(updateToolDef(), s.handleUpdate)
	s.sse = server.NewSSEServer(s.mcp)
	return s
}

// Addr returns the listen address.
func (s *Server) Addr() string { return s.addr }

// Start serves SSE connections until Shutdown. It blocks.
func (s *Server) Start() error {
	s.logger.Info("mcp server listening", "addr", s.addr)
	return s.sse.Start(s.addr)
}

// Shutdown stops the SSE listener and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.sse.Shutdown(ctx)
}
