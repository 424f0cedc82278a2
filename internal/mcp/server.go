package mcp

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"manualkb/internal/service"
)

const (
	// ServerName is the MCP server name
	ServerName = "manualkb"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with the retrieval service
type Server struct {
	mcp     *server.MCPServer
	service *service.Service
	logger  *slog.Logger
}

// NewServer creates an MCP server over an already wired service. The caller
// keeps ownership of the service and closes it after Serve returns.
func NewServer(svc *service.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Server{
		mcp:     server.NewMCPServer(ServerName, ServerVersion),
		service: svc,
		logger:  logger,
	}
	s.registerTools()
	return s
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(queryManualTool(), s.handleQueryManual)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	s.mcp.AddTool(rebuildIndexTool(), s.handleRebuildIndex)
}
