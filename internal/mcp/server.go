package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/services"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server is an MCP server backed by the ragd services.
type Server struct {
	mcp      *mcp.Server
	services services.Registry
	metrics  *toolMetrics
	logger   *logging.Logger
	tools    []string
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "ragd")
	Name string

	// Version is the server version (default: "dev")
	Version string

	// Logger must not write to stdout, which carries the protocol.
	Logger *logging.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "ragd",
		Version: "dev",
		Logger:  logging.NewNop(),
	}
}

// NewServer creates a new MCP server over the given services.
func NewServer(cfg *Config, reg services.Registry) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if reg == nil {
		return nil, errors.New("service registry is required")
	}
	if reg.Ingest() == nil || reg.QA() == nil || reg.Documents() == nil {
		return nil, errors.New("ingest, qa and documents services are required")
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:      mcpServer,
		services: reg,
		metrics:  newToolMetrics(cfg.Logger),
		logger:   cfg.Logger.Named("mcp"),
	}
	s.registerTools()
	return s, nil
}

// Tools lists the registered tool names in registration order.
func (s *Server) Tools() []string {
	return append([]string(nil), s.tools...)
}

// Run serves MCP on the stdio transport until ctx is done or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info(ctx, "starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
