package mcp

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"pathguard/internal/config"
	"pathguard/internal/logging"
)

const serverName = "pathguard"

// Server represents an MCP server instance using mcp-go
type Server struct {
	config    *config.Config
	logger    *logging.AppLogger
	mcpServer *server.MCPServer
}

// NewServer creates a server with every pathguard tool registered.
func NewServer(cfg *config.Config, logger *logging.AppLogger, version string) *Server {
	s := &Server{
		config: cfg,
		logger: logger,
	}
	s.mcpServer = server.NewMCPServer(serverName, version)
	s.registerTools()
	logger.DebugObject("roots", cfg.Roots)
	return s
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("pathguard_check",
		mcp.WithDescription("Reports whether a path attempts traversal and returns its normalized form"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Untrusted path to inspect")),
	), s.handleCheck)

	s.mcpServer.AddTool(mcp.NewTool("pathguard_resolve",
		mcp.WithDescription("Joins an untrusted relative path onto a configured root, refusing anything that escapes it"),
		mcp.WithString("root",
			mcp.Description("Configured root name (default: data)")),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path relative to the root")),
	), s.handleResolve)

	s.mcpServer.AddTool(mcp.NewTool("pathguard_read",
		mcp.WithDescription("Reads a regular file inside a configured root without following symlinks"),
		mcp.WithString("root",
			mcp.Description("Configured root name (default: data)")),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path relative to the root")),
		mcp.WithString("encoding",
			mcp.Description("\"utf-8\" (default) or \"base64\"")),
	), s.handleRead)

	s.mcpServer.AddTool(mcp.NewTool("pathguard_write",
		mcp.WithDescription("Atomically writes a file inside a configured root"),
		mcp.WithString("root",
			mcp.Description("Configured root name (default: data)")),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path relative to the root")),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("File content")),
		mcp.WithString("encoding",
			mcp.Description("\"utf-8\" (default) or \"base64\"")),
		mcp.WithBoolean("create_dirs",
			mcp.Description("Create missing parent directories (default: false)")),
	), s.handleWrite)

	s.mcpServer.AddTool(mcp.NewTool("pathguard_mkdir",
		mcp.WithDescription("Ensures a directory exists inside a configured root"),
		mcp.WithString("root",
			mcp.Description("Configured root name (default: data)")),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Directory path relative to the root")),
	), s.handleMkdir)

	s.mcpServer.AddTool(mcp.NewTool("pathguard_remove",
		mcp.WithDescription("Removes a regular file or empty directory inside a configured root, refusing symlinks"),
		mcp.WithString("root",
			mcp.Description("Configured root name (default: data)")),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path relative to the root")),
	), s.handleRemove)

	s.mcpServer.AddTool(mcp.NewTool("pathguard_permissions",
		mcp.WithDescription("Describes the permissions of an entry inside a configured root and whether they are too permissive"),
		mcp.WithString("root",
			mcp.Description("Configured root name (default: data)")),
		mcp.WithString("path",
			mcp.Description("Path relative to the root (default: the root itself)")),
	), s.handlePermissions)

	s.mcpServer.AddTool(mcp.NewTool("pathguard_audit",
		mcp.WithDescription("Audits a configured root for symlinks, escaping symlinks and permission problems"),
		mcp.WithString("root",
			mcp.Description("Configured root name (default: data)")),
		mcp.WithNumber("max_depth",
			mcp.Description("Maximum directory depth (default: 10)")),
		mcp.WithBoolean("include_hidden",
			mcp.Description("Audit dot-files and dot-directories (default: true)")),
	), s.handleAudit)
}

// Start serves MCP over stdin/stdout until ctx is cancelled or stdin closes.
func (s *Server) Start(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve serves MCP over the given streams.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("Starting MCP server", "roots", len(s.config.Roots))

	stdioServer := server.NewStdioServer(s.mcpServer)
	if err := stdioServer.Listen(ctx, in, out); err != nil && ctx.Err() == nil {
		return fmt.Errorf("failed to serve MCP: %w", err)
	}

	s.logger.Info("MCP server stopped")
	return nil
}
