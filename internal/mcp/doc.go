// Package mcp provides a Model Context Protocol (MCP) server for pathguard using mcp-go.
//
// The server lets AI assistants and other MCP clients read and write files inside the
// roots named in the pathguard configuration without ever being able to leave them.
// Every tool call is validated by pkg/fileops before any disk access happens.
//
// # Tools
//
//   - pathguard_check: traversal verdict and normalized form of a path (no disk access)
//   - pathguard_resolve: join a relative path onto a root
//   - pathguard_read / pathguard_write: symlink-refusing read and atomic write
//   - pathguard_mkdir / pathguard_remove: directory creation and entry removal
//   - pathguard_permissions: permission descriptor and policy verdict
//   - pathguard_audit: symlink and permission findings for a whole root
//
// Tools that take a "root" argument default to the "data" root.
//
// # Errors
//
// Failures are returned as text results carrying
//
//	{"error":{"code":"SYMLINK_REJECTED","message":"..."}}
//
// where code is the fileops error kind when there is one, otherwise INVALID_PARAMS,
// UNKNOWN_ROOT, FILE_TOO_LARGE or INTERNAL_ERROR.
//
// # Usage
//
// The server is started as a subprocess by MCP clients:
//
//	pathguard mcp
//
// It reads JSON-RPC requests from stdin and writes responses to stdout until it
// receives EOF or is terminated. Logs never go to stdout.
//
// # References
//
// - MCP Specification: https://modelcontextprotocol.io/specification
// - mcp-go Library: https://github.com/mark3labs/mcp-go
package mcp
