package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"

	"pathguard/internal/config"
	"pathguard/pkg/fileops"
)

const (
	codeInvalidParams = "INVALID_PARAMS"
	codeUnknownRoot   = "UNKNOWN_ROOT"
	codeFileTooLarge  = "FILE_TOO_LARGE"
	codeInternal      = "INTERNAL_ERROR"

	encodingUTF8   = "utf-8"
	encodingBase64 = "base64"
)

// handleCheck implements pathguard_check: classifies a path without touching disk.
func (s *Server) handleCheck(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.logger.LogToolCall("pathguard_check", request.GetArguments())
	defer s.logger.LogPerformance("pathguard_check", time.Now())

	path, err := request.RequireString("path")
	if err != nil {
		return errorResult(codeInvalidParams, "path is required"), nil
	}

	response := map[string]interface{}{
		"path":         path,
		"is_traversal": fileops.IsPathTraversal(path),
	}

	normalized, err := fileops.NormalizePath(path)
	if err != nil {
		response["normalize_error"] = errorPayload(err)
	} else {
		response["normalized"] = normalized
	}

	return jsonResult(response), nil
}

// handleResolve implements pathguard_resolve: joins a candidate onto a root.
func (s *Server) handleResolve(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.logger.LogToolCall("pathguard_resolve", request.GetArguments())
	defer s.logger.LogPerformance("pathguard_resolve", time.Now())

	path, err := request.RequireString("path")
	if err != nil {
		return errorResult(codeInvalidParams, "path is required"), nil
	}

	rootName, sp, err := s.openRoot(request)
	if err != nil {
		return s.failure("resolve", path, err), nil
	}

	resolved, err := sp.Resolve(path)
	if err != nil {
		return s.failure("resolve", path, err), nil
	}

	return jsonResult(map[string]interface{}{
		"root":     rootName,
		"base":     sp.Base(),
		"path":     path,
		"resolved": resolved,
	}), nil
}

// handleRead implements pathguard_read.
func (s *Server) handleRead(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.logger.LogToolCall("pathguard_read", request.GetArguments())
	defer s.logger.LogPerformance("pathguard_read", time.Now())

	path, err := request.RequireString("path")
	if err != nil {
		return errorResult(codeInvalidParams, "path is required"), nil
	}
	encoding := request.GetString("encoding", encodingUTF8)
	if encoding != encodingUTF8 && encoding != encodingBase64 {
		return errorResult(codeInvalidParams, fmt.Sprintf("unsupported encoding %q", encoding)), nil
	}

	_, sp, err := s.openRoot(request)
	if err != nil {
		return s.failure("read", path, err), nil
	}

	data, err := sp.Read(path)
	if err != nil {
		return s.failure("read", path, err), nil
	}

	if encoding == encodingUTF8 && !utf8.Valid(data) {
		return errorResult(codeInvalidParams, "file is not valid UTF-8, use encoding \"base64\""), nil
	}

	var content string
	if encoding == encodingBase64 {
		content = base64.StdEncoding.EncodeToString(data)
	} else {
		content = string(data)
	}

	return jsonResult(map[string]interface{}{
		"content":    content,
		"size_bytes": len(data),
		"encoding":   encoding,
	}), nil
}

// handleWrite implements pathguard_write.
func (s *Server) handleWrite(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.logger.LogToolCall("pathguard_write", request.GetArguments())
	defer s.logger.LogPerformance("pathguard_write", time.Now())

	path, err := request.RequireString("path")
	if err != nil {
		return errorResult(codeInvalidParams, "path is required"), nil
	}
	content, err := request.RequireString("content")
	if err != nil {
		return errorResult(codeInvalidParams, "content is required"), nil
	}
	encoding := request.GetString("encoding", encodingUTF8)
	createDirs := request.GetBool("create_dirs", false)

	var data []byte
	switch encoding {
	case encodingUTF8:
		data = []byte(content)
	case encodingBase64:
		decoded, err := base64.StdEncoding.DecodeString(content)
		if err != nil {
			return errorResult(codeInvalidParams, "invalid base64 encoding"), nil
		}
		data = decoded
	default:
		return errorResult(codeInvalidParams, fmt.Sprintf("unsupported encoding %q", encoding)), nil
	}

	_, sp, err := s.openRoot(request)
	if err != nil {
		return s.failure("write", path, err), nil
	}

	if createDirs {
		if dir := filepath.Dir(filepath.FromSlash(path)); dir != "." {
			if err := sp.EnsureDir(dir); err != nil {
				return s.failure("write", path, err), nil
			}
		}
	}

	resolved, err := sp.Resolve(path)
	if err != nil {
		return s.failure("write", path, err), nil
	}
	if err := sp.Write(path, data); err != nil {
		return s.failure("write", path, err), nil
	}

	return jsonResult(map[string]interface{}{
		"written":    true,
		"path":       resolved,
		"size_bytes": len(data),
	}), nil
}

// handleMkdir implements pathguard_mkdir.
func (s *Server) handleMkdir(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.logger.LogToolCall("pathguard_mkdir", request.GetArguments())
	defer s.logger.LogPerformance("pathguard_mkdir", time.Now())

	path, err := request.RequireString("path")
	if err != nil {
		return errorResult(codeInvalidParams, "path is required"), nil
	}

	_, sp, err := s.openRoot(request)
	if err != nil {
		return s.failure("mkdir", path, err), nil
	}

	resolved, err := sp.Resolve(path)
	if err != nil {
		return s.failure("mkdir", path, err), nil
	}
	if err := sp.EnsureDir(path); err != nil {
		return s.failure("mkdir", path, err), nil
	}

	return jsonResult(map[string]interface{}{
		"created": true,
		"path":    resolved,
	}), nil
}

// handleRemove implements pathguard_remove.
func (s *Server) handleRemove(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.logger.LogToolCall("pathguard_remove", request.GetArguments())
	defer s.logger.LogPerformance("pathguard_remove", time.Now())

	path, err := request.RequireString("path")
	if err != nil {
		return errorResult(codeInvalidParams, "path is required"), nil
	}

	_, sp, err := s.openRoot(request)
	if err != nil {
		return s.failure("remove", path, err), nil
	}

	if err := sp.Remove(path); err != nil {
		return s.failure("remove", path, err), nil
	}

	return jsonResult(map[string]interface{}{
		"removed": true,
		"path":    path,
	}), nil
}

// handlePermissions implements pathguard_permissions.
func (s *Server) handlePermissions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.logger.LogToolCall("pathguard_permissions", request.GetArguments())
	defer s.logger.LogPerformance("pathguard_permissions", time.Now())

	path := request.GetString("path", "")

	_, sp, err := s.openRoot(request)
	if err != nil {
		return s.failure("permissions", path, err), nil
	}

	resolved, err := sp.Resolve(path)
	if err != nil {
		return s.failure("permissions", path, err), nil
	}

	desc, err := fileops.GetFilePermissions(resolved)
	if err != nil {
		return s.failure("permissions", path, err), nil
	}

	policy := s.config.PermissionPolicy()
	return jsonResult(map[string]interface{}{
		"path":           desc.Path,
		"mode":           desc.Octal(),
		"is_dir":         desc.IsDir,
		"is_symlink":     desc.IsSymlink,
		"owner":          desc.Owner,
		"group_access":   desc.GroupAccess(),
		"other_access":   desc.OtherAccess(),
		"too_permissive": !policy.Allows(desc.Mode),
	}), nil
}

// handleAudit implements pathguard_audit.
func (s *Server) handleAudit(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.logger.LogToolCall("pathguard_audit", request.GetArguments())
	defer s.logger.LogPerformance("pathguard_audit", time.Now())

	rootName, sp, err := s.openRoot(request)
	if err != nil {
		return s.failure("audit", "", err), nil
	}

	opts := fileops.DefaultAuditOptions()
	opts.MaxDepth = request.GetInt("max_depth", 10)
	opts.IncludeHidden = request.GetBool("include_hidden", true)
	opts.Policy = s.config.PermissionPolicy()
	if opts.MaxDepth < 0 {
		return errorResult(codeInvalidParams, "max_depth must not be negative"), nil
	}

	report, err := sp.Audit(opts)
	if err != nil {
		return s.failure("audit", rootName, err), nil
	}

	findings := report.Findings
	if findings == nil {
		findings = []fileops.Finding{}
	}
	return jsonResult(map[string]interface{}{
		"root":          rootName,
		"base":          report.Base,
		"findings":      findings,
		"files_scanned": report.FilesScanned,
		"dirs_scanned":  report.DirsScanned,
		"has_issues":    report.HasIssues(),
	}), nil
}

// openRoot binds the root named by the request's "root" argument.
func (s *Server) openRoot(request mcp.CallToolRequest) (string, *fileops.SafePath, error) {
	name := request.GetString("root", config.DefaultRootName)
	sp, err := s.config.OpenRoot(name)
	if err != nil {
		return name, nil, err
	}
	return name, sp, nil
}

// failure logs err and converts it to an error result.
func (s *Server) failure(op, path string, err error) *mcp.CallToolResult {
	s.logger.LogRejection(op, path, err)
	payload := errorPayload(err)
	return errorResult(payload["code"], payload["message"])
}

func errorCode(err error) string {
	if kind := fileops.KindOf(err); kind != "" {
		return string(kind)
	}
	switch {
	case errors.Is(err, config.ErrUnknownRoot):
		return codeUnknownRoot
	case errors.Is(err, fileops.ErrFileTooLarge):
		return codeFileTooLarge
	default:
		return codeInternal
	}
}

func errorPayload(err error) map[string]string {
	return map[string]string{
		"code":    errorCode(err),
		"message": err.Error(),
	}
}

// errorResult creates an MCP error result.
func errorResult(code, message string) *mcp.CallToolResult {
	errorData := map[string]interface{}{
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
	}

	jsonBytes, err := json.Marshal(errorData)
	if err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("Error: %s - %s", code, message))
	}

	result := mcp.NewToolResultText(string(jsonBytes))
	result.IsError = true
	return result
}

// jsonResult creates an MCP success result from a JSON-serializable object.
func jsonResult(data interface{}) *mcp.CallToolResult {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return errorResult(codeInternal, fmt.Sprintf("failed to marshal response: %s", err))
	}

	return mcp.NewToolResultText(string(jsonBytes))
}
