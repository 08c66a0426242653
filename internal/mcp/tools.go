package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/studysearch/internal/indexer"
	"github.com/dshills/studysearch/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams    = -32602 // Invalid method parameters
	ErrorCodeInternalError    = -32603 // Internal JSON-RPC error
	ErrorCodePathNotFound     = -32001 // Specified path does not exist or is unreadable
	ErrorCodeIngestInProgress = -32002 // Another ingest is already running
	ErrorCodeEmptyQuery       = -32004 // Query parameter is empty
)

// maxReportedErrors caps the per-file errors echoed back to the client.
const maxReportedErrors = 5

// handleSearchContent handles the search_content tool invocation
func (s *Server) handleSearchContent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	req, err := parseSearchRequest(args)
	if err != nil {
		return nil, toMCPError(err)
	}
	req.Query = query

	resp, err := s.searcher.Search(ctx, req)
	if err != nil {
		return nil, toMCPError(err)
	}

	return mcp.NewToolResultText(formatJSON(resp)), nil
}

// parseSearchRequest maps tool arguments onto a SearchRequest. Range
// checks are left to the searcher.
func parseSearchRequest(args map[string]interface{}) (types.SearchRequest, error) {
	req := types.SearchRequest{
		Limit:  getIntDefault(args, "limit", 0),
		Offset: getIntDefault(args, "offset", 0),
	}

	var err error
	if req.Filters.CourseIDs, err = getStringSlice(args, "course_ids"); err != nil {
		return req, err
	}
	req.Filters.Category = getStringDefault(args, "category", "")

	if req.Filters.DateFrom, err = getDate(args, "date_from"); err != nil {
		return req, err
	}
	if req.Filters.DateTo, err = getDate(args, "date_to"); err != nil {
		return req, err
	}

	kinds, err := getStringSlice(args, "content_types")
	if err != nil {
		return req, err
	}
	for _, k := range kinds {
		req.Filters.ContentTypes = append(req.Filters.ContentTypes, types.ResultKind(k))
	}

	if v, ok := args["min_similarity"].(float64); ok {
		req.Filters.MinSimilarity = &v
	}
	if v, ok := args["vector_weight"].(float64); ok {
		req.VectorWeight = &v
	}
	if v, ok := args["include_keyword_boost"].(bool); ok {
		req.IncludeKeywordBoost = &v
	}

	return req, nil
}

// handleIngestLecture handles the ingest_lecture tool invocation
func (s *Server) handleIngestLecture(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	info, err := validatePath(path)
	if err != nil {
		code := ErrorCodeInvalidParams
		if errors.Is(err, ErrPathNotFound) || errors.Is(err, ErrPathNotReadable) {
			code = ErrorCodePathNotFound
		}
		return nil, newMCPError(code, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	meta := indexer.LectureInput{
		CourseID:   getStringDefault(args, "course_id", ""),
		CourseName: getStringDefault(args, "course_name", ""),
		Category:   getStringDefault(args, "category", ""),
		LectureID:  getStringDefault(args, "lecture_id", ""),
		Title:      getStringDefault(args, "title", ""),
	}

	var response map[string]interface{}
	if info.IsDir() {
		stats, err := s.indexer.IngestDirectory(ctx, path, meta)
		if err != nil {
			return nil, toMCPError(err)
		}
		response = map[string]interface{}{
			"ingested":        true,
			"files_ingested":  stats.FilesIngested,
			"files_failed":    stats.FilesFailed,
			"chunks_created":  stats.ChunksCreated,
			"chunks_embedded": stats.ChunksEmbedded,
			"chunks_failed":   stats.ChunksFailed,
			"duration_ms":     stats.Duration.Milliseconds(),
		}
		addErrors(response, stats.ErrorMessages)
	} else {
		stats, err := s.indexer.IngestFile(ctx, path, meta)
		if err != nil {
			return nil, toMCPError(err)
		}
		response = map[string]interface{}{
			"ingested":          true,
			"lecture_id":        stats.LectureID,
			"chunks_created":    stats.Chunks,
			"chunks_embedded":   stats.ChunksEmbedded,
			"chunks_failed":     stats.ChunksFailed,
			"concepts":          stats.Concepts,
			"lecture_embedded":  stats.LectureEmbedded,
			"concepts_embedded": stats.ConceptsEmbedded,
			"duration_ms":       stats.Duration.Milliseconds(),
		}
		addErrors(response, stats.ErrorMessages)
	}

	// Cached pages may now be stale.
	s.searcher.InvalidateCache()

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.storage.GetStatus(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"backend":        status.Backend,
		"schema_version": status.SchemaVersion,
		"statistics": map[string]interface{}{
			"courses":           status.Courses,
			"lectures":          status.Lectures,
			"lectures_embedded": status.LecturesEmbedded,
			"chunks":            status.Chunks,
			"chunks_embedded":   status.ChunksEmbedded,
			"concepts":          status.Concepts,
			"index_size_mb":     fmt.Sprintf("%.2f", status.IndexSizeMB),
		},
		"health": map[string]interface{}{
			"database_accessible":  status.Health.DatabaseAccessible,
			"embeddings_available": status.Health.EmbeddingsAvailable,
			"fts_indexes_built":    status.Health.FTSIndexesBuilt,
		},
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleRateLimitStatus handles the rate_limit_status tool invocation
func (s *Server) handleRateLimitStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(formatJSON(s.embeddings.GetRateLimitStatus(ctx))), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// toMCPError maps a service error onto a protocol error code.
func toMCPError(err error) error {
	var verr *types.ValidationError
	switch {
	case errors.As(err, &verr):
		return newMCPError(ErrorCodeInvalidParams, verr.Error(), map[string]interface{}{
			"param":  verr.Field,
			"reason": verr.Message,
		})
	case errors.Is(err, indexer.ErrIngestInProgress):
		return newMCPError(ErrorCodeIngestInProgress, err.Error(), nil)
	case errors.Is(err, indexer.ErrUnsupportedFormat):
		return newMCPError(ErrorCodeInvalidParams, err.Error(), map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	default:
		return newMCPError(ErrorCodeInternalError, "operation failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validatePath checks that path is absolute and readable.
func validatePath(path string) (os.FileInfo, error) {
	if !filepath.IsAbs(path) {
		return nil, ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, ErrPathNotFound
	}
	if err != nil {
		return nil, ErrPathNotReadable
	}

	if !info.IsDir() && !indexer.Supported(path) {
		return nil, fmt.Errorf("%w: %s", indexer.ErrUnsupportedFormat, filepath.Ext(path))
	}

	return info, nil
}

func addErrors(response map[string]interface{}, messages []string) {
	if len(messages) == 0 {
		return
	}
	if len(messages) > maxReportedErrors {
		response["errors"] = messages[:maxReportedErrors]
		response["error_count"] = len(messages)
		return
	}
	response["errors"] = messages
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts an optional array of strings.
func getStringSlice(args map[string]interface{}, key string) ([]string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}

	switch v := raw.(type) {
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, &types.ValidationError{Field: key, Message: "must be an array of strings"}
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, &types.ValidationError{Field: key, Message: "must be an array of strings"}
	}
}

// getDate parses an optional RFC 3339 timestamp or YYYY-MM-DD date.
func getDate(args map[string]interface{}, key string) (*time.Time, error) {
	raw := getStringDefault(args, key, "")
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, &types.ValidationError{Field: key, Message: "must be RFC 3339 or YYYY-MM-DD"}
}

// Validation helpers

var (
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
)
