package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"manualkb/internal/indexer"
	"manualkb/internal/searcher"
	"manualkb/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams   = -32602 // Invalid method parameters
	ErrorCodeInternalError   = -32603 // Internal JSON-RPC error
	ErrorCodeIndexNotReady   = -32010 // No index has been published yet
	ErrorCodeBuildInProgress = -32011 // Another build is already running
	ErrorCodeEmptyQuery      = -32012 // Query parameter is empty
)

// handleQueryManual handles the query_manual tool invocation
func (s *Server) handleQueryManual(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	topK := getIntDefault(args, "top_k", 0)
	if topK < 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "top_k must be positive", map[string]interface{}{
			"param": "top_k",
			"value": topK,
		})
	}

	mode := getStringDefault(args, "mode", "")
	if mode != "" && mode != "hybrid" && mode != "vector" && mode != "keyword" {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid mode", map[string]interface{}{
			"param":   "mode",
			"value":   mode,
			"allowed": []string{"hybrid", "vector", "keyword"},
		})
	}

	useCache := getBoolDefault(args, "use_cache", true)

	resp, err := s.service.Search(ctx, searcher.SearchRequest{
		Query:    query,
		TopK:     topK,
		Mode:     searcher.SearchMode(mode),
		UseCache: useCache,
	})
	if err != nil {
		return nil, mapServiceError(err)
	}

	results := make([]map[string]interface{}, len(resp.Results))
	for i, r := range resp.Results {
		results[i] = map[string]interface{}{
			"chunk_id":      r.ChunkID,
			"rank":          r.Rank,
			"fused_score":   r.FusedScore,
			"vector_score":  r.VectorScore,
			"keyword_score": r.KeywordScore,
			"text":          r.Text,
			"metadata":      r.Metadata.ToMap(),
		}
	}

	response := map[string]interface{}{
		"results":       results,
		"total_results": resp.TotalResults,
		"mode":          string(resp.SearchMode),
		"cache_hit":     resp.CacheHit,
		"duration_ms":   resp.Duration.Milliseconds(),
	}
	if resp.Degraded {
		response["degraded"] = true
		response["degraded_reason"] = resp.DegradedReason
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	info := s.service.Info()

	response := map[string]interface{}{
		"state":   info.Index.State.String(),
		"backend": info.Backend,
		"embedder": map[string]interface{}{
			"provider":  info.Embedder.Provider,
			"model":     info.Embedder.Model,
			"dimension": info.Embedder.Dimension,
		},
		"cache": map[string]interface{}{
			"enabled":  info.Cache.Enabled,
			"entries":  info.Cache.Entries,
			"capacity": info.Cache.Capacity,
		},
	}

	if info.Index.Collection != "" {
		response["index"] = map[string]interface{}{
			"collection":       info.Index.Collection,
			"build_id":         info.Index.BuildID,
			"document_count":   info.Index.DocumentCount,
			"source_documents": info.Index.SourceDocuments,
			"last_build_time":  info.Index.LastBuildTime.Format("2006-01-02T15:04:05Z07:00"),
			"last_build_ms":    info.Index.LastBuildDuration.Milliseconds(),
		}
	}
	if info.Index.LastError != "" {
		response["last_error"] = info.Index.LastError
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleRebuildIndex handles the rebuild_index tool invocation
func (s *Server) handleRebuildIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	retryFailed := getBoolDefault(args, "retry_failed", false)

	// A failed build must be acknowledged before burning another pass over
	// the corpus and the embedding provider.
	status := s.service.Status()
	if status.State == indexer.StateFailed && !retryFailed {
		return nil, newMCPError(ErrorCodeInvalidParams, "previous build failed; pass retry_failed to rebuild", map[string]interface{}{
			"param":      "retry_failed",
			"last_error": status.LastError,
		})
	}

	if err := s.service.Rebuild(ctx); err != nil {
		return nil, mapServiceError(err)
	}

	stats := s.service.Statistics()
	response := map[string]interface{}{
		"rebuilt":          true,
		"build_id":         stats.BuildID,
		"source_documents": stats.SourceDocuments,
		"chunks_indexed":   stats.ChunksCreated,
		"texts_embedded":   stats.TextsEmbedded,
		"keyword_terms":    stats.KeywordTerms,
		"duration_ms":      stats.Duration.Milliseconds(),
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// mapServiceError converts a service error into the matching MCP error code
func mapServiceError(err error) error {
	data := map[string]interface{}{
		"error": err.Error(),
	}

	switch {
	case errors.Is(err, types.ErrEmptyQuery):
		return newMCPError(ErrorCodeEmptyQuery, "query cannot be empty", data)
	case errors.Is(err, types.ErrNotReady):
		return newMCPError(ErrorCodeIndexNotReady, "index not ready", data)
	case errors.Is(err, types.ErrBuildInProgress):
		return newMCPError(ErrorCodeBuildInProgress, "index build already in progress", data)
	case errors.Is(err, types.ErrInvalidSearchMode), errors.Is(err, types.ErrInvalidTopK):
		return newMCPError(ErrorCodeInvalidParams, "invalid parameters", data)
	default:
		return newMCPError(ErrorCodeInternalError, "search failed", data)
	}
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

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
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
