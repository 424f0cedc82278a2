package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// queryManualTool returns the tool definition for query_manual
func queryManualTool() mcp.Tool {
	return mcp.Tool{
		Name:        "query_manual",
		Description: "Search the vehicle owner's manual with a natural language question",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural language question or keywords",
				},
				"top_k": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of manual passages to return (1-50)",
					"default":     5,
					"minimum":     1,
					"maximum":     50,
				},
				"mode": map[string]interface{}{
					"type":        "string",
					"description": "Search strategy: hybrid (vector + keyword), vector (semantic only), or keyword (BM25 only)",
					"enum":        []string{"hybrid", "vector", "keyword"},
					"default":     "hybrid",
				},
				"use_cache": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, a semantically similar recent question may be answered from the response cache",
					"default":     true,
				},
			},
			Required: []string{"query"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report index lifecycle state, build statistics, and cache occupancy",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// rebuildIndexTool returns the tool definition for rebuild_index
func rebuildIndexTool() mcp.Tool {
	return mcp.Tool{
		Name:        "rebuild_index",
		Description: "Re-index the manual corpus; queries keep using the previous index until the new one is published",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"retry_failed": map[string]interface{}{
					"type":        "boolean",
					"description": "Required to rebuild after a failed build; acknowledges the recorded failure",
					"default":     false,
				},
			},
		},
	}
}
