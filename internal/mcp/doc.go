// Package mcp implements the Model Context Protocol (MCP) server for the
// manual knowledge base.
//
// The server exposes three tools to AI assistants:
//   - query_manual: answer a natural language question from the indexed manual
//   - get_status: report index lifecycle state, build statistics, and cache occupancy
//   - rebuild_index: re-index the manual corpus without interrupting queries
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Because stdout carries the protocol stream, all logging goes to stderr.
//
// # Error Codes
//
// Tool failures map onto JSON-RPC error codes: -32602 invalid parameters,
// -32603 internal error, and three domain codes: -32010 index not ready,
// -32011 build already in progress, -32012 empty query.
//
// # Tool Semantics
//
// query_manual accepts top_k (1-50), mode (hybrid, vector, keyword), and
// use_cache. Responses carry ranked chunks with fused and per-ranking
// scores; a degraded hybrid response is flagged with the reason.
//
// rebuild_index builds a fresh index generation while the previous one keeps
// serving queries. After a failed build the tool demands retry_failed so a
// broken corpus cannot silently trigger repeated expensive rebuilds.
package mcp
