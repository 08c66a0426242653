// Package mcp implements the Model Context Protocol (MCP) server for studysearch.
//
// The server exposes four tools to MCP clients:
//   - search_content: Hybrid semantic and keyword search over course material
//   - ingest_lecture: Ingest a lecture file or a directory of lecture files
//   - get_status: Index statistics and health
//   - rate_limit_status: Embedding budget used in the current minute
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Logs go to stderr so they never interleave with protocol messages on stdout.
//
// # Tool: search_content
//
//	Request:
//	{
//	  "name": "search_content",
//	  "arguments": {
//	    "query": "how do heart valves prevent backflow",
//	    "limit": 10,
//	    "course_ids": ["cardio"],
//	    "content_types": ["chunk", "concept"],
//	    "vector_weight": 0.7
//	  }
//	}
//
// The response is the JSON encoded SearchResponse. When the embedding
// provider or the vector index is unavailable the search still answers from
// keyword matches and metadata.degraded_mode is true. A response carries an
// error object only when every search path failed.
//
// # Tool: ingest_lecture
//
//	Request:
//	{
//	  "name": "ingest_lecture",
//	  "arguments": {
//	    "path": "/srv/courses/cardio/week1.pdf",
//	    "course_id": "cardio"
//	  }
//	}
//
// A directory path ingests every supported file beneath it. Embedding
// failures are reported in the response and do not fail the call. A
// successful ingest clears the search result cache.
//
// # Error Codes
//
//	-32602  Invalid params (includes searcher validation errors)
//	-32603  Internal error
//	-32001  Path not found or unreadable
//	-32002  Another ingest is in progress
//	-32004  Empty query
package mcp
