package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/studysearch/pkg/types"
)

// searchContentTool returns the tool definition for search_content
func searchContentTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_content",
		Description: "Search course material with a natural language query. Combines semantic and keyword matching and degrades to keyword-only search when embeddings are unavailable.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural language search query",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Page size",
					"enum":        []int{10, 25, 50},
					"default":     10,
				},
				"offset": map[string]interface{}{
					"type":        "integer",
					"description": "Number of ranked results to skip",
					"minimum":     0,
					"default":     0,
				},
				"course_ids": map[string]interface{}{
					"type":        "array",
					"description": "Restrict results to these courses",
					"items":       map[string]interface{}{"type": "string"},
				},
				"category": map[string]interface{}{
					"type":        "string",
					"description": "Restrict results to lectures in this category",
				},
				"date_from": map[string]interface{}{
					"type":        "string",
					"description": "Earliest lecture publish date (RFC 3339 or YYYY-MM-DD)",
				},
				"date_to": map[string]interface{}{
					"type":        "string",
					"description": "Latest lecture publish date (RFC 3339 or YYYY-MM-DD)",
				},
				"content_types": map[string]interface{}{
					"type":        "array",
					"description": "Result kinds to search (default: all)",
					"items": map[string]interface{}{
						"type": "string",
						"enum": []types.ResultKind{types.KindChunk, types.KindLecture, types.KindConcept},
					},
				},
				"min_similarity": map[string]interface{}{
					"type":        "number",
					"description": "Minimum semantic similarity (0.0-1.0)",
					"minimum":     0.0,
					"maximum":     1.0,
				},
				"vector_weight": map[string]interface{}{
					"type":        "number",
					"description": "Weight of semantic similarity in hybrid ranking (0.0-1.0)",
					"minimum":     0.0,
					"maximum":     1.0,
				},
				"include_keyword_boost": map[string]interface{}{
					"type":        "boolean",
					"description": "If false, rank by semantic similarity alone",
					"default":     true,
				},
			},
			Required: []string{"query"},
		},
	}
}

// ingestLectureTool returns the tool definition for ingest_lecture
func ingestLectureTool() mcp.Tool {
	return mcp.Tool{
		Name:        "ingest_lecture",
		Description: "Ingest a lecture file (.txt, .md, .pdf) or a directory of lecture files into the search index",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to a lecture file or a directory of lecture files",
				},
				"course_id": map[string]interface{}{
					"type":        "string",
					"description": "Course the lecture belongs to (overrides front matter)",
				},
				"course_name": map[string]interface{}{
					"type":        "string",
					"description": "Display name of the course",
				},
				"category": map[string]interface{}{
					"type":        "string",
					"description": "Lecture category",
				},
				"lecture_id": map[string]interface{}{
					"type":        "string",
					"description": "Lecture id (files only; default derived from the path)",
				},
				"title": map[string]interface{}{
					"type":        "string",
					"description": "Lecture title (files only; default from front matter or file name)",
				},
			},
			Required: []string{"path"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report index statistics and health",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// rateLimitStatusTool returns the tool definition for rate_limit_status
func rateLimitStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "rate_limit_status",
		Description: "Report embedding requests used and available in the current one-minute window",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
