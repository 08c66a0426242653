package mcp

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/dshills/studysearch/internal/embedservice"
	"github.com/dshills/studysearch/internal/indexer"
	"github.com/dshills/studysearch/internal/searcher"
	"github.com/dshills/studysearch/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "studysearch"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Deps are the services the tools call into. All are required.
type Deps struct {
	Storage    storage.Storage
	Indexer    *indexer.Indexer
	Searcher   *searcher.Searcher
	Embeddings *embedservice.Service
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp        *server.MCPServer
	storage    storage.Storage
	indexer    *indexer.Indexer
	searcher   *searcher.Searcher
	embeddings *embedservice.Service
	logger     zerolog.Logger
}

// NewServer creates a new MCP server instance. The server does not own its
// dependencies; the caller closes them.
func NewServer(deps Deps, logger zerolog.Logger) (*Server, error) {
	if deps.Storage == nil || deps.Indexer == nil || deps.Searcher == nil || deps.Embeddings == nil {
		return nil, errors.New("mcp: storage, indexer, searcher and embeddings are required")
	}

	s := &Server{
		mcp:        server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		storage:    deps.Storage,
		indexer:    deps.Indexer,
		searcher:   deps.Searcher,
		embeddings: deps.Embeddings,
		logger:     logger.With().Str("component", "mcp").Logger(),
	}
	s.registerTools()

	return s, nil
}

// Serve runs the MCP protocol on stdio until ctx is canceled or stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	return s.Listen(ctx, os.Stdin, os.Stdout)
}

// Listen runs the MCP protocol over the given streams.
func (s *Server) Listen(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info().Str("version", ServerVersion).Msg("MCP server listening on stdio")

	err := server.NewStdioServer(s.mcp).Listen(ctx, in, out)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(searchContentTool(), s.handleSearchContent)
	s.mcp.AddTool(ingestLectureTool(), s.handleIngestLecture)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	s.mcp.AddTool(rateLimitStatusTool(), s.handleRateLimitStatus)
}
