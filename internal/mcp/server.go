// Package mcp exposes project indexing and retrieval as Model Context
// Protocol tools over stdio.
package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codexlotus/lotusrag/internal/config"
	"github.com/codexlotus/lotusrag/internal/embeddings"
	"github.com/codexlotus/lotusrag/internal/project"
)

// ServerName is the name this server reports to clients.
const ServerName = "lotusrag"

// Tool names.
const (
	ToolInitializeProjectIndex = "initialize_project_index"
	ToolRagQuery               = "rag_query"
	ToolGetIndexStats          = "get_index_stats"
)

const instructions = `This server retrieves passages from a project's markdown notes by meaning rather than exact words.

- Call initialize_project_index once per project, and again after large edits.
- Use rag_query to fetch the passages most related to a question before answering it.
- Use get_index_stats to check whether a project has been indexed.`

// Server is the MCP server for lotusrag.
type Server struct {
	server   *mcpsdk.Server
	projects *project.Registry
}

// NewServer creates the MCP server and registers its tools. Projects that
// are not named in a call default to root.
func NewServer(cfg *config.Config, emb embeddings.Service, root, version string) *Server {
	projects := project.NewRegistry(cfg)

	s := mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    ServerName,
			Version: version,
		},
		&mcpsdk.ServerOptions{
			Instructions: instructions,
		},
	)

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        ToolInitializeProjectIndex,
		Description: "Index every markdown file of a project for retrieval. Replaces any previous index of that project.",
	}, (&IndexHandler{Projects: projects, Embedder: emb, Config: cfg, DefaultRoot: root}).Handle)

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        ToolRagQuery,
		Description: "Find the indexed passages most similar to a query. Returns JSON hits with file_path, snippet and score, best first.",
	}, (&QueryHandler{Projects: projects, Embedder: emb, Config: cfg, DefaultRoot: root}).Handle)

	mcpsdk.AddTool(s, &mcpsdk.Tool{
		Name:        ToolGetIndexStats,
		Description: "Report chunk_count and is_indexed for a project, with file count and last index time.",
	}, (&StatsHandler{Projects: projects, DefaultRoot: root}).Handle)

	return &Server{server: s, projects: projects}
}

// Run serves requests on stdin/stdout until the client disconnects or ctx
// is cancelled.
func (s *Server) Run(ctx context.Context) error {
	log.Info("MCP server starting")
	defer func() {
		if err := s.projects.Close(); err != nil {
			log.Warn("Failed to close project stores", "error", err)
		}
	}()

	err := s.server.Run(ctx, &mcpsdk.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp server: %w", err)
	}

	log.Info("MCP server stopped")
	return nil
}
