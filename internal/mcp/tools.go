package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codexlotus/lotusrag/internal/config"
	"github.com/codexlotus/lotusrag/internal/embeddings"
	"github.com/codexlotus/lotusrag/internal/indexer"
	"github.com/codexlotus/lotusrag/internal/project"
	"github.com/codexlotus/lotusrag/internal/search"
	"github.com/codexlotus/lotusrag/internal/store"
)

// maxSnippetRunes bounds the chunk text returned per hit.
const maxSnippetRunes = 1000

// InitIndexArgs defines the input parameters for initialize_project_index.
type InitIndexArgs struct {
	ProjectRoot string `json:"project_root,omitempty" jsonschema:"Absolute path of the project to index (default: the server's working directory)"`
}

// RagQueryArgs defines the input parameters for rag_query.
type RagQueryArgs struct {
	Query       string `json:"query" jsonschema:"Natural language question or topic to look up"`
	ProjectRoot string `json:"project_root,omitempty" jsonschema:"Absolute path of an indexed project (default: the server's working directory)"`
	Limit       int    `json:"limit,omitempty" jsonschema:"Maximum number of hits to return (default 5)"`
}

// IndexStatsArgs defines the input parameters for get_index_stats.
type IndexStatsArgs struct {
	ProjectRoot string `json:"project_root,omitempty" jsonschema:"Absolute path of the project (default: the server's working directory)"`
}

// RagHit is one retrieved chunk as reported to MCP clients.
type RagHit struct {
	FilePath string  `json:"file_path"`
	Snippet  string  `json:"snippet"`
	Score    float32 `json:"score"`
}

// IndexStats is the get_index_stats payload.
type IndexStats struct {
	ProjectRoot   string     `json:"project_root"`
	ChunkCount    int        `json:"chunk_count"`
	FileCount     int        `json:"file_count"`
	Dimensions    int        `json:"dimensions"`
	IsIndexed     bool       `json:"is_indexed"`
	LastIndexedAt *time.Time `json:"last_indexed_at,omitempty"`
}

// IndexHandler holds the dependencies for initialize_project_index.
type IndexHandler struct {
	Projects    *project.Registry
	Embedder    embeddings.Service
	Config      *config.Config
	DefaultRoot string
}

// Handle processes an initialize_project_index request.
func (h *IndexHandler) Handle(ctx context.Context, req *mcpsdk.CallToolRequest, args InitIndexArgs) (*mcpsdk.CallToolResult, any, error) {
	root, st, err := h.Projects.Store(orDefault(args.ProjectRoot, h.DefaultRoot))
	if err != nil {
		return errorResult("Error: %v", err), nil, nil
	}

	log.Info("initialize_project_index started", "project", root)

	result, err := indexer.New(st, h.Embedder, h.Config).IndexDirectory(ctx, root)
	if err != nil {
		log.Error("initialize_project_index failed", "project", root, "error", err)
		return errorResult("Error: indexing failed: %v", err), nil, nil
	}

	return textResult(fmt.Sprintf("Indexed %s: %d files, %d chunks in %s",
		root, result.Files, result.Chunks, result.Duration.Round(time.Millisecond))), nil, nil
}

// QueryHandler holds the dependencies for rag_query.
type QueryHandler struct {
	Projects    *project.Registry
	Embedder    embeddings.Service
	Config      *config.Config
	DefaultRoot string
}

// Handle processes a rag_query request.
func (h *QueryHandler) Handle(ctx context.Context, req *mcpsdk.CallToolRequest, args RagQueryArgs) (*mcpsdk.CallToolResult, any, error) {
	if args.Query == "" {
		log.Warn("rag_query called with empty query")
		return errorResult("Error: query parameter is required"), nil, nil
	}

	root, st, err := h.Projects.Lookup(orDefault(args.ProjectRoot, h.DefaultRoot))
	switch {
	case errors.Is(err, store.ErrStorageUnavailable):
		log.Warn("rag_query index unavailable, answering without context", "project", args.ProjectRoot, "error", err)
		return jsonResult([]RagHit{})
	case err != nil:
		return errorResult("Error: %v", err), nil, nil
	case st == nil:
		log.Info("rag_query on a project that was never indexed", "project", root)
		return jsonResult([]RagHit{})
	}

	ranker, err := search.NewRanker(h.Config.Search.Backend, st)
	if err != nil {
		return errorResult("Error: %v", err), nil, nil
	}

	limit := args.Limit
	if limit <= 0 {
		limit = h.Config.Search.Limit
	}

	searcher := search.New(search.NewEngine(ranker), h.Embedder)
	results, err := searcher.Search(ctx, root, args.Query, search.Options{
		Limit:    limit,
		MinScore: h.Config.Search.MinScore,
	})
	if err != nil {
		log.Error("rag_query failed", "project", root, "error", err)
		return errorResult("Error: search failed: %v", err), nil, nil
	}

	hits := make([]RagHit, len(results))
	for i, r := range results {
		hits[i] = RagHit{
			FilePath: r.RelativePath,
			Snippet:  snippet(r.Content, maxSnippetRunes),
			Score:    r.Score,
		}
	}

	log.Info("rag_query", "project", root, "query", args.Query, "hits", len(hits))
	return jsonResult(hits)
}

// StatsHandler holds the dependencies for get_index_stats.
type StatsHandler struct {
	Projects    *project.Registry
	DefaultRoot string
}

// Handle processes a get_index_stats request.
func (h *StatsHandler) Handle(ctx context.Context, req *mcpsdk.CallToolRequest, args IndexStatsArgs) (*mcpsdk.CallToolResult, any, error) {
	root, st, err := h.Projects.Lookup(orDefault(args.ProjectRoot, h.DefaultRoot))
	if err != nil {
		return errorResult("Error: %v", err), nil, nil
	}
	if st == nil {
		return jsonResult(IndexStats{ProjectRoot: root})
	}

	stats, err := st.Stats(ctx, root)
	if err != nil {
		return errorResult("Error: %v", err), nil, nil
	}

	out := IndexStats{
		ProjectRoot: root,
		ChunkCount:  stats.ChunkCount,
		FileCount:   stats.FileCount,
		Dimensions:  stats.Dimensions,
		IsIndexed:   stats.IsIndexed,
	}
	if stats.LastRun != nil {
		at := stats.LastRun.IndexedAt
		out.LastIndexedAt = &at
	}
	return jsonResult(out)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// snippet shortens s to at most n runes.
func snippet(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

func textResult(text string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
	}
}

func errorResult(format string, args ...any) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

func jsonResult(v any) (*mcpsdk.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return textResult(string(data)), nil, nil
}
