package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/codexlotus/lotusrag/internal/config"
	"github.com/codexlotus/lotusrag/internal/embeddings"
	"github.com/codexlotus/lotusrag/internal/indexer"
	"github.com/codexlotus/lotusrag/internal/mcp"
	"github.com/codexlotus/lotusrag/internal/project"
	"github.com/codexlotus/lotusrag/internal/ui"
)

var (
	mcpWatch bool
)

// mcpCmd represents the MCP server command.
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for AI agent integration",
	Long: `Start a Model Context Protocol (MCP) server over stdin/stdout.

The server provides three tools:
  - initialize_project_index: Index a project's notes
  - rag_query: Retrieve the passages closest to a query
  - get_index_stats: Report whether a project is indexed

Tools act on the working directory unless a project_root is given. With
--watch, the working directory is also re-indexed when its notes change.

This command is typically launched by an AI agent, not run directly.`,
	RunE: runMcpCmd,
}

func init() {
	mcpCmd.Flags().BoolVar(&mcpWatch, "watch", false, "re-index the working directory when notes change")
}

func runMcpCmd(cmd *cobra.Command, args []string) error {
	// stdout carries the protocol
	ui.SetOutput(os.Stderr)

	cfg := config.Get()

	ctx, cancel := signalContext(func(sig os.Signal) {
		log.Info("Received signal, shutting down", "signal", sig)
	})
	defer cancel()

	root, err := project.ResolveRoot(".")
	if err != nil {
		return err
	}

	emb, err := embeddings.NewService(cfg)
	if err != nil {
		return fmt.Errorf("failed to create embedding service: %w", err)
	}

	if mcpWatch {
		go startBackgroundWatcher(ctx, cfg, emb, root)
	}

	server := mcp.NewServer(cfg, emb, root, version)
	return server.Run(ctx)
}

// startBackgroundWatcher keeps the index of root current while the server
// runs.
func startBackgroundWatcher(ctx context.Context, cfg *config.Config, emb embeddings.Service, root string) {
	// Let the server finish its handshake first
	select {
	case <-ctx.Done():
		return
	case <-time.After(2 * time.Second):
	}

	st, err := project.Open(cfg, root)
	if err != nil {
		log.Error("Failed to open store for watcher", "error", err)
		return
	}
	defer st.Close()

	log.Info("Starting background file watcher", "path", root)

	w, err := newProjectWatcher(cfg, root, indexer.New(st, emb, cfg), func(event, path string) {
		log.Debug("Background watcher event", "event", event, "path", path)
	})
	if err != nil {
		log.Error("Failed to create watcher", "error", err)
		return
	}

	if err := w.Start(ctx); err != nil && ctx.Err() == nil {
		log.Error("Watcher error", "error", err)
	}
}
