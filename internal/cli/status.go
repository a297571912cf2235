package cli

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/codexlotus/lotusrag/internal/config"
	"github.com/codexlotus/lotusrag/internal/project"
	"github.com/codexlotus/lotusrag/internal/store"
	"github.com/codexlotus/lotusrag/internal/ui"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status [path]",
	Short: "Show index status and statistics",
	Long: `Display information about a project's index including:
- Number of indexed files and chunks
- Embedding dimensions
- Time of the last successful index run

Examples:
  # Show status for the current project
  lotusrag status

  # Show status for another project
  lotusrag status ./novel`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}

	root, err := project.ResolveRoot(path)
	if err != nil {
		return err
	}

	cfg := config.Get()
	log.Debug("Showing status", "project", root)

	st, err := project.Open(cfg, root)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	stats, err := st.Stats(cmd.Context(), root)
	if err != nil {
		return fmt.Errorf("failed to read index stats: %w", err)
	}

	fmt.Println(ui.Header.Render("Index Status"))
	fmt.Println()

	fmt.Printf("%s %s\n", ui.Highlight.Render("Project:"), ui.Bold.Render(root))
	fmt.Printf("  %s %s\n", ui.Dim.Render("Index:"), st.Path())
	fmt.Printf("  %s %d files, %d chunks\n", ui.Dim.Render("Indexed:"), stats.FileCount, stats.ChunkCount)
	fmt.Printf("  %s %d\n", ui.Dim.Render("Dimensions:"), stats.Dimensions)

	if stats.LastRun != nil {
		fmt.Printf("  %s %s\n", ui.Dim.Render("Updated:"), ui.FormatTime(stats.LastRun.IndexedAt))
		fmt.Printf("  %s %s\n", ui.Dim.Render("Run:"), stats.LastRun.RunID)
	} else {
		fmt.Printf("  %s %s\n", ui.Dim.Render("Updated:"), "never")
	}

	fmt.Printf("  %s %s\n", ui.Dim.Render("Health:"), healthStatus(stats))

	fmt.Println()
	fmt.Println(ui.Dim.Render("Configuration:"))
	fmt.Printf("  Embedding Provider: %s\n", cfg.Embeddings.Provider)
	fmt.Printf("  Search Backend: %s\n", cfg.Search.Backend)
	fmt.Printf("  Chunker: %s\n", cfg.Indexing.Chunker)

	return nil
}

// healthStatus returns a health indicator based on stats.
func healthStatus(stats *store.ProjectStats) string {
	if !stats.IsIndexed {
		return ui.Warning.Render("not indexed (run 'lotusrag index')")
	}
	if stats.FileCount > 0 && stats.ChunkCount < stats.FileCount {
		return ui.Warning.Render("fewer chunks than files (re-index may be needed)")
	}
	return ui.Success.Render("healthy")
}
