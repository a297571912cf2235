package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/codexlotus/lotusrag/internal/config"
	"github.com/codexlotus/lotusrag/internal/embeddings"
	"github.com/codexlotus/lotusrag/internal/fs"
	"github.com/codexlotus/lotusrag/internal/indexer"
	"github.com/codexlotus/lotusrag/internal/project"
	"github.com/codexlotus/lotusrag/internal/store"
	"github.com/codexlotus/lotusrag/internal/ui"
)

var (
	indexDryRun     bool
	indexChunker    string
	indexExtensions []string
	indexIgnore     []string
)

// indexCmd represents the index command
var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index a project's notes for retrieval",
	Long: `Index the markdown files of a project (default: current directory).

This command will:
1. Discover the project's notes, honoring .gitignore
2. Split them into chunks
3. Embed every chunk in one batch
4. Replace the project's index in a single transaction

A failed run leaves the previous index untouched.

Examples:
  # Index current directory
  lotusrag index

  # Index another project
  lotusrag index ./novel

  # Split long notes at headings
  lotusrag index --chunker paragraph

  # Preview what would be indexed
  lotusrag index --dry-run`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVarP(&indexDryRun, "dry-run", "d", false, "preview without indexing")
	indexCmd.Flags().StringVar(&indexChunker, "chunker", "", "chunking strategy: whole or paragraph")
	indexCmd.Flags().StringSliceVarP(&indexExtensions, "ext", "e", nil, "file extensions to include (e.g., .md, .txt)")
	indexCmd.Flags().StringSliceVarP(&indexIgnore, "ignore", "i", nil, "additional patterns to ignore")
}

// indexConfig applies the index flags to a copy of cfg.
func indexConfig(cfg *config.Config) *config.Config {
	out := *cfg
	if indexChunker != "" {
		out.Indexing.Chunker = indexChunker
	}
	if len(indexExtensions) > 0 {
		out.Indexing.Extensions = indexExtensions
	}
	out.Ignore = append(append([]string(nil), cfg.Ignore...), indexIgnore...)
	return &out
}

func runIndex(cmd *cobra.Command, args []string) error {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}

	root, err := project.ResolveRoot(path)
	if err != nil {
		return err
	}

	cfg := indexConfig(config.Get())

	log.Debug("Starting index", "path", root, "chunker", cfg.Indexing.Chunker, "dry-run", indexDryRun)

	if indexDryRun {
		return runDryRun(root, cfg)
	}

	ctx, cancel := signalContext(func(os.Signal) {
		fmt.Println("\nInterrupted, cleaning up...")
	})
	defer cancel()

	st, err := project.Open(cfg, root)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	emb, err := embeddings.NewService(cfg)
	if err != nil {
		return fmt.Errorf("failed to create embedding service: %w", err)
	}

	fmt.Println(ui.Header.Render("Indexing " + root))
	fmt.Printf("Index:    %s\n", st.Path())
	fmt.Printf("Provider: %s (%s)\n", cfg.Embeddings.Provider, emb.ModelName())
	fmt.Println()

	result, err := indexWithSpinner(ctx, st, emb, cfg, root)
	if err != nil {
		if ctx.Err() != nil {
			fmt.Println(ui.Warning.Render("Indexing cancelled, previous index kept"))
			return nil
		}
		return fmt.Errorf("indexing failed: %w", err)
	}

	fmt.Println(ui.Success.Render("Indexing complete!"))
	fmt.Println()
	fmt.Printf("  Files:      %d\n", result.Files)
	fmt.Printf("  Chunks:     %d\n", result.Chunks)
	fmt.Printf("  Dimensions: %d\n", result.Dimensions)
	fmt.Printf("  Duration:   %s\n", result.Duration.Round(time.Millisecond))

	return nil
}

// indexWithSpinner runs a full index of root, showing the current phase.
func indexWithSpinner(ctx context.Context, st store.Store, emb embeddings.Service, cfg *config.Config, root string) (*indexer.Result, error) {
	spin := newSpinner("Discovering notes")
	idx := indexer.New(st, emb, cfg, indexer.WithProgress(func(p indexer.Progress) {
		spin.SetMessage(phaseMessage(p))
	}))

	result, err := idx.IndexDirectory(ctx, root)
	spin.Stop()
	return result, err
}

// phaseMessage describes an indexing phase for the spinner.
func phaseMessage(p indexer.Progress) string {
	switch p.Phase {
	case indexer.PhaseDiscover:
		return "Discovering notes"
	case indexer.PhaseChunk:
		return fmt.Sprintf("Chunking %d files", p.TotalFiles)
	case indexer.PhaseEmbed:
		return fmt.Sprintf("Embedding %d chunks", p.TotalChunks)
	case indexer.PhaseStore:
		return fmt.Sprintf("Writing %d chunks", p.TotalChunks)
	default:
		return "Finishing"
	}
}

// runDryRun shows what would be indexed without actually indexing.
func runDryRun(root string, cfg *config.Config) error {
	fmt.Println(ui.Header.Render("Dry Run - Preview"))
	fmt.Printf("Path: %s\n\n", root)

	walker, err := fs.NewFileWalker(fs.WalkOptions{
		Root:           root,
		Include:        fs.IncludePatterns(cfg.Indexing.Extensions),
		MaxFileSize:    int64(cfg.Indexing.MaxFileSize),
		MaxFileCount:   cfg.Indexing.MaxFileCount,
		IgnorePatterns: cfg.Ignore,
		UseGitignore:   true,
	})
	if err != nil {
		return fmt.Errorf("failed to create file walker: %w", err)
	}

	var files []fs.FileInfo
	if err := walker.Walk(func(fi fs.FileInfo) error {
		files = append(files, fi)
		return nil
	}); err != nil {
		return fmt.Errorf("failed to walk directory: %w", err)
	}

	stats := walker.Stats()

	fmt.Printf("Files to index: %d\n", len(files))
	fmt.Printf("Total size:     %s\n", ui.FormatBytes(stats.TotalBytes))
	fmt.Printf("Skipped:        %d files, %d directories\n", stats.FilesSkipped, stats.DirsSkipped)
	fmt.Printf("Chunker:        %s\n", cfg.Indexing.Chunker)

	if len(files) > 0 {
		fmt.Println("\nFirst 10 files:")
		for i, f := range files {
			if i >= 10 {
				fmt.Printf("  ... and %d more\n", len(files)-10)
				break
			}
			fmt.Printf("  %s (%s)\n", f.RelPath, ui.FormatBytes(f.Size))
		}
	}

	return nil
}

// filesCmd lists the files in a project's index.
var filesCmd = &cobra.Command{
	Use:   "files [path]",
	Short: "List the indexed files of a project",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runFiles,
}

func runFiles(cmd *cobra.Command, args []string) error {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}

	root, err := project.ResolveRoot(path)
	if err != nil {
		return err
	}

	cfg := config.Get()
	st, err := project.Open(cfg, root)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	files, err := st.ListFiles(cmd.Context(), root)
	if err != nil {
		return fmt.Errorf("failed to list files: %w", err)
	}

	if len(files) == 0 {
		fmt.Println("No indexed files found.")
		fmt.Println("\nRun 'lotusrag index' to create the index.")
		return nil
	}

	fmt.Println(ui.Header.Render("Indexed Files"))
	fmt.Println()

	for _, f := range files {
		fmt.Printf("%s %s\n", ui.FilePath.Render(f.RelativePath), ui.Dim.Render(fmt.Sprintf("%d chunks, %s", f.ChunkCount, f.ContentHash)))
	}
	fmt.Println()
	fmt.Println(ui.Dim.Render(fmt.Sprintf("Total: %d files", len(files))))

	return nil
}

var clearYes bool

// clearCmd empties a project's index.
var clearCmd = &cobra.Command{
	Use:   "clear [path]",
	Short: "Remove every indexed chunk of a project",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runClear,
}

func init() {
	clearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "do not ask for confirmation")
}

func runClear(cmd *cobra.Command, args []string) error {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}

	root, err := project.ResolveRoot(path)
	if err != nil {
		return err
	}

	if !clearYes {
		fmt.Printf("Clear the index of '%s'? [y/N]: ", root)
		var confirm string
		_, _ = fmt.Scanln(&confirm)
		if strings.ToLower(confirm) != "y" {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	cfg := config.Get()
	st, err := project.Open(cfg, root)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	// An empty replacement removes every file and chunk of the project
	if err := st.ReplaceProjectIndex(cmd.Context(), root, nil); err != nil {
		return fmt.Errorf("failed to clear index: %w", err)
	}

	fmt.Println(ui.Success.Render("Index cleared."))
	return nil
}
