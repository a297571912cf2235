package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/codexlotus/lotusrag/internal/config"
	"github.com/codexlotus/lotusrag/internal/embeddings"
	"github.com/codexlotus/lotusrag/internal/fs"
	"github.com/codexlotus/lotusrag/internal/indexer"
	"github.com/codexlotus/lotusrag/internal/project"
	"github.com/codexlotus/lotusrag/internal/ui"
	"github.com/codexlotus/lotusrag/internal/watcher"
)

var (
	watchNoInitial bool
)

// watchCmd represents the watch command.
var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Watch a project and re-index when notes change",
	Long: `Watch a project for changes to its notes and rebuild the index once the
changes settle.

This command first performs an initial index (unless --no-initial is given),
then re-indexes the whole project after each burst of edits. A change that
arrives while a run is in progress is skipped.

Examples:
  # Watch the current project
  lotusrag watch

  # Watch another project
  lotusrag watch ./novel

  # Skip the initial index (assumes already indexed)
  lotusrag watch --no-initial`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatchCmd,
}

func init() {
	watchCmd.Flags().BoolVar(&watchNoInitial, "no-initial", false, "skip initial index")
}

func runWatchCmd(cmd *cobra.Command, args []string) error {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}

	root, err := project.ResolveRoot(path)
	if err != nil {
		return err
	}

	cfg := config.Get()

	ctx, cancel := signalContext(func(os.Signal) {
		fmt.Println("\nShutting down...")
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

	if !watchNoInitial {
		fmt.Println(ui.Header.Render("Initial Index"))
		fmt.Printf("Path: %s\n", root)
		fmt.Printf("Provider: %s (%s)\n\n", cfg.Embeddings.Provider, emb.ModelName())

		result, err := indexWithSpinner(ctx, st, emb, cfg, root)
		if err != nil {
			if ctx.Err() != nil {
				return nil // User cancelled
			}
			return fmt.Errorf("initial index failed: %w", err)
		}

		fmt.Printf("Initial index complete: %d files, %d chunks\n\n", result.Files, result.Chunks)
	}

	w, err := newProjectWatcher(cfg, root, indexer.New(st, emb, cfg), func(event, path string) {
		switch event {
		case watcher.EventIndexed:
			fmt.Println(ui.Success.Render("Re-indexed " + path))
		case watcher.EventSkipped:
			fmt.Println(ui.Warning.Render("Index run in progress, change skipped"))
		case watcher.EventFailed:
			fmt.Println(ui.Error.Render("Re-index failed, previous index kept"))
		default:
			log.Debug("File event", "event", event, "path", path)
		}
	})
	if err != nil {
		return err
	}

	fmt.Println(ui.Header.Render("Watching for Changes"))
	fmt.Printf("Directory: %s\n", root)
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()

	if err := w.Start(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// newProjectWatcher creates a watcher for root configured from cfg.
func newProjectWatcher(cfg *config.Config, root string, r watcher.Reindexer, onEvent func(event, path string)) (*watcher.Watcher, error) {
	w, err := watcher.New(
		root,
		r,
		watcher.WithDebounceTime(cfg.Watch.Debounce),
		watcher.WithInclude(fs.IncludePatterns(cfg.Indexing.Extensions)),
		watcher.WithSkipDirs(cfg.Storage.DirName),
		watcher.WithEventCallback(onEvent),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	return w, nil
}
