package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/codexlotus/lotusrag/internal/config"
	"github.com/codexlotus/lotusrag/internal/embeddings"
	"github.com/codexlotus/lotusrag/internal/llm"
	"github.com/codexlotus/lotusrag/internal/project"
	"github.com/codexlotus/lotusrag/internal/search"
	"github.com/codexlotus/lotusrag/internal/store"
	"github.com/codexlotus/lotusrag/internal/ui"
)

var (
	searchAnswer   bool
	searchContent  bool
	searchLimit    int
	searchMinScore float64
	searchJSON     bool
	searchNoSync   bool
)

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search <query> [path]",
	Short: "Find the indexed passages closest to a query",
	Long: `Search a project's index using natural language.

The query is embedded with the configured provider and compared against every
indexed chunk by cosine similarity. Results are listed best first.

Examples:
  # Basic search
  lotusrag search "who betrays the captain"

  # Show the matching passages
  lotusrag search "harbor district" -c

  # Answer the question from the matches (Q&A mode)
  lotusrag search "why does the heist fail" -a

  # Limit results
  lotusrag search "magic system rules" -m 3

  # Filter by minimum similarity score
  lotusrag search "weather" --min-score 0.5`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSearchCmd,
}

func init() {
	searchCmd.Flags().BoolVarP(&searchAnswer, "answer", "a", false, "generate an answer using LLM")
	searchCmd.Flags().BoolVarP(&searchContent, "content", "c", false, "show content snippets in results")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "m", 0, "maximum number of results (default from config)")
	searchCmd.Flags().Float64Var(&searchMinScore, "min-score", 0, "minimum similarity score (default from config)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	searchCmd.Flags().BoolVar(&searchNoSync, "no-sync", false, "skip auto-indexing if the project is not indexed")
}

// askCmd answers a question from the project's notes.
var askCmd = &cobra.Command{
	Use:   "ask <question> [path]",
	Short: "Answer a question using the project's notes as context",
	Long: `Retrieve the passages closest to a question and have the configured LLM
answer from them. Equivalent to 'lotusrag search -a'.

Examples:
  lotusrag ask "what is the name of the lighthouse keeper"`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		searchAnswer = true
		return runSearchCmd(cmd, args)
	},
}

func init() {
	askCmd.Flags().IntVarP(&searchLimit, "limit", "m", 0, "maximum number of passages (default from config)")
	askCmd.Flags().BoolVar(&searchNoSync, "no-sync", false, "skip auto-indexing if the project is not indexed")
}

// newSearcher builds a searcher over st using the configured backend.
func newSearcher(cfg *config.Config, st store.Store, emb embeddings.Service) (*search.Searcher, error) {
	ranker, err := search.NewRanker(cfg.Search.Backend, st)
	if err != nil {
		return nil, err
	}
	return search.New(search.NewEngine(ranker), emb), nil
}

// searchOptions merges the search flags over the configured defaults.
func searchOptions(cmd *cobra.Command, cfg *config.Config) search.Options {
	opts := search.Options{
		Limit:    cfg.Search.Limit,
		MinScore: cfg.Search.MinScore,
	}
	if searchLimit > 0 {
		opts.Limit = searchLimit
	}
	if cmd.Flags().Changed("min-score") {
		opts.MinScore = searchMinScore
	}
	return opts
}

func runSearchCmd(cmd *cobra.Command, args []string) error {
	query := args[0]
	path := "."
	if len(args) > 1 {
		path = args[1]
	}

	root, err := project.ResolveRoot(path)
	if err != nil {
		return err
	}

	cfg := config.Get()
	opts := searchOptions(cmd, cfg)

	log.Debug("Starting search", "query", query, "project", root, "limit", opts.Limit, "backend", cfg.Search.Backend)

	ctx, cancel := signalContext(func(os.Signal) {
		fmt.Println("\nInterrupted")
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

	count, err := st.ChunkCount(ctx, root)
	if err != nil {
		return fmt.Errorf("failed to check index: %w", err)
	}
	if count == 0 {
		if searchNoSync {
			return fmt.Errorf("project '%s' is not indexed. Run 'lotusrag index' first or remove --no-sync", root)
		}
		if err := autoIndex(ctx, st, emb, cfg, root); err != nil {
			return fmt.Errorf("auto-index failed: %w", err)
		}
	}

	searcher, err := newSearcher(cfg, st, emb)
	if err != nil {
		return err
	}

	results, err := searcher.Search(ctx, root, query, opts)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	if searchJSON {
		return outputJSON(results)
	}

	if searchAnswer {
		return runQA(ctx, query, results, cfg)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	displayResults(results, searchContent)
	return nil
}

// displayResults formats and displays search results.
func displayResults(results []store.ScoredChunk, showContent bool) {
	fmt.Printf("Found %d results:\n\n", len(results))

	for i, r := range results {
		fmt.Println(ui.FormatHit(i+1, r.RelativePath, r.Score))

		if showContent && r.Content != "" {
			fmt.Println()
			displayContentHighlighted(r.Content, r.RelativePath)
		}

		fmt.Println()
	}
}

// displayContentHighlighted displays chunk text with syntax highlighting
// chosen from the file name.
func displayContentHighlighted(content, filename string) {
	lexer := lexers.Match(filename)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := styles.Get("dracula")
	if style == nil {
		style = styles.Fallback
	}

	formatter := formatters.Get("terminal16m")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	const maxLines = 15

	if len(lines) <= maxLines {
		displayHighlightedLines(strings.Join(lines, "\n"), 1, lexer, style, formatter)
		return
	}

	// Show first and last few lines
	showLines := maxLines / 2
	displayHighlightedLines(strings.Join(lines[:showLines], "\n"), 1, lexer, style, formatter)
	fmt.Printf("    %s\n", ui.Dim.Render(fmt.Sprintf("    ... (%d lines omitted)", len(lines)-2*showLines)))
	displayHighlightedLines(strings.Join(lines[len(lines)-showLines:], "\n"), len(lines)-showLines+1, lexer, style, formatter)
}

// displayHighlightedLines highlights content and prints it with line
// numbers relative to the chunk.
func displayHighlightedLines(content string, startLine int, lexer chroma.Lexer, style *chroma.Style, formatter chroma.Formatter) {
	iterator, err := lexer.Tokenise(nil, content)
	if err != nil {
		displayPlainLines(content, startLine)
		return
	}

	var buf bytes.Buffer
	if err := formatter.Format(&buf, style, iterator); err != nil {
		displayPlainLines(content, startLine)
		return
	}

	for i, line := range strings.Split(buf.String(), "\n") {
		fmt.Printf("    %s %s\n", ui.LineNum.Render(fmt.Sprintf("%4d│", startLine+i)), line)
	}
}

// displayPlainLines displays content without highlighting (fallback).
func displayPlainLines(content string, startLine int) {
	for i, line := range strings.Split(content, "\n") {
		fmt.Printf("    %s %s\n", ui.LineNum.Render(fmt.Sprintf("%4d│", startLine+i)), truncateLine(line, 80))
	}
}

// truncateLine shortens a line for display.
func truncateLine(line string, maxLen int) string {
	line = strings.ReplaceAll(line, "\t", "    ")
	runes := []rune(line)
	if len(runes) <= maxLen {
		return line
	}
	return string(runes[:maxLen-3]) + "..."
}

// outputJSON writes results as a JSON array.
func outputJSON(results []store.ScoredChunk) error {
	if results == nil {
		results = []store.ScoredChunk{}
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

// runQA generates an answer using the LLM with search results as context.
func runQA(ctx context.Context, query string, results []store.ScoredChunk, cfg *config.Config) error {
	llmService, err := llm.NewService(cfg)
	if err != nil {
		return fmt.Errorf("failed to create LLM service: %w", err)
	}

	qaService := llm.NewQAService(llmService)

	spin := newSpinner("Generating answer")

	contentCh, errCh, sources := qaService.AnswerStream(ctx, query, results, llm.DefaultQAOptions())

	// Collect the whole answer so it can be rendered as markdown
	var answer strings.Builder
	for content := range contentCh {
		answer.WriteString(content)
	}

	spin.Stop()

	if err := <-errCh; err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("answer generation failed: %w", err)
	}

	fmt.Println(ui.Header.Render("Answer"))
	fmt.Println()

	rendered, err := renderMarkdown(answer.String())
	if err != nil {
		fmt.Println(answer.String())
	} else {
		fmt.Print(rendered)
	}

	if len(sources) > 0 {
		fmt.Println(ui.Dim.Render("Sources:"))
		for i, s := range sources {
			fmt.Printf("  [%d] %s %s\n", i+1, s.RelativePath, ui.FormatScore(s.Score))
		}
	}

	return nil
}

// renderMarkdown renders markdown content using glamour.
func renderMarkdown(content string) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", err
	}
	return renderer.Render(content)
}

// autoIndex indexes a project before its first search.
func autoIndex(ctx context.Context, st store.Store, emb embeddings.Service, cfg *config.Config, root string) error {
	fmt.Printf("Project '%s' is not indexed. Auto-indexing...\n\n", root)

	result, err := indexWithSpinner(ctx, st, emb, cfg, root)
	if err != nil {
		return err
	}

	fmt.Printf("Indexed %d files, %d chunks\n\n", result.Files, result.Chunks)
	return nil
}
