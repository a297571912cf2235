// Package cli implements the command-line interface for lotusrag.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/codexlotus/lotusrag/internal/config"
	"github.com/codexlotus/lotusrag/internal/ui"
)

var (
	// Version information set at build time
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile string
	debug   bool
)

// SetVersionInfo sets the version information from build flags.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "lotusrag [query] [path]",
	Short: "Local retrieval over a project's notes",
	Long: `lotusrag keeps a local vector index of a project's markdown notes.

Each project gets its own SQLite index inside the project directory. Notes are
embedded with Ollama or OpenAI, retrieved by cosine similarity, and can be fed
to an LLM to answer questions about the project.

Examples:
  # Index the current project
  lotusrag index

  # Find the passages closest to a question
  lotusrag "where does the heist take place"

  # Answer the question from the retrieved passages
  lotusrag "where does the heist take place" -a

  # Search another project
  lotusrag "chapter outline" ./novel`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		return runSearch(cmd, args)
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if debug {
			ui.SetDebug(true)
			log.Debug("Debug logging enabled")
		}

		if err := config.Load(cfgFile); err != nil {
			log.Warn("Failed to load config", "error", err)
		}

		return nil
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	ui.InitLogger()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/lotusrag/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(filesCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(mcpCmd)
}

// versionCmd shows version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("lotusrag %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

// signalContext returns a context cancelled on SIGINT or SIGTERM. onSignal
// runs once when the first signal arrives.
func signalContext(onSignal func(os.Signal)) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			if onSignal != nil {
				onSignal(sig)
			}
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// runSearch is a convenience wrapper that delegates to the search command
func runSearch(cmd *cobra.Command, args []string) error {
	if answer, _ := cmd.Flags().GetBool("answer"); answer {
		searchAnswer = true
	}
	if content, _ := cmd.Flags().GetBool("content"); content {
		searchContent = true
	}
	if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 {
		searchLimit = limit
	}

	return runSearchCmd(cmd, args)
}

func init() {
	// Add search flags to root command for convenience
	rootCmd.Flags().BoolP("answer", "a", false, "generate an answer using LLM")
	rootCmd.Flags().BoolP("content", "c", false, "show content snippets in results")
	rootCmd.Flags().IntP("limit", "m", 0, "maximum number of results (default from config)")
}
