package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/codexlotus/lotusrag/internal/config"
	"github.com/codexlotus/lotusrag/internal/ui"
)

var (
	configShowPath bool
	configInitDir  string
	configForce    bool
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Display the active configuration and config file locations. API keys are
masked.

Examples:
  # Show current configuration
  lotusrag config

  # Show config file paths
  lotusrag config --path

  # Write a project rc file with the defaults
  lotusrag config init`,
	RunE: runConfig,
}

// configInitCmd writes a config file holding the current settings.
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the current settings",
	RunE:  runConfigInit,
}

func init() {
	configCmd.Flags().BoolVar(&configShowPath, "path", false, "show config file paths")

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
	configInitCmd.Flags().StringVar(&configInitDir, "dir", ".", "directory to write "+config.RCFileName+" into")
	configCmd.AddCommand(configInitCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	if configShowPath {
		active := config.ConfigFilePath()
		if active == "" {
			active = "(none, using defaults)"
		}

		fmt.Println(ui.SectionTitle.Render("Configuration Paths"))
		fmt.Println()
		fmt.Printf("Global config: %s\n", config.GlobalConfigPath())
		fmt.Printf("Local config:  %s (searched from cwd upward)\n", config.RCFileName)
		fmt.Printf("Active config: %s\n", active)
		if cfg.Storage.Path != "" {
			fmt.Printf("Index:         %s\n", cfg.Storage.Path)
		} else {
			fmt.Printf("Index:         <project>/%s/index.db\n", cfg.Storage.DirName)
		}
		return nil
	}

	data, err := cfg.Redacted().Marshal()
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}

	fmt.Println(ui.SectionTitle.Render("Current Configuration"))
	fmt.Println()
	fmt.Print(string(data))
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := filepath.Join(configInitDir, config.RCFileName)

	if _, err := os.Stat(path); err == nil && !configForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	// Keys come from the environment, never from the written file
	cfg := *config.Get()
	cfg.Embeddings.OpenAI.APIKey = ""
	cfg.LLM.OpenAI.APIKey = ""
	cfg.LLM.Gemini.APIKey = ""

	if err := config.Save(path, &cfg); err != nil {
		return err
	}

	fmt.Println(ui.Success.Render("Wrote " + path))
	return nil
}
