// Package config handles configuration loading for lotusrag.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the complete lotusrag configuration.
type Config struct {
	Embeddings EmbeddingsConfig `mapstructure:"embeddings" yaml:"embeddings"`
	Storage    StorageConfig    `mapstructure:"storage" yaml:"storage"`
	Indexing   IndexingConfig   `mapstructure:"indexing" yaml:"indexing"`
	Search     SearchConfig     `mapstructure:"search" yaml:"search"`
	LLM        LLMConfig        `mapstructure:"llm" yaml:"llm"`
	Watch      WatchConfig      `mapstructure:"watch" yaml:"watch"`
	Ignore     []string         `mapstructure:"ignore" yaml:"ignore"`
}

// EmbeddingsConfig configures the embedding service.
type EmbeddingsConfig struct {
	Provider  string            `mapstructure:"provider" yaml:"provider"`
	BatchSize int               `mapstructure:"batch_size" yaml:"batch_size"`
	Ollama    OllamaEmbedConfig `mapstructure:"ollama" yaml:"ollama"`
	OpenAI    OpenAIEmbedConfig `mapstructure:"openai" yaml:"openai"`
}

// OllamaEmbedConfig configures Ollama embeddings.
type OllamaEmbedConfig struct {
	URL   string `mapstructure:"url" yaml:"url"`
	Model string `mapstructure:"model" yaml:"model"`
}

// OpenAIEmbedConfig configures OpenAI embeddings.
type OpenAIEmbedConfig struct {
	Model      string `mapstructure:"model" yaml:"model"`
	BaseURL    string `mapstructure:"base_url" yaml:"base_url,omitempty"`
	APIKey     string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	Dimensions int    `mapstructure:"dimensions" yaml:"dimensions,omitempty"`
}

// StorageConfig configures where each project's index lives.
type StorageConfig struct {
	// DirName is created inside the project root and holds index.db.
	DirName string `mapstructure:"dir_name" yaml:"dir_name"`
	// Path, when set, replaces the per-project location with one file.
	Path string `mapstructure:"path" yaml:"path,omitempty"`
	// DuplicatePaths is one of chunks, last-wins, reject.
	DuplicatePaths string `mapstructure:"duplicate_paths" yaml:"duplicate_paths"`
}

// IndexingConfig configures discovery and chunking.
type IndexingConfig struct {
	Extensions   []string `mapstructure:"extensions" yaml:"extensions"`
	MaxFileSize  int      `mapstructure:"max_file_size" yaml:"max_file_size"`
	MaxFileCount int      `mapstructure:"max_file_count" yaml:"max_file_count"`
	Chunker      string   `mapstructure:"chunker" yaml:"chunker"`
	ChunkSize    int      `mapstructure:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap int      `mapstructure:"chunk_overlap" yaml:"chunk_overlap"`
}

// SearchConfig configures retrieval.
type SearchConfig struct {
	Backend  string  `mapstructure:"backend" yaml:"backend"`
	Limit    int     `mapstructure:"limit" yaml:"limit"`
	MinScore float64 `mapstructure:"min_score" yaml:"min_score"`
}

// LLMConfig configures the chat model used by ask.
type LLMConfig struct {
	Provider string          `mapstructure:"provider" yaml:"provider"`
	Ollama   OllamaLLMConfig `mapstructure:"ollama" yaml:"ollama"`
	OpenAI   OpenAILLMConfig `mapstructure:"openai" yaml:"openai"`
	Gemini   GeminiConfig    `mapstructure:"gemini" yaml:"gemini"`
}

// OllamaLLMConfig configures Ollama LLM.
type OllamaLLMConfig struct {
	URL   string `mapstructure:"url" yaml:"url"`
	Model string `mapstructure:"model" yaml:"model"`
}

// OpenAILLMConfig configures OpenAI LLM.
type OpenAILLMConfig struct {
	Model   string `mapstructure:"model" yaml:"model"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url,omitempty"`
	APIKey  string `mapstructure:"api_key" yaml:"api_key,omitempty"`
}

// GeminiConfig configures Google Gemini chat.
type GeminiConfig struct {
	Model   string `mapstructure:"model" yaml:"model"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	APIKey  string `mapstructure:"api_key" yaml:"api_key,omitempty"`
}

// WatchConfig configures automatic re-indexing.
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

// Global configuration instance
var cfg *Config

// Get returns the current configuration.
func Get() *Config {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Embeddings: EmbeddingsConfig{
			Provider:  DefaultEmbeddingProvider,
			BatchSize: DefaultEmbedBatchSize,
			Ollama: OllamaEmbedConfig{
				URL:   DefaultOllamaURL,
				Model: DefaultOllamaEmbedModel,
			},
			OpenAI: OpenAIEmbedConfig{
				Model: DefaultOpenAIEmbedModel,
			},
		},
		Storage: StorageConfig{
			DirName:        DefaultIndexDirName,
			DuplicatePaths: DefaultDuplicatePaths,
		},
		Indexing: IndexingConfig{
			Extensions:   DefaultExtensions(),
			MaxFileSize:  DefaultMaxFileSize,
			MaxFileCount: DefaultMaxFileCount,
			Chunker:      DefaultChunker,
			ChunkSize:    DefaultChunkSize,
			ChunkOverlap: DefaultChunkOverlap,
		},
		Search: SearchConfig{
			Backend:  DefaultSearchBackend,
			Limit:    DefaultSearchLimit,
			MinScore: DefaultMinScore,
		},
		LLM: LLMConfig{
			Provider: DefaultLLMProvider,
			Ollama: OllamaLLMConfig{
				URL:   DefaultOllamaURL,
				Model: DefaultOllamaLLMModel,
			},
			OpenAI: OpenAILLMConfig{
				Model: DefaultOpenAILLMModel,
			},
			Gemini: GeminiConfig{
				Model:   DefaultGeminiModel,
				BaseURL: DefaultGeminiURL,
			},
		},
		Watch: WatchConfig{
			Debounce: DefaultWatchDebounce,
		},
		Ignore: DefaultIgnorePatterns(),
	}
}

// Load reads configuration from file, .env and environment variables.
func Load(configFile string) error {
	// A missing .env is normal
	_ = godotenv.Load()

	setDefaults()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(DefaultConfigDir())
		viper.AddConfigPath(".")

		if rcPath := findRCFile(); rcPath != "" {
			viper.SetConfigFile(rcPath)
		}
	}

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug("No config file found, using defaults")
	} else {
		log.Debug("Loaded config from", "file", viper.ConfigFileUsed())
	}

	loaded := &Config{}
	if err := viper.Unmarshal(loaded); err != nil {
		return fmt.Errorf("error parsing config: %w", err)
	}

	loadAPIKeysFromEnv(loaded)

	if err := loaded.Validate(); err != nil {
		return err
	}

	cfg = loaded
	return nil
}

// setDefaults sets default values in viper.
func setDefaults() {
	d := DefaultConfig()

	viper.SetDefault("embeddings.provider", d.Embeddings.Provider)
	viper.SetDefault("embeddings.batch_size", d.Embeddings.BatchSize)
	viper.SetDefault("embeddings.ollama.url", d.Embeddings.Ollama.URL)
	viper.SetDefault("embeddings.ollama.model", d.Embeddings.Ollama.Model)
	viper.SetDefault("embeddings.openai.model", d.Embeddings.OpenAI.Model)

	viper.SetDefault("storage.dir_name", d.Storage.DirName)
	viper.SetDefault("storage.path", "")
	viper.SetDefault("storage.duplicate_paths", d.Storage.DuplicatePaths)

	viper.SetDefault("indexing.extensions", d.Indexing.Extensions)
	viper.SetDefault("indexing.max_file_size", d.Indexing.MaxFileSize)
	viper.SetDefault("indexing.max_file_count", d.Indexing.MaxFileCount)
	viper.SetDefault("indexing.chunker", d.Indexing.Chunker)
	viper.SetDefault("indexing.chunk_size", d.Indexing.ChunkSize)
	viper.SetDefault("indexing.chunk_overlap", d.Indexing.ChunkOverlap)

	viper.SetDefault("search.backend", d.Search.Backend)
	viper.SetDefault("search.limit", d.Search.Limit)
	viper.SetDefault("search.min_score", d.Search.MinScore)

	viper.SetDefault("llm.provider", d.LLM.Provider)
	viper.SetDefault("llm.ollama.url", d.LLM.Ollama.URL)
	viper.SetDefault("llm.ollama.model", d.LLM.Ollama.Model)
	viper.SetDefault("llm.openai.model", d.LLM.OpenAI.Model)
	viper.SetDefault("llm.gemini.model", d.LLM.Gemini.Model)
	viper.SetDefault("llm.gemini.base_url", d.LLM.Gemini.BaseURL)

	viper.SetDefault("watch.debounce", d.Watch.Debounce)

	viper.SetDefault("ignore", d.Ignore)
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Search.Backend {
	case "scan", "sqlite-vec":
	default:
		return fmt.Errorf("invalid search.backend %q (want scan or sqlite-vec)", c.Search.Backend)
	}

	switch c.Indexing.Chunker {
	case "whole", "paragraph":
	default:
		return fmt.Errorf("invalid indexing.chunker %q (want whole or paragraph)", c.Indexing.Chunker)
	}

	switch c.Storage.DuplicatePaths {
	case "chunks", "last-wins", "reject":
	default:
		return fmt.Errorf("invalid storage.duplicate_paths %q (want chunks, last-wins or reject)", c.Storage.DuplicatePaths)
	}

	if c.Search.Limit <= 0 {
		return fmt.Errorf("search.limit must be positive, got %d", c.Search.Limit)
	}

	return nil
}

// findRCFile searches for the rc file starting from the current directory.
func findRCFile() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		rcPath := filepath.Join(dir, RCFileName)
		if _, err := os.Stat(rcPath); err == nil {
			return rcPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// loadAPIKeysFromEnv fills API keys from the providers' conventional
// environment variables when the config leaves them empty.
func loadAPIKeysFromEnv(c *Config) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if c.Embeddings.OpenAI.APIKey == "" {
			c.Embeddings.OpenAI.APIKey = key
		}
		if c.LLM.OpenAI.APIKey == "" {
			c.LLM.OpenAI.APIKey = key
		}
	}

	if c.LLM.Gemini.APIKey == "" {
		for _, name := range []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"} {
			if key := os.Getenv(name); key != "" {
				c.LLM.Gemini.APIKey = key
				break
			}
		}
	}
}

// Redacted returns a copy with API keys masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	out.Ignore = append([]string(nil), c.Ignore...)
	out.Indexing.Extensions = append([]string(nil), c.Indexing.Extensions...)
	out.Embeddings.OpenAI.APIKey = mask(c.Embeddings.OpenAI.APIKey)
	out.LLM.OpenAI.APIKey = mask(c.LLM.OpenAI.APIKey)
	out.LLM.Gemini.APIKey = mask(c.LLM.Gemini.APIKey)
	return &out
}

func mask(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Save writes the configuration as YAML, creating directories as needed.
func Save(path string, c *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := c.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ConfigFilePath returns the path of the loaded config file, or empty string if none.
func ConfigFilePath() string {
	return viper.ConfigFileUsed()
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}
