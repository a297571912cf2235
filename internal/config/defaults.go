package config

import (
	"os"
	"path/filepath"
	"time"
)

// Default configuration values
const (
	// Embedding defaults
	DefaultEmbeddingProvider = "openai"
	DefaultOllamaURL         = "http://localhost:11434"
	DefaultOllamaEmbedModel  = "nomic-embed-text"
	DefaultOpenAIEmbedModel  = "text-embedding-3-small"
	DefaultEmbedBatchSize    = 256

	// LLM defaults
	DefaultLLMProvider    = "openai"
	DefaultOllamaLLMModel = "llama3"
	DefaultOpenAILLMModel = "gpt-4o-mini"
	DefaultGeminiModel    = "gemini-1.5-flash"
	DefaultGeminiURL      = "https://generativelanguage.googleapis.com/"

	// Storage defaults
	DefaultIndexDirName   = ".codexlotus"
	DefaultDuplicatePaths = "chunks"

	// Indexing defaults
	DefaultMaxFileSize  = 1 << 20 // 1MB
	DefaultMaxFileCount = 10000
	DefaultChunker      = "whole"
	DefaultChunkSize    = 1500
	DefaultChunkOverlap = 200

	// Search defaults
	DefaultSearchBackend = "scan"
	DefaultSearchLimit   = 5
	DefaultMinScore      = 0.0

	// Watch defaults
	DefaultWatchDebounce = 2 * time.Second

	// RC file searched upward from the working directory
	RCFileName = ".lotusragrc.yaml"

	// EnvPrefix prefixes every environment override
	EnvPrefix = "LOTUSRAG"
)

// DefaultExtensions returns the file extensions indexed by default.
func DefaultExtensions() []string {
	return []string{".md", ".markdown", ".mdx"}
}

// DefaultIgnorePatterns returns the default list of gitignore-style
// patterns skipped during discovery.
func DefaultIgnorePatterns() []string {
	return []string{
		// Index storage
		DefaultIndexDirName + "/",

		// Dependencies and build outputs
		"node_modules/",
		"vendor/",
		"dist/",
		"build/",
		"target/",
		".venv/",

		// IDE/Editor
		".idea/",
		".vscode/",
		"*~",

		// Version control
		".git/",
		".svn/",
		".hg/",

		// Misc
		".DS_Store",
	}
}

// DefaultConfigDir returns the default configuration directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/lotusrag"
	}
	return filepath.Join(home, ".config", "lotusrag")
}
