package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func resetConfig(t *testing.T) {
	t.Helper()
	viper.Reset()
	cfg = nil
	t.Cleanup(func() {
		viper.Reset()
		cfg = nil
	})
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)

	// Embeddings defaults
	assert.Equal(t, DefaultEmbeddingProvider, cfg.Embeddings.Provider)
	assert.Equal(t, DefaultEmbedBatchSize, cfg.Embeddings.BatchSize)
	assert.Equal(t, DefaultOllamaURL, cfg.Embeddings.Ollama.URL)
	assert.Equal(t, DefaultOpenAIEmbedModel, cfg.Embeddings.OpenAI.Model)

	// Storage defaults
	assert.Equal(t, ".codexlotus", cfg.Storage.DirName)
	assert.Empty(t, cfg.Storage.Path)
	assert.Equal(t, "chunks", cfg.Storage.DuplicatePaths)

	// Indexing defaults
	assert.Equal(t, []string{".md", ".markdown", ".mdx"}, cfg.Indexing.Extensions)
	assert.Equal(t, "whole", cfg.Indexing.Chunker)

	// Search defaults
	assert.Equal(t, "scan", cfg.Search.Backend)
	assert.Equal(t, 5, cfg.Search.Limit)

	// LLM defaults
	assert.Equal(t, DefaultLLMProvider, cfg.LLM.Provider)
	assert.Equal(t, DefaultGeminiModel, cfg.LLM.Gemini.Model)

	assert.Equal(t, 2*time.Second, cfg.Watch.Debounce)

	assert.Contains(t, cfg.Ignore, ".codexlotus/")
	assert.Contains(t, cfg.Ignore, ".git/")

	assert.NoError(t, cfg.Validate())
}

func TestLoadWithConfigFile(t *testing.T) {
	resetConfig(t)

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
embeddings:
  provider: ollama
  batch_size: 32
  ollama:
    url: http://custom:11434
    model: custom-model
storage:
  dir_name: .rag
  duplicate_paths: reject
indexing:
  extensions: [".md", ".txt"]
  chunker: paragraph
  chunk_size: 800
search:
  backend: sqlite-vec
  limit: 8
  min_score: 0.25
llm:
  provider: gemini
  gemini:
    model: gemini-1.5-pro
watch:
  debounce: 500ms
ignore:
  - "drafts/"
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	require.NoError(t, Load(configPath))
	loaded := Get()

	assert.Equal(t, "ollama", loaded.Embeddings.Provider)
	assert.Equal(t, 32, loaded.Embeddings.BatchSize)
	assert.Equal(t, "http://custom:11434", loaded.Embeddings.Ollama.URL)
	assert.Equal(t, ".rag", loaded.Storage.DirName)
	assert.Equal(t, "reject", loaded.Storage.DuplicatePaths)
	assert.Equal(t, []string{".md", ".txt"}, loaded.Indexing.Extensions)
	assert.Equal(t, "paragraph", loaded.Indexing.Chunker)
	assert.Equal(t, 800, loaded.Indexing.ChunkSize)
	assert.Equal(t, "sqlite-vec", loaded.Search.Backend)
	assert.Equal(t, 8, loaded.Search.Limit)
	assert.InDelta(t, 0.25, loaded.Search.MinScore, 1e-9)
	assert.Equal(t, "gemini", loaded.LLM.Provider)
	assert.Equal(t, "gemini-1.5-pro", loaded.LLM.Gemini.Model)
	assert.Equal(t, DefaultGeminiURL, loaded.LLM.Gemini.BaseURL)
	assert.Equal(t, 500*time.Millisecond, loaded.Watch.Debounce)
	assert.Equal(t, []string{"drafts/"}, loaded.Ignore)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"backend", "search:\n  backend: faiss\n", "search.backend"},
		{"chunker", "indexing:\n  chunker: sentences\n", "indexing.chunker"},
		{"duplicates", "storage:\n  duplicate_paths: merge\n", "storage.duplicate_paths"},
		{"limit", "search:\n  limit: 0\n", "search.limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetConfig(t)
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	resetConfig(t)

	t.Setenv("LOTUSRAG_EMBEDDINGS_PROVIDER", "ollama")
	t.Setenv("LOTUSRAG_SEARCH_BACKEND", "sqlite-vec")
	t.Setenv("OPENAI_API_KEY", "test-api-key")
	t.Setenv("GEMINI_API_KEY", "test-gemini-key")

	require.NoError(t, Load(""))
	loaded := Get()

	assert.Equal(t, "ollama", loaded.Embeddings.Provider)
	assert.Equal(t, "sqlite-vec", loaded.Search.Backend)
	assert.Equal(t, "test-api-key", loaded.Embeddings.OpenAI.APIKey)
	assert.Equal(t, "test-api-key", loaded.LLM.OpenAI.APIKey)
	assert.Equal(t, "test-gemini-key", loaded.LLM.Gemini.APIKey)
}

func TestLoadMissingConfigFile(t *testing.T) {
	resetConfig(t)

	require.NoError(t, Load(""))
	loaded := Get()

	assert.Equal(t, DefaultSearchBackend, loaded.Search.Backend)
	assert.Equal(t, DefaultIndexDirName, loaded.Storage.DirName)
}

func TestFindRCFile(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))
	rc := filepath.Join(root, RCFileName)
	require.NoError(t, os.WriteFile(rc, []byte("search:\n  limit: 3\n"), 0644))

	t.Chdir(nested)

	found, err := filepath.EvalSymlinks(findRCFile())
	require.NoError(t, err)
	expected, err := filepath.EvalSymlinks(rc)
	require.NoError(t, err)
	assert.Equal(t, expected, found)
}

func TestGet(t *testing.T) {
	cfg = nil
	t.Cleanup(func() { cfg = nil })

	c1 := Get()
	assert.NotNil(t, c1)
	assert.Same(t, c1, Get())
}

func TestRedacted(t *testing.T) {
	c := DefaultConfig()
	c.Embeddings.OpenAI.APIKey = "sk-1234567890abcdef"
	c.LLM.Gemini.APIKey = "short"

	r := c.Redacted()
	assert.Equal(t, "sk-1****cdef", r.Embeddings.OpenAI.APIKey)
	assert.Equal(t, "****", r.LLM.Gemini.APIKey)
	assert.Empty(t, r.LLM.OpenAI.APIKey)

	// Original untouched
	assert.Equal(t, "sk-1234567890abcdef", c.Embeddings.OpenAI.APIKey)
}

func TestSaveWritesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	c := DefaultConfig()
	c.Search.Limit = 9

	require.NoError(t, Save(path, c))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded Config
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, 9, decoded.Search.Limit)
	assert.Equal(t, c.Storage.DirName, decoded.Storage.DirName)
}

func TestGlobalConfigPath(t *testing.T) {
	path := GlobalConfigPath()
	assert.Contains(t, path, "lotusrag")
	assert.Contains(t, path, "config.yaml")
}
