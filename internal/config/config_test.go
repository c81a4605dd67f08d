package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const minimalJSON = `{
  "ai": {
    "providers": [{"name": "oa", "type": "openai", "data": {"api_key": "k"}}],
    "generator": [{"provider": "oa", "model": "gpt-4o-mini"}],
    "embedder": [{"provider": "oa", "model": "text-embedding-3-large"}]
  }
}`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalJSON), ".json")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, "info", cfg.LogConfig.Level)
	require.Equal(t, "memory", cfg.VectorStore.Type)
	require.Equal(t, 100, cfg.VectorStore.BatchSize)
	require.Equal(t, 1000, cfg.VectorStore.MaxMetadataTextLength)
	require.True(t, *cfg.VectorStore.ReplaceOnReingest)
	require.Equal(t, 300, cfg.Ingest.ChunkSize)
	require.Equal(t, 100, cfg.Ingest.ChunkOverlap)
	require.Equal(t, 500, cfg.Ingest.MaxChunks)
	require.Equal(t, 1024*1024, cfg.Ingest.MaxContentBytes)
	require.Equal(t, 3, cfg.Search.TopK)
	require.Equal(t, 3, cfg.Search.WebResults)
	require.Equal(t, 5, cfg.Search.ContextSources)
	require.Equal(t, 60, cfg.AI.Timeout)
}

func TestParseYAML(t *testing.T) {
	doc := `
port: 9000
log_config:
  level: debug
ai:
  providers:
    - name: local
      type: ollama
      data:
        host: http://localhost:11434
  generator:
    - provider: local
      model: llama3.2
  embedder:
    - provider: local
      model: nomic-embed-text
vector_store:
  type: qdrant
  data:
    host: localhost
    port: 6334
    collection: medrag
ingest:
  chunk_size: 500
  chunk_overlap: 50
`
	cfg, err := Parse([]byte(doc), ".yaml")
	require.NoError(t, err)
	require.Equal(t, 9000, cfg.Port)
	require.Equal(t, "debug", cfg.LogConfig.Level)
	require.Equal(t, "qdrant", cfg.VectorStore.Type)
	data, ok := cfg.VectorStore.Data.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "medrag", data["collection"])
	require.Equal(t, 500, cfg.Ingest.ChunkSize)
	require.Equal(t, 50, cfg.Ingest.ChunkOverlap)
}

func TestParseValidation(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "no embedder", doc: `{"ai": {"providers": [{"name": "a", "type": "openai"}]}}`},
		{name: "unknown provider", doc: `{"ai": {"providers": [{"name": "a", "type": "openai"}], "embedder": [{"provider": "b", "model": "m"}]}}`},
		{name: "missing model", doc: `{"ai": {"providers": [{"name": "a", "type": "openai"}], "embedder": [{"provider": "a"}]}}`},
		{name: "overlap too large", doc: `{"ai": {"providers": [{"name": "a", "type": "openai"}], "embedder": [{"provider": "a", "model": "m"}]}, "ingest": {"chunk_size": 100, "chunk_overlap": 100}}`},
		{name: "postgres cache without db", doc: `{"ai": {"providers": [{"name": "a", "type": "openai"}], "embedder": [{"provider": "a", "model": "m"}], "embed_cache": {"store": "postgres"}}}`},
		{name: "bad json", doc: `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), ".json")
			require.Error(t, err)
		})
	}
}

func TestParseFillsSecretsFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "from-env")
	t.Setenv("GOOGLE_SEARCH_API_KEY", "g-key")
	t.Setenv("GOOGLE_SEARCH_CX", "g-cx")
	doc := `{
  "ai": {
    "providers": [{"name": "oa", "type": "openai"}],
    "embedder": [{"provider": "oa", "model": "m"}]
  },
  "web_search": {"provider": "google", "data": {"cx": "explicit"}}
}`
	cfg, err := Parse([]byte(doc), ".json")
	require.NoError(t, err)
	data := cfg.AI.Providers[0].Data.(map[string]interface{})
	require.Equal(t, "from-env", data["api_key"])
	search := cfg.WebSearch.Data.(map[string]interface{})
	require.Equal(t, "g-key", search["api_key"])
	require.Equal(t, "explicit", search["cx"])
}

func TestLoadReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(minimalJSON), 0o600))
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.AI.Providers, 1)

	_, err = Load(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
}
