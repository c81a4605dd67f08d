package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xxxsen/common/logger"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        int               `json:"port"`
	LogConfig   logger.LogConfig  `json:"log_config"`
	Server      ServerConfig      `json:"server"`
	Database    DatabaseConfig    `json:"database"`
	AI          AIConfig          `json:"ai"`
	VectorStore VectorStoreConfig `json:"vector_store"`
	WebSearch   WebSearchConfig   `json:"web_search"`
	Fetch       FetchConfig       `json:"fetch"`
	Ingest      IngestConfig      `json:"ingest"`
	Search      SearchConfig      `json:"search"`
	Archive     ArchiveConfig     `json:"archive"`
	Jobs        JobsConfig        `json:"jobs"`
}

type ServerConfig struct {
	CORSAllowlist []string `json:"cors_allowlist"`
	// ChatRateLimitMs is the minimum interval between two chat requests
	// from the same client. 0 disables the limiter.
	ChatRateLimitMs int  `json:"chat_rate_limit_ms"`
	EnableIngestAPI bool `json:"enable_ingest_api"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

func (c DatabaseConfig) Enabled() bool {
	return c.DSN != "" || c.Host != ""
}

type AIConfig struct {
	Timeout    int                `json:"timeout"`
	Providers  []AIProviderConfig `json:"providers"`
	Generator  []AIModelConfig    `json:"generator"`
	Embedder   []AIModelConfig    `json:"embedder"`
	EmbedCache EmbedCacheConfig   `json:"embed_cache"`
}

type AIProviderConfig struct {
	Name string      `json:"name"`
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type AIModelConfig struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type EmbedCacheConfig struct {
	LRUSize       int    `json:"lru_size"`
	LRUTTLSeconds int    `json:"lru_ttl_seconds"`
	Store         string `json:"store"`
	SQLitePath    string `json:"sqlite_path"`
	MaxAgeDays    int    `json:"max_age_days"`
}

type VectorStoreConfig struct {
	Type                  string      `json:"type"`
	Data                  interface{} `json:"data"`
	BatchSize             int         `json:"batch_size"`
	MaxMetadataTextLength int         `json:"max_metadata_text_length"`
	ReplaceOnReingest     *bool       `json:"replace_on_reingest"`
	Timeout               int         `json:"timeout"`
}

type WebSearchConfig struct {
	Provider string      `json:"provider"`
	Data     interface{} `json:"data"`
	Timeout  int         `json:"timeout"`
}

type FetchConfig struct {
	Timeout       int     `json:"timeout"`
	MaxBodyBytes  int64   `json:"max_body_bytes"`
	RatePerSecond float64 `json:"rate_per_second"`
	Burst         int     `json:"burst"`
	UserAgent     string  `json:"user_agent"`
}

type IngestConfig struct {
	ChunkSize       int `json:"chunk_size"`
	ChunkOverlap    int `json:"chunk_overlap"`
	MaxChunks       int `json:"max_chunks"`
	MaxContentBytes int `json:"max_content_bytes"`
	Concurrency     int `json:"concurrency"`
}

type SearchConfig struct {
	TopK               int     `json:"top_k"`
	Threshold          float64 `json:"threshold"`
	WebResults         int     `json:"web_results"`
	ContextSources     int     `json:"context_sources"`
	WebContentMaxChars int     `json:"web_content_max_chars"`
}

type ArchiveConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type JobsConfig struct {
	EmbedCacheCleanup JobConfig           `json:"embed_cache_cleanup"`
	SourceRefresh     SourceRefreshConfig `json:"source_refresh"`
}

type JobConfig struct {
	Spec string `json:"spec"`
}

type SourceRefreshConfig struct {
	Spec     string   `json:"spec"`
	URLs     []string `json:"urls"`
	Source   string   `json:"source"`
	Category []string `json:"category"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	cfg, err := Parse(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a JSON or YAML (ext ".yaml"/".yml") document, applies
// environment overrides and defaults, and validates the result.
func Parse(raw []byte, ext string) (*Config, error) {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		var doc interface{}
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		raw = data
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.AI.Timeout == 0 {
		cfg.AI.Timeout = 60
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if cfg.VectorStore.BatchSize <= 0 {
		cfg.VectorStore.BatchSize = 100
	}
	if cfg.VectorStore.MaxMetadataTextLength <= 0 {
		cfg.VectorStore.MaxMetadataTextLength = 1000
	}
	if cfg.VectorStore.ReplaceOnReingest == nil {
		replace := true
		cfg.VectorStore.ReplaceOnReingest = &replace
	}
	if cfg.VectorStore.Timeout == 0 {
		cfg.VectorStore.Timeout = 30
	}
	if cfg.WebSearch.Timeout == 0 {
		cfg.WebSearch.Timeout = 10
	}
	if cfg.Fetch.Timeout == 0 {
		cfg.Fetch.Timeout = 15
	}
	if cfg.Fetch.MaxBodyBytes <= 0 {
		cfg.Fetch.MaxBodyBytes = 5 * 1024 * 1024
	}
	if cfg.Ingest.ChunkSize <= 0 {
		cfg.Ingest.ChunkSize = 300
	}
	if cfg.Ingest.ChunkOverlap <= 0 {
		cfg.Ingest.ChunkOverlap = 100
	}
	if cfg.Ingest.MaxChunks <= 0 {
		cfg.Ingest.MaxChunks = 500
	}
	if cfg.Ingest.MaxContentBytes <= 0 {
		cfg.Ingest.MaxContentBytes = 1024 * 1024
	}
	if cfg.Ingest.Concurrency <= 0 {
		cfg.Ingest.Concurrency = 4
	}
	if cfg.Search.TopK <= 0 {
		cfg.Search.TopK = 3
	}
	if cfg.Search.WebResults <= 0 {
		cfg.Search.WebResults = 3
	}
	if cfg.Search.ContextSources <= 0 {
		cfg.Search.ContextSources = 5
	}
	if cfg.Search.WebContentMaxChars <= 0 {
		cfg.Search.WebContentMaxChars = 8000
	}
	if cfg.AI.EmbedCache.MaxAgeDays <= 0 {
		cfg.AI.EmbedCache.MaxAgeDays = 30
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
}

func validate(cfg *Config) error {
	if len(cfg.AI.Embedder) == 0 {
		return fmt.Errorf("ai.embedder is required")
	}
	names := make(map[string]bool, len(cfg.AI.Providers))
	for i, p := range cfg.AI.Providers {
		if p.Name == "" || p.Type == "" {
			return fmt.Errorf("ai.providers[%d]: name and type are required", i)
		}
		if names[p.Name] {
			return fmt.Errorf("ai.providers[%d]: duplicate name %s", i, p.Name)
		}
		names[p.Name] = true
	}
	for _, chain := range [][]AIModelConfig{cfg.AI.Generator, cfg.AI.Embedder} {
		for _, m := range chain {
			if !names[m.Provider] {
				return fmt.Errorf("unknown ai provider reference: %s", m.Provider)
			}
			if m.Model == "" {
				return fmt.Errorf("model is required for provider %s", m.Provider)
			}
		}
	}
	if cfg.Ingest.ChunkOverlap >= cfg.Ingest.ChunkSize {
		return fmt.Errorf("ingest.chunk_overlap must be smaller than ingest.chunk_size")
	}
	switch cfg.AI.EmbedCache.Store {
	case "", "none":
	case "postgres":
		if !cfg.Database.Enabled() {
			return fmt.Errorf("ai.embed_cache.store=postgres requires database")
		}
	case "sqlite":
		if cfg.AI.EmbedCache.SQLitePath == "" {
			return fmt.Errorf("ai.embed_cache.sqlite_path is required for sqlite cache")
		}
	default:
		return fmt.Errorf("ai.embed_cache.store must be postgres, sqlite or none")
	}
	return nil
}
