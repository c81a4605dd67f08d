package config

import (
	"os"
	"strings"
)

var providerKeyEnv = map[string]string{
	"openai":     "OPENAI_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
	"gemini":     "GEMINI_API_KEY",
}

func applyEnv(cfg *Config) {
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = os.Getenv("DATABASE_URL")
	}
	for i := range cfg.AI.Providers {
		p := &cfg.AI.Providers[i]
		if env, ok := providerKeyEnv[strings.ToLower(p.Type)]; ok {
			p.Data = fillFromEnv(p.Data, "api_key", env)
		}
		if strings.EqualFold(p.Type, "ollama") {
			p.Data = fillFromEnv(p.Data, "host", "OLLAMA_HOST")
		}
	}
	switch strings.ToLower(cfg.WebSearch.Provider) {
	case "google":
		cfg.WebSearch.Data = fillFromEnv(cfg.WebSearch.Data, "api_key", "GOOGLE_SEARCH_API_KEY")
		cfg.WebSearch.Data = fillFromEnv(cfg.WebSearch.Data, "cx", "GOOGLE_SEARCH_CX")
	case "tavily":
		cfg.WebSearch.Data = fillFromEnv(cfg.WebSearch.Data, "api_key", "TAVILY_API_KEY")
	}
	if strings.EqualFold(cfg.VectorStore.Type, "qdrant") {
		cfg.VectorStore.Data = fillFromEnv(cfg.VectorStore.Data, "api_key", "QDRANT_API_KEY")
	}
}

// fillFromEnv sets data[key] from the environment when the key is absent
// or empty. Non-map data is returned untouched.
func fillFromEnv(data interface{}, key, env string) interface{} {
	value := os.Getenv(env)
	if value == "" {
		return data
	}
	if data == nil {
		return map[string]interface{}{key: value}
	}
	m, ok := data.(map[string]interface{})
	if !ok {
		return data
	}
	if current, _ := m[key].(string); strings.TrimSpace(current) == "" {
		m[key] = value
	}
	return m
}
