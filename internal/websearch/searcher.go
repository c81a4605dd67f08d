package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/xxxsen/medrag/internal/config"
	"github.com/xxxsen/medrag/internal/model"
)

// Searcher returns one page of web results for a query.
type Searcher interface {
	Search(ctx context.Context, query string) ([]model.WebResult, error)
}

type Factory func(args interface{}, client *http.Client) (Searcher, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

// NewSearcher builds the configured provider. An empty provider yields a
// nil Searcher, which disables web search.
func NewSearcher(cfg config.WebSearchConfig) (Searcher, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if key == "" || key == "none" {
		return nil, nil
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported web search provider: %s", cfg.Provider)
	}
	client := &http.Client{}
	if cfg.Timeout > 0 {
		client.Timeout = time.Duration(cfg.Timeout) * time.Second
	}
	return factory(cfg.Data, client)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("web search config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode web search config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode web search config: %w", err)
	}
	return nil
}

// Hostname returns the host part of rawURL, or "" when it cannot be parsed.
func Hostname(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
