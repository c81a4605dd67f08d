package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/xxxsen/medrag/internal/model"
	appErr "github.com/xxxsen/medrag/internal/pkg/errors"
)

const (
	defaultTavilyEndpoint   = "https://api.tavily.com/search"
	defaultTavilyMaxResults = 10
)

type tavilyConfig struct {
	APIKey      string `json:"api_key"`
	Endpoint    string `json:"endpoint"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

type tavilySearcher struct {
	cfg    tavilyConfig
	client *http.Client
}

type tavilyRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth,omitempty"`
}

type tavilyResponse struct {
	Results []struct {
		Title         string `json:"title"`
		URL           string `json:"url"`
		Content       string `json:"content"`
		PublishedDate string `json:"published_date"`
	} `json:"results"`
}

func init() {
	Register("tavily", createTavilySearcher)
}

func createTavilySearcher(args interface{}, client *http.Client) (Searcher, error) {
	cfg := tavilyConfig{}
	if err := decodeConfig(args, &cfg); err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("tavily api_key is required")
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = defaultTavilyEndpoint
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultTavilyMaxResults
	}
	return &tavilySearcher{cfg: cfg, client: client}, nil
}

func (s *tavilySearcher) Search(ctx context.Context, query string) ([]model.WebResult, error) {
	data, err := json.Marshal(tavilyRequest{
		APIKey:      s.cfg.APIKey,
		Query:       query,
		MaxResults:  s.cfg.MaxResults,
		SearchDepth: s.cfg.SearchDepth,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", appErr.ErrSearchAPI, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", appErr.ErrSearchAPI, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", appErr.ErrSearchAPI, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: tavily search failed: %s: %s", appErr.ErrSearchAPI, resp.Status, strings.TrimSpace(string(body)))
	}
	var out tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode tavily response: %w", appErr.ErrSearchAPI, err)
	}
	results := make([]model.WebResult, 0, len(out.Results))
	for _, item := range out.Results {
		results = append(results, model.WebResult{
			Title:   item.Title,
			URL:     item.URL,
			Snippet: item.Content,
			Source:  Hostname(item.URL),
			Date:    item.PublishedDate,
		})
	}
	return results, nil
}
