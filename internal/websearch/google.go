package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/xxxsen/medrag/internal/model"
	appErr "github.com/xxxsen/medrag/internal/pkg/errors"
)

const defaultGoogleEndpoint = "https://www.googleapis.com/customsearch/v1"

type googleConfig struct {
	APIKey   string `json:"api_key"`
	CX       string `json:"cx"`
	Endpoint string `json:"endpoint"`
}

type googleSearcher struct {
	apiKey   string
	cx       string
	endpoint string
	client   *http.Client
}

type googleResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
		Pagemap struct {
			Metatags []map[string]interface{} `json:"metatags"`
		} `json:"pagemap"`
	} `json:"items"`
}

func init() {
	Register("google", createGoogleSearcher)
}

func createGoogleSearcher(args interface{}, client *http.Client) (Searcher, error) {
	cfg := &googleConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.APIKey == "" || cfg.CX == "" {
		return nil, fmt.Errorf("google search api_key and cx are required")
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultGoogleEndpoint
	}
	return &googleSearcher{apiKey: cfg.APIKey, cx: cfg.CX, endpoint: endpoint, client: client}, nil
}

func (g *googleSearcher) Search(ctx context.Context, query string) ([]model.WebResult, error) {
	params := url.Values{}
	params.Set("key", g.apiKey)
	params.Set("cx", g.cx)
	params.Set("q", query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", appErr.ErrSearchAPI, err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", appErr.ErrSearchAPI, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: google search failed: %s: %s", appErr.ErrSearchAPI, resp.Status, strings.TrimSpace(string(body)))
	}
	var out googleResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode google response: %w", appErr.ErrSearchAPI, err)
	}
	results := make([]model.WebResult, 0, len(out.Items))
	for _, item := range out.Items {
		r := model.WebResult{
			Title:   item.Title,
			URL:     item.Link,
			Snippet: item.Snippet,
			Source:  Hostname(item.Link),
		}
		if len(item.Pagemap.Metatags) > 0 {
			if date, ok := item.Pagemap.Metatags[0]["article:published_time"].(string); ok {
				r.Date = date
			}
		}
		results = append(results, r)
	}
	return results, nil
}
