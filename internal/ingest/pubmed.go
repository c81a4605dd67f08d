package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/medrag/internal/model"
	appErr "github.com/xxxsen/medrag/internal/pkg/errors"
	"go.uber.org/zap"
)

const (
	DefaultPubMedBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"
	DefaultPubMedTerm    = "medical research"
	DefaultPubMedMax     = 20
	pmcArticleURLPattern = "https://www.ncbi.nlm.nih.gov/pmc/articles/PMC%s"
	pubmedSource         = "PubMed Central"
)

type PubMedClient struct {
	baseURL string
	client  *http.Client
}

func NewPubMedClient(baseURL string, client *http.Client) *PubMedClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultPubMedBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &PubMedClient{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type esearchResponse struct {
	Result struct {
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

// SearchPMC returns up to max PubMed Central ids matching term.
func (p *PubMedClient) SearchPMC(ctx context.Context, term string, max int) ([]string, error) {
	if max <= 0 {
		max = DefaultPubMedMax
	}
	params := url.Values{}
	params.Set("db", "pmc")
	params.Set("retmax", strconv.Itoa(max))
	params.Set("term", term)
	params.Set("retmode", "json")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/esearch.fcgi?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", appErr.ErrSearchAPI, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: esearch: %w", appErr.ErrSearchAPI, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: esearch failed: %s: %s", appErr.ErrSearchAPI, resp.Status, strings.TrimSpace(string(body)))
	}
	var out esearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode esearch: %w", appErr.ErrSearchAPI, err)
	}
	return out.Result.IDList, nil
}

func PMCArticleURL(id string) string {
	return fmt.Sprintf(pmcArticleURLPattern, id)
}

type PubMedSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// IngestPubMed searches PMC and ingests each article page one at a time.
func IngestPubMed(ctx context.Context, client *PubMedClient, urls *URLIngestion, term string, max int) (*PubMedSummary, error) {
	logger := logutil.GetLogger(ctx)
	ids, err := client.SearchPMC(ctx, term, max)
	if err != nil {
		return nil, err
	}
	logger.Info("retrieved pubmed ids", zap.Int("count", len(ids)), zap.String("term", term))
	summary := &PubMedSummary{Total: len(ids)}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		link := PMCArticleURL(id)
		ok, err := urls.IngestFromURL(ctx, link, &model.MetadataOverrides{
			Category: []string{paperCategory},
			Source:   pubmedSource,
		})
		if ok {
			summary.Succeeded++
			logger.Info("ingested pubmed paper", zap.String("id", "PMC"+id))
			continue
		}
		summary.Failed++
		logger.Warn("ingest pubmed paper failed", zap.String("id", "PMC"+id), zap.Error(err))
	}
	return summary, nil
}
