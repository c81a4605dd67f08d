package job

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/medrag/internal/ingest"
	"github.com/xxxsen/medrag/internal/model"
)

type URLIngester interface {
	IngestMultipleURLs(ctx context.Context, reqs []ingest.URLRequest) []ingest.URLResult
}

// SourceRefreshJob re-ingests a fixed list of URLs.
type SourceRefreshJob struct {
	ingester URLIngester
	reqs     []ingest.URLRequest
}

func NewSourceRefreshJob(ingester URLIngester, urls []string, source string, category []string) *SourceRefreshJob {
	var overrides *model.MetadataOverrides
	if source != "" || len(category) > 0 {
		overrides = &model.MetadataOverrides{Source: source, Category: category}
	}
	reqs := make([]ingest.URLRequest, 0, len(urls))
	for _, u := range urls {
		reqs = append(reqs, ingest.URLRequest{URL: u, Overrides: overrides})
	}
	return &SourceRefreshJob{ingester: ingester, reqs: reqs}
}

func (j *SourceRefreshJob) Name() string {
	return "source_refresh"
}

func (j *SourceRefreshJob) Run(ctx context.Context) error {
	if len(j.reqs) == 0 {
		return nil
	}
	results := j.ingester.IngestMultipleURLs(ctx, j.reqs)
	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
			logutil.GetLogger(ctx).Warn("refresh source failed", zap.String("url", r.URL), zap.String("error", r.Error))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d sources failed to refresh", failed, len(results))
	}
	return nil
}
