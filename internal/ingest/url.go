package ingest

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/medrag/internal/model"
	"github.com/xxxsen/medrag/internal/pkg/settle"
	"github.com/xxxsen/medrag/internal/websearch"
	"go.uber.org/zap"
)

const (
	DefaultMaxContentBytes = 1024 * 1024
	defaultURLCategory     = "web-content"
	untitled               = "Untitled"
)

type URLRequest struct {
	URL       string                   `json:"url"`
	Overrides *model.MetadataOverrides `json:"metadata,omitempty"`
}

type URLResult struct {
	URL     string `json:"url"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type URLIngestion struct {
	fetcher         websearch.Fetcher
	ingestion       *Ingestion
	maxContentBytes int
	concurrency     int
	now             func() time.Time
}

func NewURLIngestion(fetcher websearch.Fetcher, ingestion *Ingestion, maxContentBytes int) *URLIngestion {
	if maxContentBytes <= 0 {
		maxContentBytes = DefaultMaxContentBytes
	}
	return &URLIngestion{
		fetcher:         fetcher,
		ingestion:       ingestion,
		maxContentBytes: maxContentBytes,
		concurrency:     ingestion.concurrency,
		now:             time.Now,
	}
}

// IngestFromURL fetches a page and ingests its text. The boolean reports
// whether the document was stored; err explains a false result.
func (u *URLIngestion) IngestFromURL(ctx context.Context, rawURL string, overrides *model.MetadataOverrides) (bool, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("url", rawURL))
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return false, fmt.Errorf("invalid url %q", rawURL)
	}
	content, err := u.fetcher.FetchContent(ctx, rawURL)
	if err != nil {
		logger.Error("fetch url failed", zap.Error(err))
		return false, err
	}
	logger.Info("fetched url content", zap.Int("bytes", len(content)))
	if len(content) > u.maxContentBytes {
		content = TruncateContent(content, u.maxContentBytes/2)
		logger.Warn("content exceeds size limit, truncated",
			zap.Int("limit", u.maxContentBytes), zap.Int("bytes", len(content)))
	}
	doc := model.Document{
		Content:  content,
		Metadata: BuildURLMetadata(parsed, overrides, u.now()),
	}
	res, err := u.ingestion.IngestDocument(ctx, doc)
	if err != nil {
		return false, err
	}
	return res.Success, nil
}

// IngestMultipleURLs ingests every request concurrently and reports each
// outcome in input order.
func (u *URLIngestion) IngestMultipleURLs(ctx context.Context, reqs []URLRequest) []URLResult {
	results := settle.All(ctx, len(reqs), u.concurrency, func(ctx context.Context, i int) (bool, error) {
		return u.IngestFromURL(ctx, reqs[i].URL, reqs[i].Overrides)
	})
	out := make([]URLResult, 0, len(reqs))
	for i, r := range results {
		item := URLResult{URL: reqs[i].URL, Success: r.Err == nil && r.Value}
		if r.Err != nil {
			item.Error = r.Err.Error()
		}
		out = append(out, item)
	}
	return out
}

// TruncateContent cuts s to at most limit bytes on a rune boundary, then
// back to just after the last sentence terminator. Text without any
// terminator keeps the rune-boundary cut.
func TruncateContent(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	s = s[:cut]
	if idx := strings.LastIndexAny(s, ".!?"); idx >= 0 {
		return s[:idx+1]
	}
	return s
}

// BuildURLMetadata derives document metadata from the URL. Non-empty
// overrides win.
func BuildURLMetadata(u *url.URL, o *model.MetadataOverrides, now time.Time) model.DocumentMetadata {
	md := model.DocumentMetadata{
		Title:       lastSegment(u.Path),
		Source:      u.Hostname(),
		URL:         u.String(),
		Category:    []string{defaultURLCategory},
		PublishDate: now.UTC().Format(time.RFC3339),
	}
	if md.Title == "" {
		md.Title = untitled
	}
	if o == nil {
		return md
	}
	if o.Title != "" {
		md.Title = o.Title
	}
	if o.Author != "" {
		md.Author = o.Author
	}
	if o.Source != "" {
		md.Source = o.Source
	}
	if o.PublishDate != "" {
		md.PublishDate = o.PublishDate
	}
	if len(o.Category) > 0 {
		md.Category = o.Category
	}
	return md
}

func lastSegment(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}
