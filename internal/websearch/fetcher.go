package websearch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/medrag/internal/config"
	appErr "github.com/xxxsen/medrag/internal/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/time/rate"
)

const (
	defaultMaxBodyBytes = 5 * 1024 * 1024
	defaultUserAgent    = "medrag/1.0 (+https://github.com/xxxsen/medrag)"
)

// Fetcher downloads a page and returns its readable text.
type Fetcher interface {
	FetchContent(ctx context.Context, url string) (string, error)
}

type FetcherOptions struct {
	Timeout       time.Duration
	MaxBodyBytes  int64
	RatePerSecond float64
	Burst         int
	UserAgent     string
	Client        *http.Client
}

type HTMLFetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	maxBody   int64
	userAgent string
}

func NewFetcher(opts FetcherOptions) *HTMLFetcher {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	f := &HTMLFetcher{client: client, maxBody: opts.MaxBodyBytes, userAgent: opts.UserAgent}
	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	return f
}

func NewFetcherFromConfig(cfg config.FetchConfig) *HTMLFetcher {
	return NewFetcher(FetcherOptions{
		Timeout:       time.Duration(cfg.Timeout) * time.Second,
		MaxBodyBytes:  cfg.MaxBodyBytes,
		RatePerSecond: cfg.RatePerSecond,
		Burst:         cfg.Burst,
		UserAgent:     cfg.UserAgent,
	})
}

func (f *HTMLFetcher) FetchContent(ctx context.Context, rawURL string) (string, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: %s: %w", appErr.ErrFetch, rawURL, err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", appErr.ErrFetch, rawURL, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", appErr.ErrFetch, rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("%w: %s: unexpected status %s", appErr.ErrFetch, rawURL, resp.Status)
	}
	body := io.LimitReader(resp.Body, f.maxBody)
	text, err := ExtractText(body)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", appErr.ErrFetch, rawURL, err)
	}
	logutil.GetLogger(ctx).Debug("fetched page", zap.String("url", rawURL), zap.Int("chars", len(text)))
	return text, nil
}

var removedTags = map[atom.Atom]bool{
	atom.Script: true,
	atom.Style:  true,
	atom.Nav:    true,
	atom.Footer: true,
	atom.Header: true,
	atom.Aside:  true,
}

var (
	inlineSpaceRe = regexp.MustCompile(`[ \t\r\f\v]+`)
	blankLinesRe  = regexp.MustCompile(`\n\s*\n+`)
)

// ExtractText parses an HTML page, drops boilerplate elements and returns
// the text of the first article, main, .content, #content or .post element
// in document order. When none yields text it falls back to body.
func ExtractText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}
	prune(doc)
	if main := findFirst(doc, isMainContent); main != nil {
		if text := nodeText(main); text != "" {
			return text, nil
		}
	}
	if body := findFirst(doc, func(n *html.Node) bool { return n.DataAtom == atom.Body }); body != nil {
		return nodeText(body), nil
	}
	return nodeText(doc), nil
}

func prune(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.ElementNode && removedTags[c.DataAtom] {
			n.RemoveChild(c)
		} else {
			prune(c)
		}
		c = next
	}
}

func isMainContent(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if n.DataAtom == atom.Article || n.DataAtom == atom.Main {
		return true
	}
	for _, a := range n.Attr {
		switch a.Key {
		case "id":
			if a.Val == "content" {
				return true
			}
		case "class":
			for _, cls := range strings.Fields(a.Val) {
				if cls == "content" || cls == "post" {
					return true
				}
			}
		}
	}
	return false
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return cleanWhitespace(b.String())
}

func cleanWhitespace(s string) string {
	s = inlineSpaceRe.ReplaceAllString(s, " ")
	s = blankLinesRe.ReplaceAllString(s, "\n\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
