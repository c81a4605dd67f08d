package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xxxsen/medrag/internal/ai"
	"github.com/xxxsen/medrag/internal/config"
	"github.com/xxxsen/medrag/internal/model"
	"github.com/xxxsen/medrag/internal/pkg/settle"
	"github.com/xxxsen/medrag/internal/pkg/vecmath"
	"github.com/xxxsen/medrag/internal/websearch"
)

const (
	DefaultTopK               = 3
	DefaultWebResults         = 3
	DefaultContextSources     = 5
	DefaultWebContentMaxChars = 8000

	answerTemperature   = 0.3
	followUpTemperature = 0.7
	maxFollowUps        = 3
)

type VectorIndex interface {
	Query(ctx context.Context, vector []float32, topK int) ([]model.VectorMatch, error)
}

type Options struct {
	TopK int
	// Threshold drops merged hits scoring below it. 0 keeps everything.
	Threshold float64
}

type Deps struct {
	Embedder  ai.IEmbedder
	Generator ai.IGenerator
	Index     VectorIndex
	// Searcher may be nil, the web branch is then skipped.
	Searcher websearch.Searcher
	Fetcher  websearch.Fetcher
}

type Service struct {
	embedder           ai.IEmbedder
	generator          ai.IGenerator
	index              VectorIndex
	searcher           websearch.Searcher
	fetcher            websearch.Fetcher
	webResults         int
	contextSources     int
	webContentMaxChars int
}

func NewService(deps Deps, cfg config.SearchConfig) (*Service, error) {
	if deps.Embedder == nil || deps.Generator == nil || deps.Index == nil {
		return nil, fmt.Errorf("search service requires embedder, generator and index")
	}
	if deps.Searcher != nil && deps.Fetcher == nil {
		return nil, fmt.Errorf("web search requires a fetcher")
	}
	s := &Service{
		embedder:           deps.Embedder,
		generator:          deps.Generator,
		index:              deps.Index,
		searcher:           deps.Searcher,
		fetcher:            deps.Fetcher,
		webResults:         cfg.WebResults,
		contextSources:     cfg.ContextSources,
		webContentMaxChars: cfg.WebContentMaxChars,
	}
	if s.webResults <= 0 {
		s.webResults = DefaultWebResults
	}
	if s.contextSources <= 0 {
		s.contextSources = DefaultContextSources
	}
	if s.webContentMaxChars <= 0 {
		s.webContentMaxChars = DefaultWebContentMaxChars
	}
	return s, nil
}

type state int

const (
	stateRetrieve state = iota
	stateGenerate
	stateFollowUp
	stateDone
	stateDefault
)

type run struct {
	query   string
	opts    Options
	hits    []model.SearchHit
	context string
	text    string
	answer  *model.Answer
}

// Search answers query from the vector index and the web. It never fails:
// any error or an empty evidence set yields the default answer.
func (s *Service) Search(ctx context.Context, query string, opts Options) *model.Answer {
	logger := logutil.GetLogger(ctx).With(zap.String("query", query))
	r := &run{query: query, opts: opts}
	st := stateRetrieve
	for {
		var err error
		switch st {
		case stateRetrieve:
			st, err = s.retrieve(ctx, r)
		case stateGenerate:
			st, err = s.generate(ctx, r)
		case stateFollowUp:
			st, err = s.followUp(ctx, r)
		case stateDone:
			return r.answer
		case stateDefault:
			logger.Info("generating default answer")
			return DefaultAnswer()
		}
		if err != nil {
			logger.Error("search failed", zap.Error(err))
			st = stateDefault
		}
	}
}

func (s *Service) retrieve(ctx context.Context, r *run) (state, error) {
	topK := r.opts.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	var (
		queryVec []float32
		dbHits   []model.SearchHit
		pages    []webPage
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vec, err := ai.EmbedQuery(gctx, s.embedder, r.query)
		if err != nil {
			return err
		}
		queryVec = vec
		matches, err := s.index.Query(gctx, vec, topK)
		if err != nil {
			return err
		}
		dbHits = databaseHits(matches)
		return nil
	})
	if s.searcher != nil {
		g.Go(func() error {
			var err error
			pages, err = s.fetchWeb(gctx, r.query)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return stateDefault, err
	}
	webHits, err := s.scoreWeb(ctx, queryVec, pages)
	if err != nil {
		return stateDefault, err
	}
	r.hits = filterThreshold(mergeHits(dbHits, webHits), r.opts.Threshold)
	logutil.GetLogger(ctx).Debug("merged sources",
		zap.Int("database", len(dbHits)), zap.Int("web", len(webHits)), zap.Int("kept", len(r.hits)))
	if len(r.hits) == 0 {
		return stateDefault, nil
	}
	return stateGenerate, nil
}

type webPage struct {
	result  model.WebResult
	content string
}

// fetchWeb searches the web and fetches the top results. A failed fetch
// drops only that page.
func (s *Service) fetchWeb(ctx context.Context, query string) ([]webPage, error) {
	results, err := s.searcher.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(results) > s.webResults {
		results = results[:s.webResults]
	}
	fetched := settle.All(ctx, len(results), 0, func(ctx context.Context, i int) (string, error) {
		return s.fetcher.FetchContent(ctx, results[i].URL)
	})
	pages := make([]webPage, 0, len(results))
	for i, f := range fetched {
		if f.Err != nil {
			logutil.GetLogger(ctx).Warn("fetch web result failed", zap.String("url", results[i].URL), zap.Error(f.Err))
			continue
		}
		pages = append(pages, webPage{result: results[i], content: f.Value})
	}
	return pages, nil
}

func (s *Service) scoreWeb(ctx context.Context, queryVec []float32, pages []webPage) ([]model.SearchHit, error) {
	if len(pages) == 0 {
		return nil, nil
	}
	texts := make([]string, 0, len(pages))
	for _, p := range pages {
		texts = append(texts, truncateChars(p.content, s.webContentMaxChars))
	}
	vecs, err := s.embedder.Embed(ctx, texts, ai.TaskTypeDocument)
	if err != nil {
		return nil, err
	}
	hits := make([]model.SearchHit, 0, len(pages))
	for i, p := range pages {
		hits = append(hits, model.SearchHit{
			Content: p.content,
			Score:   vecmath.Cosine(queryVec, vecs[i]),
			Metadata: model.HitMetadata{
				Title:  p.result.Title,
				URL:    p.result.URL,
				Source: p.result.Source,
				Date:   p.result.Date,
			},
			Origin: model.OriginWeb,
		})
	}
	return hits, nil
}

func (s *Service) generate(ctx context.Context, r *run) (state, error) {
	top := r.hits
	if len(top) > s.contextSources {
		top = top[:s.contextSources]
	}
	parts := make([]string, 0, len(top))
	for _, h := range top {
		parts = append(parts, h.Content)
	}
	r.context = strings.Join(parts, "\n\n")
	text, err := s.generator.Generate(ctx, ai.GenerateRequest{
		System:      answerSystemPrompt,
		Prompt:      fmt.Sprintf("Context: %s\n\nQuestion: %s", r.context, r.query),
		Temperature: answerTemperature,
	})
	if err != nil {
		return stateDefault, err
	}
	r.text = text
	return stateFollowUp, nil
}

func (s *Service) followUp(ctx context.Context, r *run) (state, error) {
	raw, err := s.generator.Generate(ctx, ai.GenerateRequest{
		System:      followUpSystemPrompt,
		Prompt:      fmt.Sprintf(followUpPromptFormat, r.query, r.text, r.context),
		Temperature: followUpTemperature,
	})
	if err != nil {
		return stateDefault, err
	}
	text := r.text
	if strings.TrimSpace(text) == "" {
		text = noResponseText
	}
	r.answer = &model.Answer{
		Text:              text,
		Sources:           toSources(r.hits),
		FollowUpQuestions: parseFollowUps(raw),
		Disclaimer:        Disclaimer,
	}
	return stateDone, nil
}

func databaseHits(matches []model.VectorMatch) []model.SearchHit {
	hits := make([]model.SearchHit, 0, len(matches))
	for _, m := range matches {
		hits = append(hits, model.SearchHit{
			Content: m.Metadata.Text,
			Score:   m.Score,
			Metadata: model.HitMetadata{
				Title:  m.Metadata.Title,
				Author: m.Metadata.Author,
				URL:    m.Metadata.URL,
				Source: m.Metadata.Source,
				Date:   m.Metadata.PublishDate,
			},
			Origin: model.OriginDatabase,
		})
	}
	return hits
}

// mergeHits concatenates database then web hits and sorts them by
// descending score. Equal scores keep that order.
func mergeHits(db, web []model.SearchHit) []model.SearchHit {
	all := make([]model.SearchHit, 0, len(db)+len(web))
	all = append(all, db...)
	all = append(all, web...)
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Score > all[j].Score
	})
	return all
}

func filterThreshold(hits []model.SearchHit, threshold float64) []model.SearchHit {
	if threshold <= 0 {
		return hits
	}
	out := hits[:0]
	for _, h := range hits {
		if h.Score >= threshold {
			out = append(out, h)
		}
	}
	return out
}

func toSources(hits []model.SearchHit) []model.Source {
	out := make([]model.Source, 0, len(hits))
	for _, h := range hits {
		out = append(out, model.Source{
			Title:  h.Metadata.Title,
			Author: h.Metadata.Author,
			Link:   h.Metadata.URL,
			Type:   h.Origin,
			Date:   h.Metadata.Date,
		})
	}
	return out
}

// parseFollowUps keeps the first non-blank lines of the model output.
func parseFollowUps(raw string) []string {
	out := make([]string, 0, maxFollowUps)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == maxFollowUps {
			break
		}
	}
	return out
}

func truncateChars(s string, max int) string {
	if max <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
