package search

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/medrag/internal/ai"
	"github.com/xxxsen/medrag/internal/config"
	"github.com/xxxsen/medrag/internal/model"
	appErr "github.com/xxxsen/medrag/internal/pkg/errors"
)

type fakeEmbedder struct {
	vectors    map[string][]float32
	queryCalls atomic.Int32
	mu         sync.Mutex
	docBatches [][]string
	err        error
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if taskType == ai.TaskTypeQuery {
		f.queryCalls.Add(1)
	} else {
		f.mu.Lock()
		f.docBatches = append(f.docBatches, texts)
		f.mu.Unlock()
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, ok := f.vectors[t]
		if !ok {
			v = []float32{0, 0, 1}
		}
		out = append(out, v)
	}
	return out, nil
}

func (f *fakeEmbedder) ModelName() string { return "fake" }

type fakeGenerator struct {
	mu       sync.Mutex
	requests []ai.GenerateRequest
	replies  []string
	err      error
}

func (f *fakeGenerator) Generate(ctx context.Context, req ai.GenerateRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "", nil
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	return reply, nil
}

type fakeIndex struct {
	matches []model.VectorMatch
	topK    int
	err     error
}

func (f *fakeIndex) Query(ctx context.Context, vector []float32, topK int) ([]model.VectorMatch, error) {
	f.topK = topK
	if f.err != nil {
		return nil, f.err
	}
	return f.matches, nil
}

type fakeSearcher struct {
	results []model.WebResult
	err     error
}

func (f *fakeSearcher) Search(ctx context.Context, query string) ([]model.WebResult, error) {
	return f.results, f.err
}

type fakeFetcher struct {
	pages map[string]string
}

func (f *fakeFetcher) FetchContent(ctx context.Context, url string) (string, error) {
	p, ok := f.pages[url]
	if !ok {
		return "", appErr.ErrFetch
	}
	return p, nil
}

func dbMatch(title, text string, score float64) model.VectorMatch {
	return model.VectorMatch{Score: score, Metadata: model.RecordMetadata{
		DocumentMetadata: model.DocumentMetadata{Title: title, Source: "research_paper", PublishDate: "2024-01-01"},
		Text:             text,
	}}
}

type fixture struct {
	embedder  *fakeEmbedder
	generator *fakeGenerator
	index     *fakeIndex
	searcher  *fakeSearcher
	fetcher   *fakeFetcher
}

func newFixture() *fixture {
	return &fixture{
		embedder: &fakeEmbedder{vectors: map[string][]float32{
			"what is asthma": {1, 0, 0},
			"web close":      {1, 0, 0},
			"web far":        {0, 1, 0},
		}},
		generator: &fakeGenerator{replies: []string{"Asthma is a chronic disease [Source: A].", "Q1?\n\nQ2?\nQ3?\nQ4?"}},
		index: &fakeIndex{matches: []model.VectorMatch{
			dbMatch("db high", "db text high", 0.9),
			dbMatch("db low", "db text low", 0.4),
		}},
		searcher: &fakeSearcher{results: []model.WebResult{
			{Title: "Close", URL: "https://a.org/close", Source: "a.org", Date: "2024-05-01"},
			{Title: "Broken", URL: "https://b.org/broken", Source: "b.org"},
			{Title: "Far", URL: "https://c.org/far", Source: "c.org"},
			{Title: "Fourth", URL: "https://d.org/fourth", Source: "d.org"},
		}},
		fetcher: &fakeFetcher{pages: map[string]string{
			"https://a.org/close":  "web close",
			"https://c.org/far":    "web far",
			"https://d.org/fourth": "never fetched",
		}},
	}
}

func (f *fixture) service(t *testing.T) *Service {
	s, err := NewService(Deps{
		Embedder:  f.embedder,
		Generator: f.generator,
		Index:     f.index,
		Searcher:  f.searcher,
		Fetcher:   f.fetcher,
	}, config.SearchConfig{})
	require.NoError(t, err)
	return s
}

func TestSearchMergesAndGenerates(t *testing.T) {
	f := newFixture()
	answer := f.service(t).Search(context.Background(), "what is asthma", Options{})

	require.Equal(t, "Asthma is a chronic disease [Source: A].", answer.Text)
	require.Equal(t, []string{"Q1?", "Q2?", "Q3?"}, answer.FollowUpQuestions)
	require.Equal(t, Disclaimer, answer.Disclaimer)
	require.EqualValues(t, 1, f.embedder.queryCalls.Load())
	require.Equal(t, DefaultTopK, f.index.topK)
	require.Equal(t, [][]string{{"web close", "web far"}}, f.embedder.docBatches)

	require.Len(t, answer.Sources, 4)
	require.Equal(t, model.Source{Title: "Close", Link: "https://a.org/close", Type: model.OriginWeb, Date: "2024-05-01"}, answer.Sources[0])
	require.Equal(t, "db high", answer.Sources[1].Title)
	require.Equal(t, model.OriginDatabase, answer.Sources[1].Type)
	require.Equal(t, "2024-01-01", answer.Sources[1].Date)
	require.Equal(t, "db low", answer.Sources[2].Title)
	require.Equal(t, "Far", answer.Sources[3].Title)

	require.Len(t, f.generator.requests, 2)
	gen := f.generator.requests[0]
	require.Equal(t, answerSystemPrompt, gen.System)
	require.InDelta(t, 0.3, gen.Temperature, 1e-6)
	wantContext := "web close\n\ndb text high\n\ndb text low\n\nweb far"
	require.Equal(t, "Context: "+wantContext+"\n\nQuestion: what is asthma", gen.Prompt)

	follow := f.generator.requests[1]
	require.Equal(t, followUpSystemPrompt, follow.System)
	require.InDelta(t, 0.7, follow.Temperature, 1e-6)
	require.True(t, strings.HasPrefix(follow.Prompt, "Original question: what is asthma\n\nAnswer provided: Asthma is"))
	require.True(t, strings.HasSuffix(follow.Prompt, "Generate 3 follow-up questions:"))
}

func TestSearchContextUsesTopFive(t *testing.T) {
	f := newFixture()
	f.searcher = nil
	f.index.matches = nil
	for i, score := range []float64{0.9, 0.8, 0.7, 0.6, 0.5, 0.4} {
		f.index.matches = append(f.index.matches, dbMatch("t", string(rune('a'+i)), score))
	}
	s, err := NewService(Deps{Embedder: f.embedder, Generator: f.generator, Index: f.index}, config.SearchConfig{})
	require.NoError(t, err)
	answer := s.Search(context.Background(), "what is asthma", Options{TopK: 6})

	require.Equal(t, 6, f.index.topK)
	require.Len(t, answer.Sources, 6)
	require.Equal(t, "Context: a\n\nb\n\nc\n\nd\n\ne\n\nQuestion: what is asthma", f.generator.requests[0].Prompt)
}

func TestSearchThreshold(t *testing.T) {
	f := newFixture()
	answer := f.service(t).Search(context.Background(), "what is asthma", Options{Threshold: 0.5})
	require.Len(t, answer.Sources, 2)
	require.Equal(t, "Close", answer.Sources[0].Title)
	require.Equal(t, "db high", answer.Sources[1].Title)
}

func TestSearchDefaultAnswer(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *fixture)
	}{
		{name: "no sources", mutate: func(f *fixture) {
			f.index.matches = nil
			f.searcher.results = nil
		}},
		{name: "everything below threshold", mutate: func(f *fixture) {
			f.index.matches = []model.VectorMatch{dbMatch("x", "y", 0.01)}
			f.searcher.results = nil
		}},
		{name: "embedding failure", mutate: func(f *fixture) {
			f.embedder.err = appErr.ErrEmbeddingService
		}},
		{name: "index failure", mutate: func(f *fixture) {
			f.index.err = appErr.ErrStorage
		}},
		{name: "web search failure", mutate: func(f *fixture) {
			f.searcher.err = appErr.ErrSearchAPI
		}},
		{name: "generation failure", mutate: func(f *fixture) {
			f.generator.err = errors.New("model down")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			tt.mutate(f)
			answer := f.service(t).Search(context.Background(), "what is asthma", Options{Threshold: 0.1})
			require.Equal(t, DefaultAnswer(), answer)
			require.Empty(t, answer.Sources)
			require.Len(t, answer.FollowUpQuestions, 3)
			require.Equal(t, Disclaimer, answer.Disclaimer)
		})
	}
}

func TestSearchEmptyGeneration(t *testing.T) {
	f := newFixture()
	f.generator.replies = []string{"", "A?"}
	answer := f.service(t).Search(context.Background(), "what is asthma", Options{})
	require.Equal(t, "No response generated", answer.Text)
	require.Equal(t, []string{"A?"}, answer.FollowUpQuestions)
	require.Contains(t, f.generator.requests[1].Prompt, "Answer provided: \n\n")
}

func TestSearchTruncatesWebContentForEmbedding(t *testing.T) {
	f := newFixture()
	long := strings.Repeat("é", DefaultWebContentMaxChars+50)
	f.searcher.results = []model.WebResult{{Title: "Long", URL: "https://long.org/x"}}
	f.fetcher.pages["https://long.org/x"] = long
	f.service(t).Search(context.Background(), "what is asthma", Options{})
	require.Len(t, f.embedder.docBatches, 1)
	require.Equal(t, DefaultWebContentMaxChars, len([]rune(f.embedder.docBatches[0][0])))
}

func TestMergeHitsOrder(t *testing.T) {
	db := []model.SearchHit{
		{Content: "db1", Score: 0.9, Origin: model.OriginDatabase},
		{Content: "db2", Score: 0.4, Origin: model.OriginDatabase},
	}
	web := []model.SearchHit{
		{Content: "web1", Score: 0.95, Origin: model.OriginWeb},
		{Content: "web2", Score: 0.1, Origin: model.OriginWeb},
	}
	merged := mergeHits(db, web)
	var got []string
	for _, h := range merged {
		got = append(got, h.Content)
	}
	require.Equal(t, []string{"web1", "db1", "db2", "web2"}, got)

	tied := mergeHits([]model.SearchHit{{Content: "db", Score: 0.5}}, []model.SearchHit{{Content: "web", Score: 0.5}})
	require.Equal(t, "db", tied[0].Content)
}

func TestParseFollowUps(t *testing.T) {
	require.Equal(t, []string{"Q1?", "Q2?", "Q3?"}, parseFollowUps("Q1?\n\nQ2?\nQ3?\nQ4?"))
	require.Equal(t, []string{"only?"}, parseFollowUps("  \nonly?\n"))
	require.Empty(t, parseFollowUps(""))
}

func TestNewServiceValidation(t *testing.T) {
	f := newFixture()
	_, err := NewService(Deps{Embedder: f.embedder, Index: f.index}, config.SearchConfig{})
	require.Error(t, err)
	_, err = NewService(Deps{Embedder: f.embedder, Generator: f.generator, Index: f.index, Searcher: f.searcher}, config.SearchConfig{})
	require.Error(t, err)
}
