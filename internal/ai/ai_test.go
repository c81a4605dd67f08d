package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xxxsen/medrag/internal/config"
	appErr "github.com/xxxsen/medrag/internal/pkg/errors"
)

func newOpenAIServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/embeddings":
			var req openAIEmbedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			type item struct {
				Index     int       `json:"index"`
				Embedding []float32 `json:"embedding"`
			}
			data := make([]item, 0, len(req.Input))
			// reversed on purpose, the client must restore input order
			for i := len(req.Input) - 1; i >= 0; i-- {
				data = append(data, item{Index: i, Embedding: []float32{float32(len(req.Input[i])), float32(i)}})
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
		case "/chat/completions":
			var req openAIChatRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Len(t, req.Messages, 2)
			require.Equal(t, "system", req.Messages[0].Role)
			require.InDelta(t, 0.3, req.Temperature, 1e-6)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"choices": []map[string]interface{}{{"message": map[string]string{"content": "  answer for " + req.Messages[1].Content + " "}}},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIEmbedPreservesOrder(t *testing.T) {
	srv := newOpenAIServer(t)
	p, err := NewEmbedProvider("openai", map[string]interface{}{"api_key": "test-key", "base_url": srv.URL})
	require.NoError(t, err)
	e := NewEmbedder(p, "text-embedding-3-large")
	vectors, err := e.Embed(context.Background(), []string{"a", "bbb", "cc"}, TaskTypeDocument)
	require.NoError(t, err)
	require.Equal(t, [][]float32{{1, 0}, {3, 1}, {2, 2}}, vectors)
	require.Equal(t, "text-embedding-3-large", e.ModelName())

	q, err := EmbedQuery(context.Background(), e, "abcd")
	require.NoError(t, err)
	require.Equal(t, []float32{4, 0}, q)
}

func TestOpenAIGenerate(t *testing.T) {
	srv := newOpenAIServer(t)
	p, err := NewProvider("OpenAI", map[string]interface{}{"api_key": "test-key", "base_url": srv.URL})
	require.NoError(t, err)
	g := NewGenerator(p, "gpt-4o-mini")
	out, err := g.Generate(context.Background(), GenerateRequest{System: "sys", Prompt: "q", Temperature: 0.3})
	require.NoError(t, err)
	require.Equal(t, "answer for q", out)
}

func TestEmbedFailureIsEmbeddingServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("rate limited"))
	}))
	defer srv.Close()
	p, err := NewEmbedProvider("openai", map[string]interface{}{"api_key": "test-key", "base_url": srv.URL})
	require.NoError(t, err)
	_, err = NewEmbedder(p, "m").Embed(context.Background(), []string{"x"}, TaskTypeQuery)
	require.Error(t, err)
	require.True(t, errors.Is(err, appErr.ErrEmbeddingService))
	require.Contains(t, err.Error(), "rate limited")
}

func TestMissingAPIKeyIsUnavailable(t *testing.T) {
	p, err := NewEmbedProvider("openai", map[string]interface{}{})
	require.NoError(t, err)
	_, err = NewEmbedder(p, "m").Embed(context.Background(), []string{"x"}, TaskTypeQuery)
	require.True(t, errors.Is(err, ErrUnavailable))
}

func TestUnknownProvider(t *testing.T) {
	_, err := NewProvider("nope", nil)
	require.Error(t, err)
	_, err = NewEmbedProvider("", nil)
	require.Error(t, err)
}

type stubGenerator struct {
	calls int
	out   string
	err   error
}

func (s *stubGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	s.calls++
	return s.out, s.err
}

type stubEmbedder struct {
	calls int
	err   error
}

func (s *stubEmbedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1}
	}
	return out, nil
}

func (s *stubEmbedder) ModelName() string { return "stub" }

func TestGroupGeneratorFallsBackOnce(t *testing.T) {
	first := &stubGenerator{err: errors.New("boom")}
	second := &stubGenerator{out: "ok"}
	g := NewGroupGenerator([]GeneratorEntry{{Name: "a", Generator: first}, {Name: "b", Generator: second}})
	out, err := g.Generate(context.Background(), GenerateRequest{Prompt: "p"})
	require.NoError(t, err)
	require.Equal(t, "ok", out)
	require.Equal(t, 1, first.calls)
	require.Equal(t, 1, second.calls)
}

func TestGroupEmbedderReturnsLastError(t *testing.T) {
	a := &stubEmbedder{err: errors.New("a down")}
	b := &stubEmbedder{err: errors.New("b down")}
	e := NewGroupEmbedder([]EmbedderEntry{{Name: "a", Embedder: a}, {Name: "b", Embedder: b}})
	_, err := e.Embed(context.Background(), []string{"x"}, TaskTypeQuery)
	require.EqualError(t, err, "b down")
	require.Equal(t, "a|b", e.ModelName())
	require.Equal(t, 1, a.calls)
	require.Equal(t, 1, b.calls)
}

func TestSingleEntryGroupIsUnwrapped(t *testing.T) {
	s := &stubEmbedder{}
	require.Same(t, s, NewGroupEmbedder([]EmbedderEntry{{Name: "only", Embedder: s}}))
	require.Nil(t, NewGroupGenerator(nil))
}

type slowGenerator struct{}

func (slowGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestGenerateTimeout(t *testing.T) {
	g := WithGenerateTimeout(slowGenerator{}, 20*time.Millisecond)
	_, err := g.Generate(context.Background(), GenerateRequest{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBuildFromConfig(t *testing.T) {
	srv := newOpenAIServer(t)
	cfg := config.AIConfig{
		Timeout: 5,
		Providers: []config.AIProviderConfig{
			{Name: "oa", Type: "openai", Data: map[string]interface{}{"api_key": "test-key", "base_url": srv.URL}},
		},
		Generator: []config.AIModelConfig{{Provider: "oa", Model: "gpt-4o-mini"}},
		Embedder:  []config.AIModelConfig{{Provider: "oa", Model: "text-embedding-3-large"}},
	}
	g, err := BuildGenerator(cfg)
	require.NoError(t, err)
	require.NotNil(t, g)
	e, err := BuildEmbedder(cfg)
	require.NoError(t, err)
	require.Equal(t, "text-embedding-3-large", e.ModelName())
	v, err := e.Embed(context.Background(), []string{"ab"}, TaskTypeDocument)
	require.NoError(t, err)
	require.Equal(t, [][]float32{{2, 0}}, v)

	cfg.Embedder = nil
	_, err = BuildEmbedder(cfg)
	require.Error(t, err)
}
