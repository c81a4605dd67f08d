package job

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/medrag/internal/ingest"
	"github.com/xxxsen/medrag/internal/model"
)

type fakeCacheStore struct {
	cutoff int64
}

func (f *fakeCacheStore) Get(ctx context.Context, modelName, taskType, contentHash string) ([]float32, bool, error) {
	return nil, false, nil
}

func (f *fakeCacheStore) Save(ctx context.Context, item *model.EmbeddingCache) error {
	return nil
}

func (f *fakeCacheStore) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	f.cutoff = cutoff
	return 2, nil
}

func TestEmbedCacheCleanupJob(t *testing.T) {
	now := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	store := &fakeCacheStore{}
	j := NewEmbedCacheCleanupJob(store, 0)
	j.now = func() time.Time { return now }
	require.Equal(t, "embed_cache_cleanup", j.Name())
	require.NoError(t, j.Run(context.Background()))
	require.Equal(t, now.AddDate(0, 0, -30).Unix(), store.cutoff)

	require.NoError(t, NewEmbedCacheCleanupJob(nil, 7).Run(context.Background()))
}

type fakeIngester struct {
	reqs []ingest.URLRequest
	fail map[string]bool
}

func (f *fakeIngester) IngestMultipleURLs(ctx context.Context, reqs []ingest.URLRequest) []ingest.URLResult {
	f.reqs = reqs
	out := make([]ingest.URLResult, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, ingest.URLResult{URL: r.URL, Success: !f.fail[r.URL]})
	}
	return out
}

func TestSourceRefreshJob(t *testing.T) {
	ing := &fakeIngester{fail: map[string]bool{"https://b.org/2": true}}
	j := NewSourceRefreshJob(ing, []string{"https://a.org/1", "https://b.org/2"}, "CDC", []string{"guidelines"})
	err := j.Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "1 of 2")
	require.Len(t, ing.reqs, 2)
	require.Equal(t, "CDC", ing.reqs[0].Overrides.Source)
	require.Equal(t, []string{"guidelines"}, ing.reqs[1].Overrides.Category)

	ing.fail = nil
	require.NoError(t, j.Run(context.Background()))

	empty := NewSourceRefreshJob(ing, nil, "", nil)
	require.NoError(t, empty.Run(context.Background()))
}
