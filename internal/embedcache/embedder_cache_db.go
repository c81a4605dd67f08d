package embedcache

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/medrag/internal/ai"
	"github.com/xxxsen/medrag/internal/model"
	"github.com/xxxsen/medrag/internal/repo"
	"go.uber.org/zap"
)

func WrapDBCacheToEmbedder(e ai.IEmbedder, store repo.EmbeddingCacheStore) ai.IEmbedder {
	if e == nil || store == nil {
		return e
	}
	return &dbEmbedder{next: e, store: store}
}

type dbEmbedder struct {
	next  ai.IEmbedder
	store repo.EmbeddingCacheStore
}

// Embed serves hits from the store. A failing lookup or write is logged
// and treated as a miss so the cache never blocks embedding.
func (d *dbEmbedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	logger := logutil.GetLogger(ctx)
	out := make([][]float32, len(texts))
	hashes := make([]string, len(texts))
	var modelName string
	var missing []int
	for i, text := range texts {
		_, hashes[i], modelName = buildCacheKey(d.next.ModelName(), taskType, text)
		values, ok, err := d.store.Get(ctx, modelName, taskType, hashes[i])
		if err != nil {
			logger.Warn("embedding cache lookup failed", zap.Error(err))
		}
		if ok {
			out[i] = values
			continue
		}
		missing = append(missing, i)
	}
	if hits := len(texts) - len(missing); hits > 0 {
		logger.Debug("embedding cache hit (db)", zap.String("task_type", taskType), zap.Int("hits", hits))
	}
	res, err := fillMisses(out, texts, missing, func(batch []string) ([][]float32, error) {
		return d.next.Embed(ctx, batch, taskType)
	})
	if err != nil {
		return nil, err
	}
	now := time.Now().Unix()
	for i, idx := range missing {
		if err := d.store.Save(ctx, &model.EmbeddingCache{
			ModelName:   modelName,
			TaskType:    taskType,
			ContentHash: hashes[idx],
			Embedding:   res[i],
			Ctime:       now,
		}); err != nil {
			logger.Warn("failed to cache embedding", zap.Error(err))
		}
	}
	return out, nil
}

func (d *dbEmbedder) ModelName() string {
	return d.next.ModelName()
}
