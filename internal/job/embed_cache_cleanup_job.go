package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/medrag/internal/repo"
)

const defaultCacheMaxAgeDays = 30

// EmbedCacheCleanupJob deletes database embedding cache rows older than
// maxAgeDays.
type EmbedCacheCleanupJob struct {
	store      repo.EmbeddingCacheStore
	maxAgeDays int
	now        func() time.Time
}

func NewEmbedCacheCleanupJob(store repo.EmbeddingCacheStore, maxAgeDays int) *EmbedCacheCleanupJob {
	return &EmbedCacheCleanupJob{store: store, maxAgeDays: maxAgeDays, now: time.Now}
}

func (j *EmbedCacheCleanupJob) Name() string {
	return "embed_cache_cleanup"
}

func (j *EmbedCacheCleanupJob) Run(ctx context.Context) error {
	if j.store == nil {
		return nil
	}
	maxAgeDays := j.maxAgeDays
	if maxAgeDays <= 0 {
		maxAgeDays = defaultCacheMaxAgeDays
	}
	cutoff := j.now().Add(-time.Duration(maxAgeDays) * 24 * time.Hour).Unix()
	n, err := j.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("embedding cache cleaned", zap.Int64("deleted", n), zap.Int("max_age_days", maxAgeDays))
	return nil
}
