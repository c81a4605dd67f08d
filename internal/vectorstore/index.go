package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/medrag/internal/config"
	"github.com/xxxsen/medrag/internal/model"
	appErr "github.com/xxxsen/medrag/internal/pkg/errors"
	"go.uber.org/zap"
)

const (
	DefaultBatchSize             = 100
	DefaultMaxMetadataTextLength = 1000
	DefaultTopK                  = 3
)

type IndexOptions struct {
	BatchSize             int
	MaxMetadataTextLength int
	ReplaceOnReingest     bool
	Timeout               time.Duration
}

// Index stores processed documents in a Backend and answers nearest
// neighbour queries.
type Index struct {
	backend Backend
	opts    IndexOptions
}

func NewIndex(backend Backend, opts IndexOptions) *Index {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MaxMetadataTextLength <= 0 {
		opts.MaxMetadataTextLength = DefaultMaxMetadataTextLength
	}
	return &Index{backend: backend, opts: opts}
}

// New builds the configured backend and wraps it in an Index.
func New(cfg config.VectorStoreConfig, deps Deps) (*Index, error) {
	backend, err := NewBackend(cfg.Type, cfg.Data, deps)
	if err != nil {
		return nil, err
	}
	replace := true
	if cfg.ReplaceOnReingest != nil {
		replace = *cfg.ReplaceOnReingest
	}
	return NewIndex(backend, IndexOptions{
		BatchSize:             cfg.BatchSize,
		MaxMetadataTextLength: cfg.MaxMetadataTextLength,
		ReplaceOnReingest:     replace,
		Timeout:               time.Duration(cfg.Timeout) * time.Second,
	}), nil
}

// BuildRecords pairs chunks with embeddings. Record ids are
// "{title}-{index}" and metadata text is cut to maxText runes.
func BuildRecords(doc *model.ProcessedDocument, maxText int) ([]model.VectorRecord, error) {
	if len(doc.Chunks) != len(doc.Embeddings) {
		return nil, fmt.Errorf("%d chunks but %d embeddings", len(doc.Chunks), len(doc.Embeddings))
	}
	records := make([]model.VectorRecord, 0, len(doc.Chunks))
	for i, chunk := range doc.Chunks {
		text, truncated := truncateRunes(chunk.Content, maxText)
		records = append(records, model.VectorRecord{
			ID:     fmt.Sprintf("%s-%d", doc.Metadata.Title, i),
			Values: doc.Embeddings[i],
			Metadata: model.RecordMetadata{
				DocumentMetadata: chunk.Metadata,
				Text:             text,
				IsTextTruncated:  truncated,
			},
		})
	}
	return records, nil
}

func truncateRunes(s string, max int) (string, bool) {
	if max <= 0 {
		return s, false
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i], true
		}
		n++
	}
	return s, false
}

// Store writes every chunk of doc. Documents without chunks are skipped.
func (x *Index) Store(ctx context.Context, doc *model.ProcessedDocument) error {
	if doc == nil || len(doc.Chunks) == 0 {
		return nil
	}
	records, err := BuildRecords(doc, x.opts.MaxMetadataTextLength)
	if err != nil {
		return fmt.Errorf("%w: %w", appErr.ErrStorage, err)
	}
	if x.opts.ReplaceOnReingest {
		if err := x.withTimeout(ctx, func(ctx context.Context) error {
			return x.backend.DeleteByTitle(ctx, doc.Metadata.Title)
		}); err != nil {
			return fmt.Errorf("%w: delete previous vectors of %s: %w", appErr.ErrStorage, doc.Metadata.Title, err)
		}
	}
	return x.Upsert(ctx, records)
}

// Upsert writes records in sequential batches. The first failing batch
// aborts the rest; earlier batches stay written.
func (x *Index) Upsert(ctx context.Context, records []model.VectorRecord) error {
	logger := logutil.GetLogger(ctx)
	total := (len(records) + x.opts.BatchSize - 1) / x.opts.BatchSize
	for start, batch := 0, 0; start < len(records); start, batch = start+x.opts.BatchSize, batch+1 {
		end := start + x.opts.BatchSize
		if end > len(records) {
			end = len(records)
		}
		if err := x.withTimeout(ctx, func(ctx context.Context) error {
			return x.backend.Upsert(ctx, records[start:end])
		}); err != nil {
			logger.Error("upsert vectors failed",
				zap.Int("batch", batch+1), zap.Int("batches", total), zap.Error(err))
			return fmt.Errorf("%w: upsert batch %d/%d: %w", appErr.ErrStorage, batch+1, total, err)
		}
		logger.Debug("upserted vectors", zap.Int("batch", batch+1), zap.Int("batches", total), zap.Int("count", end-start))
	}
	return nil
}

func (x *Index) Query(ctx context.Context, vector []float32, topK int) ([]model.VectorMatch, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	var matches []model.VectorMatch
	err := x.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		matches, err = x.backend.Query(ctx, vector, topK)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: query: %w", appErr.ErrStorage, err)
	}
	if len(matches) > topK {
		matches = matches[:topK]
	}
	if matches == nil {
		matches = []model.VectorMatch{}
	}
	return matches, nil
}

func (x *Index) DeleteByTitle(ctx context.Context, title string) error {
	return x.withTimeout(ctx, func(ctx context.Context) error {
		return x.backend.DeleteByTitle(ctx, title)
	})
}

func (x *Index) withTimeout(ctx context.Context, fn func(ctx context.Context) error) error {
	if x.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, x.opts.Timeout)
		defer cancel()
	}
	return fn(ctx)
}
