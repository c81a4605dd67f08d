package ingest

import (
	"context"
	"errors"
	"strings"

	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/medrag/internal/filestore"
	"github.com/xxxsen/medrag/internal/model"
	appErr "github.com/xxxsen/medrag/internal/pkg/errors"
	"github.com/xxxsen/medrag/internal/pkg/settle"
	"github.com/xxxsen/medrag/internal/pipeline"
	"go.uber.org/zap"
)

type Processor interface {
	ProcessDocument(ctx context.Context, content string, md model.DocumentMetadata) (*model.ProcessedDocument, error)
}

type VectorStore interface {
	Store(ctx context.Context, doc *model.ProcessedDocument) error
}

type IngestResult struct {
	Success    bool `json:"success"`
	ChunkCount int  `json:"chunks"`
}

type BatchResult struct {
	DocumentTitle string        `json:"document"`
	Status        settle.Status `json:"status"`
	ChunkCount    int           `json:"chunks,omitempty"`
	Error         string        `json:"error,omitempty"`
}

type Option func(*Ingestion)

// WithArchive saves the normalized text of every ingested document.
func WithArchive(store filestore.Store) Option {
	return func(i *Ingestion) {
		i.archive = store
	}
}

func WithConcurrency(n int) Option {
	return func(i *Ingestion) {
		i.concurrency = n
	}
}

type Ingestion struct {
	processor   Processor
	store       VectorStore
	archive     filestore.Store
	concurrency int
}

func NewIngestion(processor Processor, store VectorStore, opts ...Option) *Ingestion {
	i := &Ingestion{processor: processor, store: store}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// IngestDocument processes and stores a single document. Failures come
// back as *errors.IngestionError.
func (i *Ingestion) IngestDocument(ctx context.Context, doc model.Document) (*IngestResult, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("title", doc.Metadata.Title))
	processed, err := i.processor.ProcessDocument(ctx, doc.Content, doc.Metadata)
	if err != nil {
		logger.Error("process document failed", zap.Error(err))
		return nil, asIngestionError(doc.Metadata.Title, err)
	}
	if len(processed.Chunks) == 0 {
		return &IngestResult{Success: true, ChunkCount: 0}, nil
	}
	for n, c := range processed.Chunks {
		if n >= 3 {
			break
		}
		logger.Debug("sample chunk", zap.Int("index", n), zap.String("content", c.Content))
	}
	if err := i.store.Store(ctx, processed); err != nil {
		logger.Error("store document failed", zap.Error(err))
		return nil, asIngestionError(doc.Metadata.Title, err)
	}
	i.archiveDocument(ctx, doc)
	logger.Info("document ingested", zap.Int("chunks", len(processed.Chunks)))
	return &IngestResult{Success: true, ChunkCount: len(processed.Chunks)}, nil
}

// IngestBatch ingests all documents concurrently and reports every
// outcome in input order. One failure never cancels the others.
func (i *Ingestion) IngestBatch(ctx context.Context, docs []model.Document) []BatchResult {
	results := settle.All(ctx, len(docs), i.concurrency, func(ctx context.Context, n int) (*IngestResult, error) {
		return i.IngestDocument(ctx, docs[n])
	})
	out := make([]BatchResult, 0, len(docs))
	for n, r := range results {
		item := BatchResult{DocumentTitle: docs[n].Metadata.Title, Status: r.Status()}
		if r.Err != nil {
			item.Error = r.Err.Error()
		} else {
			item.ChunkCount = r.Value.ChunkCount
		}
		out = append(out, item)
	}
	return out
}

func (i *Ingestion) archiveDocument(ctx context.Context, doc model.Document) {
	if i.archive == nil {
		return
	}
	text := pipeline.Normalize(doc.Content)
	key := filestore.KeyForTitle(doc.Metadata.Title)
	if err := i.archive.Save(ctx, key, strings.NewReader(text), int64(len(text))); err != nil {
		logutil.GetLogger(ctx).Warn("archive document failed", zap.String("key", key), zap.Error(err))
	}
}

func asIngestionError(title string, err error) error {
	var ie *appErr.IngestionError
	if errors.As(err, &ie) {
		return err
	}
	return &appErr.IngestionError{Title: title, Err: err}
}
