package pipeline

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/medrag/internal/ai"
	"github.com/xxxsen/medrag/internal/chunker"
	"github.com/xxxsen/medrag/internal/model"
	appErr "github.com/xxxsen/medrag/internal/pkg/errors"
	"go.uber.org/zap"
)

type Options struct {
	ChunkSize    int
	ChunkOverlap int
	MaxChunks    int
}

// Pipeline turns raw document text into embedded chunks.
type Pipeline struct {
	splitter  *chunker.Splitter
	embedder  ai.IEmbedder
	maxChunks int
}

func New(embedder ai.IEmbedder, opts Options) *Pipeline {
	if opts.MaxChunks <= 0 {
		opts.MaxChunks = chunker.DefaultMaxChunks
	}
	return &Pipeline{
		splitter:  chunker.New(opts.ChunkSize, opts.ChunkOverlap),
		embedder:  embedder,
		maxChunks: opts.MaxChunks,
	}
}

// ProcessDocument normalizes, chunks and embeds content. Any failure is
// reported as an *errors.IngestionError carrying the document title.
func (p *Pipeline) ProcessDocument(ctx context.Context, content string, md model.DocumentMetadata) (*model.ProcessedDocument, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("title", md.Title))
	if p.embedder == nil {
		return nil, &appErr.IngestionError{Title: md.Title, Err: fmt.Errorf("%w: embedder", appErr.ErrUnavailable)}
	}
	text := Normalize(content)
	pieces := chunker.Cap(ctx, p.splitter.Split(text), p.maxChunks)
	out := &model.ProcessedDocument{Metadata: md}
	if len(pieces) == 0 {
		logger.Info("document produced no chunks")
		return out, nil
	}
	logger.Debug("document chunked", zap.Int("chunks", len(pieces)), zap.Int("chars", len(text)))

	embeddings, err := p.embedder.Embed(ctx, pieces, ai.TaskTypeDocument)
	if err != nil {
		return nil, &appErr.IngestionError{Title: md.Title, Err: err}
	}
	if len(embeddings) != len(pieces) {
		return nil, &appErr.IngestionError{
			Title: md.Title,
			Err:   fmt.Errorf("%w: got %d embeddings for %d chunks", appErr.ErrEmbeddingService, len(embeddings), len(pieces)),
		}
	}
	out.Chunks = make([]model.Chunk, 0, len(pieces))
	for _, piece := range pieces {
		out.Chunks = append(out.Chunks, model.Chunk{Content: piece, Metadata: md})
	}
	out.Embeddings = embeddings
	logger.Info("document processed", zap.Int("chunks", len(out.Chunks)))
	return out, nil
}
